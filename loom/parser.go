package loom

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// This file turns script text into a knot/stitch graph: a bufio.Scanner
// walks the script line by line, dispatching on a line's leading
// characters and building the KnotSet of RootNode trees straight from the
// scan, with no separate generic AST stage in between.

// ReadStoryFromString parses script text into a ready-to-start Story. It is
// the module's sole public entry point for turning author-facing text into
// a runtime graph; everything downstream (Start/Resume/MakeChoice) operates
// on the Story it returns.
func ReadStoryFromString(text string) (*Story, error) {
	p := newParser(stripBlockComments(text))
	if err := p.parseScript(); err != nil {
		return nil, err
	}
	validator := NewValidator(p.knots, p.globals)
	if err := validator.ValidateAll(); err != nil {
		return nil, err
	}
	for _, m := range p.logger.Messages() {
		validator.Logger.Add(m.Kind, m.Line, "%s", m.Text)
	}
	story := NewStory(p.knots, validator.Logger, p.variables)
	return story, nil
}

type parser struct {
	lines     []string
	pos       int
	knots     *KnotSet
	globals   map[string]bool
	variables map[string]Variable

	currentKnot   *Knot
	currentStitch *RootNode
	logger        *Logger
}

func newParser(text string) *parser {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return &parser{
		lines:     lines,
		knots:     NewKnotSet(),
		globals:   make(map[string]bool),
		variables: make(map[string]Variable),
		logger:    &Logger{},
	}
}

func stripBlockComments(text string) string {
	var sb strings.Builder
	depth := 0
	r := []rune(text)
	for i := 0; i < len(r); i++ {
		if depth == 0 && i+1 < len(r) && r[i] == '/' && r[i+1] == '*' {
			depth++
			i++
			continue
		}
		if depth > 0 && i+1 < len(r) && r[i] == '*' && r[i+1] == '/' {
			depth--
			i++
			continue
		}
		if depth == 0 {
			sb.WriteRune(r[i])
		} else if r[i] == '\n' {
			sb.WriteRune('\n')
		}
	}
	return sb.String()
}

func (p *parser) peek() (string, bool) {
	if p.pos >= len(p.lines) {
		return "", false
	}
	return p.lines[p.pos], true
}

func (p *parser) advance() {
	p.pos++
}

func (p *parser) parseScript() error {
	// Leading VAR declarations, before the first knot or any other content.
	// Anything else (a knot header, or a content line that belongs to the
	// implicit leading knot) is left for the main loop below to handle.
	for {
		raw, ok := p.peek()
		if !ok {
			return nil
		}
		trimmed := strings.TrimSpace(stripLineComment(raw, p))
		if trimmed == "" {
			p.advance()
			continue
		}
		if !strings.HasPrefix(trimmed, "VAR ") {
			break
		}
		if err := p.parseVarDecl(trimmed); err != nil {
			return err
		}
		p.advance()
	}

	for {
		raw, ok := p.peek()
		if !ok {
			break
		}
		trimmed := strings.TrimSpace(stripLineComment(raw, p))
		if trimmed == "" {
			p.advance()
			continue
		}
		if isKnotHeader(trimmed) {
			name := strings.Trim(trimmed, "= \t")
			if name == "" {
				return &ParseError{Line: p.pos + 1, Kind: "knot", Msg: "knot header has an empty name"}
			}
			knot := &Knot{Name: name, Stitches: make(map[string]*RootNode)}
			defaultStitch := &RootNode{Addr: LocationAddress(name, "")}
			knot.Stitches[""] = defaultStitch
			knot.StitchOrder = append(knot.StitchOrder, "")
			p.knots.Add(knot)
			p.currentKnot = knot
			p.currentStitch = defaultStitch
			p.advance()
			knot.Tags = p.parseKnotTags()
			continue
		}
		if p.currentKnot == nil {
			// Content before any `===` header belongs to an implicit knot,
			// so a script need not declare one just to hold a linear intro.
			knot := &Knot{Name: "", Stitches: make(map[string]*RootNode)}
			defaultStitch := &RootNode{Addr: LocationAddress("", "")}
			knot.Stitches[""] = defaultStitch
			knot.StitchOrder = append(knot.StitchOrder, "")
			p.knots.Add(knot)
			p.currentKnot = knot
			p.currentStitch = defaultStitch
		}
		if isStitchHeader(trimmed) {
			name := strings.TrimSpace(strings.TrimPrefix(trimmed, "="))
			if name == "" {
				return &ParseError{Line: p.pos + 1, Kind: "stitch", Msg: "stitch header has an empty name"}
			}
			root := &RootNode{Addr: LocationAddress(p.currentKnot.Name, name)}
			p.currentKnot.Stitches[name] = root
			p.currentKnot.StitchOrder = append(p.currentKnot.StitchOrder, name)
			p.currentStitch = root
			p.advance()
			continue
		}

		items, err := p.parseItemList(0)
		if err != nil {
			return err
		}
		p.currentStitch.Items = append(p.currentStitch.Items, items...)
	}

	return nil
}

func (p *parser) parseVarDecl(trimmed string) error {
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "VAR "))
	parts := strings.SplitN(rest, "=", 2)
	if len(parts) != 2 {
		return &ParseError{Line: p.pos + 1, Kind: "var", Msg: "expected VAR name = value"}
	}
	name := strings.TrimSpace(parts[0])
	valueText := strings.TrimSpace(parts[1])
	v, err := literalVariable(valueText)
	if err != nil {
		return &ParseError{Line: p.pos + 1, Kind: "var", Msg: err.Error()}
	}
	p.globals[name] = true
	p.variables[name] = v
	return nil
}

func literalVariable(text string) (Variable, error) {
	switch {
	case text == "true":
		return NewBool(true), nil
	case text == "false":
		return NewBool(false), nil
	case strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) && len(text) >= 2:
		return NewString(text[1 : len(text)-1]), nil
	}
	if n, err := strconv.ParseInt(text, 10, 32); err == nil {
		return NewInt(int32(n)), nil
	}
	if f, err := strconv.ParseFloat(text, 32); err == nil {
		return NewFloat(float32(f)), nil
	}
	return Variable{}, fmt.Errorf("unrecognized literal %q", text)
}

// parseKnotTags consumes consecutive standalone `# tag` lines directly below
// a knot header, before any stitch header or content line, as that knot's
// own tags. A bare `#` line anywhere else in a stitch's body is not a knot
// tag: it is parsed as an ordinary content line, which splitTrailingTags
// turns into a line with no text that carries that tag.
func (p *parser) parseKnotTags() []string {
	var tags []string
	for {
		raw, ok := p.peek()
		if !ok {
			return tags
		}
		trimmed := strings.TrimSpace(stripLineComment(raw, p))
		if trimmed == "" {
			p.advance()
			continue
		}
		if !strings.HasPrefix(trimmed, "#") {
			return tags
		}
		tags = append(tags, strings.TrimSpace(strings.TrimPrefix(trimmed, "#")))
		p.advance()
	}
}

func isKnotHeader(trimmed string) bool {
	return strings.HasPrefix(trimmed, "===") && strings.HasSuffix(trimmed, "===") && len(trimmed) > 4
}

func isStitchHeader(trimmed string) bool {
	return strings.HasPrefix(trimmed, "=") && !strings.HasPrefix(trimmed, "==")
}

// markerDepth counts a run of the given marker byte at the start of s,
// returning the count and the remaining text.
func markerDepth(s string, marker byte) (int, string) {
	i := 0
	for i < len(s) && s[i] == marker {
		i++
	}
	return i, strings.TrimSpace(s[i:])
}

// parseItemList parses the item list belonging to nesting level depth (0 =
// a stitch's own body). It stops, without consuming, at a knot/stitch
// header, end of input, or a gather/choice marker whose depth places it in
// an ancestor's list.
func (p *parser) parseItemList(depth int) ([]NodeItem, error) {
	var items []NodeItem

	for {
		raw, ok := p.peek()
		if !ok {
			return items, nil
		}
		trimmed := strings.TrimSpace(stripLineComment(raw, p))
		if trimmed == "" {
			p.advance()
			continue
		}
		if isKnotHeader(trimmed) || isStitchHeader(trimmed) {
			return items, nil
		}
		if strings.HasPrefix(trimmed, "TODO:") {
			p.logger.Add(KindTodo, p.pos+1, "%s", strings.TrimSpace(strings.TrimPrefix(trimmed, "TODO:")))
			p.advance()
			continue
		}

		if strings.HasPrefix(trimmed, "->") {
			line, err := p.parseContentLine(trimmed)
			if err != nil {
				return nil, err
			}
			items = append(items, NodeItem{Kind: ItemLine, Line: line})
			p.advance()
			continue
		}

		if strings.HasPrefix(trimmed, "*") || strings.HasPrefix(trimmed, "+") {
			marker := trimmed[0]
			d, _ := markerDepth(trimmed, marker)
			if d <= depth {
				return items, nil
			}
			if d > depth+1 {
				return nil, &ParseError{Line: p.pos + 1, Kind: "choice", Msg: "choice nesting skips a depth level"}
			}
			branches, err := p.parseChoiceBlock(depth + 1)
			if err != nil {
				return nil, err
			}
			items = append(items, NodeItem{Kind: ItemBranchingPoint, Branches: branches})
			continue
		}

		if strings.HasPrefix(trimmed, "-") {
			d, rest := markerDepth(trimmed, '-')
			if d <= depth {
				return items, nil
			}
			if rest != "" {
				line, err := p.parseContentLine(rest)
				if err != nil {
					return nil, err
				}
				items = append(items, NodeItem{Kind: ItemLine, Line: line})
			}
			p.advance()
			continue
		}

		line, err := p.parseContentLine(trimmed)
		if err != nil {
			return nil, err
		}
		items = append(items, NodeItem{Kind: ItemLine, Line: line})
		p.advance()
	}
}

// parseChoiceBlock consumes every consecutive choice line at exactly the
// given depth, recursively parsing each one's nested body, and returns the
// resulting branches in script order.
func (p *parser) parseChoiceBlock(depth int) ([]*Branch, error) {
	var branches []*Branch

	for {
		raw, ok := p.peek()
		if !ok {
			return branches, nil
		}
		trimmed := strings.TrimSpace(stripLineComment(raw, p))
		if trimmed == "" {
			p.advance()
			continue
		}
		if !(strings.HasPrefix(trimmed, "*") || strings.HasPrefix(trimmed, "+")) {
			return branches, nil
		}
		marker := trimmed[0]
		d, rest := markerDepth(trimmed, marker)
		if d != depth {
			return branches, nil
		}
		p.advance()

		choice, divert, err := p.parseChoiceHeader(marker, rest)
		if err != nil {
			return nil, err
		}

		body, err := p.parseItemList(depth)
		if err != nil {
			return nil, err
		}
		if divert != nil {
			body = append(body, NodeItem{Kind: ItemLine, Line: &Line{Divert: divert}})
		}

		displayItem := NodeItem{Kind: ItemLine, Line: choice.DisplayText}
		branches = append(branches, &Branch{
			Choice: choice,
			Items:  append([]NodeItem{displayItem}, body...),
		})
	}
}

// parseChoiceHeader parses everything on a choice line after its marker
// run: an optional `{condition}`, the choice text (with its optional
// `[bracket]` split into selection/display forms), and an optional trailing
// divert.
func (p *parser) parseChoiceHeader(marker byte, rest string) (InternalChoice, *Address, error) {
	text, tags := splitTrailingTags(rest)

	// A `{...}` group counts as the choice's guard condition only at the very
	// start of its text; anywhere later it is an ordinary embedded expression
	// or alternative belonging to the choice text itself.
	var cond *Condition
	if strings.HasPrefix(text, "{") {
		end := strings.Index(text, "}")
		if end < 0 {
			return InternalChoice{}, nil, &ParseError{Line: p.pos, Kind: "choice", Msg: "unterminated condition"}
		}
		condText := text[1:end]
		parsed, err := ParseConditionText(condText)
		if err != nil {
			return InternalChoice{}, nil, &ParseError{Line: p.pos, Kind: "choice", Msg: err.Error()}
		}
		cond = parsed
		text = strings.TrimSpace(text[end+1:])
	}

	var divert *Address
	if idx := topLevelIndex(text, "->"); idx >= 0 {
		target := strings.TrimSpace(text[idx+2:])
		if target != "" {
			addr := ParseAddress(target, p.currentKnot.Name)
			divert = &addr
		}
		text = strings.TrimSpace(text[:idx])
	}

	selectionText, displayText := splitChoiceBracket(text)
	selLine, err := parseChunksOnly(selectionText)
	if err != nil {
		return InternalChoice{}, nil, &ParseError{Line: p.pos, Kind: "choice", Msg: err.Error()}
	}
	dispLine, err := parseChunksOnly(displayText)
	if err != nil {
		return InternalChoice{}, nil, &ParseError{Line: p.pos, Kind: "choice", Msg: err.Error()}
	}
	selLine.Tags = tags
	dispLine.Tags = tags

	return InternalChoice{
		SelectionText: selLine,
		DisplayText:   dispLine,
		Cond:          cond,
		IsSticky:      marker == '+',
		IsFallback:    strings.TrimSpace(selectionText) == "" && strings.TrimSpace(displayText) == "",
		Tags:          tags,
	}, divert, nil
}

// splitChoiceBracket implements the `"visible[ only-in-menu] after"` rule:
// selection_text = "visible only-in-menu", display_text = "visible after".
func splitChoiceBracket(text string) (selection, display string) {
	start := strings.Index(text, "[")
	if start < 0 {
		return text, text
	}
	end := strings.Index(text[start:], "]")
	if end < 0 {
		return text, text
	}
	end += start
	pre := text[:start]
	bracket := text[start+1 : end]
	post := text[end+1:]
	// No space is inserted at the join: an author who wants one writes it
	// inside the brackets themselves, e.g. "Hello[ back!] right back at you!".
	selection = strings.TrimSpace(pre + bracket)
	display = strings.TrimSpace(pre + post)
	return selection, display
}

// splitTrailingTags pulls off one or more trailing `# tag` markers (outside
// any `{...}` group) from a content line.
func splitTrailingTags(s string) (content string, tags []string) {
	depth := 0
	cut := -1
	for i, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case '#':
			if depth == 0 && cut < 0 {
				cut = i
			}
		}
	}
	if cut < 0 {
		return s, nil
	}
	content = strings.TrimSpace(s[:cut])
	for _, t := range strings.Split(s[cut:], "#") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return content, tags
}

// parseContentLine parses one plain story line: tags, a trailing divert,
// glue markers, and the chunked body (text, embedded expressions,
// conditionals, alternatives).
func (p *parser) parseContentLine(trimmed string) (*Line, error) {
	content, tags := splitTrailingTags(trimmed)

	var divert *Address
	if idx := topLevelIndex(content, "->"); idx >= 0 {
		target := strings.TrimSpace(content[idx+2:])
		content = strings.TrimSpace(content[:idx])
		if target != "" {
			knotName := ""
			if p.currentKnot != nil {
				knotName = p.currentKnot.Name
			}
			addr := ParseAddress(target, knotName)
			divert = &addr
		}
	}

	line, err := parseChunksOnly(content)
	if err != nil {
		return nil, &ParseError{Line: p.pos + 1, Kind: "line", Msg: err.Error()}
	}
	line.Tags = tags
	line.Divert = divert
	return line, nil
}

// topLevelIndex finds the first occurrence of sep outside any `{...}` group.
func topLevelIndex(s, sep string) int {
	depth := 0
	for i := 0; i+len(sep) <= len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		}
		if depth == 0 && s[i:i+len(sep)] == sep {
			return i
		}
	}
	return -1
}

// parseChunksOnly parses glue markers and the chunk body of text with no
// tag or divert handling, used both for top-level lines (after those have
// already been stripped) and for choice selection/display text.
func parseChunksOnly(text string) (*Line, error) {
	glueBefore := strings.HasPrefix(text, "<>")
	if glueBefore {
		text = strings.TrimSpace(strings.TrimPrefix(text, "<>"))
	}
	glueAfter := strings.HasSuffix(text, "<>")
	if glueAfter {
		text = strings.TrimSpace(strings.TrimSuffix(text, "<>"))
	}
	chunks, err := parseChunks(text)
	if err != nil {
		return nil, err
	}
	return &Line{Chunks: chunks, GlueBefore: glueBefore, GlueAfter: glueAfter}, nil
}

// parseChunks splits text into literal-text chunks and `{...}` groups,
// classifying each group as an embedded expression, a conditional, a
// sequence, a once-only, or a cycle alternative.
func parseChunks(text string) ([]LineChunk, error) {
	var chunks []LineChunk
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			chunks = append(chunks, LineChunk{Kind: ChunkText, Text: lit.String()})
			lit.Reset()
		}
	}

	r := []rune(text)
	i := 0
	for i < len(r) {
		if r[i] != '{' {
			lit.WriteRune(r[i])
			i++
			continue
		}
		depth := 1
		j := i + 1
		for j < len(r) && depth > 0 {
			switch r[j] {
			case '{':
				depth++
			case '}':
				depth--
			}
			if depth > 0 {
				j++
			}
		}
		if depth != 0 {
			return nil, fmt.Errorf("unterminated '{' group in %q", text)
		}
		inner := string(r[i+1 : j])
		flush()
		chunk, err := parseBraceGroup(inner)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
		i = j + 1
	}
	flush()
	return chunks, nil
}

func parseBraceGroup(inner string) (LineChunk, error) {
	cycle := strings.HasPrefix(inner, "&")
	body := inner
	if cycle {
		body = inner[1:]
	}

	if !cycle {
		if ci := topLevelIndex(body, ":"); ci >= 0 {
			condText := body[:ci]
			restText := body[ci+1:]
			cond, err := ParseConditionText(condText)
			if err != nil {
				return LineChunk{}, err
			}
			parts := splitTopLevel(restText, '|')
			ifChunks, err := parseChunks(parts[0])
			if err != nil {
				return LineChunk{}, err
			}
			var elseChunks []LineChunk
			if len(parts) > 1 {
				elseChunks, err = parseChunks(parts[1])
				if err != nil {
					return LineChunk{}, err
				}
			}
			return LineChunk{Kind: ChunkConditional, Cond: cond, IfChunks: ifChunks, ElseChunks: elseChunks}, nil
		}
	}

	if cycle || strings.Contains(body, "|") {
		parts := splitTopLevel(body, '|')
		once := false
		if len(parts) > 0 && strings.TrimSpace(parts[len(parts)-1]) == "" {
			once = true
			parts = parts[:len(parts)-1]
		}
		var options [][]LineChunk
		for _, part := range parts {
			sub, err := parseChunks(part)
			if err != nil {
				return LineChunk{}, err
			}
			options = append(options, sub)
		}
		kind := AltSequence
		switch {
		case cycle:
			kind = AltCycle
		case once:
			kind = AltOnce
		}
		return LineChunk{Kind: ChunkAlt, AltKind: kind, Options: options}, nil
	}

	expr, err := ParseExpressionText(body)
	if err != nil {
		return LineChunk{}, err
	}
	return LineChunk{Kind: ChunkExpr, Expr: expr}, nil
}

// splitTopLevel splits s on sep, ignoring any occurrence nested inside a
// further `{...}` group.
func splitTopLevel(s string, sep rune) []string {
	var parts []string
	var cur strings.Builder
	depth := 0
	for _, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		}
		if depth == 0 && r == sep {
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
	}
	parts = append(parts, cur.String())
	return parts
}

// stripLineComment removes a trailing `// ...` comment, outside of any
// `{...}` group, and captures a `TODO: ...` comment into the parser's log
// instead of discarding it silently.
func stripLineComment(raw string, p *parser) string {
	idx := topLevelIndex(raw, "//")
	if idx < 0 {
		return raw
	}
	comment := strings.TrimSpace(raw[idx+2:])
	if strings.HasPrefix(comment, "TODO:") {
		p.logger.Add(KindTodo, p.pos+1, "%s", strings.TrimSpace(strings.TrimPrefix(comment, "TODO:")))
	}
	return raw[:idx]
}
