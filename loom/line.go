package loom

import "strings"

// ChunkKind discriminates the pieces a Line is built from: literal text,
// an embedded expression to render, or an alternative (sequence/once-only/
// cycle) that picks one of several sub-chunk lists based on the owning
// node's visit count.
type ChunkKind int

const (
	ChunkText ChunkKind = iota
	ChunkExpr
	ChunkAlt
	ChunkConditional
)

// AltKind selects how an alternative chunk picks among its Options as the
// owning node is revisited.
type AltKind int

const (
	AltSequence AltKind = iota // advances each visit, holds at the last option
	AltOnce                    // advances each visit, renders nothing once exhausted
	AltCycle                   // advances each visit, wraps back to the first option
)

// LineChunk is one piece of a Line's content.
type LineChunk struct {
	Kind ChunkKind

	// ChunkText
	Text string

	// ChunkExpr
	Expr *Expression

	// ChunkAlt
	AltKind AltKind
	Options [][]LineChunk

	// ChunkConditional
	Cond       *Condition
	IfChunks   []LineChunk
	ElseChunks []LineChunk
}

// Line is a single authored line of story text: a sequence of chunks, an
// optional trailing divert, and any tags attached to it. GlueBefore and
// GlueAfter mark the `<>` glue marker at either end, which suppresses the
// newline that would otherwise separate this line from its neighbor in the
// follow engine's output buffer.
type Line struct {
	Chunks     []LineChunk
	Divert     *Address
	Tags       []string
	GlueBefore bool
	GlueAfter  bool
}

// Text returns the literal text of a rendered output-buffer line (one whose
// Chunks is the single ChunkText entry appendRendered produces), the form
// described in the external interface as `Line{ text, tags }`. Calling it on
// an authored line with unrendered chunks returns only its first literal
// text chunk, which is never what a host wants; hosts should only call Text
// on lines taken from Story.Resume's output buffer.
func (l *Line) Text() string {
	if len(l.Chunks) == 0 {
		return ""
	}
	return l.Chunks[0].Text
}

// Render evaluates the line's chunks against visitCount (the owning node's
// visit count, used to drive ChunkAlt selection) and data, producing the
// text a reader would see.
func (l *Line) Render(visitCount uint32, data *FollowData) (string, error) {
	var sb strings.Builder
	if err := renderChunks(&sb, l.Chunks, visitCount, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func renderChunks(sb *strings.Builder, chunks []LineChunk, visitCount uint32, data *FollowData) error {
	for _, c := range chunks {
		if err := renderChunk(sb, c, visitCount, data); err != nil {
			return err
		}
	}
	return nil
}

func renderChunk(sb *strings.Builder, c LineChunk, visitCount uint32, data *FollowData) error {
	switch c.Kind {
	case ChunkText:
		sb.WriteString(c.Text)
		return nil

	case ChunkExpr:
		v, err := c.Expr.Eval(data)
		if err != nil {
			return err
		}
		s, err := v.String(data)
		if err != nil {
			return err
		}
		sb.WriteString(s)
		return nil

	case ChunkConditional:
		ok, err := c.Cond.Eval(data)
		if err != nil {
			return err
		}
		if ok {
			return renderChunks(sb, c.IfChunks, visitCount, data)
		}
		return renderChunks(sb, c.ElseChunks, visitCount, data)

	case ChunkAlt:
		chosen := selectAlternative(c, visitCount)
		if chosen == nil {
			return nil
		}
		return renderChunks(sb, chosen, visitCount, data)

	default:
		return &InternalError{Msg: "unknown line chunk kind"}
	}
}

// selectAlternative picks the option list an alternative chunk renders on a
// node visited visitCount times (1-based: the first visit already counts).
// A visitCount of 0 means the line has never been reached yet and always
// selects the first option, matching how the follow engine increments a
// node's visit count before rendering its items.
func selectAlternative(c LineChunk, visitCount uint32) []LineChunk {
	n := len(c.Options)
	if n == 0 {
		return nil
	}
	idx := int(visitCount)
	if idx < 1 {
		idx = 1
	}
	idx--

	switch c.AltKind {
	case AltSequence:
		if idx >= n {
			idx = n - 1
		}
		return c.Options[idx]
	case AltOnce:
		if idx >= n {
			return nil
		}
		return c.Options[idx]
	case AltCycle:
		return c.Options[idx%n]
	default:
		return c.Options[0]
	}
}
