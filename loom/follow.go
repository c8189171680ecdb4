package loom

import "strings"

// NextKind discriminates the outcome of a follow/followWithChoice call.
type NextKind int

const (
	NextDone NextKind = iota
	NextDivert
	NextChoiceSet
)

// Next is the result of walking a Followable node as far as it can go
// without host input: either the node ran out of items, it hit a line
// carrying a trailing divert, or it hit a branching point with choices to
// present.
type Next struct {
	Kind            NextKind
	DivertAddr      Address
	Choices         []PresentedChoice
	ActualBranchIdx []int // parallel to Choices: actual branch index per presented choice
}

// appendRendered pushes a rendered line's text onto the output buffer. A
// trailing '\n' is appended to every emitted line unless its own glue-after
// marker or the next line's glue-before marker suppresses it, in which case
// the two lines concatenate directly with no separator.
func appendRendered(buf *[]Line, text string, src *Line) {
	glueBack := len(*buf) > 0 && ((*buf)[len(*buf)-1].GlueAfter || src.GlueBefore)

	suffix := "\n"
	if src.GlueAfter {
		suffix = ""
	}

	if glueBack {
		prev := &(*buf)[len(*buf)-1]
		// A previously finalized entry may already carry its trailing '\n';
		// drop it so the glued join has no newline between the two halves.
		prev.Chunks[0].Text = strings.TrimSuffix(prev.Chunks[0].Text, "\n")
		prev.Chunks[0].Text += text + suffix
		prev.Tags = append(prev.Tags, src.Tags...)
		prev.GlueAfter = src.GlueAfter
		return
	}

	*buf = append(*buf, Line{
		Chunks:     []LineChunk{{Kind: ChunkText, Text: text + suffix}},
		Tags:       src.Tags,
		GlueBefore: src.GlueBefore,
		GlueAfter:  src.GlueAfter,
	})
}

func incrementNodeVisit(node Followable, data *FollowData) {
	node.IncrementVisit()
	if rn, ok := node.(*RootNode); ok && rn.Addr.IsLocation() {
		knot, stitch, err := rn.Addr.Location()
		if err == nil {
			data.incrementVisitCount(knot, stitch)
		}
	}
}

func enterBranch(stack *[]int, branchIdx int) {
	*stack = append(*stack, branchIdx, 0)
}

func exitBranch(stack *[]int) {
	s := *stack
	s = s[:len(s)-2]
	s[len(s)-1]++
	*stack = s
}

// Follow walks node from the position recorded in *stack, rendering lines
// into buf, until it must suspend: it runs out of items (Done), it hits a
// divert (Divert), or it hits a branching point with a non-empty presented
// choice set (ChoiceSet). Branching points whose presented set is empty but
// which have an eligible fallback are resolved internally without
// suspending, per the no-prompt-on-fallback-only rule.
func Follow(node Followable, stack *[]int, data *FollowData, logger *Logger, buf *[]Line) (Next, error) {
	if len(*stack) == 0 {
		return Next{}, &InternalError{Msg: "follow called with an empty position stack"}
	}
	if (*stack)[len(*stack)-1] == 0 {
		incrementNodeVisit(node, data)
	}

	for {
		lastIdx := (*stack)[len(*stack)-1]
		item, ok := node.GetItem(lastIdx)
		if !ok {
			return Next{Kind: NextDone}, nil
		}

		switch item.Kind {
		case ItemLine:
			text, err := item.Line.Render(node.VisitCountValue(), data)
			if err != nil {
				return Next{}, err
			}
			// A line that renders to nothing (a bare divert, an exhausted
			// once-only alternative) contributes no buffer entry, unless its
			// tags or glue markers still matter to the host or a neighbor.
			if text != "" || len(item.Line.Tags) > 0 || item.Line.GlueBefore || item.Line.GlueAfter {
				appendRendered(buf, text, item.Line)
			}
			(*stack)[len(*stack)-1] = lastIdx + 1
			if item.Line.Divert != nil {
				return Next{Kind: NextDivert, DivertAddr: *item.Line.Divert}, nil
			}

		case ItemBranchingPoint:
			presented, actualIdx, fallbackIdx, hasFallback, err := presentChoices(item.Branches, data, logger)
			if err != nil {
				return Next{}, err
			}
			if len(presented) == 0 && hasFallback {
				enterBranch(stack, fallbackIdx)
				next, err := Follow(item.Branches[fallbackIdx], stack, data, logger, buf)
				if err != nil {
					return Next{}, err
				}
				if next.Kind != NextDone {
					return next, nil
				}
				exitBranch(stack)
				continue
			}
			return Next{Kind: NextChoiceSet, Choices: presented, ActualBranchIdx: actualIdx}, nil

		default:
			return Next{}, &InternalError{Msg: "unknown node item kind"}
		}
	}
}

// resumeAt re-descends stack, level by level, to the branching point the
// host was shown at position pos (recreating the same recursive descent
// the original forward Follow call performed), resolves the host's choice
// there, then unwinds back up exactly as follow's own internal fallback
// resolution does: a Done at any level pops that level's branch frame and
// resumes following the node that owns it, which may itself surface a
// further Done for the level above to handle the same way.
func resumeAt(node Followable, actualBranchIdx int, stack *[]int, pos int, data *FollowData, logger *Logger, buf *[]Line) (Next, error) {
	if pos == len(*stack)-1 {
		branches, ok := branchingPointAt(node, (*stack)[pos])
		if !ok {
			return Next{}, &InternalError{Msg: "position stack malformed: pending index is not a branching point"}
		}
		if actualBranchIdx < 0 || actualBranchIdx >= len(branches) {
			return Next{}, &InternalError{Msg: "resolved branch index out of range"}
		}
		enterBranch(stack, actualBranchIdx)
		next, err := Follow(branches[actualBranchIdx], stack, data, logger, buf)
		if err != nil {
			return Next{}, err
		}
		if next.Kind != NextDone {
			return next, nil
		}
		exitBranch(stack)
		return Follow(node, stack, data, logger, buf)
	}

	branches, ok := branchingPointAt(node, (*stack)[pos])
	if !ok {
		return Next{}, &InternalError{Msg: "position stack malformed: expected a branching point while descending"}
	}
	bIdx := (*stack)[pos+1]
	if bIdx < 0 || bIdx >= len(branches) {
		return Next{}, &InternalError{Msg: "position stack malformed: branch index out of range"}
	}
	next, err := resumeAt(branches[bIdx], actualBranchIdx, stack, pos+2, data, logger, buf)
	if err != nil {
		return Next{}, err
	}
	if next.Kind != NextDone {
		return next, nil
	}
	exitBranch(stack)
	return Follow(node, stack, data, logger, buf)
}

// FollowWithChoice resumes a story that suspended with a ChoiceSet: it
// re-descends stack to the branching point the host was shown, extends the
// stack into the branch named by actualBranchIdx (already mapped back from
// the host's presentation index by the Story), and continues following.
func FollowWithChoice(root Followable, actualBranchIdx int, stack *[]int, data *FollowData, logger *Logger, buf *[]Line) (Next, error) {
	return resumeAt(root, actualBranchIdx, stack, 0, data, logger, buf)
}

// presentChoices applies condition filtering, sticky/once-only exclusion,
// and the fallback partition. It returns the presented list in
// branch order alongside the actual branch index each entry maps back to,
// and the actual index of the first eligible fallback branch (if any).
func presentChoices(branches []*Branch, data *FollowData, logger *Logger) (presented []PresentedChoice, actualIdx []int, fallbackIdx int, hasFallback bool, err error) {
	fallbackIdx = -1
	for i, b := range branches {
		ok, cerr := b.Choice.Cond.Eval(data)
		if cerr != nil {
			return nil, nil, -1, false, cerr
		}
		if !ok {
			continue
		}
		if b.VisitCountValue() > 0 && !b.Choice.IsSticky {
			continue
		}

		if b.Choice.IsFallback {
			if !hasFallback {
				fallbackIdx = i
				hasFallback = true
			}
			continue
		}

		text := ""
		if b.Choice.SelectionText != nil {
			text, err = b.Choice.SelectionText.Render(b.VisitCountValue(), data)
			if err != nil {
				return nil, nil, -1, false, err
			}
		}
		presented = append(presented, PresentedChoice{Index: len(presented), Text: text, Tags: b.Choice.Tags})
		actualIdx = append(actualIdx, i)
	}
	return presented, actualIdx, fallbackIdx, hasFallback, nil
}
