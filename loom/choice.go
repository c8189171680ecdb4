package loom

// InternalChoice is the authored descriptor attached to a Branch: the text
// shown to the reader (which may differ from the text echoed back into the
// story once chosen, per the `[bracket]` split), its guard condition, and
// its stickiness. Both SelectionText and DisplayText are full Lines (not
// plain strings) since either may embed expressions or alternatives, e.g.
// `+ [Take the {item_name}]`.
//
// IsSticky (`+`) keeps the choice eligible after it has been taken;
// a once-only choice (`*`) drops out once its branch's visit count is
// nonzero. IsFallback marks a choice with no selectable text: it is never
// presented, only auto-selected when every other branch at its branching
// point is ineligible. The two flags are independent — a sticky fallback
// (`+ ->`) stays auto-selectable forever, a once-only one fires at most
// once.
type InternalChoice struct {
	SelectionText *Line // what the reader sees as the option
	DisplayText   *Line // what is appended to out_buffer once the option is taken
	Cond          *Condition
	IsSticky      bool
	IsFallback    bool
	Tags          []string
}

// PresentedChoice is what the host sees: a stable index into the current
// presentation list plus the text to show. The Story keeps the mapping from
// PresentedChoice.Index back to the branching point's actual branch index
// privately, so a host can never address a branch the engine didn't just
// offer.
type PresentedChoice struct {
	Index int
	Text  string
	Tags  []string
}
