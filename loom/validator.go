package loom

// Validator performs the post-parse pass over a knot/stitch graph: it
// resolves every Raw Address reachable from a Line, Expression or Condition
// against the knot/stitch/global-variable name tables, collecting every
// failure instead of stopping at the first one, and records non-fatal
// warnings (an always-false choice condition, a fallback branch shadowed by
// an earlier one) onto a Logger.
type Validator struct {
	Knots   *KnotSet
	Globals map[string]bool
	Logger  *Logger
}

// NewValidator builds a Validator over the given knot registry and global
// variable name set.
func NewValidator(knots *KnotSet, globals map[string]bool) *Validator {
	return &Validator{Knots: knots, Globals: globals, Logger: &Logger{}}
}

func (v *Validator) ctx() *AddressContext {
	return &AddressContext{Knots: v.Knots, Globals: v.Globals}
}

// ValidateAll walks every knot's stitches, resolving addresses in place and
// returning every resolution failure as a single ValidationErrors. A nil
// return means the graph is fully validated and safe to follow.
func (v *Validator) ValidateAll() error {
	var errs []error
	for _, knot := range v.Knots.All() {
		for _, stitchName := range knot.StitchOrder {
			root := knot.Stitches[stitchName]
			v.validateItems(knot.Name, root.Items, &errs)
		}
	}
	if len(errs) > 0 {
		return &ValidationErrors{Errors: errs}
	}
	return nil
}

func (v *Validator) validateItems(currentKnot string, items []NodeItem, errs *[]error) {
	for i := range items {
		item := &items[i]
		switch item.Kind {
		case ItemLine:
			v.validateLine(currentKnot, item.Line, errs)
		case ItemBranchingPoint:
			v.validateBranchingPoint(currentKnot, item.Branches, errs)
		}
	}
}

func (v *Validator) validateBranchingPoint(currentKnot string, branches []*Branch, errs *[]error) {
	fallbackSeen := false
	stickyUnconditionalSeen := false
	for _, b := range branches {
		if b.Choice.Cond != nil {
			v.validateCondition(currentKnot, b.Choice.Cond, errs)
			if b.Choice.Cond.IsProvablyAlwaysFalse() {
				v.Logger.Add(KindAlwaysFalseCondition, 0, "choice condition can never be satisfied")
			}
		}
		if b.Choice.SelectionText != nil {
			v.validateLine(currentKnot, b.Choice.SelectionText, errs)
		}
		if b.Choice.DisplayText != nil {
			v.validateLine(currentKnot, b.Choice.DisplayText, errs)
		}
		if b.Choice.IsFallback {
			switch {
			case fallbackSeen:
				v.Logger.Add(KindUnreachableFallback, 0, "fallback choice is unreachable: an earlier fallback at this branching point always wins")
			case stickyUnconditionalSeen:
				// A sticky choice with no condition is eligible on every
				// presentation, so the presented set is never empty and the
				// fallback can never fire.
				v.Logger.Add(KindUnreachableFallback, 0, "fallback choice is unreachable: a sticky unconditional choice precedes it")
			}
			fallbackSeen = true
		} else if b.Choice.IsSticky && b.Choice.Cond == nil {
			stickyUnconditionalSeen = true
		}
		v.validateItems(currentKnot, b.Items, errs)
	}
}

func (v *Validator) validateLine(currentKnot string, line *Line, errs *[]error) {
	if line == nil {
		return
	}
	v.validateChunks(currentKnot, line.Chunks, errs)
	if line.Divert != nil {
		resolved, err := line.Divert.Validate(currentKnot, v.ctx())
		if err != nil {
			*errs = append(*errs, err)
			return
		}
		*line.Divert = resolved
	}
}

func (v *Validator) validateChunks(currentKnot string, chunks []LineChunk, errs *[]error) {
	for i := range chunks {
		c := &chunks[i]
		switch c.Kind {
		case ChunkExpr:
			v.validateExpr(currentKnot, c.Expr, errs)
		case ChunkConditional:
			if c.Cond != nil {
				v.validateCondition(currentKnot, c.Cond, errs)
			}
			v.validateChunks(currentKnot, c.IfChunks, errs)
			v.validateChunks(currentKnot, c.ElseChunks, errs)
		case ChunkAlt:
			for _, opt := range c.Options {
				v.validateChunks(currentKnot, opt, errs)
			}
		}
	}
}

func (v *Validator) validateCondition(currentKnot string, c *Condition, errs *[]error) {
	if c == nil {
		return
	}
	switch c.Kind {
	case CondLeaf:
		v.validateExpr(currentKnot, c.Left, errs)
		if c.Op != "" {
			v.validateExpr(currentKnot, c.Right, errs)
		}
	case CondAnd, CondOr:
		for _, operand := range c.Operands {
			v.validateCondition(currentKnot, operand, errs)
		}
	case CondNot:
		v.validateCondition(currentKnot, c.Inner, errs)
	}
}

func (v *Validator) validateExpr(currentKnot string, e *Expression, errs *[]error) {
	if e == nil {
		return
	}
	switch e.Kind {
	case ExprLeaf:
		v.validateLeaf(currentKnot, &e.Leaf, errs)
	case ExprParen, ExprUnaryMinus:
		v.validateExpr(currentKnot, e.Inner, errs)
	case ExprBinaryOp:
		v.validateExpr(currentKnot, e.Left, errs)
		v.validateExpr(currentKnot, e.Right, errs)
	}
}

func (v *Validator) validateLeaf(currentKnot string, leaf *Variable, errs *[]error) {
	switch leaf.Kind {
	case KindAddress, KindDivert:
		resolved, err := leaf.AddrVal.Validate(currentKnot, v.ctx())
		if err != nil {
			*errs = append(*errs, err)
			return
		}
		leaf.AddrVal = resolved

	case KindVarRef:
		addr := ParseAddress(leaf.StringVal, currentKnot)
		resolved, err := addr.Validate(currentKnot, v.ctx())
		if err != nil {
			*errs = append(*errs, err)
			return
		}
		if resolved.IsLocation() {
			*leaf = NewAddressVar(resolved)
		}
		// A global-variable resolution is left as KindVarRef: it is
		// resolved by name against FollowData.Variables at Eval time,
		// which is how the host's late-bound variable values are seen.
	}
}
