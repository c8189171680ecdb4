package loom

// CondKind discriminates the node types of a Condition tree.
type CondKind int

const (
	CondLeaf CondKind = iota
	CondAnd
	CondOr
	CondNot
)

// Condition is a nested predicate tree over Expressions joined by and/or
// with negation. A leaf without a comparison operator is equivalent to
// `expr != 0` (truthiness). Evaluation is left-to-right and short-circuits
// within a combinator level; precedence is not > and > or, with
// parentheses (reflected directly in the tree shape built by the parser)
// overriding it.
type Condition struct {
	Kind CondKind

	// CondLeaf
	Left  *Expression
	Op    string // "", "==", "!=", "<", "<=", ">", ">="
	Right *Expression

	// CondAnd / CondOr
	Operands []*Condition

	// CondNot
	Inner *Condition
}

// NewLeafCondition builds a bare-expression leaf, equivalent to `expr != 0`.
func NewLeafCondition(expr *Expression) *Condition {
	return &Condition{Kind: CondLeaf, Left: expr}
}

// NewComparisonCondition builds an `left op right` leaf.
func NewComparisonCondition(left *Expression, op string, right *Expression) *Condition {
	return &Condition{Kind: CondLeaf, Left: left, Op: op, Right: right}
}

// NewAndCondition and NewOrCondition build combinator nodes over an ordered
// list of operands, evaluated left to right with short-circuiting.
func NewAndCondition(operands ...*Condition) *Condition {
	return &Condition{Kind: CondAnd, Operands: operands}
}

func NewOrCondition(operands ...*Condition) *Condition {
	return &Condition{Kind: CondOr, Operands: operands}
}

// NewNotCondition negates a nested condition.
func NewNotCondition(inner *Condition) *Condition {
	return &Condition{Kind: CondNot, Inner: inner}
}

// Eval evaluates the condition tree against data.
func (c *Condition) Eval(data *FollowData) (bool, error) {
	if c == nil {
		// An absent condition is always satisfied (an unconditional branch).
		return true, nil
	}

	switch c.Kind {
	case CondLeaf:
		if c.Op == "" {
			v, err := c.Left.Eval(data)
			if err != nil {
				return false, err
			}
			return v.IsTruthy(data)
		}
		left, err := c.Left.Eval(data)
		if err != nil {
			return false, err
		}
		right, err := c.Right.Eval(data)
		if err != nil {
			return false, err
		}
		return Compare(c.Op, left, right, data)

	case CondAnd:
		for _, operand := range c.Operands {
			ok, err := operand.Eval(data)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case CondOr:
		for _, operand := range c.Operands {
			ok, err := operand.Eval(data)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case CondNot:
		ok, err := c.Inner.Eval(data)
		if err != nil {
			return false, err
		}
		return !ok, nil

	default:
		return false, &InternalError{Msg: "unknown condition kind"}
	}
}

// IsProvablyAlwaysFalse performs a conservative static check the Validator
// uses to warn about choice conditions that can never be satisfied: a bare
// Bool(false) or Int(0)/Float(0)/String("") leaf with no operator, or a
// literal comparison between two constant leaves that evaluates to false.
// It never reports a false positive; conditions it cannot prove false
// return false here (meaning "not provably always false").
func (c *Condition) IsProvablyAlwaysFalse() bool {
	if c == nil {
		return false
	}
	switch c.Kind {
	case CondLeaf:
		if c.Op != "" {
			if !isConstantExpr(c.Left) || !isConstantExpr(c.Right) {
				return false
			}
			v, err := c.Left.Eval(nil)
			if err != nil {
				return false
			}
			w, err := c.Right.Eval(nil)
			if err != nil {
				return false
			}
			ok, err := Compare(c.Op, v, w, nil)
			return err == nil && !ok
		}
		if !isConstantExpr(c.Left) {
			return false
		}
		v, err := c.Left.Eval(nil)
		if err != nil {
			return false
		}
		truthy, err := v.IsTruthy(nil)
		return err == nil && !truthy
	case CondAnd:
		for _, operand := range c.Operands {
			if operand.IsProvablyAlwaysFalse() {
				return true
			}
		}
		return false
	case CondOr:
		for _, operand := range c.Operands {
			if !operand.IsProvablyAlwaysFalse() {
				return false
			}
		}
		return len(c.Operands) > 0
	case CondNot:
		return isProvablyAlwaysTrue(c.Inner)
	default:
		return false
	}
}

func isProvablyAlwaysTrue(c *Condition) bool {
	if c == nil {
		return true
	}
	if c.Kind == CondLeaf && c.Op == "" && isConstantExpr(c.Left) {
		v, err := c.Left.Eval(nil)
		if err != nil {
			return false
		}
		truthy, err := v.IsTruthy(nil)
		return err == nil && truthy
	}
	return false
}

// isConstantExpr reports whether an expression contains no Address leaves,
// meaning it can be evaluated without any FollowData (a nil data value is
// only safe to pass to Eval for such expressions).
func isConstantExpr(e *Expression) bool {
	if e == nil {
		return true
	}
	switch e.Kind {
	case ExprLeaf:
		return e.Leaf.Kind != KindAddress && e.Leaf.Kind != KindDivert && e.Leaf.Kind != KindVarRef
	case ExprParen, ExprUnaryMinus:
		return isConstantExpr(e.Inner)
	case ExprBinaryOp:
		return isConstantExpr(e.Left) && isConstantExpr(e.Right)
	default:
		return false
	}
}
