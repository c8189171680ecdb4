package loom

import (
	"strconv"
	"strings"
)

// VariableKind tags the value carried by a Variable.
type VariableKind int

const (
	KindInt VariableKind = iota
	KindFloat
	KindBool
	KindString
	KindAddress
	KindDivert
	// KindVarRef is a parser-internal placeholder: a bare identifier that the
	// Validator could not tie-break to a Location address, so it is resolved
	// by name against FollowData.Variables at evaluation time instead. The
	// Validator leaves identifiers that name a global variable in this form,
	// so it does appear in a validated node graph. String, IsTruthy, the
	// arithmetic operators and Compare resolve it by name when they use it.
	KindVarRef
)

func (k VariableKind) String() string {
	switch k {
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindBool:
		return "Bool"
	case KindString:
		return "String"
	case KindAddress:
		return "Address"
	case KindDivert:
		return "Divert"
	case KindVarRef:
		return "VarRef"
	default:
		return "Unknown"
	}
}

// Variable is a tagged sum over the value kinds a story's lines, conditions
// and expressions can operate on. It is deliberately not a class hierarchy:
// pattern-matching over Kind is what makes "a Divert cannot be printed"
// enforceable at every call site instead of just some of them.
type Variable struct {
	Kind      VariableKind
	IntVal    int32
	FloatVal  float32
	BoolVal   bool
	StringVal string
	AddrVal   Address
}

// isNumericKind reports whether a and b are both Int and/or Float, the one
// pair of kinds the widening rule already treats as interchangeable
// everywhere else (arithmetic, comparison); SetVariable extends that same
// leniency to a later assignment that switches a variable between them.
func isNumericKind(a, b VariableKind) bool {
	isNum := func(k VariableKind) bool { return k == KindInt || k == KindFloat }
	return isNum(a) && isNum(b)
}

func NewInt(v int32) Variable          { return Variable{Kind: KindInt, IntVal: v} }
func NewFloat(v float32) Variable      { return Variable{Kind: KindFloat, FloatVal: v} }
func NewBool(v bool) Variable          { return Variable{Kind: KindBool, BoolVal: v} }
func NewString(v string) Variable      { return Variable{Kind: KindString, StringVal: v} }
func NewAddressVar(a Address) Variable { return Variable{Kind: KindAddress, AddrVal: a} }
func NewDivertVar(a Address) Variable  { return Variable{Kind: KindDivert, AddrVal: a} }
func NewVarRef(name string) Variable   { return Variable{Kind: KindVarRef, StringVal: name} }

// resolveRef looks up a KindVarRef placeholder against FollowData.Variables
// by name, returning the underlying Variable. Every other kind resolves to
// itself.
func resolveRef(v Variable, data *FollowData) (Variable, error) {
	if v.Kind != KindVarRef {
		return v, nil
	}
	resolved, ok := data.Variables[v.StringVal]
	if !ok {
		return Variable{}, &InternalError{Msg: "undeclared variable referenced: " + v.StringVal}
	}
	return resolved, nil
}

// String renders the variable's printable form. Rendering a Divert is
// always an error: it exists to carry control flow, never to be shown to a
// reader.
func (v Variable) String(data *FollowData) (string, error) {
	if v.Kind == KindVarRef {
		resolved, err := resolveRef(v, data)
		if err != nil {
			return "", err
		}
		return resolved.String(data)
	}

	switch v.Kind {
	case KindAddress:
		count, err := GetVisitCount(v.AddrVal, data)
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(uint64(count), 10), nil
	case KindBool:
		if v.BoolVal {
			return "1", nil
		}
		return "0", nil
	case KindDivert:
		return "", &PrintInvalidVariableError{Kind: v.Kind.String()}
	case KindFloat:
		// float32 precision round-trips through strconv's shortest
		// representation the same way Rust's default f32 formatting does:
		// 1.0000000003 as a float32 loses enough precision to print as "1".
		return strconv.FormatFloat(float64(v.FloatVal), 'g', -1, 32), nil
	case KindInt:
		return strconv.FormatInt(int64(v.IntVal), 10), nil
	case KindString:
		return v.StringVal, nil
	default:
		return "", &InternalError{Msg: "unknown variable kind"}
	}
}

// IsTruthy evaluates the boolean-context rule: Int 0, Float 0.0, empty
// string and Bool false are false, an Address is true when its visit count
// is nonzero, and every other value is true. Evaluating a Divert in boolean
// context is an error.
func (v Variable) IsTruthy(data *FollowData) (bool, error) {
	if v.Kind == KindVarRef {
		resolved, err := resolveRef(v, data)
		if err != nil {
			return false, err
		}
		return resolved.IsTruthy(data)
	}

	switch v.Kind {
	case KindInt:
		return v.IntVal != 0, nil
	case KindFloat:
		return v.FloatVal != 0, nil
	case KindBool:
		return v.BoolVal, nil
	case KindString:
		return v.StringVal != "", nil
	case KindAddress:
		count, err := GetVisitCount(v.AddrVal, data)
		if err != nil {
			return false, err
		}
		return count != 0, nil
	case KindDivert:
		return false, &InvalidExpressionError{Operator: "bool", LeftKind: v.Kind.String(), RightKind: v.Kind.String()}
	default:
		return false, &InternalError{Msg: "unknown variable kind"}
	}
}

// GetVisitCount resolves an Address variable to its visit count against
// FollowData. Only validated Location addresses carry a meaningful count;
// everything else is an internal error, since parsing should never have
// produced an Address variable over anything but a Location.
func GetVisitCount(addr Address, data *FollowData) (uint32, error) {
	if !addr.IsLocation() {
		return 0, &InternalError{Msg: "address variable does not resolve to a location: " + addr.String()}
	}
	knot, stitch, err := addr.Location()
	if err != nil {
		return 0, err
	}
	return data.VisitCount(knot, stitch), nil
}

// numeric widens a variable to a numeric (int or float) pair usable for
// arithmetic, resolving Address variables to their visit count first.
func numeric(v Variable, data *FollowData) (isFloat bool, i int32, f float32, err error) {
	if v.Kind == KindVarRef {
		resolved, err := resolveRef(v, data)
		if err != nil {
			return false, 0, 0, err
		}
		v = resolved
	}

	switch v.Kind {
	case KindInt:
		return false, v.IntVal, 0, nil
	case KindFloat:
		return true, 0, v.FloatVal, nil
	case KindAddress:
		count, err := GetVisitCount(v.AddrVal, data)
		if err != nil {
			return false, 0, 0, err
		}
		return false, int32(count), 0, nil
	default:
		return false, 0, 0, &InvalidExpressionError{Operator: "numeric", LeftKind: v.Kind.String(), RightKind: v.Kind.String()}
	}
}

func arith(op string, a, b Variable, data *FollowData) (Variable, error) {
	var err error
	a, err = resolveRef(a, data)
	if err != nil {
		return Variable{}, err
	}
	b, err = resolveRef(b, data)
	if err != nil {
		return Variable{}, err
	}

	if op == "+" && (a.Kind == KindString || b.Kind == KindString) {
		as, err := a.String(data)
		if err != nil {
			return Variable{}, err
		}
		bs, err := b.String(data)
		if err != nil {
			return Variable{}, err
		}
		return NewString(as + bs), nil
	}

	if a.Kind == KindDivert || b.Kind == KindDivert {
		return Variable{}, &InvalidExpressionError{Operator: op, LeftKind: a.Kind.String(), RightKind: b.Kind.String()}
	}

	aFloat, ai, af, err := numeric(a, data)
	if err != nil {
		return Variable{}, err
	}
	bFloat, bi, bf, err := numeric(b, data)
	if err != nil {
		return Variable{}, err
	}

	if !aFloat && !bFloat {
		switch op {
		case "+":
			return NewInt(ai + bi), nil
		case "-":
			return NewInt(ai - bi), nil
		case "*":
			return NewInt(ai * bi), nil
		case "/":
			if bi == 0 {
				return Variable{}, &InvalidExpressionError{Operator: op, LeftKind: "Int(divide by zero)", RightKind: "Int"}
			}
			return NewInt(ai / bi), nil
		case "%":
			if bi == 0 {
				return Variable{}, &InvalidExpressionError{Operator: op, LeftKind: "Int(divide by zero)", RightKind: "Int"}
			}
			return NewInt(ai % bi), nil
		}
	}

	af2, bf2 := af, bf
	if !aFloat {
		af2 = float32(ai)
	}
	if !bFloat {
		bf2 = float32(bi)
	}

	switch op {
	case "+":
		return NewFloat(af2 + bf2), nil
	case "-":
		return NewFloat(af2 - bf2), nil
	case "*":
		return NewFloat(af2 * bf2), nil
	case "/":
		if bf2 == 0 {
			return Variable{}, &InvalidExpressionError{Operator: op, LeftKind: "Float(divide by zero)", RightKind: "Float"}
		}
		return NewFloat(af2 / bf2), nil
	case "%":
		if bf2 == 0 {
			return Variable{}, &InvalidExpressionError{Operator: op, LeftKind: "Float(divide by zero)", RightKind: "Float"}
		}
		return NewFloat(mod32(af2, bf2)), nil
	default:
		return Variable{}, &InternalError{Msg: "unknown arithmetic operator " + op}
	}
}

func mod32(a, b float32) float32 {
	q := a / b
	trunc := float32(int64(q))
	return a - trunc*b
}

// Add, Sub, Mul, Div and Mod implement the numeric operators. Add also
// implements string concatenation, coercing the other side to its print
// form.
func Add(a, b Variable, data *FollowData) (Variable, error) { return arith("+", a, b, data) }
func Sub(a, b Variable, data *FollowData) (Variable, error) { return arith("-", a, b, data) }
func Mul(a, b Variable, data *FollowData) (Variable, error) { return arith("*", a, b, data) }
func Div(a, b Variable, data *FollowData) (Variable, error) { return arith("/", a, b, data) }
func Mod(a, b Variable, data *FollowData) (Variable, error) { return arith("%", a, b, data) }

// Negate implements unary minus.
func Negate(a Variable, data *FollowData) (Variable, error) {
	aFloat, ai, af, err := numeric(a, data)
	if err != nil {
		return Variable{}, err
	}
	if aFloat {
		return NewFloat(-af), nil
	}
	return NewInt(-ai), nil
}

// Compare implements the comparison operators: == != < <= > >=. String
// comparisons are byte-wise (Go's native string ordering already is).
// Comparing incompatible kinds is an error, except for numeric widening
// between Int and Float.
func Compare(op string, a, b Variable, data *FollowData) (bool, error) {
	var err error
	a, err = resolveRef(a, data)
	if err != nil {
		return false, err
	}
	b, err = resolveRef(b, data)
	if err != nil {
		return false, err
	}

	if a.Kind == KindDivert || b.Kind == KindDivert {
		return false, &InvalidExpressionError{Operator: op, LeftKind: a.Kind.String(), RightKind: b.Kind.String()}
	}

	if a.Kind == KindString || b.Kind == KindString {
		if a.Kind != KindString || b.Kind != KindString {
			return false, &InvalidExpressionError{Operator: op, LeftKind: a.Kind.String(), RightKind: b.Kind.String()}
		}
		return compareOrdered(op, strings.Compare(a.StringVal, b.StringVal))
	}

	if a.Kind == KindBool || b.Kind == KindBool {
		if a.Kind != KindBool || b.Kind != KindBool {
			return false, &InvalidExpressionError{Operator: op, LeftKind: a.Kind.String(), RightKind: b.Kind.String()}
		}
		switch op {
		case "==":
			return a.BoolVal == b.BoolVal, nil
		case "!=":
			return a.BoolVal != b.BoolVal, nil
		default:
			return false, &InvalidExpressionError{Operator: op, LeftKind: a.Kind.String(), RightKind: b.Kind.String()}
		}
	}

	aFloat, ai, af, err := numeric(a, data)
	if err != nil {
		return false, err
	}
	bFloat, bi, bf, err := numeric(b, data)
	if err != nil {
		return false, err
	}

	if !aFloat && !bFloat {
		return compareOrdered(op, int(ai)-int(bi))
	}

	af2, bf2 := af, bf
	if !aFloat {
		af2 = float32(ai)
	}
	if !bFloat {
		bf2 = float32(bi)
	}
	switch {
	case af2 < bf2:
		return compareOrdered(op, -1)
	case af2 > bf2:
		return compareOrdered(op, 1)
	default:
		return compareOrdered(op, 0)
	}
}

func compareOrdered(op string, cmp int) (bool, error) {
	switch op {
	case "==":
		return cmp == 0, nil
	case "!=":
		return cmp != 0, nil
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	default:
		return false, &InternalError{Msg: "unknown comparison operator " + op}
	}
}
