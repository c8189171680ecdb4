package loom

import "fmt"

// ParseError is returned by ReadStoryFromString when the script text cannot
// be turned into a node graph.
type ParseError struct {
	Line int
	Kind string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d (%s): %s", e.Line, e.Kind, e.Msg)
}

// InvalidAddressError is raised by address validation (Address.Validate),
// which the Validator runs over the whole graph after parsing. No runtime
// path produces it: every divert is resolved before the story starts.
type InvalidAddressError struct {
	Reason string
	Name   string
	AtLine int // 0 means "no line information available"
}

func (e *InvalidAddressError) Error() string {
	if e.AtLine > 0 {
		return fmt.Sprintf("invalid address %q at line %d: %s", e.Name, e.AtLine, e.Reason)
	}
	return fmt.Sprintf("invalid address %q: %s", e.Name, e.Reason)
}

// InvalidChoiceError is returned when a host passes an out-of-range
// presentation index to Story.MakeChoice.
type InvalidChoiceError struct {
	PresentedIndex int
	PresentedLen   int
}

func (e *InvalidChoiceError) Error() string {
	return fmt.Sprintf("invalid choice: index %d, but only %d choices were presented", e.PresentedIndex, e.PresentedLen)
}

// PrintInvalidVariableError is raised when a Divert variable is rendered as text.
type PrintInvalidVariableError struct {
	Name string
	Kind string
}

func (e *PrintInvalidVariableError) Error() string {
	return fmt.Sprintf("cannot print variable %q of kind %s", e.Name, e.Kind)
}

// InvalidExpressionError is raised when an operator is applied to operand
// kinds that cannot support it (most commonly, any operator on a Divert).
type InvalidExpressionError struct {
	Operator  string
	LeftKind  string
	RightKind string
}

func (e *InvalidExpressionError) Error() string {
	return fmt.Sprintf("invalid expression: cannot apply %q to %s and %s", e.Operator, e.LeftKind, e.RightKind)
}

// InfiniteLoopError is raised when following the story performs more than
// the allowed number of divert- or auto-fallback-induced iterations within
// a single Resume call.
type InfiniteLoopError struct {
	DivertChainLength int
}

func (e *InfiniteLoopError) Error() string {
	return fmt.Sprintf("infinite loop guard tripped after %d chained diverts", e.DivertChainLength)
}

// InternalError marks an implementation bug rather than a user or host error:
// a malformed position stack, an address used before validation, or similar
// invariant violations that should never surface from a well-formed story.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error (this is a bug, please report it): %s", e.Msg)
}

// Sentinel errors for the Story lifecycle, which carry no extra data.
var (
	ErrResumedBeforeStart      = &lifecycleError{"resume called before start"}
	ErrCannotStartTwice        = &lifecycleError{"start called on an already-started story"}
	ErrMadeChoiceWithoutChoice = &lifecycleError{"make_choice called without a pending choice prompt"}
)

type lifecycleError struct {
	msg string
}

func (e *lifecycleError) Error() string { return e.msg }

// ValidationErrors aggregates every unresolved address the Validator found
// in a single pass, so a script author sees all of them at once instead of
// stopping at the first.
type ValidationErrors struct {
	Errors []error
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d validation errors, first: %s", len(e.Errors), e.Errors[0].Error())
}

func (e *ValidationErrors) Unwrap() []error {
	return e.Errors
}
