package loom

import (
	"encoding/json"
	"strings"
)

type addrState int

const (
	addrRawBare addrState = iota
	addrRawKnotStitch
	addrRawStitchLocal
	addrLocation
	addrGlobalVariable
	addrEnd
	addrDone
)

// Address is a qualified location reference: `knot`, `knot.stitch`, or a
// stitch-local `.stitch`. It starts out Raw (whatever the author typed) and
// becomes Validated after a successful call to Validate. Every Address
// reachable from a validated node graph is in the Validated state.
type Address struct {
	state  addrState
	knot   string
	stitch string
	name   string
}

// AddressContext supplies the name tables Validate needs to resolve a bare
// identifier: the knot/stitch registry and the set of declared global
// variable names.
type AddressContext struct {
	Knots   *KnotSet
	Globals map[string]bool
}

// ParseAddress splits a raw, author-typed target into its Raw form. It does
// not resolve anything; call Validate against an AddressContext to do that.
func ParseAddress(raw string, currentKnot string) Address {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, ".") {
		return Address{state: addrRawStitchLocal, knot: currentKnot, stitch: strings.TrimPrefix(raw, ".")}
	}

	if idx := strings.Index(raw, "."); idx >= 0 {
		return Address{state: addrRawKnotStitch, knot: raw[:idx], stitch: raw[idx+1:]}
	}

	return Address{state: addrRawBare, name: raw}
}

// LocationAddress builds an already-validated Location address directly,
// for use by the parser when it creates each stitch's RootNode address (and
// by tests).
func LocationAddress(knot, stitch string) Address {
	return Address{state: addrLocation, knot: knot, stitch: stitch}
}

// EndAddress and DoneAddress are the two terminal addresses.
func EndAddress() Address  { return Address{state: addrEnd} }
func DoneAddress() Address { return Address{state: addrDone} }

// GlobalVariableAddress builds an already-validated reference to a global variable.
func GlobalVariableAddress(name string) Address {
	return Address{state: addrGlobalVariable, name: name}
}

// IsValidated reports whether this Address is in one of the validated states.
func (a Address) IsValidated() bool {
	switch a.state {
	case addrLocation, addrGlobalVariable, addrEnd, addrDone:
		return true
	default:
		return false
	}
}

func (a Address) IsLocation() bool       { return a.state == addrLocation }
func (a Address) IsGlobalVariable() bool { return a.state == addrGlobalVariable }
func (a Address) IsEnd() bool            { return a.state == addrEnd }
func (a Address) IsDone() bool           { return a.state == addrDone }

// Location returns the knot/stitch pair of a validated Location address. It
// returns an InternalError if called on anything else, since that indicates
// an address was used before validation or after resolving to a non-location.
func (a Address) Location() (knot, stitch string, err error) {
	if a.state != addrLocation {
		return "", "", &InternalError{Msg: "Address.Location called on a non-location address"}
	}
	return a.knot, a.stitch, nil
}

// VariableName returns the name of a validated GlobalVariable address.
func (a Address) VariableName() (string, error) {
	if a.state != addrGlobalVariable {
		return "", &InternalError{Msg: "Address.VariableName called on a non-global-variable address"}
	}
	return a.name, nil
}

// Validate resolves a Raw address against the knot/stitch and global
// variable name tables. When a single bare identifier is ambiguous, the
// tie-break order is:
//
//  1. a stitch of the current knot
//  2. a knot name (resolving to its default stitch)
//  3. a global variable name
//  4. the reserved words END and DONE
//
// Calling Validate on an already-validated Address is a no-op.
func (a Address) Validate(currentKnot string, ctx *AddressContext) (Address, error) {
	if a.IsValidated() {
		return a, nil
	}

	switch a.state {
	case addrRawKnotStitch, addrRawStitchLocal:
		knotName := a.knot
		knot, ok := ctx.Knots.Get(knotName)
		if !ok {
			return Address{}, &InvalidAddressError{Reason: "unknown knot", Name: knotName}
		}
		if a.stitch == "" {
			return Address{state: addrLocation, knot: knotName, stitch: ""}, nil
		}
		if !knot.HasStitch(a.stitch) {
			return Address{}, &InvalidAddressError{Reason: "unknown stitch", Name: knotName + "." + a.stitch}
		}
		return Address{state: addrLocation, knot: knotName, stitch: a.stitch}, nil

	case addrRawBare:
		if knot, ok := ctx.Knots.Get(currentKnot); ok && knot.HasStitch(a.name) {
			return Address{state: addrLocation, knot: currentKnot, stitch: a.name}, nil
		}
		if _, ok := ctx.Knots.Get(a.name); ok {
			return Address{state: addrLocation, knot: a.name, stitch: ""}, nil
		}
		if ctx.Globals != nil && ctx.Globals[a.name] {
			return Address{state: addrGlobalVariable, name: a.name}, nil
		}
		switch strings.ToUpper(a.name) {
		case "END":
			return Address{state: addrEnd}, nil
		case "DONE":
			return Address{state: addrDone}, nil
		}
		return Address{}, &InvalidAddressError{Reason: "unresolved address", Name: a.name}

	default:
		return Address{}, &InternalError{Msg: "unreachable address raw state"}
	}
}

// addressJSON is Address's wire form. Address keeps its fields unexported
// so no caller can construct one outside ParseAddress/Validate, but a
// Variable of KindAddress (or, before SetVariable rejects it, KindDivert)
// still needs to round-trip through Story.Snapshot's JSON encoding without
// silently dropping its target.
type addressJSON struct {
	State  addrState `json:"state"`
	Knot   string    `json:"knot,omitempty"`
	Stitch string    `json:"stitch,omitempty"`
	Name   string    `json:"name,omitempty"`
}

func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(addressJSON{State: a.state, Knot: a.knot, Stitch: a.stitch, Name: a.name})
}

func (a *Address) UnmarshalJSON(data []byte) error {
	var w addressJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	a.state = w.State
	a.knot = w.Knot
	a.stitch = w.Stitch
	a.name = w.Name
	return nil
}

// Equals compares two addresses by value.
func (a Address) Equals(b Address) bool {
	return a.state == b.state && a.knot == b.knot && a.stitch == b.stitch && a.name == b.name
}

// String renders a validated address as `knot.stitch`, eliding the default
// stitch, the reserved word for End/Done addresses, or the variable name for
// a GlobalVariable address.
func (a Address) String() string {
	switch a.state {
	case addrLocation:
		if a.stitch == "" {
			return a.knot
		}
		return a.knot + "." + a.stitch
	case addrGlobalVariable:
		return a.name
	case addrEnd:
		return "END"
	case addrDone:
		return "DONE"
	default:
		if a.stitch != "" {
			return a.knot + "." + a.stitch
		}
		return a.name
	}
}
