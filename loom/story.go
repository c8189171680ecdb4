package loom

import (
	"github.com/google/uuid"
)

// maxDivertChain bounds the number of divert- or auto-fallback-induced
// iterations a single Resume performs before giving up with InfiniteLoop,
// protecting the host from a script whose diverts cycle without ever
// reaching a line, choice, or ending.
const maxDivertChain = 1000

// PromptKind discriminates what Resume is asking the host to do next.
type PromptKind int

const (
	PromptChoice PromptKind = iota
	PromptDone
)

// Prompt is what Resume returns: either a choice list to present, or Done.
type Prompt struct {
	Kind    PromptKind
	Choices []PresentedChoice
}

// Story is the public runtime surface over a parsed, validated knot/stitch
// graph: it owns the current position, the follow data (visit counts and
// variables), the pending-choice mapping, and the accumulated log.
type Story struct {
	knots  *KnotSet
	logger *Logger

	sessionID uuid.UUID

	started    bool
	done       bool
	knotName   string
	stitchName string
	stack      []int

	data *FollowData

	lastPresentedActual []int
	lastChoices         []PresentedChoice
	hasPendingPrompt    bool

	pendingChoiceActual int
	hasPendingChoice    bool
}

// NewStory wraps a validated knot/stitch graph into a ready-to-start Story.
// variables seeds the global variable table (e.g. script-declared `VAR`
// defaults); it is copied, not retained.
func NewStory(knots *KnotSet, logger *Logger, variables map[string]Variable) *Story {
	data := NewFollowData()
	for k, v := range variables {
		data.Variables[k] = v
	}
	return &Story{
		knots:     knots,
		logger:    logger,
		sessionID: uuid.New(),
		data:      data,
	}
}

// SessionID returns the identifier assigned to this Story instance at
// construction, stable for the life of the process (not persisted across
// snapshot round-trips; a restored Story gets a fresh one).
func (s *Story) SessionID() uuid.UUID { return s.sessionID }

// Log returns the accumulated non-fatal diagnostics.
func (s *Story) Log() []LogMessage { return s.logger.Messages() }

// Start moves the story to its first knot's first stitch. It is an error to
// call Start twice.
func (s *Story) Start() error {
	if s.started {
		return ErrCannotStartTwice
	}
	first, ok := s.knots.First()
	if !ok {
		return &InternalError{Msg: "story has no knots"}
	}
	stitch := first.StitchOrder[0]
	s.knotName = first.Name
	s.stitchName = stitch
	s.stack = []int{0}
	s.started = true
	return nil
}

func (s *Story) currentRoot() (*RootNode, error) {
	knot, ok := s.knots.Get(s.knotName)
	if !ok {
		return nil, &InternalError{Msg: "current knot not found: " + s.knotName}
	}
	root, ok := knot.Stitches[s.stitchName]
	if !ok {
		return nil, &InternalError{Msg: "current stitch not found: " + s.knotName + "." + s.stitchName}
	}
	return root, nil
}

// Resume follows the graph from the current position, handling diverts and
// stitch fall-through internally, until a choice must be presented or the
// story ends. Rendered lines are appended to buf.
func (s *Story) Resume(buf *[]Line) (Prompt, error) {
	if !s.started {
		return Prompt{}, ErrResumedBeforeStart
	}
	if s.done {
		return Prompt{Kind: PromptDone}, nil
	}
	if s.hasPendingPrompt && !s.hasPendingChoice {
		// Resume without an intervening MakeChoice re-presents the same
		// choices; the position stack stays frozen at the branching point
		// and no visit count moves.
		return Prompt{Kind: PromptChoice, Choices: s.lastChoices}, nil
	}

	var next Next
	var err error

	if s.hasPendingChoice {
		choiceIdx := s.pendingChoiceActual
		s.hasPendingChoice = false
		s.hasPendingPrompt = false

		root, rerr := s.currentRoot()
		if rerr != nil {
			return Prompt{}, rerr
		}
		next, err = FollowWithChoice(root, choiceIdx, &s.stack, s.data, s.logger, buf)
		if err != nil {
			return Prompt{}, err
		}
		if p, handled, perr := s.handleOutcome(next, buf); handled {
			return p, perr
		}
	} else {
		root, rerr := s.currentRoot()
		if rerr != nil {
			return Prompt{}, rerr
		}
		next, err = Follow(root, &s.stack, s.data, s.logger, buf)
		if err != nil {
			return Prompt{}, err
		}
		if p, handled, perr := s.handleOutcome(next, buf); handled {
			return p, perr
		}
	}

	return s.runDivertLoop(buf)
}

// handleOutcome reacts to a non-Divert Next immediately: a ChoiceSet becomes
// a Prompt, a Done triggers stitch fall-through before falling into the
// divert loop. It returns handled=false when the caller still needs to
// dispatch a divert through runDivertLoop.
func (s *Story) handleOutcome(next Next, buf *[]Line) (Prompt, bool, error) {
	switch next.Kind {
	case NextChoiceSet:
		s.lastPresentedActual = next.ActualBranchIdx
		s.lastChoices = next.Choices
		s.hasPendingPrompt = true
		return Prompt{Kind: PromptChoice, Choices: next.Choices}, true, nil
	case NextDone:
		if advanced, err := s.fallThrough(); err != nil {
			return Prompt{}, true, err
		} else if !advanced {
			s.done = true
			return Prompt{Kind: PromptDone}, true, nil
		}
		return Prompt{}, false, nil
	case NextDivert:
		if err := s.applyDivert(next.DivertAddr); err != nil {
			return Prompt{}, true, err
		}
		if s.done {
			// End/Done sets s.done without resetting the position stack, since
			// there is nowhere left to resume from; stop here rather than
			// let runDivertLoop re-follow a stack that may still be nested
			// inside the branch the divert fired from.
			return Prompt{Kind: PromptDone}, true, nil
		}
		return Prompt{}, false, nil
	default:
		return Prompt{}, true, &InternalError{Msg: "follow returned an unrecognized outcome"}
	}
}

// runDivertLoop keeps following from the (possibly just-diverted) current
// position until a choice, a completion with no further fall-through, or the
// chain length guard trips.
func (s *Story) runDivertLoop(buf *[]Line) (Prompt, error) {
	for i := 0; i < maxDivertChain; i++ {
		root, err := s.currentRoot()
		if err != nil {
			return Prompt{}, err
		}
		next, err := Follow(root, &s.stack, s.data, s.logger, buf)
		if err != nil {
			return Prompt{}, err
		}
		if p, handled, err := s.handleOutcome(next, buf); handled {
			return p, err
		}
	}
	return Prompt{}, &InfiniteLoopError{DivertChainLength: maxDivertChain}
}

// applyDivert dispatches a Divert Next at the Story level: the terminal
// addresses end the story, a Location moves the current position to the
// target stitch with a fresh stack.
func (s *Story) applyDivert(addr Address) error {
	switch {
	case addr.IsDone():
		s.done = true
		return nil
	case addr.IsEnd():
		s.done = true
		return nil
	case addr.IsLocation():
		knot, stitch, err := addr.Location()
		if err != nil {
			return err
		}
		s.knotName = knot
		s.stitchName = stitch
		s.stack = []int{0}
		return nil
	default:
		return &InternalError{Msg: "divert to an unvalidated or non-location address: " + addr.String()}
	}
}

// fallThrough: when a stitch completes with no divert, the
// story falls through to the next stitch in the owning knot's declaration
// order, or ends if there is none. It returns advanced=true when it moved to
// a new stitch.
func (s *Story) fallThrough() (advanced bool, err error) {
	knot, ok := s.knots.Get(s.knotName)
	if !ok {
		return false, &InternalError{Msg: "current knot not found: " + s.knotName}
	}
	next, ok := knot.NextStitch(s.stitchName)
	if !ok {
		return false, nil
	}
	s.stitchName = next
	s.stack = []int{0}
	return true, nil
}

// MakeChoice records the host's selection against the most recently
// presented choice set. The actual effect is applied on the next Resume
// call.
func (s *Story) MakeChoice(presentedIndex int) error {
	if !s.hasPendingPrompt {
		return ErrMadeChoiceWithoutChoice
	}
	if presentedIndex < 0 || presentedIndex >= len(s.lastPresentedActual) {
		return &InvalidChoiceError{PresentedIndex: presentedIndex, PresentedLen: len(s.lastPresentedActual)}
	}
	s.pendingChoiceActual = s.lastPresentedActual[presentedIndex]
	s.hasPendingChoice = true
	return nil
}

// GetVariable returns the current value of a global variable.
func (s *Story) GetVariable(name string) (Variable, bool) {
	v, ok := s.data.Variables[name]
	return v, ok
}

// SetVariable assigns a global variable's value. The first assignment for a
// name fixes its kind; later calls that attempt to change the kind are
// rejected, as is assigning a Divert.
func (s *Story) SetVariable(name string, v Variable) error {
	if v.Kind == KindDivert {
		return &InvalidExpressionError{Operator: "set_variable", LeftKind: "Divert", RightKind: v.Kind.String()}
	}
	if existing, ok := s.data.Variables[name]; ok && existing.Kind != v.Kind && !isNumericKind(existing.Kind, v.Kind) {
		return &InvalidExpressionError{Operator: "set_variable (type change)", LeftKind: existing.Kind.String(), RightKind: v.Kind.String()}
	}
	s.data.Variables[name] = v
	return nil
}
