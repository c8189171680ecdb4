package loom

import (
	"encoding/json"
	"fmt"

	"github.com/cnf/structhash"
)

// Snapshot is the lossless, serializable capture of a Story's runtime
// state: current location, position stack, every nested visit_count (both
// the per-knot/stitch map and every Branch's own counter embedded in the
// graph), the variable table, the pending presented-choice mapping, and the
// log. Restoring a Snapshot into a fresh Story over the same graph and
// resuming it produces byte-identical subsequent output to resuming the
// original Story directly.
type Snapshot struct {
	Knot        string                       `json:"knot"`
	Stitch      string                       `json:"stitch"`
	Stack       []int                        `json:"stack"`
	Started     bool                         `json:"started"`
	Done        bool                         `json:"done"`
	VisitCounts map[string]map[string]uint32 `json:"visit_counts"`
	Variables   map[string]Variable          `json:"variables"`

	PresentedActual  []int             `json:"presented_actual,omitempty"`
	PresentedChoices []PresentedChoice `json:"presented_choices,omitempty"`
	HasPendingPrompt bool              `json:"has_pending_prompt"`
	PendingChoice    int               `json:"pending_choice,omitempty"`
	HasPendingChoice bool              `json:"has_pending_choice"`

	Log []LogMessage `json:"log"`

	// BranchVisits captures every Branch's own visit_count, keyed by its
	// position in the graph (knot, stitch, and the path of branch indices
	// leading to it), since that state lives on the graph itself rather
	// than on FollowData and would otherwise be lost across a restore.
	BranchVisits []BranchVisitRecord `json:"branch_visits"`
}

// BranchVisitRecord pins down one Branch's visit_count by the path used to
// reach it: the owning stitch, then alternating (item index, branch index)
// pairs descending from that stitch's RootNode.
type BranchVisitRecord struct {
	Knot       string `json:"knot"`
	Stitch     string `json:"stitch"`
	Path       []int  `json:"path"`
	VisitCount uint32 `json:"visit_count"`
}

// Snapshot captures the Story's current state. The knot/stitch graph
// itself is not serialized; Restore expects to be called against a Story
// built from the same script text.
func (s *Story) Snapshot() (Snapshot, error) {
	snap := Snapshot{
		Knot:             s.knotName,
		Stitch:           s.stitchName,
		Stack:            append([]int(nil), s.stack...),
		Started:          s.started,
		Done:             s.done,
		VisitCounts:      copyVisitCounts(s.data.VisitCounts),
		Variables:        copyVariables(s.data.Variables),
		PresentedActual:  append([]int(nil), s.lastPresentedActual...),
		PresentedChoices: append([]PresentedChoice(nil), s.lastChoices...),
		HasPendingPrompt: s.hasPendingPrompt,
		PendingChoice:    s.pendingChoiceActual,
		HasPendingChoice: s.hasPendingChoice,
		Log:              s.logger.Messages(),
	}
	for _, knot := range s.knots.All() {
		for _, stitchName := range knot.StitchOrder {
			root := knot.Stitches[stitchName]
			collectBranchVisits(knot.Name, stitchName, nil, root.Items, &snap.BranchVisits)
		}
	}
	return snap, nil
}

func collectBranchVisits(knot, stitch string, path []int, items []NodeItem, out *[]BranchVisitRecord) {
	for i, item := range items {
		if item.Kind != ItemBranchingPoint {
			continue
		}
		for b, branch := range item.Branches {
			branchPath := append(append([]int(nil), path...), i, b)
			*out = append(*out, BranchVisitRecord{
				Knot:       knot,
				Stitch:     stitch,
				Path:       branchPath,
				VisitCount: branch.VisitCount,
			})
			collectBranchVisits(knot, stitch, branchPath, branch.Items, out)
		}
	}
}

// Restore applies a Snapshot taken from a Story over the same script onto
// this Story, replacing its current state entirely.
func (s *Story) Restore(snap Snapshot) error {
	s.knotName = snap.Knot
	s.stitchName = snap.Stitch
	s.stack = append([]int(nil), snap.Stack...)
	s.started = snap.Started
	s.done = snap.Done
	s.data.VisitCounts = copyVisitCounts(snap.VisitCounts)
	s.data.Variables = copyVariables(snap.Variables)
	s.lastPresentedActual = append([]int(nil), snap.PresentedActual...)
	s.lastChoices = append([]PresentedChoice(nil), snap.PresentedChoices...)
	s.hasPendingPrompt = snap.HasPendingPrompt
	s.pendingChoiceActual = snap.PendingChoice
	s.hasPendingChoice = snap.HasPendingChoice

	s.logger = &Logger{}
	for _, m := range snap.Log {
		s.logger.Add(m.Kind, m.Line, "%s", m.Text)
	}

	for _, rec := range snap.BranchVisits {
		knot, ok := s.knots.Get(rec.Knot)
		if !ok {
			return &InternalError{Msg: "restore: unknown knot " + rec.Knot}
		}
		root, ok := knot.Stitches[rec.Stitch]
		if !ok {
			return &InternalError{Msg: "restore: unknown stitch " + rec.Knot + "." + rec.Stitch}
		}
		branch, err := branchAtPath(root.Items, rec.Path)
		if err != nil {
			return err
		}
		branch.VisitCount = rec.VisitCount
	}
	return nil
}

func branchAtPath(items []NodeItem, path []int) (*Branch, error) {
	if len(path) < 2 {
		return nil, &InternalError{Msg: "restore: malformed branch path"}
	}
	itemIdx, branchIdx := path[0], path[1]
	if itemIdx < 0 || itemIdx >= len(items) || items[itemIdx].Kind != ItemBranchingPoint {
		return nil, &InternalError{Msg: "restore: branch path does not resolve to a branching point"}
	}
	branches := items[itemIdx].Branches
	if branchIdx < 0 || branchIdx >= len(branches) {
		return nil, &InternalError{Msg: "restore: branch index out of range"}
	}
	branch := branches[branchIdx]
	if len(path) == 2 {
		return branch, nil
	}
	return branchAtPath(branch.Items, path[2:])
}

func copyVisitCounts(in map[string]map[string]uint32) map[string]map[string]uint32 {
	out := make(map[string]map[string]uint32, len(in))
	for k, stitches := range in {
		inner := make(map[string]uint32, len(stitches))
		for sk, sv := range stitches {
			inner[sk] = sv
		}
		out[k] = inner
	}
	return out
}

func copyVariables(in map[string]Variable) map[string]Variable {
	out := make(map[string]Variable, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// MarshalJSON/UnmarshalJSON round-trip a Snapshot through JSON. The
// loomplay CLI does not save or load snapshots.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type alias Snapshot
	return json.Marshal(alias(s))
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	type alias Snapshot
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}
	*s = Snapshot(a)
	return nil
}

// Fingerprint returns a stable content hash of the snapshot, suitable for
// the property test that a restore round-trip reaches byte-identical
// state: two snapshots taken after an identical sequence of host actions
// must hash equal regardless of map iteration order.
func (snap Snapshot) Fingerprint() (string, error) {
	hash, err := structhash.Hash(snap, 1)
	if err != nil {
		return "", fmt.Errorf("fingerprint snapshot: %w", err)
	}
	return hash, nil
}
