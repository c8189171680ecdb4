package loom

// Knot is a named collection of stitches. Every knot has a default stitch
// keyed by the empty string. StitchOrder preserves script order, since
// fall-through from one stitch to the next depends on it.
type Knot struct {
	Name        string
	Stitches    map[string]*RootNode
	StitchOrder []string
	Tags        []string
}

// HasStitch reports whether the knot declares a stitch with the given name.
func (k *Knot) HasStitch(name string) bool {
	_, ok := k.Stitches[name]
	return ok
}

// NextStitch returns the stitch that follows the given one in script order,
// used for the implicit fall-through divert when a stitch's node completes
// without an explicit divert firing.
func (k *Knot) NextStitch(name string) (string, bool) {
	for i, s := range k.StitchOrder {
		if s == name && i+1 < len(k.StitchOrder) {
			return k.StitchOrder[i+1], true
		}
	}
	return "", false
}

// KnotSet is the mapping from knot name to Knot, preserving script order so
// Story.Start can locate "the script's first declared knot."
type KnotSet struct {
	knots map[string]*Knot
	order []string
}

// NewKnotSet returns an empty, ready-to-use KnotSet.
func NewKnotSet() *KnotSet {
	return &KnotSet{knots: make(map[string]*Knot)}
}

// Add registers a knot, recording it at the end of script order the first
// time it is seen.
func (s *KnotSet) Add(k *Knot) {
	if _, exists := s.knots[k.Name]; !exists {
		s.order = append(s.order, k.Name)
	}
	s.knots[k.Name] = k
}

// Get looks up a knot by name.
func (s *KnotSet) Get(name string) (*Knot, bool) {
	k, ok := s.knots[name]
	return k, ok
}

// First returns the first knot declared in script order.
func (s *KnotSet) First() (*Knot, bool) {
	if len(s.order) == 0 {
		return nil, false
	}
	return s.knots[s.order[0]], true
}

// All iterates knots in script declaration order.
func (s *KnotSet) All() []*Knot {
	out := make([]*Knot, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.knots[name])
	}
	return out
}

// FollowData is the mutable runtime state consulted by expressions and
// conditions: visit counts (keyed knot -> stitch -> count) and the host- and
// script-declared variable table. Mutation from inside the script is not
// supported in this version; only the host's SetVariable and the follow
// engine's visit-count bookkeeping ever write to it.
type FollowData struct {
	VisitCounts map[string]map[string]uint32
	Variables   map[string]Variable
}

// NewFollowData returns an empty, ready-to-use FollowData.
func NewFollowData() *FollowData {
	return &FollowData{
		VisitCounts: make(map[string]map[string]uint32),
		Variables:   make(map[string]Variable),
	}
}

// VisitCount returns the number of times the given knot/stitch has been
// entered with a fresh (length-1) position stack.
func (d *FollowData) VisitCount(knot, stitch string) uint32 {
	stitches, ok := d.VisitCounts[knot]
	if !ok {
		return 0
	}
	return stitches[stitch]
}

func (d *FollowData) incrementVisitCount(knot, stitch string) {
	stitches, ok := d.VisitCounts[knot]
	if !ok {
		stitches = make(map[string]uint32)
		d.VisitCounts[knot] = stitches
	}
	stitches[stitch]++
}

// NodeItemKind discriminates the two kinds of item a node's body can hold.
type NodeItemKind int

const (
	ItemLine NodeItemKind = iota
	ItemBranchingPoint
)

// NodeItem is either a rendered Line or a BranchingPoint holding the
// branches of a nested choice set.
type NodeItem struct {
	Kind     NodeItemKind
	Line     *Line
	Branches []*Branch
}

// RootNode is the body of an addressable stitch: `RootNode{address, items}`.
type RootNode struct {
	Addr       Address
	Items      []NodeItem
	VisitCount uint32
}

// Branch is one option of a BranchingPoint. Its first item is always its
// choice's own DisplayText line (the same *Line, not a copy).
type Branch struct {
	Choice     InternalChoice
	Items      []NodeItem
	VisitCount uint32
}

// Followable is the small capability RootNode and Branch share: enough for
// the follow engine to walk either one without a common base type.
type Followable interface {
	GetItem(index int) (NodeItem, bool)
	NumItems() int
	VisitCountValue() uint32
	IncrementVisit()
}

func (n *RootNode) GetItem(index int) (NodeItem, bool) {
	if index < 0 || index >= len(n.Items) {
		return NodeItem{}, false
	}
	return n.Items[index], true
}
func (n *RootNode) NumItems() int           { return len(n.Items) }
func (n *RootNode) VisitCountValue() uint32 { return n.VisitCount }
func (n *RootNode) IncrementVisit()         { n.VisitCount++ }

func (b *Branch) GetItem(index int) (NodeItem, bool) {
	if index < 0 || index >= len(b.Items) {
		return NodeItem{}, false
	}
	return b.Items[index], true
}
func (b *Branch) NumItems() int           { return len(b.Items) }
func (b *Branch) VisitCountValue() uint32 { return b.VisitCount }
func (b *Branch) IncrementVisit()         { b.VisitCount++ }

// branchingPointAt returns the branches of the BranchingPoint item at index,
// or false if that item is not a BranchingPoint (or does not exist).
func branchingPointAt(n Followable, index int) ([]*Branch, bool) {
	item, ok := n.GetItem(index)
	if !ok || item.Kind != ItemBranchingPoint {
		return nil, false
	}
	return item.Branches, true
}
