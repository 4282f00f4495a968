// Package family models the protein-family classification hierarchy as an
// immutable forest of class nodes and answers ancestor-at-level queries
// against it.
//
// The forest is stored as an arena: nodes live in a slice and refer to their
// parent by slot index, so walks are bounded array-indexed loops with no live
// pointer graph.
package family

import (
	"strconv"

	"github.com/turtacn/famsim/pkg/errors"
)

// ClassNode is one row of the classification table.
type ClassNode struct {
	ID int64 `json:"protein_class_id"`
	// ParentID is nil for roots.
	ParentID  *int64 `json:"parent_id,omitempty"`
	Level     int    `json:"class_level"`
	PrefName  string `json:"pref_name,omitempty"`
	ShortName string `json:"short_name,omitempty"`
}

// IsRoot reports whether the node has no parent.
func (n ClassNode) IsRoot() bool { return n.ParentID == nil }

// DisplayName returns the short name, falling back to the preferred name.
func (n ClassNode) DisplayName() string {
	if n.ShortName != "" {
		return n.ShortName
	}
	return n.PrefName
}

const noParent = -1

type slot struct {
	node   ClassNode
	parent int
}

// Tree is an immutable rooted forest of class nodes.
type Tree struct {
	slots  []slot
	index  map[int64]int
	height int
}

// Build constructs the forest. A node listed twice must carry the same parent
// and level both times; conflicting parents, parent cycles, and children whose
// level does not exceed their parent's all fail with ErrCodeCycleOrDuplicateParent.
func Build(nodes []ClassNode) (*Tree, error) {
	t := &Tree{
		slots: make([]slot, 0, len(nodes)),
		index: make(map[int64]int, len(nodes)),
	}

	for _, n := range nodes {
		if n.Level < 0 {
			return nil, errors.New(errors.ErrCodeValidation, "class level must be non-negative").
				WithDetailf("protein_class_id=%d class_level=%d", n.ID, n.Level)
		}
		if n.ParentID != nil && *n.ParentID == n.ID {
			return nil, errors.New(errors.ErrCodeCycleOrDuplicateParent, "class node is its own parent").
				WithDetailf("protein_class_id=%d", n.ID)
		}
		if i, ok := t.index[n.ID]; ok {
			prev := t.slots[i].node
			if !sameParent(prev.ParentID, n.ParentID) || prev.Level != n.Level {
				return nil, errors.New(errors.ErrCodeCycleOrDuplicateParent, "class node listed with conflicting parents").
					WithDetailf("protein_class_id=%d parents=%s,%s", n.ID, fmtParent(prev.ParentID), fmtParent(n.ParentID))
			}
			continue
		}
		t.index[n.ID] = len(t.slots)
		t.slots = append(t.slots, slot{node: n, parent: noParent})
	}

	for i := range t.slots {
		if t.slots[i].node.IsRoot() {
			continue
		}
		p := t.slots[i].node.ParentID
		pi, ok := t.index[*p]
		if !ok {
			return nil, errors.New(errors.ErrCodeUnknownParent, "class node references a parent that is not in the hierarchy").
				WithDetailf("protein_class_id=%d parent_id=%d", t.slots[i].node.ID, *p)
		}
		if t.slots[pi].node.Level >= t.slots[i].node.Level {
			return nil, errors.New(errors.ErrCodeCycleOrDuplicateParent, "class level must increase from parent to child").
				WithDetailf("protein_class_id=%d class_level=%d parent_id=%d parent_level=%d",
					t.slots[i].node.ID, t.slots[i].node.Level, *p, t.slots[pi].node.Level)
		}
		t.slots[i].parent = pi
	}

	if err := t.computeHeight(); err != nil {
		return nil, err
	}
	return t, nil
}

// computeHeight measures every root path with three-colour marking so that a
// cycle is reported even if the level check above were bypassed.
func (t *Tree) computeHeight() error {
	const (
		white = iota
		grey
		black
	)
	colour := make([]uint8, len(t.slots))
	depth := make([]int, len(t.slots))

	for start := range t.slots {
		if colour[start] == black {
			continue
		}
		var stack []int
		cur := start
		for cur != noParent && colour[cur] == white {
			colour[cur] = grey
			stack = append(stack, cur)
			cur = t.slots[cur].parent
		}
		if cur != noParent && colour[cur] == grey {
			return errors.New(errors.ErrCodeCycleOrDuplicateParent, "parent cycle detected in family hierarchy").
				WithDetailf("protein_class_id=%d", t.slots[cur].node.ID)
		}
		base := 0
		if cur != noParent {
			base = depth[cur] + 1
		}
		for i := len(stack) - 1; i >= 0; i-- {
			depth[stack[i]] = base
			colour[stack[i]] = black
			if base > t.height {
				t.height = base
			}
			base++
		}
	}
	return nil
}

// Len returns the number of distinct class nodes.
func (t *Tree) Len() int { return len(t.slots) }

// Height returns the number of edges on the longest root path.
func (t *Tree) Height() int { return t.height }

// Node returns the class node with the given id.
func (t *Tree) Node(id int64) (ClassNode, bool) {
	i, ok := t.index[id]
	if !ok {
		return ClassNode{}, false
	}
	return t.slots[i].node, true
}

// AncestorAtLevel walks upward from id and returns the ancestor (or id
// itself) whose level equals level. ok is false when the node is shallower
// than level, or when its root path skips that level.
func (t *Tree) AncestorAtLevel(id int64, level int) (ancestor int64, ok bool, err error) {
	cur, found := t.index[id]
	if !found {
		return 0, false, errors.New(errors.ErrCodeUnknownClassNode, "class node not found in hierarchy").
			WithDetailf("protein_class_id=%d", id)
	}
	if t.slots[cur].node.Level < level {
		return 0, false, nil
	}

	for steps := 0; ; steps++ {
		if steps > t.height {
			return 0, false, errors.New(errors.ErrCodeCycleOrDuplicateParent, "ancestor walk exceeded tree height").
				WithDetailf("protein_class_id=%d height=%d", id, t.height)
		}
		n := t.slots[cur].node
		switch {
		case n.Level == level:
			return n.ID, true, nil
		case n.Level < level:
			return 0, false, nil
		}
		if t.slots[cur].parent == noParent {
			return 0, false, nil
		}
		cur = t.slots[cur].parent
	}
}

// PathToRoot returns the ids from id up to its root, inclusive.
func (t *Tree) PathToRoot(id int64) ([]int64, error) {
	cur, ok := t.index[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeUnknownClassNode, "class node not found in hierarchy").
			WithDetailf("protein_class_id=%d", id)
	}
	path := make([]int64, 0, t.height+1)
	for cur != noParent {
		if len(path) > t.height {
			return nil, errors.New(errors.ErrCodeCycleOrDuplicateParent, "root path exceeded tree height").
				WithDetailf("protein_class_id=%d height=%d", id, t.height)
		}
		path = append(path, t.slots[cur].node.ID)
		cur = t.slots[cur].parent
	}
	return path, nil
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func fmtParent(p *int64) string {
	if p == nil {
		return "null"
	}
	return strconv.FormatInt(*p, 10)
}
