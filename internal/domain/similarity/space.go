// Package similarity stores the packed lower-triangular similarity space and
// maps entity ids onto its dense positions.
package similarity

import (
	"github.com/turtacn/famsim/pkg/errors"
)

// DefaultMaxCompounds bounds the number of entities a space may hold. The
// packed array grows as N², so a run refuses anything larger unless the limit
// is raised explicitly.
const DefaultMaxCompounds = 20000

// Offset returns the packed position of the pair (row, col). The caller must
// guarantee row > col >= 0.
func Offset(row, col int) int {
	return row*(row-1)/2 + col
}

// PairCount returns n(n-1)/2.
func PairCount(n int) int {
	if n < 2 {
		return 0
	}
	return n * (n - 1) / 2
}

// ValidateSize fails with ErrCodeSizeMismatch unless length equals the
// triangular count for n entities.
func ValidateSize(length, n int) error {
	if n < 0 || length != PairCount(n) {
		return errors.New(errors.ErrCodeSizeMismatch, "similarity array length does not match id count").
			WithDetailf("ids=%d expected=%d actual=%d", n, PairCount(n), length)
	}
	return nil
}

// AllIndicesInvolving returns the n-1 offsets that pair pos with every other
// position, in ascending order.
func AllIndicesInvolving(pos, n int) []int {
	if pos < 0 || pos >= n {
		return nil
	}
	out := make([]int, 0, n-1)
	// pos as the row: (pos, 0) .. (pos, pos-1)
	base := Offset(pos, 0)
	for col := 0; col < pos; col++ {
		out = append(out, base+col)
	}
	// pos as the column: (pos+1, pos) .. (n-1, pos)
	for row := pos + 1; row < n; row++ {
		out = append(out, Offset(row, pos))
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// IndexMap
// ─────────────────────────────────────────────────────────────────────────────

// IndexMap is the bijection between the ordered entity ids the space was
// generated from and positions [0, N).
type IndexMap struct {
	ids []int64
	pos map[int64]int
}

// NewIndexMap builds the mapping from ids in generation order. Duplicate ids
// are rejected.
func NewIndexMap(ids []int64) (*IndexMap, error) {
	m := &IndexMap{
		ids: make([]int64, len(ids)),
		pos: make(map[int64]int, len(ids)),
	}
	copy(m.ids, ids)
	for i, id := range ids {
		if prev, dup := m.pos[id]; dup {
			return nil, errors.New(errors.ErrCodeInputParse, "duplicate id in similarity id list").
				WithDetailf("id=%d positions=%d,%d", id, prev, i)
		}
		m.pos[id] = i
	}
	return m, nil
}

// Position returns the dense position of id.
func (m *IndexMap) Position(id int64) (int, bool) {
	p, ok := m.pos[id]
	return p, ok
}

// ID returns the entity id at position p.
func (m *IndexMap) ID(p int) int64 { return m.ids[p] }

// Len returns N.
func (m *IndexMap) Len() int { return len(m.ids) }

// Contains reports whether id is part of the space.
func (m *IndexMap) Contains(id int64) bool {
	_, ok := m.pos[id]
	return ok
}

// ─────────────────────────────────────────────────────────────────────────────
// Space
// ─────────────────────────────────────────────────────────────────────────────

// Space is an immutable packed similarity array with its index map. It is
// safe for concurrent readers.
type Space struct {
	values []float64
	index  *IndexMap
}

// Option customises NewSpace.
type Option func(*spaceOptions)

type spaceOptions struct {
	maxCompounds int
}

// WithMaxCompounds overrides DefaultMaxCompounds. Zero or negative disables
// the limit.
func WithMaxCompounds(n int) Option {
	return func(o *spaceOptions) { o.maxCompounds = n }
}

// NewSpace wraps values (taking ownership) keyed by ids in generation order.
func NewSpace(values []float64, ids []int64, opts ...Option) (*Space, error) {
	o := spaceOptions{maxCompounds: DefaultMaxCompounds}
	for _, fn := range opts {
		fn(&o)
	}
	if o.maxCompounds > 0 && len(ids) > o.maxCompounds {
		return nil, errors.New(errors.ErrCodeTooManyCompounds, "similarity space exceeds compound limit").
			WithDetailf("ids=%d limit=%d", len(ids), o.maxCompounds)
	}
	if err := ValidateSize(len(values), len(ids)); err != nil {
		return nil, err
	}
	index, err := NewIndexMap(ids)
	if err != nil {
		return nil, err
	}
	return &Space{values: values, index: index}, nil
}

// Lookup returns the stored similarity of two distinct entities.
func (s *Space) Lookup(a, b int64) (float64, error) {
	if a == b {
		return 0, errors.New(errors.ErrCodeDegenerateInput, "similarity of an entity to itself is not stored").
			WithDetailf("id=%d", a)
	}
	pa, ok := s.index.Position(a)
	if !ok {
		return 0, errors.New(errors.ErrCodeUnknownEntity, "entity not in similarity space").WithDetailf("id=%d", a)
	}
	pb, ok := s.index.Position(b)
	if !ok {
		return 0, errors.New(errors.ErrCodeUnknownEntity, "entity not in similarity space").WithDetailf("id=%d", b)
	}
	return s.At(pa, pb), nil
}

// At returns the value for two distinct positions in either order.
func (s *Space) At(p, q int) float64 {
	if p < q {
		p, q = q, p
	}
	return s.values[Offset(p, q)]
}

// Len returns the number of stored pairs.
func (s *Space) Len() int { return len(s.values) }

// N returns the number of entities.
func (s *Space) N() int { return s.index.Len() }

// Index exposes the id mapping.
func (s *Space) Index() *IndexMap { return s.index }

// Values returns the backing array. Callers must not modify it.
func (s *Space) Values() []float64 { return s.values }

// CountAbove returns the number of stored values strictly greater than
// threshold.
func (s *Space) CountAbove(threshold float64) int {
	n := 0
	for _, v := range s.values {
		if v > threshold {
			n++
		}
	}
	return n
}

// Complement returns every stored value whose pair involves none of the
// given positions. Positions out of range are ignored.
func (s *Space) Complement(positions []int) []float64 {
	n := s.N()
	excluded := make([]bool, n)
	k := 0
	for _, p := range positions {
		if p >= 0 && p < n && !excluded[p] {
			excluded[p] = true
			k++
		}
	}
	out := make([]float64, 0, PairCount(n-k))
	for row := 1; row < n; row++ {
		if excluded[row] {
			continue
		}
		base := Offset(row, 0)
		for col := 0; col < row; col++ {
			if !excluded[col] {
				out = append(out, s.values[base+col])
			}
		}
	}
	return out
}

// Positions resolves ids to positions, failing on the first unknown id.
func (s *Space) Positions(ids []int64) ([]int, error) {
	out := make([]int, len(ids))
	for i, id := range ids {
		p, ok := s.index.Position(id)
		if !ok {
			return nil, errors.New(errors.ErrCodeUnknownEntity, "entity not in similarity space").WithDetailf("id=%d", id)
		}
		out[i] = p
	}
	return out, nil
}
