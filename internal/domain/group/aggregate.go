// Package group builds ligand group memberships (cluster, target or assay)
// and aggregates the intra-group similarity multisets.
package group

import (
	"sort"

	"github.com/turtacn/famsim/internal/domain/cluster"
	"github.com/turtacn/famsim/internal/domain/similarity"
	"github.com/turtacn/famsim/pkg/errors"
)

// Kind names what a group id refers to.
type Kind string

const (
	KindCluster Kind = "cluster"
	KindTarget  Kind = "target"
	KindAssay   Kind = "assay"
)

// Pair assigns a ligand to a group.
type Pair struct {
	LigandID int64
	GroupID  int64
}

// Membership maps group ids to sorted, unique ligand ids.
type Membership map[int64][]int64

// FromPairs builds a Membership, collapsing repeated pairs.
func FromPairs(pairs []Pair) Membership {
	seen := make(map[Pair]struct{}, len(pairs))
	m := make(Membership)
	for _, p := range pairs {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		m[p.GroupID] = append(m[p.GroupID], p.LigandID)
	}
	for _, members := range m {
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	}
	return m
}

// FromLigandClusters groups ligands by cluster id.
func FromLigandClusters(rows []cluster.LigandCluster) Membership {
	pairs := make([]Pair, len(rows))
	for i, r := range rows {
		pairs[i] = Pair{LigandID: r.LigandID, GroupID: int64(r.ClusterID)}
	}
	return FromPairs(pairs)
}

// FromLigandTargets groups ligands by target id.
func FromLigandTargets(rows []cluster.LigandTarget) Membership {
	pairs := make([]Pair, len(rows))
	for i, r := range rows {
		pairs[i] = Pair{LigandID: r.LigandID, GroupID: r.TargetID}
	}
	return FromPairs(pairs)
}

// FromActivities groups ligands by assay id.
func FromActivities(rows []cluster.Activity) Membership {
	pairs := make([]Pair, len(rows))
	for i, r := range rows {
		pairs[i] = Pair{LigandID: r.LigandID, GroupID: r.AssayID}
	}
	return FromPairs(pairs)
}

// Groups returns the group ids in ascending order.
func (m Membership) Groups() []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Restrict returns a copy holding only ligands contained in index, together
// with the number of (group, ligand) memberships that were dropped. Groups
// left empty are removed.
func (m Membership) Restrict(index *similarity.IndexMap) (Membership, int) {
	out := make(Membership, len(m))
	dropped := 0
	for g, members := range m {
		kept := make([]int64, 0, len(members))
		for _, id := range members {
			if index.Contains(id) {
				kept = append(kept, id)
			} else {
				dropped++
			}
		}
		if len(kept) > 0 {
			out[g] = kept
		}
	}
	return out, dropped
}

// Missing returns the distinct ligand ids absent from index, ascending.
func (m Membership) Missing(index *similarity.IndexMap) []int64 {
	seen := make(map[int64]struct{})
	for _, members := range m {
		for _, id := range members {
			if !index.Contains(id) {
				seen[id] = struct{}{}
			}
		}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Multisets maps group ids to their intra-group similarity values, in
// ascending member pair order.
type Multisets map[int64][]float64

// PairCount returns the total number of values across all groups.
func (ms Multisets) PairCount() int {
	n := 0
	for _, v := range ms {
		n += len(v)
	}
	return n
}

// Validator cross-checks a stored similarity against an independent source.
// A non-nil error aborts aggregation.
type Validator interface {
	Check(a, b int64, stored float64) error
}

// Aggregator collects intra-group similarity values. Validator is optional.
type Aggregator struct {
	Validator Validator
}

// NewAggregator returns an Aggregator with an optional validator.
func NewAggregator(v Validator) *Aggregator {
	return &Aggregator{Validator: v}
}

// Aggregate returns, for every group, the similarity of each unordered pair
// of distinct members. Every group in m gets an entry, possibly empty.
func (a *Aggregator) Aggregate(m Membership, space *similarity.Space) (Multisets, error) {
	out := make(Multisets, len(m))
	for _, g := range m.Groups() {
		members := m[g]
		pos, err := space.Positions(members)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeUnknown, "group member missing from similarity space").
				WithDetailf("group=%d", g)
		}
		k := len(members)
		values := make([]float64, 0, k*(k-1)/2)
		for i := 0; i < k; i++ {
			for j := i + 1; j < k; j++ {
				if pos[i] == pos[j] {
					return nil, errors.New(errors.ErrCodeDegenerateInput, "group lists the same ligand twice").
						WithDetailf("group=%d id=%d", g, members[i])
				}
				v := space.At(pos[i], pos[j])
				if a.Validator != nil {
					if err := a.Validator.Check(members[i], members[j], v); err != nil {
						return nil, errors.Wrap(err, errors.CodeUnknown, "similarity validation failed").
							WithDetailf("group=%d", g)
					}
				}
				values = append(values, v)
			}
		}
		out[g] = values
	}
	return out, nil
}
