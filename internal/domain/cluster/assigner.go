// Package cluster assigns targets, and through them ligands, to clusters
// defined by their ancestor at a fixed depth of the family hierarchy.
package cluster

import (
	"sort"

	"github.com/turtacn/famsim/internal/domain/family"
	"github.com/turtacn/famsim/pkg/errors"
)

// TargetClass is one target classification row. A target may carry several.
type TargetClass struct {
	TargetID    int64 `json:"tid"`
	ClassNodeID int64 `json:"protein_class_id"`
}

// LigandTarget records that a ligand is active against a target.
type LigandTarget struct {
	LigandID int64 `json:"molregno"`
	TargetID int64 `json:"tid"`
}

// Activity records that a ligand was measured active in an assay.
type Activity struct {
	LigandID int64 `json:"molregno"`
	AssayID  int64 `json:"assay_id"`
}

// Assay links an assay to the target it measures.
type Assay struct {
	AssayID  int64 `json:"assay_id"`
	TargetID int64 `json:"tid"`
}

// TargetCluster is one row of the target→cluster table.
type TargetCluster struct {
	TargetID    int64 `json:"tid"`
	ClassNodeID int64 `json:"protein_class_id"`
	ClusterID   int   `json:"cluster_id"`
}

// LigandCluster is one row of the ligand→cluster table.
type LigandCluster struct {
	LigandID    int64 `json:"molregno"`
	ClassNodeID int64 `json:"protein_class_id"`
	ClusterID   int   `json:"cluster_id"`
}

// Assignment is the result of clustering at one depth.
type Assignment struct {
	Depth int
	// ClassToCluster maps each surviving class node to its cluster id.
	ClassToCluster map[int64]int
	Targets        []TargetCluster
	Ligands        []LigandCluster
}

// Len returns the number of clusters.
func (a *Assignment) Len() int { return len(a.ClassToCluster) }

// Enumerate numbers the distinct class ids 1..K in ascending id order.
func Enumerate(classIDs []int64) map[int64]int {
	distinct := make([]int64, 0, len(classIDs))
	seen := make(map[int64]struct{}, len(classIDs))
	for _, id := range classIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		distinct = append(distinct, id)
	}
	sort.Slice(distinct, func(i, j int) bool { return distinct[i] < distinct[j] })

	out := make(map[int64]int, len(distinct))
	for i, id := range distinct {
		out[id] = i + 1
	}
	return out
}

// Assigner resolves cluster memberships against a family tree. It holds no
// mutable state and may be shared between goroutines.
type Assigner struct {
	Tree *family.Tree
}

// NewAssigner returns an Assigner over tree.
func NewAssigner(tree *family.Tree) *Assigner {
	return &Assigner{Tree: tree}
}

// AssignDepth clusters targets by their ancestor at depth and joins ligands
// onto the result. Targets with no classification at depth are dropped, as
// are ligands whose targets were all dropped.
func (a *Assigner) AssignDepth(depth int, targets []TargetClass, ligandTargets []LigandTarget) (*Assignment, error) {
	if a.Tree == nil {
		return nil, errors.New(errors.ErrCodeInternal, "cluster assigner has no family tree")
	}
	if depth < 0 {
		return nil, errors.New(errors.ErrCodeValidation, "clustering depth must be non-negative").
			WithDetailf("depth=%d", depth)
	}

	type resolved struct {
		target int64
		class  int64
	}
	rows := make([]resolved, 0, len(targets))
	classIDs := make([]int64, 0, len(targets))
	for _, tc := range targets {
		anc, ok, err := a.Tree.AncestorAtLevel(tc.ClassNodeID, depth)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeUnknown, "failed to resolve target classification").
				WithDetailf("tid=%d protein_class_id=%d depth=%d", tc.TargetID, tc.ClassNodeID, depth)
		}
		if !ok {
			continue
		}
		rows = append(rows, resolved{target: tc.TargetID, class: anc})
		classIDs = append(classIDs, anc)
	}

	clusters := Enumerate(classIDs)

	seenTarget := make(map[[2]int64]struct{}, len(rows))
	byTarget := make(map[int64][]TargetCluster, len(rows))
	out := &Assignment{Depth: depth, ClassToCluster: clusters}
	for _, r := range rows {
		c := clusters[r.class]
		key := [2]int64{r.target, int64(c)}
		if _, dup := seenTarget[key]; dup {
			continue
		}
		seenTarget[key] = struct{}{}
		row := TargetCluster{TargetID: r.target, ClassNodeID: r.class, ClusterID: c}
		out.Targets = append(out.Targets, row)
		byTarget[r.target] = append(byTarget[r.target], row)
	}
	sort.Slice(out.Targets, func(i, j int) bool {
		if out.Targets[i].TargetID != out.Targets[j].TargetID {
			return out.Targets[i].TargetID < out.Targets[j].TargetID
		}
		return out.Targets[i].ClusterID < out.Targets[j].ClusterID
	})

	seenLigand := make(map[[2]int64]struct{}, len(ligandTargets))
	for _, lt := range ligandTargets {
		for _, tc := range byTarget[lt.TargetID] {
			key := [2]int64{lt.LigandID, int64(tc.ClusterID)}
			if _, dup := seenLigand[key]; dup {
				continue
			}
			seenLigand[key] = struct{}{}
			out.Ligands = append(out.Ligands, LigandCluster{
				LigandID:    lt.LigandID,
				ClassNodeID: tc.ClassNodeID,
				ClusterID:   tc.ClusterID,
			})
		}
	}
	sort.Slice(out.Ligands, func(i, j int) bool {
		if out.Ligands[i].LigandID != out.Ligands[j].LigandID {
			return out.Ligands[i].LigandID < out.Ligands[j].LigandID
		}
		return out.Ligands[i].ClusterID < out.Ligands[j].ClusterID
	})

	return out, nil
}

// JoinActivities derives unique (ligand, target) pairs from activity and
// assay tables, sorted by ligand then target. Activities referencing an
// assay absent from assays are dropped.
func JoinActivities(activities []Activity, assays []Assay) []LigandTarget {
	targetsByAssay := make(map[int64][]int64, len(assays))
	for _, a := range assays {
		targetsByAssay[a.AssayID] = append(targetsByAssay[a.AssayID], a.TargetID)
	}

	seen := make(map[LigandTarget]struct{}, len(activities))
	out := make([]LigandTarget, 0, len(activities))
	for _, act := range activities {
		for _, tid := range targetsByAssay[act.AssayID] {
			lt := LigandTarget{LigandID: act.LigandID, TargetID: tid}
			if _, dup := seen[lt]; dup {
				continue
			}
			seen[lt] = struct{}{}
			out = append(out, lt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LigandID != out[j].LigandID {
			return out[i].LigandID < out[j].LigandID
		}
		return out[i].TargetID < out[j].TargetID
	})
	return out
}
