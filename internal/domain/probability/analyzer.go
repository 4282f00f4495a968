// Package probability relates high pairwise similarity to shared group
// membership across a sweep of similarity thresholds.
package probability

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/turtacn/famsim/internal/domain/group"
	"github.com/turtacn/famsim/internal/domain/similarity"
	"github.com/turtacn/famsim/pkg/errors"
)

// DefaultThresholds is the sweep used when none is configured.
var DefaultThresholds = []float64{0.75, 0.85, 0.95}

// Row is one (group, threshold) result.
type Row struct {
	GroupID                int64   `json:"cluster_id"`
	Threshold              float64 `json:"threshold"`
	ConditionalProbability float64 `json:"conditional_probability"`
	BaselineProbability    float64 `json:"baseline_probability"`
	HighSimPairCount       int     `json:"high_sim_pairs"`
	EnrichmentFactor       float64 `json:"enrichment_factor"`
	GroupSize              int     `json:"cluster_size"`
}

// Linspace returns num evenly spaced thresholds over [start, stop].
func Linspace(start, stop float64, num int) ([]float64, error) {
	switch {
	case num < 1:
		return nil, errors.New(errors.ErrCodeValidation, "threshold sweep needs at least one point").
			WithDetailf("num=%d", num)
	case num == 1:
		return []float64{start}, nil
	}
	return floats.Span(make([]float64, num), start, stop), nil
}

// Analyzer computes conditional and baseline probabilities per group.
type Analyzer struct{}

// NewAnalyzer returns an Analyzer.
func NewAnalyzer() *Analyzer { return &Analyzer{} }

// Analyze returns one row per (group, threshold), ordered by threshold in the
// order given and then by group id. A pair counts as highly similar when its
// value strictly exceeds the threshold. Groups with fewer than two members
// are skipped.
func (a *Analyzer) Analyze(m group.Membership, ms group.Multisets, space *similarity.Space, thresholds []float64) ([]Row, error) {
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}
	totalPairs := space.Len()
	groups := m.Groups()

	rows := make([]Row, 0, len(thresholds)*len(groups))
	for _, th := range thresholds {
		if math.IsNaN(th) {
			return nil, errors.New(errors.ErrCodeValidation, "similarity threshold is NaN")
		}
		highTotal := space.CountAbove(th)
		for _, g := range groups {
			size := len(m[g])
			if size < 2 {
				continue
			}
			values, ok := ms[g]
			if !ok {
				return nil, errors.New(errors.ErrCodeAggregationConsistency, "group has no aggregated multiset").
					WithDetailf("group=%d", g)
			}
			inGroup := len(values)
			high := 0
			for _, v := range values {
				if v > th {
					high++
				}
			}
			rows = append(rows, newRow(g, th, size, high, highTotal, inGroup, totalPairs))
		}
	}
	return rows, nil
}

func newRow(g int64, th float64, size, high, highTotal, inGroup, totalPairs int) Row {
	r := Row{GroupID: g, Threshold: th, HighSimPairCount: high, GroupSize: size}
	if highTotal > 0 {
		r.ConditionalProbability = float64(high) / float64(highTotal)
	}
	if totalPairs > 0 {
		r.BaselineProbability = float64(inGroup) / float64(totalPairs)
	}
	if r.BaselineProbability > 0 {
		r.EnrichmentFactor = r.ConditionalProbability / r.BaselineProbability
	} else {
		r.EnrichmentFactor = math.Inf(1)
	}
	return r
}
