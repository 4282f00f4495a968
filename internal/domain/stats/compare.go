package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/turtacn/famsim/internal/domain/group"
	"github.com/turtacn/famsim/internal/domain/similarity"
	"github.com/turtacn/famsim/pkg/errors"
)

// CheckConsistency verifies that multisets were aggregated from m: the same
// set of groups, and C(k, 2) values for a group of k members.
func CheckConsistency(m group.Membership, ms group.Multisets) error {
	if len(m) != len(ms) {
		return errors.New(errors.ErrCodeAggregationConsistency, "group count differs between membership and multisets").
			WithDetailf("membership=%d multisets=%d", len(m), len(ms))
	}
	for _, g := range m.Groups() {
		values, ok := ms[g]
		if !ok {
			return errors.New(errors.ErrCodeAggregationConsistency, "group has no aggregated multiset").
				WithDetailf("group=%d", g)
		}
		k := len(m[g])
		want := k * (k - 1) / 2
		if len(values) != want {
			return errors.New(errors.ErrCodeAggregationConsistency, "aggregated pair count does not match group size").
				WithDetailf("group=%d members=%d expected=%d actual=%d", g, k, want, len(values))
		}
	}
	return nil
}

// ComparisonRow is one line of the rank-sum comparison table.
type ComparisonRow struct {
	ClusterID       int64   `json:"cluster"`
	DisplayName     string  `json:"short_name"`
	ClusterSize     int     `json:"cluster_size"`
	OtherSize       int     `json:"other_size"`
	ClusterMedian   float64 `json:"cluster_median"`
	OtherMedian     float64 `json:"other_median"`
	U1              float64 `json:"U1"`
	U2              float64 `json:"U2"`
	PValue          float64 `json:"p_val"`
	CorrectedPValue float64 `json:"corrected_p_val"`
	Method          Method  `json:"method"`
}

// Comparator runs the per-group rank-sum comparison.
type Comparator struct{}

// NewComparator returns a Comparator.
func NewComparator() *Comparator { return &Comparator{} }

// Compare tests every group's multiset against the complement: all stored
// values whose pair involves no member of the group. Rows come back sorted
// by group id. Groups whose multiset or complement is empty get NaN
// statistics instead of failing the sweep. names may be nil.
func (c *Comparator) Compare(m group.Membership, ms group.Multisets, space *similarity.Space, names map[int64]string) ([]ComparisonRow, error) {
	if err := CheckConsistency(m, ms); err != nil {
		return nil, err
	}

	tests := len(ms)
	rows := make([]ComparisonRow, 0, tests)
	for _, g := range m.Groups() {
		pos, err := space.Positions(m[g])
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeUnknown, "group member missing from similarity space").
				WithDetailf("group=%d", g)
		}
		inGroup := sortedCopy(ms[g])
		other := space.Complement(pos)
		if want := complementSize(space, pos); len(other) != want {
			return nil, errors.New(errors.ErrCodeAggregationConsistency, "complement size does not match the pairs left after removing the group").
				WithDetailf("group=%d expected=%d actual=%d", g, want, len(other))
		}
		// Complement returns a fresh slice.
		sort.Float64s(other)

		row := ComparisonRow{
			ClusterID:     g,
			DisplayName:   names[g],
			ClusterSize:   len(inGroup),
			OtherSize:     len(other),
			ClusterMedian: medianSorted(inGroup),
			OtherMedian:   medianSorted(other),
		}
		res, err := mannWhitneySorted(inGroup, other)
		switch {
		case errors.IsCode(err, errors.ErrCodeInsufficientSample):
			row.U1, row.U2 = math.NaN(), math.NaN()
			row.PValue, row.CorrectedPValue = math.NaN(), math.NaN()
		case err != nil:
			return nil, err
		default:
			row.U1, row.U2 = res.U1, res.U2
			row.PValue = res.P
			row.CorrectedPValue = Bonferroni(res.P, tests)
			row.Method = res.Method
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// complementSize is the number of stored pairs that involve none of the
// given positions: Len minus the pairs among the group and the pairs from
// the group to everything else.
func complementSize(space *similarity.Space, positions []int) int {
	distinct := make(map[int]struct{}, len(positions))
	for _, p := range positions {
		distinct[p] = struct{}{}
	}
	k, n := len(distinct), space.N()
	return space.Len() - similarity.PairCount(k) - k*(n-k)
}

// Summary describes one group's similarity multiset.
type Summary struct {
	GroupID int64   `json:"group"`
	Count   int     `json:"count"`
	Mean    float64 `json:"mean"`
	Median  float64 `json:"median"`
	StdDev  float64 `json:"std"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// Summarize returns a Summary for x. Statistics of an empty sample are NaN;
// StdDev of a single value is NaN as well (sample standard deviation).
func Summarize(id int64, x []float64) Summary {
	s := Summary{GroupID: id, Count: len(x)}
	if len(x) == 0 {
		nan := math.NaN()
		s.Mean, s.Median, s.StdDev, s.Min, s.Max = nan, nan, nan, nan, nan
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(x, nil)
	s.Median = Median(x)
	s.Min = floats.Min(x)
	s.Max = floats.Max(x)
	return s
}

// SummarizeAll returns one Summary per group in ascending id order.
func SummarizeAll(ms group.Multisets) []Summary {
	ids := make([]int64, 0, len(ms))
	for id := range ms {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]Summary, 0, len(ms))
	for _, id := range ids {
		out = append(out, Summarize(id, ms[id]))
	}
	return out
}
