package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/famsim/internal/domain/group"
	"github.com/turtacn/famsim/internal/domain/similarity"
	"github.com/turtacn/famsim/pkg/errors"
)

// separatedSpace holds 8 entities with ids 100..107. Pairs within positions
// 0..3 score around 0.9, every other pair around 0.1; all values distinct.
func separatedSpace(t *testing.T) *similarity.Space {
	t.Helper()
	const n = 8
	values := make([]float64, similarity.PairCount(n))
	for row := 1; row < n; row++ {
		for col := 0; col < row; col++ {
			v := 0.1 + 0.01*float64(row) + 0.001*float64(col)
			if row < 4 {
				v += 0.8
			}
			values[similarity.Offset(row, col)] = v
		}
	}
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(100 + i)
	}
	s, err := similarity.NewSpace(values, ids)
	require.NoError(t, err)
	return s
}

func TestCheckConsistency(t *testing.T) {
	m := group.Membership{1: {10, 11, 12}, 2: {13}}

	assert.NoError(t, CheckConsistency(m, group.Multisets{1: {0.1, 0.2, 0.3}, 2: {}}))

	err := CheckConsistency(m, group.Multisets{1: {0.1, 0.2}, 2: {}})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeAggregationConsistency))
	assert.Contains(t, err.Error(), "expected=3 actual=2")

	err = CheckConsistency(m, group.Multisets{1: {0.1, 0.2, 0.3}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeAggregationConsistency))

	err = CheckConsistency(m, group.Multisets{1: {0.1, 0.2, 0.3}, 3: {}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeAggregationConsistency))
}

func TestComparator_Compare(t *testing.T) {
	space := separatedSpace(t)
	m := group.Membership{
		2: {104, 105},
		1: {100, 101, 102, 103},
	}
	ms, err := group.NewAggregator(nil).Aggregate(m, space)
	require.NoError(t, err)

	rows, err := NewComparator().Compare(m, ms, space, map[int64]string{1: "Kinase"})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, int64(1), first.ClusterID)
	assert.Equal(t, "Kinase", first.DisplayName)
	assert.Equal(t, 6, first.ClusterSize)
	assert.Equal(t, 6, first.OtherSize)
	assert.Greater(t, first.ClusterMedian, first.OtherMedian)
	assert.Equal(t, 36.0, first.U1)
	assert.Equal(t, 0.0, first.U2)
	assert.Equal(t, MethodExact, first.Method)
	assert.InDelta(t, 1.0/924, first.PValue, 1e-12)
	assert.InDelta(t, 2.0/924, first.CorrectedPValue, 1e-12)
	assert.Less(t, first.CorrectedPValue, 0.05)

	second := rows[1]
	assert.Equal(t, int64(2), second.ClusterID)
	assert.Empty(t, second.DisplayName)
	assert.Equal(t, 1, second.ClusterSize)
	assert.Equal(t, 15, second.OtherSize)
	assert.Equal(t, second.U1+second.U2, float64(second.ClusterSize*second.OtherSize))
	assert.LessOrEqual(t, second.CorrectedPValue, 1.0)
}

func TestComparator_SingletonGroupGetsNaN(t *testing.T) {
	space := separatedSpace(t)
	m := group.Membership{1: {100}}
	ms := group.Multisets{1: {}}

	rows, err := NewComparator().Compare(m, ms, space, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].ClusterSize)
	assert.Equal(t, 21, rows[0].OtherSize)
	assert.True(t, math.IsNaN(rows[0].PValue))
	assert.True(t, math.IsNaN(rows[0].CorrectedPValue))
	assert.True(t, math.IsNaN(rows[0].ClusterMedian))
}

func TestComparator_RejectsInconsistentInput(t *testing.T) {
	space := separatedSpace(t)
	m := group.Membership{1: {100, 101, 102}}

	rows, err := NewComparator().Compare(m, group.Multisets{1: {0.9, 0.9}}, space, nil)
	assert.Nil(t, rows)
	assert.True(t, errors.IsCode(err, errors.ErrCodeAggregationConsistency))
}

func TestComparator_MatchesUnsortedPath(t *testing.T) {
	space := separatedSpace(t)
	m := group.Membership{
		1: {103, 100, 102, 101},
		2: {106, 104},
		3: {105, 107, 100},
	}
	ms, err := group.NewAggregator(nil).Aggregate(m, space)
	require.NoError(t, err)

	rows, err := NewComparator().Compare(m, ms, space, nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	for _, row := range rows {
		pos, err := space.Positions(m[row.ClusterID])
		require.NoError(t, err)
		other := space.Complement(pos)
		want, err := MannWhitneyGreater(ms[row.ClusterID], other)
		require.NoError(t, err)

		assert.Equal(t, want.U1, row.U1, "group %d", row.ClusterID)
		assert.Equal(t, want.U2, row.U2, "group %d", row.ClusterID)
		assert.Equal(t, want.P, row.PValue, "group %d", row.ClusterID)
		assert.Equal(t, want.Method, row.Method, "group %d", row.ClusterID)
		assert.Equal(t, Median(ms[row.ClusterID]), row.ClusterMedian, "group %d", row.ClusterID)
		assert.Equal(t, Median(other), row.OtherMedian, "group %d", row.ClusterID)
	}
}

func TestComplementSize_MatchesInvolvedPairs(t *testing.T) {
	space := separatedSpace(t)
	tests := []struct {
		name      string
		positions []int
	}{
		{"empty", nil},
		{"single", []int{3}},
		{"pair", []int{0, 7}},
		{"duplicates", []int{2, 2, 5}},
		{"everything", []int{0, 1, 2, 3, 4, 5, 6, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			involved := map[int]struct{}{}
			for _, p := range tt.positions {
				for _, off := range similarity.AllIndicesInvolving(p, space.N()) {
					involved[off] = struct{}{}
				}
			}
			want := space.Len() - len(involved)
			assert.Equal(t, want, complementSize(space, tt.positions))
			assert.Len(t, space.Complement(tt.positions), want)
		})
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(4, []float64{1, 2, 3, 4})
	assert.Equal(t, int64(4), s.GroupID)
	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 2.5, s.Mean, 1e-12)
	assert.InDelta(t, 2.5, s.Median, 1e-12)
	assert.InDelta(t, math.Sqrt(5.0/3.0), s.StdDev, 1e-12)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 4.0, s.Max)

	empty := Summarize(5, nil)
	assert.Equal(t, 0, empty.Count)
	assert.True(t, math.IsNaN(empty.Mean))
	assert.True(t, math.IsNaN(empty.Max))
}

func TestSummarizeAll_SortedByGroup(t *testing.T) {
	out := SummarizeAll(group.Multisets{9: {0.5}, 3: {0.1, 0.3}})
	require.Len(t, out, 2)
	assert.Equal(t, int64(3), out[0].GroupID)
	assert.InDelta(t, 0.2, out[0].Mean, 1e-12)
	assert.Equal(t, int64(9), out[1].GroupID)
}
