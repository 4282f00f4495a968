package probability

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/famsim/internal/domain/group"
	"github.com/turtacn/famsim/internal/domain/similarity"
	"github.com/turtacn/famsim/pkg/errors"
)

// Ids 1..4 with packed values s10..s32.
func newSpace(t *testing.T) *similarity.Space {
	t.Helper()
	s, err := similarity.NewSpace([]float64{0.9, 0.2, 0.8, 0.1, 0.95, 0.3}, []int64{1, 2, 3, 4})
	require.NoError(t, err)
	return s
}

func analyze(t *testing.T, m group.Membership, thresholds []float64) []Row {
	t.Helper()
	space := newSpace(t)
	ms, err := group.NewAggregator(nil).Aggregate(m, space)
	require.NoError(t, err)
	rows, err := NewAnalyzer().Analyze(m, ms, space, thresholds)
	require.NoError(t, err)
	return rows
}

func TestAnalyze(t *testing.T) {
	// Group 7 = {1, 2, 4}: pairs s10=0.9, s30=0.1, s31=0.95.
	rows := analyze(t, group.Membership{7: {1, 2, 4}, 8: {3}}, []float64{0.85})
	require.Len(t, rows, 1)

	r := rows[0]
	assert.Equal(t, int64(7), r.GroupID)
	assert.Equal(t, 3, r.GroupSize)
	assert.Equal(t, 2, r.HighSimPairCount)
	// Two of six pairs exceed 0.85 and both are inside the group.
	assert.InDelta(t, 1.0, r.ConditionalProbability, 1e-12)
	assert.InDelta(t, 0.5, r.BaselineProbability, 1e-12)
	assert.InDelta(t, 2.0, r.EnrichmentFactor, 1e-12)
}

func TestAnalyze_OrderAndBounds(t *testing.T) {
	m := group.Membership{2: {3, 4}, 1: {1, 2}}
	rows := analyze(t, m, nil)
	require.Len(t, rows, 6)

	for i, r := range rows {
		assert.Equal(t, DefaultThresholds[i/2], r.Threshold)
		assert.Equal(t, int64(i%2+1), r.GroupID)
		assert.GreaterOrEqual(t, r.ConditionalProbability, 0.0)
		assert.LessOrEqual(t, r.ConditionalProbability, 1.0)
		assert.GreaterOrEqual(t, r.BaselineProbability, 0.0)
		assert.LessOrEqual(t, r.BaselineProbability, 1.0)
	}
}

func TestAnalyze_NoHighPairs(t *testing.T) {
	rows := analyze(t, group.Membership{1: {1, 2}}, []float64{0.99})
	require.Len(t, rows, 1)
	assert.Equal(t, 0.0, rows[0].ConditionalProbability)
	assert.Equal(t, 0.0, rows[0].EnrichmentFactor)
}

func TestNewRow_ZeroBaselineIsInfinite(t *testing.T) {
	r := newRow(1, 0.5, 2, 0, 3, 0, 6)
	assert.True(t, math.IsInf(r.EnrichmentFactor, 1))

	r = newRow(1, 0.5, 2, 0, 0, 0, 0)
	assert.Equal(t, 0.0, r.BaselineProbability)
	assert.True(t, math.IsInf(r.EnrichmentFactor, 1))
}

func TestAnalyze_MissingMultiset(t *testing.T) {
	_, err := NewAnalyzer().Analyze(group.Membership{1: {1, 2}}, group.Multisets{}, newSpace(t), nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeAggregationConsistency))
}

func TestLinspace(t *testing.T) {
	got, err := Linspace(0.5, 0.9, 5)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.6, 0.7, 0.8, 0.9}, got, 1e-12)

	got, err = Linspace(0.7, 0.9, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.7}, got)

	_, err = Linspace(0, 1, 0)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}
