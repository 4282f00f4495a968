package similarity

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/famsim/pkg/errors"
)

func TestOffset_InjectiveAndCovering(t *testing.T) {
	for n := 2; n <= 12; n++ {
		seen := make(map[int]bool, PairCount(n))
		for row := 1; row < n; row++ {
			for col := 0; col < row; col++ {
				off := Offset(row, col)
				require.False(t, seen[off], "n=%d offset %d reused by (%d,%d)", n, off, row, col)
				seen[off] = true
			}
		}
		require.Len(t, seen, PairCount(n))
		for off := 0; off < PairCount(n); off++ {
			assert.True(t, seen[off], "n=%d offset %d not covered", n, off)
		}
	}
}

func TestValidateSize(t *testing.T) {
	assert.NoError(t, ValidateSize(0, 0))
	assert.NoError(t, ValidateSize(0, 1))
	assert.NoError(t, ValidateSize(6, 4))

	err := ValidateSize(5, 4)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSizeMismatch))
	assert.Contains(t, err.Error(), "expected=6 actual=5")
}

func TestAllIndicesInvolving_MatchesBruteForce(t *testing.T) {
	const n = 5
	for p := 0; p < n; p++ {
		got := AllIndicesInvolving(p, n)
		require.Len(t, got, n-1)

		var want []int
		for row := 1; row < n; row++ {
			for col := 0; col < row; col++ {
				if row == p || col == p {
					want = append(want, Offset(row, col))
				}
			}
		}
		sort.Ints(want)
		assert.Equal(t, want, got, "position %d", p)
	}
}

func TestAllIndicesInvolving_OutOfRange(t *testing.T) {
	assert.Nil(t, AllIndicesInvolving(-1, 4))
	assert.Nil(t, AllIndicesInvolving(4, 4))
}

func TestNewIndexMap_DuplicateID(t *testing.T) {
	_, err := NewIndexMap([]int64{10, 20, 10})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInputParse))
}

// fourEntitySpace stores s10..s32 as 10, 20, 21, 30, 31, 32 so that each value
// names its own pair.
func fourEntitySpace(t *testing.T) *Space {
	t.Helper()
	s, err := NewSpace([]float64{10, 20, 21, 30, 31, 32}, []int64{100, 101, 102, 103})
	require.NoError(t, err)
	return s
}

func TestSpace_Lookup(t *testing.T) {
	s := fourEntitySpace(t)
	assert.Equal(t, 4, s.N())
	assert.Equal(t, 6, s.Len())

	v, err := s.Lookup(101, 103)
	require.NoError(t, err)
	assert.Equal(t, 31.0, v)

	rev, err := s.Lookup(103, 101)
	require.NoError(t, err)
	assert.Equal(t, v, rev)

	v, err = s.Lookup(100, 102)
	require.NoError(t, err)
	assert.Equal(t, 20.0, v)
}

func TestSpace_LookupErrors(t *testing.T) {
	s := fourEntitySpace(t)

	_, err := s.Lookup(101, 101)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDegenerateInput))

	_, err = s.Lookup(101, 999)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnknownEntity))

	_, err = s.Lookup(999, 101)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnknownEntity))
}

func TestNewSpace_Guards(t *testing.T) {
	_, err := NewSpace([]float64{1, 2}, []int64{1, 2, 3})
	assert.True(t, errors.IsCode(err, errors.ErrCodeSizeMismatch))

	_, err = NewSpace([]float64{1, 2, 3}, []int64{1, 2, 3}, WithMaxCompounds(2))
	assert.True(t, errors.IsCode(err, errors.ErrCodeTooManyCompounds))

	_, err = NewSpace([]float64{1, 2, 3}, []int64{1, 2, 3}, WithMaxCompounds(0))
	assert.NoError(t, err)
}

func TestSpace_CountAbove(t *testing.T) {
	s := fourEntitySpace(t)
	assert.Equal(t, 6, s.CountAbove(0))
	assert.Equal(t, 3, s.CountAbove(21))
	assert.Equal(t, 0, s.CountAbove(32))
}

func TestSpace_ComplementMatchesIndexRemoval(t *testing.T) {
	values := make([]float64, PairCount(5))
	for i := range values {
		values[i] = float64(i)
	}
	s, err := NewSpace(values, []int64{1, 2, 3, 4, 5})
	require.NoError(t, err)

	group := []int{1, 3}
	removed := make(map[int]bool)
	for _, p := range group {
		for _, off := range AllIndicesInvolving(p, s.N()) {
			removed[off] = true
		}
	}
	var want []float64
	for off, v := range values {
		if !removed[off] {
			want = append(want, v)
		}
	}

	got := s.Complement(group)
	assert.ElementsMatch(t, want, got)
	// Three entities survive, so three pairs remain.
	assert.Len(t, got, 3)
	assert.Len(t, s.Complement(nil), len(values))
}

func TestSpace_Positions(t *testing.T) {
	s := fourEntitySpace(t)
	pos, err := s.Positions([]int64{103, 100})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 0}, pos)

	_, err = s.Positions([]int64{7})
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnknownEntity))
}
