// Package errors_test exercises the AppError type, its factories, and the
// error-chain helpers.
package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/famsim/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// New / Wrap
// ─────────────────────────────────────────────────────────────────────────────

func TestNew_FieldsAreSetCorrectly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		code    errors.ErrorCode
		message string
	}{
		{"internal error", errors.CodeInternal, "unexpected failure"},
		{"size mismatch", errors.ErrCodeSizeMismatch, "array length 9 != 10"},
		{"cycle", errors.ErrCodeCycleOrDuplicateParent, "node 4 has two parents"},
		{"consistency", errors.ErrCodeAggregationConsistency, "cluster 3 pair count"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ae := errors.New(tc.code, tc.message)

			require.NotNil(t, ae)
			assert.Equal(t, tc.code, ae.Code)
			assert.Equal(t, tc.message, ae.Message)
			assert.Empty(t, ae.Detail)
			assert.Nil(t, ae.Cause)
		})
	}
}

func TestNewf_FormatsMessage(t *testing.T) {
	ae := errors.Newf(errors.ErrCodeUnknownEntity, "entity %d not indexed", 42)
	assert.Equal(t, "entity 42 not indexed", ae.Message)
}

func TestWrap_NilErrReturnsNil(t *testing.T) {
	t.Parallel()

	result := errors.Wrap(nil, errors.CodeInternal, "should not matter")
	assert.Nil(t, result)
}

func TestWrap_CauseChainIsPreserved(t *testing.T) {
	t.Parallel()

	root := stderrors.New("open hierarchy.tsv: no such file")
	wrapped := errors.Wrap(root, errors.ErrCodeInputParse, "failed to read hierarchy")

	require.NotNil(t, wrapped)
	assert.Equal(t, errors.ErrCodeInputParse, wrapped.Code)
	assert.Equal(t, root, stderrors.Unwrap(wrapped))
	assert.Contains(t, wrapped.Error(), "no such file")
}

func TestWrap_PreservesOriginalCodeWhenCodeUnknown(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeSizeMismatch, "bad length")
	outer := errors.Wrap(inner, errors.CodeUnknown, "loading space")

	require.NotNil(t, outer)
	assert.Equal(t, errors.ErrCodeSizeMismatch, outer.Code)
}

func TestWrap_OverridesCodeWhenExplicit(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeSizeMismatch, "bad length")
	outer := errors.Wrap(inner, errors.CodeInternal, "unexpected state")

	assert.Equal(t, errors.CodeInternal, outer.Code)
}

// ─────────────────────────────────────────────────────────────────────────────
// Error() formatting and fluent builders
// ─────────────────────────────────────────────────────────────────────────────

func TestError_Format(t *testing.T) {
	ae := errors.New(errors.ErrCodeSizeMismatch, "similarity array has wrong length")
	assert.Equal(t, "[SIM_001] similarity array has wrong length", ae.Error())

	withDetail := ae.WithDetail("expected=6 actual=5")
	assert.Equal(t, "[SIM_001] similarity array has wrong length: expected=6 actual=5", withDetail.Error())
}

func TestWithDetail_DoesNotMutateOriginal(t *testing.T) {
	orig := errors.New(errors.ErrCodeUnknownEntity, "unknown ligand")
	clone := orig.WithDetailf("id=%d", 7)

	assert.Empty(t, orig.Detail)
	assert.Equal(t, "id=7", clone.Detail)
}

func TestWithDetail_NilReceiverReturnsNil(t *testing.T) {
	var ae *errors.AppError
	assert.Nil(t, ae.WithDetail("x"))
}

// ─────────────────────────────────────────────────────────────────────────────
// IsCode / GetCode
// ─────────────────────────────────────────────────────────────────────────────

func TestIsCode_NestedChain(t *testing.T) {
	inner := errors.New(errors.ErrCodeDegenerateInput, "self pair")
	mid := fmt.Errorf("aggregating cluster 2: %w", inner)
	outer := errors.Wrap(mid, errors.CodeInternal, "gather failed")

	assert.True(t, errors.IsCode(outer, errors.ErrCodeDegenerateInput))
	assert.True(t, errors.IsCode(outer, errors.CodeInternal))
	assert.False(t, errors.IsCode(outer, errors.ErrCodeSizeMismatch))
	assert.False(t, errors.IsCode(nil, errors.CodeInternal))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, errors.CodeOK, errors.GetCode(nil))
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(stderrors.New("plain")))
	assert.Equal(t, errors.ErrCodeSizeMismatch,
		errors.GetCode(fmt.Errorf("ctx: %w", errors.New(errors.ErrCodeSizeMismatch, "x"))))
}

func TestStdlib_ErrorsAs_ExtractsAppError(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", errors.New(errors.ErrCodeAggregationConsistency, "mismatch"))

	var ae *errors.AppError
	require.True(t, errors.As(wrapped, &ae))
	assert.Equal(t, errors.ErrCodeAggregationConsistency, ae.Code)
}
