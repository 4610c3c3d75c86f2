package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryFromCode(t *testing.T) {
	// Given: codes from each numeric range

	// When/Then: category follows the leading digit
	tests := []struct {
		code     string
		category Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeWatchLost, CategoryWatch},
		{ErrCodeIndexTransient, CategoryIndex},
		{ErrCodeStoreUnavailable, CategoryStore},
		{ErrCodeServeRequest, CategoryServe},
		{ErrCodeShutdownTimeout, CategoryShutdown},
		{ErrCodeInternal, CategoryInternal},
	}

	for _, tt := range tests {
		err := New(tt.code, "test", nil)
		assert.Equal(t, tt.category, err.Category, "category for %s", tt.code)
	}
}

func TestNew_DerivesRetryableFromCode(t *testing.T) {
	// Given: a transient index error and a fatal index error
	transient := New(ErrCodeIndexTransient, "store connection reset", nil)
	fatal := New(ErrCodeIndexFatal, "malformed flow definition", nil)

	// Then: only the transient one is retryable
	assert.True(t, transient.Retryable)
	assert.False(t, fatal.Retryable)
}

func TestCocoError_ErrorFormat(t *testing.T) {
	err := New(ErrCodeWatchLost, "watch root removed", nil)
	assert.Equal(t, "[ERR_202_WATCH_LOST] watch root removed", err.Error())
}

func TestCocoError_UnwrapPreservesCause(t *testing.T) {
	// Given: a wrapped underlying error
	cause := stderrors.New("connection refused")
	err := Wrap(ErrCodeStoreUnavailable, cause)

	// Then: errors.Is finds the cause through the chain
	assert.True(t, stderrors.Is(err, cause))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestIsRetryable_WalksWrappedChain(t *testing.T) {
	// Given: a CocoError wrapped by fmt.Errorf
	inner := IndexTransient("store briefly unreachable", nil)
	wrapped := fmt.Errorf("run attempt failed: %w", inner)

	// Then: classification still works
	assert.True(t, IsRetryable(wrapped))
	assert.Equal(t, ErrCodeIndexTransient, GetCode(wrapped))
	assert.Equal(t, CategoryIndex, GetCategory(wrapped))
}

func TestIsRetryable_PlainErrorIsNot(t *testing.T) {
	assert.False(t, IsRetryable(stderrors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestIsFatal(t *testing.T) {
	// Given: a startup watch failure and a transient one
	startup := New(ErrCodeWatchInit, "cannot subscribe to root", nil)
	transient := New(ErrCodeWatchLost, "root transiently unavailable", nil)

	assert.True(t, IsFatal(startup))
	assert.False(t, IsFatal(transient))
}

func TestWithDetail_AddsContext(t *testing.T) {
	err := IndexFatal("bad flow", nil).
		WithDetail("flow", "text_embedding").
		WithDetail("paths", "3")

	require.NotNil(t, err.Details)
	assert.Equal(t, "text_embedding", err.Details["flow"])
	assert.Equal(t, "3", err.Details["paths"])
}

func TestIs_MatchesByCode(t *testing.T) {
	a := IndexTransient("first", nil)
	b := IndexTransient("second", nil)

	assert.True(t, stderrors.Is(a, b), "same code should match via errors.Is")
	assert.False(t, stderrors.Is(a, IndexFatal("other", nil)))
}
