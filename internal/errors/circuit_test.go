package errors

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := NewCircuitBreaker("store")

	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given: a breaker tripping after 3 failures
	cb := NewCircuitBreaker("store", WithMaxFailures(3))

	// When: recording 3 failures
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}

	// Then: the circuit is open and blocks requests
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("store", WithMaxFailures(3))

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	assert.Equal(t, 0, cb.Failures())
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	// Given: an open breaker with a short reset timeout
	cb := NewCircuitBreaker("store",
		WithMaxFailures(1),
		WithResetTimeout(20*time.Millisecond))
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	// When: the reset timeout elapses
	time.Sleep(30 * time.Millisecond)

	// Then: the breaker allows a probe request
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_ExecuteOpenReturnsErrCircuitOpen(t *testing.T) {
	cb := NewCircuitBreaker("store", WithMaxFailures(1), WithResetTimeout(time.Hour))
	cb.RecordFailure()

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "function must not run while circuit is open")
}

func TestCircuitBreaker_HalfOpenProbeSuccessCloses(t *testing.T) {
	// Given: an open breaker past its reset timeout
	cb := NewCircuitBreaker("store",
		WithMaxFailures(1),
		WithResetTimeout(10*time.Millisecond))
	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	// When: the probe request succeeds
	err := cb.Execute(func() error { return nil })

	// Then: the circuit closes again
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("store",
		WithMaxFailures(1),
		WithResetTimeout(10*time.Millisecond))
	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	probeErr := stderrors.New("still down")
	err := cb.Execute(func() error { return probeErr })

	assert.ErrorIs(t, err, probeErr)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitDo_ReturnsValue(t *testing.T) {
	cb := NewCircuitBreaker("store")

	result, err := CircuitDo(cb, func() (int, error) { return 42, nil })

	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestCircuitDo_OpenReturnsZeroValue(t *testing.T) {
	cb := NewCircuitBreaker("store", WithMaxFailures(1), WithResetTimeout(time.Hour))
	cb.RecordFailure()

	result, err := CircuitDo(cb, func() (int, error) { return 42, nil })

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, result)
}
