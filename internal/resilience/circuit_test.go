package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errLookupDown = errors.New("reference returned 503")

func failingCall(_ context.Context) error { return errLookupDown }

func okCall(_ context.Context) error { return nil }

func tripBreaker(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(context.Background(), failingCall)
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     time.Hour,
	})

	tripBreaker(cb, 2)
	assert.Equal(t, CircuitClosed, cb.State(), "below threshold the circuit stays closed")

	tripBreaker(cb, 1)
	assert.Equal(t, CircuitOpen, cb.State())

	err := cb.Execute(context.Background(), okCall)
	assert.ErrorIs(t, err, ErrCircuitOpen, "open circuit must reject without calling fn")
}

func TestCircuitBreaker_SuccessResetsFailureRun(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     time.Hour,
	})

	tripBreaker(cb, 2)
	require.NoError(t, cb.Execute(context.Background(), okCall))
	tripBreaker(cb, 2)

	assert.Equal(t, CircuitClosed, cb.State(), "non-consecutive failures must not open the circuit")
}

func TestCircuitBreaker_HalfOpenProbeRecovers(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold:  1,
		ResetTimeout:      time.Minute,
		HalfOpenMaxProbes: 1,
	})
	cb.nowFunc = func() time.Time { return now }

	tripBreaker(cb, 1)
	require.Equal(t, CircuitOpen, cb.State())

	// After the reset window one probe is admitted; success closes.
	now = now.Add(2 * time.Minute)
	assert.Equal(t, CircuitHalfOpen, cb.State())
	require.NoError(t, cb.Execute(context.Background(), okCall))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
	})
	cb.nowFunc = func() time.Time { return now }

	tripBreaker(cb, 1)
	now = now.Add(2 * time.Minute)

	require.Error(t, cb.Execute(context.Background(), failingCall))
	assert.Equal(t, CircuitOpen, cb.State())

	// The reopened circuit rejects until the window elapses again.
	assert.ErrorIs(t, cb.Execute(context.Background(), okCall), ErrCircuitOpen)
}

func TestCircuitBreaker_ShouldTripFiltersErrors(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
		ShouldTrip:       IsTransient,
	})

	// A permanent error passes through without tripping.
	require.Error(t, cb.Execute(context.Background(), func(_ context.Context) error {
		return errors.New("unknown field name")
	}))
	assert.Equal(t, CircuitClosed, cb.State())

	require.Error(t, cb.Execute(context.Background(), func(_ context.Context) error {
		return NewTransientError(errLookupDown, 503)
	}))
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	var transitions []CircuitState
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
		OnStateChange:    func(_, to CircuitState) { transitions = append(transitions, to) },
	})

	tripBreaker(cb, 1)
	cb.Reset()

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, []CircuitState{CircuitOpen, CircuitClosed}, transitions)
	assert.NoError(t, cb.Execute(context.Background(), okCall))
}

func TestExecuteVal_PreservesValue(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	val, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (string, error) {
		return "sulfuric acid", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "sulfuric acid", val)
}

func TestExecuteVal_OpenCircuitReturnsZeroValue(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
	})
	tripBreaker(cb, 1)

	val, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (int, error) {
		t.Fatal("fn must not run through an open circuit")
		return 7, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, val)
}

func TestServiceBreakers_OnePerService(t *testing.T) {
	sb := NewServiceBreakers(DefaultCircuitBreakerConfig())

	first := sb.Get("pubchem")
	again := sb.Get("pubchem")
	other := sb.Get("cameo")

	assert.Same(t, first, again)
	assert.NotSame(t, first, other)
}

func TestServiceBreakers_StatesIsolateFailures(t *testing.T) {
	sb := NewServiceBreakers(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
	})

	tripBreaker(sb.Get("pubchem"), 1)
	_ = sb.Get("cameo")

	states := sb.States()
	assert.Equal(t, CircuitOpen, states["pubchem"])
	assert.Equal(t, CircuitClosed, states["cameo"], "one tripped mirror must not affect the others")
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(42).String())
}
