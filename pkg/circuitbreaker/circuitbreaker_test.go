package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterFailureThreshold(t *testing.T) {
	cb := NewCircuitBreaker(Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute, HalfOpenMaxRequests: 1})

	failing := errors.New("boom")
	_ = cb.Execute(func() error { return failing })
	_ = cb.Execute(func() error { return failing })

	require.Equal(t, StateOpen, cb.GetState())

	err := cb.Execute(func() error {
		t.Fatal("fn should not run while circuit is open")
		return nil
	})
	require.ErrorIs(t, err, ErrCircuitBreakerOpen)
}

func TestCircuitBreakerHalfOpensAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: 10 * time.Millisecond, HalfOpenMaxRequests: 1})

	_ = cb.Execute(func() error { return errors.New("boom") })
	require.Equal(t, StateOpen, cb.GetState())

	time.Sleep(20 * time.Millisecond)

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	require.NoError(t, err)
	require.True(t, called, "expected fn to run once the breaker enters half-open")
	require.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond, HalfOpenMaxRequests: 1})

	_ = cb.Execute(func() error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)

	_ = cb.Execute(func() error { return errors.New("still failing") })

	require.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreakerResetClearsState(t *testing.T) {
	cb := NewCircuitBreaker(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute, HalfOpenMaxRequests: 1})
	_ = cb.Execute(func() error { return errors.New("boom") })
	require.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	require.Equal(t, StateClosed, cb.GetState())

	require.NoError(t, cb.Execute(func() error { return nil }))
}

func TestCircuitBreakerStaysClosedOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker(Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute, HalfOpenMaxRequests: 1})
	for i := 0; i < 10; i++ {
		require.NoError(t, cb.Execute(func() error { return nil }))
	}
	require.Equal(t, StateClosed, cb.GetState())
}
