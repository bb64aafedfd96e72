package ierr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDerivesClassification(t *testing.T) {
	err := New(ErrCodeSidecarDown, "sidecar unreachable", nil)
	assert.Equal(t, CategoryNetwork, err.Category)
	assert.Equal(t, KindSidecarDown, err.Kind)
	assert.True(t, err.Retryable)
	assert.False(t, IsFatal(err))
}

func TestStoreSchemaMismatchIsFatal(t *testing.T) {
	err := StoreSchemaMismatch("dimension changed", nil)
	assert.True(t, IsFatal(err))
	assert.False(t, IsRetryable(err))
}

func TestIsMatchesByCode(t *testing.T) {
	a := New(ErrCodeStoreConflict, "conflict", nil)
	b := New(ErrCodeStoreConflict, "different message", nil)
	assert.True(t, errors.Is(a, b))
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryGivesUpAfterMaxRetries(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	err := Retry(context.Background(), cfg, func() error {
		return errors.New("always fails")
	})
	assert.Error(t, err)
}

func TestCircuitBreakerTripsAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("sidecar", WithMaxFailures(2), WithResetTimeout(10*time.Millisecond))
	boom := errors.New("boom")

	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.State())

	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)

	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}
