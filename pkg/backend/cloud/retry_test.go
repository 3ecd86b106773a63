package cloud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithBackoff_RetriesTransientThenSucceeds(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

	attempts := 0
	err := WithBackoff(context.Background(), cfg, func(error) bool { return true }, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("rate limited")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithBackoff_NonTransientFailsImmediately(t *testing.T) {
	cfg := DefaultRetryConfig()
	attempts := 0

	err := WithBackoff(context.Background(), cfg, func(error) bool { return false }, func() error {
		attempts++
		return errors.New("permission denied")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithBackoff_ExhaustsRetryBudget(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
	attempts := 0

	err := WithBackoff(context.Background(), cfg, func(error) bool { return true }, func() error {
		attempts++
		return errors.New("still rate limited")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts) // initial + MaxRetries
}
