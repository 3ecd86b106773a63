package cloud

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/caliban-dev/caliban/pkg/calerr"
)

// RetryConfig tunes the exponential-backoff retry loop used for
// rate-limited submissions (spec.md §4.4.2's "retries with backoff up to
// a fixed bound"). The shape mirrors the teacher's storage.RetryConfig.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultRetryConfig bounds a submission to at most 5 retries with
// exponential backoff from 500ms up to 30s, matching the "fixed bound"
// spec.md §4.4.2 calls for without naming exact numbers.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// WithBackoff runs operation, retrying while isTransient(err) is true, up
// to config.MaxRetries times with exponential backoff between attempts.
// A non-transient error is returned immediately and unwrapped; exhausting
// the retry budget returns the last error wrapped as a
// calerr.TransientBackendError, and a cancelled ctx during a backoff wait
// returns a calerr.Cancelled error.
func WithBackoff(ctx context.Context, config RetryConfig, isTransient func(error) bool, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransient(err) {
			return err
		}
		if attempt == config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return calerr.Wrap(calerr.Cancelled, "cloud.WithBackoff", ctx.Err())
		case <-time.After(calculateDelay(attempt, config)):
		}
	}

	return calerr.Wrap(calerr.TransientBackendError, "cloud.WithBackoff", lastErr)
}

func calculateDelay(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	if config.Jitter {
		delay += rand.Float64() * 0.25 * delay
	}
	return time.Duration(delay)
}
