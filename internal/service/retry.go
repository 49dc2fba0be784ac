package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds how often a conflicting unit of work is re-run.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy makes three attempts, backing off 20ms then 40ms.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Backoff: 20 * time.Millisecond}

// retryOnConflict runs fn until it succeeds, fails with a non-conflict error,
// or the attempts are used up. Each attempt must be a complete transaction.
func retryOnConflict(ctx context.Context, policy RetryPolicy, op string, fn func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		conflictRetries.WithLabelValues(op).Inc()
		backoff := policy.Backoff << attempt
		log.Warn().
			Err(err).
			Str("operation", op).
			Int("attempt", attempt+1).
			Dur("next_retry_in", backoff).
			Msg("concurrent update conflict, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientPoints):
		return "insufficient_points"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrAccountExists):
		return "duplicate"
	default:
		return "error"
	}
}
