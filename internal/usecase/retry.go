package usecase

import (
	"context"
	"time"

	"pathembed/internal/domain"
)

// RetryConfig configures exponential backoff for failed chunk requests.
// MaxAttempts of 1 disables retry.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 1,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2,
	}
}

// retryWithBackoff runs fn until it succeeds, returns an error that
// domain.IsRetryable rejects, or runs out of attempts. It returns the number
// of attempts made alongside the result.
func retryWithBackoff[T any](ctx context.Context, config RetryConfig, fn func() (T, error)) (T, int, error) {
	var (
		zero    T
		lastErr error
	)
	attempts := max(config.MaxAttempts, 1)
	multiplier := config.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}
	backoff := config.BaseDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, attempt, ctx.Err()
		}
		if attempt == attempts || !domain.IsRetryable(err) {
			return zero, attempt, lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempt, ctx.Err()
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * multiplier)
		if config.MaxDelay > 0 && backoff > config.MaxDelay {
			backoff = config.MaxDelay
		}
	}

	return zero, attempts, lastErr
}
