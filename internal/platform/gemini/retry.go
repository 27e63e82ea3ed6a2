package gemini

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/phrazzld/audiopaper-api/internal/generation"
	"github.com/sethvargo/go-retry"
)

// retryPolicy bounds how upstream calls are retried.
type retryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

func (p retryPolicy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	b := retry.NewExponential(base)
	b = retry.WithJitterPercent(50, b)
	return retry.WithMaxRetries(uint64(max(p.MaxRetries, 0)), b)
}

// isPermanent reports whether err must not be retried.
func isPermanent(err error) bool {
	return errors.Is(err, generation.ErrContentBlocked) ||
		errors.Is(err, generation.ErrInvalidResponse) ||
		errors.Is(err, generation.ErrInvalidConfig) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// withRetry runs fn until it succeeds, fails permanently, or the policy is
// exhausted. retryable is consulted after each failure and can veto a retry
// (for instance once tokens have reached the caller).
func withRetry(
	ctx context.Context,
	log *slog.Logger,
	policy retryPolicy,
	retryable func() bool,
	fn func(ctx context.Context) error,
) error {
	attempt := 0
	err := retry.Do(ctx, policy.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if isPermanent(err) || (retryable != nil && !retryable()) {
			log.WarnContext(ctx, "Permanent error occurred, not retrying",
				"attempt", attempt,
				"error", err)
			return err
		}
		log.InfoContext(ctx, "Gemini API call failed, retrying",
			"attempt", attempt,
			"error", err)
		return retry.RetryableError(err)
	})
	if err == nil {
		return nil
	}
	if isPermanent(err) {
		return err
	}
	return errors.Join(generation.ErrTransientFailure, err)
}
