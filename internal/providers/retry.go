package providers

import (
	"context"
	"log/slog"
	"time"

	"github.com/Davincible/assistant-bridge/internal/metrics"
)

// DefaultRetryBackoff is the fixed pause before the single retry.
const DefaultRetryBackoff = time.Second

// RetryPolicy retries a transient backend failure exactly once after a fixed,
// cancellable backoff.
type RetryPolicy struct {
	Backoff time.Duration

	// Wait suspends for d or until ctx is done. Nil uses a timer.
	Wait func(ctx context.Context, d time.Duration) error

	Logger *slog.Logger
}

func (p RetryPolicy) backoff() time.Duration {
	if p.Backoff <= 0 {
		return DefaultRetryBackoff
	}
	return p.Backoff
}

func (p RetryPolicy) wait(ctx context.Context, d time.Duration) error {
	if p.Wait != nil {
		return p.Wait(ctx, d)
	}
	return sleepContext(ctx, d)
}

func (p RetryPolicy) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// Retry issues call and classifies its failure. Transient failures are
// retried once; a second transient failure becomes KindRetryExhausted. Every
// other failure is returned immediately. Nothing runs after ctx is done.
func Retry[T any](ctx context.Context, family Family, policy RetryPolicy, call func(context.Context) (T, error)) (T, error) {
	var zero T

	const attempts = 2
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, canceledError(family, err)
		}

		result, err := call(ctx)
		if err == nil {
			return result, nil
		}

		perr := classifyError(ctx, family, err)
		if !IsRetryable(perr) {
			return zero, perr
		}

		if attempt == attempts {
			return zero, &Error{
				Kind:    KindRetryExhausted,
				Family:  family,
				Status:  perr.Status,
				Message: perr.Message,
				Cause:   perr,
			}
		}

		policy.logger().Warn("Transient backend error, retrying",
			"family", family,
			"status", perr.Status,
			"error", perr.Message,
			"backoff", policy.backoff(),
		)
		metrics.BackendRetriesTotal.WithLabelValues(string(family)).Inc()

		if err := policy.wait(ctx, policy.backoff()); err != nil {
			return zero, canceledError(family, err)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
