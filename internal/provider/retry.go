package provider

import (
	"context"
	"log/slog"
	"time"
)

// Default retry parameters, used when a ProviderConfig leaves them unset.
const (
	// DefaultMaxRetries is the number of attempts made before giving up.
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the base delay between attempts. The wait before
	// attempt n+1 is DefaultRetryDelay * n (linear backoff).
	DefaultRetryDelay = time.Second
)

// Retry invokes op up to maxAttempts times, waiting baseDelay * attempt
// between attempts (linear backoff). A failure whose classified status is in
// the 4xx range is a client error and is re-raised immediately — retrying a
// request the vendor already rejected as malformed or unauthorized cannot
// succeed. Each attempt is a fresh invocation of op; idempotency is the
// caller's responsibility.
//
// The wait honors ctx cancellation. Failures before the final attempt are
// logged at WARN with the attempt count.
func Retry[T any](ctx context.Context, log *slog.Logger, maxAttempts int, baseDelay time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		classified := Classify(err)
		if classified.Status >= 400 && classified.Status < 500 {
			// Client error — not retryable.
			return zero, err
		}
		if attempt == maxAttempts {
			break
		}

		log.Warn("provider: retryable failure",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.String("kind", string(classified.Kind)),
			slog.Int("status", classified.Status),
		)

		if err := sleep(ctx, baseDelay*time.Duration(attempt)); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
