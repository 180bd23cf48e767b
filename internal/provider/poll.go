package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// PollPolicy bounds the wait for an asynchronous file ingestion to reach a
// terminal state. The delay between polls grows multiplicatively up to a cap.
//
// This policy deliberately differs from the generic retry executor on one
// point: a NotFound during polling is an expected race with the vendor's
// eventual consistency (the attachment record is not visible yet) and counts
// as "not ready", while everywhere else a 404 is terminal. Keeping the two
// policies separate avoids masking real not-found conditions in non-polling
// call paths.
type PollPolicy struct {
	// MaxAttempts is the poll budget. Exhausting it raises a Timeout error.
	MaxAttempts int
	// InitialDelay is the wait after the first non-terminal poll.
	InitialDelay time.Duration
	// MaxDelay caps the per-step delay.
	MaxDelay time.Duration
	// Factor multiplies the delay after each poll.
	Factor float64
}

// DefaultPollPolicy returns the production ingestion-wait policy: up to 60
// polls, 1s initial delay growing 1.5x per step, capped at 5s.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		MaxAttempts:  60,
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
		Factor:       1.5,
	}
}

// WaitForFile polls fetch until the attachment reaches a terminal state or
// the policy's attempt budget is exhausted. The first poll happens
// immediately. fetch must return the current attachment state or a
// classified error.
//
// Outcomes:
//   - Completed: the FileInfo is returned.
//   - Failed: a Server-kind error carrying the vendor's failure reason.
//   - Cancelled: a distinct Validation-kind cancellation error.
//   - NotFound from fetch: treated as not-yet-visible and retried.
//   - budget exhausted: a Timeout error naming the attempt count.
//
// Polls are strictly sequential; no concurrent polls are issued for the
// same attachment.
func (p PollPolicy) WaitForFile(ctx context.Context, log *slog.Logger, fileID string, fetch func(context.Context) (*FileInfo, error)) (*FileInfo, error) {
	delay := p.InitialDelay

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		info, err := fetch(ctx)
		switch {
		case err != nil && IsKind(err, KindNotFound):
			// Attachment record not yet visible — an eventual-consistency
			// race, not a terminal failure.
			log.Debug("provider: attachment not visible yet",
				slog.String("file_id", fileID),
				slog.Int("attempt", attempt),
			)
		case err != nil:
			return nil, err
		case info.Status == FileCompleted:
			return info, nil
		case info.Status == FileFailed:
			msg := "file ingestion failed"
			if info.FailureReason != "" {
				msg = fmt.Sprintf("file ingestion failed: %s", info.FailureReason)
			}
			return nil, NewError(KindServer, msg)
		case info.Status == FileCancelled:
			return nil, NewError(KindValidation, "file ingestion was cancelled")
		}

		if attempt == p.MaxAttempts {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay = min(time.Duration(float64(delay)*p.Factor), p.MaxDelay)
	}

	return nil, NewError(KindTimeout,
		fmt.Sprintf("file %s did not reach a terminal state after %d polls", fileID, p.MaxAttempts))
}
