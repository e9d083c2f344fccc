package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/media-jobs/internal/assets"
	"github.com/cuongbtq/media-jobs/internal/worker/domain"
)

// resolve retries transient resolver failures with linear backoff;
// a missing asset fails on the first attempt.
func (o *Orchestrator) resolve(ctx context.Context, r *run, ref assets.Ref) (string, error) {
	var err error
	for attempt := 1; attempt <= o.cfg.ResolveAttempts; attempt++ {
		var url string
		url, err = o.deps.Resolver.Resolve(ctx, ref)
		if err == nil {
			return url, nil
		}

		var retryable *domain.RetryableError
		if !errors.As(err, &retryable) {
			return "", err
		}

		if attempt == o.cfg.ResolveAttempts {
			break
		}

		delay := time.Duration(attempt) * o.cfg.ResolveBackoff
		r.logger.Warn("Asset lookup failed, retrying",
			slog.String("bucket", ref.Bucket),
			slog.String("pattern", ref.Pattern()),
			slog.Int("attempt", attempt),
			slog.Duration("retry_after", delay),
			slog.Any("error", err),
		)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}

	// retries exhausted
	var retryable *domain.RetryableError
	if errors.As(err, &retryable) {
		return "", retryable.Err
	}
	return "", err
}
