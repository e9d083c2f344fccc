// Package notify hands completion notifications to the downstream queue and
// consumes that queue into the per-user notification feed.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/media-jobs/internal/metrics"
	"github.com/cuongbtq/media-jobs/internal/worker/domain"
)

// Publisher is the queue the dispatcher writes to
type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, v any) error
}

// Dispatcher enqueues notifications without waiting for delivery
type Dispatcher struct {
	publisher  Publisher
	routingKey string
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher publishing under routingKey
func NewDispatcher(publisher Publisher, routingKey string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		publisher:  publisher,
		routingKey: routingKey,
		logger:     logger,
	}
}

// Enqueue publishes n to the notifications queue in one attempt; the caller logs a failure
func (d *Dispatcher) Enqueue(ctx context.Context, n domain.Notification) error {
	if n.RecipientUserID == "" {
		return fmt.Errorf("%w: notification recipient is required", domain.ErrInvalidPayload)
	}

	if err := d.publisher.PublishJSON(ctx, d.routingKey, n); err != nil {
		metrics.RecordNotification("enqueue", "error")
		return fmt.Errorf("enqueue notification: %w", err)
	}

	metrics.RecordNotification("enqueue", "ok")
	d.logger.Info("Notification enqueued",
		slog.String("user_id", n.RecipientUserID),
		slog.String("category", n.Category),
		slog.String("job_id", n.JobID),
	)

	return nil
}
