package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cuongbtq/media-jobs/internal/metrics"
	"github.com/cuongbtq/media-jobs/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// FeedStore persists feed rows
type FeedStore interface {
	InsertNotification(ctx context.Context, n domain.Notification) error
}

// FeedConsumer turns queued notifications into feed rows
type FeedConsumer struct {
	store  FeedStore
	logger *slog.Logger
}

// NewFeedConsumer creates a feed consumer
func NewFeedConsumer(store FeedStore, logger *slog.Logger) *FeedConsumer {
	return &FeedConsumer{store: store, logger: logger}
}

// Run handles deliveries until ctx is done or the channel closes
func (f *FeedConsumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	f.logger.Info("Notification feed consumer started")

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("Notification feed consumer stopping")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				f.logger.Warn("Notification delivery channel closed")
				return nil
			}
			f.Handle(ctx, d)
		}
	}
}

// Handle processes one delivery. Malformed messages are logged and acked;
// a failed insert is nacked with requeue.
func (f *FeedConsumer) Handle(ctx context.Context, d amqp.Delivery) {
	var n domain.Notification
	if err := json.Unmarshal(d.Body, &n); err != nil || n.RecipientUserID == "" || n.Message == "" {
		f.logger.Error("Dropping malformed notification",
			slog.Any("error", err),
			slog.Uint64("delivery_tag", d.DeliveryTag),
		)
		metrics.RecordNotification("feed", "malformed")
		f.ack(d)
		return
	}

	if f.store == nil {
		f.logger.Error("Notification store unavailable, dropping message",
			slog.String("user_id", n.RecipientUserID),
		)
		metrics.RecordNotification("feed", "dropped")
		f.ack(d)
		return
	}

	if err := f.store.InsertNotification(ctx, n); err != nil {
		f.logger.Error("Failed to insert notification, requeueing",
			slog.String("user_id", n.RecipientUserID),
			slog.Any("error", err),
		)
		metrics.RecordNotification("feed", "error")
		if nackErr := d.Nack(false, true); nackErr != nil {
			f.logger.Error("Failed to nack notification", slog.Any("error", nackErr))
		}
		return
	}

	metrics.RecordNotification("feed", "ok")
	f.logger.Debug("Notification stored",
		slog.String("user_id", n.RecipientUserID),
		slog.String("category", n.Category),
	)
	f.ack(d)
}

func (f *FeedConsumer) ack(d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		f.logger.Error("Failed to ack notification", slog.Any("error", err))
	}
}
