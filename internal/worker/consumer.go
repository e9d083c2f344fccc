package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/media-jobs/internal/metrics"
	"github.com/cuongbtq/media-jobs/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer opens the kind's queue with prefetch equal to the pool size
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	consumerTag := fmt.Sprintf("%s-%s", w.workerID, w.kind)

	// prefetch == concurrency: never hold more unacked messages than the pool can run
	deliveries, err := w.source.Consume(w.queue, consumerTag, w.concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", consumerTag),
		slog.String("worker_id", w.workerID),
		slog.String("queue", w.queue),
	)

	return deliveries, nil
}

// startMessageDispatcher listens to RabbitMQ deliveries and dispatches jobs to worker pool
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case raw, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			msg, err := w.decode(raw)
			if err != nil {
				w.logger.Error("Rejecting malformed job message",
					slog.Any("error", err),
					slog.Uint64("delivery_tag", raw.DeliveryTag),
				)
				metrics.RecordJobOutcome(string(w.kind), metrics.OutcomeRejected)
				// NACK without requeue - malformed messages go to the dead letter queue
				if nackErr := raw.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.Any("error", nackErr),
					)
				}
				continue
			}

			select {
			case w.jobsChan <- &delivery{msg: msg, raw: raw}:
				w.logger.Debug("Job dispatched to worker pool",
					slog.String("job_id", msg.JobID),
					slog.Uint64("delivery_tag", raw.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching job")
				// NACK the message so it can be reprocessed
				if nackErr := raw.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.Any("error", nackErr),
					)
				}
				return
			}
		}
	}
}

// decode parses a delivery; a message without job_type belongs to this queue's kind
func (w *Worker) decode(raw amqp.Delivery) (domain.JobMessage, error) {
	var msg domain.JobMessage
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	if msg.Kind == "" {
		msg.Kind = w.kind
	}
	if msg.Kind != w.kind {
		return msg, fmt.Errorf("%w: %s message on %s queue", domain.ErrInvalidPayload, msg.Kind, w.kind)
	}
	if err := msg.Validate(); err != nil {
		return msg, err
	}

	msg.DeliveryTag = raw.DeliveryTag
	return msg, nil
}
