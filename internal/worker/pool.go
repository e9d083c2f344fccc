package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/media-jobs/internal/metrics"
	"github.com/cuongbtq/media-jobs/internal/worker/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned successfully",
		slog.Int("worker_count", w.concurrency),
	)
}

// workerLoop runs jobs until jobsChan is closed
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%s-%d", w.workerID, w.kind, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for d := range w.jobsChan {
		w.logger.Info("Worker received job",
			slog.String("worker_name", workerName),
			slog.String("job_id", d.msg.JobID),
			slog.Uint64("delivery_tag", d.msg.DeliveryTag),
		)

		jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
		err := w.processor.Process(jobCtx, d.msg)
		cancel()

		w.settle(workerName, d, err)
	}

	w.logger.Debug("Worker goroutine stopping - jobsChan closed",
		slog.String("worker_name", workerName),
	)
}

// settle acks or nacks the delivery based on the processing result
func (w *Worker) settle(workerName string, d *delivery, err error) {
	if err == nil {
		if ackErr := d.raw.Ack(false); ackErr != nil {
			w.logger.Error("Failed to ACK message",
				slog.String("worker_name", workerName),
				slog.String("job_id", d.msg.JobID),
				slog.Any("error", ackErr),
			)
		}
		return
	}

	requeue := w.shouldRequeueJob(err)

	switch {
	case errors.Is(err, domain.ErrJobAlreadyClaimed):
		metrics.RecordJobOutcome(string(w.kind), metrics.OutcomeDuplicate)
		w.logger.Info("Duplicate delivery dropped",
			slog.String("worker_name", workerName),
			slog.String("job_id", d.msg.JobID),
		)
	case requeue:
		metrics.RecordJobOutcome(string(w.kind), metrics.OutcomeRequeued)
		w.logger.Warn("Job processing failed before claim, requeueing",
			slog.String("worker_name", workerName),
			slog.String("job_id", d.msg.JobID),
			slog.Any("error", err),
		)
	default:
		w.logger.Error("Job processing failed",
			slog.String("worker_name", workerName),
			slog.String("job_id", d.msg.JobID),
			slog.Any("error", err),
		)
	}

	if nackErr := d.raw.Nack(false, requeue); nackErr != nil {
		w.logger.Error("Failed to NACK message",
			slog.String("worker_name", workerName),
			slog.String("job_id", d.msg.JobID),
			slog.Any("error", nackErr),
		)
	}
}

// shouldRequeueJob determines if a job should be requeued based on the error type
func (w *Worker) shouldRequeueJob(err error) bool {
	// The row already reached failed; a redelivery could not claim it
	var failedErr *domain.JobFailedError
	if errors.As(err, &failedErr) {
		return false
	}

	// Don't requeue if job already claimed by another worker
	if errors.Is(err, domain.ErrJobAlreadyClaimed) {
		return false
	}

	// Don't requeue if invalid payload
	if errors.Is(err, domain.ErrInvalidPayload) {
		return false
	}

	// Requeue for transient/retryable errors
	var retryableErr *domain.RetryableError
	if errors.As(err, &retryableErr) {
		return true
	}

	// Default: don't requeue for unknown errors
	return false
}
