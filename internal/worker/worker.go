package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/media-jobs/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultConcurrency     = 5
	defaultJobTimeout      = 35 * time.Minute
	defaultShutdownTimeout = 30 * time.Second
)

// Processor runs one job to a terminal status
type Processor interface {
	Process(ctx context.Context, msg domain.JobMessage) error
}

// Source opens a delivery stream for a queue
type Source interface {
	Consume(queue, consumerTag string, prefetch int) (<-chan amqp.Delivery, error)
}

// Config holds worker configuration
type Config struct {
	Logger          *slog.Logger
	Source          Source
	Processor       Processor
	Kind            domain.JobKind
	Queue           string
	WorkerID        string
	Concurrency     int
	JobTimeout      time.Duration
	ShutdownTimeout time.Duration
}

// Worker consumes the queue of one job kind with a bounded pool
type Worker struct {
	logger          *slog.Logger
	source          Source
	processor       Processor
	kind            domain.JobKind
	queue           string
	workerID        string
	concurrency     int
	jobTimeout      time.Duration
	shutdownTimeout time.Duration
	jobsChan        chan *delivery
	wg              sync.WaitGroup
}

// delivery pairs a decoded message with the delivery that settles it
type delivery struct {
	msg domain.JobMessage
	raw amqp.Delivery
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:          cfg.Logger.With(slog.String("job_type", string(cfg.Kind))),
		source:          cfg.Source,
		processor:       cfg.Processor,
		kind:            cfg.Kind,
		queue:           cfg.Queue,
		workerID:        cfg.WorkerID,
		concurrency:     cfg.Concurrency,
		jobTimeout:      cfg.JobTimeout,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	if w.concurrency <= 0 {
		w.concurrency = defaultConcurrency
	}
	if w.jobTimeout <= 0 {
		w.jobTimeout = defaultJobTimeout
	}
	if w.shutdownTimeout <= 0 {
		w.shutdownTimeout = defaultShutdownTimeout
	}
	w.jobsChan = make(chan *delivery)
	return w
}

// Start consumes until ctx is canceled, then waits for in-flight jobs.
// In-flight jobs keep running after cancel for up to the shutdown timeout.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("queue", w.queue),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("worker %s: %w", w.kind, err)
	}

	// jobs outlive ctx until the shutdown timeout
	procCtx, cancelProc := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelProc()

	drained := make(chan struct{})
	go func() {
		select {
		case <-drained:
			return
		case <-ctx.Done():
		}
		select {
		case <-drained:
		case <-time.After(w.shutdownTimeout):
			w.logger.Warn("Shutdown timeout reached, canceling in-flight jobs",
				slog.Duration("shutdown_timeout", w.shutdownTimeout),
			)
			cancelProc()
		}
	}()

	w.spawnWorkerPool(procCtx)
	w.startMessageDispatcher(ctx, deliveries)

	close(w.jobsChan)
	w.logger.Info("Waiting for in-flight jobs")
	w.wg.Wait()
	close(drained)

	w.logger.Info("Worker stopped")
	return nil
}
