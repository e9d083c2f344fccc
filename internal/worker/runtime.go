package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/media-jobs/internal/notify"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

// Runtime runs every kind worker and the notification feed consumer together
type Runtime struct {
	workers   []*Worker
	feed      *notify.FeedConsumer
	source    Source
	feedQueue string
	workerID  string
	logger    *slog.Logger
}

// RuntimeConfig configures a Runtime. Feed may be nil to skip the feed consumer.
type RuntimeConfig struct {
	Workers   []*Worker
	Feed      *notify.FeedConsumer
	Source    Source
	FeedQueue string
	WorkerID  string
	Logger    *slog.Logger
}

// NewRuntime creates a Runtime
func NewRuntime(cfg RuntimeConfig) *Runtime {
	return &Runtime{
		workers:   cfg.Workers,
		feed:      cfg.Feed,
		source:    cfg.Source,
		feedQueue: cfg.FeedQueue,
		workerID:  cfg.WorkerID,
		logger:    cfg.Logger,
	}
}

// Run blocks until ctx is canceled and every worker has drained,
// or until one of them fails to start.
func (r *Runtime) Run(ctx context.Context) error {
	var feed <-chan amqp.Delivery
	if r.feed != nil {
		deliveries, err := r.source.Consume(r.feedQueue, r.workerID+"-feed", 1)
		if err != nil {
			return fmt.Errorf("notification feed: %w", err)
		}
		feed = deliveries
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, w := range r.workers {
		g.Go(func() error {
			return w.Start(gctx)
		})
	}

	if feed != nil {
		g.Go(func() error {
			return r.feed.Run(gctx, feed)
		})
	}

	r.logger.Info("Worker runtime started",
		slog.Int("kinds", len(r.workers)),
		slog.Bool("feed", r.feed != nil),
	)

	err := g.Wait()

	r.logger.Info("Worker runtime stopped")
	return err
}
