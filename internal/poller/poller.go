// Package poller drives a submitted vendor job to a terminal state by
// polling it at a fixed interval until it finishes or a ceiling elapses.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/media-jobs/internal/metrics"
	"github.com/cuongbtq/media-jobs/internal/vendor"
	"github.com/cuongbtq/media-jobs/internal/worker/domain"
)

const (
	DefaultInterval = 20 * time.Second
	DefaultTimeout  = 15 * time.Minute
)

// ProgressFunc is called each time the observed vendor status changes
type ProgressFunc func(ctx context.Context, result vendor.PollResult)

// Config configures a Poller
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
	Clock    Clock
}

// Poller waits for vendor jobs
type Poller struct {
	interval time.Duration
	timeout  time.Duration
	clock    Clock
	logger   *slog.Logger
}

// New creates a Poller, filling zero config values with defaults
func New(config Config, logger *slog.Logger) *Poller {
	p := &Poller{
		interval: config.Interval,
		timeout:  config.Timeout,
		clock:    config.Clock,
		logger:   logger,
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.clock == nil {
		p.clock = RealClock()
	}
	return p
}

// Result is a finished vendor job
type Result struct {
	URL     string
	Polls   int
	Elapsed time.Duration
}

// Wait polls client for handle until the job is done, fails, or the ceiling
// elapses. It returns *domain.VendorTerminalFailure when the vendor reports a
// failure, *domain.PollingTimeoutError at the ceiling, and ctx.Err() on cancel.
// Transient poll failures are logged and waited out.
func (p *Poller) Wait(ctx context.Context, client vendor.Client, handle vendor.Handle, onProgress ProgressFunc) (Result, error) {
	name := client.Name()
	logger := p.logger.With(
		slog.String("vendor", name),
		slog.String("handle", string(handle)),
	)

	start := p.clock.Now()
	lastStatus := ""
	polls := 0

	for {
		elapsed := p.clock.Now().Sub(start)
		if elapsed >= p.timeout {
			metrics.RecordPollOutcome(name, "timed_out")
			logger.Warn("Vendor job did not finish before polling ceiling",
				slog.Int("polls", polls),
				slog.Duration("elapsed", elapsed),
				slog.String("last_status", lastStatus),
			)
			return Result{Polls: polls, Elapsed: elapsed}, &domain.PollingTimeoutError{
				Vendor:  name,
				Handle:  string(handle),
				Elapsed: elapsed,
			}
		}

		wait := min(p.interval, p.timeout-elapsed)
		select {
		case <-ctx.Done():
			metrics.RecordPollOutcome(name, "canceled")
			return Result{Polls: polls, Elapsed: p.clock.Now().Sub(start)}, ctx.Err()
		case <-p.clock.After(wait):
		}

		res := client.Poll(ctx, handle)
		polls++
		metrics.RecordPoll(name, string(res.State))

		if res.State == vendor.StatePollFailed {
			logger.Warn("Vendor poll failed, will retry",
				slog.Int("poll", polls),
				slog.Any("error", res.Err),
			)
			continue
		}

		status := res.Raw
		if status == "" {
			status = string(res.State)
		}
		if status != lastStatus {
			logger.Info("Vendor status changed",
				slog.String("from", lastStatus),
				slog.String("to", status),
				slog.Int("poll", polls),
			)
			lastStatus = status
			if onProgress != nil {
				onProgress(ctx, res)
			}
		}

		switch res.State {
		case vendor.StateDone:
			elapsed := p.clock.Now().Sub(start)
			metrics.RecordPollOutcome(name, "succeeded")
			return Result{URL: res.ResultURL, Polls: polls, Elapsed: elapsed}, nil
		case vendor.StateFailed:
			metrics.RecordPollOutcome(name, "vendor_failed")
			return Result{Polls: polls, Elapsed: p.clock.Now().Sub(start)}, &domain.VendorTerminalFailure{
				Vendor: name,
				Handle: string(handle),
				Reason: res.Reason,
			}
		}
	}
}
