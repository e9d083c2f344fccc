// Package orchestrator drives a job through its kind's pipeline: claim,
// asset resolution, vendor calls, result persistence, publishing and
// notification, recording every status move on the job row.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/media-jobs/internal/metrics"
	"github.com/cuongbtq/media-jobs/internal/poller"
	"github.com/cuongbtq/media-jobs/internal/vendor"
	"github.com/cuongbtq/media-jobs/internal/worker/domain"
)

const (
	defaultLockTTL           = 2 * time.Minute
	defaultHeartbeatInterval = 30 * time.Second
	defaultSignedURLTTL      = time.Hour
	defaultResolveAttempts   = 3
	defaultResolveBackoff    = time.Second

	// bookkeeping writes after the job context is gone
	cleanupTimeout = 10 * time.Second
)

// Buckets names the object store buckets per asset category
type Buckets struct {
	Characters        string
	Voices            string
	Music             string
	FaceSwapTemplates string
	UserContent       string
}

// Config configures an Orchestrator
type Config struct {
	WorkerID          string
	LockTTL           time.Duration
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration // heartbeat age after which an in-flight job is abandoned
	SignedURLTTL      time.Duration
	ResolveAttempts   int
	ResolveBackoff    time.Duration
	Buckets           Buckets
	Templates         map[string]string // template key or genre -> render template id
}

// Orchestrator runs jobs
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
}

// New creates an Orchestrator
func New(cfg Config, deps Deps, logger *slog.Logger) *Orchestrator {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * cfg.LockTTL
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedURLTTL
	}
	if cfg.ResolveAttempts <= 0 {
		cfg.ResolveAttempts = defaultResolveAttempts
	}
	if cfg.ResolveBackoff <= 0 {
		cfg.ResolveBackoff = defaultResolveBackoff
	}
	return &Orchestrator{cfg: cfg, deps: deps, logger: logger}
}

// run is the in-memory view of one execution
type run struct {
	jobID     string
	userID    string
	kind      domain.JobKind
	status    domain.JobStatus
	enteredAt time.Time
	claimedAt time.Time
	logger    *slog.Logger
}

// Process executes one job message to a terminal status.
//
// Pre-claim failures (lock store or database unavailable) come back as
// *domain.RetryableError. A duplicate delivery returns ErrJobAlreadyClaimed.
// Any failure after the claim marks the job failed and returns *domain.JobFailedError,
// as does a redelivered job whose previous owner stopped heartbeating.
func (o *Orchestrator) Process(ctx context.Context, msg domain.JobMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	logger := o.logger.With(
		slog.String("job_id", msg.JobID),
		slog.String("job_type", string(msg.Kind)),
	)

	// Step 1: Take the per-job execution lock
	lock, err := o.deps.Locker.Acquire(ctx, msg.JobID, o.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			logger.Warn("Job is being executed elsewhere, skipping")
			return err
		}
		logger.Error("Failed to acquire job lock", slog.Any("error", err))
		return domain.NewRetryableError(fmt.Errorf("acquire lock: %w", err))
	}
	defer o.release(ctx, lock, logger)

	// Step 2: Claim the row (pending -> processing_assets)
	job, err := o.deps.Store.ClaimJob(ctx, msg.JobID, o.cfg.WorkerID)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			return o.failAbandoned(ctx, msg, logger, err)
		}
		logger.Error("Failed to claim job", slog.Any("error", err))
		return domain.NewRetryableError(&domain.PersistenceError{Op: "claim job", Err: err})
	}

	now := time.Now()
	r := &run{
		jobID:     msg.JobID,
		userID:    msg.UserID,
		kind:      msg.Kind,
		status:    domain.JobStatusProcessingAssets,
		enteredAt: now,
		claimedAt: now,
		logger:    logger,
	}
	defer metrics.JobStarted(string(r.kind))()

	payload := []byte(msg.Payload)
	if len(payload) == 0 {
		payload = []byte(job.Payload)
	}

	// Step 3: Keep the heartbeat and the lock alive while the pipeline runs
	jobCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.heartbeat(jobCtx, r, lock)
	}()

	// Step 4: Execute the kind pipeline
	if job.Kind != "" && job.Kind != msg.Kind {
		err = fmt.Errorf("%w: message kind %s does not match job kind %s", domain.ErrInvalidPayload, msg.Kind, job.Kind)
	} else {
		err = o.execute(jobCtx, r, payload)
	}

	cancel()
	wg.Wait()

	// Step 5: Record the failure
	if err != nil {
		return o.fail(ctx, r, err)
	}

	metrics.RecordJobOutcome(string(r.kind), metrics.OutcomeComplete)
	metrics.ObserveJobDuration(string(r.kind), metrics.OutcomeComplete, time.Since(r.claimedAt))
	logger.Info("Job completed successfully",
		slog.Duration("duration", time.Since(r.claimedAt)),
	)

	return nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run, payload []byte) error {
	switch r.kind {
	case domain.KindFaceSwap:
		return o.runFaceSwap(ctx, r, payload)
	case domain.KindAIVideoCard:
		return o.runAIVideoCard(ctx, r, payload)
	case domain.KindSlideshowCard:
		return o.runSlideshowCard(ctx, r, payload)
	default:
		return fmt.Errorf("%w: unknown job_type %q", domain.ErrInvalidPayload, r.kind)
	}
}

// fail moves the job to failed unless it is already terminal
func (o *Orchestrator) fail(ctx context.Context, r *run, cause error) error {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	r.logger.Error("Job execution failed",
		slog.String("status", string(r.status)),
		slog.Any("error", cause),
	)

	if err := o.deps.Store.FailJob(cleanupCtx, r.jobID, cause.Error()); err != nil {
		if errors.Is(err, domain.ErrStatusConflict) {
			r.logger.Warn("Job already terminal, failure not recorded")
		} else {
			r.logger.Error("Failed to update job status to FAILED", slog.Any("error", err))
		}
	}

	metrics.ObserveStage(string(r.kind), string(r.status), time.Since(r.enteredAt))
	metrics.RecordJobOutcome(string(r.kind), metrics.OutcomeFailed)
	metrics.ObserveJobDuration(string(r.kind), metrics.OutcomeFailed, time.Since(r.claimedAt))

	if r.kind == domain.KindFaceSwap {
		o.notify(cleanupCtx, r, o.faceSwapFailure(r))
	}

	return &domain.JobFailedError{JobID: r.jobID, Status: r.status, Err: cause}
}

// failAbandoned settles a delivery for a job that already left pending. With
// the execution lock held, a non-terminal job whose heartbeat went stale has
// lost its worker and is failed; anything else is a duplicate.
func (o *Orchestrator) failAbandoned(ctx context.Context, msg domain.JobMessage, logger *slog.Logger, claimErr error) error {
	previous, err := o.deps.Store.FailStaleJob(ctx, msg.JobID, o.cfg.StaleAfter, domain.ErrWorkerLost.Error())
	if err != nil {
		if errors.Is(err, domain.ErrStatusConflict) {
			logger.Warn("Job already claimed, skipping")
			return claimErr
		}
		logger.Error("Failed to check job for a lost worker", slog.Any("error", err))
		return domain.NewRetryableError(&domain.PersistenceError{Op: "fail stale job", Err: err})
	}

	logger.Error("Job abandoned by its worker, marked failed",
		slog.String("status", string(previous)),
		slog.Duration("stale_after", o.cfg.StaleAfter),
	)
	metrics.RecordJobOutcome(string(msg.Kind), metrics.OutcomeFailed)

	r := &run{jobID: msg.JobID, userID: msg.UserID, kind: msg.Kind, status: previous, logger: logger}
	if r.kind == domain.KindFaceSwap {
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		o.notify(notifyCtx, r, o.faceSwapFailure(r))
	}

	return &domain.JobFailedError{JobID: msg.JobID, Status: previous, Err: domain.ErrWorkerLost}
}

func (o *Orchestrator) faceSwapFailure(r *run) domain.Notification {
	return domain.Notification{
		RecipientUserID: r.userID,
		Category:        domain.CategoryFaceSwapFailed,
		Message:         "We couldn't finish your face swap. Please try again.",
		Link:            o.deps.Publisher.SiteRoot(),
		JobID:           r.jobID,
	}
}

// advance performs the guarded status write to the next stage
func (o *Orchestrator) advance(ctx context.Context, r *run, to domain.JobStatus) error {
	if err := domain.ValidateTransition(r.kind, r.status, to); err != nil {
		return err
	}
	if err := o.deps.Store.TransitionStatus(ctx, r.jobID, r.status, to); err != nil {
		return &domain.PersistenceError{Op: "set status " + string(to), Err: err}
	}

	metrics.ObserveStage(string(r.kind), string(r.status), time.Since(r.enteredAt))
	r.logger.Info("Job advanced",
		slog.String("from", string(r.status)),
		slog.String("to", string(to)),
	)
	r.status = to
	r.enteredAt = time.Now()
	return nil
}

// complete writes the terminal complete status with the result URL
func (o *Orchestrator) complete(ctx context.Context, r *run, resultURL string) error {
	if err := domain.ValidateTransition(r.kind, r.status, domain.JobStatusComplete); err != nil {
		return err
	}
	if err := o.deps.Store.CompleteJob(ctx, r.jobID, r.status, resultURL); err != nil {
		return &domain.PersistenceError{Op: "complete job", Err: err}
	}

	metrics.ObserveStage(string(r.kind), string(r.status), time.Since(r.enteredAt))
	r.status = domain.JobStatusComplete
	r.enteredAt = time.Now()
	return nil
}

// trackVendorStatus persists the vendor status each time it changes
func (o *Orchestrator) trackVendorStatus(r *run) poller.ProgressFunc {
	return func(ctx context.Context, res vendor.PollResult) {
		status := res.Raw
		if status == "" {
			status = string(res.State)
		}
		if err := o.deps.Store.SetVendorStatus(ctx, r.jobID, status); err != nil {
			r.logger.Warn("Failed to record vendor status",
				slog.String("vendor_status", status),
				slog.Any("error", err),
			)
		}
	}
}

// publishAndNotify runs the post-completion side effects; neither can fail the job
func (o *Orchestrator) publishAndNotify(ctx context.Context, r *run, mediaURL, category, message string) {
	link := o.deps.Publisher.SiteRoot()

	shareLink, err := o.deps.Publisher.Publish(ctx, r.jobID, r.userID, mediaURL)
	if err != nil {
		r.logger.Warn("Failed to publish share, notifying with site link",
			slog.Any("error", err),
		)
	} else {
		link = shareLink
	}

	o.notify(ctx, r, domain.Notification{
		RecipientUserID: r.userID,
		Category:        category,
		Message:         message,
		Link:            link,
		JobID:           r.jobID,
	})
}

func (o *Orchestrator) notify(ctx context.Context, r *run, n domain.Notification) {
	if err := o.deps.Notifier.Enqueue(ctx, n); err != nil {
		r.logger.Warn("Failed to enqueue notification",
			slog.String("category", n.Category),
			slog.Any("error", err),
		)
	}
}

func (o *Orchestrator) heartbeat(ctx context.Context, r *run, lock Lock) {
	ticker := time.NewTicker(o.cfg.HeartbeatInterval)
	defer ticker.Stop()

	r.logger.Debug("Job heartbeat started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("Job heartbeat stopped")
			return

		case <-ticker.C:
			if err := o.deps.Store.UpdateJobHeartbeat(ctx, r.jobID); err != nil {
				r.logger.Warn("Failed to update job heartbeat", slog.Any("error", err))
			}
			if err := lock.Refresh(ctx); err != nil {
				r.logger.Warn("Failed to refresh job lock", slog.Any("error", err))
			}
		}
	}
}

func (o *Orchestrator) release(ctx context.Context, lock Lock, logger *slog.Logger) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := lock.Release(releaseCtx); err != nil {
		logger.Warn("Failed to release job lock", slog.Any("error", err))
	}
}
