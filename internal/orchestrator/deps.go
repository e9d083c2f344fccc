package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/media-jobs/internal/assets"
	"github.com/cuongbtq/media-jobs/internal/poller"
	"github.com/cuongbtq/media-jobs/internal/vendor"
	"github.com/cuongbtq/media-jobs/internal/vendor/faceswap"
	"github.com/cuongbtq/media-jobs/internal/worker/domain"
	"github.com/cuongbtq/media-jobs/shared/redislock"
)

// JobStore is the job persistence the orchestrator drives
type JobStore interface {
	ClaimJob(ctx context.Context, jobID, workerID string) (*domain.Job, error)
	TransitionStatus(ctx context.Context, jobID string, from, to domain.JobStatus) error
	SetGenerationID(ctx context.Context, jobID, generationID string) error
	SetRenderID(ctx context.Context, jobID, renderID string) error
	SetVendorStatus(ctx context.Context, jobID, vendorStatus string) error
	CompleteJob(ctx context.Context, jobID string, from domain.JobStatus, resultURL string) error
	FailJob(ctx context.Context, jobID, errorMsg string) error
	FailStaleJob(ctx context.Context, jobID string, staleAfter time.Duration, errorMsg string) (domain.JobStatus, error)
	UpdateJobHeartbeat(ctx context.Context, jobID string) error
	InsertFaceSwapResult(ctx context.Context, r domain.FaceSwapResult) (string, error)
}

// Lock is a held per-job execution lock
type Lock interface {
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
}

// Locker hands out per-job execution locks
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lock, error)
}

// Resolver turns asset references into signed URLs
type Resolver interface {
	Resolve(ctx context.Context, ref assets.Ref) (string, error)
}

// BlobStore writes results and signs their URLs
type BlobStore interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Remove(ctx context.Context, bucket, key string) error
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// Fetcher downloads a URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// FaceSwapper performs a synchronous face swap
type FaceSwapper interface {
	Swap(ctx context.Context, req faceswap.SwapRequest) ([]byte, error)
}

// Poller waits for a submitted vendor job
type Poller interface {
	Wait(ctx context.Context, client vendor.Client, handle vendor.Handle, onProgress poller.ProgressFunc) (poller.Result, error)
}

// Publisher creates share records and builds links
type Publisher interface {
	Publish(ctx context.Context, jobID, userID, mediaURL string) (string, error)
	SiteRoot() string
	FaceSwapLink(resultID string) string
}

// Notifier enqueues user notifications
type Notifier interface {
	Enqueue(ctx context.Context, n domain.Notification) error
}

// Deps are the collaborators of an Orchestrator. Vendor clients a process
// does not serve may be nil; jobs needing them fail with a ConfigurationError.
type Deps struct {
	Store     JobStore
	Locker    Locker
	Resolver  Resolver
	Blobs     BlobStore
	Fetcher   Fetcher
	FaceSwap  FaceSwapper
	Avatar    vendor.Client
	Render    vendor.Client
	Poller    Poller
	Publisher Publisher
	Notifier  Notifier
}

type redisLocker struct {
	locker *redislock.Locker
}

// NewRedisLocker adapts a redislock.Locker. A held lock is reported as
// domain.ErrJobAlreadyClaimed.
func NewRedisLocker(locker *redislock.Locker) Locker {
	return redisLocker{locker: locker}
}

func (r redisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (Lock, error) {
	lock, err := r.locker.Acquire(ctx, name, ttl)
	if err != nil {
		if errors.Is(err, redislock.ErrLockHeld) {
			return nil, fmt.Errorf("%w: execution lock held", domain.ErrJobAlreadyClaimed)
		}
		return nil, err
	}
	return lock, nil
}
