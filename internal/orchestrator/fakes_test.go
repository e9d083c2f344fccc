package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cuongbtq/media-jobs/internal/assets"
	"github.com/cuongbtq/media-jobs/internal/vendor"
	"github.com/cuongbtq/media-jobs/internal/vendor/faceswap"
	"github.com/cuongbtq/media-jobs/internal/worker/domain"
)

// memStore is a JobStore over one map with the same guards as the SQL
type memStore struct {
	mu            sync.Mutex
	jobs          map[string]*domain.Job
	history       map[string][]domain.JobStatus
	faceSwaps     []domain.FaceSwapResult
	vendorUpdates []string
	heartbeats    map[string]time.Time
	claimErr      error
	insertErr     error
}

func newMemStore(jobs ...domain.Job) *memStore {
	s := &memStore{
		jobs:       map[string]*domain.Job{},
		history:    map[string][]domain.JobStatus{},
		heartbeats: map[string]time.Time{},
	}
	for _, j := range jobs {
		if j.Status == "" {
			j.Status = domain.JobStatusPending
		}
		s.jobs[j.JobID] = &j
		s.history[j.JobID] = []domain.JobStatus{j.Status}
	}
	return s
}

func (s *memStore) set(job *domain.Job, to domain.JobStatus) {
	job.Status = to
	s.history[job.JobID] = append(s.history[job.JobID], to)
}

func (s *memStore) ClaimJob(ctx context.Context, jobID, workerID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	job, ok := s.jobs[jobID]
	if !ok || job.Status != domain.JobStatusPending {
		return nil, domain.ErrJobAlreadyClaimed
	}
	s.set(job, domain.JobStatusProcessingAssets)
	s.heartbeats[jobID] = time.Now()
	job.WorkerID = workerID
	claimed := *job
	return &claimed, nil
}

func (s *memStore) TransitionStatus(ctx context.Context, jobID string, from, to domain.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status != from {
		return domain.ErrStatusConflict
	}
	s.set(job, to)
	return nil
}

func (s *memStore) setAttr(jobID string, apply func(*domain.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status.IsTerminal() {
		return domain.ErrStatusConflict
	}
	apply(job)
	return nil
}

func (s *memStore) SetGenerationID(ctx context.Context, jobID, id string) error {
	return s.setAttr(jobID, func(j *domain.Job) { j.GenerationID = id })
}

func (s *memStore) SetRenderID(ctx context.Context, jobID, id string) error {
	return s.setAttr(jobID, func(j *domain.Job) { j.RenderID = id })
}

func (s *memStore) SetVendorStatus(ctx context.Context, jobID, status string) error {
	return s.setAttr(jobID, func(j *domain.Job) {
		j.VendorStatus = status
		s.vendorUpdates = append(s.vendorUpdates, status)
	})
}

func (s *memStore) CompleteJob(ctx context.Context, jobID string, from domain.JobStatus, resultURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status != from {
		return domain.ErrStatusConflict
	}
	job.ResultURL = resultURL
	s.set(job, domain.JobStatusComplete)
	return nil
}

func (s *memStore) FailJob(ctx context.Context, jobID, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status.IsTerminal() {
		return domain.ErrStatusConflict
	}
	job.ErrorMessage = msg
	s.set(job, domain.JobStatusFailed)
	return nil
}

// FailStaleJob treats a seeded in-flight job with no recorded heartbeat as stale
func (s *memStore) FailStaleJob(ctx context.Context, jobID string, staleAfter time.Duration, msg string) (domain.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status == domain.JobStatusPending || job.Status.IsTerminal() {
		return "", domain.ErrStatusConflict
	}
	if time.Since(s.heartbeats[jobID]) < staleAfter {
		return "", domain.ErrStatusConflict
	}
	previous := job.Status
	job.ErrorMessage = msg
	s.set(job, domain.JobStatusFailed)
	return previous, nil
}

func (s *memStore) UpdateJobHeartbeat(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats[jobID] = time.Now()
	return nil
}

func (s *memStore) InsertFaceSwapResult(ctx context.Context, r domain.FaceSwapResult) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return "", s.insertErr
	}
	s.faceSwaps = append(s.faceSwaps, r)
	return r.ID, nil
}

func (s *memStore) job(jobID string) domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[jobID]
}

// memLocker is an in-process Locker
type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

type memLock struct {
	locker *memLocker
	name   string
}

func newMemLocker() *memLocker {
	return &memLocker{held: map[string]bool{}}
}

func (l *memLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if l.held[name] {
		return nil, domain.ErrJobAlreadyClaimed
	}
	l.held[name] = true
	return &memLock{locker: l, name: name}, nil
}

func (k *memLock) Refresh(ctx context.Context) error { return nil }

func (k *memLock) Release(ctx context.Context) error {
	k.locker.mu.Lock()
	defer k.locker.mu.Unlock()
	delete(k.locker.held, k.name)
	return nil
}

// mapResolver resolves patterns from a fixed table
type mapResolver struct {
	mu       sync.Mutex
	urls     map[string]string // bucket/pattern -> url
	failures int               // transient failures before answering
	calls    int
}

func (r *mapResolver) Resolve(ctx context.Context, ref assets.Ref) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failures > 0 {
		r.failures--
		return "", domain.NewRetryableError(errors.New("listing timed out"))
	}
	url, ok := r.urls[ref.Bucket+"/"+ref.Pattern()]
	if !ok {
		return "", &domain.AssetNotFoundError{Bucket: ref.Bucket, Pattern: ref.Pattern()}
	}
	return url, nil
}

type putCall struct {
	bucket, key, contentType string
	data                     []byte
}

type memBlobs struct {
	mu      sync.Mutex
	puts    []putCall
	removed []string
}

func (b *memBlobs) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts = append(b.puts, putCall{bucket: bucket, key: key, data: data, contentType: contentType})
	return nil
}

func (b *memBlobs) Remove(ctx context.Context, bucket, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removed = append(b.removed, bucket+"/"+key)
	return nil
}

func (b *memBlobs) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return "https://s3.example/" + bucket + "/" + key + "?signed", nil
}

type stubSwapper struct {
	calls []faceswap.SwapRequest
	out   []byte
	err   error
}

func (s *stubSwapper) Swap(ctx context.Context, req faceswap.SwapRequest) ([]byte, error) {
	s.calls = append(s.calls, req)
	return s.out, s.err
}

// scriptedVendor submits with a fixed handle and replays poll results
type scriptedVendor struct {
	name      string
	handle    vendor.Handle
	submitErr error
	results   []vendor.PollResult

	mu      sync.Mutex
	submits []vendor.SubmitRequest
	polls   int
}

func (v *scriptedVendor) Name() string { return v.name }

func (v *scriptedVendor) Submit(ctx context.Context, req vendor.SubmitRequest) (vendor.Handle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.submits = append(v.submits, req)
	if v.submitErr != nil {
		return "", v.submitErr
	}
	return v.handle, nil
}

func (v *scriptedVendor) Poll(ctx context.Context, h vendor.Handle) vendor.PollResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	i := min(v.polls, len(v.results)-1)
	v.polls++
	return v.results[i]
}

func (v *scriptedVendor) submitCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.submits)
}

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (p *fakePublisher) Publish(ctx context.Context, jobID, userID, mediaURL string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.published = append(p.published, jobID)
	return "https://cards.example/share/" + jobID, nil
}

func (p *fakePublisher) SiteRoot() string { return "https://cards.example/" }

func (p *fakePublisher) FaceSwapLink(id string) string {
	return "https://cards.example/faceswaps/" + id
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (n *fakeNotifier) Enqueue(ctx context.Context, note domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, note)
	return nil
}

// instantClock makes every poll wait return immediately
type instantClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *instantClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *instantClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}
