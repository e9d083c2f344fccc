package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrJobAlreadyClaimed is returned when another execution owns the job or it left pending
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in pending status")

	// ErrStatusConflict is returned when a guarded status write finds an unexpected prior status
	ErrStatusConflict = errors.New("job status changed concurrently")

	// ErrInvalidTransition is returned for a status move that is not forward-only
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidPayload is returned when job payload JSON is malformed
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrAssetNotFound is returned when no object key matches an asset reference
	ErrAssetNotFound = errors.New("asset not found")

	// ErrVendorTimeout is returned when a vendor request exceeded its request timeout
	ErrVendorTimeout = errors.New("vendor request timed out")

	// ErrWorkerLost is the failure cause of a job whose owner stopped heartbeating
	ErrWorkerLost = errors.New("worker lost while job was in progress")
)

// ConfigurationError reports a missing credential or endpoint at startup
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Field + " is required"
}

// AssetNotFoundError reports a required input asset absent from the object store
type AssetNotFoundError struct {
	Bucket  string
	Pattern string
}

func (e *AssetNotFoundError) Error() string {
	return fmt.Sprintf("asset not found: no object in bucket %q matches %q", e.Bucket, e.Pattern)
}

func (e *AssetNotFoundError) Unwrap() error {
	return ErrAssetNotFound
}

// VendorSubmissionError carries the raw vendor response of a rejected submit
type VendorSubmissionError struct {
	Vendor     string
	StatusCode int
	Body       string
	Err        error
}

func (e *VendorSubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s submission failed: %v", e.Vendor, e.Err)
	}
	return fmt.Sprintf("%s submission failed: status %d: %s", e.Vendor, e.StatusCode, e.Body)
}

func (e *VendorSubmissionError) Unwrap() error {
	return e.Err
}

// VendorPollTransientError is a single failed poll; the poller swallows it
type VendorPollTransientError struct {
	Vendor     string
	StatusCode int
	Err        error
}

func (e *VendorPollTransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s poll failed: %v", e.Vendor, e.Err)
	}
	return fmt.Sprintf("%s poll failed: status %d", e.Vendor, e.StatusCode)
}

func (e *VendorPollTransientError) Unwrap() error {
	return e.Err
}

// VendorTerminalFailure is a generation/render failure reported by the vendor itself
type VendorTerminalFailure struct {
	Vendor string
	Handle string
	Reason string
}

func (e *VendorTerminalFailure) Error() string {
	return fmt.Sprintf("%s job %s failed: %s", e.Vendor, e.Handle, e.Reason)
}

// PollingTimeoutError reports that the poll ceiling elapsed without a terminal vendor state
type PollingTimeoutError struct {
	Vendor  string
	Handle  string
	Elapsed time.Duration
}

func (e *PollingTimeoutError) Error() string {
	return fmt.Sprintf("%s job %s did not finish within %s", e.Vendor, e.Handle, e.Elapsed.Round(time.Second))
}

// PersistenceError wraps a failed status or record write
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "persistence error: " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// JobFailedError reports a claimed job that was moved to the failed status.
// The delivery is never requeued: the row already left pending.
type JobFailedError struct {
	JobID  string
	Status JobStatus // status the job failed in
	Err    error
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed during %s: %v", e.JobID, e.Status, e.Err)
}

func (e *JobFailedError) Unwrap() error {
	return e.Err
}
