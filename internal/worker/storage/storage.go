package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/media-jobs/internal/worker/domain"
	"github.com/jmoiron/sqlx"
)

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

const jobColumns = `
	job_id, user_id, job_type, payload::text AS payload, status,
	COALESCE(worker_id, '') AS worker_id,
	COALESCE(generation_id, '') AS generation_id,
	COALESCE(render_id, '') AS render_id,
	COALESCE(vendor_status, '') AS vendor_status,
	COALESCE(result_url, '') AS result_url,
	COALESCE(share_url, '') AS share_url,
	COALESCE(error_message, '') AS error_message,
	created_at, updated_at`

// ClaimJob moves a pending job to processing_assets and records the owner.
// Returns ErrJobAlreadyClaimed if the job is missing or not pending.
func (s *Storage) ClaimJob(ctx context.Context, jobID, workerID string) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    worker_id = $2,
		    started_at = NOW(),
		    last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status = $4
		RETURNING ` + jobColumns

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, domain.JobStatusProcessingAssets, workerID, jobID, domain.JobStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - already claimed or not found",
				slog.String("job_id", jobID),
				slog.String("worker_id", workerID),
			)
			return nil, domain.ErrJobAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	s.logger.Info("Job claimed successfully",
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
		slog.String("job_type", string(job.Kind)),
	)

	return &job, nil
}

// TransitionStatus moves a job from one status to the next, guarded on the
// current status. Returns ErrStatusConflict when the row is not in from.
func (s *Storage) TransitionStatus(ctx context.Context, jobID string, from, to domain.JobStatus) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, to, jobID, from)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	if err := expectOneRow(result); err != nil {
		s.logger.Warn("Job status transition rejected",
			slog.String("job_id", jobID),
			slog.String("from", string(from)),
			slog.String("to", string(to)),
		)
		return err
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("from", string(from)),
		slog.String("status", string(to)),
	)

	return nil
}

// SetGenerationID records the avatar vendor handle
func (s *Storage) SetGenerationID(ctx context.Context, jobID, generationID string) error {
	return s.setSideAttribute(ctx, jobID, "generation_id", generationID)
}

// SetRenderID records the render vendor handle
func (s *Storage) SetRenderID(ctx context.Context, jobID, renderID string) error {
	return s.setSideAttribute(ctx, jobID, "render_id", renderID)
}

// SetVendorStatus records the last vendor status observed while polling
func (s *Storage) SetVendorStatus(ctx context.Context, jobID, vendorStatus string) error {
	return s.setSideAttribute(ctx, jobID, "vendor_status", vendorStatus)
}

// SetShareURL records the public share link of a completed job
func (s *Storage) SetShareURL(ctx context.Context, jobID, shareURL string) error {
	query := `UPDATE jobs SET share_url = $1, updated_at = NOW() WHERE job_id = $2`
	if _, err := s.db.ExecContext(ctx, query, shareURL, jobID); err != nil {
		return fmt.Errorf("failed to set share url: %w", err)
	}
	return nil
}

// column is one of a fixed set of names, never user input
func (s *Storage) setSideAttribute(ctx context.Context, jobID, column, value string) error {
	query := fmt.Sprintf(`
		UPDATE jobs
		SET %s = $1,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status NOT IN ($3, $4)
	`, column)

	result, err := s.db.ExecContext(ctx, query, value, jobID, domain.JobStatusComplete, domain.JobStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", column, err)
	}
	return expectOneRow(result)
}

// CompleteJob marks a job complete from its final working status
func (s *Storage) CompleteJob(ctx context.Context, jobID string, from domain.JobStatus, resultURL string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    result_url = $2,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status = $4
	`

	result, err := s.db.ExecContext(ctx, query, domain.JobStatusComplete, resultURL, jobID, from)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if err := expectOneRow(result); err != nil {
		return err
	}

	s.logger.Info("Job completed",
		slog.String("job_id", jobID),
		slog.String("result_url", resultURL),
	)

	return nil
}

// FailJob marks a job failed with a message. Only non-terminal jobs change;
// a job that already finished returns ErrStatusConflict.
func (s *Storage) FailJob(ctx context.Context, jobID, errorMsg string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    error_message = $2,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status NOT IN ($4, $5)
	`

	result, err := s.db.ExecContext(ctx, query, domain.JobStatusFailed, errorMsg, jobID, domain.JobStatusComplete, domain.JobStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	if err := expectOneRow(result); err != nil {
		return err
	}

	s.logger.Info("Job marked failed",
		slog.String("job_id", jobID),
		slog.String("error", errorMsg),
	)

	return nil
}

// FailStaleJob fails an in-flight job whose heartbeat is older than staleAfter
// and returns the status it was abandoned in. Pending, terminal and live jobs
// are left alone with ErrStatusConflict.
func (s *Storage) FailStaleJob(ctx context.Context, jobID string, staleAfter time.Duration, errorMsg string) (domain.JobStatus, error) {
	query := `
		UPDATE jobs AS j
		SET status = $1,
		    error_message = $2,
		    completed_at = NOW(),
		    updated_at = NOW()
		FROM (SELECT job_id, status FROM jobs WHERE job_id = $3 FOR UPDATE) AS prev
		WHERE j.job_id = prev.job_id
		  AND j.status NOT IN ($4, $5, $6)
		  AND j.last_heartbeat_at < NOW() - make_interval(secs => $7)
		RETURNING prev.status
	`

	var previous domain.JobStatus
	err := s.db.GetContext(ctx, &previous, query,
		domain.JobStatusFailed, errorMsg, jobID,
		domain.JobStatusPending, domain.JobStatusComplete, domain.JobStatusFailed,
		staleAfter.Seconds(),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrStatusConflict
		}
		return "", fmt.Errorf("failed to fail stale job: %w", err)
	}

	s.logger.Warn("Abandoned job marked failed",
		slog.String("job_id", jobID),
		slog.String("abandoned_in", string(previous)),
	)

	return previous, nil
}

// UpdateJobHeartbeat updates the last_heartbeat_at timestamp for a job in flight
func (s *Storage) UpdateJobHeartbeat(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET last_heartbeat_at = NOW()
		WHERE job_id = $1
		  AND status NOT IN ($2, $3, $4)
	`

	result, err := s.db.ExecContext(ctx, query, jobID, domain.JobStatusPending, domain.JobStatusComplete, domain.JobStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to update job heartbeat: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Job heartbeat update - no rows affected (job may have finished)",
			slog.String("job_id", jobID),
		)
	}

	return nil
}

// InsertFaceSwapResult stores a face-swap output row and returns its id
func (s *Storage) InsertFaceSwapResult(ctx context.Context, r domain.FaceSwapResult) (string, error) {
	query := `
		INSERT INTO user_faceswaps (id, user_id, job_id, template_id, storage_path, created_at)
		VALUES (:id, :user_id, :job_id, :template_id, :storage_path, NOW())
		ON CONFLICT (job_id) DO UPDATE SET storage_path = EXCLUDED.storage_path
		RETURNING id
	`

	rows, err := s.db.NamedQueryContext(ctx, query, r)
	if err != nil {
		return "", fmt.Errorf("failed to insert face swap result: %w", err)
	}
	defer rows.Close()

	var id string
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", fmt.Errorf("failed to insert face swap result: %w", err)
		}
		return "", fmt.Errorf("failed to insert face swap result: no id returned")
	}
	if err := rows.Scan(&id); err != nil {
		return "", fmt.Errorf("failed to scan face swap id: %w", err)
	}

	return id, nil
}

// InsertShare stores a public share record
func (s *Storage) InsertShare(ctx context.Context, share domain.PublicShare) error {
	query := `
		INSERT INTO public_shares (id, job_id, user_id, slug, media_url, created_at)
		VALUES (:id, :job_id, :user_id, :slug, :media_url, NOW())
	`

	if _, err := s.db.NamedExecContext(ctx, query, share); err != nil {
		return fmt.Errorf("failed to insert share: %w", err)
	}
	return nil
}

// InsertNotification appends one row to a user's notification feed
func (s *Storage) InsertNotification(ctx context.Context, n domain.Notification) error {
	query := `
		INSERT INTO notifications (user_id, category, message, link, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NOW())
	`

	if _, err := s.db.ExecContext(ctx, query, n.RecipientUserID, n.Category, n.Message, n.Link); err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrStatusConflict
	}
	return nil
}
