package storage

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cuongbtq/media-jobs/internal/api/domain"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jobRowColumns = []string{
	"job_id", "user_id", "job_type", "status",
	"generation_id", "render_id", "vendor_status",
	"result_url", "share_url", "error_message",
	"created_at", "updated_at",
}

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStorage(sqlx.NewDb(db, "postgres")), mock
}

func TestStorage_GetJobByID(t *testing.T) {
	s, mock := newMockStorage(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE job_id = $1")).
		WithArgs("J1").
		WillReturnRows(sqlmock.NewRows(jobRowColumns).
			AddRow("J1", "U1", "faceswap", "complete", "", "", "", "https://cdn/r.jpg", "", "", now, now))

	job, err := s.GetJobByID(context.Background(), "J1")
	require.NoError(t, err)
	assert.Equal(t, "complete", job.Status)
	assert.Equal(t, "https://cdn/r.jpg", job.ResultURL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_GetJobByID_NotFound(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE job_id = $1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(jobRowColumns))

	_, err := s.GetJobByID(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestStorage_ListJobs(t *testing.T) {
	s, mock := newMockStorage(t)
	now := time.Now().UTC()
	cursorAt := now.Add(-time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(
		"AND user_id = $1 AND status = $2 AND (created_at, job_id) < ($3, $4) ORDER BY created_at DESC, job_id DESC LIMIT $5")).
		WithArgs("U1", "failed", cursorAt, "J9", 11).
		WillReturnRows(sqlmock.NewRows(jobRowColumns).
			AddRow("J8", "U1", "ai_video_card", "failed", "gen-1", "", "failed", "", "", "avatar: failed", now, now))

	jobs, err := s.ListJobs(context.Background(), JobFilter{
		UserID:   "U1",
		Status:   "failed",
		PageSize: 10,
		Cursor:   &JobCursor{CreatedAt: cursorAt, JobID: "J9"},
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "avatar: failed", jobs[0].ErrorMessage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_ListJobs_Empty(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, job_id DESC LIMIT $1")).
		WithArgs(21).
		WillReturnRows(sqlmock.NewRows(jobRowColumns))

	jobs, err := s.ListJobs(context.Background(), JobFilter{PageSize: 20})
	require.NoError(t, err)
	assert.NotNil(t, jobs)
	assert.Empty(t, jobs)
}
