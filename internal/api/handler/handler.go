package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/media-jobs/internal/api/model"
	"github.com/cuongbtq/media-jobs/internal/api/storage"
)

// JobReader is the read side of the jobs table
type JobReader interface {
	GetJobByID(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]model.Job, error)
	Ping(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger  *slog.Logger
	Storage JobReader
	Service string
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger  *slog.Logger
	storage JobReader
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:  deps.Logger,
		storage: deps.Storage,
	}
}
