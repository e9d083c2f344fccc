// Package publish creates public share records for finished media and
// builds the links users receive.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/media-jobs/internal/worker/domain"
	"github.com/google/uuid"
)

// Store persists share records
type Store interface {
	InsertShare(ctx context.Context, share domain.PublicShare) error
	SetShareURL(ctx context.Context, jobID, shareURL string) error
}

// Publisher creates shares under siteURL
type Publisher struct {
	store   Store
	siteURL string
	slug    func() string
	logger  *slog.Logger
}

// NewPublisher creates a publisher for links under siteURL
func NewPublisher(store Store, siteURL string, logger *slog.Logger) *Publisher {
	return &Publisher{
		store:   store,
		siteURL: strings.TrimRight(siteURL, "/"),
		slug:    newSlug,
		logger:  logger,
	}
}

// Publish inserts a share for the job's media and records the link on the job
func (p *Publisher) Publish(ctx context.Context, jobID, userID, mediaURL string) (string, error) {
	share := domain.PublicShare{
		ID:       uuid.NewString(),
		JobID:    jobID,
		UserID:   userID,
		Slug:     p.slug(),
		MediaURL: mediaURL,
	}

	if err := p.store.InsertShare(ctx, share); err != nil {
		return "", fmt.Errorf("create share for job %s: %w", jobID, err)
	}

	link := p.ShareLink(share.Slug)
	if err := p.store.SetShareURL(ctx, jobID, link); err != nil {
		return "", fmt.Errorf("record share url for job %s: %w", jobID, err)
	}

	p.logger.Info("Share published",
		slog.String("job_id", jobID),
		slog.String("slug", share.Slug),
	)

	return link, nil
}

// ShareLink is the public URL of a share slug
func (p *Publisher) ShareLink(slug string) string {
	return p.siteURL + "/share/" + slug
}

// SiteRoot is the link used when no share exists
func (p *Publisher) SiteRoot() string {
	return p.siteURL + "/"
}

// FaceSwapLink points at a stored face-swap result
func (p *Publisher) FaceSwapLink(resultID string) string {
	return p.siteURL + "/faceswaps/" + resultID
}

func newSlug() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
