package orchestrator

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/media-jobs/internal/assets"
	"github.com/cuongbtq/media-jobs/internal/vendor/faceswap"
	"github.com/cuongbtq/media-jobs/internal/worker/domain"
	"github.com/google/uuid"
)

// FaceSwapObjectKey is where a face-swap result is stored in the user content bucket
func FaceSwapObjectKey(userID, jobID string) string {
	return fmt.Sprintf("user_faceswaps/%s/%s.jpg", userID, jobID)
}

func (o *Orchestrator) runFaceSwap(ctx context.Context, r *run, payload []byte) error {
	var params domain.FaceSwapParams
	if err := domain.DecodeParams(payload, &params); err != nil {
		return err
	}
	if params.TemplateID == "" {
		return fmt.Errorf("%w: template_id is required", domain.ErrInvalidPayload)
	}
	if o.deps.FaceSwap == nil {
		return &domain.ConfigurationError{Field: "vendors.faceswap"}
	}

	// processing_assets: source image and template
	source, err := o.sourceImage(ctx, params)
	if err != nil {
		return err
	}

	templateURL, err := o.resolve(ctx, r, assets.Ref{
		Bucket:   o.cfg.Buckets.FaceSwapTemplates,
		Name:     params.TemplateID,
		Category: params.TemplateCategory,
	})
	if err != nil {
		return err
	}

	if err := o.advance(ctx, r, domain.JobStatusSwappingFace); err != nil {
		return err
	}

	image, err := o.deps.FaceSwap.Swap(ctx, faceswap.SwapRequest{
		SourceImage:    source,
		TargetImageURL: templateURL,
	})
	if err != nil {
		return err
	}

	if err := o.advance(ctx, r, domain.JobStatusStoringResult); err != nil {
		return err
	}

	key := FaceSwapObjectKey(r.userID, r.jobID)
	bucket := o.cfg.Buckets.UserContent
	if err := o.deps.Blobs.Put(ctx, bucket, key, image, "image/jpeg"); err != nil {
		return &domain.PersistenceError{Op: "store face swap image", Err: err}
	}

	resultID, err := o.deps.Store.InsertFaceSwapResult(ctx, domain.FaceSwapResult{
		ID:          uuid.NewString(),
		UserID:      r.userID,
		JobID:       r.jobID,
		TemplateID:  params.TemplateID,
		StoragePath: key,
	})
	if err != nil {
		o.discardBlob(ctx, r, bucket, key)
		return &domain.PersistenceError{Op: "insert face swap result", Err: err}
	}

	resultURL, err := o.deps.Blobs.PresignGet(ctx, bucket, key, o.cfg.SignedURLTTL)
	if err != nil {
		return fmt.Errorf("sign face swap result: %w", err)
	}

	if err := o.complete(ctx, r, resultURL); err != nil {
		return err
	}

	r.logger.Info("Face swap stored",
		slog.String("result_id", resultID),
		slog.String("storage_path", key),
	)

	o.notify(ctx, r, domain.Notification{
		RecipientUserID: r.userID,
		Category:        domain.CategoryFaceSwapComplete,
		Message:         "Your face swap is ready!",
		Link:            o.deps.Publisher.FaceSwapLink(resultID),
		JobID:           r.jobID,
	})

	return nil
}

// discardBlob removes a stored result that no row points to
func (o *Orchestrator) discardBlob(ctx context.Context, r *run, bucket, key string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := o.deps.Blobs.Remove(cleanupCtx, bucket, key); err != nil {
		r.logger.Error("Failed to remove orphaned face swap image",
			slog.String("bucket", bucket),
			slog.String("key", key),
			slog.Any("error", err),
		)
	}
}

func (o *Orchestrator) sourceImage(ctx context.Context, params domain.FaceSwapParams) ([]byte, error) {
	if params.SourceImage != "" {
		raw := params.SourceImage
		// data URLs carry a "data:image/...;base64," prefix
		if i := strings.Index(raw, ","); strings.HasPrefix(raw, "data:") && i >= 0 {
			raw = raw[i+1:]
		}
		data, err := base64.StdEncoding.DecodeString(raw)
		if err != nil || len(data) == 0 {
			return nil, fmt.Errorf("%w: source_image is not valid base64", domain.ErrInvalidPayload)
		}
		return data, nil
	}

	if params.SourceImageURL == "" {
		return nil, fmt.Errorf("%w: source_image or source_image_url is required", domain.ErrInvalidPayload)
	}
	if o.deps.Fetcher == nil {
		return nil, &domain.ConfigurationError{Field: "source image fetcher"}
	}

	data, _, err := o.deps.Fetcher.Fetch(ctx, params.SourceImageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch source image: %w", err)
	}
	return data, nil
}
