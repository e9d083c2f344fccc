package orchestrator

import (
	"context"
	"fmt"

	"github.com/cuongbtq/media-jobs/internal/assets"
	"github.com/cuongbtq/media-jobs/internal/vendor"
	"github.com/cuongbtq/media-jobs/internal/worker/domain"
)

// music tracks are stored as <genre>(slideshow).mp3
const slideshowMusicCategory = "slideshow"

func (o *Orchestrator) runSlideshowCard(ctx context.Context, r *run, payload []byte) error {
	var params domain.SlideshowParams
	if err := domain.DecodeParams(payload, &params); err != nil {
		return err
	}
	if len(params.PhotoURLs) == 0 || params.Genre == "" {
		return fmt.Errorf("%w: photo_urls and genre are required", domain.ErrInvalidPayload)
	}
	if o.deps.Render == nil {
		return &domain.ConfigurationError{Field: "vendors.render"}
	}

	templateID, err := o.template(r.kind, params.TemplateKey, params.Genre)
	if err != nil {
		return err
	}

	// processing_assets: genre music
	musicURL, err := o.resolve(ctx, r, assets.Ref{
		Bucket:   o.cfg.Buckets.Music,
		Name:     params.Genre,
		Category: slideshowMusicCategory,
		Suffix:   ".mp3",
	})
	if err != nil {
		return err
	}

	if err := o.advance(ctx, r, domain.JobStatusRenderingSlideshow); err != nil {
		return err
	}

	fields := map[string]any{
		"music":   musicURL,
		"title":   params.Title,
		"message": params.Message,
	}
	for i, photo := range params.PhotoURLs {
		fields[fmt.Sprintf("photo_%d", i+1)] = photo
	}

	renderID, err := o.deps.Render.Submit(ctx, vendor.SubmitRequest{
		TemplateID:  templateID,
		MergeFields: fields,
	})
	if err != nil {
		return err
	}
	if err := o.deps.Store.SetRenderID(ctx, r.jobID, string(renderID)); err != nil {
		return &domain.PersistenceError{Op: "set render id", Err: err}
	}

	rendered, err := o.deps.Poller.Wait(ctx, o.deps.Render, renderID, o.trackVendorStatus(r))
	if err != nil {
		return err
	}

	if err := o.complete(ctx, r, rendered.URL); err != nil {
		return err
	}

	o.publishAndNotify(ctx, r, rendered.URL, domain.CategorySlideshowComplete, "Your slideshow card is ready!")
	return nil
}
