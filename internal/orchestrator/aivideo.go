package orchestrator

import (
	"context"
	"fmt"

	"github.com/cuongbtq/media-jobs/internal/assets"
	"github.com/cuongbtq/media-jobs/internal/vendor"
	"github.com/cuongbtq/media-jobs/internal/worker/domain"
)

func (o *Orchestrator) runAIVideoCard(ctx context.Context, r *run, payload []byte) error {
	var params domain.AIVideoParams
	if err := domain.DecodeParams(payload, &params); err != nil {
		return err
	}
	if params.Character == "" || params.Genre == "" {
		return fmt.Errorf("%w: character and genre are required", domain.ErrInvalidPayload)
	}
	if o.deps.Avatar == nil || o.deps.Render == nil {
		return &domain.ConfigurationError{Field: "vendors.avatar and vendors.render"}
	}

	templateID, err := o.template(r.kind, params.TemplateKey, params.Genre)
	if err != nil {
		return err
	}

	// processing_assets: character image and voice
	characterURL, err := o.resolve(ctx, r, assets.Ref{
		Bucket:   o.cfg.Buckets.Characters,
		Name:     params.Character,
		Category: params.Genre,
		Suffix:   ".png",
	})
	if err != nil {
		return err
	}

	voiceURL, err := o.resolve(ctx, r, assets.Ref{
		Bucket:   o.cfg.Buckets.Voices,
		Name:     params.Character,
		Category: params.Genre,
		Suffix:   ".mp3",
	})
	if err != nil {
		return err
	}

	if err := o.advance(ctx, r, domain.JobStatusGeneratingAIVideo); err != nil {
		return err
	}

	generationID, err := o.deps.Avatar.Submit(ctx, vendor.SubmitRequest{
		Assets: []vendor.AssetInput{
			{Name: "character", URL: characterURL},
			{Name: "voice", URL: voiceURL},
		},
		Params: map[string]any{
			"script":         params.Message,
			"recipient_name": params.RecipientName,
			"sender_name":    params.SenderName,
		},
	})
	if err != nil {
		return err
	}
	if err := o.deps.Store.SetGenerationID(ctx, r.jobID, string(generationID)); err != nil {
		return &domain.PersistenceError{Op: "set generation id", Err: err}
	}

	generated, err := o.deps.Poller.Wait(ctx, o.deps.Avatar, generationID, o.trackVendorStatus(r))
	if err != nil {
		return err
	}

	if err := o.advance(ctx, r, domain.JobStatusCompositingFinalVideo); err != nil {
		return err
	}

	renderID, err := o.deps.Render.Submit(ctx, vendor.SubmitRequest{
		TemplateID: templateID,
		MergeFields: map[string]any{
			"avatar_video":    generated.URL,
			"character_image": characterURL,
			"recipient_name":  params.RecipientName,
			"sender_name":     params.SenderName,
			"message":         params.Message,
		},
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

	o.publishAndNotify(ctx, r, rendered.URL, domain.CategoryVideoCardComplete, "Your video card is ready!")
	return nil
}

// template picks the render template: explicit key, then kind-specific genre, then genre
func (o *Orchestrator) template(kind domain.JobKind, key, genre string) (string, error) {
	candidates := []string{key, string(kind) + "." + genre, genre}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if id, ok := o.cfg.Templates[c]; ok && id != "" {
			return id, nil
		}
	}
	return "", &domain.ConfigurationError{Field: fmt.Sprintf("vendors.render.templates[%s]", genre)}
}
