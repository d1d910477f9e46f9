package enhancement

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gomcpgo/remote_image_ai/pkg/jobs"
	"github.com/gomcpgo/remote_image_ai/pkg/storage"
	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

// UpscaleImage submits an upscale job for the referenced image, waits for it
// and saves the result. Images known only locally are uploaded first.
func (e *Enhancer) UpscaleImage(ctx context.Context, params UpscaleParams) (*EnhancementResult, error) {
	startTime := time.Now()

	if err := params.Validate(); err != nil {
		return nil, err
	}
	scale := params.scale()

	source, err := e.resolver.Resolve(ctx, params.Image, types.ResolveOptions{
		RequireToken:   true,
		UploadIfNeeded: true,
		UploadSource:   types.OpUpscale,
	})
	if err != nil {
		return nil, err
	}

	sub, err := e.client.Upscale(ctx, types.UpscaleRequest{
		Token: source.RemoteToken,
		Scale: scale,
		Extra: params.Extra,
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("upscale job submitted", zap.String("job_id", sub.JobID), zap.Int("scale", scale))

	wait := jobs.WaitOptions{IncludeBinary: true, PollInterval: params.PollInterval, Timeout: params.Timeout}
	if wait.Timeout <= 0 {
		wait.Timeout = e.timeouts.UpscaleTimeout
	}

	lineage := map[string]interface{}{
		"upscaled_from": source.RemoteToken,
		"upscale_scale": scale,
	}
	prompt, model := inherited(source.Record)

	outcome, err := e.poller.WaitForJobResult(ctx, sub.JobID, wait)
	if err != nil {
		return nil, jobs.AsPending(err, jobs.Pending{
			Operation: types.OpUpscale,
			Prompt:    prompt,
			Model:     model,
			Filename:  params.Filename,
			Metadata:  lineage,
		})
	}
	if outcome.RemoteToken == "" {
		return nil, &types.Error{
			Kind:    types.KindRemoteService,
			Message: "upscale job " + sub.JobID + " finished without returning a token for the result",
		}
	}

	metadata := make(map[string]interface{}, len(outcome.Metadata)+3)
	for k, v := range outcome.Metadata {
		metadata[k] = v
	}
	for k, v := range lineage {
		metadata[k] = v
	}
	metadata["job_id"] = sub.JobID

	imageB64 := outcome.ImageBase64
	if imageB64 == "" {
		imageB64, _ = e.resolver.Materialize(ctx, &types.ResolvedReference{RemoteToken: outcome.RemoteToken})
	}

	rec, err := e.storage.Save(storage.SaveInput{
		ImageBase64:  imageB64,
		MimeType:     outcome.MimeType,
		FilenameHint: params.Filename,
		Prompt:       prompt,
		Model:        model,
		RemoteToken:  outcome.RemoteToken,
		DownloadURL:  outcome.DownloadURL,
		Operation:    types.OpUpscale,
		Metadata:     metadata,
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("image upscaled",
		zap.String("record_id", rec.ID),
		zap.String("job_id", sub.JobID),
		zap.Int("scale", scale),
		zap.Int("polls", outcome.Polls))

	return &EnhancementResult{
		Record:      rec,
		ImageBase64: imageB64,
		SourceToken: source.RemoteToken,
		Scale:       scale,
		JobID:       sub.JobID,
		Polls:       outcome.Polls,
		Duration:    time.Since(startTime),
	}, nil
}

// inherited returns the prompt and model of the source record, if any
func inherited(rec *types.LocalRecord) (string, string) {
	if rec == nil {
		return "", ""
	}
	return rec.Prompt, rec.Model
}
