package generation

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gomcpgo/remote_image_ai/pkg/fallback"
	"github.com/gomcpgo/remote_image_ai/pkg/jobs"
	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

// Image-to-image strategies
const (
	StrategyJob  = "job"
	StrategySync = "sync"
)

type img2imgOutput struct {
	token       string
	imageBase64 string
	downloadURL string
	mimeType    string
	metadata    map[string]interface{}
	usedParams  map[string]interface{}
	jobID       string
	polls       int
}

// ImageToImage transforms an existing image. The init image is uploaded when
// only bytes are known. The job endpoint is tried first; the synchronous
// endpoint is used only when the job endpoint does not exist.
func (g *Generator) ImageToImage(ctx context.Context, params ImageToImageParams) (*ImageResult, error) {
	startTime := time.Now()

	if err := params.Validate(); err != nil {
		return nil, err
	}

	init, err := g.resolver.Resolve(ctx, params.Image, types.ResolveOptions{
		RequireToken:   true,
		UploadIfNeeded: true,
		UploadSource:   types.OpImageToImage,
		DerivedFrom:    derivedFrom(params.Image),
		PromptHint:     params.Prompt,
	})
	if err != nil {
		return nil, err
	}

	req := types.ImageToImageRequest{
		Prompt:         strings.TrimSpace(params.Prompt),
		InitToken:      init.RemoteToken,
		NegativePrompt: params.NegativePrompt,
		Model:          params.Model,
		GuidanceScale:  params.GuidanceScale,
		Steps:          params.Steps,
		Width:          params.Width,
		Height:         params.Height,
		Seed:           params.Seed,
		Strength:       params.Strength,
		Extra:          params.Extra,
	}
	wait := jobs.WaitOptions{
		IncludeBinary: true,
		PollInterval:  params.PollInterval,
		Timeout:       params.Timeout,
	}
	if wait.Timeout <= 0 {
		wait.Timeout = g.timeouts.ImageToImageTimeout
	}

	chain := fallback.NewChain[*img2imgOutput]("image_to_image", g.logger, g.metrics,
		fallback.Strategy[*img2imgOutput]{
			Name:    StrategyJob,
			Run:     func(ctx context.Context) (*img2imgOutput, error) { return g.img2imgJob(ctx, req, wait) },
			Promote: fallback.EndpointUnavailable,
		},
		fallback.Strategy[*img2imgOutput]{
			Name: StrategySync,
			Run:  func(ctx context.Context) (*img2imgOutput, error) { return g.img2imgSync(ctx, req) },
		},
	)
	lineage := map[string]interface{}{
		"derived_from": append([]string{init.RemoteToken}, recordIDs(init.Record)...),
		"init_token":   init.RemoteToken,
	}
	if params.Strength != nil {
		lineage["strength"] = *params.Strength
	}

	out, strategy, err := chain.Run(ctx)
	if err != nil {
		pendingMeta := copyMap(lineage)
		pendingMeta["strategy"] = StrategyJob
		return nil, jobs.AsPending(err, jobs.Pending{
			Operation: types.OpImageToImage,
			Prompt:    params.Prompt,
			Model:     params.Model,
			Filename:  params.Filename,
			Metadata:  pendingMeta,
		})
	}

	metadata := copyMap(out.metadata)
	for k, v := range lineage {
		metadata[k] = v
	}
	metadata["strategy"] = strategy
	if out.jobID != "" {
		metadata["job_id"] = out.jobID
	}
	if len(out.usedParams) > 0 {
		metadata["used_params"] = out.usedParams
	}

	result, err := g.persist(ctx, persistInput{
		Operation:   types.OpImageToImage,
		Prompt:      params.Prompt,
		Model:       modelName(params.Model, out.usedParams, out.metadata),
		Filename:    params.Filename,
		Token:       out.token,
		ImageBase64: out.imageBase64,
		DownloadURL: out.downloadURL,
		MimeType:    out.mimeType,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, err
	}
	result.JobID = out.jobID
	result.Strategy = strategy
	result.Polls = out.polls
	result.UsedParams = out.usedParams
	result.Duration = time.Since(startTime)
	return result, nil
}

func (g *Generator) img2imgJob(ctx context.Context, req types.ImageToImageRequest, wait jobs.WaitOptions) (*img2imgOutput, error) {
	sub, err := g.client.ImageToImageJob(ctx, req)
	if err != nil {
		return nil, err
	}
	g.logger.Debug("image-to-image job submitted", zap.String("job_id", sub.JobID))

	outcome, err := g.poller.WaitForJobResult(ctx, sub.JobID, wait)
	if err != nil {
		return nil, err
	}
	return &img2imgOutput{
		token:       outcome.RemoteToken,
		imageBase64: outcome.ImageBase64,
		downloadURL: outcome.DownloadURL,
		mimeType:    outcome.MimeType,
		metadata:    outcome.Metadata,
		jobID:       sub.JobID,
		polls:       outcome.Polls,
	}, nil
}

func (g *Generator) img2imgSync(ctx context.Context, req types.ImageToImageRequest) (*img2imgOutput, error) {
	res, err := g.client.ImageToImageSync(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return &img2imgOutput{
		token:       res.Token,
		imageBase64: res.ImageBase64,
		downloadURL: res.DownloadURL,
		mimeType:    res.MimeType,
		metadata:    res.Metadata,
		usedParams:  res.UsedParams,
	}, nil
}

// CompleteJob waits again on a job that timed out earlier and saves its
// result with the metadata remembered when it was first submitted.
func (g *Generator) CompleteJob(ctx context.Context, pending *jobs.Pending, wait jobs.WaitOptions) (*ImageResult, error) {
	startTime := time.Now()
	wait.IncludeBinary = true

	outcome, err := g.poller.WaitForJobResult(ctx, pending.JobID, wait)
	if err != nil {
		return nil, err
	}

	metadata := copyMap(outcome.Metadata)
	for k, v := range pending.Metadata {
		metadata[k] = v
	}
	metadata["job_id"] = pending.JobID

	operation := pending.Operation
	if operation == "" {
		operation = types.OpContinueJob
	}
	result, err := g.persist(ctx, persistInput{
		Operation:   operation,
		Prompt:      pending.Prompt,
		Model:       pending.Model,
		Filename:    pending.Filename,
		Token:       outcome.RemoteToken,
		ImageBase64: outcome.ImageBase64,
		DownloadURL: outcome.DownloadURL,
		MimeType:    outcome.MimeType,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, err
	}
	result.JobID = pending.JobID
	result.Polls = outcome.Polls
	result.Duration = time.Since(startTime)
	return result, nil
}

func derivedFrom(ref types.ImageReference) []string {
	switch {
	case ref.ResourceHandle != "":
		return []string{ref.ResourceHandle}
	case ref.RemoteToken != "":
		return []string{ref.RemoteToken}
	}
	return nil
}

func recordIDs(rec *types.LocalRecord) []string {
	if rec == nil {
		return nil
	}
	return []string{rec.ID}
}
