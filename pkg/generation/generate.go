package generation

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gomcpgo/remote_image_ai/pkg/client"
	"github.com/gomcpgo/remote_image_ai/pkg/config"
	"github.com/gomcpgo/remote_image_ai/pkg/jobs"
	"github.com/gomcpgo/remote_image_ai/pkg/metrics"
	"github.com/gomcpgo/remote_image_ai/pkg/resolver"
	"github.com/gomcpgo/remote_image_ai/pkg/storage"
	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

// Generator handles image generation operations
type Generator struct {
	client   client.Client
	storage  *storage.Storage
	resolver *resolver.Resolver
	poller   *jobs.Poller
	timeouts config.TimeoutConfig
	logger   *zap.Logger
	metrics  *metrics.Collector
}

// NewGenerator creates a new Generator instance
func NewGenerator(c client.Client, store *storage.Storage, res *resolver.Resolver, poller *jobs.Poller, timeouts config.TimeoutConfig, logger *zap.Logger, m *metrics.Collector) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		client:   c,
		storage:  store,
		resolver: res,
		poller:   poller,
		timeouts: timeouts,
		logger:   logger.With(zap.String("component", "generator")),
		metrics:  m,
	}
}

// GenerateImage generates an image and saves it as a new local record
func (g *Generator) GenerateImage(ctx context.Context, params GenerateParams) (*ImageResult, error) {
	startTime := time.Now()

	if err := params.Validate(); err != nil {
		return nil, err
	}

	res, err := g.client.Generate(ctx, types.GenerateRequest{
		Prompt:          strings.TrimSpace(params.Prompt),
		Model:           params.Model,
		NegativePrompt:  params.NegativePrompt,
		GuidanceScale:   params.GuidanceScale,
		Steps:           params.Steps,
		Width:           params.Width,
		Height:          params.Height,
		Seed:            params.Seed,
		Scheduler:       params.Scheduler,
		IncludeBase64:   true,
		IncludeMetadata: true,
		Extra:           params.Extra,
	})
	if err != nil {
		return nil, err
	}
	if res.Token == "" && res.ImageBase64 == "" {
		return nil, &types.Error{Kind: types.KindRemoteService, Message: "image service returned neither a token nor image bytes"}
	}

	imageB64 := g.bytesFor(ctx, res.ImageBase64, res.Token)

	metadata := copyMap(res.Metadata)
	if len(res.UsedParams) > 0 {
		metadata["used_params"] = res.UsedParams
	}
	if params.NegativePrompt != "" {
		metadata["negative_prompt"] = params.NegativePrompt
	}

	rec, err := g.storage.Save(storage.SaveInput{
		ImageBase64:  imageB64,
		MimeType:     res.MimeType,
		FilenameHint: params.Filename,
		Prompt:       params.Prompt,
		Model:        modelName(params.Model, res.UsedParams, res.Metadata),
		RemoteToken:  res.Token,
		DownloadURL:  res.DownloadURL,
		Operation:    types.OpGenerate,
		Metadata:     metadata,
	})
	if err != nil {
		return nil, err
	}

	g.logger.Info("image generated",
		zap.String("record_id", rec.ID),
		zap.String("model", rec.Model),
		zap.Bool("has_binary", rec.HasBinary()),
		zap.Duration("duration", time.Since(startTime)))

	return &ImageResult{
		Record:      rec,
		ImageBase64: imageB64,
		UsedParams:  res.UsedParams,
		Duration:    time.Since(startTime),
	}, nil
}

// bytesFor returns inline bytes when present, otherwise tries to fetch them
// by token. An empty result means the record is saved without a binary.
func (g *Generator) bytesFor(ctx context.Context, inline, token string) string {
	if inline != "" {
		if payload, _, err := storage.NormalizeBase64(inline); err == nil {
			return payload
		}
		g.logger.Warn("image service returned invalid base64, fetching by token instead")
	}
	if token == "" {
		return ""
	}
	payload, _ := g.resolver.Materialize(ctx, &types.ResolvedReference{RemoteToken: token})
	return payload
}

func modelName(requested string, sources ...map[string]interface{}) string {
	if requested != "" {
		return requested
	}
	for _, m := range sources {
		for _, key := range []string{"model", "model_id", "model_name"} {
			if v, ok := m[key].(string); ok && v != "" {
				return v
			}
		}
	}
	return ""
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m)+4)
	for k, v := range m {
		out[k] = v
	}
	return out
}
