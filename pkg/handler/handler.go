package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gomcpgo/remote_image_ai/pkg/catalog"
	"github.com/gomcpgo/remote_image_ai/pkg/client"
	"github.com/gomcpgo/remote_image_ai/pkg/config"
	"github.com/gomcpgo/remote_image_ai/pkg/enhancement"
	"github.com/gomcpgo/remote_image_ai/pkg/generation"
	"github.com/gomcpgo/remote_image_ai/pkg/jobs"
	"github.com/gomcpgo/remote_image_ai/pkg/metrics"
	"github.com/gomcpgo/remote_image_ai/pkg/optimize"
	"github.com/gomcpgo/remote_image_ai/pkg/resolver"
	"github.com/gomcpgo/remote_image_ai/pkg/responses"
	"github.com/gomcpgo/remote_image_ai/pkg/storage"
	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

// ToolResult is the text payload of one tool call. IsError marks a failed
// call; the text is then a JSON error envelope.
type ToolResult struct {
	Text    string
	IsError bool
}

type toolFunc func(ctx context.Context, args map[string]interface{}) (string, error)

// ImageHandler handles MCP requests for image operations
type ImageHandler struct {
	generator *generation.Generator
	enhancer  *enhancement.Enhancer
	optimizer *optimize.Optimizer
	catalog   *catalog.Catalog
	resolver  *resolver.Resolver
	storage   *storage.Storage
	client    client.Client
	pending   *jobs.PendingJobs
	timeouts  config.TimeoutConfig
	logger    *zap.Logger
	metrics   *metrics.Collector
	tools     map[string]toolFunc
}

// Components are the collaborators an ImageHandler is built from. Clock
// and Sleep replace the wall clock in tests.
type Components struct {
	Client   client.Client
	Storage  *storage.Storage
	Catalog  *catalog.Catalog
	Timeouts config.TimeoutConfig
	Logger   *zap.Logger
	Metrics  *metrics.Collector
	Clock    jobs.Clock
	Sleep    jobs.SleepFunc
}

// New wires the operation layer around c
func New(c Components) *ImageHandler {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cat := c.Catalog
	if cat == nil {
		cat = catalog.New(c.Client, nil, 0, logger, c.Metrics)
	}

	pollerOpts := []jobs.Option{
		jobs.WithMetrics(c.Metrics),
		jobs.WithDefaults(c.Timeouts.PollInterval, c.Timeouts.UpscaleTimeout),
	}
	if c.Clock != nil {
		pollerOpts = append(pollerOpts, jobs.WithClock(c.Clock))
	}
	if c.Sleep != nil {
		pollerOpts = append(pollerOpts, jobs.WithSleep(c.Sleep))
	}
	poller := jobs.NewPoller(c.Client, logger, pollerOpts...)
	res := resolver.NewResolver(c.Storage, c.Client, logger, c.Metrics)

	h := &ImageHandler{
		generator: generation.NewGenerator(c.Client, c.Storage, res, poller, c.Timeouts, logger, c.Metrics),
		enhancer:  enhancement.NewEnhancer(c.Client, c.Storage, res, poller, c.Timeouts, logger),
		optimizer: optimize.NewOptimizer(c.Client, poller, cat, c.Timeouts.OptimizeTimeout, logger, c.Metrics),
		catalog:   cat,
		resolver:  res,
		storage:   c.Storage,
		client:    c.Client,
		pending:   jobs.NewPendingJobs(c.Timeouts.PendingTTL, c.Clock),
		timeouts:  c.Timeouts,
		logger:    logger.With(zap.String("component", "handler")),
		metrics:   c.Metrics,
	}
	h.tools = map[string]toolFunc{
		"generate_image":        h.handleGenerateImage,
		"image_to_image":        h.handleImageToImage,
		"optimize_parameters":   h.handleOptimizeParameters,
		"upscale_image":         h.handleUpscaleImage,
		"caption_image":         h.handleCaptionImage,
		"update_image_metadata": h.handleUpdateMetadata,
		"store_image_from_url":  h.handleStoreFromURL,
		"import_image":          h.handleImportImage,
		"get_image":             h.handleGetImage,
		"list_images":           h.handleListImages,
		"search_images":         h.handleSearchImages,
		"list_models":           h.handleListModels,
		"get_model":             h.handleGetModel,
		"check_job":             h.handleCheckJob,
		"continue_job":          h.handleContinueJob,
	}
	return h
}

// NewFromConfig builds the HTTP client, store and catalog described by cfg.
// The returned function releases the catalog backend.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Collector) (*ImageHandler, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := client.NewHTTPClient(client.Options{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		Timeout:   cfg.HTTPTimeout,
		RateLimit: rate.Limit(cfg.RateLimitRPS),
		Burst:     cfg.RateLimitBurst,
		Logger:    logger,
		Metrics:   m,
	})

	var storeOpts []storage.Option
	if cfg.MaxImageSizeMB > 0 {
		storeOpts = append(storeOpts, storage.WithMaxImageBytes(cfg.MaxImageSizeMB*1024*1024))
	}
	store := storage.NewStorage(cfg.ImagesRoot, logger, storeOpts...)

	cleanup := func() {}
	var backend catalog.Backend
	if cfg.Redis.Addr != "" {
		redisBackend, err := catalog.NewRedisBackend(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect catalog cache: %w", err)
		}
		backend = redisBackend
		cleanup = func() {
			if err := redisBackend.Close(); err != nil {
				logger.Warn("failed to close catalog cache", zap.Error(err))
			}
		}
	}

	h := New(Components{
		Client:   httpClient,
		Storage:  store,
		Catalog:  catalog.New(httpClient, backend, cfg.CatalogTTL, logger, m),
		Timeouts: cfg.Timeouts,
		Logger:   logger,
		Metrics:  m,
	})
	return h, cleanup, nil
}

// Pending exposes the timed-out job registry so the caller can sweep it
func (h *ImageHandler) Pending() *jobs.PendingJobs {
	return h.pending
}

// CallTool runs the named tool. Failures are reported in the result, the
// error return is reserved for unknown tools.
func (h *ImageHandler) CallTool(ctx context.Context, name string, args map[string]interface{}) (*ToolResult, error) {
	fn, ok := h.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	startTime := time.Now()
	text, err := fn(ctx, args)
	h.metrics.RecordToolCall(name, err == nil, time.Since(startTime))
	if err != nil {
		return h.failure(name, err), nil
	}
	h.logger.Debug("tool call succeeded", zap.String("tool", name), zap.Duration("duration", time.Since(startTime)))
	return &ToolResult{Text: text}, nil
}

// failure turns err into a tool result. A timed-out job is remembered for
// continue_job and reported as still processing rather than as an error.
func (h *ImageHandler) failure(tool string, err error) *ToolResult {
	var pendingErr *jobs.PendingError
	if errors.As(err, &pendingErr) {
		p := pendingErr.Pending
		h.pending.Add(p)
		h.logger.Info("job still running, parked for continue_job",
			zap.String("tool", tool),
			zap.String("job_id", p.JobID),
			zap.String("last_status", p.LastState))
		return &ToolResult{Text: responses.BuildProcessingResponse(tool, p.JobID, p.LastState, waitedFor(err))}
	}

	h.logger.Warn("tool call failed",
		zap.String("tool", tool),
		zap.String("kind", string(types.KindOf(err))),
		zap.Error(err))
	return &ToolResult{Text: responses.BuildErrorResponse(tool, err), IsError: true}
}

func waitedFor(err error) time.Duration {
	var typed *types.Error
	if errors.As(err, &typed) {
		if secs, ok := typed.Details["timeout_seconds"].(float64); ok {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return 0
}
