package client

import (
	"context"

	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

// Client defines the interface for interacting with the remote image service
type Client interface {
	// Generate creates an image from a prompt
	Generate(ctx context.Context, req types.GenerateRequest) (*types.ImageResult, error)

	// StoreFromBytes uploads inline image bytes and returns their token
	StoreFromBytes(ctx context.Context, req types.StoreBytesRequest) (*types.ImageResult, error)

	// StoreFromURL asks the service to download and store an image
	StoreFromURL(ctx context.Context, req types.StoreURLRequest) (*types.ImageResult, error)

	// FetchByToken looks up a stored image, optionally with its bytes
	FetchByToken(ctx context.Context, token string, includeBase64 bool) (*types.ImageResult, error)

	Caption(ctx context.Context, req types.CaptionRequest) (*types.CaptionResult, error)

	PatchMetadata(ctx context.Context, token string, patch map[string]interface{}) (*types.MetadataResult, error)

	// Upscale submits an upscale job
	Upscale(ctx context.Context, req types.UpscaleRequest) (*types.JobSubmission, error)

	ImageToImageSync(ctx context.Context, req types.ImageToImageRequest, includeBase64 bool) (*types.ImageResult, error)
	ImageToImageJob(ctx context.Context, req types.ImageToImageRequest) (*types.JobSubmission, error)

	// SubmitOptimizeJob hands a parameter optimization to the job manager
	SubmitOptimizeJob(ctx context.Context, req types.OptimizeRequest) (*types.JobSubmission, error)

	// OptimizeParameters runs the optimization synchronously
	OptimizeParameters(ctx context.Context, req types.OptimizeRequest) (*types.OptimizeResult, error)

	JobStatus(ctx context.Context, jobID string) (*types.JobStatus, error)
	JobResult(ctx context.Context, jobID string, includeBase64 bool) (*types.JobResult, error)

	GetModels(ctx context.Context) (*types.ModelList, error)
	GetModelDetail(ctx context.Context, name string) (*types.ModelDetail, error)
}

// Ensure both implementations satisfy the Client interface
var (
	_ Client = (*HTTPClient)(nil)
	_ Client = (*MockClient)(nil)
)
