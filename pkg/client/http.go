package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gomcpgo/remote_image_ai/pkg/metrics"
	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

const (
	apiPrefix           = "/v1"
	instrumentationName = "github.com/gomcpgo/remote_image_ai/pkg/client"
	maxLoggedBody       = 1000
	maxDetailLength     = 500
)

// Options configures an HTTPClient
type Options struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	RateLimit rate.Limit
	Burst     int

	Logger     *zap.Logger
	Metrics    *metrics.Collector
	HTTPClient *http.Client
}

// HTTPClient talks to the remote image service over JSON/HTTP
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	metrics    *metrics.Collector
	tracer     trace.Tracer
}

// NewHTTPClient creates a new image service client
func NewHTTPClient(opts Options) *HTTPClient {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	limit := opts.RateLimit
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	base := strings.TrimRight(opts.BaseURL, "/")
	base = strings.TrimSuffix(base, apiPrefix)

	return &HTTPClient{
		baseURL:    base,
		apiKey:     opts.APIKey,
		httpClient: hc,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger.With(zap.String("component", "image_client")),
		metrics:    opts.Metrics,
		tracer:     otel.Tracer(instrumentationName),
	}
}

// Generate creates an image from a prompt
func (c *HTTPClient) Generate(ctx context.Context, req types.GenerateRequest) (*types.ImageResult, error) {
	return c.imageCall(ctx, "generate", http.MethodPost, "/generate", nil, req)
}

// StoreFromBytes uploads inline bytes
func (c *HTTPClient) StoreFromBytes(ctx context.Context, req types.StoreBytesRequest) (*types.ImageResult, error) {
	return c.imageCall(ctx, "store_bytes", http.MethodPost, "/images", nil, req)
}

// StoreFromURL asks the service to download an image
func (c *HTTPClient) StoreFromURL(ctx context.Context, req types.StoreURLRequest) (*types.ImageResult, error) {
	return c.imageCall(ctx, "store_url", http.MethodPost, "/images/from-url", nil, req)
}

// FetchByToken looks up a stored image. A 404 becomes a NotFound error.
func (c *HTTPClient) FetchByToken(ctx context.Context, token string, includeBase64 bool) (*types.ImageResult, error) {
	if token == "" {
		return nil, types.InvalidRequest("token is required")
	}
	res, err := c.imageCall(ctx, "fetch", http.MethodGet, "/images/"+url.PathEscape(token), includeQuery(includeBase64), nil)
	if err != nil {
		if types.StatusCodeOf(err) == http.StatusNotFound {
			nf := types.NotFound("remote token %q is not known to the image service", token)
			nf.StatusCode = http.StatusNotFound
			nf.Err = err
			return nil, nf
		}
		return nil, err
	}
	return res, nil
}

// Caption describes an image
func (c *HTTPClient) Caption(ctx context.Context, req types.CaptionRequest) (*types.CaptionResult, error) {
	raw, err := c.do(ctx, "caption", http.MethodPost, "/caption", nil, req)
	if err != nil {
		return nil, err
	}
	var out types.CaptionResult
	if err := decode(raw, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		out.Token = tokenFromJSON(raw)
	}
	return &out, nil
}

// PatchMetadata merges patch into the remote metadata of token
func (c *HTTPClient) PatchMetadata(ctx context.Context, token string, patch map[string]interface{}) (*types.MetadataResult, error) {
	raw, err := c.do(ctx, "patch_metadata", http.MethodPatch, "/images/"+url.PathEscape(token)+"/metadata", nil, patch)
	if err != nil {
		return nil, err
	}
	var out types.MetadataResult
	if err := decode(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Upscale submits an upscale job
func (c *HTTPClient) Upscale(ctx context.Context, req types.UpscaleRequest) (*types.JobSubmission, error) {
	return c.jobCall(ctx, "upscale", "/upscale", req)
}

// ImageToImageSync runs image-to-image and waits for the image
func (c *HTTPClient) ImageToImageSync(ctx context.Context, req types.ImageToImageRequest, includeBase64 bool) (*types.ImageResult, error) {
	return c.imageCall(ctx, "img2img_sync", http.MethodPost, "/img2img", includeQuery(includeBase64), req)
}

// ImageToImageJob submits image-to-image as a job
func (c *HTTPClient) ImageToImageJob(ctx context.Context, req types.ImageToImageRequest) (*types.JobSubmission, error) {
	return c.jobCall(ctx, "img2img_job", "/jobs/img2img", req)
}

// SubmitOptimizeJob submits a parameter optimization job
func (c *HTTPClient) SubmitOptimizeJob(ctx context.Context, req types.OptimizeRequest) (*types.JobSubmission, error) {
	return c.jobCall(ctx, "optimize_job", "/jobs/optimize", req)
}

// OptimizeParameters runs the optimization synchronously
func (c *HTTPClient) OptimizeParameters(ctx context.Context, req types.OptimizeRequest) (*types.OptimizeResult, error) {
	raw, err := c.do(ctx, "optimize", http.MethodPost, "/optimize", nil, req)
	if err != nil {
		return nil, err
	}
	var out types.OptimizeResult
	if err := decode(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// JobStatus returns the lightweight status of a job
func (c *HTTPClient) JobStatus(ctx context.Context, jobID string) (*types.JobStatus, error) {
	raw, err := c.do(ctx, "job_status", http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, nil)
	if err != nil {
		return nil, err
	}
	var out types.JobStatus
	if err := decode(raw, &out); err != nil {
		return nil, err
	}
	if out.JobID == "" {
		out.JobID = jobID
	}
	return &out, nil
}

// JobResult returns the status and, once finished, the output of a job
func (c *HTTPClient) JobResult(ctx context.Context, jobID string, includeBase64 bool) (*types.JobResult, error) {
	raw, err := c.do(ctx, "job_result", http.MethodGet, "/jobs/"+url.PathEscape(jobID)+"/result", includeQuery(includeBase64), nil)
	if err != nil {
		return nil, err
	}
	var out types.JobResult
	if err := decode(raw, &out); err != nil {
		return nil, err
	}
	out.Raw = raw

	// Some job kinds nest their output under "result".
	if out.Token == "" {
		out.Token = tokenFromJSON(raw)
	}
	if out.ImageBase64 == "" {
		out.ImageBase64 = gjson.GetBytes(raw, "result.image_base64").String()
	}
	if out.MimeType == "" {
		out.MimeType = gjson.GetBytes(raw, "result.mime_type").String()
	}
	return &out, nil
}

// GetModels lists the models the service offers
func (c *HTTPClient) GetModels(ctx context.Context) (*types.ModelList, error) {
	raw, err := c.do(ctx, "models", http.MethodGet, "/models", nil, nil)
	if err != nil {
		return nil, err
	}
	var out types.ModelList
	if err := decode(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetModelDetail returns the configuration of one model
func (c *HTTPClient) GetModelDetail(ctx context.Context, name string) (*types.ModelDetail, error) {
	raw, err := c.do(ctx, "model_detail", http.MethodGet, "/models/"+url.PathEscape(name), nil, nil)
	if err != nil {
		return nil, err
	}
	var out types.ModelDetail
	if err := decode(raw, &out); err != nil {
		return nil, err
	}
	if out.Config == nil {
		// Older services return the config object directly.
		var cfg map[string]interface{}
		if err := json.Unmarshal(raw, &cfg); err == nil {
			out.Config = cfg
		}
	}
	if out.Name == "" {
		out.Name = name
	}
	return &out, nil
}

func (c *HTTPClient) imageCall(ctx context.Context, op, method, path string, query url.Values, body interface{}) (*types.ImageResult, error) {
	raw, err := c.do(ctx, op, method, path, query, body)
	if err != nil {
		return nil, err
	}
	var out types.ImageResult
	if err := decode(raw, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		out.Token = tokenFromJSON(raw)
	}
	return &out, nil
}

func (c *HTTPClient) jobCall(ctx context.Context, op, path string, body interface{}) (*types.JobSubmission, error) {
	raw, err := c.do(ctx, op, http.MethodPost, path, nil, body)
	if err != nil {
		return nil, err
	}
	var out types.JobSubmission
	if err := decode(raw, &out); err != nil {
		return nil, err
	}
	if out.JobID == "" {
		out.JobID = gjson.GetBytes(raw, "id").String()
	}
	if out.JobID == "" {
		return nil, &types.Error{
			Kind:    types.KindRemoteService,
			Message: "job submission response has no job id",
			Detail:  truncate(string(raw), maxDetailLength),
		}
	}
	return &out, nil
}

// do sends one request and returns the response body. Non-2xx responses
// become RemoteServiceError; an exceeded HTTP timeout becomes Timeout.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, query url.Values, body interface{}) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "image_service."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("image_service.operation", op),
		))
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limiter")
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	endpoint := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	// Request bodies routinely carry base64 images; log sizes only.
	c.logger.Debug("image service request",
		zap.String("operation", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("body_bytes", len(payload)))

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.RecordRemoteRequest(op, 0, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return nil, transportError(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	c.metrics.RecordRemoteRequest(op, resp.StatusCode, elapsed)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	fields := []zap.Field{
		zap.String("operation", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed),
	}
	if len(respBody) > maxLoggedBody {
		fields = append(fields, zap.Int("body_bytes", len(respBody)))
	} else {
		fields = append(fields, zap.ByteString("body", respBody))
	}
	c.logger.Debug("image service response", fields...)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := truncate(types.DetailFromJSON(respBody), maxDetailLength)
		span.SetStatus(codes.Error, "http "+strconv.Itoa(resp.StatusCode))
		return nil, types.RemoteServiceError(resp.StatusCode, categorize(resp.StatusCode), detail)
	}

	return respBody, nil
}

func transportError(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &types.Error{
			Kind:     types.KindTimeout,
			Message:  fmt.Sprintf("request %s exceeded the HTTP timeout", op),
			Category: "transport",
			Err:      err,
		}
	}
	return &types.Error{
		Kind:     types.KindRemoteService,
		Message:  "failed to reach image service",
		Detail:   err.Error(),
		Category: "transport",
		Err:      err,
	}
}

// categorize maps an HTTP status to the category shown to callers
func categorize(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusPaymentRequired:
		return "billing_issue"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestTimeout:
		return "request_timeout"
	case http.StatusConflict:
		return "conflict"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusUnprocessableEntity:
		return "validation_error"
	case http.StatusTooEarly:
		return "not_ready"
	case http.StatusTooManyRequests:
		return "rate_limit"
	case http.StatusNotImplemented:
		return "not_implemented"
	}
	if status >= 500 {
		return "server_error"
	}
	return "http_error"
}

func includeQuery(include bool) url.Values {
	return url.Values{"include_base64": []string{strconv.FormatBool(include)}}
}

func decode(raw []byte, out interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &types.Error{
			Kind:    types.KindRemoteService,
			Message: "image service returned malformed JSON",
			Detail:  err.Error(),
			Err:     err,
		}
	}
	return nil
}

// tokenFromJSON finds the image token under the names services have used.
func tokenFromJSON(raw []byte) string {
	for _, path := range []string{"token", "image_token", "remote_token", "remoteToken", "result.token", "result.image_token"} {
		if v := gjson.GetBytes(raw, path); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
