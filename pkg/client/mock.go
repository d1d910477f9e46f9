package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

// MockPNG is a 1x1 transparent PNG used as default mock output
const MockPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

// MockCall records one call made against MockClient
type MockCall struct {
	Method string
	Args   interface{}
}

// JobStep is one scripted answer of JobResult
type JobStep struct {
	Result *types.JobResult
	Err    error
}

// MockClient is a scriptable implementation of Client for tests.
// Unscripted calls return plausible defaults.
type MockClient struct {
	// Errors forces a method (by name, e.g. "Upscale") to fail
	Errors map[string]error

	GenerateResult    *types.ImageResult
	StoreResult       *types.ImageResult
	FetchResults      map[string]*types.ImageResult
	CaptionResult     *types.CaptionResult
	PatchResult       *types.MetadataResult
	Img2ImgSyncResult *types.ImageResult
	OptimizeResult    *types.OptimizeResult
	Models            *types.ModelList
	ModelDetails      map[string]*types.ModelDetail
	JobStatuses       map[string]*types.JobStatus

	// JobScripts maps a job id to the answers JobResult gives in order.
	// The last step repeats once the script is exhausted.
	JobScripts map[string][]JobStep

	// NextJobID overrides the id of the next submitted job
	NextJobID string

	calls   []MockCall
	jobPos  map[string]int
	counter int
	mu      sync.Mutex
}

// NewMockClient creates a new mock client
func NewMockClient() *MockClient {
	return &MockClient{
		Errors:       map[string]error{},
		FetchResults: map[string]*types.ImageResult{},
		ModelDetails: map[string]*types.ModelDetail{},
		JobStatuses:  map[string]*types.JobStatus{},
		JobScripts:   map[string][]JobStep{},
		jobPos:       map[string]int{},
	}
}

// ScriptJob sets the statuses JobResult reports for jobID. A "succeeded"
// step carries MockPNG and token "<jobID>-out".
func (m *MockClient) ScriptJob(jobID string, statuses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	steps := make([]JobStep, 0, len(statuses))
	for _, s := range statuses {
		res := &types.JobResult{Status: s}
		if s == "succeeded" || s == "completed" {
			res.Token = jobID + "-out"
			res.ImageBase64 = MockPNG
			res.MimeType = "image/png"
		}
		steps = append(steps, JobStep{Result: res})
	}
	m.JobScripts[jobID] = steps
}

// Calls returns a copy of all recorded calls
func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsTo returns the recorded arguments of one method
func (m *MockClient) CallsTo(method string) []interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []interface{}
	for _, c := range m.calls {
		if c.Method == method {
			out = append(out, c.Args)
		}
	}
	return out
}

// CallCount returns how often method was called
func (m *MockClient) CallCount(method string) int {
	return len(m.CallsTo(method))
}

// Reset clears recorded calls and job script positions
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.jobPos = map[string]int{}
}

func (m *MockClient) record(method string, args interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Args: args})
	m.counter++
	return m.Errors[method]
}

func (m *MockClient) nextID(prefix string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NextJobID != "" && prefix == "job" {
		id := m.NextJobID
		m.NextJobID = ""
		return id
	}
	return fmt.Sprintf("mock-%s-%d", prefix, m.counter)
}

func (m *MockClient) Generate(ctx context.Context, req types.GenerateRequest) (*types.ImageResult, error) {
	if err := m.record("Generate", req); err != nil {
		return nil, err
	}
	if m.GenerateResult != nil {
		return copyImage(m.GenerateResult), nil
	}
	res := &types.ImageResult{
		Token:    m.nextID("token"),
		Metadata: map[string]interface{}{"prompt": req.Prompt},
		MimeType: "image/png",
	}
	if req.IncludeBase64 {
		res.ImageBase64 = MockPNG
	}
	return res, nil
}

func (m *MockClient) StoreFromBytes(ctx context.Context, req types.StoreBytesRequest) (*types.ImageResult, error) {
	if err := m.record("StoreFromBytes", req); err != nil {
		return nil, err
	}
	if m.StoreResult != nil {
		return copyImage(m.StoreResult), nil
	}
	return &types.ImageResult{Token: m.nextID("upload"), Metadata: map[string]interface{}{"source": req.Source}}, nil
}

func (m *MockClient) StoreFromURL(ctx context.Context, req types.StoreURLRequest) (*types.ImageResult, error) {
	if err := m.record("StoreFromURL", req); err != nil {
		return nil, err
	}
	if m.StoreResult != nil {
		return copyImage(m.StoreResult), nil
	}
	return &types.ImageResult{
		Token:       m.nextID("url"),
		Metadata:    map[string]interface{}{"url": req.URL},
		DownloadURL: req.URL,
	}, nil
}

func (m *MockClient) FetchByToken(ctx context.Context, token string, includeBase64 bool) (*types.ImageResult, error) {
	if err := m.record("FetchByToken", token); err != nil {
		return nil, err
	}
	m.mu.Lock()
	res, ok := m.FetchResults[token]
	m.mu.Unlock()
	if !ok {
		return nil, types.NotFound("remote token %q is not known to the image service", token)
	}
	out := copyImage(res)
	if !includeBase64 {
		out.ImageBase64 = ""
	}
	return out, nil
}

func (m *MockClient) Caption(ctx context.Context, req types.CaptionRequest) (*types.CaptionResult, error) {
	if err := m.record("Caption", req); err != nil {
		return nil, err
	}
	if m.CaptionResult != nil {
		res := *m.CaptionResult
		return &res, nil
	}
	return &types.CaptionResult{Caption: "a mock caption", ModelID: "mock-captioner", Token: req.Token}, nil
}

func (m *MockClient) PatchMetadata(ctx context.Context, token string, patch map[string]interface{}) (*types.MetadataResult, error) {
	if err := m.record("PatchMetadata", map[string]interface{}{"token": token, "patch": patch}); err != nil {
		return nil, err
	}
	if m.PatchResult != nil {
		return m.PatchResult, nil
	}
	return &types.MetadataResult{Metadata: patch}, nil
}

func (m *MockClient) Upscale(ctx context.Context, req types.UpscaleRequest) (*types.JobSubmission, error) {
	if err := m.record("Upscale", req); err != nil {
		return nil, err
	}
	return &types.JobSubmission{JobID: m.nextID("job"), Status: "queued"}, nil
}

func (m *MockClient) ImageToImageSync(ctx context.Context, req types.ImageToImageRequest, includeBase64 bool) (*types.ImageResult, error) {
	if err := m.record("ImageToImageSync", req); err != nil {
		return nil, err
	}
	if m.Img2ImgSyncResult != nil {
		return copyImage(m.Img2ImgSyncResult), nil
	}
	res := &types.ImageResult{Token: m.nextID("img2img"), MimeType: "image/png"}
	if includeBase64 {
		res.ImageBase64 = MockPNG
	}
	return res, nil
}

func (m *MockClient) ImageToImageJob(ctx context.Context, req types.ImageToImageRequest) (*types.JobSubmission, error) {
	if err := m.record("ImageToImageJob", req); err != nil {
		return nil, err
	}
	return &types.JobSubmission{JobID: m.nextID("job"), Status: "queued"}, nil
}

func (m *MockClient) SubmitOptimizeJob(ctx context.Context, req types.OptimizeRequest) (*types.JobSubmission, error) {
	if err := m.record("SubmitOptimizeJob", req); err != nil {
		return nil, err
	}
	return &types.JobSubmission{JobID: m.nextID("job"), Status: "queued"}, nil
}

func (m *MockClient) OptimizeParameters(ctx context.Context, req types.OptimizeRequest) (*types.OptimizeResult, error) {
	if err := m.record("OptimizeParameters", req); err != nil {
		return nil, err
	}
	if m.OptimizeResult != nil {
		res := *m.OptimizeResult
		return &res, nil
	}
	return &types.OptimizeResult{Prompt: req.Query + ", highly detailed", Model: req.Model, Reason: "mock"}, nil
}

func (m *MockClient) JobStatus(ctx context.Context, jobID string) (*types.JobStatus, error) {
	if err := m.record("JobStatus", jobID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.JobStatuses[jobID]; ok {
		res := *st
		return &res, nil
	}
	if steps, ok := m.JobScripts[jobID]; ok && len(steps) > 0 {
		pos := m.jobPos[jobID]
		if pos >= len(steps) {
			pos = len(steps) - 1
		}
		if steps[pos].Result != nil {
			return &types.JobStatus{JobID: jobID, Status: steps[pos].Result.Status}, nil
		}
	}
	return &types.JobStatus{JobID: jobID, Status: "succeeded"}, nil
}

func (m *MockClient) JobResult(ctx context.Context, jobID string, includeBase64 bool) (*types.JobResult, error) {
	if err := m.record("JobResult", jobID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	steps, ok := m.JobScripts[jobID]
	if !ok || len(steps) == 0 {
		res := &types.JobResult{Status: "succeeded", Token: jobID + "-out", MimeType: "image/png"}
		if includeBase64 {
			res.ImageBase64 = MockPNG
		}
		return res, nil
	}

	pos := m.jobPos[jobID]
	if pos >= len(steps) {
		pos = len(steps) - 1
	}
	m.jobPos[jobID] = pos + 1

	step := steps[pos]
	if step.Err != nil {
		return nil, step.Err
	}
	res := *step.Result
	if !includeBase64 {
		res.ImageBase64 = ""
	}
	return &res, nil
}

func (m *MockClient) GetModels(ctx context.Context) (*types.ModelList, error) {
	if err := m.record("GetModels", nil); err != nil {
		return nil, err
	}
	if m.Models != nil {
		return m.Models, nil
	}
	return &types.ModelList{Models: map[string]map[string]interface{}{
		"sdxl": {"type": "text2img", "default_steps": 30},
	}}, nil
}

func (m *MockClient) GetModelDetail(ctx context.Context, name string) (*types.ModelDetail, error) {
	if err := m.record("GetModelDetail", name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.ModelDetails[name]; ok {
		return d, nil
	}
	if m.Models != nil {
		if cfg, ok := m.Models.Models[name]; ok {
			return &types.ModelDetail{Name: name, Config: cfg}, nil
		}
	}
	if name == "sdxl" && m.Models == nil {
		return &types.ModelDetail{Name: name, Config: map[string]interface{}{"type": "text2img"}}, nil
	}
	return nil, types.RemoteServiceError(404, "not_found", "unknown model "+name)
}

func copyImage(r *types.ImageResult) *types.ImageResult {
	out := *r
	return &out
}
