package types

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Requests to the image service carry a small set of known fields plus an
// Extra map. Extra keys are merged into the JSON body; known fields win.

// GenerateRequest is the body of POST /v1/generate
type GenerateRequest struct {
	Prompt          string   `json:"prompt"`
	Model           string   `json:"model,omitempty"`
	NegativePrompt  string   `json:"negative_prompt,omitempty"`
	GuidanceScale   *float64 `json:"guidance_scale,omitempty"`
	Steps           *int     `json:"steps,omitempty"`
	Width           *int     `json:"width,omitempty"`
	Height          *int     `json:"height,omitempty"`
	Seed            *int64   `json:"seed,omitempty"`
	Scheduler       string   `json:"scheduler,omitempty"`
	IncludeBase64   bool     `json:"include_base64"`
	IncludeMetadata bool     `json:"include_metadata"`

	Extra map[string]interface{} `json:"-"`
}

func (r GenerateRequest) MarshalJSON() ([]byte, error) {
	type plain GenerateRequest
	return marshalWithExtra(plain(r), r.Extra)
}

// StoreBytesRequest uploads an inline image to the service.
type StoreBytesRequest struct {
	ImageBase64    string                 `json:"image_base64"`
	Source         string                 `json:"source,omitempty"`
	Prompt         string                 `json:"prompt,omitempty"`
	NegativePrompt string                 `json:"negative_prompt,omitempty"`
	Parameters     map[string]interface{} `json:"parameters,omitempty"`
	DerivedFrom    []string               `json:"derived_from,omitempty"`
	Tags           []string               `json:"tags,omitempty"`
	Attributes     map[string]interface{} `json:"extra,omitempty"`
	Filename       string                 `json:"filename,omitempty"`

	Extra map[string]interface{} `json:"-"`
}

func (r StoreBytesRequest) MarshalJSON() ([]byte, error) {
	type plain StoreBytesRequest
	return marshalWithExtra(plain(r), r.Extra)
}

// StoreURLRequest asks the service to fetch and store a remote image.
type StoreURLRequest struct {
	URL    string   `json:"url"`
	Source string   `json:"source,omitempty"`
	Prompt string   `json:"prompt,omitempty"`
	Tags   []string `json:"tags,omitempty"`

	Extra map[string]interface{} `json:"-"`
}

func (r StoreURLRequest) MarshalJSON() ([]byte, error) {
	type plain StoreURLRequest
	return marshalWithExtra(plain(r), r.Extra)
}

// CaptionRequest describes an image either by token or by inline bytes.
type CaptionRequest struct {
	Token              string   `json:"token,omitempty"`
	ImageBase64        string   `json:"image_base64,omitempty"`
	Prompt             string   `json:"prompt,omitempty"`
	MaxNewTokens       *int     `json:"max_new_tokens,omitempty"`
	Temperature        *float64 `json:"temperature,omitempty"`
	TopP               *float64 `json:"top_p,omitempty"`
	UseNucleusSampling *bool    `json:"use_nucleus_sampling,omitempty"`
	RepetitionPenalty  *float64 `json:"repetition_penalty,omitempty"`
	ModelID            string   `json:"model_id,omitempty"`

	Extra map[string]interface{} `json:"-"`
}

func (r CaptionRequest) MarshalJSON() ([]byte, error) {
	type plain CaptionRequest
	return marshalWithExtra(plain(r), r.Extra)
}

// UpscaleRequest submits an upscale job.
type UpscaleRequest struct {
	Token string `json:"token"`
	Scale int    `json:"scale,omitempty"`

	Extra map[string]interface{} `json:"-"`
}

func (r UpscaleRequest) MarshalJSON() ([]byte, error) {
	type plain UpscaleRequest
	return marshalWithExtra(plain(r), r.Extra)
}

// ImageToImageRequest is shared by the job and the synchronous endpoint.
type ImageToImageRequest struct {
	Prompt         string   `json:"prompt"`
	InitToken      string   `json:"init_token"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	Model          string   `json:"model,omitempty"`
	GuidanceScale  *float64 `json:"guidance_scale,omitempty"`
	Steps          *int     `json:"steps,omitempty"`
	Width          *int     `json:"width,omitempty"`
	Height         *int     `json:"height,omitempty"`
	Seed           *int64   `json:"seed,omitempty"`
	Strength       *float64 `json:"strength,omitempty"`

	Extra map[string]interface{} `json:"-"`
}

func (r ImageToImageRequest) MarshalJSON() ([]byte, error) {
	type plain ImageToImageRequest
	return marshalWithExtra(plain(r), r.Extra)
}

// OptimizeRequest asks for generation parameters suited to a free-text query.
type OptimizeRequest struct {
	Query string `json:"query"`
	Model string `json:"model,omitempty"`
}

// ImageResult is returned by generate, store, fetch and image-to-image calls.
type ImageResult struct {
	Token       string                 `json:"token"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	ImageBase64 string                 `json:"image_base64,omitempty"`
	DownloadURL string                 `json:"download_url,omitempty"`
	MimeType    string                 `json:"mime_type,omitempty"`
	UsedParams  map[string]interface{} `json:"used_params,omitempty"`
}

// CaptionResult is the response of POST /v1/caption
type CaptionResult struct {
	Caption  string                 `json:"caption"`
	ModelID  string                 `json:"model_id"`
	Device   string                 `json:"device,omitempty"`
	Dtype    string                 `json:"dtype,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Token    string                 `json:"token,omitempty"`
}

// MetadataResult is the response of a metadata patch.
type MetadataResult struct {
	Metadata map[string]interface{} `json:"metadata"`
}

// JobSubmission is returned when a job is accepted.
type JobSubmission struct {
	JobID  string `json:"job_id"`
	Status string `json:"status,omitempty"`
}

// JobStatus is the lightweight status of a job.
type JobStatus struct {
	JobID    string   `json:"job_id,omitempty"`
	Status   string   `json:"status"`
	Progress *float64 `json:"progress,omitempty"`
	ETA      *float64 `json:"eta,omitempty"`
}

// JobResult is the full result of a job. Error may be a string or an object.
type JobResult struct {
	Status      string                 `json:"status"`
	Token       string                 `json:"token,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	ImageBase64 string                 `json:"image_base64,omitempty"`
	DownloadURL string                 `json:"download_url,omitempty"`
	MimeType    string                 `json:"mime_type,omitempty"`
	Result      map[string]interface{} `json:"result,omitempty"`
	Error       json.RawMessage        `json:"error,omitempty"`

	// Raw is the undecoded body, kept for job kinds with their own result shape.
	Raw json.RawMessage `json:"-"`
}

// ErrorDetail flattens the Error field into a single string.
func (r *JobResult) ErrorDetail() string {
	if r == nil || len(r.Error) == 0 {
		return ""
	}
	return DetailFromJSON(r.Error)
}

// DetailFromJSON extracts a human-readable message from an error payload.
func DetailFromJSON(raw []byte) string {
	if !gjson.ValidBytes(raw) {
		return strings.TrimSpace(string(raw))
	}
	res := gjson.ParseBytes(raw)
	switch {
	case res.Type == gjson.Null:
		return ""
	case res.Type == gjson.String:
		return res.String()
	case res.IsObject():
		for _, path := range []string{"detail", "error.message", "error", "message", "msg"} {
			if v := res.Get(path); v.Exists() && v.Type == gjson.String && v.String() != "" {
				return v.String()
			}
		}
		if v := res.Get("detail"); v.Exists() {
			return v.Raw
		}
	}
	return res.Raw
}

// ModelList is the response of GET /v1/models
type ModelList struct {
	Models map[string]map[string]interface{} `json:"models"`
}

// ModelDetail is the response of GET /v1/models/{name}
type ModelDetail struct {
	Name   string                 `json:"name,omitempty"`
	Config map[string]interface{} `json:"config"`
}

// OptimizeResult holds suggested generation parameters.
type OptimizeResult struct {
	Prompt            string                 `json:"prompt"`
	NegativePrompt    string                 `json:"negative_prompt,omitempty"`
	Model             string                 `json:"model,omitempty"`
	SuggestedModel    string                 `json:"suggested_model,omitempty"`
	GuidanceScale     *float64               `json:"guidance_scale,omitempty"`
	Steps             *int                   `json:"steps,omitempty"`
	Width             *int                   `json:"width,omitempty"`
	Height            *int                   `json:"height,omitempty"`
	Seed              *int64                 `json:"seed,omitempty"`
	Reason            string                 `json:"reason,omitempty"`
	RecommendedParams map[string]interface{} `json:"recommended_params,omitempty"`
	Strategy          string                 `json:"strategy,omitempty"`
}

func marshalWithExtra(v interface{}, extra map[string]interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	var merged map[string]interface{}
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, val := range extra {
		if _, exists := merged[k]; !exists {
			merged[k] = val
		}
	}
	return json.Marshal(merged)
}
