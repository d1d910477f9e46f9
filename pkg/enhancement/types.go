package enhancement

import (
	"time"

	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

// UpscaleParams contains parameters for image upscaling
type UpscaleParams struct {
	Image        types.ImageReference
	Scale        *int // defaults to 2
	PollInterval time.Duration
	Timeout      time.Duration
	Filename     string
	Extra        map[string]interface{}
}

// Validate checks the parameter bounds
func (p UpscaleParams) Validate() error {
	return types.CheckInt("scale", p.Scale, types.MinUpscale, types.MaxUpscale)
}

func (p UpscaleParams) scale() int {
	if p.Scale == nil {
		return types.DefaultUpscale
	}
	return *p.Scale
}

// CaptionParams contains parameters for captioning
type CaptionParams struct {
	Image              types.ImageReference
	Prompt             string
	MaxNewTokens       *int
	Temperature        *float64
	TopP               *float64
	UseNucleusSampling *bool
	RepetitionPenalty  *float64
	ModelID            string

	// SaveCaption writes the caption to the remote metadata and supersedes
	// the local record
	SaveCaption bool
	Extra       map[string]interface{}
}

// Validate checks the parameter bounds
func (p CaptionParams) Validate() error {
	return types.FirstError(
		types.CheckInt("max_new_tokens", p.MaxNewTokens, types.MinNewTokens, types.MaxNewTokens),
		types.CheckFloat("temperature", p.Temperature, types.MinTemperature, types.MaxTemperature),
		types.CheckFloat("top_p", p.TopP, types.MinTopP, types.MaxTopP),
		types.CheckFloat("repetition_penalty", p.RepetitionPenalty, types.MinRepetition, types.MaxRepetition),
	)
}

// MetadataParams describes a metadata update. Patch follows JSON merge
// patch rules: null removes a key, objects merge recursively.
type MetadataParams struct {
	Image types.ImageReference
	Patch map[string]interface{}
}

// EnhancementResult contains the result of an upscale
type EnhancementResult struct {
	Record      *types.LocalRecord
	ImageBase64 string
	SourceToken string
	Scale       int
	JobID       string
	Polls       int
	Duration    time.Duration
}

// CaptionResult is the caption plus the record written when it was saved
type CaptionResult struct {
	types.CaptionResult
	SourceToken string
	Record      *types.LocalRecord // nil unless SaveCaption was set
	Duration    time.Duration
}

// MetadataUpdate is the outcome of a metadata update
type MetadataUpdate struct {
	Record         *types.LocalRecord
	Superseded     string // id of the replaced record, empty when none existed
	RemoteMetadata map[string]interface{}
}
