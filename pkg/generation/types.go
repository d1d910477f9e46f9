package generation

import (
	"time"

	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

// GenerateParams contains parameters for image generation
type GenerateParams struct {
	Prompt         string
	Model          string
	NegativePrompt string
	GuidanceScale  *float64
	Steps          *int
	Width          *int
	Height         *int
	Seed           *int64
	Scheduler      string
	Filename       string // Optional filename hint
	Extra          map[string]interface{}
}

// Validate checks the parameter bounds
func (p GenerateParams) Validate() error {
	return types.FirstError(
		types.RequireText("prompt", p.Prompt),
		types.CheckFloat("guidance_scale", p.GuidanceScale, types.MinGuidance, types.MaxGuidance),
		types.CheckInt("steps", p.Steps, types.MinSteps, types.MaxSteps),
		types.CheckInt("width", p.Width, types.MinGenerateSide, types.MaxGenerateSide),
		types.CheckInt("height", p.Height, types.MinGenerateSide, types.MaxGenerateSide),
	)
}

// ImageToImageParams contains parameters for transforming an existing image
type ImageToImageParams struct {
	Image          types.ImageReference
	Prompt         string
	NegativePrompt string
	Model          string
	GuidanceScale  *float64
	Steps          *int
	Width          *int
	Height         *int
	Seed           *int64
	Strength       *float64
	PollInterval   time.Duration
	Timeout        time.Duration
	Filename       string
	Extra          map[string]interface{}
}

// Validate checks the parameter bounds
func (p ImageToImageParams) Validate() error {
	return types.FirstError(
		types.RequireText("prompt", p.Prompt),
		types.CheckFloat("guidance_scale", p.GuidanceScale, types.MinGuidance, types.MaxGuidance),
		types.CheckInt("steps", p.Steps, types.MinSteps, types.MaxSteps),
		types.CheckMultiple("width", p.Width, types.MinImg2ImgSide, types.MaxImg2ImgSide, types.Img2ImgSideMultiple),
		types.CheckMultiple("height", p.Height, types.MinImg2ImgSide, types.MaxImg2ImgSide, types.Img2ImgSideMultiple),
		types.CheckFloat("strength", p.Strength, types.MinStrength, types.MaxStrength),
	)
}

// ImageResult contains the result of a generation or transformation
type ImageResult struct {
	Record      *types.LocalRecord
	ImageBase64 string // empty when the bytes could not be obtained
	UsedParams  map[string]interface{}
	JobID       string
	Strategy    string // "job" or "sync" for image-to-image
	Polls       int
	Duration    time.Duration
}
