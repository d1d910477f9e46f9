package types

import "strings"

// Parameter bounds shared by the tool layer and the operations
const (
	MinGuidance, MaxGuidance             = 0.0, 50.0
	MinSteps, MaxSteps                   = 1, 200
	MinGenerateSide, MaxGenerateSide     = 64, 4096
	MinImg2ImgSide, MaxImg2ImgSide       = 256, 2048
	Img2ImgSideMultiple                  = 64
	MinStrength, MaxStrength             = 0.0, 1.0
	MinUpscale, MaxUpscale               = 1, 8
	DefaultUpscale                       = 2
	MinNewTokens, MaxNewTokens           = 1, 512
	MinTemperature, MaxTemperature       = 0.0, 2.0
	MinTopP, MaxTopP                     = 0.0, 1.0
	MinRepetition, MaxRepetition         = 0.5, 2.0
	MinPollSeconds, MaxPollSeconds       = 1, 60
	MinTimeoutSeconds, MaxTimeoutSeconds = 1, 1800
)

// RequireText fails when s is blank
func RequireText(name, s string) error {
	if strings.TrimSpace(s) == "" {
		return InvalidRequest("%s is required", name)
	}
	return nil
}

// CheckFloat fails when v is set and outside [lo, hi]
func CheckFloat(name string, v *float64, lo, hi float64) error {
	if v != nil && (*v < lo || *v > hi) {
		return InvalidRequest("%s must be between %g and %g, got %g", name, lo, hi, *v)
	}
	return nil
}

// CheckInt fails when v is set and outside [lo, hi]
func CheckInt(name string, v *int, lo, hi int) error {
	if v != nil && (*v < lo || *v > hi) {
		return InvalidRequest("%s must be between %d and %d, got %d", name, lo, hi, *v)
	}
	return nil
}

// CheckMultiple is CheckInt plus a divisibility requirement
func CheckMultiple(name string, v *int, lo, hi, multiple int) error {
	if err := CheckInt(name, v, lo, hi); err != nil {
		return err
	}
	if v != nil && *v%multiple != 0 {
		return InvalidRequest("%s must be a multiple of %d, got %d", name, multiple, *v)
	}
	return nil
}

// FirstError returns the first non-nil error
func FirstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
