package config

import (
	"fmt"
	"time"
)

// Bounds accepted for per-call polling options
const (
	MinPollInterval = 1 * time.Second
	MaxPollInterval = 60 * time.Second
	MinJobTimeout   = 1 * time.Second
	MaxJobTimeout   = 1800 * time.Second
)

// TimeoutConfig holds all configurable timeout values
type TimeoutConfig struct {
	// PollInterval is how often a job result is fetched
	PollInterval time.Duration `yaml:"poll_interval"`

	// UpscaleTimeout bounds polling of upscale jobs
	UpscaleTimeout time.Duration `yaml:"upscale_timeout"`

	// ImageToImageTimeout bounds polling of image-to-image jobs
	ImageToImageTimeout time.Duration `yaml:"img2img_timeout"`

	// OptimizeTimeout bounds the job-manager strategy of optimize_parameters
	OptimizeTimeout time.Duration `yaml:"optimize_timeout"`

	// ContinueWait is how long continue_job waits by default
	ContinueWait time.Duration `yaml:"continue_wait"`

	// PendingTTL is when timed-out jobs are forgotten
	PendingTTL time.Duration `yaml:"pending_ttl"`
}

// DefaultTimeouts returns the default timeout configuration
func DefaultTimeouts() TimeoutConfig {
	return TimeoutConfig{
		PollInterval:        5 * time.Second,
		UpscaleTimeout:      300 * time.Second,
		ImageToImageTimeout: 600 * time.Second,
		OptimizeTimeout:     60 * time.Second,
		ContinueWait:        30 * time.Second,
		PendingTTL:          30 * time.Minute,
	}
}

// TestTimeouts returns timeout configuration suitable for testing
func TestTimeouts() TimeoutConfig {
	return TimeoutConfig{
		PollInterval:        1 * time.Second,
		UpscaleTimeout:      3 * time.Second,
		ImageToImageTimeout: 3 * time.Second,
		OptimizeTimeout:     2 * time.Second,
		ContinueWait:        2 * time.Second,
		PendingTTL:          1 * time.Minute,
	}
}

// Validate checks the configured defaults against the per-call bounds
func (t TimeoutConfig) Validate() error {
	if t.PollInterval < MinPollInterval || t.PollInterval > MaxPollInterval {
		return fmt.Errorf("poll interval must be between %s and %s", MinPollInterval, MaxPollInterval)
	}
	for name, d := range map[string]time.Duration{
		"upscale timeout":        t.UpscaleTimeout,
		"image-to-image timeout": t.ImageToImageTimeout,
		"optimize timeout":       t.OptimizeTimeout,
		"continue wait":          t.ContinueWait,
	} {
		if d < MinJobTimeout || d > MaxJobTimeout {
			return fmt.Errorf("%s must be between %s and %s", name, MinJobTimeout, MaxJobTimeout)
		}
	}
	if t.PendingTTL <= 0 {
		return fmt.Errorf("pending ttl must be positive")
	}
	return nil
}

func loadTimeoutsFromEnv(t *TimeoutConfig, setSeconds func(string, *time.Duration)) {
	setSeconds("POLL_INTERVAL_SECONDS", &t.PollInterval)
	setSeconds("UPSCALE_TIMEOUT_SECONDS", &t.UpscaleTimeout)
	setSeconds("IMG2IMG_TIMEOUT_SECONDS", &t.ImageToImageTimeout)
	setSeconds("OPTIMIZE_TIMEOUT_SECONDS", &t.OptimizeTimeout)
	setSeconds("CONTINUE_WAIT_SECONDS", &t.ContinueWait)
	setSeconds("PENDING_TTL_SECONDS", &t.PendingTTL)
}
