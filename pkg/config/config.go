package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Env var aliases, first non-empty wins
var (
	baseURLEnv    = []string{"IMAGE_SERVICE_URL", "IMAGE_API_BASE_URL", "REMOTE_IMAGE_API_URL"}
	apiKeyEnv     = []string{"IMAGE_SERVICE_API_KEY", "IMAGE_API_KEY", "REMOTE_IMAGE_API_KEY"}
	imagesRootEnv = []string{"IMAGE_CACHE_DIR", "IMAGES_ROOT_FOLDER"}
)

// Config holds the configuration for the remote image MCP server.
// It is built once by LoadConfig and passed by value into constructors.
type Config struct {
	// Required
	BaseURL    string `yaml:"base_url"`
	ImagesRoot string `yaml:"images_root"`

	// Optional with defaults
	APIKey         string        `yaml:"api_key"`
	HTTPTimeout    time.Duration `yaml:"http_timeout"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`
	MaxImageSizeMB int           `yaml:"max_image_size_mb"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	CatalogTTL     time.Duration `yaml:"catalog_ttl"`
	DebugMode      bool          `yaml:"debug"`

	Timeouts TimeoutConfig `yaml:"timeouts"`
	Log      LogConfig     `yaml:"log"`
	Redis    RedisConfig   `yaml:"redis"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level       string   `yaml:"level"`
	Format      string   `yaml:"format"` // json or console
	OutputPaths []string `yaml:"output_paths"`
}

// RedisConfig configures the optional model catalog backend.
// An empty Addr keeps the catalog in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DefaultConfig returns the configuration used before any file or env override
func DefaultConfig() Config {
	return Config{
		ImagesRoot:     "./remote_images",
		HTTPTimeout:    60 * time.Second,
		RateLimitRPS:   5,
		RateLimitBurst: 10,
		MaxImageSizeMB: 20,
		CatalogTTL:     10 * time.Minute,
		Timeouts:       DefaultTimeouts(),
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stderr"},
		},
	}
}

// LoadConfig builds the configuration: defaults, then the YAML file at path
// (if any), then .env files, then the process environment.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Missing .env files are fine.
	_ = godotenv.Load(".env", ".env.local")

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := firstEnv(baseURLEnv...); v != "" {
		cfg.BaseURL = v
	}
	if v := firstEnv(apiKeyEnv...); v != "" {
		cfg.APIKey = v
	}
	if v := firstEnv(imagesRootEnv...); v != "" {
		cfg.ImagesRoot = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	var errs []error
	setSeconds := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", name, err))
				return
			}
			*dst = time.Duration(n) * time.Second
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", name, err))
				return
			}
			*dst = n
		}
	}

	setSeconds("HTTP_TIMEOUT_SECONDS", &cfg.HTTPTimeout)
	setSeconds("CATALOG_TTL_SECONDS", &cfg.CatalogTTL)
	setInt("RATE_LIMIT_BURST", &cfg.RateLimitBurst)
	setInt("MAX_IMAGE_SIZE_MB", &cfg.MaxImageSizeMB)
	setInt("REDIS_DB", &cfg.Redis.DB)
	loadTimeoutsFromEnv(&cfg.Timeouts, setSeconds)

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err))
		} else {
			cfg.RateLimitRPS = f
		}
	}

	if v := os.Getenv("DEBUG_MODE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid DEBUG_MODE: %w", err))
		} else {
			cfg.DebugMode = b
		}
	}

	return errors.Join(errs...)
}

// Validate checks if the configuration is valid and prepares the images root
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("image service URL is required (set one of %s)", strings.Join(baseURLEnv, ", "))
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("image service URL must be an absolute http(s) URL: %q", c.BaseURL)
	}
	if c.ImagesRoot == "" {
		return fmt.Errorf("images root folder is required")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	if c.MaxImageSizeMB <= 0 {
		return fmt.Errorf("max image size must be positive")
	}
	if err := c.Timeouts.Validate(); err != nil {
		return err
	}

	// Owner-only: the cache may hold private images.
	if err := os.MkdirAll(c.ImagesRoot, 0o700); err != nil {
		return fmt.Errorf("failed to create images root folder: %w", err)
	}

	return nil
}

// MaxImageBytes is the upper bound for a decoded inline image
func (c *Config) MaxImageBytes() int {
	return c.MaxImageSizeMB * 1024 * 1024
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}
