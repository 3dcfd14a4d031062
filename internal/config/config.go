// Package config loads and validates the gateway configuration.
//
// DESIGN: All configuration comes from YAML files. The binary embeds a
// complete default file, so required fields are validated, not defaulted.
// Backend sections are the one exception: a missing backend is simply
// unconfigured and skipped by the fallback chain.
//
// FILES:
//   - config.go:     Root Config struct, Load(), Validate()
//   - backends.go:   Compression and backend sections
//   - monitoring.go: Logging, telemetry, alert and metrics settings
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/compresr/pdf-gateway/internal/store"
	"github.com/compresr/pdf-gateway/internal/usage"
)

// Config is the root configuration for the PDF gateway.
type Config struct {
	Server      ServerConfig             `yaml:"server"`      // HTTP server settings
	Compression CompressionConfig        `yaml:"compression"` // Orchestrator settings
	Backends    map[string]BackendConfig `yaml:"backends"`    // Per-backend credentials and limits
	Artifacts   ArtifactsConfig          `yaml:"artifacts"`   // Scratch and output directories
	Downloads   DownloadsConfig          `yaml:"downloads"`   // Download handles and S3 publishing
	Usage       UsageConfig              `yaml:"usage"`       // Usage statistics database
	Monitoring  MonitoringConfig         `yaml:"monitoring"`  // Telemetry and logging
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port           int           `yaml:"port"`            // Port to listen on
	ReadTimeout    time.Duration `yaml:"read_timeout"`    // Max time to read request
	WriteTimeout   time.Duration `yaml:"write_timeout"`   // Max time to write response
	RateLimit      float64       `yaml:"rate_limit"`      // Requests per second per client IP, 0 disables
	RateBurst      int           `yaml:"rate_burst"`      // Token bucket size per client IP
	MaxConcurrent  int           `yaml:"max_concurrent"`  // Compressions in flight, 0 means unbounded
	AllowedOrigins []string      `yaml:"allowed_origins"` // CORS origins besides localhost

	// SinglePassToken, when set, is the bearer token POST /compress requires.
	// Peers reach it through their remote backend's api_key.
	SinglePassToken string `yaml:"single_pass_token"`
}

// ArtifactsConfig contains artifact directory and janitor settings.
type ArtifactsConfig struct {
	ScratchDir      string        `yaml:"scratch_dir"`      // Per-run scratch namespaces
	OutputDir       string        `yaml:"output_dir"`       // Promoted results
	MaxAge          time.Duration `yaml:"max_age"`          // Janitor deletes anything older
	JanitorInterval time.Duration `yaml:"janitor_interval"` // How often serve runs the janitor
}

// DownloadsConfig contains download handle settings.
type DownloadsConfig struct {
	TTL     time.Duration `yaml:"ttl"`      // Lifetime of a download token
	BaseURL string        `yaml:"base_url"` // Public URL prefix for download links
	S3      S3Config      `yaml:"s3"`       // Optional durable publishing
}

// S3Config is an alias for store.S3Config.
type S3Config = store.S3Config

// UsageConfig is an alias for usage.Config.
type UsageConfig = usage.Config

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvWithDefaults expands environment variables with support for default values.
// Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Load reads configuration from a YAML file.
// Returns an error if the file doesn't exist or is invalid.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
// Supports ${VAR:-default} env var expansion, env overrides, and validation.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides lets deployments redirect paths and pick a backend
// without editing the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PDF_GATEWAY_SCRATCH_DIR"); v != "" {
		c.Artifacts.ScratchDir = v
	}
	if v := os.Getenv("PDF_GATEWAY_OUTPUT_DIR"); v != "" {
		c.Artifacts.OutputDir = v
	}
	if v := os.Getenv("PDF_GATEWAY_PREFERRED_BACKEND"); v != "" {
		c.Compression.PreferredBackend = v
	}
	// Providing a path turns telemetry on.
	if v := os.Getenv("PDF_GATEWAY_TELEMETRY_LOG"); v != "" {
		c.Monitoring.TelemetryPath = v
		c.Monitoring.TelemetryEnabled = true
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout == 0 {
		return fmt.Errorf("server.read_timeout is required")
	}
	if c.Server.WriteTimeout == 0 {
		return fmt.Errorf("server.write_timeout is required")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		return fmt.Errorf("server.rate_burst must be at least 1 when rate_limit is set")
	}

	if err := c.Compression.Validate(); err != nil {
		return err
	}
	if err := c.validateBackends(); err != nil {
		return err
	}

	if c.Artifacts.MaxAge <= 0 {
		return fmt.Errorf("artifacts.max_age is required")
	}
	if c.Artifacts.JanitorInterval <= 0 {
		return fmt.Errorf("artifacts.janitor_interval is required")
	}

	if c.Downloads.TTL <= 0 {
		return fmt.Errorf("downloads.ttl is required")
	}
	if s3 := c.Downloads.S3; s3.Enabled {
		if s3.Bucket == "" {
			return fmt.Errorf("downloads.s3.bucket is required when s3 is enabled")
		}
		if s3.Region == "" {
			return fmt.Errorf("downloads.s3.region is required when s3 is enabled")
		}
		if s3.PresignTTL <= 0 {
			return fmt.Errorf("downloads.s3.presign_ttl is required when s3 is enabled")
		}
	}

	if c.Usage.Enabled {
		if c.Usage.Path == "" {
			return fmt.Errorf("usage.path is required when usage is enabled")
		}
		if c.Usage.Retention <= 0 {
			return fmt.Errorf("usage.retention is required when usage is enabled")
		}
	}

	return c.Monitoring.Validate()
}
