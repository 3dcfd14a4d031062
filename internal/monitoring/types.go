// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by the orchestrator, gateway/ and monitoring/.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - CompressionEvent: telemetry data for each compression run
//   - Config types:     TelemetryConfig, LoggerConfig, AlertConfig, MetricsConfig
package monitoring

import "time"

// =============================================================================
// EVENT TYPES - Structured data for telemetry recording
// =============================================================================

// CompressionEvent captures one compression run.
type CompressionEvent struct {
	RequestID      string    `json:"request_id"`
	RunID          string    `json:"run_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	ClientIP       string    `json:"client_ip,omitempty"`
	Filename       string    `json:"filename,omitempty"`
	TargetKB       int       `json:"target_kb"`
	OriginalSize   int64     `json:"original_size"`
	CompressedSize int64     `json:"compressed_size"`
	RatioPercent   float64   `json:"ratio_percent"`
	Backend        string    `json:"backend,omitempty"`
	Fallback       bool      `json:"fallback"`
	Passes         int       `json:"passes"`
	Converged      bool      `json:"converged"`
	Outcome        string    `json:"outcome"`
	Failures       []string  `json:"failures,omitempty"`
	Error          string    `json:"error,omitempty"`
	LatencyMs      int64     `json:"latency_ms"`
}

// =============================================================================
// CONFIG TYPES
// =============================================================================

// TelemetryConfig contains telemetry configuration.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LogPath     string `yaml:"log_path"`
	LogToStdout bool   `yaml:"log_to_stdout"`
}

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console, auto
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// AlertConfig contains alert thresholds.
type AlertConfig struct {
	HighLatencyThreshold time.Duration `yaml:"high_latency_threshold"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}
