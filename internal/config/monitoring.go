// Monitoring configuration - telemetry and logging settings.
//
// DESIGN: Separates logging (zerolog) from telemetry (JSONL files).
// Logging is for operators, telemetry is one record per compression run.
package config

import (
	"fmt"
	"time"

	"github.com/compresr/pdf-gateway/internal/monitoring"
)

// MonitoringConfig contains all monitoring settings.
type MonitoringConfig struct {
	// Logging settings
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json, console, auto
	LogOutput string `yaml:"log_output"` // stdout, stderr, or file path

	// Telemetry settings
	TelemetryEnabled bool   `yaml:"telemetry_enabled"` // Enable telemetry tracking
	TelemetryPath    string `yaml:"telemetry_path"`    // Path to telemetry JSONL file
	LogToStdout      bool   `yaml:"log_to_stdout"`     // Also log telemetry to stdout

	// Alerts
	HighLatencyThreshold time.Duration `yaml:"high_latency_threshold"` // Slow compression warning

	// Prometheus
	MetricsEnabled   bool   `yaml:"metrics_enabled"`   // Serve /metrics
	MetricsNamespace string `yaml:"metrics_namespace"` // Metric name prefix
}

// Validate checks the monitoring section.
func (m MonitoringConfig) Validate() error {
	switch m.LogFormat {
	case "", "json", "console", "auto":
	default:
		return fmt.Errorf("invalid monitoring.log_format: %q (must be json, console or auto)", m.LogFormat)
	}
	if m.TelemetryEnabled && m.TelemetryPath == "" {
		return fmt.Errorf("monitoring.telemetry_path is required when telemetry is enabled")
	}
	return nil
}

// LoggerConfig returns the logger settings.
func (m MonitoringConfig) LoggerConfig() monitoring.LoggerConfig {
	return monitoring.LoggerConfig{Level: m.LogLevel, Format: m.LogFormat, Output: m.LogOutput}
}

// TelemetryConfig returns the telemetry settings.
func (m MonitoringConfig) TelemetryConfig() monitoring.TelemetryConfig {
	return monitoring.TelemetryConfig{Enabled: m.TelemetryEnabled, LogPath: m.TelemetryPath, LogToStdout: m.LogToStdout}
}

// AlertConfig returns the alert thresholds.
func (m MonitoringConfig) AlertConfig() monitoring.AlertConfig {
	return monitoring.AlertConfig{HighLatencyThreshold: m.HighLatencyThreshold}
}

// MetricsConfig returns the Prometheus settings.
func (m MonitoringConfig) MetricsConfig() monitoring.MetricsConfig {
	ns := m.MetricsNamespace
	if ns == "" {
		ns = "pdf_gateway"
	}
	return monitoring.MetricsConfig{Enabled: m.MetricsEnabled, Namespace: ns}
}
