// Compression and backend configuration.
//
// DESIGN: Backend sections are defined in external/types.go and re-exported
// here. This keeps backend settings close to the adapters while the root
// Config can unmarshal them without circular imports.
package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/compresr/pdf-gateway/external"
)

// BackendConfig is an alias for external.Config for use in the root Config.
type BackendConfig = external.Config

// CompressionConfig contains orchestrator settings.
type CompressionConfig struct {
	PreferredBackend string        `yaml:"preferred_backend"` // Tried first, empty uses the fixed order
	BackendTimeout   time.Duration `yaml:"backend_timeout"`   // Upper bound for one backend call
	MaxDocumentMB    int           `yaml:"max_document_mb"`   // Upload limit
}

// MaxDocumentBytes returns the upload limit in bytes.
func (c CompressionConfig) MaxDocumentBytes() int64 {
	return int64(c.MaxDocumentMB) * 1024 * 1024
}

// Validate checks the compression section.
func (c CompressionConfig) Validate() error {
	if c.PreferredBackend != "" && !slices.Contains(external.DefaultOrder, c.PreferredBackend) {
		return fmt.Errorf("unknown compression.preferred_backend: %q (valid: %v)", c.PreferredBackend, external.DefaultOrder)
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("compression.backend_timeout is required")
	}
	if c.MaxDocumentMB <= 0 {
		return fmt.Errorf("compression.max_document_mb is required")
	}
	return nil
}

// validateBackends rejects unknown backend sections and broken limits.
func (c *Config) validateBackends() error {
	for name, b := range c.Backends {
		if !slices.Contains(external.DefaultOrder, name) {
			return fmt.Errorf("unknown backend: backends.%s (valid: %v)", name, external.DefaultOrder)
		}
		if b.Timeout < 0 {
			return fmt.Errorf("backends.%s.timeout must not be negative", name)
		}
		if b.RateLimit < 0 {
			return fmt.Errorf("backends.%s.rate_limit must not be negative", name)
		}
	}
	return nil
}

// BackendConfigs returns the backend sections keyed by backend name.
func (c *Config) BackendConfigs() map[string]external.Config {
	out := make(map[string]external.Config, len(c.Backends))
	for name, b := range c.Backends {
		out[name] = b
	}
	return out
}
