// Package external provides the PDF compression backends.
//
// DESIGN: Every backend implements Backend. The orchestrator allocates both
// artifacts of a pass and hands them over in CompressRequest: the backend
// reads Input and writes Output, and never creates files of its own.
//
// Variants:
//   - convertapi:  remote multipart API (ConvertAPI)
//   - pdfco:       presigned upload + JSON job (PDF.co)
//   - adobe:       OAuth client credentials + asset API (Adobe PDF Services)
//   - smallpdf:    no public API, always fails with ReasonUnsupported
//   - ghostscript: local `gs` process
//   - remote:      another pdf-gateway instance's /compress endpoint
//
// FILES:
//   - types.go:    Backend interface, CompressRequest, Config
//   - errors.go:   Reason, BackendError, classification helpers
//   - http.go:     shared HTTP client with rate limiting and size limits
//   - registry.go: Registry, fixed fallback order, factory
package external

import (
	"context"
	"time"

	"github.com/compresr/pdf-gateway/internal/artifact"
	"github.com/compresr/pdf-gateway/internal/preset"
)

// Backend names, in default fallback order.
const (
	NameConvertAPI  = "convertapi"
	NamePDFCo       = "pdfco"
	NameAdobe       = "adobe"
	NameSmallPDF    = "smallpdf"
	NameGhostscript = "ghostscript"
	NameRemote      = "remote"
)

// DefaultOrder is the fixed order in which backends are tried after the
// preferred one.
var DefaultOrder = []string{
	NameConvertAPI,
	NamePDFCo,
	NameAdobe,
	NameSmallPDF,
	NameGhostscript,
	NameRemote,
}

// Backend compresses one document with one parameter set.
type Backend interface {
	// Name returns the stable backend id (e.g., "convertapi").
	Name() string

	// DisplayName returns the human-readable label used in results.
	DisplayName() string

	// Configured reports whether credentials or binaries are present.
	// Unconfigured backends are skipped by the fallback chain.
	Configured() bool

	// Compress reads req.Input and writes the compressed document to req.Output.
	Compress(ctx context.Context, req *CompressRequest) error
}

// CompressRequest is one pass handed to a backend.
type CompressRequest struct {
	// Input is the document to compress. Never modified.
	Input *artifact.Artifact

	// Output is a pre-allocated empty artifact the backend must fill.
	Output *artifact.Artifact

	// Params is the parameter set for this pass.
	Params preset.Params

	// TargetKB is the caller's size budget, for backends that accept one.
	TargetKB int

	// Pass is the 1-based pass number within the convergence loop.
	Pass int

	// Filename is the caller-supplied name, used in upload metadata.
	Filename string
}

// Config holds configuration for a single backend. Each backend reads the
// subset of fields it needs.
type Config struct {
	// Enabled turns the backend off without removing its credentials.
	Enabled *bool `yaml:"enabled,omitempty"`

	// BaseURL of the remote service.
	BaseURL string `yaml:"base_url"`

	// APIKey is the secret, key, or bearer token of the service.
	APIKey string `yaml:"api_key"`

	// ClientID and ClientSecret are OAuth client credentials (adobe).
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// OrganizationID is required by adobe.
	OrganizationID string `yaml:"organization_id"`

	// TokenURL is the OAuth token endpoint (adobe).
	TokenURL string `yaml:"token_url"`

	// Binary is the executable path (ghostscript).
	Binary string `yaml:"binary"`

	// Timeout bounds one pass, including uploads, polling, and downloads.
	Timeout time.Duration `yaml:"timeout"`

	// PollInterval is the job status polling interval (adobe).
	PollInterval time.Duration `yaml:"poll_interval"`

	// RateLimit is the sustained request rate per second shared by all
	// requests using this backend. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`

	// Burst is the limiter bucket size.
	Burst int `yaml:"burst"`
}

// IsEnabled reports whether the backend was not explicitly disabled.
func (c Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Default timeouts.
const (
	DefaultTimeout      = 120 * time.Second
	DefaultPollInterval = 2 * time.Second
)

// withDefaults fills zero values.
func (c Config) withDefaults(baseURL string) Config {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Burst == 0 {
		c.Burst = 1
	}
	return c
}
