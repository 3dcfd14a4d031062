// Package gateway types - wire types of the PDF compression HTTP API.
//
// DESIGN: Every JSON response uses one envelope:
//
//	{"success": true,  "data":  {...}}
//	{"success": false, "error": "all backends failed", "details": {...}}
//
// Types are defined here to keep handlers small and give tests one contract.
package gateway

import (
	"github.com/compresr/pdf-gateway/external"
	"github.com/compresr/pdf-gateway/internal/orchestrator"
	"github.com/compresr/pdf-gateway/internal/preset"
)

// Headers and limits.
const (
	HeaderRequestID = "X-Request-ID"

	// MaxRateLimitBuckets caps the number of tracked client IPs.
	MaxRateLimitBuckets = 10000

	// multipartOverhead is allowed on top of the document limit.
	multipartOverhead = 1 << 20

	// multipartMemory is kept in memory before spilling to temp files.
	multipartMemory = 32 << 20
)

// Error categories returned to clients.
const (
	errInvalidTarget     = "invalid target size"
	errUnsupportedDoc    = "unsupported document"
	errTooLarge          = "document too large"
	errUnknownBackend    = "unknown backend"
	errNoBackend         = "no backend configured"
	errAllBackendsFailed = "all backends failed"
	errCancelled         = "request cancelled"
	errInternal          = "internal error"
	errNotFound          = "not found"
	errBusy              = "server busy"
	errUnauthorized      = "unauthorized"
)

// Envelope is the JSON body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

// CompressResponse is the data of a successful POST /v1/compress.
type CompressResponse struct {
	RunID              string                        `json:"run_id"`
	OriginalFilename   string                        `json:"original_filename"`
	CompressedFilename string                        `json:"compressed_filename"`
	OriginalSize       int64                         `json:"original_size"`
	CompressedSize     int64                         `json:"compressed_size"`
	CompressionRatio   float64                       `json:"compression_ratio"`
	CompressionMethod  string                        `json:"compression_method"`
	Backend            string                        `json:"backend"`
	Fallback           bool                          `json:"fallback"`
	Passes             int                           `json:"passes"`
	Converged          bool                          `json:"converged"`
	TargetKB           int                           `json:"target_kb"`
	Params             preset.Params                 `json:"params"`
	Failures           []orchestrator.BackendFailure `json:"failures,omitempty"`
	DownloadURL        string                        `json:"download_url,omitempty"`
	DownloadToken      string                        `json:"download_token,omitempty"`
	ExpiresAt          string                        `json:"expires_at,omitempty"`
	FileData           string                        `json:"file_data,omitempty"`
	DurationMs         int64                         `json:"duration_ms"`
}

// SinglePassResponse is the data of POST /compress.
type SinglePassResponse struct {
	OriginalSize     int64   `json:"original_size"`
	CompressedSize   int64   `json:"compressed_size"`
	CompressionRatio float64 `json:"compression_ratio"`
	TargetKB         int     `json:"target_kb"`
	Settings         string  `json:"settings"`
	FileData         string  `json:"file_data"`
}

// HealthResponse is the data of GET /health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Backends []external.Status `json:"backends"`
}

// ExhaustionDetails lists failures when no backend succeeded.
type ExhaustionDetails struct {
	Failures []orchestrator.BackendFailure `json:"failures"`
}
