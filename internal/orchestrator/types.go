// Package orchestrator compresses a PDF to approximately a target size.
//
// DESIGN: One synchronous run per Compress call:
//
//	validate → arena (ULID namespace) → fallback chain → convergence loop
//	→ promote best artifact → Result
//
// Passes and backends run strictly sequentially on the caller's goroutine.
// Concurrent calls share only the immutable Config, the backend registry and
// its per-backend rate limiters.
//
// FILES:
//   - types.go:        Config, Request, Result, PassResult, Event
//   - errors.go:       ValidationError, ExhaustionError, BackendFailure
//   - validate.go:     request validation
//   - converge.go:     convergence loop on one backend
//   - fallback.go:     ordered fallback across backends
//   - orchestrator.go: Orchestrator and the Compress entry point
package orchestrator

import (
	"time"

	"github.com/compresr/pdf-gateway/external"
	"github.com/compresr/pdf-gateway/internal/artifact"
	"github.com/compresr/pdf-gateway/internal/preset"
)

// DefaultMaxDocumentBytes is the largest accepted upload (50MB).
const DefaultMaxDocumentBytes = 50 * 1024 * 1024

// FallbackSuffix marks a result produced by a backend other than the first
// one attempted.
const FallbackSuffix = " (Fallback)"

// Config is built once at startup and never mutated.
type Config struct {
	// Backends is the registry the fallback chain draws from.
	Backends *external.Registry

	// Preferred backend is tried first. Empty or unknown means fixed order.
	Preferred string

	// BackendTimeout bounds one backend call.
	BackendTimeout time.Duration

	// MaxDocumentBytes rejects larger documents before any backend runs.
	MaxDocumentBytes int64
}

// Request is one compression job.
type Request struct {
	// Document is the PDF. Never mutated.
	Document []byte

	// Filename is optional; when set it must end in .pdf.
	Filename string

	// Class selects a fixed tier or "custom". Empty with TargetKB set means
	// custom, empty without TargetKB means the default tier.
	Class preset.Class

	// TargetKB is the custom budget in KB.
	TargetKB int

	// Backend overrides Config.Preferred for this request.
	Backend string

	// Progress, when set, receives events synchronously during the run.
	Progress func(Event)
}

// PassResult is the outcome of one pass.
type PassResult struct {
	Artifact  *artifact.Artifact
	SizeBytes int64
	Pass      int
	Params    preset.Params
}

// Result is a successful run. The caller owns Artifact and must hand it back
// through artifact.Manager.Discard once done.
type Result struct {
	RunID          string             `json:"run_id"`
	OriginalSize   int64              `json:"original_size"`
	CompressedSize int64              `json:"compressed_size"`
	RatioPercent   float64            `json:"compression_ratio"`
	Backend        string             `json:"backend"`
	BackendUsed    string             `json:"compression_method"`
	Fallback       bool               `json:"fallback"`
	PassesUsed     int                `json:"passes"`
	Converged      bool               `json:"converged"`
	TargetKB       int                `json:"target_kb"`
	Params         preset.Params      `json:"params"`
	Duration       time.Duration      `json:"-"`
	Artifact       *artifact.Artifact `json:"-"`
	Failures       []BackendFailure   `json:"failures,omitempty"`
}

// EventKind names a progress event.
type EventKind string

const (
	EventStarted       EventKind = "started"
	EventBackend       EventKind = "backend"
	EventPass          EventKind = "pass"
	EventBackendFailed EventKind = "backend_failed"
)

// Event is a progress notification.
type Event struct {
	Kind        EventKind       `json:"kind"`
	RunID       string          `json:"run_id"`
	Backend     string          `json:"backend,omitempty"`
	Pass        int             `json:"pass,omitempty"`
	MaxPasses   int             `json:"max_passes,omitempty"`
	SizeBytes   int64           `json:"size_bytes,omitempty"`
	BestBytes   int64           `json:"best_bytes,omitempty"`
	TargetBytes int64           `json:"target_bytes"`
	Params      *preset.Params  `json:"params,omitempty"`
	Reason      external.Reason `json:"reason,omitempty"`
	Message     string          `json:"-"`
}
