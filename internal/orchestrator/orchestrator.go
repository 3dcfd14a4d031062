package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/pdf-gateway/external"
	"github.com/compresr/pdf-gateway/internal/artifact"
	"github.com/compresr/pdf-gateway/internal/monitoring"
)

// Orchestrator runs compression requests. Safe for concurrent use.
type Orchestrator struct {
	cfg       Config
	artifacts *artifact.Manager
	metrics   monitoring.Metrics
	alerts    *monitoring.AlertManager
	reqLog    *monitoring.RequestLogger
}

// Option configures optional collaborators.
type Option func(*Orchestrator)

// WithMetrics records runs, passes and failures.
func WithMetrics(m monitoring.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithAlerts flags failures and slow runs.
func WithAlerts(a *monitoring.AlertManager) Option {
	return func(o *Orchestrator) { o.alerts = a }
}

// WithRequestLogger logs passes and fallbacks.
func WithRequestLogger(l *monitoring.RequestLogger) Option {
	return func(o *Orchestrator) { o.reqLog = l }
}

// New creates an Orchestrator.
func New(cfg Config, artifacts *artifact.Manager, opts ...Option) (*Orchestrator, error) {
	if cfg.Backends == nil {
		return nil, fmt.Errorf("backend registry is required")
	}
	if artifacts == nil {
		return nil, fmt.Errorf("artifact manager is required")
	}
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = external.DefaultTimeout
	}
	if cfg.MaxDocumentBytes <= 0 {
		cfg.MaxDocumentBytes = DefaultMaxDocumentBytes
	}
	if cfg.Preferred != "" {
		if _, ok := cfg.Backends.Get(cfg.Preferred); !ok {
			return nil, fmt.Errorf("preferred backend %q is not registered", cfg.Preferred)
		}
	}

	o := &Orchestrator{cfg: cfg, artifacts: artifacts, metrics: monitoring.Noop{}}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Config returns the immutable configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// Artifacts returns the artifact manager results are promoted into.
func (o *Orchestrator) Artifacts() *artifact.Manager { return o.artifacts }

// run is the per-request state shared by the chain and the loop.
type run struct {
	id        string
	requestID string
	targetKB  int
	filename  string
	preferred string
	arena     *artifact.Arena
	progress  func(Event)
}

func (r *run) emit(e Event) {
	if r.progress == nil {
		return
	}
	e.RunID = r.id
	if e.TargetBytes == 0 {
		e.TargetBytes = int64(r.targetKB) * 1024
	}
	r.progress(e)
}

// Compress runs one request to completion. A request with neither Class nor
// TargetKB set targets the default tier (preset.DefaultTargetKB, 150KB); a
// TargetKB without a Class is a custom size and must lie in [50, 5000].
//
// It returns either a Result whose
// artifact the caller owns, or exactly one error: a *ValidationError, an
// *ExhaustionError, or a wrapped context error. No scratch artifact of the
// run survives the call.
func (o *Orchestrator) Compress(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	requestID := monitoring.RequestIDFromContext(ctx)

	targetKB, err := o.validate(req)
	if err != nil {
		o.alerts.FlagInvalidRequest(requestID, err.Error())
		o.metrics.ObserveCompression("", monitoring.OutcomeInvalid, 0, 0, time.Since(start))
		return nil, err
	}

	r := &run{
		id:        artifact.NewRunID(),
		requestID: requestID,
		targetKB:  targetKB,
		filename:  req.Filename,
		preferred: o.cfg.Preferred,
		progress:  req.Progress,
	}
	if req.Backend != "" {
		r.preferred = req.Backend
	}
	r.arena, err = o.artifacts.NewArena(r.id)
	if err != nil {
		return nil, fmt.Errorf("create scratch namespace: %w", err)
	}
	defer func() {
		if err := r.arena.Close(); err != nil {
			o.alerts.FlagArtifactCleanup(r.id, err)
		}
	}()

	input, err := r.arena.Ingest("input", req.Document)
	if err != nil {
		return nil, fmt.Errorf("stage input: %w", err)
	}
	originalSize := int64(len(req.Document))
	r.emit(Event{Kind: EventStarted, SizeBytes: originalSize})

	chain, err := o.compressWithFallback(ctx, r, input)
	if err != nil {
		outcome := monitoring.OutcomeExhausted
		if !errors.As(err, new(*ExhaustionError)) {
			outcome = monitoring.OutcomeCancelled
		}
		o.metrics.ObserveCompression("", outcome, 0, 0, time.Since(start))
		return nil, err
	}

	promoted, err := r.arena.Promote(chain.best.Artifact)
	if err != nil {
		return nil, fmt.Errorf("promote result: %w", err)
	}

	label := chain.backend.DisplayName()
	if chain.fallback {
		label += FallbackSuffix
	}
	res := &Result{
		RunID:          r.id,
		OriginalSize:   originalSize,
		CompressedSize: chain.best.SizeBytes,
		RatioPercent:   RatioPercent(originalSize, chain.best.SizeBytes),
		Backend:        chain.backend.Name(),
		BackendUsed:    label,
		Fallback:       chain.fallback,
		PassesUsed:     chain.passes,
		Converged:      chain.best.SizeBytes <= int64(targetKB)*1024,
		TargetKB:       targetKB,
		Params:         chain.best.Params,
		Duration:       time.Since(start),
		Artifact:       promoted,
		Failures:       chain.failures,
	}

	outcome := monitoring.OutcomeConverged
	if !res.Converged {
		outcome = monitoring.OutcomeBestEffort
	}
	o.metrics.ObserveCompression(res.Backend, outcome, res.RatioPercent, res.PassesUsed, res.Duration)
	o.alerts.FlagHighLatency(requestID, res.Duration, res.Backend, res.PassesUsed)

	log.Info().
		Str("request_id", requestID).
		Str("run_id", r.id).
		Str("backend", res.BackendUsed).
		Int64("original", res.OriginalSize).
		Int64("compressed", res.CompressedSize).
		Float64("ratio", res.RatioPercent).
		Int("passes", res.PassesUsed).
		Bool("converged", res.Converged).
		Msg("compression finished")

	return res, nil
}

// RatioPercent is the size reduction in percent, rounded to two decimals.
func RatioPercent(original, compressed int64) float64 {
	if original <= 0 {
		return 0
	}
	basisPoints := float64(original-compressed) * 10000 / float64(original)
	return math.Round(basisPoints) / 100
}
