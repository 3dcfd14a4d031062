package orchestrator

import (
	"context"
	"errors"

	"github.com/compresr/pdf-gateway/external"
	"github.com/compresr/pdf-gateway/internal/artifact"
	"github.com/compresr/pdf-gateway/internal/monitoring"
)

// chainResult is the outcome of a successful fallback chain.
type chainResult struct {
	best     *PassResult
	passes   int
	backend  external.Backend
	fallback bool
	failures []BackendFailure
}

// compressWithFallback tries the preferred backend, then every other one in
// fixed order. Unconfigured backends are skipped without an attempt. Each
// attempted backend gets a full, independent convergence loop.
func (o *Orchestrator) compressWithFallback(ctx context.Context, r *run, input *artifact.Artifact) (*chainResult, error) {
	var failures []BackendFailure
	attempted := 0

	for _, b := range o.cfg.Backends.Chain(r.preferred) {
		if !b.Configured() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempted++
		r.emit(Event{Kind: EventBackend, Backend: b.Name()})

		best, passes, err := o.converge(ctx, r, b, input)
		if err == nil {
			return &chainResult{
				best:     best,
				passes:   passes,
				backend:  b,
				fallback: attempted > 1,
				failures: failures,
			}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}

		f := newFailure(b.Name(), err)
		failures = append(failures, f)
		o.metrics.IncBackendFailure(f.Backend, string(f.Reason))
		o.alerts.FlagBackendFailure(r.requestID, f.Backend, string(f.Reason), err)
		o.reqLog.LogFallback(&monitoring.FallbackInfo{
			RequestID: r.requestID,
			From:      f.Backend,
			Reason:    string(f.Reason),
			Err:       err,
		})
		r.emit(Event{Kind: EventBackendFailed, Backend: f.Backend, Reason: f.Reason, Message: f.Message})
	}

	exhausted := newExhaustionError(failures)
	o.alerts.FlagExhaustion(r.requestID, attempted, exhausted)
	return nil, exhausted
}
