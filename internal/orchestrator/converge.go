package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/compresr/pdf-gateway/external"
	"github.com/compresr/pdf-gateway/internal/artifact"
	"github.com/compresr/pdf-gateway/internal/monitoring"
	"github.com/compresr/pdf-gateway/internal/preset"
)

// converge drives one backend through up to MaxPasses passes and returns
// the smallest artifact seen together with the number of passes used.
//
// Ownership: at most two intermediates exist at any time, the best so far
// and the output of the pass in flight. The best artifact is the input of
// the next pass. A pass that does not beat it is released at once; a pass
// that does replaces it. input is never released here.
//
// On error every intermediate of this backend has been released.
func (o *Orchestrator) converge(ctx context.Context, r *run, b external.Backend, input *artifact.Artifact) (*PassResult, int, error) {
	targetBytes := int64(r.targetKB) * 1024
	maxPasses := preset.MaxPasses(r.targetKB)
	params := preset.Select(r.targetKB)
	source := input

	var best *PassResult
	discardBest := func() {
		if best != nil {
			o.release(r, best.Artifact)
			best = nil
		}
	}

	for pass := 1; ; pass++ {
		if err := ctx.Err(); err != nil {
			discardBest()
			return nil, pass - 1, fmt.Errorf("cancelled before pass %d: %w", pass, err)
		}

		out, err := r.arena.Allocate(fmt.Sprintf("%s-pass%d", b.Name(), pass))
		if err != nil {
			discardBest()
			return nil, pass, &external.BackendError{Backend: b.Name(), Reason: external.ReasonArtifact, Err: err}
		}

		start := time.Now()
		err = o.call(ctx, b, &external.CompressRequest{
			Input:    source,
			Output:   out,
			Params:   params,
			TargetKB: r.targetKB,
			Pass:     pass,
			Filename: r.filename,
		})
		o.metrics.IncPass(b.Name())
		if err != nil {
			o.release(r, out)
			discardBest()
			return nil, pass, err
		}

		size, err := out.Size()
		if err != nil {
			o.release(r, out)
			discardBest()
			return nil, pass, &external.BackendError{Backend: b.Name(), Reason: external.ReasonArtifact, Err: err}
		}

		improved := best == nil || size < best.SizeBytes
		if improved {
			discardBest()
			best = &PassResult{Artifact: out, SizeBytes: size, Pass: pass, Params: params}
		} else {
			o.release(r, out)
		}

		o.reqLog.LogPass(&monitoring.PassInfo{
			RequestID: r.requestID,
			RunID:     r.id,
			Backend:   b.Name(),
			Pass:      pass,
			Params:    params.String(),
			SizeBytes: size,
			Improved:  improved,
			Duration:  time.Since(start),
		})
		p := params
		r.emit(Event{
			Kind:        EventPass,
			Backend:     b.Name(),
			Pass:        pass,
			MaxPasses:   maxPasses,
			SizeBytes:   size,
			BestBytes:   best.SizeBytes,
			TargetBytes: targetBytes,
			Params:      &p,
		})

		if best.SizeBytes <= targetBytes || pass >= maxPasses {
			return best, pass, nil
		}

		source = best.Artifact
		params = preset.Escalate(params)
	}
}

// call invokes the backend on a context detached from caller cancellation
// and bounded by the backend timeout. Cancellation takes effect between
// passes.
func (o *Orchestrator) call(ctx context.Context, b external.Backend, req *external.CompressRequest) error {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.BackendTimeout)
	defer cancel()

	err := b.Compress(callCtx, req)
	if err == nil {
		return nil
	}
	if callCtx.Err() != nil && external.ReasonOf(err) != external.ReasonTimeout {
		return &external.BackendError{Backend: b.Name(), Reason: external.ReasonTimeout, Err: err}
	}
	return err
}

// release returns an intermediate to the arena. Failures are logged only.
func (o *Orchestrator) release(r *run, a *artifact.Artifact) {
	if err := r.arena.Release(a); err != nil {
		o.alerts.FlagArtifactCleanup(r.id, err)
	}
}
