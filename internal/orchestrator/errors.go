package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/compresr/pdf-gateway/external"
)

// Error categories surfaced to callers. Match with errors.Is.
var (
	ErrInvalidTarget       = errors.New("invalid target size")
	ErrUnsupportedDocument = errors.New("unsupported document")
	ErrDocumentTooLarge    = errors.New("document too large")
	ErrUnknownBackend      = errors.New("unknown backend")
	ErrNoBackendConfigured = errors.New("no backend configured")
	ErrAllBackendsFailed   = errors.New("all backends failed")
)

// ValidationError rejects a request before any backend is invoked.
type ValidationError struct {
	Kind   error
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Kind }

func invalid(kind error, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// BackendFailure records one backend dropped from the fallback chain.
// Only the backend and reason are serialized; Message and Err may carry
// upstream bodies or scratch paths and stay server-side.
type BackendFailure struct {
	Backend string          `json:"backend"`
	Reason  external.Reason `json:"reason"`
	Message string          `json:"-"`
	Err     error           `json:"-"`
}

func newFailure(backend string, err error) BackendFailure {
	return BackendFailure{Backend: backend, Reason: external.ReasonOf(err), Message: err.Error(), Err: err}
}

func (f BackendFailure) Error() string {
	return fmt.Sprintf("%s (%s): %v", f.Backend, f.Reason, f.Err)
}

func (f BackendFailure) Unwrap() error { return f.Err }

// ExhaustionError is the single terminal error of a run no backend could
// serve. It aggregates every individual failure.
type ExhaustionError struct {
	Failures []BackendFailure
	errs     *multierror.Error
}

func newExhaustionError(failures []BackendFailure) *ExhaustionError {
	var merr *multierror.Error
	for _, f := range failures {
		merr = multierror.Append(merr, f)
	}
	if merr != nil {
		merr.ErrorFormat = func(errs []error) string {
			parts := make([]string, len(errs))
			for i, err := range errs {
				parts[i] = err.Error()
			}
			return strings.Join(parts, "; ")
		}
	}
	return &ExhaustionError{Failures: failures, errs: merr}
}

func (e *ExhaustionError) Error() string {
	if len(e.Failures) == 0 {
		return ErrNoBackendConfigured.Error()
	}
	return fmt.Sprintf("%v: %s", ErrAllBackendsFailed, e.errs.Error())
}

// Unwrap returns the category sentinel.
func (e *ExhaustionError) Unwrap() error {
	if len(e.Failures) == 0 {
		return ErrNoBackendConfigured
	}
	return ErrAllBackendsFailed
}

// Errors returns the individual backend failures.
func (e *ExhaustionError) Errors() []error {
	if e.errs == nil {
		return nil
	}
	return e.errs.WrappedErrors()
}

// Reasons returns "backend:reason" pairs in attempt order.
func (e *ExhaustionError) Reasons() []string {
	out := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f.Backend + ":" + string(f.Reason)
	}
	return out
}
