package external

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Reason classifies a backend failure.
type Reason string

const (
	ReasonAuth              Reason = "auth"
	ReasonNetwork           Reason = "network"
	ReasonTimeout           Reason = "timeout"
	ReasonMalformedResponse Reason = "malformed-response"
	ReasonUnsupported       Reason = "unsupported"
	ReasonArtifact          Reason = "artifact"
)

// BackendError is the only error type backends return from Compress.
type BackendError struct {
	Backend string
	Reason  Reason
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Reason, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// newError builds a BackendError.
func newError(backend string, reason Reason, format string, args ...any) *BackendError {
	return &BackendError{Backend: backend, Reason: reason, Err: fmt.Errorf(format, args...)}
}

// wrap attaches a reason to err. A BackendError passes through unchanged.
func wrap(backend string, reason Reason, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Backend: backend, Reason: reason, Err: err}
}

// ReasonOf extracts the reason of a backend failure. Errors that are not
// BackendErrors are classified by their transport characteristics.
func ReasonOf(err error) Reason {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Reason
	}
	return transportReason(err)
}

// transportReason classifies an error from http.Client.Do or exec.
func transportReason(err error) Reason {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ReasonTimeout
	}
	return ReasonNetwork
}

// statusReason classifies a non-success HTTP status.
func statusReason(status int) Reason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ReasonTimeout
	case status == http.StatusUnsupportedMediaType || status == http.StatusUnprocessableEntity:
		return ReasonUnsupported
	case status == http.StatusTooManyRequests || status >= 500:
		return ReasonNetwork
	default:
		return ReasonMalformedResponse
	}
}
