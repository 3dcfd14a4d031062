// Package monitoring - request_logger.go logs the lifecycle of a compression.
//
// DESIGN: Structured logging for request tracing at DEBUG level:
//   - LogIncoming:  upload received from a client
//   - LogPass:      one convergence pass finished
//   - LogFallback:  the chain moved on to the next backend
//   - LogResponse:  response sent to the client
package monitoring

import (
	"net/http"
	"time"
)

// RequestLogger logs request lifecycle events.
type RequestLogger struct {
	logger *Logger
}

// NewRequestLogger creates a new request logger.
func NewRequestLogger(logger *Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

// RequestInfo contains incoming request information.
type RequestInfo struct {
	RequestID  string
	Method     string
	Path       string
	RemoteAddr string
	Filename   string
	BodySize   int64
	TargetKB   int
	StartTime  time.Time
}

// NewRequestInfo creates RequestInfo from an HTTP request.
func NewRequestInfo(r *http.Request, requestID string) *RequestInfo {
	return &RequestInfo{
		RequestID:  requestID,
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		BodySize:   r.ContentLength,
		StartTime:  time.Now(),
	}
}

// LogIncoming logs an incoming upload.
func (rl *RequestLogger) LogIncoming(info *RequestInfo) {
	if rl == nil {
		return
	}
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("method", info.Method).
		Str("path", info.Path).
		Str("filename", info.Filename).
		Int64("body_size", info.BodySize).
		Int("target_kb", info.TargetKB).
		Msg("incoming")
}

// PassInfo describes one finished convergence pass.
type PassInfo struct {
	RequestID string
	RunID     string
	Backend   string
	Pass      int
	Params    string
	SizeBytes int64
	Improved  bool
	Duration  time.Duration
}

// LogPass logs a convergence pass.
func (rl *RequestLogger) LogPass(info *PassInfo) {
	if rl == nil {
		return
	}
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("run_id", info.RunID).
		Str("backend", info.Backend).
		Int("pass", info.Pass).
		Str("params", info.Params).
		Int64("size", info.SizeBytes).
		Bool("improved", info.Improved).
		Dur("duration", info.Duration).
		Msg("pass")
}

// FallbackInfo describes a backend handing over to the next one.
type FallbackInfo struct {
	RequestID string
	From      string
	Reason    string
	Err       error
}

// LogFallback logs a fallback step.
func (rl *RequestLogger) LogFallback(info *FallbackInfo) {
	if rl == nil {
		return
	}
	rl.logger.Info().
		Str("request_id", info.RequestID).
		Str("from", info.From).
		Str("reason", info.Reason).
		Err(info.Err).
		Msg("fallback")
}

// ResponseInfo contains response information.
type ResponseInfo struct {
	RequestID  string
	StatusCode int
	Latency    time.Duration
}

// LogResponse logs a response.
func (rl *RequestLogger) LogResponse(info *ResponseInfo) {
	if rl == nil {
		return
	}
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Int("status", info.StatusCode).
		Dur("latency", info.Latency).
		Msg("response")
}
