// Package monitoring - alerts.go flags anomalies and errors.
//
// DESIGN: AlertManager logs notable events at appropriate levels:
//   - FlagHighLatency:     Warn when a compression run exceeds threshold
//   - FlagBackendFailure:  Warn when a backend drops out of the fallback chain
//   - FlagExhaustion:      Error when every configured backend failed
//   - FlagArtifactCleanup: Error when a scratch file could not be removed
//   - FlagPanic:           Error on recovered panics
package monitoring

import "time"

// AlertManager flags anomalies and errors.
type AlertManager struct {
	logger               *Logger
	highLatencyThreshold time.Duration
}

// NewAlertManager creates a new alert manager.
func NewAlertManager(logger *Logger, cfg AlertConfig) *AlertManager {
	threshold := cfg.HighLatencyThreshold
	if threshold == 0 {
		threshold = 60 * time.Second
	}
	return &AlertManager{logger: logger, highLatencyThreshold: threshold}
}

// FlagHighLatency logs when a run took longer than the threshold.
func (am *AlertManager) FlagHighLatency(requestID string, latency time.Duration, backend string, passes int) {
	if am == nil || latency < am.highLatencyThreshold {
		return
	}
	am.logger.Warn().
		Str("request_id", requestID).
		Dur("latency", latency).
		Str("backend", backend).
		Int("passes", passes).
		Msg("high_latency")
}

// FlagBackendFailure logs a failed backend inside the fallback chain.
func (am *AlertManager) FlagBackendFailure(requestID, backend, reason string, err error) {
	if am == nil {
		return
	}
	am.logger.Warn().
		Str("request_id", requestID).
		Str("backend", backend).
		Str("reason", reason).
		Err(err).
		Msg("backend_failed")
}

// FlagExhaustion logs a run that no backend could serve.
func (am *AlertManager) FlagExhaustion(requestID string, attempted int, err error) {
	if am == nil {
		return
	}
	am.logger.Error().
		Str("request_id", requestID).
		Int("attempted", attempted).
		Err(err).
		Msg("backends_exhausted")
}

// FlagArtifactCleanup logs a scratch file that survived its run.
func (am *AlertManager) FlagArtifactCleanup(runID string, err error) {
	if am == nil {
		return
	}
	am.logger.Error().
		Str("run_id", runID).
		Err(err).
		Msg("artifact_cleanup_failed")
}

// FlagInvalidRequest logs a rejected request.
func (am *AlertManager) FlagInvalidRequest(requestID, reason string) {
	if am == nil {
		return
	}
	am.logger.Debug().
		Str("request_id", requestID).
		Str("reason", reason).
		Msg("invalid_request")
}

// FlagPanic logs recovered panic.
func (am *AlertManager) FlagPanic(requestID string, panicValue interface{}, stack string) {
	if am == nil {
		return
	}
	am.logger.Error().
		Str("request_id", requestID).
		Interface("panic", panicValue).
		Str("stack", stack).
		Msg("panic_recovered")
}
