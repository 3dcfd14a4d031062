package monitoring_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/pdf-gateway/internal/monitoring"
)

// =============================================================================
// METRICS
// =============================================================================

func TestProm_ObserveCompression(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := monitoring.NewProm("pdfgw", reg)

	m.ObserveCompression("convertapi", monitoring.OutcomeConverged, 98.13, 6, 3*time.Second)
	m.ObserveCompression("", monitoring.OutcomeExhausted, 0, 0, time.Second)
	m.IncPass("convertapi")
	m.IncPass("convertapi")
	m.IncBackendFailure("pdfco", "timeout")
	m.ObserveRequest("POST", "POST /v1/compress", "200", 50*time.Millisecond)

	expected := `
# HELP pdfgw_compressions_total Compression runs by backend and outcome
# TYPE pdfgw_compressions_total counter
pdfgw_compressions_total{backend="convertapi",outcome="converged"} 1
pdfgw_compressions_total{backend="none",outcome="exhausted"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "pdfgw_compressions_total"))

	count, err := testutil.GatherAndCount(reg, "pdfgw_compression_ratio_percent")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "failed runs must not observe a ratio")

	assert.Equal(t, map[string]int64{
		"compressions":     2,
		"succeeded":        1,
		"passes":           2,
		"backend_failures": 1,
		"requests":         1,
	}, m.Stats())
}

func TestHandler_ServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := monitoring.NewProm("pdfgw", reg)
	m.IncPass("ghostscript")

	rec := httptest.NewRecorder()
	monitoring.Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `pdfgw_passes_total{backend="ghostscript"} 1`)
}

// =============================================================================
// LOGGING
// =============================================================================

func TestRequestIDContext(t *testing.T) {
	assert.Empty(t, monitoring.RequestIDFromContext(context.Background()))

	ctx := monitoring.WithRequestIDContext(context.Background(), "req-1")
	assert.Equal(t, "req-1", monitoring.RequestIDFromContext(ctx))
}

func TestAlertManager(t *testing.T) {
	var buf bytes.Buffer
	logger := monitoring.NewWithWriter(&buf, zerolog.DebugLevel)
	am := monitoring.NewAlertManager(logger, monitoring.AlertConfig{HighLatencyThreshold: time.Second})

	am.FlagHighLatency("r1", 500*time.Millisecond, "convertapi", 1)
	assert.Empty(t, buf.String(), "below threshold")

	am.FlagHighLatency("r1", 2*time.Second, "convertapi", 6)
	am.FlagExhaustion("r2", 2, errors.New("all backends failed"))
	am.FlagArtifactCleanup("01J00000000000000000000000", errors.New("busy"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "high_latency", first["message"])
	assert.Equal(t, "warn", first["level"])
	assert.Equal(t, "convertapi", first["backend"])
	assert.Contains(t, lines[1], `"message":"backends_exhausted"`)
	assert.Contains(t, lines[2], `"run_id":"01J00000000000000000000000"`)
}

func TestLoggerWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := monitoring.NewWithWriter(&buf, zerolog.InfoLevel)
	am := monitoring.NewAlertManager(logger.With("alerts"), monitoring.AlertConfig{})

	am.FlagArtifactCleanup("run-1", errors.New("busy"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "alerts", line["component"])
	assert.Equal(t, "run-1", line["run_id"])
}

func TestNilHelpersAreSafe(t *testing.T) {
	var am *monitoring.AlertManager
	var rl *monitoring.RequestLogger
	var tr *monitoring.Tracker

	assert.NotPanics(t, func() {
		am.FlagPanic("r", "boom", "stack")
		rl.LogIncoming(&monitoring.RequestInfo{})
		rl.LogResponse(&monitoring.ResponseInfo{})
		tr.RecordCompression(&monitoring.CompressionEvent{})
		assert.Zero(t, tr.Count())
		assert.NoError(t, tr.Close())
	})
}

// =============================================================================
// TELEMETRY
// =============================================================================

func TestTracker_WritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "compressions.jsonl")
	tr, err := monitoring.NewTracker(monitoring.TelemetryConfig{Enabled: true, LogPath: path})
	require.NoError(t, err)

	tr.RecordCompression(&monitoring.CompressionEvent{RequestID: "a", Backend: "convertapi", Outcome: monitoring.OutcomeConverged, Passes: 6})
	tr.RecordCompression(&monitoring.CompressionEvent{RequestID: "b", Outcome: monitoring.OutcomeExhausted, Failures: []string{"pdfco:timeout"}})
	assert.Equal(t, 2, tr.Count())
	require.NoError(t, tr.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []monitoring.CompressionEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e monitoring.CompressionEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		events = append(events, e)
	}
	require.Len(t, events, 2)
	assert.Equal(t, 6, events[0].Passes)
	assert.Equal(t, []string{"pdfco:timeout"}, events[1].Failures)
}

func TestTracker_DisabledWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "off.jsonl")
	tr, err := monitoring.NewTracker(monitoring.TelemetryConfig{LogPath: path})
	require.NoError(t, err)

	tr.RecordCompression(&monitoring.CompressionEvent{RequestID: "a"})
	assert.Zero(t, tr.Count())
	assert.NoFileExists(t, path)
}
