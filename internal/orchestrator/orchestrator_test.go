package orchestrator_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/pdf-gateway/external"
	"github.com/compresr/pdf-gateway/internal/artifact"
	"github.com/compresr/pdf-gateway/internal/monitoring"
	"github.com/compresr/pdf-gateway/internal/orchestrator"
	"github.com/compresr/pdf-gateway/internal/preset"
)

// =============================================================================
// STUBS
// =============================================================================

// stubBackend writes a PDF of a size computed from the pass number and the
// input size. Safe for sequential use only, like a real run.
type stubBackend struct {
	name       string
	display    string
	configured bool
	size       func(pass int, inSize int64) int64
	fail       func(pass int) error
	hook       func(ctx context.Context, pass int)
	after      func(req *external.CompressRequest)

	mu       sync.Mutex
	calls    int
	inSizes  []int64
	ctxAlive []bool
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) DisplayName() string {
	if s.display != "" {
		return s.display
	}
	return s.name
}

func (s *stubBackend) Configured() bool { return s.configured }

func (s *stubBackend) Compress(ctx context.Context, req *external.CompressRequest) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.hook != nil {
		s.hook(ctx, req.Pass)
	}
	inSize, err := req.Input.Size()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.inSizes = append(s.inSizes, inSize)
	s.ctxAlive = append(s.ctxAlive, ctx.Err() == nil)
	s.mu.Unlock()

	if s.fail != nil {
		if err := s.fail(req.Pass); err != nil {
			return err
		}
	}
	data := make([]byte, s.size(req.Pass, inSize))
	copy(data, "%PDF")
	if err := os.WriteFile(req.Output.Path, data, 0o600); err != nil {
		return err
	}
	if s.after != nil {
		s.after(req)
	}
	return nil
}

func (s *stubBackend) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// halving produces 3,000,000 bytes on the first pass, then half the input.
func halving(pass int, inSize int64) int64 {
	if pass == 1 {
		return 3_000_000
	}
	return inSize / 2
}

func constant(n int64) func(int, int64) int64 {
	return func(int, int64) int64 { return n }
}

func failWith(reason external.Reason) func(int) error {
	return func(int) error {
		return &external.BackendError{Backend: "stub", Reason: reason, Err: errors.New("boom")}
	}
}

func pdfDoc(n int) []byte {
	doc := make([]byte, n)
	copy(doc, "%PDF-1.7\n")
	return doc
}

type fixture struct {
	mgr  *artifact.Manager
	orch *orchestrator.Orchestrator
}

func newFixture(t *testing.T, cfg orchestrator.Config, backends ...external.Backend) *fixture {
	t.Helper()
	root := t.TempDir()
	mgr, err := artifact.NewManager(artifact.Config{
		ScratchDir: filepath.Join(root, "scratch"),
		OutputDir:  filepath.Join(root, "output"),
	})
	require.NoError(t, err)

	cfg.Backends = external.NewRegistry(backends...)
	orch, err := orchestrator.New(cfg, mgr)
	require.NoError(t, err)
	return &fixture{mgr: mgr, orch: orch}
}

// assertNoLeaks checks allocate == release + promote and an empty scratch tree.
func (f *fixture) assertNoLeaks(t *testing.T) {
	t.Helper()
	stats := f.mgr.Stats()
	assert.Equal(t, stats.Allocated, stats.Released+stats.Promoted, "stats: %+v", stats)

	entries, err := os.ReadDir(f.mgr.ScratchDir())
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch namespaces left behind")
}

// =============================================================================
// CONVERGENCE
// =============================================================================

func TestCompress_HalvingScenario(t *testing.T) {
	stub := &stubBackend{name: "convertapi", display: "ConvertAPI", configured: true, size: halving}
	f := newFixture(t, orchestrator.Config{}, stub)

	res, err := f.orch.Compress(context.Background(), orchestrator.Request{
		Document: pdfDoc(5_000_000),
		Filename: "scan.pdf",
		Class:    preset.Class150,
	})
	require.NoError(t, err)
	defer f.mgr.Discard(res.Artifact)

	assert.Equal(t, int64(5_000_000), res.OriginalSize)
	assert.Equal(t, int64(93_750), res.CompressedSize)
	assert.Equal(t, 6, res.PassesUsed)
	assert.True(t, res.Converged)
	assert.InDelta(t, 98.13, res.RatioPercent, 0.001)
	assert.Equal(t, "convertapi", res.Backend)
	assert.Equal(t, "ConvertAPI", res.BackendUsed)
	assert.False(t, res.Fallback)
	assert.Equal(t, 150, res.TargetKB)

	assert.Equal(t, []int64{5_000_000, 3_000_000, 1_500_000, 750_000, 375_000, 187_500}, stub.inSizes)

	size, err := res.Artifact.Size()
	require.NoError(t, err)
	assert.Equal(t, res.CompressedSize, size)
	assert.True(t, res.Artifact.Promoted())

	f.assertNoLeaks(t)
}

func TestCompress_StopsAtFirstPassUnderTarget(t *testing.T) {
	stub := &stubBackend{name: "ghostscript", configured: true, size: constant(90 * 1024)}
	f := newFixture(t, orchestrator.Config{}, stub)

	res, err := f.orch.Compress(context.Background(), orchestrator.Request{
		Document: pdfDoc(1_000_000),
		Class:    preset.Class100,
	})
	require.NoError(t, err)
	defer f.mgr.Discard(res.Artifact)

	assert.Equal(t, 1, res.PassesUsed)
	assert.Equal(t, 1, stub.Calls())
	assert.True(t, res.Converged)
	f.assertNoLeaks(t)
}

func TestCompress_BudgetExhaustedReturnsBestSeen(t *testing.T) {
	sizes := []int64{400_000, 500_000, 300_000, 350_000, 320_000, 900_000}
	stub := &stubBackend{
		name:       "pdfco",
		configured: true,
		size:       func(pass int, _ int64) int64 { return sizes[pass-1] },
	}
	f := newFixture(t, orchestrator.Config{}, stub)

	res, err := f.orch.Compress(context.Background(), orchestrator.Request{
		Document: pdfDoc(2_000_000),
		Class:    preset.Class150,
	})
	require.NoError(t, err)
	defer f.mgr.Discard(res.Artifact)

	assert.Equal(t, preset.MaxPasses(150), res.PassesUsed)
	assert.Equal(t, int64(300_000), res.CompressedSize)
	assert.False(t, res.Converged)

	// A pass that grew the file is discarded; the best-so-far feeds the next pass.
	assert.Equal(t, []int64{2_000_000, 400_000, 400_000, 300_000, 300_000, 300_000}, stub.inSizes)
	f.assertNoLeaks(t)
}

func TestCompress_LargeTargetSinglePass(t *testing.T) {
	stub := &stubBackend{name: "remote", configured: true, size: constant(900 * 1024)}
	f := newFixture(t, orchestrator.Config{}, stub)

	res, err := f.orch.Compress(context.Background(), orchestrator.Request{
		Document: pdfDoc(3_000_000),
		TargetKB: 500,
	})
	require.NoError(t, err)
	defer f.mgr.Discard(res.Artifact)

	assert.Equal(t, 1, res.PassesUsed)
	assert.Equal(t, 500, res.TargetKB)
	assert.False(t, res.Converged)
}

func TestCompress_Idempotent(t *testing.T) {
	stub := &stubBackend{name: "ghostscript", configured: true, size: func(_ int, in int64) int64 { return in * 2 / 5 }}
	f := newFixture(t, orchestrator.Config{}, stub)
	doc := pdfDoc(2 * 1024 * 1024)

	var sizes []int64
	var passes []int
	for i := 0; i < 2; i++ {
		res, err := f.orch.Compress(context.Background(), orchestrator.Request{Document: doc, Class: preset.Class150})
		require.NoError(t, err)
		sizes = append(sizes, res.CompressedSize)
		passes = append(passes, res.PassesUsed)
		require.NoError(t, f.mgr.Discard(res.Artifact))
	}

	assert.Equal(t, sizes[0], sizes[1])
	assert.Equal(t, passes[0], passes[1])
	f.assertNoLeaks(t)
}

// =============================================================================
// FALLBACK
// =============================================================================

func TestCompress_FallbackLabelsResult(t *testing.T) {
	first := &stubBackend{name: "convertapi", configured: true, size: halving, fail: failWith(external.ReasonAuth)}
	second := &stubBackend{name: "pdfco", display: "PDF.co", configured: true, size: constant(100 * 1024)}
	f := newFixture(t, orchestrator.Config{}, second, first)

	res, err := f.orch.Compress(context.Background(), orchestrator.Request{Document: pdfDoc(500_000), Class: preset.Class150})
	require.NoError(t, err)
	defer f.mgr.Discard(res.Artifact)

	assert.Equal(t, "pdfco", res.Backend)
	assert.Equal(t, "PDF.co (Fallback)", res.BackendUsed)
	assert.True(t, res.Fallback)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "convertapi", res.Failures[0].Backend)
	assert.Equal(t, external.ReasonAuth, res.Failures[0].Reason)
	assert.Equal(t, 1, first.Calls(), "failed backend is not retried")
	f.assertNoLeaks(t)
}

func TestCompress_PreferredBackendFirst(t *testing.T) {
	convert := &stubBackend{name: "convertapi", configured: true, size: constant(10 * 1024)}
	gs := &stubBackend{name: "ghostscript", display: "Ghostscript", configured: true, size: constant(10 * 1024)}
	f := newFixture(t, orchestrator.Config{Preferred: "ghostscript"}, convert, gs)

	res, err := f.orch.Compress(context.Background(), orchestrator.Request{Document: pdfDoc(10_000), Class: preset.Class400})
	require.NoError(t, err)
	defer f.mgr.Discard(res.Artifact)

	assert.Equal(t, "Ghostscript", res.BackendUsed)
	assert.Equal(t, 0, convert.Calls())
}

func TestCompress_RequestBackendOverridesPreferred(t *testing.T) {
	convert := &stubBackend{name: "convertapi", configured: true, size: constant(10 * 1024)}
	gs := &stubBackend{name: "ghostscript", configured: true, size: constant(10 * 1024)}
	f := newFixture(t, orchestrator.Config{Preferred: "convertapi"}, convert, gs)

	res, err := f.orch.Compress(context.Background(), orchestrator.Request{Document: pdfDoc(10_000), Backend: "ghostscript"})
	require.NoError(t, err)
	defer f.mgr.Discard(res.Artifact)
	assert.Equal(t, "ghostscript", res.Backend)
	assert.Equal(t, 0, convert.Calls())

	_, err = f.orch.Compress(context.Background(), orchestrator.Request{Document: pdfDoc(10_000), Backend: "ilovepdf"})
	assert.ErrorIs(t, err, orchestrator.ErrUnknownBackend)
}

func TestCompress_SkipsUnconfiguredWithoutAttempt(t *testing.T) {
	preferred := &stubBackend{name: "adobe", configured: false, size: halving}
	other := &stubBackend{name: "ghostscript", display: "Ghostscript", configured: true, size: constant(50 * 1024)}
	f := newFixture(t, orchestrator.Config{Preferred: "adobe"}, preferred, other)

	res, err := f.orch.Compress(context.Background(), orchestrator.Request{Document: pdfDoc(500_000)})
	require.NoError(t, err)
	defer f.mgr.Discard(res.Artifact)

	assert.Equal(t, 0, preferred.Calls())
	assert.Equal(t, "Ghostscript", res.BackendUsed, "first attempted backend is not a fallback")
	assert.Empty(t, res.Failures)
}

func TestCompress_MidLoopFailureFallsThrough(t *testing.T) {
	flaky := &stubBackend{
		name:       "convertapi",
		configured: true,
		size:       halving,
		fail: func(pass int) error {
			if pass == 3 {
				return &external.BackendError{Backend: "convertapi", Reason: external.ReasonNetwork, Err: errors.New("reset")}
			}
			return nil
		},
	}
	steady := &stubBackend{name: "ghostscript", configured: true, size: constant(100 * 1024)}
	f := newFixture(t, orchestrator.Config{}, flaky, steady)

	res, err := f.orch.Compress(context.Background(), orchestrator.Request{Document: pdfDoc(5_000_000), Class: preset.Class150})
	require.NoError(t, err)
	defer f.mgr.Discard(res.Artifact)

	assert.Equal(t, "ghostscript", res.Backend)
	assert.Equal(t, 1, res.PassesUsed, "fallback backend starts from the original document")
	assert.Equal(t, int64(5_000_000), steady.inSizes[0])
	require.Len(t, res.Failures, 1)
	assert.Equal(t, external.ReasonNetwork, res.Failures[0].Reason)
	f.assertNoLeaks(t)
}

func TestCompress_ArtifactFailureFallsThrough(t *testing.T) {
	vanishing := &stubBackend{
		name:       "convertapi",
		configured: true,
		size:       constant(100 * 1024),
		after: func(req *external.CompressRequest) {
			_ = os.Remove(req.Output.Path)
		},
	}
	steady := &stubBackend{name: "pdfco", display: "PDF.co", configured: true, size: constant(100 * 1024)}
	f := newFixture(t, orchestrator.Config{}, vanishing, steady)

	res, err := f.orch.Compress(context.Background(), orchestrator.Request{Document: pdfDoc(500_000), Class: preset.Class150})
	require.NoError(t, err)
	defer f.mgr.Discard(res.Artifact)

	assert.Equal(t, "PDF.co (Fallback)", res.BackendUsed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "convertapi", res.Failures[0].Backend)
	assert.Equal(t, external.ReasonArtifact, res.Failures[0].Reason)
	f.assertNoLeaks(t)
}

func TestCompress_AtMostTwoIntermediatesLive(t *testing.T) {
	var peak int
	b := &stubBackend{
		name:       "convertapi",
		configured: true,
		size:       halving,
		after: func(req *external.CompressRequest) {
			entries, err := os.ReadDir(filepath.Dir(req.Output.Path))
			require.NoError(t, err)
			peak = max(peak, len(entries))
		},
	}
	f := newFixture(t, orchestrator.Config{}, b)

	res, err := f.orch.Compress(context.Background(), orchestrator.Request{Document: pdfDoc(5_000_000), Class: preset.Class150})
	require.NoError(t, err)
	defer f.mgr.Discard(res.Artifact)

	require.Greater(t, res.PassesUsed, 2)
	// input, best so far, pass in flight
	assert.LessOrEqual(t, peak, 3)
	f.assertNoLeaks(t)
}

func TestCompress_CleanupFailureKeepsResult(t *testing.T) {
	// A non-empty directory in place of the staged input makes its removal
	// fail for any user, while the namespace itself still goes away.
	b := &stubBackend{
		name:       "convertapi",
		configured: true,
		size:       constant(100 * 1024),
		after: func(req *external.CompressRequest) {
			require.NoError(t, os.Remove(req.Input.Path))
			require.NoError(t, os.MkdirAll(filepath.Join(req.Input.Path, "busy"), 0o700))
		},
	}
	f := newFixture(t, orchestrator.Config{}, b)

	res, err := f.orch.Compress(context.Background(), orchestrator.Request{Document: pdfDoc(500_000), Class: preset.Class150})
	require.NoError(t, err)
	require.NotNil(t, res)
	defer f.mgr.Discard(res.Artifact)

	assert.Equal(t, int64(100*1024), res.CompressedSize)
	assert.FileExists(t, res.Artifact.Path)
	assert.Positive(t, f.mgr.Stats().CleanupFailures)

	entries, err := os.ReadDir(f.mgr.ScratchDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCompress_AllBackendsFail(t *testing.T) {
	a := &stubBackend{name: "convertapi", configured: true, size: halving, fail: failWith(external.ReasonTimeout)}
	b := &stubBackend{name: "pdfco", configured: true, size: halving, fail: failWith(external.ReasonMalformedResponse)}
	c := &stubBackend{name: "smallpdf", configured: false, size: halving}
	f := newFixture(t, orchestrator.Config{}, a, b, c)

	res, err := f.orch.Compress(context.Background(), orchestrator.Request{Document: pdfDoc(100_000)})
	require.Error(t, err)
	assert.Nil(t, res)

	var exhausted *orchestrator.ExhaustionError
	require.ErrorAs(t, err, &exhausted)
	assert.ErrorIs(t, err, orchestrator.ErrAllBackendsFailed)
	assert.Equal(t, []string{"convertapi:timeout", "pdfco:malformed-response"}, exhausted.Reasons())
	assert.Len(t, exhausted.Errors(), 2)
	assert.Contains(t, err.Error(), "all backends failed")
	f.assertNoLeaks(t)
}

func TestCompress_NoBackendConfigured(t *testing.T) {
	a := &stubBackend{name: "convertapi", configured: false, size: halving}
	f := newFixture(t, orchestrator.Config{}, a)

	_, err := f.orch.Compress(context.Background(), orchestrator.Request{Document: pdfDoc(100_000)})
	assert.ErrorIs(t, err, orchestrator.ErrNoBackendConfigured)
	assert.Equal(t, "no backend configured", err.Error())
	f.assertNoLeaks(t)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestCompress_TargetOutOfRange(t *testing.T) {
	stub := &stubBackend{name: "convertapi", configured: true, size: halving}
	f := newFixture(t, orchestrator.Config{}, stub)

	for _, kb := range []int{30, 5001} {
		_, err := f.orch.Compress(context.Background(), orchestrator.Request{
			Document: pdfDoc(100_000),
			Class:    preset.ClassCustom,
			TargetKB: kb,
		})
		var verr *orchestrator.ValidationError
		require.ErrorAs(t, err, &verr, "target %d", kb)
		assert.ErrorIs(t, err, orchestrator.ErrInvalidTarget)
	}

	_, err := f.orch.Compress(context.Background(), orchestrator.Request{Document: pdfDoc(100_000), TargetKB: 30})
	assert.ErrorIs(t, err, orchestrator.ErrInvalidTarget)

	assert.Equal(t, 0, stub.Calls())
	assert.Equal(t, int64(0), f.mgr.Stats().Allocated)
}

func TestCompress_EmptyTargetUsesDefaultTier(t *testing.T) {
	stub := &stubBackend{name: "convertapi", configured: true, size: constant(10 * 1024)}
	f := newFixture(t, orchestrator.Config{}, stub)

	res, err := f.orch.Compress(context.Background(), orchestrator.Request{Document: pdfDoc(100_000)})
	require.NoError(t, err)
	defer f.mgr.Discard(res.Artifact)
	assert.Equal(t, preset.DefaultTargetKB, res.TargetKB)
	assert.Equal(t, 150, res.TargetKB)

	res, err = f.orch.Compress(context.Background(), orchestrator.Request{Document: pdfDoc(100_000), TargetKB: 250})
	require.NoError(t, err)
	defer f.mgr.Discard(res.Artifact)
	assert.Equal(t, 250, res.TargetKB, "a bare size is a custom target")
}

func TestCompress_DocumentValidation(t *testing.T) {
	stub := &stubBackend{name: "convertapi", configured: true, size: halving}
	f := newFixture(t, orchestrator.Config{MaxDocumentBytes: 1000}, stub)

	tests := []struct {
		name string
		req  orchestrator.Request
		want error
	}{
		{"empty", orchestrator.Request{}, orchestrator.ErrUnsupportedDocument},
		{"not a pdf", orchestrator.Request{Document: []byte("PK\x03\x04zip")}, orchestrator.ErrUnsupportedDocument},
		{"wrong extension", orchestrator.Request{Document: pdfDoc(100), Filename: "notes.docx"}, orchestrator.ErrUnsupportedDocument},
		{"too large", orchestrator.Request{Document: pdfDoc(1001)}, orchestrator.ErrDocumentTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orch.Compress(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 0, stub.Calls())
}

func TestCompress_UppercaseExtensionAccepted(t *testing.T) {
	stub := &stubBackend{name: "convertapi", configured: true, size: constant(1024)}
	f := newFixture(t, orchestrator.Config{}, stub)

	res, err := f.orch.Compress(context.Background(), orchestrator.Request{Document: pdfDoc(100_000), Filename: "SCAN.PDF"})
	require.NoError(t, err)
	require.NoError(t, f.mgr.Discard(res.Artifact))
}

// =============================================================================
// CANCELLATION, PROGRESS, METRICS
// =============================================================================

func TestCompress_CancelledBetweenPasses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stub := &stubBackend{
		name:       "convertapi",
		configured: true,
		size:       halving,
		hook: func(_ context.Context, pass int) {
			if pass == 2 {
				cancel()
			}
		},
	}
	other := &stubBackend{name: "ghostscript", configured: true, size: halving}
	f := newFixture(t, orchestrator.Config{}, stub, other)

	res, err := f.orch.Compress(ctx, orchestrator.Request{Document: pdfDoc(5_000_000), Class: preset.Class150})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 2, stub.Calls(), "in-flight pass completes, next pass is not started")
	assert.Equal(t, []bool{true, true}, stub.ctxAlive, "backend call is detached from caller cancellation")
	assert.Equal(t, 0, other.Calls())
	f.assertNoLeaks(t)
}

func TestCompress_ProgressEvents(t *testing.T) {
	stub := &stubBackend{name: "convertapi", configured: true, size: halving}
	f := newFixture(t, orchestrator.Config{}, stub)

	var events []orchestrator.Event
	res, err := f.orch.Compress(context.Background(), orchestrator.Request{
		Document: pdfDoc(5_000_000),
		Class:    preset.Class150,
		Progress: func(e orchestrator.Event) { events = append(events, e) },
	})
	require.NoError(t, err)
	defer f.mgr.Discard(res.Artifact)

	require.Len(t, events, 8)
	assert.Equal(t, orchestrator.EventStarted, events[0].Kind)
	assert.Equal(t, orchestrator.EventBackend, events[1].Kind)
	last := events[len(events)-1]
	assert.Equal(t, orchestrator.EventPass, last.Kind)
	assert.Equal(t, 6, last.Pass)
	assert.Equal(t, int64(93_750), last.BestBytes)
	assert.Equal(t, int64(150*1024), last.TargetBytes)
	for _, e := range events {
		assert.Equal(t, res.RunID, e.RunID)
	}
}

func TestCompress_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewProm("pdfgw", reg)

	root := t.TempDir()
	mgr, err := artifact.NewManager(artifact.Config{ScratchDir: filepath.Join(root, "s"), OutputDir: filepath.Join(root, "o")})
	require.NoError(t, err)

	failing := &stubBackend{name: "convertapi", configured: true, size: halving, fail: failWith(external.ReasonAuth)}
	working := &stubBackend{name: "ghostscript", configured: true, size: halving}
	orch, err := orchestrator.New(orchestrator.Config{Backends: external.NewRegistry(failing, working)}, mgr,
		orchestrator.WithMetrics(metrics))
	require.NoError(t, err)

	res, err := orch.Compress(context.Background(), orchestrator.Request{Document: pdfDoc(5_000_000), Class: preset.Class150})
	require.NoError(t, err)
	defer mgr.Discard(res.Artifact)

	stats := metrics.Stats()
	assert.Equal(t, int64(1), stats["compressions"])
	assert.Equal(t, int64(7), stats["passes"])
	assert.Equal(t, int64(1), stats["backend_failures"])

	count, err := testutil.GatherAndCount(reg, "pdfgw_backend_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNew_RejectsUnknownPreferred(t *testing.T) {
	mgr, err := artifact.NewManager(artifact.Config{ScratchDir: t.TempDir(), OutputDir: t.TempDir()})
	require.NoError(t, err)

	_, err = orchestrator.New(orchestrator.Config{
		Backends:  external.NewRegistry(&stubBackend{name: "convertapi"}),
		Preferred: "ilovepdf",
	}, mgr)
	assert.Error(t, err)

	_, err = orchestrator.New(orchestrator.Config{}, mgr)
	assert.Error(t, err)
}
