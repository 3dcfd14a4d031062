package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/pdf-gateway/external"
	"github.com/compresr/pdf-gateway/internal/artifact"
	"github.com/compresr/pdf-gateway/internal/monitoring"
	"github.com/compresr/pdf-gateway/internal/orchestrator"
	"github.com/compresr/pdf-gateway/internal/preset"
	"github.com/compresr/pdf-gateway/internal/store"
	"github.com/compresr/pdf-gateway/internal/usage"
)

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("failed to write response")
	}
}

func (g *Gateway) writeData(w http.ResponseWriter, data any) {
	g.writeJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

func (g *Gateway) writeError(w http.ResponseWriter, msg string, status int, details any) {
	g.writeJSON(w, status, Envelope{Success: false, Error: msg, Details: details})
}

// httpError is a request error with a client-facing category.
type httpError struct {
	status  int
	msg     string
	details any
}

func (e *httpError) Error() string {
	if e.details != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.details)
	}
	return e.msg
}

// classify maps any error of a compression request to a response.
func classify(err error) *httpError {
	var herr *httpError
	if errors.As(err, &herr) {
		return herr
	}

	var verr *orchestrator.ValidationError
	if errors.As(err, &verr) {
		switch {
		case errors.Is(err, orchestrator.ErrInvalidTarget):
			return &httpError{http.StatusBadRequest, errInvalidTarget, verr.Detail}
		case errors.Is(err, orchestrator.ErrDocumentTooLarge):
			return &httpError{http.StatusRequestEntityTooLarge, errTooLarge, verr.Detail}
		case errors.Is(err, orchestrator.ErrUnknownBackend):
			return &httpError{http.StatusBadRequest, errUnknownBackend, verr.Detail}
		default:
			return &httpError{http.StatusBadRequest, errUnsupportedDoc, verr.Detail}
		}
	}

	var exhausted *orchestrator.ExhaustionError
	if errors.As(err, &exhausted) {
		if errors.Is(err, orchestrator.ErrNoBackendConfigured) {
			return &httpError{http.StatusServiceUnavailable, errNoBackend, nil}
		}
		return &httpError{http.StatusBadGateway, errAllBackendsFailed, ExhaustionDetails{Failures: exhausted.Failures}}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &httpError{http.StatusServiceUnavailable, errCancelled, nil}
	}

	log.Error().Err(err).Msg("compression request failed")
	return &httpError{http.StatusInternalServerError, errInternal, nil}
}

// =============================================================================
// REQUEST PARSING
// =============================================================================

// readUpload reads the first present file field of a multipart form.
func (g *Gateway) readUpload(w http.ResponseWriter, r *http.Request, fields ...string) ([]byte, string, error) {
	limit := g.cfg.Compression.MaxDocumentBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", &httpError{http.StatusRequestEntityTooLarge, errTooLarge, fmt.Sprintf("limit is %d bytes", limit)}
		}
		return nil, "", &httpError{http.StatusBadRequest, errUnsupportedDoc, "expected a multipart/form-data upload"}
	}

	for _, field := range fields {
		file, header, err := r.FormFile(field)
		if err != nil {
			continue
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, limit+1))
		if err != nil {
			return nil, "", &httpError{http.StatusBadRequest, errUnsupportedDoc, "failed to read upload"}
		}
		return data, filepath.Base(header.Filename), nil
	}
	return nil, "", &httpError{http.StatusBadRequest, errUnsupportedDoc, fmt.Sprintf("missing file field %q", fields[0])}
}

// parseTarget reads a target class and optional custom size.
func parseTarget(size, custom string) (preset.Class, int, error) {
	class, kb, err := preset.ParseTarget(size, custom)
	if err != nil {
		return "", 0, &httpError{http.StatusBadRequest, errInvalidTarget, err.Error()}
	}
	return class, kb, nil
}

// compressedName derives the download filename.
func compressedName(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if base == "" || base == "." || base == "/" {
		base = "document"
	}
	return base + "_compressed.pdf"
}

// =============================================================================
// COMPRESSION
// =============================================================================

// compressJob is one parsed compression request.
type compressJob struct {
	req      orchestrator.Request
	inline   bool
	clientIP string
}

// runCompression runs the orchestrator inside a slot and delivers the result.
func (g *Gateway) runCompression(ctx context.Context, job *compressJob) (*CompressResponse, error) {
	if err := g.pool.acquire(ctx); err != nil {
		return nil, &httpError{http.StatusServiceUnavailable, errBusy, nil}
	}
	defer g.pool.release()

	start := time.Now()
	res, err := g.orch.Compress(ctx, job.req)
	g.record(ctx, job, res, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return g.deliver(ctx, job, res)
}

// deliver turns a promoted artifact into inline data or a download link.
// The artifact is owned by the store afterwards, or discarded here.
func (g *Gateway) deliver(ctx context.Context, job *compressJob, res *orchestrator.Result) (*CompressResponse, error) {
	resp := &CompressResponse{
		RunID:              res.RunID,
		OriginalFilename:   job.req.Filename,
		CompressedFilename: compressedName(job.req.Filename),
		OriginalSize:       res.OriginalSize,
		CompressedSize:     res.CompressedSize,
		CompressionRatio:   res.RatioPercent,
		CompressionMethod:  res.BackendUsed,
		Backend:            res.Backend,
		Fallback:           res.Fallback,
		Passes:             res.PassesUsed,
		Converged:          res.Converged,
		TargetKB:           res.TargetKB,
		Params:             res.Params,
		Failures:           res.Failures,
		DurationMs:         res.Duration.Milliseconds(),
	}

	if job.inline {
		data, err := res.Artifact.ReadAll()
		g.discard(res.Artifact)
		if err != nil {
			return nil, fmt.Errorf("read result: %w", err)
		}
		resp.FileData = base64.StdEncoding.EncodeToString(data)
		return resp, nil
	}

	d := &store.Download{
		RunID:     res.RunID,
		Filename:  resp.CompressedFilename,
		SizeBytes: res.CompressedSize,
		Artifact:  res.Artifact,
	}
	if g.publisher != nil {
		url, err := g.publisher.Publish(ctx, d)
		if err != nil {
			log.Warn().Err(err).Str("run_id", res.RunID).Msg("publish failed, serving locally")
		} else {
			d.RemoteURL = url
		}
	}

	stored, err := g.store.Put(d)
	if err != nil {
		g.discard(res.Artifact)
		return nil, fmt.Errorf("register download: %w", err)
	}
	resp.DownloadToken = stored.Token
	resp.ExpiresAt = stored.ExpiresAt.UTC().Format(time.RFC3339)
	resp.DownloadURL = stored.RemoteURL
	if resp.DownloadURL == "" {
		resp.DownloadURL = strings.TrimSuffix(g.cfg.Downloads.BaseURL, "/") + "/v1/download/" + stored.Token
	}
	return resp, nil
}

func (g *Gateway) discard(a *artifact.Artifact) {
	if err := g.artifacts.Discard(a); err != nil {
		g.alerts.FlagArtifactCleanup("", err)
	}
}

// record writes telemetry for every run and a usage row for successful ones.
func (g *Gateway) record(ctx context.Context, job *compressJob, res *orchestrator.Result, err error, latency time.Duration) {
	requestID := monitoring.RequestIDFromContext(ctx)
	event := &monitoring.CompressionEvent{
		RequestID:    requestID,
		Timestamp:    time.Now(),
		ClientIP:     job.clientIP,
		Filename:     job.req.Filename,
		TargetKB:     job.req.TargetKB,
		OriginalSize: int64(len(job.req.Document)),
		LatencyMs:    latency.Milliseconds(),
	}

	if err != nil {
		event.Outcome = monitoring.OutcomeExhausted
		var exhausted *orchestrator.ExhaustionError
		var verr *orchestrator.ValidationError
		switch {
		case errors.As(err, &exhausted):
			event.Failures = exhausted.Reasons()
		case errors.As(err, &verr):
			event.Outcome = monitoring.OutcomeInvalid
		default:
			event.Outcome = monitoring.OutcomeCancelled
		}
		event.Error = err.Error()
		g.tracker.RecordCompression(event)
		return
	}

	event.RunID = res.RunID
	event.TargetKB = res.TargetKB
	event.CompressedSize = res.CompressedSize
	event.RatioPercent = res.RatioPercent
	event.Backend = res.Backend
	event.Fallback = res.Fallback
	event.Passes = res.PassesUsed
	event.Converged = res.Converged
	event.Outcome = monitoring.OutcomeConverged
	if !res.Converged {
		event.Outcome = monitoring.OutcomeBestEffort
	}
	for _, f := range res.Failures {
		event.Failures = append(event.Failures, f.Backend+":"+string(f.Reason))
	}
	g.tracker.RecordCompression(event)

	if g.usage == nil {
		return
	}
	rec := &usage.Record{
		RequestID:          requestID,
		RunID:              res.RunID,
		OriginalFilename:   job.req.Filename,
		CompressedFilename: compressedName(job.req.Filename),
		OriginalSize:       res.OriginalSize,
		CompressedSize:     res.CompressedSize,
		RatioPercent:       res.RatioPercent,
		TargetKB:           res.TargetKB,
		Backend:            res.BackendUsed,
		Fallback:           res.Fallback,
		Passes:             res.PassesUsed,
		Converged:          res.Converged,
		ClientIP:           job.clientIP,
	}
	if err := g.usage.Record(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn().Err(err).Str("run_id", res.RunID).Msg("failed to record usage")
	}
}

// =============================================================================
// HANDLERS
// =============================================================================

// handleHealth reports backend availability.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if !g.backends.AnyConfigured() {
		status = "degraded"
	}
	g.writeData(w, HealthResponse{Status: status, Version: g.version, Backends: g.backends.Statuses()})
}

// handleCompress runs a full compression.
//
// Form fields: pdf or pdf_file (file), target_size (100|150|180|400|custom
// or a number), custom_size (KB), backend (optional), inline (optional).
func (g *Gateway) handleCompress(w http.ResponseWriter, r *http.Request) {
	doc, filename, err := g.readUpload(w, r, "pdf", "pdf_file")
	if err != nil {
		g.fail(w, r, err)
		return
	}
	class, kb, err := parseTarget(r.FormValue("target_size"), r.FormValue("custom_size"))
	if err != nil {
		g.fail(w, r, err)
		return
	}
	inline, _ := strconv.ParseBool(r.FormValue("inline"))

	job := &compressJob{
		req: orchestrator.Request{
			Document: doc,
			Filename: filename,
			Class:    class,
			TargetKB: kb,
			Backend:  strings.TrimSpace(r.FormValue("backend")),
		},
		inline:   inline,
		clientIP: g.getClientIP(r),
	}

	resp, err := g.runCompression(r.Context(), job)
	if err != nil {
		g.fail(w, r, err)
		return
	}
	g.writeData(w, resp)
}

// fail writes the response for err. Orchestrator validation errors are
// flagged by the orchestrator itself.
func (g *Gateway) fail(w http.ResponseWriter, r *http.Request, err error) {
	var upload *httpError
	if errors.As(err, &upload) && upload.status < http.StatusInternalServerError {
		g.alerts.FlagInvalidRequest(monitoring.RequestIDFromContext(r.Context()), upload.Error())
	}
	herr := classify(err)
	g.writeError(w, herr.msg, herr.status, herr.details)
}

// handleDownload streams a stored result or redirects to its S3 URL.
func (g *Gateway) handleDownload(w http.ResponseWriter, r *http.Request) {
	d, ok := g.store.Get(r.PathValue("token"))
	if !ok {
		g.writeError(w, errNotFound, http.StatusNotFound, "download expired or unknown")
		return
	}
	if d.RemoteURL != "" {
		http.Redirect(w, r, d.RemoteURL, http.StatusFound)
		return
	}

	f, err := d.Artifact.Open()
	if err != nil {
		g.writeError(w, errNotFound, http.StatusNotFound, "file no longer available")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		g.writeError(w, errInternal, http.StatusInternalServerError, nil)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.Filename))
	http.ServeContent(w, r, d.Filename, info.ModTime(), f)
}

// handleStats reports in-process counters and the usage summary of the
// last 24 hours.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"artifacts": g.artifacts.Stats(),
		"downloads": g.store.Len(),
		"in_flight": g.pool.InUse(),
	}
	if p, ok := g.metrics.(interface{ Stats() map[string]int64 }); ok {
		data["totals"] = p.Stats()
	}
	if g.usage != nil {
		summary, err := g.usage.Summarize(r.Context(), time.Now().Add(-24*time.Hour))
		if err != nil {
			log.Warn().Err(err).Msg("usage summary failed")
		} else {
			data["last_24h"] = summary
		}
	}
	g.writeData(w, data)
}

// handleSinglePass runs exactly one Ghostscript pass with explicit or
// preset parameters. This is the endpoint the remote backend talks to.
//
// Form fields: pdf (file), targetSize (KB), dpi, imageQuality, quality
// (screen|ebook|printer|default), color (color|gray).
func (g *Gateway) handleSinglePass(w http.ResponseWriter, r *http.Request) {
	if !g.singlePassAuthorized(r) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		g.writeError(w, errUnauthorized, http.StatusUnauthorized, nil)
		return
	}

	doc, filename, err := g.readUpload(w, r, "pdf")
	if err != nil {
		g.fail(w, r, err)
		return
	}
	if !strings.HasPrefix(string(doc[:min(len(doc), 4)]), "%PDF") {
		g.writeError(w, errUnsupportedDoc, http.StatusBadRequest, "missing %PDF header")
		return
	}

	targetKB := preset.DefaultTargetKB
	if v := r.FormValue("targetSize"); v != "" {
		if targetKB, err = strconv.Atoi(v); err != nil {
			g.writeError(w, errInvalidTarget, http.StatusBadRequest, "targetSize must be a number")
			return
		}
	}
	if err := preset.ValidateTarget(targetKB); err != nil {
		g.writeError(w, errInvalidTarget, http.StatusBadRequest, err.Error())
		return
	}
	params, err := singlePassParams(targetKB, r)
	if err != nil {
		g.writeError(w, "invalid parameters", http.StatusBadRequest, err.Error())
		return
	}

	gs, ok := g.backends.Get(external.NameGhostscript)
	if !ok || !gs.Configured() {
		g.writeError(w, errNoBackend, http.StatusServiceUnavailable, nil)
		return
	}

	if err := g.pool.acquire(r.Context()); err != nil {
		g.writeError(w, errBusy, http.StatusServiceUnavailable, nil)
		return
	}
	defer g.pool.release()

	data, err := g.singlePass(r.Context(), gs, doc, filename, targetKB, params)
	if err != nil {
		reason := external.ReasonOf(err)
		log.Warn().Err(err).Str("reason", string(reason)).Msg("single pass failed")
		g.writeError(w, "compression failed", http.StatusBadGateway, map[string]string{"reason": string(reason)})
		return
	}

	g.writeData(w, SinglePassResponse{
		OriginalSize:     int64(len(doc)),
		CompressedSize:   int64(len(data)),
		CompressionRatio: orchestrator.RatioPercent(int64(len(doc)), int64(len(data))),
		TargetKB:         targetKB,
		Settings:         params.String(),
		FileData:         base64.StdEncoding.EncodeToString(data),
	})
}

// singlePassAuthorized checks the bearer token when one is configured.
func (g *Gateway) singlePassAuthorized(r *http.Request) bool {
	want := g.cfg.Server.SinglePassToken
	if want == "" {
		return true
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// singlePass runs one backend call in its own arena.
func (g *Gateway) singlePass(ctx context.Context, b external.Backend, doc []byte, filename string, targetKB int, params preset.Params) ([]byte, error) {
	arena, err := g.artifacts.NewArena(artifact.NewRunID())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := arena.Close(); err != nil {
			g.alerts.FlagArtifactCleanup(arena.RunID(), err)
		}
	}()

	in, err := arena.Ingest("input", doc)
	if err != nil {
		return nil, err
	}
	out, err := arena.Allocate(b.Name())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Compression.BackendTimeout)
	defer cancel()
	if err := b.Compress(ctx, &external.CompressRequest{
		Input:    in,
		Output:   out,
		Params:   params,
		TargetKB: targetKB,
		Pass:     1,
		Filename: filename,
	}); err != nil {
		return nil, err
	}
	return out.ReadAll()
}

// singlePassParams starts from the preset of targetKB and applies explicit
// overrides from the form.
func singlePassParams(targetKB int, r *http.Request) (preset.Params, error) {
	p := preset.Select(targetKB)

	if v := r.FormValue("dpi"); v != "" {
		dpi, err := strconv.Atoi(v)
		if err != nil || dpi < preset.MinDPI || dpi > 1200 {
			return p, fmt.Errorf("dpi must be between %d and 1200", preset.MinDPI)
		}
		p.ImageDPI = dpi
	}
	if v := r.FormValue("imageQuality"); v != "" {
		q, err := strconv.Atoi(v)
		if err != nil || q < preset.MinImageQuality || q > 100 {
			return p, fmt.Errorf("imageQuality must be between %d and 100", preset.MinImageQuality)
		}
		p.ImageQuality = q
	}
	if v := r.FormValue("quality"); v != "" {
		switch q := preset.QualityPreset(v); q {
		case preset.QualityScreen, preset.QualityEbook, preset.QualityPrinter, preset.QualityDefault:
			p.QualityPreset = q
		default:
			return p, fmt.Errorf("unknown quality %q", v)
		}
	}
	if v := r.FormValue("color"); v != "" {
		switch c := preset.ColorStrategy(v); c {
		case preset.ColorKeep, preset.ColorGray:
			p.Color = c
		default:
			return p, fmt.Errorf("unknown color %q", v)
		}
	}
	return p, nil
}
