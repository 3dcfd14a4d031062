package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"

	"golang.org/x/time/rate"

	"github.com/compresr/pdf-gateway/internal/artifact"
)

const (
	// maxResponseSize prevents OOM on unexpectedly large API responses (200MB).
	// Base64 payloads of a 50MB document must fit.
	maxResponseSize = 200 * 1024 * 1024

	// maxErrorBodyLen limits error body in error messages to avoid log bloat.
	maxErrorBodyLen = 500
)

// pdfMagic is the header every PDF starts with.
var pdfMagic = []byte("%PDF")

// httpBackend is the shared plumbing of the remote backends.
type httpBackend struct {
	name    string
	display string
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
}

func newHTTPBackend(name, display string, cfg Config, client *http.Client) httpBackend {
	if client == nil {
		client = &http.Client{} // timeout via context, not client
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}
	return httpBackend{name: name, display: display, cfg: cfg, client: client, limiter: limiter}
}

// Name returns the backend id.
func (b *httpBackend) Name() string { return b.name }

// DisplayName returns the human-readable label.
func (b *httpBackend) DisplayName() string { return b.display }

// begin bounds a pass by the backend timeout and waits for a rate limit token.
func (b *httpBackend) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			cancel()
			return nil, nil, newError(b.name, ReasonTimeout, "rate limit wait: %w", err)
		}
	}
	return ctx, cancel, nil
}

// do sends req and returns the body of a 2xx response.
func (b *httpBackend) do(req *http.Request) ([]byte, *http.Response, error) {
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, nil, wrap(b.name, transportReason(err), fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, redactURL(err)))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, resp, wrap(b.name, transportReason(err), fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp, newError(b.name, statusReason(resp.StatusCode),
			"API returned status %d: %s", resp.StatusCode, truncate(body))
	}
	return body, resp, nil
}

// fetch downloads url into out.
func (b *httpBackend) fetch(ctx context.Context, rawURL string, header http.Header, out *artifact.Artifact) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return newError(b.name, ReasonMalformedResponse, "invalid download url: %w", redactURL(err))
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return wrap(b.name, transportReason(err), fmt.Errorf("download: %w", redactURL(err)))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		return newError(b.name, statusReason(resp.StatusCode), "download returned status %d: %s", resp.StatusCode, truncate(body))
	}
	if _, err := out.WriteFrom(io.LimitReader(resp.Body, maxResponseSize)); err != nil {
		if ctx.Err() != nil {
			return wrap(b.name, ReasonTimeout, err)
		}
		return wrap(b.name, ReasonArtifact, err)
	}
	return verifyPDF(b.name, out)
}

// store writes a decoded payload to out.
func (b *httpBackend) store(out *artifact.Artifact, data []byte) error {
	if !bytes.HasPrefix(data, pdfMagic) {
		return newError(b.name, ReasonMalformedResponse, "response payload is not a PDF")
	}
	if _, err := out.WriteFrom(bytes.NewReader(data)); err != nil {
		return wrap(b.name, ReasonArtifact, err)
	}
	return nil
}

// verifyPDF checks the header of a written artifact.
func verifyPDF(backend string, a *artifact.Artifact) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return wrap(backend, ReasonArtifact, err)
	}
	defer f.Close()

	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(f, head); err != nil || !bytes.Equal(head, pdfMagic) {
		return newError(backend, ReasonMalformedResponse, "output is not a PDF")
	}
	return nil
}

// redactURL drops the query string and userinfo from a *url.Error. Signed
// download links and credentials must not end up in error text.
func redactURL(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	u, perr := url.Parse(uerr.URL)
	if perr != nil {
		return &url.Error{Op: uerr.Op, URL: "(redacted)", Err: uerr.Err}
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return &url.Error{Op: uerr.Op, URL: u.String(), Err: uerr.Err}
}

func truncate(body []byte) string {
	s := string(body)
	if len(s) > maxErrorBodyLen {
		s = s[:maxErrorBodyLen] + "... (truncated)"
	}
	return s
}

// uploadName returns the filename sent to remote services.
func uploadName(req *CompressRequest) string {
	if req.Filename != "" {
		return req.Filename
	}
	return "document.pdf"
}

// formField is one multipart text field.
type formField struct {
	name  string
	value string
}

// multipartBody builds a multipart form holding fields and the input document.
func multipartBody(backend string, fields []formField, fileField, filename string, in *artifact.Artifact) (*bytes.Buffer, string, error) {
	f, err := in.Open()
	if err != nil {
		return nil, "", wrap(backend, ReasonArtifact, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, fld := range fields {
		if err := w.WriteField(fld.name, fld.value); err != nil {
			return nil, "", wrap(backend, ReasonArtifact, err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField, filename))
	h.Set("Content-Type", "application/pdf")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", wrap(backend, ReasonArtifact, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", wrap(backend, ReasonArtifact, err)
	}
	if err := w.Close(); err != nil {
		return nil, "", wrap(backend, ReasonArtifact, err)
	}
	return &buf, w.FormDataContentType(), nil
}
