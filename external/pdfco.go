package external

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/compresr/pdf-gateway/internal/preset"
)

const pdfcoBaseURL = "https://api.pdf.co"

// PDFCo compresses through PDF.co: presigned upload, synchronous compress
// job, then download of the result URL.
type PDFCo struct {
	httpBackend
}

var _ Backend = (*PDFCo)(nil)

// NewPDFCo creates a PDF.co backend.
func NewPDFCo(cfg Config, client *http.Client) *PDFCo {
	cfg = cfg.withDefaults(pdfcoBaseURL)
	return &PDFCo{httpBackend: newHTTPBackend(NamePDFCo, "PDF.co", cfg, client)}
}

// Configured reports whether an API key is set.
func (b *PDFCo) Configured() bool {
	return b.cfg.IsEnabled() && b.cfg.APIKey != ""
}

// Compress runs one pass.
func (b *PDFCo) Compress(ctx context.Context, req *CompressRequest) error {
	ctx, cancel, err := b.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	fileURL, err := b.upload(ctx, req)
	if err != nil {
		return err
	}

	payload, err := b.compressPayload(req, fileURL)
	if err != nil {
		return newError(b.name, ReasonMalformedResponse, "build request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+"/v1/pdf/compress", bytes.NewReader(payload))
	if err != nil {
		return newError(b.name, ReasonNetwork, "create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", b.cfg.APIKey)

	respBody, _, err := b.do(httpReq)
	if err != nil {
		return err
	}

	res := gjson.ParseBytes(respBody)
	if res.Get("error").Bool() {
		return newError(b.name, ReasonMalformedResponse, "API error: %s", res.Get("message").String())
	}
	resultURL := res.Get("url").String()
	if resultURL == "" {
		return newError(b.name, ReasonMalformedResponse, "response has no url: %s", truncate(respBody))
	}
	return b.fetch(ctx, resultURL, nil, req.Output)
}

// upload obtains a presigned URL, PUTs the input there and returns the
// URL PDF.co jobs read the file from.
func (b *PDFCo) upload(ctx context.Context, req *CompressRequest) (string, error) {
	q := url.Values{}
	q.Set("name", uploadName(req))
	q.Set("contenttype", "application/pdf")

	presignReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		b.cfg.BaseURL+"/v1/file/upload/get-presigned-url?"+q.Encode(), nil)
	if err != nil {
		return "", newError(b.name, ReasonNetwork, "create presign request: %w", err)
	}
	presignReq.Header.Set("x-api-key", b.cfg.APIKey)

	body, _, err := b.do(presignReq)
	if err != nil {
		return "", err
	}
	presigned := gjson.GetBytes(body, "presignedUrl").String()
	fileURL := gjson.GetBytes(body, "url").String()
	if presigned == "" || fileURL == "" {
		return "", newError(b.name, ReasonMalformedResponse, "presign response incomplete: %s", truncate(body))
	}

	f, err := req.Input.Open()
	if err != nil {
		return "", wrap(b.name, ReasonArtifact, err)
	}
	defer f.Close()
	size, err := req.Input.Size()
	if err != nil {
		return "", wrap(b.name, ReasonArtifact, err)
	}

	putReq, err := http.NewRequestWithContext(ctx, http.MethodPut, presigned, f)
	if err != nil {
		return "", newError(b.name, ReasonMalformedResponse, "invalid presigned url: %w", err)
	}
	putReq.ContentLength = size
	putReq.Header.Set("Content-Type", "application/pdf")
	if _, _, err := b.do(putReq); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}

	log.Debug().Str("backend", b.name).Int("pass", req.Pass).Msg("pdfco: uploaded input")
	return fileURL, nil
}

// compressPayload builds the /v1/pdf/compress request. profiles is a JSON
// document embedded as a string.
func (b *PDFCo) compressPayload(req *CompressRequest, fileURL string) ([]byte, error) {
	p := req.Params

	profiles, err := sjson.Set("", "CompressImages", true)
	if err != nil {
		return nil, err
	}
	for path, v := range map[string]any{
		"ImageQuality":       p.ImageQuality,
		"ImageResolution":    p.ImageDPI,
		"RemoveAnnotations":  true,
		"OptimizeFonts":      true,
		"CompressionLevel":   p.Level(),
		"ConvertToGrayscale": p.Color == preset.ColorGray,
	} {
		if profiles, err = sjson.Set(profiles, path, v); err != nil {
			return nil, err
		}
	}

	payload, err := sjson.SetBytes(nil, "url", fileURL)
	if err != nil {
		return nil, err
	}
	if payload, err = sjson.SetBytes(payload, "name", uploadName(req)); err != nil {
		return nil, err
	}
	if payload, err = sjson.SetBytes(payload, "async", false); err != nil {
		return nil, err
	}
	return sjson.SetBytes(payload, "profiles", profiles)
}
