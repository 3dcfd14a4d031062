package external

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/tidwall/gjson"
)

// Remote delegates a pass to another pdf-gateway instance through its
// single-pass POST /compress endpoint.
type Remote struct {
	httpBackend
}

var _ Backend = (*Remote)(nil)

// NewRemote creates a remote gateway backend.
func NewRemote(cfg Config, client *http.Client) *Remote {
	cfg = cfg.withDefaults("")
	return &Remote{httpBackend: newHTTPBackend(NameRemote, "Remote Gateway", cfg, client)}
}

// Configured reports whether a base URL is set.
func (b *Remote) Configured() bool {
	return b.cfg.IsEnabled() && b.cfg.BaseURL != ""
}

// Compress runs one pass on the remote gateway.
func (b *Remote) Compress(ctx context.Context, req *CompressRequest) error {
	ctx, cancel, err := b.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	p := req.Params
	fields := []formField{
		{"targetSize", strconv.Itoa(req.TargetKB)},
		{"dpi", strconv.Itoa(p.ImageDPI)},
		{"imageQuality", strconv.Itoa(p.ImageQuality)},
		{"quality", string(p.QualityPreset)},
		{"color", string(p.Color)},
	}
	body, contentType, err := multipartBody(b.name, fields, "pdf", uploadName(req), req.Input)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+"/compress", body)
	if err != nil {
		return newError(b.name, ReasonNetwork, "create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	if b.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}

	respBody, _, err := b.do(httpReq)
	if err != nil {
		return err
	}

	res := gjson.ParseBytes(respBody)
	if !res.Get("success").Bool() {
		return newError(b.name, ReasonMalformedResponse, "remote error: %s", res.Get("error").String())
	}
	data := res.Get("data.file_data")
	if !data.Exists() {
		return newError(b.name, ReasonMalformedResponse, "response has no file_data")
	}
	decoded, err := base64.StdEncoding.DecodeString(data.String())
	if err != nil {
		return newError(b.name, ReasonMalformedResponse, "decode file_data: %w", err)
	}
	return b.store(req.Output, decoded)
}
