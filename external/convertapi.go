package external

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const convertAPIBaseURL = "https://v2.convertapi.com"

// ConvertAPI compresses through ConvertAPI's pdf→compress converter.
// One multipart POST per pass; the result comes back inline as base64 or,
// on some plans, as a URL to fetch.
type ConvertAPI struct {
	httpBackend
}

var _ Backend = (*ConvertAPI)(nil)

// NewConvertAPI creates a ConvertAPI backend.
func NewConvertAPI(cfg Config, client *http.Client) *ConvertAPI {
	cfg = cfg.withDefaults(convertAPIBaseURL)
	return &ConvertAPI{httpBackend: newHTTPBackend(NameConvertAPI, "ConvertAPI", cfg, client)}
}

// Configured reports whether an API secret is set.
func (b *ConvertAPI) Configured() bool {
	return b.cfg.IsEnabled() && b.cfg.APIKey != ""
}

// Compress runs one pass.
func (b *ConvertAPI) Compress(ctx context.Context, req *CompressRequest) error {
	ctx, cancel, err := b.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	p := req.Params
	fields := []formField{
		{"Preset", p.ConvertAPIPreset()},
		{"ImageQuality", strconv.Itoa(p.ImageQuality)},
		{"ImageResolution", strconv.Itoa(p.ImageDPI)},
		{"RemoveForms", "true"},
		{"RemoveMetadata", "true"},
		{"RemoveAnnotations", "true"},
		{"OptimizeFonts", "true"},
		{"CompressImages", "true"},
	}
	if p.Extreme {
		fields = append(fields, formField{"ColorSpace", "gray"})
	}

	body, contentType, err := multipartBody(b.name, fields, "File", uploadName(req), req.Input)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+"/convert/pdf/to/compress", body)
	if err != nil {
		return newError(b.name, ReasonNetwork, "create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)

	log.Debug().
		Str("backend", b.name).
		Int("pass", req.Pass).
		Str("preset", p.ConvertAPIPreset()).
		Int("quality", p.ImageQuality).
		Int("dpi", p.ImageDPI).
		Msg("convertapi: submitting pass")

	respBody, _, err := b.do(httpReq)
	if err != nil {
		return err
	}

	file := gjson.GetBytes(respBody, "Files.0")
	if !file.Exists() {
		return newError(b.name, ReasonMalformedResponse, "response has no Files entry: %s", truncate(respBody))
	}
	if data := file.Get("FileData"); data.Exists() {
		decoded, err := base64.StdEncoding.DecodeString(data.String())
		if err != nil {
			return newError(b.name, ReasonMalformedResponse, "decode FileData: %w", err)
		}
		return b.store(req.Output, decoded)
	}
	if u := file.Get("Url"); u.Exists() {
		return b.fetch(ctx, u.String(), nil, req.Output)
	}
	return newError(b.name, ReasonMalformedResponse, "response has neither FileData nor Url")
}
