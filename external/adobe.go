package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	adobeBaseURL  = "https://pdf-services.adobe.io"
	adobeTokenURL = "https://ims-na1.adobelogin.com/ims/token/v3"

	// tokenTimeout bounds a token fetch independently of the pass.
	tokenTimeout = 30 * time.Second
)

// adobeScopes is one comma-joined scope string, the form the IMS endpoint expects.
var adobeScopes = []string{"openid,AdobeID,read_organizations"}

// Adobe compresses through Adobe PDF Services:
//
//	token (client credentials) → POST /assets → POST /operation/compresspdf
//	→ poll job (when the job is asynchronous) → GET /assets/{id}
type Adobe struct {
	httpBackend
	tokens oauth2.TokenSource
}

var _ Backend = (*Adobe)(nil)

// NewAdobe creates an Adobe PDF Services backend. Tokens are cached and
// refreshed by the token source, so concurrent requests share one token.
func NewAdobe(cfg Config, client *http.Client) *Adobe {
	cfg = cfg.withDefaults(adobeBaseURL)
	if cfg.TokenURL == "" {
		cfg.TokenURL = adobeTokenURL
	}
	b := &Adobe{httpBackend: newHTTPBackend(NameAdobe, "Adobe PDF Services", cfg, client)}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       adobeScopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tokenClient := &http.Client{Timeout: tokenTimeout, Transport: b.client.Transport}
	b.tokens = cc.TokenSource(context.WithValue(context.Background(), oauth2.HTTPClient, tokenClient))
	return b
}

// Configured reports whether the full credential triple is set.
func (b *Adobe) Configured() bool {
	return b.cfg.IsEnabled() && b.cfg.ClientID != "" && b.cfg.ClientSecret != "" && b.cfg.OrganizationID != ""
}

// Compress runs one pass.
func (b *Adobe) Compress(ctx context.Context, req *CompressRequest) error {
	ctx, cancel, err := b.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	tok, err := b.tokens.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return newError(b.name, ReasonAuth, "token: %w", err)
		}
		return wrap(b.name, transportReason(err), fmt.Errorf("token: %w", err))
	}
	auth := http.Header{}
	auth.Set("Authorization", "Bearer "+tok.AccessToken)
	auth.Set("X-API-Key", b.cfg.ClientID)

	assetID, err := b.uploadAsset(ctx, req, auth)
	if err != nil {
		return err
	}
	log.Debug().Str("backend", b.name).Str("asset_id", assetID).Msg("adobe: uploaded input")

	resultID, err := b.runCompress(ctx, req, assetID, auth)
	if err != nil {
		return err
	}
	return b.download(ctx, resultID, auth, req)
}

func (b *Adobe) uploadAsset(ctx context.Context, req *CompressRequest, auth http.Header) (string, error) {
	body, contentType, err := multipartBody(b.name, nil, "contentAnalyzerRequests", uploadName(req), req.Input)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+"/assets", body)
	if err != nil {
		return "", newError(b.name, ReasonNetwork, "create request: %w", err)
	}
	copyHeader(httpReq.Header, auth)
	httpReq.Header.Set("Content-Type", contentType)

	respBody, _, err := b.do(httpReq)
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(respBody, "assetID").String()
	if id == "" {
		return "", newError(b.name, ReasonMalformedResponse, "upload response has no assetID: %s", truncate(respBody))
	}
	return id, nil
}

// runCompress starts the compresspdf operation. A synchronous response
// carries the result asset; an asynchronous one points at a status URL.
func (b *Adobe) runCompress(ctx context.Context, req *CompressRequest, assetID string, auth http.Header) (string, error) {
	payload, err := sjson.SetBytes(nil, "assetID", assetID)
	if err == nil {
		payload, err = sjson.SetBytes(payload, "compressionLevel", req.Params.AdobeLevel())
	}
	if err != nil {
		return "", newError(b.name, ReasonMalformedResponse, "build request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+"/operation/compresspdf", bytes.NewReader(payload))
	if err != nil {
		return "", newError(b.name, ReasonNetwork, "create request: %w", err)
	}
	copyHeader(httpReq.Header, auth)
	httpReq.Header.Set("Content-Type", "application/json")

	respBody, resp, err := b.do(httpReq)
	if err != nil {
		return "", err
	}
	if id := gjson.GetBytes(respBody, "asset.assetID").String(); id != "" {
		return id, nil
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", newError(b.name, ReasonMalformedResponse, "compress response has neither asset nor Location")
	}
	return b.poll(ctx, location, auth)
}

// poll waits for an asynchronous job to finish.
func (b *Adobe) poll(ctx context.Context, location string, auth http.Header) (string, error) {
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return "", newError(b.name, ReasonMalformedResponse, "invalid status url: %w", err)
		}
		copyHeader(httpReq.Header, auth)

		body, _, err := b.do(httpReq)
		if err != nil {
			return "", err
		}
		status := gjson.GetBytes(body, "status").String()
		switch strings.ToLower(status) {
		case "done":
			id := gjson.GetBytes(body, "asset.assetID").String()
			if id == "" {
				return "", newError(b.name, ReasonMalformedResponse, "finished job has no asset")
			}
			return id, nil
		case "failed":
			msg := gjson.GetBytes(body, "error.message").String()
			return "", newError(b.name, ReasonUnsupported, "job failed: %s", msg)
		case "in progress", "":
		default:
			return "", newError(b.name, ReasonMalformedResponse, "unknown job status %q", status)
		}

		select {
		case <-ctx.Done():
			return "", newError(b.name, ReasonTimeout, "job still running: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// download fetches the result asset. The asset endpoint answers either with
// a JSON body holding a downloadUri or with the document itself.
func (b *Adobe) download(ctx context.Context, assetID string, auth http.Header, req *CompressRequest) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.BaseURL+"/assets/"+assetID, nil)
	if err != nil {
		return newError(b.name, ReasonNetwork, "create request: %w", err)
	}
	copyHeader(httpReq.Header, auth)

	body, resp, err := b.do(httpReq)
	if err != nil {
		return err
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		uri := gjson.GetBytes(body, "downloadUri").String()
		if uri == "" {
			return newError(b.name, ReasonMalformedResponse, "asset response has no downloadUri")
		}
		return b.fetch(ctx, uri, nil, req.Output)
	}
	return b.store(req.Output, body)
}

func copyHeader(dst, src http.Header) {
	for k, v := range src {
		dst[k] = v
	}
}
