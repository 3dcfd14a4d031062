// Stream endpoint - one compression per websocket connection.
//
// DESIGN: Protocol (JSON text frames):
//
//	client → {"filename": "...", "target_size": "150", "file_data": "<base64>", ...}
//	server → {"type": "progress", "event": {...}}   zero or more
//	server → {"type": "result", "data": {...}}      or
//	server → {"type": "error", "error": "...", "details": {...}}
//	server closes with StatusNormalClosure
//
// After the request frame the connection is only watched for close, and a
// client disconnect cancels the run between passes.
package gateway

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"

	"github.com/compresr/pdf-gateway/internal/orchestrator"
)

// streamWriteTimeout bounds a single frame write.
const streamWriteTimeout = 10 * time.Second

// StreamRequest is the first and only client frame.
type StreamRequest struct {
	Filename   string `json:"filename"`
	TargetSize string `json:"target_size"`
	CustomSize int    `json:"custom_size,omitempty"`
	Backend    string `json:"backend,omitempty"`
	Inline     bool   `json:"inline,omitempty"`
	FileData   string `json:"file_data"`
}

// StreamMessage is a server frame.
type StreamMessage struct {
	Type    string              `json:"type"`
	Event   *orchestrator.Event `json:"event,omitempty"`
	Data    *CompressResponse   `json:"data,omitempty"`
	Error   string              `json:"error,omitempty"`
	Details any                 `json:"details,omitempty"`
}

// Stream frame types.
const (
	StreamProgress = "progress"
	StreamResult   = "result"
	StreamError    = "error"
)

// handleStream upgrades the connection and runs one compression with
// progress events.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.originPatterns(),
	})
	if err != nil {
		log.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer c.CloseNow()

	// base64 inflates by 4/3, plus room for the other fields
	c.SetReadLimit(g.cfg.Compression.MaxDocumentBytes()*4/3 + 64<<10)

	ctx := r.Context()
	var req StreamRequest
	if err := wsjson.Read(ctx, c, &req); err != nil {
		log.Debug().Err(err).Msg("websocket read failed")
		c.Close(websocket.StatusPolicyViolation, "expected a compression request")
		return
	}
	ctx = c.CloseRead(ctx)

	send := func(msg StreamMessage) {
		wctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
		defer cancel()
		if err := wsjson.Write(wctx, c, msg); err != nil {
			log.Debug().Err(err).Str("type", msg.Type).Msg("websocket write failed")
		}
	}

	resp, err := g.streamCompress(ctx, r, &req, func(e orchestrator.Event) {
		send(StreamMessage{Type: StreamProgress, Event: &e})
	})
	if err != nil {
		herr := classify(err)
		send(StreamMessage{Type: StreamError, Error: herr.msg, Details: herr.details})
		c.Close(websocket.StatusNormalClosure, "")
		return
	}

	send(StreamMessage{Type: StreamResult, Data: resp})
	c.Close(websocket.StatusNormalClosure, "")
}

func (g *Gateway) streamCompress(ctx context.Context, r *http.Request, req *StreamRequest, progress func(orchestrator.Event)) (*CompressResponse, error) {
	doc, err := base64.StdEncoding.DecodeString(req.FileData)
	if err != nil {
		return nil, &httpError{http.StatusBadRequest, errUnsupportedDoc, "file_data is not valid base64"}
	}

	custom := ""
	if req.CustomSize > 0 {
		custom = strconv.Itoa(req.CustomSize)
	}
	class, kb, err := parseTarget(req.TargetSize, custom)
	if err != nil {
		return nil, err
	}

	filename := ""
	if req.Filename != "" {
		filename = filepath.Base(req.Filename)
	}

	return g.runCompression(ctx, &compressJob{
		req: orchestrator.Request{
			Document: doc,
			Filename: filename,
			Class:    class,
			TargetKB: kb,
			Backend:  strings.TrimSpace(req.Backend),
			Progress: progress,
		},
		inline:   req.Inline,
		clientIP: g.getClientIP(r),
	})
}

// originPatterns converts the CORS allow list to websocket host patterns.
func (g *Gateway) originPatterns() []string {
	patterns := []string{"localhost:*", "127.0.0.1:*"}
	for _, origin := range g.cfg.Server.AllowedOrigins {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		}
	}
	return patterns
}
