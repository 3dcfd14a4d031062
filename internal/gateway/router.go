// Router wires the HTTP routes and bounds concurrent compressions.
//
// DESIGN: Routes (Go 1.22 method patterns):
//
//	GET  /health                    backend status
//	POST /v1/compress               full orchestration, JSON result
//	GET  /v1/compress/stream        websocket: upload, progress events, result
//	GET  /v1/download/{token}       compressed file
//	GET  /v1/stats                  counters and usage summary
//	GET  /metrics                   Prometheus
//	POST /compress                  single Ghostscript pass (remote backend API)
//
// Compressions hold a slot from a fixed-size Pool for their whole run, so
// max_concurrent bounds CPU, disk and backend load together.
package gateway

import (
	"context"
	"net/http"

	"github.com/compresr/pdf-gateway/internal/monitoring"
)

// Pool hands out a fixed number of compression slots.
type Pool struct {
	slots chan struct{}
	size  int
}

func newPool(size int) *Pool {
	if size <= 0 {
		return nil
	}
	p := &Pool{slots: make(chan struct{}, size), size: size}
	for i := 0; i < size; i++ {
		p.slots <- struct{}{}
	}
	return p
}

// acquire waits for a free slot. A nil Pool never blocks.
func (p *Pool) acquire(ctx context.Context) error {
	if p == nil {
		return nil
	}
	select {
	case <-p.slots:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) release() {
	if p == nil {
		return
	}
	p.slots <- struct{}{}
}

// InUse returns the number of slots currently held.
func (p *Pool) InUse() int {
	if p == nil {
		return 0
	}
	return p.size - len(p.slots)
}

// routes builds the mux.
func (g *Gateway) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("POST /v1/compress", g.handleCompress)
	mux.HandleFunc("GET /v1/compress/stream", g.handleStream)
	mux.HandleFunc("GET /v1/download/{token}", g.handleDownload)
	mux.HandleFunc("GET /v1/stats", g.handleStats)
	mux.HandleFunc("POST /compress", g.handleSinglePass)
	if g.gatherer != nil {
		mux.Handle("GET /metrics", monitoring.Handler(g.gatherer))
	}
	return mux
}
