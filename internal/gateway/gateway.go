// Package gateway serves the PDF compression API over HTTP.
//
// DESIGN: The gateway is a thin shell around the orchestrator:
//   - parse and bound the upload
//   - take a compression slot
//   - run the orchestrator and map its single error to a status code
//   - hand the result to the download store (or inline it), record usage
//
// FILES:
//   - gateway.go:    Gateway, Deps, server lifecycle
//   - router.go:     routes and the compression slot Pool
//   - handlers.go:   JSON endpoints
//   - stream.go:     websocket endpoint with progress events
//   - middleware.go: recovery, logging, rate limiting, security headers
//   - types.go:      wire types
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/compresr/pdf-gateway/external"
	"github.com/compresr/pdf-gateway/internal/artifact"
	"github.com/compresr/pdf-gateway/internal/config"
	"github.com/compresr/pdf-gateway/internal/monitoring"
	"github.com/compresr/pdf-gateway/internal/orchestrator"
	"github.com/compresr/pdf-gateway/internal/store"
	"github.com/compresr/pdf-gateway/internal/usage"
)

// Deps are the collaborators of a Gateway. Orchestrator and Store are
// required, everything else is optional.
type Deps struct {
	Orchestrator  *orchestrator.Orchestrator
	Store         store.Store
	Publisher     store.Publisher
	Usage         *usage.Recorder
	Metrics       monitoring.Metrics
	Gatherer      prometheus.Gatherer
	Alerts        *monitoring.AlertManager
	RequestLogger *monitoring.RequestLogger
	Tracker       *monitoring.Tracker
	Version       string
}

// Gateway is the HTTP front end.
type Gateway struct {
	cfg           *config.Config
	orch          *orchestrator.Orchestrator
	artifacts     *artifact.Manager
	backends      *external.Registry
	store         store.Store
	publisher     store.Publisher
	usage         *usage.Recorder
	metrics       monitoring.Metrics
	gatherer      prometheus.Gatherer
	alerts        *monitoring.AlertManager
	requestLogger *monitoring.RequestLogger
	tracker       *monitoring.Tracker
	rateLimiter   *rateLimiter
	pool          *Pool
	version       string

	handler http.Handler
	server  *http.Server
}

// New creates a gateway.
func New(cfg *config.Config, deps Deps) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if deps.Store == nil {
		return nil, errors.New("download store is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = monitoring.Noop{}
	}

	g := &Gateway{
		cfg:           cfg,
		orch:          deps.Orchestrator,
		artifacts:     deps.Orchestrator.Artifacts(),
		backends:      deps.Orchestrator.Config().Backends,
		store:         deps.Store,
		publisher:     deps.Publisher,
		usage:         deps.Usage,
		metrics:       deps.Metrics,
		gatherer:      deps.Gatherer,
		alerts:        deps.Alerts,
		requestLogger: deps.RequestLogger,
		tracker:       deps.Tracker,
		pool:          newPool(cfg.Server.MaxConcurrent),
		version:       deps.Version,
	}
	if cfg.Server.RateLimit > 0 {
		g.rateLimiter = newRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	}

	g.handler = g.panicRecovery(g.loggingMiddleware(g.rateLimit(g.security(g.routes()))))
	g.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           g.handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	return g, nil
}

// Handler returns the root handler with all middleware applied.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Start listens on the configured port and blocks until Shutdown.
func (g *Gateway) Start() error {
	log.Info().Str("addr", g.server.Addr).Msg("pdf gateway listening")
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve accepts connections on ln and blocks until Shutdown.
func (g *Gateway) Serve(ln net.Listener) error {
	if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.rateLimiter != nil {
		g.rateLimiter.close()
	}
	return g.server.Shutdown(ctx)
}
