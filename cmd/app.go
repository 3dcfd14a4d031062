package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/compresr/pdf-gateway/external"
	"github.com/compresr/pdf-gateway/internal/artifact"
	"github.com/compresr/pdf-gateway/internal/config"
	"github.com/compresr/pdf-gateway/internal/monitoring"
	"github.com/compresr/pdf-gateway/internal/orchestrator"
)

// app holds the components shared by serve and compress.
type app struct {
	cfg       *config.Config
	artifacts *artifact.Manager
	backends  *external.Registry
	orch      *orchestrator.Orchestrator
	metrics   monitoring.Metrics
	registry  *prometheus.Registry // nil when metrics are disabled
	alerts    *monitoring.AlertManager
	reqLog    *monitoring.RequestLogger
	tracker   *monitoring.Tracker
}

func newApp(cfg *config.Config, logger *monitoring.Logger) (*app, error) {
	artifacts, err := artifact.NewManager(artifact.Config{
		ScratchDir: cfg.Artifacts.ScratchDir,
		OutputDir:  cfg.Artifacts.OutputDir,
	})
	if err != nil {
		return nil, fmt.Errorf("artifact directories: %w", err)
	}

	// Per-pass timeouts come from the context, not the client.
	backends, err := external.Build(cfg.BackendConfigs(), &http.Client{})
	if err != nil {
		return nil, err
	}

	tracker, err := monitoring.NewTracker(cfg.Monitoring.TelemetryConfig())
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	a := &app{
		cfg:       cfg,
		artifacts: artifacts,
		backends:  backends,
		metrics:   monitoring.Noop{},
		alerts:    monitoring.NewAlertManager(logger.With("alerts"), cfg.Monitoring.AlertConfig()),
		reqLog:    monitoring.NewRequestLogger(logger.With("requests")),
		tracker:   tracker,
	}
	if mc := cfg.Monitoring.MetricsConfig(); mc.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.metrics = monitoring.NewProm(mc.Namespace, a.registry)
	}

	a.orch, err = orchestrator.New(orchestrator.Config{
		Backends:         backends,
		Preferred:        cfg.Compression.PreferredBackend,
		BackendTimeout:   cfg.Compression.BackendTimeout,
		MaxDocumentBytes: cfg.Compression.MaxDocumentBytes(),
	}, artifacts,
		orchestrator.WithMetrics(a.metrics),
		orchestrator.WithAlerts(a.alerts),
		orchestrator.WithRequestLogger(a.reqLog),
	)
	if err != nil {
		return nil, err
	}

	for _, s := range backends.Statuses() {
		log.Debug().Str("backend", s.Name).Bool("configured", s.Configured).Msg("backend registered")
	}
	if !backends.AnyConfigured() {
		log.Warn().Msg("no backend is configured, every compression will fail")
	}
	return a, nil
}

func (a *app) close() {
	if err := a.tracker.Close(); err != nil {
		log.Warn().Err(err).Msg("telemetry close failed")
	}
}
