package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/compresr/pdf-gateway/internal/gateway"
	"github.com/compresr/pdf-gateway/internal/store"
	"github.com/compresr/pdf-gateway/internal/usage"
)

const (
	shutdownTimeout    = 30 * time.Second
	usagePruneInterval = time.Hour
)

var noBanner bool

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the HTTP gateway",
		Long: `Start the HTTP gateway.

Besides the API, serve runs the artifact janitor and, when usage
statistics are enabled, prunes records past their retention.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&noBanner, "no-banner", false, "suppress startup banner")
	return cmd
}

func runServe(ctx context.Context) error {
	if !noBanner {
		printBanner()
	}

	cfg, source, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg)

	log.Info().
		Str("version", Version).
		Str("config", source).
		Msg("PDF Gateway starting")

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	// Leftovers of a previous process.
	if res, err := a.artifacts.Sweep(cfg.Artifacts.MaxAge); err != nil {
		log.Warn().Err(err).Msg("startup sweep incomplete")
	} else if res.Namespaces+res.Outputs > 0 {
		log.Info().Int("namespaces", res.Namespaces).Int("outputs", res.Outputs).Msg("startup sweep removed stale artifacts")
	}

	downloads := store.NewMemoryStore(cfg.Downloads.TTL, a.artifacts.Discard)
	defer downloads.Close()

	deps := gateway.Deps{
		Orchestrator:  a.orch,
		Store:         downloads,
		Metrics:       a.metrics,
		Alerts:        a.alerts,
		RequestLogger: a.reqLog,
		Tracker:       a.tracker,
		Version:       Version,
	}
	if a.registry != nil {
		deps.Gatherer = a.registry
	}
	if cfg.Downloads.S3.Enabled {
		publisher, err := store.NewS3Publisher(ctx, cfg.Downloads.S3)
		if err != nil {
			return err
		}
		deps.Publisher = publisher
		log.Info().Str("bucket", cfg.Downloads.S3.Bucket).Msg("publishing results to S3")
	}

	var recorder *usage.Recorder
	if cfg.Usage.Enabled {
		recorder, err = usage.Open(cfg.Usage.Path, cfg.Usage.Retention)
		if err != nil {
			return err
		}
		defer recorder.Close()
		deps.Usage = recorder
	}

	gw, err := gateway.New(cfg, deps)
	if err != nil {
		return err
	}

	log.Info().
		Int("port", cfg.Server.Port).
		Strs("backends", a.backends.Names()).
		Str("preferred", cfg.Compression.PreferredBackend).
		Bool("usage", recorder != nil).
		Bool("metrics", a.registry != nil).
		Msg("configuration loaded")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(gw.Start)
	g.Go(func() error {
		return a.artifacts.RunJanitor(gctx, cfg.Artifacts.JanitorInterval, cfg.Artifacts.MaxAge)
	})
	if recorder != nil {
		g.Go(func() error {
			return recorder.RunPruner(gctx, usagePruneInterval)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown signal received")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return gw.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("gateway error")
		return err
	}
	log.Info().Msg("PDF Gateway stopped")
	return nil
}
