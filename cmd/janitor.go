package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/compresr/pdf-gateway/internal/artifact"
	"github.com/compresr/pdf-gateway/internal/usage"
)

func newJanitorCmd() *cobra.Command {
	var maxAge time.Duration
	cmd := &cobra.Command{
		Use:   "janitor",
		Short: "Remove stale artifacts and expired usage records once",
		Long: `Remove run namespaces and results older than --max-age (default
artifacts.max_age), then prune usage records past their retention.

Useful from cron when the gateway itself is not running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJanitor(cmd.Context(), maxAge, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "override artifacts.max_age")
	return cmd
}

func runJanitor(ctx context.Context, maxAge time.Duration, out io.Writer) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	if maxAge <= 0 {
		maxAge = cfg.Artifacts.MaxAge
	}
	mgr, err := artifact.NewManager(artifact.Config{
		ScratchDir: cfg.Artifacts.ScratchDir,
		OutputDir:  cfg.Artifacts.OutputDir,
	})
	if err != nil {
		return err
	}
	res, err := mgr.Sweep(maxAge)
	fmt.Fprintf(out, "removed %d namespaces and %d outputs older than %s\n", res.Namespaces, res.Outputs, maxAge)
	if err != nil {
		return err
	}

	if !cfg.Usage.Enabled {
		return nil
	}
	rec, err := usage.Open(cfg.Usage.Path, cfg.Usage.Retention)
	if err != nil {
		return err
	}
	defer rec.Close()
	n, err := rec.Prune(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "pruned %d usage records\n", n)
	return nil
}
