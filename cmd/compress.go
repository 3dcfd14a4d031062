package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/compresr/pdf-gateway/internal/orchestrator"
	"github.com/compresr/pdf-gateway/internal/preset"
)

type compressOptions struct {
	target  string
	custom  int
	backend string
	output  string
	quiet   bool
}

func newCompressCmd() *cobra.Command {
	var opts compressOptions
	cmd := &cobra.Command{
		Use:   "compress <file.pdf>",
		Short: "Compress one PDF from the command line",
		Long: `Compress one PDF with the same fallback chain the gateway uses.

Examples:
  # Fit a scan under 150KB
  pdf-gateway compress scan.pdf

  # Custom target, Ghostscript first
  pdf-gateway compress report.pdf --target custom --size 250 --backend ghostscript`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompress(cmd.Context(), args[0], opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.target, "target", "t", string(preset.Class150), "target class: 100, 150, 180, 400 or custom")
	cmd.Flags().IntVarP(&opts.custom, "size", "s", 0, "custom target size in KB (implies --target custom)")
	cmd.Flags().StringVarP(&opts.backend, "backend", "b", "", "backend to try first")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output path (default <name>_compressed.pdf)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "only print the output path")
	return cmd
}

func runCompress(ctx context.Context, input string, opts compressOptions, out io.Writer) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	doc, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	target, custom := opts.target, ""
	if opts.custom > 0 {
		target, custom = string(preset.ClassCustom), strconv.Itoa(opts.custom)
	}
	class, kb, err := preset.ParseTarget(target, custom)
	if err != nil {
		return err
	}

	req := orchestrator.Request{
		Document: doc,
		Filename: filepath.Base(input),
		Class:    class,
		TargetKB: kb,
		Backend:  opts.backend,
	}
	if !opts.quiet {
		req.Progress = func(e orchestrator.Event) { printEvent(out, e) }
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := a.orch.Compress(ctx, req)
	if err != nil {
		var exhausted *orchestrator.ExhaustionError
		if errors.As(err, &exhausted) {
			for _, f := range exhausted.Failures {
				fmt.Fprintf(out, "  %s: %s (%s)\n", f.Backend, f.Reason, f.Message)
			}
		}
		return err
	}
	defer func() { _ = a.artifacts.Discard(res.Artifact) }()

	dest := opts.output
	if dest == "" {
		dest = strings.TrimSuffix(input, filepath.Ext(input)) + "_compressed.pdf"
	}
	data, err := res.Artifact.ReadAll()
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return err
	}

	if opts.quiet {
		fmt.Fprintln(out, dest)
		return nil
	}
	fmt.Fprintf(out, "%s: %d → %d bytes (%.2f%%) via %s, %d passes\n",
		dest, res.OriginalSize, res.CompressedSize, res.RatioPercent, res.BackendUsed, res.PassesUsed)
	if !res.Converged {
		fmt.Fprintf(out, "warning: target of %dKB not reached, best result kept\n", res.TargetKB)
	}
	return nil
}

func printEvent(out io.Writer, e orchestrator.Event) {
	switch e.Kind {
	case orchestrator.EventBackend:
		fmt.Fprintf(out, "→ %s\n", e.Backend)
	case orchestrator.EventPass:
		fmt.Fprintf(out, "  pass %d/%d: %d bytes (target %d)\n", e.Pass, e.MaxPasses, e.SizeBytes, e.TargetBytes)
	case orchestrator.EventBackendFailed:
		fmt.Fprintf(out, "  %s failed: %s\n", e.Backend, e.Reason)
	}
}
