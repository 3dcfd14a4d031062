package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/pdf-gateway/internal/preset"
)

const defaultGhostscriptBinary = "gs"

// Ghostscript compresses locally with the `gs` pdfwrite device.
type Ghostscript struct {
	cfg Config

	lookOnce sync.Once
	path     string
	lookErr  error

	slots chan struct{}
}

var _ Backend = (*Ghostscript)(nil)

// NewGhostscript creates a Ghostscript backend. Burst caps concurrent gs
// processes.
func NewGhostscript(cfg Config) *Ghostscript {
	cfg = cfg.withDefaults("")
	if cfg.Binary == "" {
		cfg.Binary = defaultGhostscriptBinary
	}
	return &Ghostscript{cfg: cfg, slots: make(chan struct{}, max(cfg.Burst, 1))}
}

// Name returns the backend id.
func (b *Ghostscript) Name() string { return NameGhostscript }

// DisplayName returns the human-readable label.
func (b *Ghostscript) DisplayName() string { return "Ghostscript" }

// Configured reports whether the gs binary can be found.
func (b *Ghostscript) Configured() bool {
	if !b.cfg.IsEnabled() {
		return false
	}
	_, err := b.binary()
	return err == nil
}

func (b *Ghostscript) binary() (string, error) {
	b.lookOnce.Do(func() {
		b.path, b.lookErr = exec.LookPath(b.cfg.Binary)
	})
	return b.path, b.lookErr
}

// Compress runs one gs process.
func (b *Ghostscript) Compress(ctx context.Context, req *CompressRequest) error {
	bin, err := b.binary()
	if err != nil {
		return newError(NameGhostscript, ReasonUnsupported, "binary %q not found: %w", b.cfg.Binary, err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	select {
	case b.slots <- struct{}{}:
		defer func() { <-b.slots }()
	case <-ctx.Done():
		return newError(NameGhostscript, ReasonTimeout, "waiting for a process slot: %w", ctx.Err())
	}

	args := GhostscriptArgs(req.Params, req.Input.Path, req.Output.Path)
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return newError(NameGhostscript, ReasonTimeout, "gs killed after %s: %w", time.Since(start).Round(time.Millisecond), ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return newError(NameGhostscript, ReasonUnsupported, "gs exited with %d: %s", exitErr.ExitCode(), truncate(stderr.Bytes()))
		}
		return newError(NameGhostscript, ReasonArtifact, "run gs: %w", err)
	}

	log.Debug().
		Int("pass", req.Pass).
		Str("params", req.Params.String()).
		Dur("duration", time.Since(start)).
		Msg("ghostscript: pass finished")

	return verifyPDF(NameGhostscript, req.Output)
}

// GhostscriptArgs builds the gs command line for one pass.
func GhostscriptArgs(p preset.Params, input, output string) []string {
	dpi := strconv.Itoa(p.ImageDPI)
	args := []string{
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.4",
		fmt.Sprintf("-dPDFSETTINGS=/%s", p.QualityPreset),
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		"-dDownsampleColorImages=true",
		"-dDownsampleGrayImages=true",
		"-dDownsampleMonoImages=true",
		"-dColorImageResolution=" + dpi,
		"-dGrayImageResolution=" + dpi,
		"-dMonoImageResolution=" + dpi,
		"-dColorImageDownsampleType=/Bicubic",
		"-dGrayImageDownsampleType=/Bicubic",
		"-dMonoImageDownsampleType=/Bicubic",
		"-dJPEGQ=" + strconv.Itoa(p.ImageQuality),
	}
	if p.Aggressive {
		args = append(args,
			"-dDetectDuplicateImages=true",
			"-dCompressFonts=true",
			"-dSubsetFonts=true",
		)
	}
	if p.Color == preset.ColorGray {
		args = append(args,
			"-sColorConversionStrategy=Gray",
			"-dProcessColorModel=/DeviceGray",
		)
	}
	return append(args, "-sOutputFile="+output, input)
}
