// Package artifact owns every temporary file a compression run creates.
//
// DESIGN: Arena-style scratch namespaces:
//   - Manager:  root of the scratch and output directories, global counters
//   - Arena:    one per run, keyed by a ULID (<scratch>/<runID>/<seq>-<label>.pdf)
//   - Artifact: a single file inside an arena, or in the output dir once promoted
//
// An arena tracks every artifact it hands out. Close releases whatever is still
// outstanding, so callers `defer arena.Close()` and only Promote the result they
// keep. Promoted artifacts belong to the caller and go back through
// Manager.Discard.
//
// FILES:
//   - artifact.go: Manager, Artifact, Error, Stats
//   - arena.go:    Arena (Allocate, Ingest, Promote, Release, Close)
//   - janitor.go:  age-based sweep of orphaned namespaces and outputs
package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

// Default directory permissions for scratch and output trees.
const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// Config configures the artifact manager.
type Config struct {
	ScratchDir string `yaml:"scratch_dir"`
	OutputDir  string `yaml:"output_dir"`
}

// Error is a filesystem failure on an artifact.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("artifact %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrClosed is returned when allocating from a closed arena.
var ErrClosed = errors.New("arena closed")

// ErrForeign is returned when an artifact is handed to an arena that does not own it.
var ErrForeign = errors.New("artifact not owned by this arena")

// Artifact is a file produced or consumed by a pass.
type Artifact struct {
	RunID string
	Label string
	Path  string

	seq      int
	promoted bool
}

// Size returns the current file size in bytes.
func (a *Artifact) Size() (int64, error) {
	fi, err := os.Stat(a.Path)
	if err != nil {
		return 0, &Error{Op: "stat", Path: a.Path, Err: err}
	}
	return fi.Size(), nil
}

// ReadAll returns the file contents.
func (a *Artifact) ReadAll() ([]byte, error) {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, &Error{Op: "read", Path: a.Path, Err: err}
	}
	return data, nil
}

// Open opens the file for reading.
func (a *Artifact) Open() (*os.File, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, &Error{Op: "open", Path: a.Path, Err: err}
	}
	return f, nil
}

// WriteFrom replaces the file contents with r.
func (a *Artifact) WriteFrom(r io.Reader) (int64, error) {
	f, err := os.OpenFile(a.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return 0, &Error{Op: "write", Path: a.Path, Err: err}
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, &Error{Op: "write", Path: a.Path, Err: err}
	}
	return n, nil
}

// Promoted reports whether the artifact has left its arena.
func (a *Artifact) Promoted() bool { return a.promoted }

// Stats are lifetime counters of a Manager.
type Stats struct {
	Allocated       int64 `json:"allocated"`
	Released        int64 `json:"released"`
	Promoted        int64 `json:"promoted"`
	Discarded       int64 `json:"discarded"`
	CleanupFailures int64 `json:"cleanup_failures"`
}

// Outstanding is the number of arena artifacts neither released nor promoted.
func (s Stats) Outstanding() int64 {
	return s.Allocated - s.Released - s.Promoted
}

// Manager creates arenas and owns the output directory.
type Manager struct {
	scratchDir string
	outputDir  string

	allocated       atomic.Int64
	released        atomic.Int64
	promoted        atomic.Int64
	discarded       atomic.Int64
	cleanupFailures atomic.Int64
}

// NewManager creates the scratch and output directories if needed.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = filepath.Join(os.TempDir(), "pdf-gateway", "scratch")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(os.TempDir(), "pdf-gateway", "output")
	}
	for _, dir := range []string{cfg.ScratchDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, &Error{Op: "mkdir", Path: dir, Err: err}
		}
	}
	return &Manager{scratchDir: cfg.ScratchDir, outputDir: cfg.OutputDir}, nil
}

// ScratchDir returns the root of all run namespaces.
func (m *Manager) ScratchDir() string { return m.scratchDir }

// OutputDir returns the directory promoted artifacts live in.
func (m *Manager) OutputDir() string { return m.outputDir }

// NewRunID returns a fresh, time-ordered run identifier.
func NewRunID() string {
	return ulid.Make().String()
}

// NewArena creates the scratch namespace for one run.
func (m *Manager) NewArena(runID string) (*Arena, error) {
	if runID == "" {
		runID = NewRunID()
	}
	if _, err := ulid.ParseStrict(runID); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	dir := filepath.Join(m.scratchDir, runID)
	if err := os.Mkdir(dir, dirPerm); err != nil {
		return nil, &Error{Op: "mkdir", Path: dir, Err: err}
	}
	return &Arena{
		m:     m,
		runID: runID,
		dir:   dir,
		live:  make(map[*Artifact]struct{}),
	}, nil
}

// Discard deletes a promoted artifact. Missing files are not an error.
func (m *Manager) Discard(a *Artifact) error {
	if a == nil {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.cleanupFailures.Add(1)
		return &Error{Op: "discard", Path: a.Path, Err: err}
	}
	m.discarded.Add(1)
	return nil
}

// Stats returns a snapshot of the lifetime counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Allocated:       m.allocated.Load(),
		Released:        m.released.Load(),
		Promoted:        m.promoted.Load(),
		Discarded:       m.discarded.Load(),
		CleanupFailures: m.cleanupFailures.Load(),
	}
}

// remove deletes a scratch file and records the outcome.
func (m *Manager) remove(a *Artifact) error {
	m.released.Add(1)
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.cleanupFailures.Add(1)
		log.Warn().Err(err).Str("path", a.Path).Msg("artifact cleanup failed")
		return &Error{Op: "release", Path: a.Path, Err: err}
	}
	return nil
}
