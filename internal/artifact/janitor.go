package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
)

// DefaultMaxAge is how long scratch namespaces and outputs may live on disk.
const DefaultMaxAge = 24 * time.Hour

// SweepResult summarizes one janitor pass.
type SweepResult struct {
	Namespaces int `json:"namespaces"`
	Outputs    int `json:"outputs"`
}

// Sweep deletes run namespaces and promoted outputs older than maxAge. Live
// arenas are young by construction, so only crashed or abandoned runs match.
func (m *Manager) Sweep(maxAge time.Duration) (SweepResult, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	cutoff := time.Now().Add(-maxAge)

	var res SweepResult
	var result *multierror.Error

	n, err := sweepDir(m.scratchDir, cutoff, true)
	res.Namespaces = n
	if err != nil {
		result = multierror.Append(result, err)
	}

	n, err = sweepDir(m.outputDir, cutoff, false)
	res.Outputs = n
	if err != nil {
		result = multierror.Append(result, err)
	}

	if res.Namespaces > 0 || res.Outputs > 0 {
		log.Info().
			Int("namespaces", res.Namespaces).
			Int("outputs", res.Outputs).
			Dur("max_age", maxAge).
			Msg("janitor: swept stale artifacts")
	}
	return res, result.ErrorOrNil()
}

func sweepDir(root string, cutoff time.Time, dirs bool) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, &Error{Op: "sweep", Path: root, Err: err}
	}

	var result *multierror.Error
	removed := 0
	for _, e := range entries {
		if e.IsDir() != dirs {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			result = multierror.Append(result, &Error{Op: "sweep", Path: path, Err: err})
			continue
		}
		removed++
	}
	return removed, result.ErrorOrNil()
}

// RunJanitor sweeps every interval until ctx is cancelled.
func (m *Manager) RunJanitor(ctx context.Context, interval, maxAge time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.Sweep(maxAge); err != nil {
				log.Warn().Err(err).Msg("janitor: sweep incomplete")
			}
		}
	}
}
