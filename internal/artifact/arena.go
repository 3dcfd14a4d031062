package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/hashicorp/go-multierror"
)

var unsafeLabel = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Arena is the scratch namespace of one compression run.
type Arena struct {
	m     *Manager
	runID string
	dir   string

	mu     sync.Mutex
	seq    int
	live   map[*Artifact]struct{}
	closed bool
}

// RunID returns the namespace key.
func (a *Arena) RunID() string { return a.runID }

// Dir returns the namespace directory.
func (a *Arena) Dir() string { return a.dir }

// Live returns the number of outstanding artifacts.
func (a *Arena) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// Allocate reserves an empty file for a pass output.
func (a *Arena) Allocate(label string) (*Artifact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrClosed
	}
	a.seq++
	label = unsafeLabel.ReplaceAllString(label, "_")
	path := filepath.Join(a.dir, fmt.Sprintf("%03d-%s.pdf", a.seq, label))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		return nil, &Error{Op: "allocate", Path: path, Err: err}
	}
	_ = f.Close()

	art := &Artifact{RunID: a.runID, Label: label, Path: path, seq: a.seq}
	a.live[art] = struct{}{}
	a.m.allocated.Add(1)
	return art, nil
}

// Ingest allocates an artifact and fills it with data.
func (a *Arena) Ingest(label string, data []byte) (*Artifact, error) {
	art, err := a.Allocate(label)
	if err != nil {
		return nil, err
	}
	if _, err := art.WriteFrom(bytes.NewReader(data)); err != nil {
		_ = a.Release(art)
		return nil, err
	}
	return art, nil
}

// Release deletes an artifact owned by this arena. Releasing nil or an
// artifact that was already released is a no-op.
func (a *Arena) Release(art *Artifact) error {
	if art == nil {
		return nil
	}
	a.mu.Lock()
	if _, ok := a.live[art]; !ok {
		a.mu.Unlock()
		return nil
	}
	delete(a.live, art)
	a.mu.Unlock()

	return a.m.remove(art)
}

// Promote moves an artifact to the output directory and hands ownership to
// the caller. The returned artifact is the same value with an updated path.
func (a *Arena) Promote(art *Artifact) (*Artifact, error) {
	if art == nil {
		return nil, errors.New("promote nil artifact")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.live[art]; !ok {
		return nil, ErrForeign
	}
	dst := filepath.Join(a.m.outputDir, fmt.Sprintf("%s-%s.pdf", a.runID, art.Label))
	if err := os.Rename(art.Path, dst); err != nil {
		return nil, &Error{Op: "promote", Path: art.Path, Err: err}
	}
	delete(a.live, art)
	art.Path = dst
	art.promoted = true
	a.m.promoted.Add(1)
	return art, nil
}

// Close releases every outstanding artifact and removes the namespace
// directory. Safe to call more than once.
func (a *Arena) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	pending := make([]*Artifact, 0, len(a.live))
	for art := range a.live {
		pending = append(pending, art)
	}
	a.live = make(map[*Artifact]struct{})
	a.mu.Unlock()

	var result *multierror.Error
	for _, art := range pending {
		if err := a.m.remove(art); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := os.RemoveAll(a.dir); err != nil {
		a.m.cleanupFailures.Add(1)
		result = multierror.Append(result, &Error{Op: "close", Path: a.dir, Err: err})
	}
	return result.ErrorOrNil()
}
