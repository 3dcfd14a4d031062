// Package store keeps compressed results reachable after a request ends.
//
// DESIGN: A compression result is a promoted artifact on disk. The store
// hands out an opaque download token per result and owns the file from then
// on: when a token expires, is deleted, or the store closes, the artifact is
// discarded through the callback given at construction.
//
// Currently only MemoryStore is implemented. For multi-instance deployments,
// publish results to S3 (s3.go) and hand out presigned URLs instead.
//
// FILES:
//   - store.go: Download record, Store interface, ttlcache-backed MemoryStore
//   - s3.go:    S3 publisher with presigned GET URLs
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"

	"github.com/compresr/pdf-gateway/internal/artifact"
)

// DefaultTTL is how long a download token stays valid.
const DefaultTTL = time.Hour

// ErrClosed is returned by Put after Close.
var ErrClosed = errors.New("store closed")

// Download is one result available for download.
type Download struct {
	Token     string             `json:"token"`
	RunID     string             `json:"run_id"`
	Filename  string             `json:"filename"`
	SizeBytes int64              `json:"size_bytes"`
	RemoteURL string             `json:"remote_url,omitempty"` // presigned URL when published to S3
	CreatedAt time.Time          `json:"created_at"`
	ExpiresAt time.Time          `json:"expires_at"`
	Artifact  *artifact.Artifact `json:"-"`
}

// Store defines the interface for download handle storage.
type Store interface {
	// Put takes ownership of d.Artifact and returns d with Token and
	// expiry filled in.
	Put(d *Download) (*Download, error)

	// Get retrieves a live download by token.
	Get(token string) (*Download, bool)

	// Delete removes a download and discards its artifact.
	Delete(token string) error

	// Len returns the number of live downloads.
	Len() int

	// Close discards every artifact and stops expiry.
	Close() error
}

// MemoryStore is an in-memory Store with per-entry expiry.
type MemoryStore struct {
	cache   *ttlcache.Cache[string, *Download]
	ttl     time.Duration
	discard func(*artifact.Artifact) error

	mu      sync.Mutex
	stopped bool
}

// NewMemoryStore creates a store whose entries live for ttl. discard is
// called once for every artifact leaving the store.
func NewMemoryStore(ttl time.Duration, discard func(*artifact.Artifact) error) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &MemoryStore{
		cache: ttlcache.New(
			ttlcache.WithTTL[string, *Download](ttl),
			ttlcache.WithDisableTouchOnHit[string, *Download](),
		),
		ttl:     ttl,
		discard: discard,
	}
	s.cache.OnEviction(s.onEviction)

	// Start expiry goroutine
	go s.cache.Start()

	return s
}

func (s *MemoryStore) onEviction(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Download]) {
	d := item.Value()
	if d == nil || d.Artifact == nil || s.discard == nil {
		return
	}
	if err := s.discard(d.Artifact); err != nil {
		log.Warn().Err(err).Str("token", item.Key()).Str("path", d.Artifact.Path).Msg("failed to discard expired download")
		return
	}
	log.Debug().Str("token", item.Key()).Int("reason", int(reason)).Msg("download evicted")
}

// Put registers a download.
func (s *MemoryStore) Put(d *Download) (*Download, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrClosed
	}

	now := time.Now()
	stored := *d
	stored.Token = uuid.NewString()
	stored.CreatedAt = now
	stored.ExpiresAt = now.Add(s.ttl)
	s.cache.Set(stored.Token, &stored, ttlcache.DefaultTTL)
	return &stored, nil
}

// Get retrieves a download if it exists and hasn't expired.
func (s *MemoryStore) Get(token string) (*Download, bool) {
	item := s.cache.Get(token)
	if item == nil {
		return nil, false
	}
	if time.Now().After(item.ExpiresAt()) {
		return nil, false
	}
	return item.Value(), true
}

// Delete removes a download.
func (s *MemoryStore) Delete(token string) error {
	s.cache.Delete(token)
	return nil
}

// Len returns the number of stored downloads, including expired ones not
// yet swept.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}

// DeleteExpired evicts expired entries now instead of waiting for the
// expiry goroutine.
func (s *MemoryStore) DeleteExpired() {
	s.cache.DeleteExpired()
}

// Close stops the expiry goroutine and discards all artifacts.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stopped {
		s.stopped = true
		s.cache.DeleteAll()
		s.cache.Stop()
	}
	return nil
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
