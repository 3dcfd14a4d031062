package store_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/pdf-gateway/internal/artifact"
	"github.com/compresr/pdf-gateway/internal/store"
)

// promoted runs a tiny arena to get a promoted artifact owned by the caller.
func promoted(t *testing.T, mgr *artifact.Manager, data string) *artifact.Artifact {
	t.Helper()
	arena, err := mgr.NewArena(artifact.NewRunID())
	require.NoError(t, err)
	defer arena.Close()

	a, err := arena.Ingest("result", []byte(data))
	require.NoError(t, err)
	out, err := arena.Promote(a)
	require.NoError(t, err)
	return out
}

func newManager(t *testing.T) *artifact.Manager {
	t.Helper()
	root := t.TempDir()
	mgr, err := artifact.NewManager(artifact.Config{
		ScratchDir: filepath.Join(root, "scratch"),
		OutputDir:  filepath.Join(root, "output"),
	})
	require.NoError(t, err)
	return mgr
}

func TestMemoryStore_PutGet(t *testing.T) {
	mgr := newManager(t)
	s := store.NewMemoryStore(time.Hour, mgr.Discard)
	defer s.Close()

	a := promoted(t, mgr, "%PDF-result")
	d, err := s.Put(&store.Download{RunID: "run", Filename: "out.pdf", SizeBytes: 11, Artifact: a})
	require.NoError(t, err)
	require.NotEmpty(t, d.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), d.ExpiresAt, 5*time.Second)

	got, ok := s.Get(d.Token)
	require.True(t, ok)
	assert.Equal(t, "out.pdf", got.Filename)
	assert.Equal(t, a.Path, got.Artifact.Path)
	assert.Equal(t, 1, s.Len())

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestMemoryStore_DeleteDiscardsFile(t *testing.T) {
	mgr := newManager(t)
	s := store.NewMemoryStore(time.Hour, mgr.Discard)
	defer s.Close()

	a := promoted(t, mgr, "%PDF-result")
	d, err := s.Put(&store.Download{Artifact: a})
	require.NoError(t, err)

	require.NoError(t, s.Delete(d.Token))
	_, ok := s.Get(d.Token)
	assert.False(t, ok)
	assert.NoFileExists(t, a.Path)
	assert.Equal(t, int64(1), mgr.Stats().Discarded)
}

func TestMemoryStore_ExpiryDiscardsFile(t *testing.T) {
	mgr := newManager(t)
	s := store.NewMemoryStore(20*time.Millisecond, mgr.Discard)
	defer s.Close()

	a := promoted(t, mgr, "%PDF-result")
	d, err := s.Put(&store.Download{Artifact: a})
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	_, ok := s.Get(d.Token)
	assert.False(t, ok)

	s.DeleteExpired()
	assert.Eventually(t, func() bool {
		_, err := os.Stat(a.Path)
		return os.IsNotExist(err)
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryStore_CloseDiscardsEverything(t *testing.T) {
	mgr := newManager(t)
	s := store.NewMemoryStore(time.Hour, mgr.Discard)

	var paths []string
	for i := 0; i < 3; i++ {
		a := promoted(t, mgr, "%PDF-result")
		paths = append(paths, a.Path)
		_, err := s.Put(&store.Download{Artifact: a})
		require.NoError(t, err)
	}

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	for _, p := range paths {
		assert.NoFileExists(t, p)
	}

	_, err := s.Put(&store.Download{})
	assert.ErrorIs(t, err, store.ErrClosed)
}

// fakeS3 accepts path-style PUTs and remembers their keys.
type fakeS3 struct {
	mu   sync.Mutex
	puts map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, _ = io.Copy(io.Discard, r.Body)
	f.mu.Lock()
	f.puts[r.URL.Path] = r.Header.Get("Content-Type")
	f.mu.Unlock()
	w.Header().Set("ETag", `"etag"`)
	w.WriteHeader(http.StatusOK)
}

func TestS3Publisher_Publish(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "none"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "none"))

	fake := &fakeS3{puts: map[string]string{}}
	server := httptest.NewServer(fake)
	defer server.Close()

	pub, err := store.NewS3Publisher(context.Background(), store.S3Config{
		Bucket:       "results",
		Region:       "eu-west-1",
		Prefix:       "compressed",
		Endpoint:     server.URL,
		UsePathStyle: true,
		PresignTTL:   10 * time.Minute,
	})
	require.NoError(t, err)

	mgr := newManager(t)
	d := &store.Download{RunID: "01J0RUN", Filename: "scan.pdf", Artifact: promoted(t, mgr, "%PDF-result")}
	assert.Equal(t, "compressed/01J0RUN/scan.pdf", pub.Key(d))

	url, err := pub.Publish(context.Background(), d)
	require.NoError(t, err)

	fake.mu.Lock()
	contentType, ok := fake.puts["/results/compressed/01J0RUN/scan.pdf"]
	fake.mu.Unlock()
	require.True(t, ok, "object was not uploaded")
	assert.Equal(t, "application/pdf", contentType)

	assert.True(t, strings.HasPrefix(url, server.URL+"/results/compressed/01J0RUN/scan.pdf?"), url)
	assert.Contains(t, url, "X-Amz-Signature=")
	assert.Contains(t, url, "X-Amz-Expires=600")
}

func TestNewS3Publisher_RequiresBucket(t *testing.T) {
	_, err := store.NewS3Publisher(context.Background(), store.S3Config{})
	assert.Error(t, err)
}
