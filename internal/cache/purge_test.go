package cache

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdcdn/cdn-console/backend/internal/models"
)

type fakeInvalidator struct {
	paths    []string
	prefixes []string
	all      int
}

func (f *fakeInvalidator) MarkUncached(_ context.Context, path string) error {
	f.paths = append(f.paths, path)
	return nil
}

func (f *fakeInvalidator) MarkUncachedPrefix(_ context.Context, prefix string) error {
	f.prefixes = append(f.prefixes, prefix)
	return nil
}

func (f *fakeInvalidator) MarkAllUncached(_ context.Context) error {
	f.all++
	return nil
}

type fakePurgeLogStore struct {
	logs []*models.PurgeLog
}

func (f *fakePurgeLogStore) CreatePurgeLog(_ context.Context, l *models.PurgeLog) error {
	f.logs = append(f.logs, l)
	return nil
}

// writeCacheFile lays out one cached response under the cache root. Purge
// matches by substring of the full on-disk path, so the CDN path segments
// appear as directories here.
func writeCacheFile(t *testing.T, root, rel string, size int) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func newTestPurger(t *testing.T) (*Purger, string, *fakeInvalidator, *fakePurgeLogStore) {
	t.Helper()
	root := t.TempDir()
	index := &fakeInvalidator{}
	logs := &fakePurgeLogStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPurger(root, index, logs, logger), root, index, logs
}

func TestPurgePath(t *testing.T) {
	p, root, index, logs := newTestPurger(t)

	hit := writeCacheFile(t, root, "a/b2/media/logo.png", 100)
	miss := writeCacheFile(t, root, "c/d4/media/video.mp4", 200)

	log, err := p.PurgePath(context.Background(), "logo.png", "admin")
	require.NoError(t, err)

	assert.Equal(t, 1, log.FilesPurged)
	assert.Equal(t, int64(100), log.BytesFreed)
	assert.Equal(t, "single", log.PurgeType)
	assert.Equal(t, "logo.png", log.Target)
	assert.Equal(t, "admin", log.TriggeredBy)
	assert.True(t, log.Success)

	assert.NoFileExists(t, hit)
	assert.FileExists(t, miss)
	assert.Equal(t, []string{"logo.png"}, index.paths)
	require.Len(t, logs.logs, 1)
}

func TestPurgeBucket(t *testing.T) {
	p, root, index, _ := newTestPurger(t)

	a := writeCacheFile(t, root, "e/f5/media/a.png", 100)
	b := writeCacheFile(t, root, "a/b7/media/b.png", 150)
	other := writeCacheFile(t, root, "c/d9/static/c.css", 50)

	log, err := p.PurgeBucket(context.Background(), "media", "admin")
	require.NoError(t, err)

	assert.Equal(t, 2, log.FilesPurged)
	assert.Equal(t, int64(250), log.BytesFreed)
	assert.Equal(t, "bucket", log.PurgeType)

	assert.NoFileExists(t, a)
	assert.NoFileExists(t, b)
	assert.FileExists(t, other)
	assert.Equal(t, []string{"/media/"}, index.prefixes)
}

func TestPurgeAll(t *testing.T) {
	p, root, index, _ := newTestPurger(t)

	writeCacheFile(t, root, "a/b1/one", 10)
	writeCacheFile(t, root, "c/d3/two", 20)
	writeCacheFile(t, root, "e/f5/three", 30)

	log, err := p.PurgeAll(context.Background(), "api_key")
	require.NoError(t, err)

	assert.Equal(t, 3, log.FilesPurged)
	assert.Equal(t, int64(60), log.BytesFreed)
	assert.Equal(t, "full", log.PurgeType)
	assert.Equal(t, "all", log.Target)
	assert.Equal(t, 1, index.all)
}

func TestPurgeMissingCacheDir(t *testing.T) {
	index := &fakeInvalidator{}
	logs := &fakePurgeLogStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewPurger("/nonexistent/cache/dir", index, logs, logger)

	log, err := p.PurgeAll(context.Background(), "admin")
	require.NoError(t, err)

	// Nothing to remove is still a successful, recorded purge.
	assert.Equal(t, 0, log.FilesPurged)
	assert.Equal(t, int64(0), log.BytesFreed)
	require.Len(t, logs.logs, 1)
}
