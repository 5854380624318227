package cache

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/birdcdn/cdn-console/backend/internal/models"
)

// Invalidator clears cached flags in the live index after files are removed
// from disk.
type Invalidator interface {
	MarkUncached(ctx context.Context, path string) error
	MarkUncachedPrefix(ctx context.Context, prefix string) error
	MarkAllUncached(ctx context.Context) error
}

// PurgeLogStore records completed purge operations.
type PurgeLogStore interface {
	CreatePurgeLog(ctx context.Context, l *models.PurgeLog) error
}

// Purger removes cached response files from the nginx cache directory and
// keeps the index and purge history in sync.
type Purger struct {
	cachePath string
	index     Invalidator
	logs      PurgeLogStore
	logger    *slog.Logger
}

func NewPurger(cachePath string, index Invalidator, logs PurgeLogStore, logger *slog.Logger) *Purger {
	return &Purger{cachePath: cachePath, index: index, logs: logs, logger: logger}
}

// PurgePath removes cache files for a single CDN path.
func (p *Purger) PurgePath(ctx context.Context, path, triggeredBy string) (*models.PurgeLog, error) {
	files, freed := p.removeMatching(path)
	if err := p.index.MarkUncached(ctx, path); err != nil {
		p.logger.Warn("failed to invalidate cache index", slog.Any("error", err))
	}
	return p.record(ctx, "single", path, triggeredBy, "", files, freed)
}

// PurgeBucket removes cache files for every path under a bucket.
func (p *Purger) PurgeBucket(ctx context.Context, bucket, triggeredBy string) (*models.PurgeLog, error) {
	prefix := "/" + bucket + "/"
	files, freed := p.removeMatching(prefix)
	if err := p.index.MarkUncachedPrefix(ctx, prefix); err != nil {
		p.logger.Warn("failed to invalidate cache index", slog.Any("error", err))
	}
	return p.record(ctx, "bucket", bucket, triggeredBy, "", files, freed)
}

// PurgeAll removes the entire cache directory contents.
func (p *Purger) PurgeAll(ctx context.Context, triggeredBy string) (*models.PurgeLog, error) {
	files, freed := p.removeMatching("")
	if err := p.index.MarkAllUncached(ctx); err != nil {
		p.logger.Warn("failed to invalidate cache index", slog.Any("error", err))
	}
	return p.record(ctx, "full", "all", triggeredBy, "Full cache purge", files, freed)
}

// removeMatching deletes every cache file whose path contains pattern; an
// empty pattern matches everything. nginx cache files are addressed by
// hashed names, so purge matches against the full on-disk path the same way
// the original console did.
func (p *Purger) removeMatching(pattern string) (files int, freed int64) {
	root := p.cachePath
	if _, err := os.Stat(root); err != nil {
		return 0, 0
	}

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if pattern != "" && !strings.Contains(path, pattern) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if err := os.Remove(path); err != nil {
			p.logger.Warn("failed to remove cache file",
				slog.String("file", path), slog.Any("error", err))
			return nil
		}
		files++
		freed += info.Size()
		return nil
	})
	return files, freed
}

func (p *Purger) record(ctx context.Context, purgeType, target, triggeredBy, reason string, files int, freed int64) (*models.PurgeLog, error) {
	now := time.Now()
	log := &models.PurgeLog{
		ID:          uuid.New().String(),
		PurgeType:   purgeType,
		Target:      target,
		FilesPurged: files,
		BytesFreed:  freed,
		TriggeredBy: triggeredBy,
		Reason:      reason,
		Success:     true,
		CreatedAt:   now,
		CompletedAt: &now,
	}
	if err := p.logs.CreatePurgeLog(ctx, log); err != nil {
		p.logger.Error("failed to record purge", slog.Any("error", err))
		return log, err
	}
	return log, nil
}
