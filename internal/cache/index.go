// Package cache tracks the edge cache: live per-path counters in Redis and
// purge operations against the nginx cache directory.
package cache

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/birdcdn/cdn-console/backend/internal/models"
	"github.com/birdcdn/cdn-console/backend/internal/store"
)

const (
	entryKeyPrefix = "cache:entry:"
	pathSetKey     = "cache:paths"
)

// Index keeps live cache-entry counters in Redis, one hash per CDN path.
// The nginx log webhook updates it on every edge request, so writes must stay
// cheap single round trips.
type Index struct {
	rdb *redis.Client
}

func NewIndex(rdb *redis.Client) *Index {
	return &Index{rdb: rdb}
}

// RecordHit bumps the hit counters for a path and marks it cached.
func (ix *Index) RecordHit(ctx context.Context, path string, bytesServed int64) error {
	now := time.Now().Unix()
	key := entryKeyPrefix + path
	pipe := ix.rdb.TxPipeline()
	pipe.SAdd(ctx, pathSetKey, path)
	pipe.HIncrBy(ctx, key, "hits", 1)
	pipe.HIncrBy(ctx, key, "bytes", bytesServed)
	pipe.HSet(ctx, key, "cached", 1, "last_hit", now)
	pipe.HSetNX(ctx, key, "first_cached", now)
	_, err := pipe.Exec(ctx)
	return err
}

// RecordMiss bumps the miss counters for a path.
func (ix *Index) RecordMiss(ctx context.Context, path string, bytesServed int64) error {
	now := time.Now().Unix()
	key := entryKeyPrefix + path
	pipe := ix.rdb.TxPipeline()
	pipe.SAdd(ctx, pathSetKey, path)
	pipe.HIncrBy(ctx, key, "misses", 1)
	pipe.HIncrBy(ctx, key, "bytes", bytesServed)
	pipe.HSet(ctx, key, "last_miss", now)
	_, err := pipe.Exec(ctx)
	return err
}

// Status returns the counters for one path, or store.ErrNotFound when the
// path has never been seen.
func (ix *Index) Status(ctx context.Context, path string) (*models.CacheEntry, error) {
	fields, err := ix.rdb.HGetAll(ctx, entryKeyPrefix+path).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, store.ErrNotFound
	}
	return entryFromFields(path, fields), nil
}

// List returns currently cached entries ordered by last hit, newest first.
func (ix *Index) List(ctx context.Context, limit, offset int) ([]models.CacheEntry, int, error) {
	paths, err := ix.rdb.SMembers(ctx, pathSetKey).Result()
	if err != nil {
		return nil, 0, err
	}

	pipe := ix.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(paths))
	for _, p := range paths {
		cmds[p] = pipe.HGetAll(ctx, entryKeyPrefix+p)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, 0, err
	}

	var entries []models.CacheEntry
	for _, p := range paths {
		fields, err := cmds[p].Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		e := entryFromFields(p, fields)
		if e.IsCached {
			entries = append(entries, *e)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		var ti, tj time.Time
		if entries[i].LastHit != nil {
			ti = *entries[i].LastHit
		}
		if entries[j].LastHit != nil {
			tj = *entries[j].LastHit
		}
		return ti.After(tj)
	})

	total := len(entries)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return entries[offset:end], total, nil
}

// MarkUncached clears the cached flag for one path.
func (ix *Index) MarkUncached(ctx context.Context, path string) error {
	return ix.rdb.HSet(ctx, entryKeyPrefix+path, "cached", 0).Err()
}

// MarkUncachedPrefix clears the cached flag for all paths under a prefix.
func (ix *Index) MarkUncachedPrefix(ctx context.Context, prefix string) error {
	paths, err := ix.rdb.SMembers(ctx, pathSetKey).Result()
	if err != nil {
		return err
	}
	pipe := ix.rdb.Pipeline()
	for _, p := range paths {
		if strings.HasPrefix(p, prefix) {
			pipe.HSet(ctx, entryKeyPrefix+p, "cached", 0)
		}
	}
	_, err = pipe.Exec(ctx)
	return err
}

// MarkAllUncached clears the cached flag for every known path.
func (ix *Index) MarkAllUncached(ctx context.Context) error {
	return ix.MarkUncachedPrefix(ctx, "")
}

// Totals returns aggregate cache counters across all paths.
func (ix *Index) Totals(ctx context.Context) (cached, hits, misses, bytesServed int64, err error) {
	paths, err := ix.rdb.SMembers(ctx, pathSetKey).Result()
	if err != nil {
		return 0, 0, 0, 0, err
	}
	pipe := ix.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, 0, len(paths))
	for _, p := range paths {
		cmds = append(cmds, pipe.HGetAll(ctx, entryKeyPrefix+p))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, 0, 0, err
	}
	for _, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			continue
		}
		hits += parseInt(fields["hits"])
		misses += parseInt(fields["misses"])
		bytesServed += parseInt(fields["bytes"])
		if fields["cached"] == "1" {
			cached++
		}
	}
	return cached, hits, misses, bytesServed, nil
}

func entryFromFields(path string, fields map[string]string) *models.CacheEntry {
	e := &models.CacheEntry{
		Path:        path,
		CacheKey:    "http$GET$" + path,
		HitCount:    parseInt(fields["hits"]),
		MissCount:   parseInt(fields["misses"]),
		BytesServed: parseInt(fields["bytes"]),
		IsCached:    fields["cached"] == "1",
	}
	e.FirstCached = parseTime(fields["first_cached"])
	e.LastHit = parseTime(fields["last_hit"])
	e.LastMiss = parseTime(fields["last_miss"])
	return e
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
