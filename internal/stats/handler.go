// Package stats serves the console dashboards: traffic, storage and cache
// performance aggregates.
package stats

import (
	"context"
	"io/fs"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/birdcdn/cdn-console/backend/internal/api"
	"github.com/birdcdn/cdn-console/backend/internal/cache"
	"github.com/birdcdn/cdn-console/backend/internal/models"
)

// Store provides the persisted aggregates behind the dashboards.
type Store interface {
	FileTotals(ctx context.Context) (total, images, videos int64, storageBytes int64, err error)
	TopFiles(ctx context.Context, limit int) ([]models.UploadedFile, error)
	ListBandwidth(ctx context.Context, since time.Time) ([]models.BandwidthLog, error)
	SumBandwidth(ctx context.Context, since time.Time) (int64, error)
}

// Handler holds the statistics HTTP handlers.
type Handler struct {
	store     Store
	index     *cache.Index
	cachePath string
	logger    *slog.Logger
}

func NewHandler(store Store, index *cache.Index, cachePath string, logger *slog.Logger) *Handler {
	return &Handler{store: store, index: index, cachePath: cachePath, logger: logger}
}

// Overview returns the headline metrics for the dashboard.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	total, images, videos, storageBytes, err := h.store.FileTotals(ctx)
	if err != nil {
		h.logger.Error("failed to read file totals", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	cached, hits, misses, _, err := h.index.Totals(ctx)
	if err != nil {
		h.logger.Error("failed to read cache totals", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	bandwidth24h, err := h.store.SumBandwidth(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		h.logger.Error("failed to read bandwidth", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	requests := hits + misses
	hitRatio := 0.0
	if requests > 0 {
		hitRatio = float64(hits) / float64(requests) * 100
	}
	cacheSize := dirSize(h.cachePath)

	api.JSON(w, http.StatusOK, map[string]any{
		"files": map[string]any{
			"total":  total,
			"images": images,
			"videos": videos,
		},
		"storage": map[string]any{
			"used_bytes": storageBytes,
			"used_gb":    toGB(storageBytes),
		},
		"cache": map[string]any{
			"cached_files":     cached,
			"total_hits":       hits,
			"total_misses":     misses,
			"hit_ratio":        round2(hitRatio),
			"cache_size_bytes": cacheSize,
			"cache_size_gb":    toGB(cacheSize),
		},
		"bandwidth": map[string]any{
			"last_24h_bytes": bandwidth24h,
			"last_24h_gb":    toGB(bandwidth24h),
		},
	})
}

// Bandwidth returns hourly traffic for the last N days.
func (h *Handler) Bandwidth(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 7)

	logs, err := h.store.ListBandwidth(r.Context(), time.Now().AddDate(0, 0, -days))
	if err != nil {
		h.logger.Error("failed to list bandwidth", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	data := make([]map[string]any, 0, len(logs))
	for _, l := range logs {
		reqs := l.CacheHits + l.CacheMisses
		ratio := 0.0
		if reqs > 0 {
			ratio = float64(l.CacheHits) / float64(reqs) * 100
		}
		data = append(data, map[string]any{
			"hour":         l.Hour.Format(time.RFC3339),
			"requests":     l.Requests,
			"bytes_sent":   l.BytesSent,
			"gb_sent":      toGB(l.BytesSent),
			"cache_hits":   l.CacheHits,
			"cache_misses": l.CacheMisses,
			"hit_ratio":    round2(ratio),
		})
	}
	api.JSON(w, http.StatusOK, map[string]any{"days": days, "data": data})
}

// TopFiles returns the most downloaded files.
func (h *Handler) TopFiles(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)

	files, err := h.store.TopFiles(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list top files", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]map[string]any, 0, len(files))
	for _, f := range files {
		out = append(out, map[string]any{
			"filename":       f.Filename,
			"path":           f.Path,
			"cdn_url":        f.CDNURL,
			"type":           f.FileType,
			"size":           f.Size,
			"downloads":      f.DownloadCount,
			"bandwidth_used": f.BandwidthUsed,
			"bandwidth_gb":   toGB(f.BandwidthUsed),
		})
	}
	api.JSON(w, http.StatusOK, map[string]any{"top_files": out})
}

// CachePerformance returns the hottest cached paths and recent misses.
func (h *Handler) CachePerformance(w http.ResponseWriter, r *http.Request) {
	entries, _, err := h.index.List(r.Context(), math.MaxInt32, 0)
	if err != nil {
		h.logger.Error("failed to list cache entries", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	topCached := make([]models.CacheEntry, len(entries))
	copy(topCached, entries)
	sort.Slice(topCached, func(i, j int) bool {
		return topCached[i].HitCount > topCached[j].HitCount
	})
	if len(topCached) > 10 {
		topCached = topCached[:10]
	}

	var misses []models.CacheEntry
	for _, e := range entries {
		if e.LastMiss != nil {
			misses = append(misses, e)
		}
	}
	sort.Slice(misses, func(i, j int) bool {
		return misses[i].LastMiss.After(*misses[j].LastMiss)
	})
	if len(misses) > 10 {
		misses = misses[:10]
	}
	if misses == nil {
		misses = []models.CacheEntry{}
	}

	api.JSON(w, http.StatusOK, map[string]any{
		"top_cached_files":    topCached,
		"recent_cache_misses": misses,
	})
}

func dirSize(root string) int64 {
	var size int64
	if _, err := os.Stat(root); err != nil {
		return 0
	}
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}

func toGB(b int64) float64 {
	return round2(float64(b) / (1 << 30))
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
