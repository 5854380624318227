package cache

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/birdcdn/cdn-console/backend/internal/api"
	"github.com/birdcdn/cdn-console/backend/internal/auth"
	"github.com/birdcdn/cdn-console/backend/internal/models"
	"github.com/birdcdn/cdn-console/backend/internal/store"
)

// HistoryStore lists recorded purge operations.
type HistoryStore interface {
	ListPurgeLogs(ctx context.Context, limit int) ([]models.PurgeLog, error)
}

// Handler holds the cache status and purge HTTP handlers.
type Handler struct {
	index   *Index
	purger  *Purger
	history HistoryStore
	logger  *slog.Logger
}

func NewHandler(index *Index, purger *Purger, history HistoryStore, logger *slog.Logger) *Handler {
	return &Handler{index: index, purger: purger, history: history, logger: logger}
}

// Status reports the cache state of a single CDN path.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		api.Error(w, http.StatusBadRequest, "path is required")
		return
	}

	entry, err := h.index.Status(r.Context(), path)
	if errors.Is(err, store.ErrNotFound) {
		api.JSON(w, http.StatusOK, map[string]any{
			"path":    path,
			"cached":  false,
			"message": "Not in cache",
		})
		return
	}
	if err != nil {
		h.logger.Error("failed to read cache status", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	api.JSON(w, http.StatusOK, entry)
}

// List returns currently cached files, most recently hit first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	entries, total, err := h.index.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list cache entries", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if entries == nil {
		entries = []models.CacheEntry{}
	}
	api.JSON(w, http.StatusOK, map[string]any{
		"total":        total,
		"limit":        limit,
		"offset":       offset,
		"cached_files": entries,
	})
}

// Update records a HIT or MISS observation, called by the edge log webhook.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	status := r.URL.Query().Get("cache_status")
	if path == "" || status == "" {
		api.Error(w, http.StatusBadRequest, "path and cache_status are required")
		return
	}
	bytesServed := queryInt64(r, "bytes_sent", 0)

	var err error
	switch status {
	case "HIT", "STALE":
		err = h.index.RecordHit(r.Context(), path, bytesServed)
	case "MISS", "BYPASS", "EXPIRED":
		err = h.index.RecordMiss(r.Context(), path, bytesServed)
	default:
		api.Error(w, http.StatusBadRequest, "unknown cache_status")
		return
	}
	if err != nil {
		h.logger.Error("failed to update cache entry", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	api.JSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"path":         path,
		"cache_status": status,
	})
}

// PurgeSingle purges one file from the cache.
func (h *Handler) PurgeSingle(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		api.Error(w, http.StatusBadRequest, "path is required")
		return
	}

	log, err := h.purger.PurgePath(r.Context(), path, triggeredBy(r))
	if err != nil {
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	api.JSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"path":         path,
		"files_purged": log.FilesPurged,
		"bytes_freed":  log.BytesFreed,
		"message":      "Purged cache for " + path,
	})
}

// PurgeBucket purges every cached file under a bucket.
func (h *Handler) PurgeBucket(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")

	log, err := h.purger.PurgeBucket(r.Context(), bucket, triggeredBy(r))
	if err != nil {
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	api.JSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"bucket":       bucket,
		"files_purged": log.FilesPurged,
		"bytes_freed":  log.BytesFreed,
		"message":      "Purged cache for bucket '" + bucket + "'",
	})
}

// PurgeAll purges the entire cache. Requires confirm=true.
func (h *Handler) PurgeAll(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		api.Error(w, http.StatusBadRequest,
			"set confirm=true to purge the entire cache")
		return
	}

	log, err := h.purger.PurgeAll(r.Context(), triggeredBy(r))
	if err != nil {
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	api.JSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"files_purged": log.FilesPurged,
		"bytes_freed":  log.BytesFreed,
		"message":      "Full cache purged successfully",
	})
}

// History lists past purge operations, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)

	logs, err := h.history.ListPurgeLogs(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list purge history", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if logs == nil {
		logs = []models.PurgeLog{}
	}
	api.JSON(w, http.StatusOK, map[string]any{
		"total":            len(logs),
		"purge_operations": logs,
	})
}

func triggeredBy(r *http.Request) string {
	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		return p.Username
	}
	return "api"
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func queryInt64(r *http.Request, key string, fallback int64) int64 {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
