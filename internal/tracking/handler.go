package tracking

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/birdcdn/cdn-console/backend/internal/api"
	"github.com/birdcdn/cdn-console/backend/internal/cache"
	"github.com/birdcdn/cdn-console/backend/internal/models"
	"github.com/birdcdn/cdn-console/backend/internal/store"
)

// DownloadStore bumps per-file download counters.
type DownloadStore interface {
	RecordDownload(ctx context.Context, id string, bytesSent int64) error
}

// Handler holds the tracking ingest HTTP handlers. They are called by the
// edge, not the console.
type Handler struct {
	events     EventStore
	downloads  DownloadStore
	index      *cache.Index
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(events EventStore, downloads DownloadStore, index *cache.Index, aggregator *Aggregator, logger *slog.Logger) *Handler {
	return &Handler{events: events, downloads: downloads, index: index, aggregator: aggregator, logger: logger}
}

// TrackDownload bumps the download counters for one file.
func (h *Handler) TrackDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	bytesSent := queryInt64(r, "bytes_sent", 0)

	if err := h.downloads.RecordDownload(r.Context(), id, bytesSent); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.Error(w, http.StatusNotFound, "file not found")
			return
		}
		h.logger.Error("failed to record download", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	api.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// TrackCacheHit records a cache hit observation and the raw access event.
func (h *Handler) TrackCacheHit(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		api.Error(w, http.StatusBadRequest, "path is required")
		return
	}
	bytesSent := queryInt64(r, "bytes_sent", 0)

	if err := h.index.RecordHit(r.Context(), path, bytesSent); err != nil {
		h.logger.Error("failed to record cache hit", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	ev := &models.AccessEvent{
		Path:        path,
		Status:      http.StatusOK,
		BytesSent:   bytesSent,
		CacheStatus: "HIT",
		Timestamp:   time.Now(),
	}
	if err := h.events.InsertEvent(r.Context(), ev); err != nil {
		h.logger.Warn("failed to store access event", slog.Any("error", err))
	}
	api.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// TrackEvent ingests one raw access event from the edge log tailer.
func (h *Handler) TrackEvent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		api.Error(w, http.StatusBadRequest, "path is required")
		return
	}

	ev := &models.AccessEvent{
		Path:        path,
		Status:      int(queryInt64(r, "status", http.StatusOK)),
		BytesSent:   queryInt64(r, "bytes_sent", 0),
		CacheStatus: q.Get("cache_status"),
		Timestamp:   time.Now(),
	}
	if err := h.events.InsertEvent(r.Context(), ev); err != nil {
		h.logger.Error("failed to store access event", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	api.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AggregateLogs kicks off a roll-up in the background, for cron callers.
func (h *Handler) AggregateLogs(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := h.aggregator.Run(ctx); err != nil {
			h.logger.Error("log aggregation failed", slog.Any("error", err))
		}
	}()
	api.JSON(w, http.StatusAccepted, map[string]string{"status": "aggregation started"})
}

func queryInt64(r *http.Request, key string, fallback int64) int64 {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
