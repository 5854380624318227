// Package admin exposes bucket administration and system information,
// restricted to session-authenticated console users.
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/birdcdn/cdn-console/backend/internal/api"
	"github.com/birdcdn/cdn-console/backend/internal/config"
	"github.com/birdcdn/cdn-console/backend/internal/store"
)

// BucketStore is the origin storage administration surface.
type BucketStore interface {
	ListBuckets(ctx context.Context) ([]store.BucketInfo, error)
	BucketExists(ctx context.Context, name string) (bool, error)
	CreateBucket(ctx context.Context, name string) error
	SetBucketPublic(ctx context.Context, name string) error
	Endpoint() string
}

// Handler holds the admin HTTP handlers.
type Handler struct {
	buckets BucketStore
	cfg     *config.Config
	logger  *slog.Logger
}

func NewHandler(buckets BucketStore, cfg *config.Config, logger *slog.Logger) *Handler {
	return &Handler{buckets: buckets, cfg: cfg, logger: logger}
}

// ListBuckets lists all origin buckets.
func (h *Handler) ListBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.buckets.ListBuckets(r.Context())
	if err != nil {
		h.logger.Error("failed to list buckets", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	api.JSON(w, http.StatusOK, map[string]any{"buckets": buckets})
}

// CreateBucket creates a new public-read bucket.
func (h *Handler) CreateBucket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		// The console historically sent the name as a query parameter.
		req.Name = r.URL.Query().Get("name")
	}
	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	exists, err := h.buckets.BucketExists(r.Context(), req.Name)
	if err != nil {
		h.logger.Error("failed to check bucket", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if exists {
		api.Error(w, http.StatusConflict, "bucket '"+req.Name+"' already exists")
		return
	}

	if err := h.buckets.CreateBucket(r.Context(), req.Name); err != nil {
		h.logger.Error("failed to create bucket", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("bucket created", slog.String("bucket", req.Name))
	api.JSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"bucket":  req.Name,
		"message": "Bucket '" + req.Name + "' created successfully with public read access",
	})
}

// MakeBucketPublic applies the public-read policy to an existing bucket.
func (h *Handler) MakeBucketPublic(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	exists, err := h.buckets.BucketExists(r.Context(), name)
	if err != nil {
		h.logger.Error("failed to check bucket", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !exists {
		api.Error(w, http.StatusNotFound, "bucket '"+name+"' does not exist")
		return
	}

	if err := h.buckets.SetBucketPublic(r.Context(), name); err != nil {
		h.logger.Error("failed to set bucket policy", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	api.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"bucket":  name,
		"message": "Bucket '" + name + "' is now public readable",
	})
}

// SystemInfo reports the deployment configuration visible to the console.
func (h *Handler) SystemInfo(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, map[string]any{
		"cdn": map[string]any{
			"base_url":   h.cfg.CDNBaseURL,
			"cache_path": h.cfg.NginxCachePath,
		},
		"storage": map[string]any{
			"type":           "MinIO",
			"endpoint":       h.buckets.Endpoint(),
			"default_bucket": h.cfg.MinioBucket,
		},
		"upload_limits": map[string]any{
			"max_size_bytes": h.cfg.MaxUploadSize,
		},
	})
}
