// Package upload moves files into origin storage and tracks them in the
// file catalog.
package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/birdcdn/cdn-console/backend/internal/api"
	"github.com/birdcdn/cdn-console/backend/internal/models"
	"github.com/birdcdn/cdn-console/backend/internal/store"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".svg": true, ".avif": true,
}

var videoExtensions = map[string]bool{
	".mp4": true, ".webm": true, ".mov": true, ".mkv": true, ".avi": true,
}

// FileStore is the catalog of uploaded files.
type FileStore interface {
	CreateFile(ctx context.Context, f *models.UploadedFile) error
	ListFiles(ctx context.Context, bucket, fileType string, limit, offset int) ([]models.UploadedFile, int, error)
	GetFile(ctx context.Context, id string) (*models.UploadedFile, error)
	DeactivateFile(ctx context.Context, id string) error
}

// ObjectStore is the origin storage behind the CDN.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Remove(ctx context.Context, bucket, key string) error
	BucketExists(ctx context.Context, name string) (bool, error)
	CreateBucket(ctx context.Context, name string) error
}

// Handler holds the upload and file-catalog HTTP handlers.
type Handler struct {
	files   FileStore
	objects ObjectStore
	logger  *slog.Logger

	defaultBucket string
	cdnBaseURL    string
	maxUploadSize int64
}

func NewHandler(files FileStore, objects ObjectStore, defaultBucket, cdnBaseURL string, maxUploadSize int64, logger *slog.Logger) *Handler {
	return &Handler{
		files:         files,
		objects:       objects,
		logger:        logger,
		defaultBucket: defaultBucket,
		cdnBaseURL:    strings.TrimSuffix(cdnBaseURL, "/"),
		maxUploadSize: maxUploadSize,
	}
}

// Upload stores a multipart file in origin storage and records it.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		api.Error(w, http.StatusBadRequest, "file too large or malformed multipart body")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(path.Ext(header.Filename))
	fileType, ok := classifyExtension(ext)
	if !ok {
		api.Error(w, http.StatusBadRequest, "file type not allowed: "+ext)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	bucket := r.FormValue("bucket")
	if bucket == "" {
		bucket = h.defaultBucket
	}
	folder := strings.Trim(r.FormValue("folder"), "/")

	if err := h.ensureBucket(r.Context(), bucket); err != nil {
		h.logger.Error("failed to ensure bucket", slog.String("bucket", bucket), slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	objectName := buildObjectName(data, ext)
	key := objectName
	if folder != "" {
		key = folder + "/" + objectName
	}

	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := h.objects.Upload(r.Context(), bucket, key, data, contentType); err != nil {
		h.logger.Error("failed to upload object", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	cdnPath := "/" + bucket + "/" + key
	record := &models.UploadedFile{
		ID:               uuid.New().String(),
		Filename:         objectName,
		OriginalFilename: header.Filename,
		Bucket:           bucket,
		Path:             cdnPath,
		Size:             int64(len(data)),
		MimeType:         contentType,
		FileType:         fileType,
		CDNURL:           h.cdnBaseURL + cdnPath,
		IsActive:         true,
		CreatedAt:        time.Now(),
	}
	if err := h.files.CreateFile(r.Context(), record); err != nil {
		h.logger.Error("failed to record upload", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("file uploaded",
		slog.String("bucket", bucket), slog.String("path", cdnPath), slog.Int("size", len(data)))
	api.JSON(w, http.StatusCreated, record)
}

// List returns uploaded files with optional bucket/type filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), 100)
	offset := queryInt(q.Get("offset"), 0)

	files, total, err := h.files.ListFiles(r.Context(), q.Get("bucket"), q.Get("type"), limit, offset)
	if err != nil {
		h.logger.Error("failed to list files", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if files == nil {
		files = []models.UploadedFile{}
	}
	api.JSON(w, http.StatusOK, map[string]any{
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"files":  files,
	})
}

// Delete removes the object from origin storage and deactivates its record.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := h.files.GetFile(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.Error(w, http.StatusNotFound, "file not found")
			return
		}
		h.logger.Error("failed to load file record", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	objectKey := strings.TrimPrefix(record.Path, "/"+record.Bucket+"/")
	if err := h.objects.Remove(r.Context(), record.Bucket, objectKey); err != nil {
		h.logger.Error("failed to remove object", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := h.files.DeactivateFile(r.Context(), id); err != nil {
		h.logger.Error("failed to deactivate file record", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("file deleted", slog.String("id", id), slog.String("path", record.Path))
	api.JSON(w, http.StatusOK, map[string]string{"message": "file deleted"})
}

func (h *Handler) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := h.objects.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !exists {
		return h.objects.CreateBucket(ctx, bucket)
	}
	return nil
}

func classifyExtension(ext string) (string, bool) {
	switch {
	case imageExtensions[ext]:
		return "image", true
	case videoExtensions[ext]:
		return "video", true
	default:
		return "", false
	}
}

// buildObjectName derives a collision-resistant object name from the upload
// time and a content hash, keeping the extension.
func buildObjectName(data []byte, ext string) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s_%s%s",
		time.Now().Format("20060102_150405"), hex.EncodeToString(sum[:8]), ext)
}

func queryInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return fallback
}
