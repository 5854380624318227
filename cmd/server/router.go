package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/birdcdn/cdn-console/backend/internal/admin"
	"github.com/birdcdn/cdn-console/backend/internal/api"
	"github.com/birdcdn/cdn-console/backend/internal/auth"
	"github.com/birdcdn/cdn-console/backend/internal/cache"
	"github.com/birdcdn/cdn-console/backend/internal/middleware"
	"github.com/birdcdn/cdn-console/backend/internal/stats"
	"github.com/birdcdn/cdn-console/backend/internal/tracking"
	"github.com/birdcdn/cdn-console/backend/internal/upload"
)

// newRouter builds the full route table. Account mutations and bucket admin
// require a session token; the console surfaces accept either credential;
// tracking is called by the edge tier over the internal network and carries
// no credential at all.
func newRouter(
	gate middleware.Authenticator,
	authHandler *auth.Handler,
	uploadHandler *upload.Handler,
	cacheHandler *cache.Handler,
	statsHandler *stats.Handler,
	adminHandler *admin.Handler,
	trackingHandler *tracking.Handler,
) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	requireAuth := middleware.RequireAuth(gate)
	requireSession := middleware.RequireSession(gate)

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		api.JSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", authHandler.Login)
		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Patch("/change-username", authHandler.ChangeUsername)
			r.Patch("/change-password", authHandler.ChangePassword)
			r.Get("/api-keys", authHandler.ListKeys)
			r.Post("/api-keys", authHandler.CreateKey)
			r.Patch("/api-keys/{id}/toggle", authHandler.ToggleKey)
			r.Delete("/api-keys/{id}", authHandler.DeleteKey)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)

		r.Post("/api/upload", uploadHandler.Upload)
		r.Get("/api/files", uploadHandler.List)
		r.Delete("/api/files/{id}", uploadHandler.Delete)

		r.Route("/api/cache", func(r chi.Router) {
			r.Get("/status", cacheHandler.Status)
			r.Get("/list", cacheHandler.List)
			r.Post("/update", cacheHandler.Update)
		})
		r.Route("/api/purge", func(r chi.Router) {
			r.Delete("/", cacheHandler.PurgeSingle)
			r.Delete("/bucket/{bucket}", cacheHandler.PurgeBucket)
			r.Delete("/all", cacheHandler.PurgeAll)
			r.Get("/history", cacheHandler.History)
		})

		r.Route("/api/stats", func(r chi.Router) {
			r.Get("/overview", statsHandler.Overview)
			r.Get("/bandwidth", statsHandler.Bandwidth)
			r.Get("/top-files", statsHandler.TopFiles)
			r.Get("/cache-performance", statsHandler.CachePerformance)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(requireSession)
		r.Get("/buckets", adminHandler.ListBuckets)
		r.Post("/buckets", adminHandler.CreateBucket)
		r.Put("/buckets/{name}/public", adminHandler.MakeBucketPublic)
		r.Get("/system-info", adminHandler.SystemInfo)
	})

	r.Route("/api/tracking", func(r chi.Router) {
		r.Post("/track/download/{id}", trackingHandler.TrackDownload)
		r.Post("/track/cache-hit", trackingHandler.TrackCacheHit)
		r.Post("/track/event", trackingHandler.TrackEvent)
		r.Post("/aggregate-logs", trackingHandler.AggregateLogs)
	})

	return r
}
