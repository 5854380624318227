package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"

	"github.com/birdcdn/cdn-console/backend/internal/admin"
	"github.com/birdcdn/cdn-console/backend/internal/auth"
	"github.com/birdcdn/cdn-console/backend/internal/cache"
	"github.com/birdcdn/cdn-console/backend/internal/config"
	"github.com/birdcdn/cdn-console/backend/internal/stats"
	"github.com/birdcdn/cdn-console/backend/internal/store"
	"github.com/birdcdn/cdn-console/backend/internal/tracking"
	"github.com/birdcdn/cdn-console/backend/internal/upload"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()
	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error("failed to connect to postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	pg := store.NewPostgresStore(pool)
	if err := pg.Migrate(ctx); err != nil {
		logger.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}
	adminHash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("failed to hash admin password", slog.Any("error", err))
		os.Exit(1)
	}
	if err := pg.Bootstrap(ctx, auth.DefaultUsername, string(adminHash)); err != nil {
		logger.Error("bootstrap failed", slog.Any("error", err))
		os.Exit(1)
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Error("failed to connect to mongodb", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		_ = mongoClient.Disconnect(context.Background())
	}()
	events := store.NewMongoStore(mongoClient.Database(cfg.MongoDB))

	rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer rdb.Close()

	objects, err := store.NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		logger.Error("failed to connect to minio", slog.Any("error", err))
		os.Exit(1)
	}

	index := cache.NewIndex(rdb)
	purger := cache.NewPurger(cfg.NginxCachePath, index, pg, logger)

	tokens := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.SessionTTL)
	keys := auth.NewKeyManager(pg, pg, logger)
	gate := auth.NewGate(tokens, keys, pg, logger)

	authHandler := auth.NewHandler(pg, keys, tokens, logger)
	uploadHandler := upload.NewHandler(pg, objects, cfg.MinioBucket, cfg.CDNBaseURL, cfg.MaxUploadSize, logger)
	cacheHandler := cache.NewHandler(index, purger, pg, logger)
	statsHandler := stats.NewHandler(pg, index, cfg.NginxCachePath, logger)
	adminHandler := admin.NewHandler(objects, cfg, logger)
	aggregator := tracking.NewAggregator(events, pg, logger)
	trackingHandler := tracking.NewHandler(events, pg, index, aggregator, logger)

	r := newRouter(gate, authHandler, uploadHandler, cacheHandler, statsHandler, adminHandler, trackingHandler)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server starting", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
}
