// Package main provides the entry point for the SLINK link management service.
//
//	@title			SLINK API
//	@version		1.0.0
//	@description	Short link management: creation, bulk creation, editing, archiving, transfer and deletion of links.
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@externalDocs.description	OpenAPI Specification
//	@externalDocs.url			https://swagger.io/resources/open-api/
package main

import (
	"SLINK-Backend/internal/analytics"
	"SLINK-Backend/internal/config"
	"SLINK-Backend/internal/database"
	httpHandler "SLINK-Backend/internal/handler/http"
	"SLINK-Backend/internal/images"
	"SLINK-Backend/internal/policy"
	"SLINK-Backend/internal/projection"
	"SLINK-Backend/internal/repository"
	"SLINK-Backend/internal/repository/memory"
	"SLINK-Backend/internal/repository/postgres"
	"SLINK-Backend/internal/service"
	"SLINK-Backend/pkg/logger"
	"context"
	"errors"
	lg "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env, logger.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer func() {
		if err := log.Sync(); err != nil {
			lg.Printf("ERROR: failed to sync zap logger: %v\n", err)
		}
	}()

	log.Info("starting SLINK service",
		zap.String("env", cfg.Env),
		zap.String("storage", cfg.Links.Storage),
		zap.String("projection", cfg.Links.Projection),
		zap.String("policy", cfg.Policy.Source))

	checks := make(map[string]httpHandler.Check)

	// Canonical storage
	var storage repository.Storage
	switch cfg.Links.Storage {
	case "memory":
		log.Warn("using in-memory canonical storage, data is lost on restart")
		mem := memory.New()
		project, tags := database.DemoProject()
		mem.AddProject(project)
		for _, tag := range tags {
			mem.AddTag(tag)
		}
		storage = mem
	default:
		db, err := database.NewConnection(&cfg.Database, log)
		if err != nil {
			log.Fatal("failed to connect to database", zap.Error(err))
		}
		defer func() {
			if err := database.Close(db, log); err != nil {
				log.Error("failed to close database connection", zap.Error(err))
			}
		}()

		// Run database migrations if enabled
		if cfg.Database.AutoMigrate {
			log.Info("running database migrations (auto_migrate: true)")
			if err := database.AutoMigrate(db, log); err != nil {
				log.Fatal("failed to run database migrations", zap.Error(err))
			}
		} else {
			log.Info("skipping database migrations (auto_migrate: false)")
		}

		// Seed initial data if enabled
		if cfg.Database.SeedData {
			log.Info("seeding database with initial data (seed_data: true)")
			if err := database.SeedData(db, log); err != nil {
				log.Fatal("failed to seed database", zap.Error(err))
			}
		}

		storage = postgres.New(db, log)
		checks["postgres"] = func(context.Context) error { return database.HealthCheck(db) }
	}

	// Redis нужен проекции и/или политике
	var rdb *redis.Client
	if cfg.Links.Projection == "redis" || cfg.Policy.Source == "redis" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatal("invalid redis url", zap.Error(err))
		}
		rdb = redis.NewClient(opts)
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error("failed to close redis client", zap.Error(err))
			}
		}()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn("redis is not reachable yet", zap.Error(err))
		}
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// Projection store
	var store projection.Store
	if cfg.Links.Projection == "redis" {
		store = projection.NewRedisStore(rdb, log, projection.WithKeyPrefix(cfg.Redis.KeyPrefix))
	} else {
		log.Warn("using in-memory projection store")
		store = projection.NewMemoryStore()
	}

	// Policy lookup
	var lookup policy.Lookup
	if cfg.Policy.Source == "redis" {
		lookup = policy.NewRedis(rdb, cfg.Policy.RedisPrefix, log)
	} else {
		lookup = policy.NewStatic(cfg.Policy)
	}

	// Side channels
	uploader := images.New(cfg.Images, log)
	if !uploader.Configured() {
		log.Info("image host is not configured, embedded images are rejected")
	}

	sink, err := analytics.NewSink(cfg.Events, log)
	if err != nil {
		log.Fatal("failed to create event sink", zap.Error(err))
	}
	events := analytics.NewProcessor(sink, log, analytics.ConfigFrom(cfg.Events))
	if err := events.Start(); err != nil {
		log.Fatal("failed to start event processor", zap.Error(err))
	}

	links := service.NewLinkService(storage, store, uploader, events, lookup, &cfg.Links, log)

	apiServer := httpHandler.NewServer(links, storage, checks, cfg.RateLimit, log)
	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	apiServer.StartBackground(bgCtx)

	httpServer := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      apiServer.SetupRoutes(),
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	log.Info("starting HTTP server", zap.String("address", cfg.HTTPServer.Address))

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down SLINK service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown HTTP server", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}
	stopBackground()

	// Дожидаемся отправки накопленных событий
	if err := events.Stop(); err != nil {
		log.Error("failed to stop event processor", zap.Error(err))
	}
}
