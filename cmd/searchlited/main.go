package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/searchlite/searchlite/internal/analytics"
	"github.com/searchlite/searchlite/internal/ingest"
	"github.com/searchlite/searchlite/internal/registry"
	"github.com/searchlite/searchlite/internal/server"
	"github.com/searchlite/searchlite/internal/server/cache"
	"github.com/searchlite/searchlite/pkg/config"
	"github.com/searchlite/searchlite/pkg/health"
	"github.com/searchlite/searchlite/pkg/kafka"
	"github.com/searchlite/searchlite/pkg/logger"
	"github.com/searchlite/searchlite/pkg/metrics"
	"github.com/searchlite/searchlite/pkg/postgres"
	pkgredis "github.com/searchlite/searchlite/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting searchlite", "port", cfg.Server.Port, "data_dir", cfg.Storage.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := registry.New(cfg.Storage.DataDir)
	if err != nil {
		slog.Error("failed to create registry", "error", err)
		os.Exit(1)
	}
	if err := reg.LoadAll(ctx); err != nil {
		slog.Error("failed to load collections", "error", err)
		os.Exit(1)
	}
	slog.Info("collections loaded", "count", reg.Len())

	m := metrics.New()
	checker := health.NewChecker()
	checker.Register("registry", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusOK,
			Message: fmt.Sprintf("%d collections", reg.Len()),
		}
	})

	opts := server.Options{}

	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, query caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			opts.Cache = cache.New(redisClient, cfg.Redis)
			slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
			checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
				if err := redisClient.Ping(ctx); err != nil {
					return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
				}
				return health.ComponentHealth{Status: health.StatusOK}
			})
		}
	}

	if cfg.Postgres.Enabled() {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, search analytics disabled", "error", err)
		} else {
			defer db.Close()
			recorder := analytics.NewRecorder(db, 10000)
			recorder.Start(ctx)
			defer recorder.Wait()
			opts.Recorder = recorder
			slog.Info("search analytics enabled", "host", cfg.Postgres.Host)
			checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
				if err := db.Ping(ctx); err != nil {
					return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
				}
				return health.ComponentHealth{Status: health.StatusOK}
			})
		}
	}

	if cfg.Kafka.Enabled() {
		consumer := ingest.New(reg, func(handler kafka.MessageHandler) *kafka.Consumer {
			return kafka.NewConsumer(cfg.Kafka, handler)
		}, cfg.Kafka.BatchSize)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("ingest consumer error", "error", err)
			}
		}()
		slog.Info("bulk ingestion enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	h := server.New(reg, checker, m, cfg.Search, opts)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(h, m, cfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		// Final save so batched ingestion and any missed writes land on disk.
		if err := reg.SaveAll(); err != nil {
			slog.Error("final save failed", "error", err)
		}
	}()

	slog.Info("http server listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("searchlite stopped")
}
