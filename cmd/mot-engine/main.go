package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/terra-clan/mot-engine/internal/api"
	"github.com/terra-clan/mot-engine/internal/catalog"
	"github.com/terra-clan/mot-engine/internal/cleanup"
	"github.com/terra-clan/mot-engine/internal/config"
	"github.com/terra-clan/mot-engine/internal/game"
	"github.com/terra-clan/mot-engine/internal/live"
	"github.com/terra-clan/mot-engine/internal/metrics"
	"github.com/terra-clan/mot-engine/internal/models"
	"github.com/terra-clan/mot-engine/internal/pathstore"
	"github.com/terra-clan/mot-engine/internal/services"
	"github.com/terra-clan/mot-engine/internal/storage"
)

func main() {
	// A missing .env is fine; the environment wins either way
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.Level,
	}))
	slog.SetDefault(logger)

	slog.Info("starting mot-engine",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"database", cfg.Database.Driver,
		"path_store", cfg.PathStore.Backend,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// Load edition content
	editions := catalog.NewLoader()
	if err := editions.LoadFromDir(cfg.Content.Dir); err != nil {
		slog.Error("failed to load editions", "dir", cfg.Content.Dir, "error", err)
		os.Exit(1)
	}
	if editions.Get(cfg.Content.DefaultEdition) == nil {
		slog.Error("default edition not found", "edition", cfg.Content.DefaultEdition)
		os.Exit(1)
	}

	health := services.NewRegistry(2 * time.Second)
	hub := live.NewHub()

	// Initialize database repository; postgres also carries cross-instance notifications
	var (
		repo     storage.Repository
		notifier live.Notifier = hub
		bridge   *live.PGBridge
	)
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pg, err := storage.NewPostgresRepository(initCtx, storage.PostgresConfig{
			DSN:          cfg.Database.DSN,
			MaxOpenConns: int32(cfg.Database.MaxOpenConns),
			MaxIdleConns: int32(cfg.Database.MaxIdleConns),
			MaxLifetime:  cfg.Database.MaxLifetime,
		})
		if err != nil {
			slog.Error("failed to create database repository", "error", err)
			os.Exit(1)
		}

		slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
		if err := storage.RunMigrations(initCtx, pg.Pool(), storage.MigrationSource(cfg.Database.MigrationsDir)); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		bridge, err = live.NewPGBridge(cfg.Database.DSN, hub)
		if err != nil {
			slog.Error("failed to start leaderboard bridge", "error", err)
			os.Exit(1)
		}
		health.Register("bridge", bridge)
		repo, notifier = pg, bridge
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Database.SQLitePath), 0o755); err != nil {
			slog.Error("failed to create database directory", "error", err)
			os.Exit(1)
		}
		repo, err = storage.NewSQLiteRepository(initCtx, cfg.Database.SQLitePath)
		if err != nil {
			slog.Error("failed to create database repository", "error", err)
			os.Exit(1)
		}
	}
	health.Register("database", services.CheckerFunc(repo.Ping))
	slog.Info("database connected successfully")

	// Initialize path store
	var paths pathstore.Store
	switch cfg.PathStore.Backend {
	case config.PathStoreRedis:
		client, err := pathstore.NewRedisClient(initCtx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			slog.Error("failed to create path store", "error", err)
			os.Exit(1)
		}
		paths = pathstore.NewRedisStore(client, cfg.PathStore.TTL)
	default:
		paths = pathstore.NewMemoryStore()
	}
	health.Register("paths", paths)

	// Bootstrap the facilitator key
	if cfg.Auth.AdminAPIKey != "" {
		if err := repo.EnsureClient(initCtx, "admin", cfg.Auth.AdminAPIKey, []string{models.PermAll}); err != nil {
			slog.Error("failed to register admin client", "error", err)
			os.Exit(1)
		}
		slog.Info("admin client ready", "api_key", models.MaskKey(cfg.Auth.AdminAPIKey))
	} else {
		slog.Warn("ADMIN_API_KEY not set; facilitator routes accept only existing clients")
	}

	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		slog.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	manager := game.NewManager(editions, paths, repo, notifier, m, game.Options{
		DefaultEdition:   cfg.Content.DefaultEdition,
		SessionTTL:       cfg.Sessions.TTL,
		CodeLength:       cfg.Sessions.CodeLength,
		LeaderboardLimit: cfg.Leaderboard.Limit,
		CacheSize:        cfg.Leaderboard.CacheSize,
		CacheTTL:         cfg.Leaderboard.CacheTTL,
	})
	hub.OnPublish(func(string) { manager.InvalidateBoards() })

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start background workers
	cleanup.NewCleaner(manager, cfg.Cleanup.Interval, cfg.PathStore.TTL).Start(ctx)
	if bridge != nil {
		go bridge.Run(ctx)
	}

	// Setup HTTP server
	server := api.NewServer(cfg.Server, manager, hub, health, repo, m)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if bridge != nil {
		if err := bridge.Close(); err != nil {
			slog.Error("bridge close error", "error", err)
		}
	}
	if closer, ok := paths.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			slog.Error("path store close error", "error", err)
		}
	}
	if err := repo.Close(); err != nil {
		slog.Error("repository close error", "error", err)
	}

	slog.Info("mot-engine stopped")
}
