package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tribegate/tribegate/internal/api"
	"github.com/tribegate/tribegate/internal/app"
	"github.com/tribegate/tribegate/internal/audit"
	"github.com/tribegate/tribegate/internal/auth"
	"github.com/tribegate/tribegate/internal/challenge"
	"github.com/tribegate/tribegate/internal/config"
	"github.com/tribegate/tribegate/internal/logger"
	"github.com/tribegate/tribegate/internal/middleware"
	"github.com/tribegate/tribegate/internal/sigverify"
	"github.com/tribegate/tribegate/internal/storage"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx := context.Background()

	// Initialize database
	store, err := storage.Open(ctx, storage.Dialect(cfg.DatabaseDriver), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	slog.Info("connected to database", "driver", cfg.DatabaseDriver)

	// SQLite is the embedded deployment and always migrates itself.
	if cfg.AutoMigrate || cfg.DatabaseDriver == config.DriverSQLite {
		n, err := store.Migrate(ctx, storage.MigrateUp, 0)
		if err != nil {
			slog.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("applied migrations", "count", n)
	}

	// Challenge caches: Redis when configured, process memory otherwise
	var (
		nonces, states, authCodes challenge.Cache
		redisClient               redis.UniversalClient
	)
	if cfg.RedisAddr != "" {
		client, err := challenge.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		redisClient = client

		nonces = challenge.NewRedisCache(client, "nonce:", cfg.NonceTTL)
		states = challenge.NewRedisCache(client, "oauth_state:", cfg.StateTTL)
		authCodes = challenge.NewRedisCache(client, "auth_code:", cfg.AuthCodeTTL)
		slog.Info("using redis for challenges", "addr", cfg.RedisAddr)
	} else {
		nonces = challenge.NewMemoryCache(cfg.NonceTTL)
		states = challenge.NewMemoryCache(cfg.StateTTL)
		authCodes = challenge.NewMemoryCache(cfg.AuthCodeTTL)
		slog.Warn("REDIS_ADDR not set; challenges are kept in memory and lost on restart")
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	audit.RegisterMetrics(reg)
	middleware.RegisterMetrics(reg)

	// Audit coordinator with privileged-action alerts
	notifiers := audit.MultiNotifier{audit.LogNotifier{}}
	if cfg.AlertWebhookURL != "" {
		notifiers = append(notifiers, audit.NewWebhookNotifier(cfg.AlertWebhookURL, &http.Client{Timeout: 5 * time.Second}))
	}
	coord := audit.NewCoordinator(store, notifiers)

	// Sessions and identity provider
	sessions, err := auth.NewSessionManager(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		slog.Error("failed to initialize sessions", "error", err)
		os.Exit(1)
	}
	discord := auth.NewDiscordProvider(cfg.DiscordClientID, cfg.DiscordClientSecret, cfg.DiscordRedirectURI)

	// Initialize application services
	authz := app.NewTribeAuthorizer(store, cfg.SuperAdminIDs)
	accounts := app.NewAccountService(store, coord, authz, cfg.InitialAdminID, cfg.IdentityHashPepper)
	services := api.Services{
		Login:    app.NewLoginService(discord, accounts, authz, sessions, states, authCodes),
		Accounts: accounts,
		Wallets:  app.NewWalletService(store, nonces, sigverify.New(), coord, authz),
		Roster:   app.NewRosterService(store, coord, authz),
		Notes:    app.NewNoteService(store, coord, authz),
		Admin:    app.NewAdminService(store, coord, authz),
	}

	healthCheck, err := api.NewHealth(version, store, redisClient)
	if err != nil {
		slog.Error("failed to initialize health checks", "error", err)
		os.Exit(1)
	}

	slog.Info("initialized services", "version", version, "super_admins", len(cfg.SuperAdminIDs))

	// Initialize API server
	server := api.NewServer(cfg, services, sessions, healthCheck, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		slog.Error("server error", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		slog.Info("received shutdown signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("error during shutdown", "error", err)
			slog.Warn("forcing shutdown")
		}

		// Let in-flight privileged-action alerts finish.
		coord.Wait()

		slog.Info("server stopped")
	}
}
