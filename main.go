package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"locate-gateway/internal/common/logging"
	"locate-gateway/internal/config"
	"locate-gateway/internal/executor"
	"locate-gateway/internal/handlers"
	"locate-gateway/internal/ratelimit"
	"locate-gateway/internal/scheduler"
	"locate-gateway/internal/server"
	"locate-gateway/internal/token"
	"locate-gateway/internal/upstream"
)

func main() {
	godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	os.Setenv("LOG_LEVEL", cfg.LogLevel)
	logging.InitGlobalLogger()
	defer logging.MustSync()
	logger := logging.GetGlobalLogger()

	// Token store
	store, err := newStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize token store: %v", err)
	}
	defer store.Close()

	// Local call budget, enforced inside the client on every attempt
	limiter, err := ratelimit.NewLimiter(ratelimit.Config{
		Enabled:  cfg.RateLimitEnabled,
		Budget:   cfg.RateLimitBudget,
		Window:   cfg.RateLimitWindow,
		Blocking: cfg.RateLimitBlocking,
	})
	if err != nil {
		log.Fatalf("Failed to initialize rate limiter: %v", err)
	}

	// Upstream client
	client, err := upstream.NewClient(upstream.Config{
		BaseURL:       cfg.LocateBaseURL,
		AuthTimeout:   cfg.AuthTimeout,
		SearchTimeout: cfg.SearchTimeout,
	}, upstream.WithLogger(logger), upstream.WithGate(limiter))
	if err != nil {
		log.Fatalf("Failed to initialize upstream client: %v", err)
	}

	manager := token.NewManager(store, client, token.ManagerConfig{
		TokenTTL:      cfg.TokenTTL,
		RefreshBuffer: cfg.RefreshBuffer,
		AuthTimeout:   cfg.AuthTimeout,
	}, logger)

	exec := executor.New(manager, client, logger)

	// Periodic cleanup sweep
	sched, err := scheduler.New(scheduler.Config{
		Interval: cfg.CleanupInterval,
		Grace:    cfg.CleanupGrace,
	}, manager.CleanupExpired, logger)
	if err != nil {
		log.Fatalf("Failed to initialize cleanup scheduler: %v", err)
	}
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start cleanup scheduler: %v", err)
	}
	defer sched.Stop()

	h := handlers.New(manager, store, exec, client, limiter, sched, logger)
	router := server.NewRouter(h, cfg.APIKey)

	srv := server.New(router, cfg.Port)
	errCh := srv.Start()
	logger.Info("server started",
		logging.String("port", cfg.Port),
		logging.String("store_backend", cfg.StoreBackend))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server failed", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("server exited")
}

// newStore builds the configured token store backend.
func newStore(cfg *config.Config) (token.Store, error) {
	switch cfg.StoreBackend {
	case "sqlite":
		return token.NewSQLiteStore(cfg.SQLitePath)
	case "postgres", "postgresql":
		return token.NewPostgresStore(cfg.PostgresURL)
	case "redis":
		return token.NewRedisStore(token.RedisConfig{
			URL:      cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return token.NewMemoryStore(), nil
	}
}
