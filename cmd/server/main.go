package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/server/api"
	"storefront/internal/server/catalog"
	"storefront/internal/server/config"
	"storefront/internal/server/database"
	"storefront/internal/server/service"
)

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg := config.Load()
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"assets_prefix", cfg.AssetsPrefix,
		"default_max_uses", cfg.DefaultMaxUses,
		"default_token_ttl", cfg.DefaultTokenTTL,
		"memory_store", cfg.MemoryStore,
	)

	if cfg.AdminKeyHash == "" {
		slog.Warn("ADMIN_KEY_HASH not set; admin routes will refuse all requests")
	}

	// Select store backend. The memory store is for single-node
	// development only; shared state across instances needs Postgres.
	ctx := context.Background()
	var (
		orders database.OrderStore
		tokens database.TokenStore
		db     *database.DB
	)
	if cfg.MemoryStore {
		mem := database.NewMemoryStore()
		orders, tokens = mem, mem
		slog.Info("using in-memory store")
	} else {
		var err error
		db, err = database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("database migrations complete")

		repo := database.NewRepository(db)
		orders, tokens = repo, repo
	}

	// Initialize catalog and token service
	cat := catalog.Default()
	svc := service.NewTokenService(orders, tokens, cat, cfg)

	// Start token sweeper
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	sweeper := service.NewSweeper(tokens, cfg.SweepInterval)
	sweeper.Start(sweepCtx)

	// Setup HTTP router
	handler := api.NewHandler(svc, orders, tokens, cat, db)
	e := api.SetupRouter(handler, cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr, "base_url", cfg.BaseURL)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop sweeper
	sweepCancel()
	sweeper.Wait()

	slog.Info("server exited cleanly")
}
