package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/scout/api"
	"github.com/use-agent/scout/engine"
	"github.com/use-agent/scout/scraper"
	"github.com/use-agent/scout/stream"
	"github.com/use-agent/scout/webhook"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address (default $SCOUT_HOST:$SCOUT_PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()
	logger.Info("scout starting",
		"mode", cfg.Server.Mode,
		"sites_file", cfg.Sites.Path,
		"plain_workers", cfg.Worker.PlainWorkers,
		"browser_workers", cfg.Worker.BrowserWorkers,
	)

	// ── 1. Site registry (hot-reloaded) ─────────────────────────────
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	go reg.Watch(ctx, cfg.Sites.ReloadInterval)

	// ── 2. Scraper (builds the evasion payload once) ────────────────
	sc, err := scraper.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init scraper: %w", err)
	}

	// ── 3. Delivery: sessions via the hub, callback URLs via webhook ─
	hub := stream.NewHub(cfg.Stream.BufferSize, cfg.Stream.PublishTimeout)
	hooks := webhook.NewPublisher(cfg.Stream.WebhookSecret, cfg.Stream.PublishTimeout, logger)
	publisher := stream.NewMux(hub, hooks)

	// ── 4. Worker pool ──────────────────────────────────────────────
	runner := engine.NewRunner(reg, sc, publisher, logger)
	pool := engine.NewPool(cfg.Worker, runner, reg, logger)

	// ── 5. Router & HTTP server ─────────────────────────────────────
	router := api.NewRouter(ctx, cfg, api.Deps{
		Sites:     reg,
		Queue:     pool,
		Hub:       hub,
		Logger:    logger,
		StartTime: time.Now(),
	})

	addr := listenAddr
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// ── 6. Graceful shutdown ────────────────────────────────────────
	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server forced shutdown", "error", err)
	} else {
		logger.Info("HTTP server drained gracefully")
	}

	// Units already queued finish; browser sessions tear themselves down.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Worker.UnitTimeout)
	defer drainCancel()
	if err := pool.Stop(drainCtx); err != nil {
		logger.Warn("worker pool did not drain", "error", err)
	}

	logger.Info("scout stopped")
	return nil
}
