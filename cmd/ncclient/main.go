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

	"github.com/ncmcp/ncclient/internal/api"
	"github.com/ncmcp/ncclient/internal/config"
	"github.com/ncmcp/ncclient/nextcloud"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, err := nextcloud.New(cfg.Client(logger))
	if err != nil {
		logger.Error("failed to create nextcloud client", "error", err)
		os.Exit(1)
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if caps, err := nc.Capabilities(checkCtx); err != nil {
		logger.Warn("could not reach nextcloud", "host", cfg.Nextcloud.Host, "error", err)
	} else {
		logger.Info("connected to nextcloud", "host", cfg.Nextcloud.Host, "version", caps.Version.String)
	}
	cancel()

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.NewServer(nc, logger).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
