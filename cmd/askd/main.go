// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// askd serves the question answering API.
//
// Usage:
//
//	askd [-config ask.yaml] [-addr :8088] [-debug] [-log-json] [-log-level info]
//
// Configuration is the built-in defaults, overlaid by -config (or
// ASK_CONFIG), then environment overrides. The overlay file is watched and
// reloaded while the server runs. API keys are read from the environment
// into sealed memory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/awnumar/memguard"

	"github.com/AleutianAI/AleutianAsk/services/ask"
	"github.com/AleutianAI/AleutianAsk/services/ask/bootstrap"
	"github.com/AleutianAI/AleutianAsk/services/ask/config"
	"github.com/AleutianAI/AleutianAsk/services/ask/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Overlay config file (defaults to $ASK_CONFIG)")
	addr := flag.String("addr", "", "Listen address (overrides server.addr)")
	debug := flag.Bool("debug", false, "Enable gin debug mode and request logging")
	logJSON := flag.Bool("log-json", false, "Log as JSON instead of text")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	logger := newLogger(*logJSON, *logLevel)
	slog.SetDefault(logger)

	err := run(*configPath, *addr, *debug, logger)
	memguard.Purge()
	if err != nil {
		logger.Error("askd failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(configPath, addr string, debug bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if configPath == "" {
		configPath = os.Getenv("ASK_CONFIG")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	src := config.NewSource(cfg)

	if configPath != "" {
		w := config.NewWatcher(configPath, src, config.Load, logger)
		if err := w.Start(ctx); err != nil {
			logger.Warn("config watcher disabled", slog.String("path", configPath), slog.String("error", err.Error()))
		} else {
			defer w.Stop()
		}
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracer shutdown", slog.String("error", err.Error()))
		}
	}()

	secrets := config.LoadSecrets(os.LookupEnv)
	app, err := bootstrap.New(bootstrap.Options{Source: src, Secrets: secrets, Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("failed to close embedding store", slog.String("error", err.Error()))
		}
	}()

	handlers := ask.NewHandlers(app.Orchestrator, app.Catalog, app.Cache, app.Skipped, logger)
	router := ask.NewRouter(handlers, ask.RouterConfig{ServiceName: cfg.Telemetry.ServiceName, Debug: debug})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting Aleutian Ask server",
			slog.String("address", srv.Addr),
			slog.Any("tools", app.Catalog.IDs()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down Aleutian Ask server")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(json bool, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if json {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
