// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/olegiv/reservo/internal/config"
	"github.com/olegiv/reservo/internal/handler"
	"github.com/olegiv/reservo/internal/logging"
	"github.com/olegiv/reservo/internal/scheduler"
	"github.com/olegiv/reservo/internal/service"
	"github.com/olegiv/reservo/internal/store"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("reservo %s (%s, built %s)\n", appVersion, appGitCommit, appBuildTime)
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := store.Migrate(db); err != nil {
		return err
	}

	queries := store.New(db)

	// Audit writes that fail are reported to a fallback sink; operators can
	// silence it when another agent already tails stderr.
	fallbackOut := io.Writer(os.Stderr)
	if !cfg.AuditLogToStderr {
		fallbackOut = io.Discard
	}
	recorder := service.NewRecorderWithFallback(queries, slog.New(slog.NewTextHandler(fallbackOut, nil)))

	// Application logs at WARN and above are teed into the audit log.
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	logger := slog.New(logging.NewAuditHandler(baseHandler, recorder))
	slog.SetDefault(logger)

	queryService := service.NewQueryService(queries)
	maintainer := service.NewMaintainer(queries, recorder, queryService, service.DefaultPolicySet(), logger)

	sched := scheduler.New(maintainer, cfg.MaintenanceSchedule, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	logsHandler := handler.NewLogsHandler(queryService, logger)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(handler.RequestLogger(recorder))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Route("/admin/api/logs", func(r chi.Router) {
		r.Get("/", logsHandler.List)
		r.Get("/stats", logsHandler.Stats)
		r.Get("/export", logsHandler.Export)
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", cfg.ServerAddr(), "version", appVersion)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
