package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/VGachet/tapedit-server/internal/cleanup"
	"github.com/VGachet/tapedit-server/internal/config"
	"github.com/VGachet/tapedit-server/internal/handlers"
	"github.com/VGachet/tapedit-server/internal/jobs"
	"github.com/VGachet/tapedit-server/internal/metrics"
	"github.com/VGachet/tapedit-server/internal/transcoder"

	"github.com/mattn/go-isatty"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(os.Stdout, cfg.SlogLevel())
	slog.SetDefault(logger)
	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)

	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		logger.Error("failed to create temp dir", "dir", cfg.TempDir, "error", err)
		os.Exit(1)
	}

	engine := transcoder.NewService(logger, cfg.FFmpegPath, cfg.JobTimeout.Duration)
	if !engine.Available() {
		logger.Warn("ffmpeg not found; conversions will fail", "path", cfg.FFmpegPath)
	}
	limiter := jobs.NewLimiter(cfg.MaxConcurrentJobs, cfg.QueueTimeout.Duration)
	svc := jobs.NewService(logger, jobs.NewRegistry(), limiter, engine, cfg.CompletedJobTTL.Duration)
	app := handlers.NewApp(logger, cfg, svc, engine, version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reaper := cleanup.NewReaper(logger, cfg.TempDir, cfg.CleanupInterval.Duration, cfg.FileMaxAge.Duration)
	if cfg.FileMaxAge.Duration > 0 {
		reaper.Sweep(time.Now())
	}
	reaper.Start(ctx)

	// Responses stream whole videos after long conversions, so there is no
	// write timeout.
	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("server started",
			"addr", srv.Addr,
			"version", version,
			"temp_dir", cfg.TempDir,
			"engine_slots", limiter.Size(),
			"max_file_size_mb", cfg.MaxFileSizeMB,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown timed out", "error", err, "running_conversions", engine.Running())
		engine.Shutdown()

		// Killed runs still have to return through their handlers to delete
		// their temp files.
		drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := app.Drain(drainCtx); err != nil {
			logger.Error("conversions did not finish cleanup before exit", "error", err)
		}
		drainCancel()
		_ = srv.Close()
	}
	logger.Info("server stopped")
}

// newLogger logs JSON, or text when out is an interactive terminal.
func newLogger(out *os.File, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if fd := out.Fd(); isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return slog.New(slog.NewTextHandler(out, opts))
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}
