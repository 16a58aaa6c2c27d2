package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/app"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/config"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/logutils"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		logutils.Log.WithError(err).Fatal("Failed to initialize configuration")
	}

	if cfg.LogFile != "" {
		if err := logutils.EnableFileOutput(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups); err != nil {
			logutils.Log.WithError(err).Warn("Failed to open log file, logging to stderr only")
		}
	}
	logutils.InitLogger(cfg.LogLevel)
	logutils.Log.WithFields(map[string]any{
		"version":    Version,
		"build_time": BuildTime,
	}).Info("Starting media fetcher")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logutils.Log.WithError(err).Fatal("Failed to initialize application")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() { serverErr <- a.Run() }()

	select {
	case sig := <-sigChan:
		logutils.Log.WithField("signal", sig.String()).Info("Received shutdown signal, starting graceful shutdown...")
	case err := <-serverErr:
		if err != nil {
			logutils.Log.WithError(err).Error("API server failed")
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		logutils.Log.WithError(err).Warn("Shutdown finished with errors")
	}
	logutils.Log.Info("Media fetcher shutdown complete")
}
