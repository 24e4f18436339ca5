package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/rembg-studio/internal/config"
	"github.com/MimeLyc/rembg-studio/internal/engine"
	"github.com/MimeLyc/rembg-studio/internal/httpapi"
	"github.com/MimeLyc/rembg-studio/internal/persistence"
	"github.com/MimeLyc/rembg-studio/internal/service"
	"github.com/MimeLyc/rembg-studio/pkg/file"
	"github.com/MimeLyc/rembg-studio/pkg/log"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found: %v", err)
	}

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}

	level := log.ParseLevel(cfg.System.LogLevel)
	if cfg.System.LogFile != "" {
		fileLogger, err := log.InitFileLogger(cfg.System.LogFile, level)
		if err != nil {
			log.Fatal("Failed to open log file: %v", err)
		}
		defer fileLogger.Close()
	} else {
		log.InitLogger(level)
	}

	settings := config.LoadRuntimeSettingsOrDefault(cfg.Storage.SettingsPath())
	cfg, err = config.NewFromEnv(config.WithRuntimeSettings(settings))
	if err != nil {
		log.Fatal("Failed to apply runtime settings: %v", err)
	}

	store, err := persistence.NewSQLiteStore(cfg.Storage.DBPath())
	if err != nil {
		log.Fatal("Failed to open job database: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if n, err := store.MarkInterrupted(ctx); err != nil {
		log.Error("Failed to mark interrupted jobs: %v", err)
	} else if n > 0 {
		log.Warn("Marked %d interrupted jobs as failed", n)
	}

	tmp := file.NewTempRegistry()
	client := engine.NewClient(cfg.Engine)
	orc := service.NewOrchestrator(cfg, client, store, tmp)
	if err := orc.Hydrate(ctx); err != nil {
		log.Fatal("Failed to load job history: %v", err)
	}

	cronRunner := cron.New()
	watch := service.NewWatchService(cfg.Watch, orc, cronRunner)
	if err := watch.Schedule(ctx); err != nil {
		log.Fatal("Failed to schedule watch service: %v", err)
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	srv := httpapi.NewServer(orc, httpapi.WithWatch(watch))
	errCh := make(chan error, 1)
	go func() {
		log.Info("API server listening on %s", cfg.System.HTTPAddr)
		errCh <- srv.ListenAndServe(cfg.System.HTTPAddr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error("API server stopped: %v", err)
	case sig := <-sigCh:
		log.Info("Received %s, shutting down", sig)
	}

	orc.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed: %v", err)
	}

	tmp.PurgeAll()
	log.Info("Shutdown complete")
}
