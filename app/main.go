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

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/feed-aggregator/app/api"
	"github.com/lysyi3m/feed-aggregator/app/cfg"
	"github.com/lysyi3m/feed-aggregator/app/database"
	"github.com/lysyi3m/feed-aggregator/app/feed"
	"github.com/lysyi3m/feed-aggregator/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("Starting Feed Aggregator", "version", appCfg.Version, "port", appCfg.Port, "workers", appCfg.WorkerCount)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to connect to database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	configCache := feed.NewConfigCache(appCfg.FeedsDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load feed configurations", "dir", appCfg.FeedsDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Feed configurations loaded", "dir", appCfg.FeedsDir, "count", configCache.GetConfigCount())

	if appCfg.Encoding != "" {
		if _, err := feed.NewReencoder(appCfg.Encoding); err != nil {
			slog.Error("Unsupported encoding", "encoding", appCfg.Encoding, "error", err)
			os.Exit(1)
		}
	}

	feedRepo := database.NewFeedRepository(db)
	entryRepo := database.NewEntryRepository(db)

	pipeline := &tasks.Pipeline{
		Fetcher:    tasks.NewFetcher(&http.Client{Timeout: 60 * time.Second}, appCfg.UserAgent, appCfg.FetchRate),
		Parser:     feed.NewParser(),
		Normalizer: feed.NewNormalizer(appCfg.Encoding, feed.NewImageFinder(appCfg.RejectedImages...)),
		Extractor:  feed.NewContentExtractor(),
	}

	scheduler := tasks.NewScheduler(configCache, feedRepo, entryRepo, pipeline,
		appCfg.GetSchedulerInterval(), appCfg.WorkerCount)
	scheduler.Start()
	defer scheduler.Stop()

	generator := feed.NewGenerator(appCfg.BaseUrl, appCfg.Port, appCfg.Version)
	handler := api.NewHandler(configCache, feedRepo, entryRepo, generator, scheduler,
		appCfg.Version, appCfg.GetFeedCacheTTL())

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErr:
		slog.Error("HTTP server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Feed Aggregator stopped")
}
