// Package main wires together the enrichment service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/openweb-labs/enricher/internal/api"
	"github.com/openweb-labs/enricher/internal/clock/system"
	"github.com/openweb-labs/enricher/internal/config"
	"github.com/openweb-labs/enricher/internal/engine"
	"github.com/openweb-labs/enricher/internal/enrich"
	collyfetcher "github.com/openweb-labs/enricher/internal/fetcher/colly"
	"github.com/openweb-labs/enricher/internal/id/uuid"
	"github.com/openweb-labs/enricher/internal/logging"
	"github.com/openweb-labs/enricher/internal/metrics"
	"github.com/openweb-labs/enricher/internal/search/brave"
	storefs "github.com/openweb-labs/enricher/internal/store/fs"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Best effort: local development keeps the API key in a .env file.
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storefs.New(cfg.Storage.JobsDir)
	if err != nil {
		logger.Fatal("job store init failed", zap.Error(err))
	}

	searchFactory := brave.NewFactory(brave.Config{
		APIKey:   cfg.Search.APIKey,
		Endpoint: cfg.Search.Endpoint,
		RPS:      cfg.Search.RPS,
		Burst:    cfg.Search.Burst,
		Timeout:  cfg.SearchTimeout(),
	}, logger.Named("search"))
	if cfg.Search.APIKey == "" {
		logger.Warn("no search API key configured, queries will return no results")
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Enrich.UserAgent,
	})

	eng := engine.New(
		store,
		engine.SearchFactoryFunc(func(budget *enrich.Budget) enrich.SearchClient {
			return searchFactory.ForJob(budget)
		}),
		fetcher,
		system.New(),
		uuid.New(),
		engine.Config{
			FetchConcurrency:  cfg.Enrich.FetchConcurrency,
			RecordConcurrency: cfg.Enrich.RecordConcurrency,
		},
		logger.Named("engine"),
	)

	apiServer := api.NewServer(eng, store, cfg.JobDefaults(), logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := eng.Wait(shutdownCtx); err != nil {
		logger.Warn("jobs still running at shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
