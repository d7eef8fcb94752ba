// Package main provides the REST server for Inkwell.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/inkwell-go/internal/config"
	"github.com/raphaelgruber/inkwell-go/internal/db"
	"github.com/raphaelgruber/inkwell-go/internal/llm"
	"github.com/raphaelgruber/inkwell-go/internal/metrics"
	"github.com/raphaelgruber/inkwell-go/internal/pipeline"
	"github.com/raphaelgruber/inkwell-go/internal/retry"
	"github.com/raphaelgruber/inkwell-go/internal/search"
	"github.com/raphaelgruber/inkwell-go/internal/server"
	"github.com/raphaelgruber/inkwell-go/internal/service"
)

const sweepInterval = 10 * time.Minute

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all task state on startup (testing only)")
	flag.Parse()

	cfg := config.Load()

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()

	logger.Info("starting inkwell-server", "port", cfg.ServerPort)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dbClient, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		cancel()
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := dbClient.InitSchema(ctx); err != nil {
		cancel()
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	if *wipeDB || os.Getenv("INKWELL_WIPE_DB") == "true" {
		if err := dbClient.WipeData(ctx); err != nil {
			cancel()
			logger.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
		logger.Warn("wiped all task state")
	}
	cancel()
	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	model, err := llm.NewModel(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to create LLM model", "error", err)
		os.Exit(1)
	}

	searcher, err := search.NewTavilyClient(cfg.TavilyAPIKey, 5)
	if err != nil {
		logger.Error("failed to create search client", "error", err)
		os.Exit(1)
	}

	policy := retry.DefaultPolicy()
	policy.Retryable = pipeline.Transient

	collector := metrics.NewCollector()
	model.SetCollector(collector)

	stages := pipeline.WithRetry(pipeline.StagesFromModel(model), policy)
	provider := pipeline.TimedProvider(searcher, collector)

	researcher := pipeline.NewResearcher(provider, policy, cfg.SourceCharBudget)
	writer := pipeline.NewWriter(stages, researcher)
	announcer := pipeline.NewAnnouncer(pipeline.WithRetryComposer(model, policy), stages.Drafter, stages.Grader)

	defaults := pipeline.Config{
		MaxSearchDepth:     cfg.MaxSearchDepth,
		NumberOfQueries:    cfg.NumberOfQueries,
		SectionConcurrency: cfg.SectionConcurrency,
	}
	manager := service.NewManager(dbClient, writer, announcer, defaults, cfg.TaskRetention, collector)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go manager.SweepLoop(ctx, sweepInterval)

	srv := server.New(manager, cfg.ServerPort, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
