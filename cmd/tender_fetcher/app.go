package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"tender_fetcher/internal/cache"
	"tender_fetcher/internal/config"
	"tender_fetcher/internal/fetch"
	"tender_fetcher/internal/metrics"
	"tender_fetcher/internal/publisher"
	"tender_fetcher/internal/service"
	"tender_fetcher/internal/source/portal"
	"tender_fetcher/internal/storage/postgres"
)

// app holds the shared wiring every subcommand starts from.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *sqlx.DB
	metrics *metrics.Metrics

	txManager *postgres.TransactionManager
	logs      *postgres.ProcessingLogStore
	runs      *postgres.RunStore
	snapshots *postgres.SnapshotStore
	changes   *postgres.ChangeStore
	jobs      *postgres.JobStore
	watchlist *postgres.WatchlistStore

	cache    *cache.Listing
	detector *service.Detector
	queue    *service.QueueService
	listing  *service.ListingService
}

func newApp(configPath string) (*app, error) {
	logger := setupLogger("info")

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return nil, err
	}
	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		logger.Error("failed to ping database", "error", err)
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Debug("connected to database")

	a := &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		metrics:   metrics.New(),
		txManager: postgres.NewTransactionManager(db),
		logs:      postgres.NewProcessingLogStore(db),
		runs:      postgres.NewRunStore(db),
		snapshots: postgres.NewSnapshotStore(db),
		changes:   postgres.NewChangeStore(db),
		jobs:      postgres.NewJobStore(db),
		watchlist: postgres.NewWatchlistStore(db),
		cache: cache.NewListing(cache.Config{
			TTL:        cfg.Cache.TTL,
			MaxEntries: cfg.Cache.MaxEntries,
		}, logger),
	}

	a.detector = service.NewDetector(a.snapshots, a.changes, logger)
	a.queue = service.NewQueueService(a.jobs, service.QueueConfig{
		StuckTimeout:    cfg.Analysis.StuckTimeout,
		DefaultEstimate: cfg.Analysis.DefaultEstimate,
	}, a.metrics, logger)
	a.listing = service.NewListingService(a.snapshots, a.cache, logger)

	return a, nil
}

// orchestrator builds the scrape pipeline. notifier may be nil.
func (a *app) orchestrator(notifier service.RunNotifier) *service.Orchestrator {
	client := fetch.New(fetch.Config{
		Timeout:        a.cfg.HTTP.Timeout,
		UserAgent:      a.cfg.HTTP.UserAgent,
		MaxIdleConns:   a.cfg.HTTP.MaxIdleConns,
		MaxAttempts:    a.cfg.HTTP.Retry.MaxAttempts,
		InitialBackoff: a.cfg.HTTP.Retry.InitialBackoff,
		MaxBackoff:     a.cfg.HTTP.Retry.MaxBackoff,
	}, a.metrics, a.logger)

	return service.NewOrchestrator(service.OrchestratorDeps{
		Resolver:  service.NewResolver(a.logs, a.logger),
		Source:    portal.New(client, a.cfg.Scraper.CategoryFilter, a.logger),
		Runs:      a.runs,
		Snapshots: a.snapshots,
		Detector:  a.detector,
		TxManager: a.txManager,
		Queue:     a.queue,
		FollowUp:  a.watchlist,
		Notifier:  notifier,
		Cache:     a.cache,
		Metrics:   a.metrics,
	}, service.OrchestratorConfig{Workers: a.cfg.Scraper.Workers}, a.logger)
}

func (a *app) connectPublisher() (*publisher.RabbitMQ, error) {
	rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
		URL:                a.cfg.RabbitMQ.URL,
		Exchange:           a.cfg.RabbitMQ.Exchange,
		AnalysisRoutingKey: a.cfg.RabbitMQ.AnalysisRoutingKey,
		AnalysisQueue:      a.cfg.RabbitMQ.AnalysisQueue,
		RunsRoutingKey:     a.cfg.RabbitMQ.RunsRoutingKey,
		RunsQueue:          a.cfg.RabbitMQ.RunsQueue,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	return rabbitMQ, nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(handler)
}
