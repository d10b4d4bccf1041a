package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"feedsync/internal/config"
	"feedsync/internal/fetcher"
	"feedsync/internal/publisher"
	"feedsync/internal/scheduler"
	"feedsync/internal/service"
	"feedsync/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single batch sync and exit")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize stores
	sourceStore := postgres.NewSourceStore(db)
	articleStore := postgres.NewArticleStore(db)
	txManager := postgres.NewTransactionManager(db)

	// RabbitMQ is optional; without it articles are only persisted.
	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	}

	fetchClient := fetcher.New(fetcher.Config{
		Timeout:     cfg.Fetch.Timeout,
		UserAgent:   cfg.Fetch.UserAgent,
		MaxBodySize: cfg.Fetch.MaxBodySize,
	}, logger)

	syncService := service.NewSyncService(
		sourceStore,
		articleStore,
		fetchClient,
		txManager,
		pub,
		logger,
		cfg.Sync,
	)

	batchService := service.NewBatchService(syncService, sourceStore, logger, cfg.Sync)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting feed syncer",
		"owner", cfg.Sync.OwnerID,
		"interval", cfg.Sync.Interval,
		"workers", cfg.Sync.Workers,
	)

	if *once {
		result, err := batchService.SyncAll(ctx, cfg.Sync.OwnerID, nil)
		if err != nil {
			logger.Error("batch sync failed", "error", err)
			os.Exit(1)
		}
		logger.Info("batch sync complete",
			"sources", result.TotalSources,
			"successful", result.Successful,
			"failed", result.Failed,
			"new_articles", result.NewArticles,
		)
		return
	}

	sched := scheduler.NewScheduler(batchService, cfg.Sync.OwnerID, cfg.Sync.Interval, logger)

	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
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
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
