package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/snapdrop/internal/config"
	"github.com/dharsanguruparan/snapdrop/internal/database"
	"github.com/dharsanguruparan/snapdrop/internal/logging"
	"github.com/dharsanguruparan/snapdrop/internal/repository"
	"github.com/dharsanguruparan/snapdrop/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "journal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateJournal(); err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("journal requires SNAPDROP_DATABASE_URL")
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL, cfg.JournalWorkers)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	repo := repository.NewUploadRepository(pool)

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.JournalWorkers,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Warn("journal task failed", "type", task.Type(), "permanent", worker.IsPermanent(err), "error", err)
		}),
	})
	processor := worker.NewProcessor(repo, logger)

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	logger.Info("journal worker started", "redis", cfg.RedisAddr, "concurrency", cfg.JournalWorkers)
	if err := server.Run(processor.Handler()); err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}
	return nil
}
