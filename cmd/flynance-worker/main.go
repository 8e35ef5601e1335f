package main

import (
	"context"
	"errors"
	"time"

	"flynance/internal/amqp"
	"flynance/internal/cli"
	"flynance/internal/log"
	"flynance/internal/worker"
)

const usageReportInterval = 10 * time.Minute

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	boot := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.NewLogger(cfg.LogLevel, cfg.LogFormat, log.ComponentWorker)

	if cfg.AMQPURL == "" {
		cli.Fatal(logger, "Worker needs a broker", errors.New("AMQP_URL is not set"))
	}

	logger.Info("Starting flynance-worker", "db_path", cfg.SQLiteDBPath, "queue", cfg.AMQPQueue)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath, cli.NewResolver(cfg))

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		_ = repo.Close()
		cli.Fatal(logger, "Failed to initialize AMQP client", err)
	}
	amqpClient.WithLogger(logger.WithComponent(log.ComponentAMQP).Logger)

	recorder := worker.NewEventRecorder(repo)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := amqpClient.Close(); err != nil {
			logger.Warn("AMQP close error", "error", err)
		}
	})

	go recorder.RunUsageReporter(ctx, usageReportInterval)

	logger.Info("Consuming filter events")
	if err := amqpClient.ConsumeWithReconnect(ctx, recorder.HandleFilterApplied); err != nil && !errors.Is(err, context.Canceled) {
		_ = amqpClient.Close()
		_ = repo.Close()
		cli.Fatal(logger, "Consumer stopped", err)
	}

	cli.WaitForShutdown(ctx, done)

	recorded, duplicates := recorder.Counts()
	if err := repo.Close(); err != nil {
		logger.Warn("SQLite close error", "error", err)
	}
	logger.Info("Worker stopped gracefully", "recorded", recorded, "duplicates", duplicates)
}
