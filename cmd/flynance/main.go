package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"flynance/internal/amqp"
	"flynance/internal/backend"
	"flynance/internal/cli"
	apphttp "flynance/internal/http"
	"flynance/internal/log"
	"flynance/internal/services"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	boot := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.NewLogger(cfg.LogLevel, cfg.LogFormat, log.ComponentApp)
	resolver := cli.NewResolver(cfg)

	backendCfg, err := backend.FromAppConfig(cfg, resolver)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	src, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).
		CreateBackend(context.Background(), backendCfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize data backend", err, "backend", cfg.DataBackend)
	}

	svc := services.NewTransactionService(src.Backend, services.Options{
		CacheSize:    cfg.CacheSize,
		CacheTTL:     cfg.CacheTTL,
		FetchTimeout: cfg.FetchTimeout,
		Resolver:     resolver,
		Logger:       logger.Logger,
	})

	// Filter analytics are optional: without a broker applies are only logged.
	var (
		publisher  amqp.Publisher
		amqpClient *amqp.Client
	)
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, filter events disabled", "error", err)
		} else {
			amqpClient.WithLogger(logger.WithComponent(log.ComponentAMQP).Logger)
			publisher = amqpClient
			logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange)
		}
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr:           ":" + cfg.Port,
		AllowedOrigins: cfg.AllowedOrigins,
		TrustedProxies: cfg.TrustedProxies,
		RateLimitRPM:   cfg.RateLimitRPM,
		Sessions: apphttp.SessionConfig{
			TTL:         cfg.SessionTTL,
			MaxSessions: cfg.MaxSessions,
			Secure:      cfg.SecureCookies,
		},
	}, apphttp.Dependencies{
		Transactions: svc,
		Resolver:     resolver,
		Publisher:    publisher,
		Logger:       logger,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", "error", err)
			}
		}
		if err := src.Close(); err != nil {
			logger.Warn("Backend close error", "error", err)
		}
	})

	// SIGHUP drops cached listings so upstream edits show up immediately.
	cli.OnReload(ctx, logger, func() {
		svc.Invalidate()
		if r, ok := src.Backend.(interface{ InvalidateRowCache() }); ok {
			r.InvalidateRowCache()
		}
	})

	logger.Info("Starting flynance server", cli.Describe(cfg)...)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cli.Fatal(logger, "Server error", err, "port", cfg.Port)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
