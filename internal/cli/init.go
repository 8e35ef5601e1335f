// Package cli provides common CLI initialization utilities shared by
// cmd/flynance and cmd/flynance-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"flynance/internal/config"
	"flynance/internal/log"
	"flynance/internal/period"
	"flynance/internal/storage"
)

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// sets it as the default. An unknown level falls back to info.
func SetupLogger(component string) *log.Logger {
	return NewLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), component)
}

// NewLogger builds a logger and sets it as the default.
func NewLogger(level, format, component string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Component = component
	if format != "" {
		cfg.Format = format
	}
	lvl, err := log.ParseLevel(level)
	if err == nil {
		cfg.Level = lvl
	}
	logger := log.New(cfg)
	log.SetDefault(logger)
	if err != nil && level != "" {
		logger.Warn("Unknown log level, using default", "level", level)
	}
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Configuration load failed", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// NewResolver returns the period resolver for the configured timezone.
func NewResolver(cfg *config.Config) *period.Resolver {
	return period.New(cfg.Timezone)
}

// InitSQLite initializes a SQLite repository with the given path.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *log.Logger, dbPath string, r *period.Resolver) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath, r)
	if err != nil {
		logger.WithComponent(log.ComponentStorage).Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that is closed once cleanup has run.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	return gracefulShutdown(logger, timeout, cleanup, syscall.SIGINT, syscall.SIGTERM)
}

func gracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context), sigs ...os.Signal) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, sigs...)

	go func() {
		defer close(done)
		sig := <-sigChan
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received", "signal", sig.String(), log.FieldOperation, log.OpShutdown)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached", "timeout", timeout.String())
		}
	}()

	return ctx, done
}

// OnReload runs reload on every SIGHUP until ctx is done.
func OnReload(ctx context.Context, logger *log.Logger, reload func()) {
	onSignal(ctx, logger, reload, syscall.SIGHUP)
}

func onSignal(ctx context.Context, logger *log.Logger, fn func(), sigs ...os.Signal) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, sigs...)

	go func() {
		defer signal.Stop(sigChan)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigChan:
				logger.Info("Reload signal received", "signal", sig.String(), log.FieldOperation, log.OpReload)
				fn()
			}
		}
	}()
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}

// Fatal logs err and exits.
func Fatal(logger *log.Logger, msg string, err error, args ...any) {
	logger.Error(msg, append([]any{"error", err}, args...)...)
	os.Exit(1)
}

// Describe renders the non-secret configuration for the startup log.
func Describe(cfg *config.Config) []any {
	return []any{
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"timezone", cfg.Timezone,
		"amqp_enabled", cfg.AMQPURL != "",
		"cache_ttl", cfg.CacheTTL.String(),
		"session_ttl", cfg.SessionTTL.String(),
	}
}
