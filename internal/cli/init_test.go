package cli

import (
	"context"
	"log/slog"
	"syscall"
	"testing"
	"time"

	"flynance/internal/config"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger("debug", "json", "worker")
	if logger.Component() != "worker" {
		t.Fatalf("Component() = %q, want worker", logger.Component())
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should be enabled")
	}

	logger = NewLogger("loud", "", "app")
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("unknown level should fall back to info")
	}
}

func TestGracefulShutdown(t *testing.T) {
	logger := NewLogger("error", "text", "app")
	cleaned := make(chan struct{})

	ctx, done := gracefulShutdown(logger, time.Second, func(ctx context.Context) {
		if ctx.Err() != nil {
			t.Error("cleanup context should still be live")
		}
		close(cleaned)
	}, syscall.SIGUSR1)

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("kill: %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown did not finish")
	}
	select {
	case <-cleaned:
	default:
		t.Fatal("cleanup did not run")
	}
	if ctx.Err() == nil {
		t.Fatal("context should be cancelled")
	}
}

func TestOnSignalRunsUntilCancelled(t *testing.T) {
	logger := NewLogger("error", "text", "app")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ran := make(chan struct{}, 2)
	onSignal(ctx, logger, func() { ran <- struct{}{} }, syscall.SIGUSR2)

	for i := 0; i < 2; i++ {
		if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR2); err != nil {
			t.Fatalf("kill: %v", err)
		}
		select {
		case <-ran:
		case <-time.After(3 * time.Second):
			t.Fatalf("reload %d did not run", i+1)
		}
	}
}

func TestDescribe(t *testing.T) {
	cfg := config.Defaults()
	cfg.APIToken = "secret"
	fields := Describe(cfg)
	for _, f := range fields {
		if s, ok := f.(string); ok && s == "secret" {
			t.Fatal("Describe must not expose secrets")
		}
	}
	if len(fields)%2 != 0 {
		t.Fatalf("fields must be key/value pairs, got %d", len(fields))
	}
}
