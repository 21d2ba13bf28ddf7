// Package main runs the reconciler loop: on a fixed interval it
// retries pending_batches rows that are due for redelivery and sweeps
// terminal rows past the retention window.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/FishySoftware/semantic-explorer/engine/catalog"
	"github.com/FishySoftware/semantic-explorer/engine/reconciler"
	"github.com/FishySoftware/semantic-explorer/pkg/bus"
	"github.com/FishySoftware/semantic-explorer/pkg/metrics"
)

type Config struct {
	PostgresDSN string
	NatsURL     string
	MetricsPort int
	Interval    time.Duration
}

func loadConfig() Config {
	return Config{
		PostgresDSN: envOr("POSTGRES_DSN", "postgres://localhost/semantic_explorer?sslmode=disable"),
		NatsURL:     envOr("NATS_URL", "nats://localhost:4222"),
		MetricsPort: envOrInt("METRICS_PORT", 9095),
		Interval:    envOrDuration("RECONCILE_INTERVAL", 30*time.Second),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()
	if err := run(cfg, logger); err != nil {
		logger.Error("reconciler exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer cat.Close()

	natsBus, err := bus.Connect(cfg.NatsURL)
	if err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}
	defer natsBus.Close()

	reg := metrics.New()
	runCounter := reg.Counter("reconciler_runs_total", "reconcile passes completed")
	reg.ServeAsync(cfg.MetricsPort)

	r := reconciler.New(cat, natsBus, logger)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	logger.Info("reconciler starting", "interval", cfg.Interval)
	for {
		if err := r.RunOnce(ctx); err != nil {
			logger.Error("reconciler: run failed", "error", err)
		}
		runCounter.Inc()

		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			return nil
		case <-ticker.C:
		}
	}
}
