// Package main runs the result listener: it drains worker results off
// the results stream, applies them to the catalog's batch and stats
// rows, advances dataset watermarks, and fans out status changes over
// plain NATS pub/sub for the gateway's SSE stream.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/FishySoftware/semantic-explorer/engine/catalog"
	"github.com/FishySoftware/semantic-explorer/engine/domain"
	"github.com/FishySoftware/semantic-explorer/engine/listener"
	"github.com/FishySoftware/semantic-explorer/pkg/bus"
	"github.com/FishySoftware/semantic-explorer/pkg/metrics"
)

type Config struct {
	PostgresDSN string
	NatsURL     string
	MetricsPort int
}

func loadConfig() Config {
	return Config{
		PostgresDSN: envOr("POSTGRES_DSN", "postgres://localhost/semantic_explorer?sslmode=disable"),
		NatsURL:     envOr("NATS_URL", "nats://localhost:4222"),
		MetricsPort: envOrInt("METRICS_PORT", 9094),
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

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()
	if err := run(cfg, logger); err != nil {
		logger.Error("listener exited with error", "err", err)
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

	consumers := make(map[string]*bus.Consumer, 3)
	for _, kind := range []domain.BatchType{domain.BatchCollection, domain.BatchDataset, domain.BatchVisualization} {
		c, err := natsBus.Subscribe(bus.ConsumerOpts{
			Stream:     bus.ResultStream,
			Durable:    "listener-" + string(kind),
			FilterSubj: bus.ResultSubject(string(kind)),
		})
		if err != nil {
			return fmt.Errorf("subscribe %s result consumer: %w", kind, err)
		}
		consumers[string(kind)] = c
	}

	reg := metrics.New()
	reg.ServeAsync(cfg.MetricsPort)

	l := listener.New(cat, natsBus, consumers, logger)

	logger.Info("listener starting")
	if err := l.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("shutdown signal received")
	return nil
}
