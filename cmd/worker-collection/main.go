// Package main runs a Collection Transform worker: it pulls
// TransformFileJob messages off the work stream, extracts and chunks raw
// objects, and publishes the result back to the listener.
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
	"github.com/FishySoftware/semantic-explorer/engine/worker"
	"github.com/FishySoftware/semantic-explorer/pkg/bus"
	"github.com/FishySoftware/semantic-explorer/pkg/metrics"
	"github.com/FishySoftware/semantic-explorer/pkg/objectstore"
	"github.com/FishySoftware/semantic-explorer/pkg/resilience"
)

type Config struct {
	PostgresDSN string
	NatsURL     string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	MetricsPort int
	Concurrency int
}

func loadConfig() Config {
	return Config{
		PostgresDSN: envOr("POSTGRES_DSN", "postgres://localhost/semantic_explorer?sslmode=disable"),
		NatsURL:     envOr("NATS_URL", "nats://localhost:4222"),
		S3Bucket:    envOr("S3_BUCKET", "semantic-explorer"),
		S3Region:    envOr("S3_REGION", "us-east-1"),
		S3Endpoint:  envOr("S3_ENDPOINT", ""),
		MetricsPort: envOrInt("METRICS_PORT", 9091),
		Concurrency: envOrInt("WORKER_CONCURRENCY", 8),
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
		logger.Error("worker-collection exited with error", "err", err)
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

	objects, err := objectstore.New(ctx, objectstore.Config{
		Bucket:         cfg.S3Bucket,
		Region:         cfg.S3Region,
		Endpoint:       cfg.S3Endpoint,
		ForcePathStyle: cfg.S3Endpoint != "",
	})
	if err != nil {
		return fmt.Errorf("open object store: %w", err)
	}

	kind := string(domain.BatchCollection)
	consumer, err := natsBus.Subscribe(bus.ConsumerOpts{
		Stream:     bus.WorkStream,
		Durable:    "worker-" + kind,
		FilterSubj: bus.JobSubject(kind),
	})
	if err != nil {
		return fmt.Errorf("subscribe %s consumer: %w", kind, err)
	}

	reg := metrics.New()
	reg.ServeAsync(cfg.MetricsPort)

	handle := worker.NewCollectionHandler(worker.CollectionDeps{Objects: objects, Catalog: cat})
	sem := resilience.NewSemaphore(cfg.Concurrency)
	harness := worker.NewHarness(natsBus, consumer, kind, sem, handle, logger)

	logger.Info("worker-collection starting", "concurrency", cfg.Concurrency)
	if err := harness.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("shutdown signal received")
	return nil
}
