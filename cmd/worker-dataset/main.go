// Package main runs a Dataset Transform worker: it pulls VectorEmbedJob
// messages off the work stream, embeds dataset-item chunks in
// provider-sized batches, and upserts the results into Qdrant.
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
	"github.com/FishySoftware/semantic-explorer/engine/gateway"
	"github.com/FishySoftware/semantic-explorer/engine/vectorstore"
	"github.com/FishySoftware/semantic-explorer/engine/worker"
	"github.com/FishySoftware/semantic-explorer/pkg/bus"
	"github.com/FishySoftware/semantic-explorer/pkg/metrics"
	"github.com/FishySoftware/semantic-explorer/pkg/resilience"
)

type Config struct {
	PostgresDSN string
	NatsURL     string
	QdrantAddr  string
	MetricsPort int
	Concurrency int
}

func loadConfig() Config {
	return Config{
		PostgresDSN: envOr("POSTGRES_DSN", "postgres://localhost/semantic_explorer?sslmode=disable"),
		NatsURL:     envOr("NATS_URL", "nats://localhost:4222"),
		QdrantAddr:  envOr("QDRANT_ADDR", "localhost:6334"),
		MetricsPort: envOrInt("METRICS_PORT", 9092),
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
		logger.Error("worker-dataset exited with error", "err", err)
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

	kind := string(domain.BatchDataset)
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

	cache := gateway.NewModelCache(gateway.NoopCodec{})
	deps := &worker.DatasetDeps{
		Catalog:    cat,
		Vectors:    vectorstore.NewRegistry(),
		QdrantAddr: cfg.QdrantAddr,
		Clients:    cache.Embedder,
	}
	handle := worker.NewDatasetHandler(deps)
	sem := resilience.NewSemaphore(cfg.Concurrency)
	harness := worker.NewHarness(natsBus, consumer, kind, sem, handle, logger)

	logger.Info("worker-dataset starting", "concurrency", cfg.Concurrency)
	if err := harness.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("shutdown signal received")
	return nil
}
