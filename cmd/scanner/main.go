// Package main runs the scanner loop: on a fixed interval it looks for
// outstanding work across every enabled transform and dispatches one
// batch per unit of work onto the work stream.
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
	"github.com/FishySoftware/semantic-explorer/engine/domain"
	"github.com/FishySoftware/semantic-explorer/engine/scanner"
	"github.com/FishySoftware/semantic-explorer/pkg/bus"
	"github.com/FishySoftware/semantic-explorer/pkg/metrics"
	"github.com/FishySoftware/semantic-explorer/pkg/objectstore"
)

// Config holds all environment-based configuration.
type Config struct {
	PostgresDSN  string
	NatsURL      string
	S3Bucket     string
	S3Region     string
	S3Endpoint   string
	MetricsPort  int
	ScanInterval time.Duration
}

func loadConfig() Config {
	return Config{
		PostgresDSN:  envOr("POSTGRES_DSN", "postgres://localhost/semantic_explorer?sslmode=disable"),
		NatsURL:      envOr("NATS_URL", "nats://localhost:4222"),
		S3Bucket:     envOr("S3_BUCKET", "semantic-explorer"),
		S3Region:     envOr("S3_REGION", "us-east-1"),
		S3Endpoint:   envOr("S3_ENDPOINT", ""),
		MetricsPort:  envOrInt("METRICS_PORT", 9090),
		ScanInterval: envOrDuration("SCAN_INTERVAL", 10*time.Second),
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
		logger.Error("scanner exited with error", "err", err)
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

	if err := natsBus.EnsureStream(bus.WorkStream, bus.JobSubjects()); err != nil {
		return fmt.Errorf("ensure work stream: %w", err)
	}
	if err := natsBus.EnsureStream(bus.ResultStream, bus.ResultSubjects()); err != nil {
		return fmt.Errorf("ensure result stream: %w", err)
	}

	objects, err := objectstore.New(ctx, objectstore.Config{
		Bucket:         cfg.S3Bucket,
		Region:         cfg.S3Region,
		Endpoint:       cfg.S3Endpoint,
		ForcePathStyle: cfg.S3Endpoint != "",
	})
	if err != nil {
		return fmt.Errorf("open object store: %w", err)
	}

	consumers, err := scannerConsumers(natsBus)
	if err != nil {
		return fmt.Errorf("subscribe scanner consumers: %w", err)
	}

	reg := metrics.New()
	scanCounter := reg.Counter("scanner_scans_total", "scan passes completed")
	scanErrors := reg.Counter("scanner_errors_total", "scan passes that returned an error")
	reg.ServeAsync(cfg.MetricsPort)

	s := scanner.New(cat, natsBus, objects, consumers, logger)

	ticker := time.NewTicker(cfg.ScanInterval)
	defer ticker.Stop()

	logger.Info("scanner starting", "interval", cfg.ScanInterval)
	for {
		if err := s.ScanOnce(ctx); err != nil {
			scanErrors.Inc()
			logger.Error("scanner: scan pass failed", "error", err)
		}
		scanCounter.Inc()

		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			return nil
		case <-ticker.C:
		}
	}
}

func scannerConsumers(b *bus.Bus) (map[string]*bus.Consumer, error) {
	consumers := make(map[string]*bus.Consumer, 3)
	for _, kind := range []domain.BatchType{domain.BatchCollection, domain.BatchDataset, domain.BatchVisualization} {
		c, err := b.Subscribe(bus.ConsumerOpts{
			Stream:     bus.WorkStream,
			Durable:    "scanner-depth-" + string(kind),
			FilterSubj: bus.JobSubject(string(kind)),
		})
		if err != nil {
			return nil, fmt.Errorf("subscribe %s depth consumer: %w", kind, err)
		}
		consumers[string(kind)] = c
	}
	return consumers, nil
}
