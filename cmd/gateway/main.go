// Package main runs the inference gateway: the HTTP boundary between the
// rest of the platform and remote embedding/reranking/chat backends,
// with per-model admission control and GPU pressure shedding.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/FishySoftware/semantic-explorer/engine/catalog"
	"github.com/FishySoftware/semantic-explorer/engine/gateway"
	"github.com/FishySoftware/semantic-explorer/engine/vectorstore"
	"github.com/FishySoftware/semantic-explorer/pkg/mid"
)

// Config holds all environment-based configuration.
type Config struct {
	Port             string
	PostgresDSN      string
	QdrantAddr       string
	CORSOrigin       string
	AdmissionTimeout time.Duration
	QueueCapacity    int
	GPUShedThreshold float64
	PreloadEmbedders string // comma-separated embedder ids to warm at startup
}

func loadConfig() Config {
	return Config{
		Port:             envOr("PORT", "8080"),
		PostgresDSN:      envOr("POSTGRES_DSN", "postgres://localhost/semantic_explorer?sslmode=disable"),
		QdrantAddr:       envOr("QDRANT_ADDR", "localhost:6334"),
		CORSOrigin:       envOr("CORS_ORIGIN", "*"),
		AdmissionTimeout: envOrDuration("ADMISSION_TIMEOUT", 10*time.Second),
		QueueCapacity:    envOrInt("QUEUE_CAPACITY", 4),
		GPUShedThreshold: envOrFloat("GPU_SHED_THRESHOLD_PCT", 0),
		PreloadEmbedders: envOr("PRELOAD_EMBEDDER_IDS", ""),
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

func envOrFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
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
		logger.Error("gateway exited with error", "err", err)
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

	vectors := vectorstore.NewRegistry()
	defer vectors.Close()

	registry := gateway.NewStaticRegistry(nil, nil)
	cache := gateway.NewModelCache(gateway.NoopCodec{})

	pressure := gateway.NewPressureMonitor(nil, 2*time.Second)
	go pressure.Run(ctx)

	embedderIDs := parseIDList(cfg.PreloadEmbedders)
	gateway.Preload(ctx, cache, cat, embedderIDs, registry, logger)

	gwCfg := gateway.DefaultConfig()
	gwCfg.AdmissionTimeout = cfg.AdmissionTimeout
	gwCfg.QueueCapacity = cfg.QueueCapacity
	gwCfg.GPUShedThreshold = cfg.GPUShedThreshold
	gwCfg.QdrantAddr = cfg.QdrantAddr

	gw := gateway.New(gwCfg, cat, registry, cache, vectors, pressure, logger)

	handler := mid.Chain(gw.Handler(),
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("semantic-explorer-gateway"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func parseIDList(raw string) []int64 {
	if raw == "" {
		return nil
	}
	var ids []int64
	var cur int64
	has := false
	for _, c := range raw {
		if c >= '0' && c <= '9' {
			cur = cur*10 + int64(c-'0')
			has = true
			continue
		}
		if has {
			ids = append(ids, cur)
			cur, has = 0, false
		}
	}
	if has {
		ids = append(ids, cur)
	}
	return ids
}
