// Package reconciler retries batches whose pending_batches row was
// written but never marked published, because the scanner's publish
// failed. Rows a worker reported as failed are in the failed state and
// are not retried here. It is the only
// component that re-reads pending_batches directly; everything else
// treats the work stream as the source of truth for in-flight jobs.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/FishySoftware/semantic-explorer/engine/domain"
	"github.com/FishySoftware/semantic-explorer/engine/catalog"
	"github.com/FishySoftware/semantic-explorer/pkg/bus"
)

// baseBackoff and maxBackoff bound the exponential retry schedule:
// min(30 * 2^retry_count, 3600) seconds.
const (
	baseBackoffSeconds = 30
	maxBackoffSeconds  = 3600
)

// Reconciler retries due pending_batches rows and sweeps terminal ones
// past the retention window.
type Reconciler struct {
	Catalog         catalog.Store
	Bus             *bus.Bus
	BatchLimit      int
	RetentionWindow time.Duration
	Log             *slog.Logger
}

// New constructs a Reconciler with sane defaults.
func New(cat catalog.Store, b *bus.Bus, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		Catalog: cat, Bus: b, BatchLimit: 200,
		RetentionWindow: 7 * 24 * time.Hour, Log: log,
	}
}

// RunOnce retries every due batch and then runs the housekeeping sweep.
// Intended to run on a short interval (cmd/reconciler's main loop).
func (r *Reconciler) RunOnce(ctx context.Context) error {
	if err := r.retryDue(ctx); err != nil {
		return fmt.Errorf("reconciler: retry pass: %w", err)
	}
	n, err := r.Catalog.DeleteOlderThan(ctx, time.Now().Add(-r.RetentionWindow))
	if err != nil {
		return fmt.Errorf("reconciler: gc pass: %w", err)
	}
	if n > 0 {
		r.Log.Info("reconciler: swept terminal batches", "count", n)
	}
	return nil
}

func (r *Reconciler) retryDue(ctx context.Context) error {
	batches, err := r.Catalog.SelectPendingForRetry(ctx, r.BatchLimit)
	if err != nil {
		return fmt.Errorf("select pending: %w", err)
	}

	for _, b := range batches {
		if err := r.retryOne(ctx, b); err != nil {
			r.Log.Error("reconciler: retry failed", "batch_id", b.ID, "batch_key", b.BatchKey, "error", err)
		}
	}
	return nil
}

func (r *Reconciler) retryOne(ctx context.Context, b domain.Batch) error {
	if b.RetryCount >= domain.MaxRetries {
		if err := r.Catalog.FailBatch(ctx, b.ID, "exceeded max retries"); err != nil {
			return fmt.Errorf("fail batch %d: %w", b.ID, err)
		}
		_, err := r.Catalog.UpdateStats(ctx, func(s domain.TransformStats) domain.TransformStats {
			s.FailedBatches++
			return s
		}, b.TransformID, b.EmbedderID)
		return err
	}

	subject := bus.JobSubject(string(b.BatchType))
	if err := r.Bus.PublishRaw(ctx, subject, b.BatchKey, b.Payload); err != nil {
		nextRetryAt := time.Now().Add(backoffFor(b.RetryCount))
		if ierr := r.Catalog.IncrementRetry(ctx, b.ID, nextRetryAt, err.Error()); ierr != nil {
			return fmt.Errorf("republish %s: %w (increment retry also failed: %v)", subject, err, ierr)
		}
		return fmt.Errorf("republish %s: %w", subject, err)
	}

	return r.Catalog.MarkBatchPublished(ctx, b.ID)
}

// backoffFor implements min(30 * 2^retry_count, 3600) seconds.
func backoffFor(retryCount int) time.Duration {
	seconds := float64(baseBackoffSeconds) * math.Pow(2, float64(retryCount))
	if seconds > maxBackoffSeconds {
		seconds = maxBackoffSeconds
	}
	return time.Duration(seconds) * time.Second
}
