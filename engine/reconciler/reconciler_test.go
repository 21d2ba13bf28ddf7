package reconciler

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/FishySoftware/semantic-explorer/engine/catalog"
	"github.com/FishySoftware/semantic-explorer/engine/domain"
	"github.com/FishySoftware/semantic-explorer/pkg/bus"
)

func startTestBus(t *testing.T) *bus.Bus {
	t.Helper()
	opts := &natsserver.Options{Port: -1, JetStream: true, StoreDir: t.TempDir()}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	b, err := bus.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		b.Close()
		srv.Shutdown()
	})
	return b
}

func TestBackoffFor_Monotonic(t *testing.T) {
	prev := time.Duration(0)
	for i := 0; i < 10; i++ {
		d := backoffFor(i)
		if d < prev {
			t.Fatalf("expected non-decreasing backoff, got %v after %v at retry %d", d, prev, i)
		}
		prev = d
	}
}

func TestBackoffFor_CapsAtMax(t *testing.T) {
	d := backoffFor(20)
	if d != maxBackoffSeconds*time.Second {
		t.Fatalf("expected capped at %ds, got %v", maxBackoffSeconds, d)
	}
}

func TestBackoffFor_BaseCase(t *testing.T) {
	if got := backoffFor(0); got != baseBackoffSeconds*time.Second {
		t.Fatalf("expected %ds at retry 0, got %v", baseBackoffSeconds, got)
	}
}

func TestRetryOne_ExceedsMaxRetriesFailsBatch(t *testing.T) {
	cat := catalog.NewMemory()
	ctx := context.Background()

	b, err := cat.CreateBatch(ctx, domain.Batch{
		BatchType: domain.BatchDataset, TransformID: 1, EmbedderID: 2,
		BatchKey: "k1", Payload: []byte("{}"), RetryCount: domain.MaxRetries,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	r := New(cat, nil, nil)
	if err := r.retryOne(ctx, b); err != nil {
		t.Fatalf("retryOne: %v", err)
	}

	due, err := cat.SelectPendingForRetry(ctx, 10)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected batch past max retries to be failed, got %+v", due)
	}

	stats, err := cat.GetStats(ctx, 1, 2)
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.FailedBatches != 1 {
		t.Fatalf("expected 1 failed batch counted, got %d", stats.FailedBatches)
	}
}

func TestRunOnce_SweepsOldTerminalBatches(t *testing.T) {
	cat := catalog.NewMemory()
	ctx := context.Background()

	b, err := cat.CreateBatch(ctx, domain.Batch{BatchType: domain.BatchCollection, TransformID: 1, BatchKey: "k2", Payload: []byte("{}")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := cat.MarkBatchResult(ctx, b.BatchKey, true, ""); err != nil {
		t.Fatalf("mark result: %v", err)
	}

	r := New(cat, nil, nil)
	r.RetentionWindow = -time.Hour // anything created before "now + 1h" counts as old
	if err := r.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	due, err := cat.SelectPendingForRetry(ctx, 10)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("unexpected pending batches: %+v", due)
	}
	if n, err := cat.DeleteOlderThan(ctx, time.Now().Add(time.Hour)); err != nil || n != 0 {
		t.Fatalf("expected RunOnce to have swept the published batch, a second sweep removed %d (err %v)", n, err)
	}
}

func TestRetryOne_SuccessfulPublishMarksBatchPublished(t *testing.T) {
	b := startTestBus(t)
	if err := b.EnsureStream(bus.WorkStream, bus.JobSubjects()); err != nil {
		t.Fatalf("ensure stream: %v", err)
	}

	cat := catalog.NewMemory()
	ctx := context.Background()

	batch, err := cat.CreateBatch(ctx, domain.Batch{
		BatchType: domain.BatchDataset, TransformID: 1, EmbedderID: 2,
		BatchKey: "republish-ok", Payload: []byte("{}"), RetryCount: 1,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	r := New(cat, b, nil)
	if err := r.retryOne(ctx, batch); err != nil {
		t.Fatalf("retryOne: %v", err)
	}

	due, err := cat.SelectPendingForRetry(ctx, 10)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected successfully republished batch to leave pending state, got %+v", due)
	}
}

func TestRetryOne_FailedPublishIncrementsRetryCount(t *testing.T) {
	// No stream is declared for this bus, so PublishRaw fails with "no
	// stream matches subject", exercising retryOne's failure branch
	// without relying on a flaky dial timeout.
	b := startTestBus(t)

	cat := catalog.NewMemory()
	ctx := context.Background()

	batch, err := cat.CreateBatch(ctx, domain.Batch{
		BatchType: domain.BatchDataset, TransformID: 1, EmbedderID: 2,
		BatchKey: "republish-fail", Payload: []byte("{}"), RetryCount: 1,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	r := New(cat, b, nil)
	if err := r.retryOne(ctx, batch); err == nil {
		t.Fatal("expected retryOne to surface the publish error")
	}

	due, err := cat.SelectPendingForRetry(ctx, 10)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected batch to remain pending for retry, got %+v", due)
	}
	if due[0].RetryCount != 2 {
		t.Fatalf("expected retry_count incremented to 2, got %d", due[0].RetryCount)
	}
}
