package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/FishySoftware/semantic-explorer/engine/domain"
	"github.com/FishySoftware/semantic-explorer/pkg/bus"
	"github.com/FishySoftware/semantic-explorer/pkg/resilience"
)

// Handler processes one decoded job and returns the Result to publish
// back to the listener. A returned error is classified via KindOf/
// Classify to decide the harness's ack/nak/term outcome.
type Handler func(ctx context.Context, payload []byte) (Result, error)

// Harness is the common subscribe/semaphore/ack/nak/term loop shared by
// all three job kinds, grounded on the teacher's ingest.StartConsumer
// retry/DLQ pattern but generalized to JetStream pull consumers instead
// of core NATS subscriptions.
type Harness struct {
	Bus        *bus.Bus
	Consumer   *bus.Consumer
	Kind       string
	Sem        *resilience.Semaphore
	FetchBatch int
	FetchWait  time.Duration
	Handle     Handler
	Log        *slog.Logger
}

// NewHarness wires a Harness with sane defaults for fetch batch size and
// poll interval.
func NewHarness(b *bus.Bus, consumer *bus.Consumer, kind string, sem *resilience.Semaphore, handle Handler, log *slog.Logger) *Harness {
	if log == nil {
		log = slog.Default()
	}
	return &Harness{
		Bus: b, Consumer: consumer, Kind: kind, Sem: sem,
		FetchBatch: 16, FetchWait: 2 * time.Second,
		Handle: handle, Log: log,
	}
}

// Run pulls messages until ctx is cancelled, dispatching each to Handle
// behind the semaphore so no more than its capacity run concurrently.
func (h *Harness) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fetchCtx, cancel := context.WithTimeout(ctx, h.FetchWait)
		msgs, err := h.Consumer.Fetch(fetchCtx, h.FetchBatch)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			h.Log.Warn("worker: fetch failed", "kind", h.Kind, "error", err)
			continue
		}

		for _, msg := range msgs {
			if err := h.Sem.Acquire(ctx); err != nil {
				return ctx.Err()
			}
			wg.Add(1)
			go func(m *nats.Msg) {
				defer wg.Done()
				defer h.Sem.Release()
				h.process(ctx, m)
			}(msg)
		}
	}
}

func (h *Harness) process(ctx context.Context, msg *nats.Msg) {
	result, err := h.Handle(ctx, msg.Data)
	if err != nil {
		h.onFailure(msg, result, err)
		return
	}

	result.ProcessedAt = time.Now().UTC()
	result.Success = true
	if perr := h.publishResult(ctx, result); perr != nil {
		h.Log.Error("worker: publish result failed", "kind", h.Kind, "error", perr)
	}
	if aerr := bus.Ack(msg); aerr != nil {
		h.Log.Warn("worker: ack failed", "kind", h.Kind, "error", aerr)
	}
}

func (h *Harness) onFailure(msg *nats.Msg, result Result, err error) {
	classified := classify(h.Kind, err)
	kind := domain.KindOf(classified)

	result.Success = false
	result.ErrorMessage = err.Error()
	result.ErrorKind = kind.String()
	result.ProcessedAt = time.Now().UTC()

	if perr := h.publishResult(context.Background(), result); perr != nil {
		h.Log.Error("worker: publish failure result failed", "kind", h.Kind, "error", perr)
	}

	switch {
	case kind.Retryable():
		delay := backoffFor(msg)
		if nerr := bus.Nak(msg, delay); nerr != nil {
			h.Log.Warn("worker: nak failed", "kind", h.Kind, "error", nerr)
		}
	default:
		h.Log.Error("worker: terminal failure", "kind", h.Kind, "error", err, "classified_kind", kind.String())
		if terr := bus.Term(msg); terr != nil {
			h.Log.Warn("worker: term failed", "kind", h.Kind, "error", terr)
		}
	}
}

func (h *Harness) publishResult(ctx context.Context, result Result) error {
	subject := resultSubjectFor(h.Kind)
	return h.Bus.Publish(ctx, subject, result.BatchKey+":"+result.ProcessedAt.Format(time.RFC3339Nano), result)
}

func resultSubjectFor(kind string) string {
	return fmt.Sprintf("worker.result.%s", kind)
}

// backoffFor derives a redelivery delay from JetStream's own delivery
// counter so a message that has already been retried several times backs
// off further, capped at one minute per attempt.
func backoffFor(msg *nats.Msg) time.Duration {
	meta, err := msg.Metadata()
	if err != nil {
		return 5 * time.Second
	}
	delay := time.Duration(meta.NumDelivered) * 5 * time.Second
	if delay > time.Minute {
		delay = time.Minute
	}
	return delay
}

// decode is a small helper every Handler uses to unmarshal its typed job.
func decode[T any](payload []byte) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		var zero T
		return zero, fmt.Errorf("worker: decode job: %w", err)
	}
	return v, nil
}
