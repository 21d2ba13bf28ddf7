//go:build integration

package bus

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

func busURL() string {
	if v := os.Getenv("NATS_URL"); v != "" {
		return v
	}
	return "nats://127.0.0.1:4222"
}

func connectBus(t *testing.T) *Bus {
	t.Helper()
	b, err := Connect(busURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

func TestBus_PublishFetchAck(t *testing.T) {
	b := connectBus(t)
	ctx := context.Background()

	stream := fmt.Sprintf("TEST_%d", time.Now().UnixNano())
	subject := stream + ".jobs"
	if err := b.EnsureStream(stream, []string{subject}); err != nil {
		t.Fatalf("EnsureStream: %v", err)
	}

	consumer, err := b.Subscribe(ConsumerOpts{
		Stream:     stream,
		Durable:    "worker-1",
		FilterSubj: subject,
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	type job struct{ N int }
	if err := b.Publish(ctx, subject, "job-1", job{N: 7}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	// Re-publishing the same msgID must be deduplicated.
	if err := b.Publish(ctx, subject, "job-1", job{N: 7}); err != nil {
		t.Fatalf("Publish (dup): %v", err)
	}

	msgs, err := consumer.Fetch(ctx, 5)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 deduplicated message, got %d", len(msgs))
	}
	if err := Ack(msgs[0]); err != nil {
		t.Fatalf("Ack: %v", err)
	}

	pending, ackPending, err := consumer.Depth()
	if err != nil {
		t.Fatalf("Depth: %v", err)
	}
	if pending != 0 || ackPending != 0 {
		t.Fatalf("expected depth 0/0 after ack, got %d/%d", pending, ackPending)
	}
}

func TestBus_Nak(t *testing.T) {
	b := connectBus(t)
	ctx := context.Background()

	stream := fmt.Sprintf("TESTNAK_%d", time.Now().UnixNano())
	subject := stream + ".jobs"
	if err := b.EnsureStream(stream, []string{subject}); err != nil {
		t.Fatalf("EnsureStream: %v", err)
	}
	consumer, err := b.Subscribe(ConsumerOpts{Stream: stream, Durable: "worker-1", FilterSubj: subject})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := b.Publish(ctx, subject, "job-nak", struct{ N int }{1}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	msgs, err := consumer.Fetch(ctx, 1)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("Fetch: %v (%d msgs)", err, len(msgs))
	}
	if err := Nak(msgs[0], 10*time.Millisecond); err != nil {
		t.Fatalf("Nak: %v", err)
	}

	redelivered, err := consumer.Fetch(ctx, 1)
	if err != nil || len(redelivered) != 1 {
		t.Fatalf("expected redelivery after nak: %v (%d msgs)", err, len(redelivered))
	}
	Ack(redelivered[0])
}
