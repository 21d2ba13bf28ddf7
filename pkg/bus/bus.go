// Package bus wraps NATS JetStream as the durable, at-least-once delivery
// substrate for the transform pipeline. It is the only package that talks
// to nats.JetStreamContext directly — everything above it (scanner,
// workers, listener) deals in Publish/Consumer only.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// MsgIDHeader is the JetStream deduplication header: two publishes with
// the same value within the stream's duplicate window are collapsed into
// one stored message.
const MsgIDHeader = "Nats-Msg-Id"

// Bus owns a JetStream context bound to one underlying *nats.Conn.
type Bus struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// Connect dials NATS at url and returns a Bus backed by its JetStream API.
func Connect(url string, opts ...nats.Option) (*Bus, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("bus: connect %s: %w", url, err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("bus: jetstream context: %w", err)
	}
	return &Bus{nc: nc, js: js}, nil
}

// Close closes the underlying connection without draining it.
func (b *Bus) Close() {
	b.nc.Close()
}

// Conn exposes the raw *nats.Conn for components that still need plain
// (non-JetStream) NATS, such as the listener's status fan-out.
func (b *Bus) Conn() *nats.Conn { return b.nc }

// EnsureStream creates the named stream over subjects if it does not
// already exist, with a work-queue retention policy: once every consumer
// has acked a message it is discarded, so the scanner's dispatch and the
// worker's ack form the only durable queue.
func (b *Bus) EnsureStream(name string, subjects []string) error {
	_, err := b.js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if err != nats.ErrStreamNotFound {
		return fmt.Errorf("bus: stream info %s: %w", name, err)
	}
	_, err = b.js.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  subjects,
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("bus: add stream %s: %w", name, err)
	}
	return nil
}

// Publish serializes v and publishes it to subject with msgID set as the
// JetStream dedup key, so a scanner retrying after a crash never double
// enqueues the same batch. Trace context is injected into headers.
func (b *Bus) Publish(ctx context.Context, subject, msgID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("bus: marshal: %w", err)
	}
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set(MsgIDHeader, msgID)
	injectSpan(ctx, msg)
	_, err = b.js.PublishMsg(msg)
	if err != nil {
		return fmt.Errorf("bus: publish %s: %w", subject, err)
	}
	return nil
}

// PublishRaw publishes already-serialized data, used by the reconciler to
// redispatch a pending_batches row's stored payload verbatim instead of
// round-tripping it through another JSON marshal.
func (b *Bus) PublishRaw(ctx context.Context, subject, msgID string, data []byte) error {
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set(MsgIDHeader, msgID)
	injectSpan(ctx, msg)
	_, err := b.js.PublishMsg(msg)
	if err != nil {
		return fmt.Errorf("bus: publish raw %s: %w", subject, err)
	}
	return nil
}

// Consumer is a durable, pull-based work-queue subscription.
type Consumer struct {
	js      nats.JetStreamContext
	sub     *nats.Subscription
	stream  string
	durable string
}

// ConsumerOpts configures a durable pull consumer.
type ConsumerOpts struct {
	Stream      string
	Durable     string
	FilterSubj  string
	AckWait     time.Duration
	MaxDeliver  int
	MaxAckPending int
}

// Subscribe creates (or attaches to) a durable pull consumer.
func (b *Bus) Subscribe(opts ConsumerOpts) (*Consumer, error) {
	if opts.AckWait == 0 {
		opts.AckWait = 30 * time.Second
	}
	if opts.MaxDeliver == 0 {
		opts.MaxDeliver = 1 << 20 // effectively unbounded; reconciler owns retry ceilings
	}
	sub, err := b.js.PullSubscribe(opts.FilterSubj, opts.Durable,
		nats.BindStream(opts.Stream),
		nats.ManualAck(),
		nats.AckWait(opts.AckWait),
		nats.MaxDeliver(opts.MaxDeliver),
		nats.MaxAckPending(opts.MaxAckPending),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: pull subscribe %s/%s: %w", opts.Stream, opts.Durable, err)
	}
	return &Consumer{js: b.js, sub: sub, stream: opts.Stream, durable: opts.Durable}, nil
}

// Fetch pulls up to batch messages, blocking until at least one arrives
// or ctx is done.
func (c *Consumer) Fetch(ctx context.Context, batch int) ([]*nats.Msg, error) {
	msgs, err := c.sub.Fetch(batch, nats.Context(ctx))
	if err != nil && err != nats.ErrTimeout && ctx.Err() == nil {
		return nil, fmt.Errorf("bus: fetch: %w", err)
	}
	return msgs, nil
}

// Ack acknowledges successful processing of msg.
func Ack(msg *nats.Msg) error {
	return msg.Ack()
}

// Nak requests redelivery of msg after delay, used for KindTransient /
// KindPressure failures that should be retried by JetStream itself.
func Nak(msg *nats.Msg, delay time.Duration) error {
	return msg.NakWithDelay(delay)
}

// Term permanently removes msg from redelivery, used for KindPermanent /
// KindPoison failures that a retry can never fix.
func Term(msg *nats.Msg) error {
	return msg.Term()
}

// Depth reports the consumer's pending (not yet delivered) and
// ack-pending (delivered, awaiting ack) message counts; the scanner's
// backpressure check reads the pending count.
func (c *Consumer) Depth() (pending int64, ackPending int, err error) {
	info, err := c.js.ConsumerInfo(c.stream, c.durable)
	if err != nil {
		return 0, 0, fmt.Errorf("bus: consumer info %s/%s: %w", c.stream, c.durable, err)
	}
	return int64(info.NumPending), info.NumAckPending, nil
}

// injectSpan is a small helper kept for symmetry with natsutil's Subscribe;
// most callers go through natsutil.Subscribe-style helpers for plain
// (non-JetStream) pub/sub such as SSE status fan-out.
func injectSpan(ctx context.Context, msg *nats.Msg) {
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
}

type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}
func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}
func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}
