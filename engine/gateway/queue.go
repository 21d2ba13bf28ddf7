package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/FishySoftware/semantic-explorer/pkg/resilience"
)

// ModelQueue admission-controls requests against one model id: a bounded
// FIFO wait slot backed by resilience.Semaphore, plus an EWMA estimate of
// how long a caller should expect to wait before its turn.
type ModelQueue struct {
	modelID string
	sem     *resilience.Semaphore

	mu          sync.Mutex
	ewmaLatency time.Duration
}

const ewmaAlpha = 0.2

// NewModelQueue creates a queue admitting up to capacity concurrent
// in-flight calls for modelID.
func NewModelQueue(modelID string, capacity int) *ModelQueue {
	return &ModelQueue{modelID: modelID, sem: resilience.NewSemaphore(capacity)}
}

// Depth reports current occupancy and total capacity, the two numbers
// the gateway's X-Queue-Depth / X-Queue-Capacity headers surface.
func (q *ModelQueue) Depth() (inUse, capacity int) {
	return q.sem.InUse(), q.sem.Capacity()
}

// EstimatedWait returns the EWMA of recent call latencies, scaled by how
// many calls are already in flight ahead of a new arrival (plus one for
// the arrival itself) — the basis for the X-Estimated-Wait-Ms header.
func (q *ModelQueue) EstimatedWait() time.Duration {
	q.mu.Lock()
	latency := q.ewmaLatency
	q.mu.Unlock()
	inUse, _ := q.Depth()
	return latency * time.Duration(inUse+1)
}

// Call admits f under the queue's admission deadline, falling back to
// ErrNoCapacity immediately once the deadline has already elapsed. The
// observed latency feeds back into the EWMA estimate.
func (q *ModelQueue) Call(ctx context.Context, admissionTimeout time.Duration, f func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	admitCtx := ctx
	var cancel context.CancelFunc
	if admissionTimeout > 0 {
		admitCtx, cancel = context.WithTimeout(ctx, admissionTimeout)
		defer cancel()
	}

	start := time.Now()
	err := q.sem.Call(admitCtx, f)
	if err == nil {
		q.observe(time.Since(start))
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return resilience.ErrNoCapacity
	}
	return err
}

func (q *ModelQueue) observe(d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ewmaLatency == 0 {
		q.ewmaLatency = d
		return
	}
	q.ewmaLatency = time.Duration(ewmaAlpha*float64(d) + (1-ewmaAlpha)*float64(q.ewmaLatency))
}

// QueueManager owns one ModelQueue per model id, created on first use.
type QueueManager struct {
	mu             sync.Mutex
	queues         map[string]*ModelQueue
	defaultCapacity int
}

// NewQueueManager creates a QueueManager that sizes new queues to
// defaultCapacity concurrent in-flight calls.
func NewQueueManager(defaultCapacity int) *QueueManager {
	if defaultCapacity <= 0 {
		defaultCapacity = 4
	}
	return &QueueManager{queues: make(map[string]*ModelQueue), defaultCapacity: defaultCapacity}
}

// For returns (creating if necessary) the queue for modelID.
func (m *QueueManager) For(modelID string) *ModelQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queues[modelID]; ok {
		return q
	}
	q := NewModelQueue(modelID, m.defaultCapacity)
	m.queues[modelID] = q
	return q
}

func modelKey(kind string, id int64) string {
	return fmt.Sprintf("%s:%d", kind, id)
}
