package resilience

import (
	"context"
	"errors"
)

var ErrNoCapacity = errors.New("no capacity available")

// Semaphore is a counting admission-control gate. The inference gateway
// holds one per model id (ModelQueue), so it caps in-flight calls per
// model, not across all models; each worker binary holds one per process.
type Semaphore struct {
	slots chan struct{}
}

// NewSemaphore creates a Semaphore with the given number of permits.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &Semaphore{slots: make(chan struct{}, capacity)}
}

// TryAcquire acquires a permit without blocking, returning false if none
// are free.
func (s *Semaphore) TryAcquire() bool {
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Acquire blocks until a permit is free or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a permit to the pool.
func (s *Semaphore) Release() {
	select {
	case <-s.slots:
	default:
		// Release without a matching Acquire is a caller bug; ignore
		// rather than panic so a double-release can't crash the gateway.
	}
}

// InUse reports the number of permits currently held.
func (s *Semaphore) InUse() int { return len(s.slots) }

// Capacity reports the total number of permits.
func (s *Semaphore) Capacity() int { return cap(s.slots) }

// Call runs f while holding a permit, blocking if none are free and
// releasing it when f returns. If ctx is cancelled while waiting,
// ErrNoCapacity's sibling — ctx.Err() — is returned and f does not run.
func (s *Semaphore) Call(ctx context.Context, f func(context.Context) error) error {
	if err := s.Acquire(ctx); err != nil {
		return err
	}
	defer s.Release()
	return f(ctx)
}

// TryCall runs f only if a permit is immediately available, otherwise
// returns ErrNoCapacity without blocking — used on the gateway's
// fast-reject path once a model's queue is already full.
func (s *Semaphore) TryCall(ctx context.Context, f func(context.Context) error) error {
	if !s.TryAcquire() {
		return ErrNoCapacity
	}
	defer s.Release()
	return f(ctx)
}
