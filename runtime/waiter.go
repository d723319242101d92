package runtime

import (
	"inchat/domain"
	"inchat/errors"
	"inchat/observability"
	"sync"

	"github.com/google/uuid"
)

// Change is what a parked waiter is released with.
type Change[T any] struct {
	Record  domain.Stored[T]
	Deleted bool
	Err     error
}

// Waiter is a single-fire future bound to one identity. It receives at most
// one Change.
type Waiter[T any] struct {
	id uuid.UUID
	ch chan Change[T]
}

func (w *Waiter[T]) Done() <-chan Change[T] {
	return w.ch
}

func (w *Waiter[T]) ID() uuid.UUID {
	return w.id
}

type waiterSet[T any] map[*Waiter[T]]struct{}

// Waiters parks readers until the next committed version of an identity.
// It has its own lock, independent from any unit of work, so a parked
// reader never blocks writers.
type Waiters[T any] struct {
	mu      sync.Mutex
	waiting map[uuid.UUID]waiterSet[T]
	closed  bool
	metrics *observability.Metrics
}

func NewWaiters[T any](metrics *observability.Metrics) *Waiters[T] {
	return &Waiters[T]{
		waiting: make(map[uuid.UUID]waiterSet[T]),
		metrics: metrics,
	}
}

// Register parks a new waiter on id.
func (w *Waiters[T]) Register(id uuid.UUID) (*Waiter[T], error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, errors.ErrWaiterClosed
	}
	waiter := &Waiter[T]{id: id, ch: make(chan Change[T], 1)}
	if _, ok := w.waiting[id]; !ok {
		w.waiting[id] = make(waiterSet[T])
	}
	w.waiting[id][waiter] = struct{}{}
	w.metrics.PendingWaiters.Inc()
	return waiter, nil
}

// Cancel removes a waiter that gave up. Cancelling an already released
// waiter is a no-op.
func (w *Waiters[T]) Cancel(waiter *Waiter[T]) {
	w.mu.Lock()
	defer w.mu.Unlock()

	set, ok := w.waiting[waiter.id]
	if !ok {
		return
	}
	if _, ok = set[waiter]; !ok {
		return
	}
	delete(set, waiter)
	w.metrics.PendingWaiters.Dec()

	// No empty sets are left behind, the map only holds identities with
	// at least one parked reader.
	if len(set) == 0 {
		delete(w.waiting, waiter.id)
	}
}

// Notify releases every waiter parked on record's identity with the new
// version.
func (w *Waiters[T]) Notify(record domain.Stored[T]) {
	w.release(record.ID, Change[T]{Record: record})
}

// NotifyDeleted releases every waiter parked on id with a deletion.
func (w *Waiters[T]) NotifyDeleted(id uuid.UUID) {
	w.release(id, Change[T]{Deleted: true})
}

func (w *Waiters[T]) release(id uuid.UUID, change Change[T]) {
	w.mu.Lock()
	set := w.waiting[id]
	delete(w.waiting, id)
	w.mu.Unlock()

	for waiter := range set {
		waiter.ch <- change
	}
	if n := len(set); n > 0 {
		w.metrics.PendingWaiters.Sub(float64(n))
		w.metrics.WaitersNotified.Add(float64(n))
	}
}

// Pending returns the number of waiters parked on id.
func (w *Waiters[T]) Pending(id uuid.UUID) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.waiting[id])
}

// Close releases every parked waiter with ErrWaiterClosed and refuses new
// registrations.
func (w *Waiters[T]) Close() {
	w.mu.Lock()
	waiting := w.waiting
	w.waiting = make(map[uuid.UUID]waiterSet[T])
	w.closed = true
	w.mu.Unlock()

	for _, set := range waiting {
		for waiter := range set {
			waiter.ch <- Change[T]{Err: errors.ErrWaiterClosed}
		}
		w.metrics.PendingWaiters.Sub(float64(len(set)))
	}
}
