package lfdeque

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

var (
	ErrInvalidCapacity = fmt.Errorf("capacity must be > 0")
	ErrQueueIsFull     = fmt.Errorf("queue is full")
)

// LFQueue is a lock-free work-stealing deque.
// One owner goroutine pushes and pops at the bottom (LIFO),
// any number of goroutines steal from the top (FIFO).
type LFQueue[T any] struct {
	// Optional padding to avoid false sharing between hot fields.
	_      [64]byte
	top    atomic.Int64 // claimed by stealers (and by the owner for the last element) via CAS only
	_      [64]byte
	bottom atomic.Int64 // stored by the owner only
	_      [64]byte
	ring   atomic.Pointer[ring[T]]
	_      [64]byte

	opts  options
	stats stats
}

// NewLFQueue creates a deque with room for at least capacity values
// before the first growth. Capacity is rounded up to a power of two.
func NewLFQueue[T any](capacity int, opts ...Option) (*LFQueue[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}

	q := &LFQueue[T]{opts: defaultOptions()}
	for _, opt := range opts {
		opt(&q.opts)
	}
	q.ring.Store(newRing[T](roundToPow2(capacity), 0))

	return q, nil
}

// Push adds v at the bottom.
// Returns false only in the fixed-capacity configuration when the ring is full;
// the queue is left untouched in that case.
// IMPORTANT: must be called from the owner goroutine only.
func (q *LFQueue[T]) Push(v T) bool {
	b := q.bottom.Load()
	t := q.top.Load()
	r := q.ring.Load()

	if b-t >= r.capacity() {
		if q.opts.fixed {
			atomic.AddUint64(&q.stats.pushFailedQIsFull, 1)
			return false
		}
		r = q.grow(r, t, b)
	}

	r.at(b).seat.Store(NewSeat(v))
	// publish: the seat is visible before bottom moves past it
	q.bottom.Store(b + 1)
	atomic.AddUint64(&q.stats.pushes, 1)
	return true
}

// TryPush is Push reporting ErrQueueIsFull instead of false.
func (q *LFQueue[T]) TryPush(v T) error {
	if !q.Push(v) {
		return ErrQueueIsFull
	}
	return nil
}

// grow installs a ring of double capacity holding the live range [t, b).
// The new ring is fully populated before it is published.
func (q *LFQueue[T]) grow(old *ring[T], t, b int64) *ring[T] {
	r := old.grow(t, b)
	q.ring.Store(r)
	atomic.AddUint64(&q.stats.grows, 1)

	q.opts.logger.Debug("ring grown",
		slog.Int64("old_capacity", old.capacity()),
		slog.Int64("new_capacity", r.capacity()),
		slog.Uint64("generation", r.gen),
		slog.Int64("live", b-t),
	)
	return r
}

// Pop removes the most recently pushed value.
// Returns (zero, false) if the queue is empty or a stealer took the last value.
// IMPORTANT: must be called from the owner goroutine only.
func (q *LFQueue[T]) Pop() (T, bool) {
	var zero T

	b := q.bottom.Add(-1)
	t := q.top.Load()

	if b < t {
		// empty: undo the speculative decrement
		q.bottom.Store(t)
		atomic.AddUint64(&q.stats.popFailedQIsEmpty, 1)
		return zero, false
	}

	s := q.ring.Load().at(b)
	seat := s.seat.Load()

	if b > t {
		// at least one more live value above b, stealers cannot reach this slot
		s.seat.Store(nil)
		return q.take(seat, &q.stats.pops)
	}

	// last element: race the stealers for index t
	q.bottom.Store(t + 1)
	if !q.top.CompareAndSwap(t, t+1) {
		atomic.AddUint64(&q.stats.popFailedLostRace, 1)
		return zero, false
	}
	s.seat.CompareAndSwap(seat, nil)
	return q.take(seat, &q.stats.pops)
}

// Steal removes the oldest value.
// Returns (zero, false) if the queue is empty or the race for the value was lost.
// Safe to call concurrently from many goroutines, but not from the owner.
func (q *LFQueue[T]) Steal() (T, bool) {
	var zero T

	t := q.top.Load()
	b := q.bottom.Load()
	if b <= t {
		atomic.AddUint64(&q.stats.stealFailedQIsEmpty, 1)
		return zero, false
	}

	// the ring must be loaded after bottom: a ring seen here already holds index t
	r := q.ring.Load()
	s := r.at(t)
	seat := s.seat.Load()

	if seat == nil || q.ring.Load().gen != r.gen {
		// t was claimed and cleared, or a grown ring was published under us
		atomic.AddUint64(&q.stats.stealFailedStaleRing, 1)
		return zero, false
	}

	if !q.top.CompareAndSwap(t, t+1) {
		atomic.AddUint64(&q.stats.stealFailedLostRace, 1)
		return zero, false
	}
	// a later push may already own this slot, clear only our own seat
	s.seat.CompareAndSwap(seat, nil)
	return q.take(seat, &q.stats.steals)
}

// take extracts the value of a seat whose index race was won.
func (q *LFQueue[T]) take(seat *Seat[T], counter *uint64) (T, bool) {
	v, ok := seat.Take()
	if !ok {
		atomic.AddUint64(&q.stats.doubleTake, 1)
		q.opts.logger.Error("seat already taken after winning index race",
			slog.Int64("top", q.top.Load()),
			slog.Int64("bottom", q.bottom.Load()),
		)
		return v, false
	}
	atomic.AddUint64(counter, 1)
	return v, true
}

// Len returns the number of values in the queue.
// This is a snapshot and may be stale immediately.
func (q *LFQueue[T]) Len() int {
	b := q.bottom.Load()
	t := q.top.Load()
	// bottom is transiently t-1 while the owner pops from an empty queue
	if b < t {
		return 0
	}
	return int(b - t)
}

// IsEmpty reports whether the queue appears empty.
func (q *LFQueue[T]) IsEmpty() bool {
	return q.Len() == 0
}

// Capacity returns the current ring capacity.
func (q *LFQueue[T]) Capacity() int {
	return int(q.ring.Load().capacity())
}

// Fixed reports whether growth is disabled.
func (q *LFQueue[T]) Fixed() bool {
	return q.opts.fixed
}

// Stealer returns a handle sharing the queue state that can only steal.
// Hand it to goroutines other than the owner.
func (q *LFQueue[T]) Stealer() *Stealer[T] {
	return &Stealer[T]{q: q}
}

// Stealer is the non-owner view of an LFQueue.
type Stealer[T any] struct {
	q *LFQueue[T]
}

// Steal removes the oldest value, see LFQueue.Steal.
func (s *Stealer[T]) Steal() (T, bool) {
	return s.q.Steal()
}

// Len returns the number of values in the underlying queue.
func (s *Stealer[T]) Len() int {
	return s.q.Len()
}

// IsEmpty reports whether the underlying queue appears empty.
func (s *Stealer[T]) IsEmpty() bool {
	return s.q.IsEmpty()
}
