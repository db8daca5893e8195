package lfdeque

import "sync/atomic"

// Original algorithm by David Chase and Yossi Lev
// "Dynamic Circular Work-Stealing Deque", SPAA 2005.

type slot[T any] struct {
	seat atomic.Pointer[Seat[T]] // nil once the value at this index was taken
}

// ring is a power-of-two circular array of slots.
// A ring replaced by grow is never written by the owner again.
type ring[T any] struct {
	mask  uint64
	gen   uint64 // number of doublings before this ring
	slots []slot[T]
}

func newRing[T any](capacity uint64, gen uint64) *ring[T] {
	return &ring[T]{
		mask:  capacity - 1,
		gen:   gen,
		slots: make([]slot[T], capacity),
	}
}

func (r *ring[T]) capacity() int64 {
	return int64(len(r.slots))
}

func (r *ring[T]) at(i int64) *slot[T] {
	return &r.slots[uint64(i)&r.mask]
}

// grow returns a ring of twice the capacity holding the handles of [t, b).
// Slots in the range that were already taken and cleared are copied as nil.
func (r *ring[T]) grow(t, b int64) *ring[T] {
	n := newRing[T](uint64(len(r.slots))<<1, r.gen+1)
	for i := t; i < b; i++ {
		if s := r.at(i).seat.Load(); s != nil {
			n.at(i).seat.Store(s.Clone())
		}
	}
	return n
}

// roundToPow2 rounds n (>= 1) up to the next power of two.
func roundToPow2(n int) uint64 {
	c := uint64(1)
	for c < uint64(n) {
		c <<= 1
	}
	return c
}
