package lfdeque

import "sync/atomic"

const (
	seatEmpty uint32 = iota
	seatOccupied
)

// Seat is a one-shot cell owning a single value until someone takes it.
// Any number of handles may point at the same Seat, but only one Take
// ever returns the value.
type Seat[T any] struct {
	state atomic.Uint32 // seatOccupied until taken
	val   T
}

// NewSeat creates a Seat owning v.
func NewSeat[T any](v T) *Seat[T] {
	s := &Seat[T]{val: v}
	// publish val together with the occupied state
	s.state.Store(seatOccupied)
	return s
}

// Clone returns another handle to the same value. The value itself is not copied.
func (s *Seat[T]) Clone() *Seat[T] {
	return s
}

// Take extracts the value and leaves the Seat empty.
// Returns (zero, false) if the value was already taken or the handle is nil.
// Safe to call concurrently: exactly one caller wins.
func (s *Seat[T]) Take() (T, bool) {
	var zero T
	if s == nil || !s.state.CompareAndSwap(seatOccupied, seatEmpty) {
		return zero, false
	}

	v := s.val
	// drop the reference so an aliasing handle left in a ring does not keep it alive
	s.val = zero
	return v, true
}

// Taken reports whether the value has already been extracted.
func (s *Seat[T]) Taken() bool {
	return s == nil || s.state.Load() == seatEmpty
}
