package lfdeque

import "sync/atomic"

type stats struct {
	pushes               uint64
	pushFailedQIsFull    uint64
	grows                uint64
	pops                 uint64
	popFailedQIsEmpty    uint64
	popFailedLostRace    uint64
	steals               uint64
	stealFailedQIsEmpty  uint64
	stealFailedLostRace  uint64
	stealFailedStaleRing uint64
	doubleTake           uint64
}

// LFQueueStats is a snapshot of the queue counters.
// Failed* counters count calls that returned empty or false.
type LFQueueStats struct {
	Pushes            uint64
	PushFailedQIsFull uint64
	Grows             uint64

	Pops              uint64
	PopFailedQIsEmpty uint64
	PopFailedLostRace uint64

	Steals               uint64
	StealFailedQIsEmpty  uint64
	StealFailedLostRace  uint64
	StealFailedStaleRing uint64

	// DoubleTake counts index races won on an already emptied Seat. Always 0 unless the protocol is broken.
	DoubleTake uint64
}

// Stats retrieves the current statistics of the LFQueue
func (q *LFQueue[T]) Stats() LFQueueStats {
	return LFQueueStats{
		Pushes:               atomic.LoadUint64(&q.stats.pushes),
		PushFailedQIsFull:    atomic.LoadUint64(&q.stats.pushFailedQIsFull),
		Grows:                atomic.LoadUint64(&q.stats.grows),
		Pops:                 atomic.LoadUint64(&q.stats.pops),
		PopFailedQIsEmpty:    atomic.LoadUint64(&q.stats.popFailedQIsEmpty),
		PopFailedLostRace:    atomic.LoadUint64(&q.stats.popFailedLostRace),
		Steals:               atomic.LoadUint64(&q.stats.steals),
		StealFailedQIsEmpty:  atomic.LoadUint64(&q.stats.stealFailedQIsEmpty),
		StealFailedLostRace:  atomic.LoadUint64(&q.stats.stealFailedLostRace),
		StealFailedStaleRing: atomic.LoadUint64(&q.stats.stealFailedStaleRing),
		DoubleTake:           atomic.LoadUint64(&q.stats.doubleTake),
	}
}

// Taken returns the number of values removed by Pop and Steal together.
func (s LFQueueStats) Taken() uint64 {
	return s.Pops + s.Steals
}
