package lfdeque

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func mustNew[T any](t testing.TB, capacity int, opts ...Option) *LFQueue[T] {
	t.Helper()
	q, err := NewLFQueue[T](capacity, opts...)
	if err != nil {
		t.Fatalf("NewLFQueue(%d): %v", capacity, err)
	}
	return q
}

func TestLFQueueInvalidCapacity(t *testing.T) {
	for _, c := range []int{0, -1, -1024} {
		q, err := NewLFQueue[int](c)
		if !errors.Is(err, ErrInvalidCapacity) {
			t.Fatalf("capacity %d: expected ErrInvalidCapacity, got %v", c, err)
		}
		if q != nil {
			t.Fatalf("capacity %d: expected nil queue", c)
		}
	}
}

func TestLFQueueCapacityRounding(t *testing.T) {
	for _, tc := range []struct{ in, want int }{
		{1, 1}, {2, 2}, {3, 4}, {5, 8}, {100, 128}, {1024, 1024},
	} {
		if got := mustNew[int](t, tc.in).Capacity(); got != tc.want {
			t.Fatalf("capacity %d: expected ring of %d, got %d", tc.in, tc.want, got)
		}
	}
}

// Basic sanity: without stealers pop returns values in reverse push order.
func TestLFQueueLIFO(t *testing.T) {
	const N = 100_000

	q := mustNew[int](t, 1)

	for i := 0; i < N; i++ {
		if !q.Push(i) {
			t.Fatalf("push failed at %d on a growing queue", i)
		}
	}
	if q.Len() != N {
		t.Fatalf("expected len %d, got %d", N, q.Len())
	}

	for i := N - 1; i >= 0; i-- {
		v, ok := q.Pop()
		if !ok {
			t.Fatalf("pop failed at %d (queue unexpectedly empty)", i)
		}
		if v != i {
			t.Fatalf("expected %d, got %d (LIFO violated)", i, v)
		}
	}

	if v, ok := q.Pop(); ok {
		t.Fatalf("expected empty queue at the end, got value=%v", v)
	}
	if !q.IsEmpty() {
		t.Fatalf("expected IsEmpty after draining, len=%d", q.Len())
	}
}

// Stealers observe the top first.
func TestLFQueueStealFIFO(t *testing.T) {
	q := mustNew[int](t, 3)

	q.Push(1)
	q.Push(2)

	s := q.Stealer()
	if v, ok := s.Steal(); !ok || v != 1 {
		t.Fatalf("expected (1, true), got (%d, %v)", v, ok)
	}
	if v, ok := s.Steal(); !ok || v != 2 {
		t.Fatalf("expected (2, true), got (%d, %v)", v, ok)
	}
	if v, ok := q.Pop(); ok {
		t.Fatalf("expected empty pop, got %d", v)
	}
	if v, ok := s.Steal(); ok {
		t.Fatalf("expected empty steal, got %d", v)
	}
}

func TestLFQueueMixedEnds(t *testing.T) {
	q := mustNew[int](t, 4)
	for i := 1; i <= 5; i++ {
		q.Push(i)
	}

	if v, _ := q.Steal(); v != 1 {
		t.Fatalf("steal: expected 1, got %d", v)
	}
	if v, _ := q.Pop(); v != 5 {
		t.Fatalf("pop: expected 5, got %d", v)
	}
	if v, _ := q.Steal(); v != 2 {
		t.Fatalf("steal: expected 2, got %d", v)
	}
	if v, _ := q.Pop(); v != 4 {
		t.Fatalf("pop: expected 4, got %d", v)
	}
	// last element goes through the top CAS path
	if v, ok := q.Pop(); !ok || v != 3 {
		t.Fatalf("pop: expected (3, true), got (%d, %v)", v, ok)
	}
	if q.Len() != 0 {
		t.Fatalf("expected len 0, got %d", q.Len())
	}
}

// Pop on a never used queue must not move bottom below zero for good.
func TestLFQueueEmptyPopRestoresBottom(t *testing.T) {
	q := mustNew[int](t, 1)
	for i := 0; i < 10; i++ {
		if _, ok := q.Pop(); ok {
			t.Fatalf("pop on empty queue succeeded")
		}
	}
	if b, top := q.bottom.Load(), q.top.Load(); b != top || b != 0 {
		t.Fatalf("expected bottom=top=0, got bottom=%d top=%d", b, top)
	}

	q.Push(7)
	if v, ok := q.Steal(); !ok || v != 7 {
		t.Fatalf("expected (7, true), got (%d, %v)", v, ok)
	}
}

// Capacity/overflow test for the fixed configuration.
func TestLFQueueFixedCapacityOverflow(t *testing.T) {
	const capacity = 8
	q := mustNew[int](t, capacity, WithFixedCapacity())
	if !q.Fixed() {
		t.Fatalf("expected fixed queue")
	}

	for i := 0; i < capacity; i++ {
		if !q.Push(i) {
			t.Fatalf("push failed at %d (queue unexpectedly full)", i)
		}
	}

	if q.Push(999) {
		t.Fatalf("expected overflow (push should return false), but got true")
	}
	if err := q.TryPush(999); !errors.Is(err, ErrQueueIsFull) {
		t.Fatalf("expected ErrQueueIsFull, got %v", err)
	}
	if q.Len() != capacity || q.Capacity() != capacity {
		t.Fatalf("full push mutated the queue: len=%d capacity=%d", q.Len(), q.Capacity())
	}

	// draining one slot from either end makes room again
	if v, _ := q.Steal(); v != 0 {
		t.Fatalf("expected 0, got %d", v)
	}
	if err := q.TryPush(100); err != nil {
		t.Fatalf("push after steal: %v", err)
	}
	if v, _ := q.Pop(); v != 100 {
		t.Fatalf("expected 100, got %d", v)
	}

	st := q.Stats()
	if st.PushFailedQIsFull != 2 || st.Grows != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestLFQueueFixedCapacityOne(t *testing.T) {
	q := mustNew[string](t, 1, WithFixedCapacity())

	for i := 0; i < 1000; i++ {
		if !q.Push("a") {
			t.Fatalf("push failed at %d", i)
		}
		if q.Push("b") {
			t.Fatalf("second push fit in a one slot ring at %d", i)
		}
		var (
			v  string
			ok bool
		)
		if i%2 == 0 {
			v, ok = q.Pop()
		} else {
			v, ok = q.Steal()
		}
		if !ok || v != "a" {
			t.Fatalf("expected (a, true), got (%q, %v)", v, ok)
		}
	}
}

// Every threshold crossing doubles the ring once and keeps all values.
func TestLFQueueGrowthPreservation(t *testing.T) {
	q := mustNew[int](t, 2)

	want := 2
	grows := uint64(0)
	for i := 0; i < 1024; i++ {
		if i == want {
			want *= 2
			grows++
		}
		q.Push(i)
		if q.Capacity() != want {
			t.Fatalf("after %d pushes expected capacity %d, got %d", i+1, want, q.Capacity())
		}
		if g := q.Stats().Grows; g != grows {
			t.Fatalf("after %d pushes expected %d grows, got %d", i+1, grows, g)
		}
	}

	seen := make([]int, 1024)
	for i := 0; i < 512; i++ {
		v, ok := q.Steal()
		if !ok {
			t.Fatalf("steal failed at %d", i)
		}
		seen[v]++
	}
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		seen[v]++
	}
	for i, n := range seen {
		if n != 1 {
			t.Fatalf("value %d seen %d times (expected 1)", i, n)
		}
	}
}

// Growth with a wrapped live range copies indices, not physical slots.
func TestLFQueueGrowthAfterWrap(t *testing.T) {
	q := mustNew[int](t, 4)

	next := 0
	for i := 0; i < 4; i++ {
		q.Push(next)
		next++
	}
	// move top so the live range wraps around the ring end
	for i := 0; i < 3; i++ {
		q.Steal()
	}
	for i := 0; i < 3; i++ {
		q.Push(next)
		next++
	}
	if q.Capacity() != 4 {
		t.Fatalf("expected no growth yet, capacity %d", q.Capacity())
	}
	q.Push(next) // 5 live values: grow
	next++
	if q.Capacity() != 8 {
		t.Fatalf("expected capacity 8, got %d", q.Capacity())
	}

	for want := 3; want < next; want++ {
		v, ok := q.Steal()
		if !ok || v != want {
			t.Fatalf("expected (%d, true), got (%d, %v)", want, v, ok)
		}
	}
}

// Taken values are cleared from the ring.
func TestLFQueueClearsTakenSlots(t *testing.T) {
	q := mustNew[*int](t, 4)
	for i := 0; i < 3; i++ {
		v := i
		q.Push(&v)
	}
	q.Steal()
	q.Pop()
	q.Pop()

	r := q.ring.Load()
	for i := range r.slots {
		if s := r.slots[i].seat.Load(); s != nil {
			t.Fatalf("slot %d still holds a seat (taken=%v)", i, s.Taken())
		}
	}
}

func TestLFQueueStats(t *testing.T) {
	q := mustNew[int](t, 1)
	q.Push(1)
	q.Push(2)
	q.Push(3)
	q.Steal()
	q.Pop()
	q.Pop()
	q.Pop()
	q.Steal()

	st := q.Stats()
	want := LFQueueStats{
		Pushes:              3,
		Grows:               2,
		Pops:                2,
		PopFailedQIsEmpty:   1,
		Steals:              1,
		StealFailedQIsEmpty: 1,
	}
	if st != want {
		t.Fatalf("expected %+v, got %+v", want, st)
	}
	if st.Taken() != st.Pushes {
		t.Fatalf("taken %d != pushes %d", st.Taken(), st.Pushes)
	}
}

func TestLFQueueLogsGrowth(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	q := mustNew[int](t, 1, WithLogger(logger))
	q.Push(1)
	q.Push(2)

	out := buf.String()
	if !strings.Contains(out, "ring grown") || !strings.Contains(out, "new_capacity=2") {
		t.Fatalf("expected growth record, got %q", out)
	}
}

// A won index race on an emptied seat is reported, not returned twice.
func TestLFQueueDoubleTakeReported(t *testing.T) {
	var buf bytes.Buffer
	q := mustNew[int](t, 2, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	q.Push(1)
	q.Push(2)

	// simulate a broken protocol: empty the seat behind the queue's back
	q.ring.Load().at(0).seat.Load().Take()

	if v, ok := q.Steal(); ok {
		t.Fatalf("expected empty steal, got %d", v)
	}
	if q.Stats().DoubleTake != 1 {
		t.Fatalf("expected DoubleTake=1, got %d", q.Stats().DoubleTake)
	}
	if !strings.Contains(buf.String(), "seat already taken") {
		t.Fatalf("expected error record, got %q", buf.String())
	}
	if v, ok := q.Pop(); !ok || v != 2 {
		t.Fatalf("expected (2, true), got (%d, %v)", v, ok)
	}
}

// The fixed limit is the rounded ring size, not the requested capacity.
func TestLFQueueFixedCapacityRounded(t *testing.T) {
	q := mustNew[int](t, 3, WithFixedCapacity())
	if q.Capacity() != 4 {
		t.Fatalf("expected ring of 4, got %d", q.Capacity())
	}

	for i := 0; i < 4; i++ {
		if !q.Push(i) {
			t.Fatalf("push failed at %d (queue unexpectedly full)", i)
		}
	}
	if q.Push(4) {
		t.Fatalf("expected overflow after 4 pushes, but got true")
	}
}

// Every doubling publishes a ring of the next generation.
func TestLFQueueRingGeneration(t *testing.T) {
	q := mustNew[int](t, 1)
	for i := 0; i < 16; i++ {
		q.Push(i)
		if gen, grows := q.ring.Load().gen, q.Stats().Grows; gen != grows {
			t.Fatalf("after %d pushes ring generation %d != grows %d", i+1, gen, grows)
		}
	}
	if q.ring.Load().gen != 4 {
		t.Fatalf("expected generation 4, got %d", q.ring.Load().gen)
	}
}

// A cleared slot at top aborts the steal before the index race.
func TestLFQueueStealClearedSlot(t *testing.T) {
	q := mustNew[int](t, 4)
	q.Push(1)
	q.Push(2)

	// empty and clear index 0 behind the queue's back
	s := q.ring.Load().at(0)
	s.seat.Load().Take()
	s.seat.Store(nil)

	if v, ok := q.Steal(); ok {
		t.Fatalf("expected empty steal, got %d", v)
	}
	st := q.Stats()
	if st.StealFailedStaleRing != 1 || st.Steals != 0 || st.DoubleTake != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if top := q.top.Load(); top != 0 {
		t.Fatalf("aborted steal moved top to %d", top)
	}

	// owner end is unaffected
	if v, ok := q.Pop(); !ok || v != 2 {
		t.Fatalf("expected (2, true), got (%d, %v)", v, ok)
	}
}
