// Package stress drives an LFQueue with one owner and many stealers and
// checks that every pushed value comes out exactly once.
package stress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/valyala/fastrand"

	"github.com/aradilov/lfdeque"
)

const goschedEvery = 64 // average misses between runtime.Gosched() calls

var ErrInvalidConfig = errors.New("invalid stress config")

// Config describes the workload.
type Config struct {
	Rounds    int   // times the pattern is pushed
	Pattern   []int // values pushed per round
	Stealers  int   // stealer goroutines besides the owner
	Capacity  int   // initial ring capacity
	Fixed     bool  // disable growth; the owner pops to make room
	OwnerPops bool  // owner pops at random between pushes, not only after
}

// DefaultConfig returns the 7 stealer workload pushing [1 2 93 104 2044] 100000 times.
func DefaultConfig() Config {
	return Config{
		Rounds:    100_000,
		Pattern:   []int{1, 2, 93, 104, 2044},
		Stealers:  7,
		Capacity:  1,
		OwnerPops: true,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Rounds < 1:
		return fmt.Errorf("%w: rounds must be > 0, got %d", ErrInvalidConfig, c.Rounds)
	case len(c.Pattern) == 0:
		return fmt.Errorf("%w: pattern is empty", ErrInvalidConfig)
	case c.Stealers < 0:
		return fmt.Errorf("%w: stealers must be >= 0, got %d", ErrInvalidConfig, c.Stealers)
	case c.Capacity < 1:
		return fmt.Errorf("%w: capacity must be > 0, got %d", ErrInvalidConfig, c.Capacity)
	}
	return nil
}

func (c Config) expected() (count, sum int64) {
	var s int64
	for _, v := range c.Pattern {
		s += int64(v)
	}
	return int64(c.Rounds) * int64(len(c.Pattern)), int64(c.Rounds) * s
}

// Result of a run. Owner and Stealers hold how many values each goroutine drained.
type Result struct {
	Owner    int64
	Stealers []int64

	Count         int64
	Sum           int64
	ExpectedCount int64
	ExpectedSum   int64

	FinalPopEmpty   bool
	FinalStealEmpty bool

	Elapsed time.Duration
	Stats   lfdeque.LFQueueStats
}

// MismatchError reports a drained total that differs from the pushed one.
type MismatchError struct {
	What string
	Want int64
	Got  int64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s mismatch: want %d, got %d", e.What, e.Want, e.Got)
}

// Verify checks the exactly-once and quiescence properties of the result.
func (r Result) Verify() error {
	if r.Count != r.ExpectedCount {
		return &MismatchError{What: "count", Want: r.ExpectedCount, Got: r.Count}
	}
	if r.Sum != r.ExpectedSum {
		return &MismatchError{What: "sum", Want: r.ExpectedSum, Got: r.Sum}
	}
	if !r.FinalPopEmpty || !r.FinalStealEmpty {
		return &MismatchError{What: "final empty pop+steal", Want: 2, Got: boolCount(r.FinalPopEmpty, r.FinalStealEmpty)}
	}
	if r.Stats.DoubleTake != 0 {
		return &MismatchError{What: "double take", Want: 0, Got: int64(r.Stats.DoubleTake)}
	}
	return nil
}

func boolCount(bs ...bool) int64 {
	var n int64
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}

// tally accumulates drained values shared by owner and stealers.
type tally struct {
	count atomic.Int64
	sum   atomic.Int64
	want  int64
}

func (t *tally) add(v int) {
	t.sum.Add(int64(v))
	t.count.Add(1)
}

func (t *tally) done() bool {
	return t.count.Load() >= t.want
}

// Run executes cfg and returns the drained totals.
// It returns ctx.Err() if the context ends before the queue is drained.
func Run(ctx context.Context, cfg Config, logger *slog.Logger) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []lfdeque.Option{lfdeque.WithLogger(logger)}
	if cfg.Fixed {
		opts = append(opts, lfdeque.WithFixedCapacity())
	}
	q, err := lfdeque.NewLFQueue[int](cfg.Capacity, opts...)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create queue: %w", err)
	}

	res := Result{Stealers: make([]int64, cfg.Stealers)}
	res.ExpectedCount, res.ExpectedSum = cfg.expected()
	t := &tally{want: res.ExpectedCount}

	logger.Info("stress run started",
		slog.Int("rounds", cfg.Rounds),
		slog.Int("stealers", cfg.Stealers),
		slog.Int("capacity", cfg.Capacity),
		slog.Bool("fixed", cfg.Fixed),
		slog.Int64("expected_count", res.ExpectedCount),
	)

	var stop atomic.Bool
	start := time.Now()

	var wg conc.WaitGroup
	for i := 0; i < cfg.Stealers; i++ {
		s := q.Stealer()
		wg.Go(func() {
			res.Stealers[i] = steal(s, t, &stop)
		})
	}

	owned, err := own(ctx, cfg, q, t)
	res.Owner = owned
	if err != nil {
		stop.Store(true)
	}
	wg.Wait()
	res.Elapsed = time.Since(start)

	if err != nil {
		logger.Warn("stress run aborted", slog.Any("error", err), slog.Int64("drained", t.count.Load()))
		return res, err
	}

	res.Count = t.count.Load()
	res.Sum = t.sum.Load()
	_, popped := q.Pop()
	_, stolen := q.Steal()
	res.FinalPopEmpty = !popped
	res.FinalStealEmpty = !stolen
	res.Stats = q.Stats()

	logger.Info("stress run finished",
		slog.Int64("count", res.Count),
		slog.Int64("sum", res.Sum),
		slog.Duration("elapsed", res.Elapsed),
		slog.Uint64("grows", res.Stats.Grows),
		slog.Uint64("steals", res.Stats.Steals),
		slog.Uint64("pops", res.Stats.Pops),
	)
	return res, nil
}

// own is the owner goroutine: push everything, then drain with Pop.
func own(ctx context.Context, cfg Config, q *lfdeque.LFQueue[int], t *tally) (int64, error) {
	var n int64
	pop := func() bool {
		v, ok := q.Pop()
		if ok {
			t.add(v)
			n++
		}
		return ok
	}

	for r := 0; r < cfg.Rounds; r++ {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		for _, v := range cfg.Pattern {
			for !q.Push(v) {
				// fixed ring is full
				pop()
			}
			if cfg.OwnerPops && fastrand.Uint32n(8) == 0 {
				pop()
			}
		}
	}

	var misses uint32
	for !t.done() {
		if pop() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		backoff(&misses)
	}
	return n, nil
}

func steal(s *lfdeque.Stealer[int], t *tally, stop *atomic.Bool) int64 {
	var (
		n      int64
		misses uint32
	)
	for !t.done() && !stop.Load() {
		v, ok := s.Steal()
		if !ok {
			backoff(&misses)
			continue
		}
		t.add(v)
		n++
	}
	return n
}

// backoff yields the processor after a jittered number of misses.
func backoff(misses *uint32) {
	*misses++
	if *misses >= goschedEvery/2+fastrand.Uint32n(goschedEvery) {
		*misses = 0
		runtime.Gosched()
	}
}
