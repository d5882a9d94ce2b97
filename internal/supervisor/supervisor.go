// Package supervisor implements the Supervisor (C11): the task group
// that owns every long-running component, wires a shared shutdown
// signal through them, and exposes a restart budget for the two tasks
// spec.md names as restartable (Tailer, Parser). Grounded on
// main.go's explicit wiring (config → logger → dependencies →
// long-running tasks → signal-driven graceful shutdown) and
// analytics.Pipeline's cancel-context + WaitGroup idiom, generalized
// here to an errgroup.Group so the first task failure is observable
// instead of silently swallowed.
package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Task is one named long-running component. Run must return promptly
// once ctx is cancelled.
type Task struct {
	Name       string
	Run        func(ctx context.Context) error
	Restartable bool
}

// restartWindow is a sliding-window counter bounding how often a
// restartable task may be relaunched, the same shape as
// middleware/ratelimit.go's slidingWindow (a slice of timestamps,
// pruned to the window on each check) generalized from per-request
// counting to per-crash counting.
type restartWindow struct {
	mu     sync.Mutex
	events []time.Time
}

func (w *restartWindow) allow(limit int, window time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := time.Now().Add(-window)
	kept := w.events[:0]
	for _, t := range w.events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.events = kept

	if len(w.events) >= limit {
		return false
	}
	w.events = append(w.events, time.Now())
	return true
}

// Supervisor runs every registered Task under one errgroup, restarting
// Restartable tasks up to maxRestartsPerMinute times before giving up
// on that task and flipping Degraded — spec.md §4.11.
type Supervisor struct {
	logger               zerolog.Logger
	maxRestartsPerMinute int
	degraded             atomic.Bool
	onShutdown           []func()
}

// New builds a Supervisor. onShutdown callbacks run, in order, after
// every task has stopped — used for the final-flush / cursor-persist
// / settings-unlink sequence spec.md §4.11 fixes.
func New(logger zerolog.Logger, maxRestartsPerMinute int, onShutdown ...func()) *Supervisor {
	if maxRestartsPerMinute <= 0 {
		maxRestartsPerMinute = 5
	}
	return &Supervisor{
		logger:               logger.With().Str("component", "supervisor").Logger(),
		maxRestartsPerMinute: maxRestartsPerMinute,
		onShutdown:           onShutdown,
	}
}

// Degraded reports whether any restartable task has exhausted its
// restart budget and been given up on.
func (s *Supervisor) Degraded() *atomic.Bool { return &s.degraded }

// Run starts every task and blocks until ctx is cancelled or a
// non-restartable task returns a non-nil error, then runs the
// shutdown sequence and returns the first such error (nil on clean
// shutdown).
func (s *Supervisor) Run(ctx context.Context, tasks []Task) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, t := range tasks {
		t := t
		g.Go(func() error {
			return s.runWithRestart(gctx, t)
		})
	}

	err := g.Wait()

	for _, fn := range s.onShutdown {
		fn()
	}

	return err
}

func (s *Supervisor) runWithRestart(ctx context.Context, t Task) error {
	window := &restartWindow{}

	for {
		err := s.runOnce(ctx, t)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		s.logger.Error().Err(err).Str("task", t.Name).Msg("task exited unexpectedly")

		if !t.Restartable {
			s.degraded.Store(true)
			return err
		}
		if !window.allow(s.maxRestartsPerMinute, time.Minute) {
			s.logger.Error().Str("task", t.Name).Msg("restart budget exhausted, giving up on task")
			s.degraded.Store(true)
			return nil
		}

		s.logger.Warn().Str("task", t.Name).Msg("restarting task")
	}
}

// runOnce recovers a panic from Run so one crashing task cannot take
// down the whole process outside the supervisor's own accounting —
// the errgroup only sees a returned error, never an unwound panic.
func (s *Supervisor) runOnce(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("task", t.Name).Msg("task panicked")
			err = errPanicked
		}
	}()
	return t.Run(ctx)
}

var errPanicked = panicError{}

type panicError struct{}

func (panicError) Error() string { return "task panicked" }
