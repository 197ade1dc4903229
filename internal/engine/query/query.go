// Package query runs long whole-project queries in small steps on the loop
// so they interleave with editing and background analysis.
package query

import (
	"context"
	"log/slog"
	"scriptls/internal/engine/loop"
	"scriptls/internal/shared/observability"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Task is a resumable computation. Step does a bounded slice of work and
// reports done=true together with the final value.
type Task[T any] interface {
	Step() (value T, done bool)
}

// StepFunc adapts a closure to Task.
type StepFunc[T any] func() (T, bool)

func (f StepFunc[T]) Step() (T, bool) { return f() }

// Future carries the eventual value of a task. Done and Wait may be used
// from any goroutine; OnDone callbacks run on the loop.
type Future[T any] struct {
	ID string

	mu     sync.Mutex
	done   chan struct{}
	value  T
	ok     bool
	hooks  []func(T)
	cancel func()
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{ID: uuid.NewString(), done: make(chan struct{})}
}

func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Value returns the result if the task has completed.
func (f *Future[T]) Value() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.ok
}

// Wait blocks until the task completes or ctx ends. It must not be called
// from the loop goroutine.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		v, _ := f.Value()
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnDone registers fn to receive the value. If the task already finished fn
// runs immediately.
func (f *Future[T]) OnDone(fn func(T)) {
	f.mu.Lock()
	if !f.ok {
		f.hooks = append(f.hooks, fn)
		f.mu.Unlock()
		return
	}
	v := f.value
	f.mu.Unlock()
	fn(v)
}

// Cancel stops polling. The future never completes afterwards.
func (f *Future[T]) Cancel() {
	f.mu.Lock()
	cancel := f.cancel
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (f *Future[T]) complete(v T) {
	f.mu.Lock()
	if f.ok {
		f.mu.Unlock()
		return
	}
	f.value = v
	f.ok = true
	hooks := f.hooks
	f.hooks = nil
	f.mu.Unlock()
	close(f.done)
	for _, fn := range hooks {
		fn(v)
	}
}

// Engine owns the polling timers of running tasks.
type Engine struct {
	loop     *loop.Loop
	interval time.Duration
	active   map[string]*loop.Timer
}

func NewEngine(l *loop.Loop, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &Engine{loop: l, interval: interval, active: make(map[string]*loop.Timer)}
}

// Active returns the number of tasks still being polled.
func (e *Engine) Active() int {
	return len(e.active)
}

// CancelAll stops every polling task.
func (e *Engine) CancelAll() {
	for id, t := range e.active {
		t.Stop()
		delete(e.active, id)
	}
}

// Run steps task once right away. If that does not finish it, the task is
// stepped again every poll interval until it produces a value. Must be called
// on the loop goroutine.
func Run[T any](e *Engine, kind string, task Task[T]) *Future[T] {
	f := newFuture[T]()
	steps := observability.QueryStepsTotal.WithLabelValues(kind)

	steps.Inc()
	if v, done := task.Step(); done {
		f.complete(v)
		return f
	}

	var timer *loop.Timer
	timer = e.loop.Every(e.interval, func() {
		steps.Inc()
		v, done := task.Step()
		if !done {
			return
		}
		timer.Stop()
		delete(e.active, f.ID)
		f.complete(v)
	})
	e.active[f.ID] = timer
	f.cancel = func() {
		e.loop.Post(func() {
			if t, ok := e.active[f.ID]; ok {
				t.Stop()
				delete(e.active, f.ID)
				slog.Debug("query cancelled", "kind", kind, "id", f.ID)
			}
		})
	}
	return f
}
