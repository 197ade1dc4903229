// Package loop provides the single-goroutine event loop every piece of
// analysis state is mutated on. Work is posted as closures; delayed work is
// expressed with cancellable timers ordered by deadline and insertion order.
//
// A Loop runs either against the wall clock (Run) or against a virtual clock
// driven by Advance, which tests use to step scheduling deterministically.
package loop

import (
	"container/heap"
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

type Loop struct {
	mu      sync.Mutex
	timers  timerHeap
	seq     uint64
	wake    chan struct{}
	virtual bool
	now     time.Time
	running bool
}

// New returns a wall-clock loop. Call Run to service it.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// NewVirtual returns a loop whose clock only moves through Advance.
func NewVirtual(start time.Time) *Loop {
	return &Loop{wake: make(chan struct{}, 1), virtual: true, now: start}
}

// Timer is a handle on scheduled work. Stop is safe to call more than once
// and from any goroutine.
type Timer struct {
	l        *Loop
	when     time.Time
	seq      uint64
	period   time.Duration
	fn       func()
	index    int
	stopped  bool
	periodic bool
}

// Stop cancels the timer. It reports whether the timer was still pending.
func (t *Timer) Stop() bool {
	if t == nil || t.l == nil {
		return false
	}
	t.l.mu.Lock()
	defer t.l.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	if t.index >= 0 {
		heap.Remove(&t.l.timers, t.index)
		return true
	}
	return t.periodic
}

// Active reports whether the timer will still fire.
func (t *Timer) Active() bool {
	if t == nil || t.l == nil {
		return false
	}
	t.l.mu.Lock()
	defer t.l.mu.Unlock()
	return !t.stopped
}

func (l *Loop) Now() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clock()
}

func (l *Loop) clock() time.Time {
	if l.virtual {
		return l.now
	}
	return time.Now()
}

// Post schedules fn to run on the loop as soon as possible, after work that
// is already due.
func (l *Loop) Post(fn func()) {
	l.AfterFunc(0, fn)
}

// AfterFunc schedules fn to run once after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	return l.schedule(d, fn, false)
}

// Every schedules fn to run every d until the returned timer is stopped.
func (l *Loop) Every(d time.Duration, fn func()) *Timer {
	return l.schedule(d, fn, true)
}

func (l *Loop) schedule(d time.Duration, fn func(), periodic bool) *Timer {
	if d < 0 {
		d = 0
	}
	l.mu.Lock()
	l.seq++
	t := &Timer{
		l:        l,
		when:     l.clock().Add(d),
		seq:      l.seq,
		period:   d,
		fn:       fn,
		periodic: periodic,
	}
	heap.Push(&l.timers, t)
	l.mu.Unlock()
	l.signal()
	return t
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of scheduled timers, including posted work.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers)
}

// popDue removes the earliest timer due at or before limit.
func (l *Loop) popDue(limit time.Time) *Timer {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.timers) == 0 {
		return nil
	}
	next := l.timers[0]
	if next.when.After(limit) {
		return nil
	}
	heap.Pop(&l.timers)
	if l.virtual && next.when.After(l.now) {
		l.now = next.when
	}
	if next.periodic {
		l.seq++
		next.seq = l.seq
		period := next.period
		if period <= 0 {
			period = time.Millisecond
		}
		next.when = next.when.Add(period)
		if !l.virtual && next.when.Before(time.Now()) {
			next.when = time.Now().Add(period)
		}
		heap.Push(&l.timers, next)
	} else {
		next.stopped = true
	}
	return next
}

func (l *Loop) fire(t *Timer) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("loop task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	t.fn()
}

// Advance moves the virtual clock forward by d, running every timer that
// becomes due in deadline order. Work scheduled while advancing runs too if
// it falls inside the window.
func (l *Loop) Advance(d time.Duration) {
	l.mu.Lock()
	if !l.virtual {
		l.mu.Unlock()
		panic("loop: Advance on a wall-clock loop")
	}
	target := l.now.Add(d)
	l.mu.Unlock()

	for {
		t := l.popDue(target)
		if t == nil {
			break
		}
		l.fire(t)
	}

	l.mu.Lock()
	if target.After(l.now) {
		l.now = target
	}
	l.mu.Unlock()
}

// Flush runs everything already due on a virtual loop without moving time.
func (l *Loop) Flush() {
	l.Advance(0)
}

// Run services the loop until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.virtual {
		l.mu.Unlock()
		panic("loop: Run on a virtual loop")
	}
	if l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	idle := time.NewTimer(time.Hour)
	defer idle.Stop()

	for {
		for {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t := l.popDue(time.Now())
			if t == nil {
				break
			}
			l.fire(t)
		}

		wait := time.Hour
		l.mu.Lock()
		if len(l.timers) > 0 {
			wait = time.Until(l.timers[0].when)
		}
		l.mu.Unlock()
		if wait < 0 {
			wait = 0
		}

		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		case <-idle.C:
		}
	}
}

// Call runs fn on a running loop and waits for it to return.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
