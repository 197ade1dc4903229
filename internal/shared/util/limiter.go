package util

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket that remembers how many events it turned away.
type Limiter struct {
	inner   *rate.Limiter
	dropped atomic.Int64
}

// NewLimiter allows r events per second with bursts of b.
func NewLimiter(r float64, b int) *Limiter {
	return &Limiter{inner: rate.NewLimiter(rate.Limit(r), b)}
}

// Allow reports whether one event may happen now.
func (l *Limiter) Allow() bool {
	if l.inner.Allow() {
		return true
	}
	l.dropped.Add(1)
	return false
}

// TakeDropped returns the number of rejected events since the last call.
func (l *Limiter) TakeDropped() int {
	return int(l.dropped.Swap(0))
}
