package ratelimit

import (
	"sync/atomic"
)

// Limiter caps the number of concurrent connections
type Limiter struct {
	maxConns atomic.Int64
	current  atomic.Int64
}

// NewLimiter creates a limiter allowing maxConns concurrent connections
func NewLimiter(maxConns int64) *Limiter {
	l := &Limiter{}
	l.maxConns.Store(maxConns)
	return l
}

// Allow reserves a slot if one is free
func (l *Limiter) Allow() bool {
	for {
		cur := l.current.Load()
		if cur >= l.maxConns.Load() {
			return false
		}
		if l.current.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Release frees a slot
func (l *Limiter) Release() {
	l.current.Add(-1)
}

// Current returns the number of reserved slots
func (l *Limiter) Current() int64 {
	return l.current.Load()
}

// Max returns the maximum allowed connections
func (l *Limiter) Max() int64 {
	return l.maxConns.Load()
}

// SetMax changes the cap. Connections above a lowered cap are not evicted.
func (l *Limiter) SetMax(maxConns int64) {
	l.maxConns.Store(maxConns)
}
