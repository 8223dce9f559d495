package circuitbreaker

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SkynetNext/mc-proxy/internal/metrics"
)

// ErrOpen is returned by Call while the breaker rejects attempts
var ErrOpen = errors.New("circuit breaker open")

// State represents circuit breaker state
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker guards dials to one backend. After maxFailures consecutive
// failures it opens for timeout, then lets a probe through (half-open).
type Breaker struct {
	name        string
	maxFailures int64
	timeout     time.Duration

	state    atomic.Int32
	failures atomic.Int64

	mu       sync.Mutex
	openedAt time.Time
}

// NewBreaker creates a closed breaker for the named backend
func NewBreaker(name string, maxFailures int64, timeout time.Duration) *Breaker {
	b := &Breaker{name: name, maxFailures: maxFailures, timeout: timeout}
	b.publish(StateClosed)
	return b
}

// Allow reports whether an attempt may proceed
func (b *Breaker) Allow() bool {
	switch State(b.state.Load()) {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		b.mu.Lock()
		expired := time.Since(b.openedAt) >= b.timeout
		b.mu.Unlock()
		if expired && b.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
			b.publish(StateHalfOpen)
			return true
		}
		return false
	}
	return false
}

// RecordSuccess closes the breaker and resets the failure count
func (b *Breaker) RecordSuccess() {
	b.failures.Store(0)
	if State(b.state.Swap(int32(StateClosed))) != StateClosed {
		b.publish(StateClosed)
	}
}

// RecordFailure counts a failure. A failed half-open probe reopens immediately.
func (b *Breaker) RecordFailure() {
	n := b.failures.Add(1)
	half := State(b.state.Load()) == StateHalfOpen
	if n < b.maxFailures && !half {
		return
	}
	b.mu.Lock()
	b.openedAt = time.Now()
	b.mu.Unlock()
	b.state.Store(int32(StateOpen))
	b.publish(StateOpen)
}

// Call runs fn if the breaker allows it and records the outcome
func (b *Breaker) Call(fn func() error) error {
	if !b.Allow() {
		return ErrOpen
	}
	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// State returns the current state
func (b *Breaker) State() State {
	return State(b.state.Load())
}

func (b *Breaker) publish(s State) {
	metrics.CircuitBreakerState.WithLabelValues(b.name).Set(float64(s))
}

// Set holds one breaker per backend name, created on first use
type Set struct {
	maxFailures int64
	timeout     time.Duration

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewSet creates a breaker set with shared settings
func NewSet(maxFailures int64, timeout time.Duration) *Set {
	return &Set{
		maxFailures: maxFailures,
		timeout:     timeout,
		breakers:    make(map[string]*Breaker),
	}
}

// Get returns the breaker for backend, creating it if needed
func (s *Set) Get(backend string) *Breaker {
	s.mu.RLock()
	b, ok := s.breakers[backend]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.breakers[backend]; ok {
		return b
	}
	b = NewBreaker(backend, s.maxFailures, s.timeout)
	s.breakers[backend] = b
	return b
}
