package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

func TestBreaker_StateTransitions(t *testing.T) {
	breaker := NewBreaker("primary", 3, 50*time.Millisecond)

	if breaker.State() != StateClosed {
		t.Errorf("Expected state=closed, got %v", breaker.State())
	}

	breaker.RecordFailure()
	breaker.RecordFailure()
	if breaker.State() != StateClosed {
		t.Errorf("Expected state=closed after 2 failures, got %v", breaker.State())
	}

	breaker.RecordFailure()
	if breaker.State() != StateOpen {
		t.Errorf("Expected state=open after 3 failures, got %v", breaker.State())
	}
	if breaker.Allow() {
		t.Error("Expected Allow() to return false while open")
	}

	time.Sleep(80 * time.Millisecond)

	if !breaker.Allow() {
		t.Error("Expected Allow() to return true after timeout")
	}
	if breaker.State() != StateHalfOpen {
		t.Errorf("Expected state=half-open, got %v", breaker.State())
	}

	breaker.RecordSuccess()
	if breaker.State() != StateClosed {
		t.Errorf("Expected state=closed after success, got %v", breaker.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	breaker := NewBreaker("secondary", 2, 20*time.Millisecond)
	breaker.RecordFailure()
	breaker.RecordFailure()

	time.Sleep(40 * time.Millisecond)
	if !breaker.Allow() {
		t.Fatal("Expected a half-open probe to be allowed")
	}

	breaker.RecordFailure()
	if breaker.State() != StateOpen {
		t.Errorf("Expected a failed probe to reopen, got %v", breaker.State())
	}
}

func TestBreaker_Call(t *testing.T) {
	breaker := NewBreaker("primary", 1, time.Hour)
	dialErr := errors.New("connection refused")

	if err := breaker.Call(func() error { return dialErr }); !errors.Is(err, dialErr) {
		t.Errorf("Expected dial error, got %v", err)
	}
	called := false
	err := breaker.Call(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Expected ErrOpen, got %v", err)
	}
	if called {
		t.Error("fn must not run while open")
	}
}

func TestSet_Get(t *testing.T) {
	set := NewSet(5, time.Second)
	a := set.Get("primary")
	if set.Get("primary") != a {
		t.Error("Expected the same breaker for the same backend")
	}
	if set.Get("secondary") == a {
		t.Error("Expected distinct breakers per backend")
	}
}
