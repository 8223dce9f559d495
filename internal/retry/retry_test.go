package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxRetries: 3, RetryDelay: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoGivesUp(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Do(context.Background(), Config{MaxRetries: 2, RetryDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped boom, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 1 attempt + 2 retries, got %d calls", calls)
	}
}

func TestDoPermanentStopsImmediately(t *testing.T) {
	rejected := errors.New("rejected")
	calls := 0
	err := Do(context.Background(), Config{MaxRetries: 5, RetryDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return Permanent(rejected)
	})
	if err != rejected {
		t.Errorf("expected the unwrapped permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, Config{MaxRetries: 1}, func(context.Context) error {
		t.Fatal("fn must not run on a cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
