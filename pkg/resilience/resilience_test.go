package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensOnRateLimit(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = func() time.Time { return now }

	if cb.OnError(errors.New("boom")) {
		t.Fatalf("plain errors must not open the breaker")
	}
	if cb.OnError(RateLimitError{Provider: "deepl"}) {
		t.Fatalf("breaker opened before threshold")
	}
	if !cb.OnError(RateLimitError{Provider: "deepl"}) {
		t.Fatalf("expected breaker to open at threshold")
	}
	if cb.Allow() {
		t.Fatalf("expected breaker to deny while open")
	}
	now = now.Add(2 * time.Minute)
	if !cb.Allow() {
		t.Fatalf("expected breaker to allow after cooldown")
	}
}

func TestRetryPolicyStopsOnSuccess(t *testing.T) {
	calls := 0
	err := NewRetryPolicy(3, time.Millisecond).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetryPolicyHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewRetryPolicy(5, time.Second).Do(ctx, func(context.Context) error {
		return errors.New("down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
