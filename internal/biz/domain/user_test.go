package domain

import (
	"testing"
	"time"
)

func TestRateWindow_Consume_LimitBoundary(t *testing.T) {
	limit := RateLimit{MaxPerMinute: 5, BlockTime: 60 * time.Second}
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	var w RateWindow
	var d RateDecision
	for i := 0; i < 5; i++ {
		w, d = w.Consume(start.Add(time.Duration(i)*time.Second), limit)
		if !d.Allowed {
			t.Fatalf("attempt %d: expected allowed", i+1)
		}
	}

	w, d = w.Consume(start.Add(5*time.Second), limit)
	if d.Allowed {
		t.Fatal("sixth attempt: expected limited")
	}
	if !d.JustLimited {
		t.Error("sixth attempt: expected JustLimited")
	}
	if d.RetryAfter != 60*time.Second {
		t.Errorf("RetryAfter = %v, want 60s", d.RetryAfter)
	}

	// After block_time the next attempt is allowed again
	w, d = w.Consume(start.Add(66*time.Second), limit)
	if !d.Allowed {
		t.Fatal("seventh attempt after block: expected allowed")
	}
	if w.Limited || w.Count != 1 {
		t.Errorf("window not reset: %+v", w)
	}
}

func TestRateWindow_Consume_LimitedDoesNotCount(t *testing.T) {
	limit := RateLimit{MaxPerMinute: 1, BlockTime: 30 * time.Second}
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	var w RateWindow
	w, _ = w.Consume(now, limit)
	w, _ = w.Consume(now.Add(time.Second), limit)
	count := w.Count

	w, d := w.Consume(now.Add(2*time.Second), limit)
	if d.Allowed || d.JustLimited {
		t.Errorf("expected silent rejection, got %+v", d)
	}
	if w.Count != count {
		t.Errorf("count changed while limited: %d -> %d", count, w.Count)
	}
	if d.RetryAfter != 29*time.Second {
		t.Errorf("RetryAfter = %v, want 29s", d.RetryAfter)
	}
}

func TestRateWindow_Consume_WindowExpiryResets(t *testing.T) {
	limit := RateLimit{MaxPerMinute: 2, BlockTime: time.Minute}
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	var w RateWindow
	w, _ = w.Consume(now, limit)
	w, _ = w.Consume(now.Add(10*time.Second), limit)

	w, d := w.Consume(now.Add(60*time.Second), limit)
	if !d.Allowed {
		t.Fatal("expected allowed at window expiry")
	}
	if w.Count != 1 {
		t.Errorf("Count = %d, want 1", w.Count)
	}
	if !w.ExpiresAt.Equal(now.Add(120 * time.Second)) {
		t.Errorf("ExpiresAt = %v", w.ExpiresAt)
	}
}
