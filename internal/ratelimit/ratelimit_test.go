package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestPerModelLimit(t *testing.T) {
	l := New(2, 0)

	for i := 0; i < 2; i++ {
		if err := l.Use("flash"); err != nil {
			t.Fatalf("call %d: unexpected error %v", i, err)
		}
	}
	if err := l.Use("flash"); !errors.Is(err, ErrModelLimitExceeded) {
		t.Fatalf("expected ErrModelLimitExceeded, got %v", err)
	}
	if err := l.Use("pro"); err != nil {
		t.Errorf("other models should keep their own budget: %v", err)
	}
}

func TestTotalLimit(t *testing.T) {
	l := New(0, 3)

	l.Use("a")
	l.Use("b")
	l.Use("c")
	err := l.Use("d")
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
	if errors.Is(err, ErrModelLimitExceeded) {
		t.Error("total exhaustion must not look like a per-model limit")
	}
}

func TestZeroLimitsAreUnlimited(t *testing.T) {
	l := New(0, 0)
	for i := 0; i < 100; i++ {
		if err := l.Use("m"); err != nil {
			t.Fatalf("unexpected error at %d: %v", i, err)
		}
	}
}

func TestWindowReset(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(1, 0)
	l.SetClock(func() time.Time { return now })

	if err := l.Use("m"); err != nil {
		t.Fatal(err)
	}
	if err := l.Use("m"); err == nil {
		t.Fatal("expected limit reached")
	}

	now = now.Add(25 * time.Hour)
	if err := l.Use("m"); err != nil {
		t.Fatalf("expected counters to reset after the window: %v", err)
	}
}

func TestCacheHitRate(t *testing.T) {
	l := New(0, 0)
	l.Use("m")
	l.RecordCacheHit()
	l.RecordCacheHit()
	l.RecordCacheHit()

	if got := l.GetCacheHitRate(); got != 75 {
		t.Errorf("expected 75%% hit rate, got %.1f", got)
	}
	if l.GetStats()["total_used"] != 1 {
		t.Errorf("unexpected stats %v", l.GetStats())
	}
}
