package security

import (
	"testing"
	"time"
)

func TestLimiterAllowsUpToCeiling(t *testing.T) {
	limiter := NewLimiter(NewMemoryCounters(), time.Hour, map[string]int{"note": 3})

	for i := 0; i < 3; i++ {
		ok, _, err := limiter.Allow("u1", "note")
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !ok {
			t.Fatalf("action %d should fit the ceiling", i+1)
		}
	}

	ok, retryAfter, err := limiter.Allow("u1", "note")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if ok {
		t.Fatal("expected denial past the ceiling")
	}
	if retryAfter <= 0 || retryAfter > time.Hour {
		t.Errorf("retryAfter out of range: %v", retryAfter)
	}
}

func TestLimiterUsersAreIndependent(t *testing.T) {
	limiter := NewLimiter(NewMemoryCounters(), time.Hour, map[string]int{"note": 1})

	if ok, _, _ := limiter.Allow("u1", "note"); !ok {
		t.Fatal("first action for u1 should pass")
	}
	if ok, _, _ := limiter.Allow("u1", "note"); ok {
		t.Fatal("second action for u1 should be denied")
	}
	if ok, _, _ := limiter.Allow("u2", "note"); !ok {
		t.Fatal("u2 has their own counter and should pass")
	}
}

func TestLimiterWindowResets(t *testing.T) {
	// A nanosecond window expires between calls, so every call restarts at 1.
	limiter := NewLimiter(NewMemoryCounters(), time.Nanosecond, map[string]int{"note": 1})

	for i := 0; i < 5; i++ {
		ok, _, err := limiter.Allow("u1", "note")
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !ok {
			t.Fatalf("call %d should pass after window reset", i+1)
		}
	}
}

func TestLimiterDefaultCeilingForUnknownType(t *testing.T) {
	limiter := NewLimiter(NewMemoryCounters(), time.Hour, map[string]int{})

	for i := 0; i < defaultCeiling; i++ {
		if ok, _, _ := limiter.Allow("u1", "mystery"); !ok {
			t.Fatalf("action %d should fit the default ceiling", i+1)
		}
	}
	if ok, _, _ := limiter.Allow("u1", "mystery"); ok {
		t.Fatal("expected denial past the default ceiling")
	}
}
