// Package security – ratelimit.go implements per-(user, action type) fixed
// window rate limiting. The counter store is pluggable: the in-memory
// implementation below serves tests and single-shot CLI use, while serve mode
// wires the SQLite-backed store so counters survive restarts.
package security

import (
	"sync"
	"time"
)

// DefaultWindow is the rate-limit window length.
const DefaultWindow = time.Hour

// DefaultCeilings are the per-action-type limits per window.
var DefaultCeilings = map[string]int{
	"assignment":     10,
	"note":           100,
	"task":           50,
	"reminder":       50,
	"calendar_event": 30,
	"email_draft":    20,
	"meeting":        20,
	"search":         60,
}

// defaultCeiling applies to action types with no explicit entry.
const defaultCeiling = 30

// CounterStore is the shared, atomically updated counter backend.
// Implemented by store.CounterStore (SQLite) and MemoryCounters below.
type CounterStore interface {
	// Increment bumps the (userID, actionType) counter and returns the count
	// within the current window and the window's reset time. Expired windows
	// restart at 1.
	Increment(userID, actionType string, window time.Duration) (int, time.Time, error)
}

// Limiter enforces the per-action ceilings over a CounterStore.
type Limiter struct {
	counters CounterStore
	window   time.Duration
	ceilings map[string]int
}

// NewLimiter creates a rate limiter. Nil ceilings fall back to the defaults.
func NewLimiter(counters CounterStore, window time.Duration, ceilings map[string]int) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if ceilings == nil {
		ceilings = DefaultCeilings
	}
	return &Limiter{
		counters: counters,
		window:   window,
		ceilings: ceilings,
	}
}

// Allow records one action and reports whether it fits the ceiling. When
// denied, retryAfter is the time until the window resets.
func (l *Limiter) Allow(userID, actionType string) (bool, time.Duration, error) {
	count, resetAt, err := l.counters.Increment(userID, actionType, l.window)
	if err != nil {
		return false, 0, err
	}

	ceiling, ok := l.ceilings[actionType]
	if !ok {
		ceiling = defaultCeiling
	}

	if count > ceiling {
		return false, time.Until(resetAt), nil
	}
	return true, 0, nil
}

// ---------- In-memory counter store ----------

type memoryWindow struct {
	count   int
	resetAt time.Time
}

// MemoryCounters is a process-local CounterStore. The mutex makes
// increment-and-compare atomic; state does not survive restarts.
type MemoryCounters struct {
	windows map[string]*memoryWindow
	mu      sync.Mutex
}

// NewMemoryCounters creates an empty in-memory counter store.
func NewMemoryCounters() *MemoryCounters {
	return &MemoryCounters{windows: make(map[string]*memoryWindow)}
}

// Increment implements CounterStore.
func (m *MemoryCounters) Increment(userID, actionType string, window time.Duration) (int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := userID + ":" + actionType
	now := time.Now()

	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &memoryWindow{count: 0, resetAt: now.Add(window)}
		m.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt, nil
}
