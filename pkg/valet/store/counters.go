// Package store – counters.go implements the durable rate-limit counter
// store. Each (user, action type) pair holds one fixed-window counter; the
// increment-and-compare runs as a single statement so concurrent requests
// cannot corrupt the count.
package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CounterStore persists rate-limit windows in the "rate_counters" table.
type CounterStore struct {
	db *sql.DB
}

// Increment bumps the counter for (userID, actionType) and returns the count
// within the current window plus the window's reset time. When the stored
// window has elapsed, the counter restarts at 1 with a fresh window.
func (s *CounterStore) Increment(userID, actionType string, window time.Duration) (int, time.Time, error) {
	now := time.Now().UTC()
	resetAt := now.Add(window)

	// Single UPSERT: expired windows restart, live windows increment.
	_, err := s.db.Exec(`
		INSERT INTO rate_counters (user_id, action_type, count, window_reset_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(user_id, action_type) DO UPDATE SET
			count = CASE WHEN rate_counters.window_reset_at <= ? THEN 1 ELSE rate_counters.count + 1 END,
			window_reset_at = CASE WHEN rate_counters.window_reset_at <= ? THEN ? ELSE rate_counters.window_reset_at END`,
		userID, actionType, resetAt.Format(time.RFC3339),
		now.Format(time.RFC3339), now.Format(time.RFC3339), resetAt.Format(time.RFC3339))
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("increment counter: %w", err)
	}

	var (
		count         int
		windowResetAt string
	)
	err = s.db.QueryRow(`
		SELECT count, window_reset_at FROM rate_counters
		WHERE user_id = ? AND action_type = ?`, userID, actionType).
		Scan(&count, &windowResetAt)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("read counter: %w", err)
	}

	reset, _ := time.Parse(time.RFC3339, windowResetAt)
	return count, reset, nil
}

// Reset clears the counter for (userID, actionType). Used by tests and
// operator tooling.
func (s *CounterStore) Reset(userID, actionType string) error {
	_, err := s.db.Exec(`
		DELETE FROM rate_counters WHERE user_id = ? AND action_type = ?`,
		userID, actionType)
	if err != nil {
		return fmt.Errorf("reset counter: %w", err)
	}
	return nil
}
