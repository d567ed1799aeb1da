// Package store – integrations.go tracks which external integrations a user
// has connected. The guardrail engine consults this before allowing actions
// that depend on a connected service (email drafting, calendar writes).
package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Integration kinds known to the guardrail engine.
const (
	IntegrationEmail    = "email"
	IntegrationCalendar = "calendar"
)

// IntegrationStore persists connection state in the "integrations" table.
type IntegrationStore struct {
	db *sql.DB
}

// IsConnected reports whether the user has the given integration connected.
func (s *IntegrationStore) IsConnected(userID, kind string) bool {
	var connected int
	err := s.db.QueryRow(`
		SELECT connected FROM integrations WHERE user_id = ? AND kind = ?`,
		userID, kind).Scan(&connected)
	if err != nil {
		return false
	}
	return connected != 0
}

// SetConnected records a connection state change for the user.
func (s *IntegrationStore) SetConnected(userID, kind string, connected bool) error {
	var connectedAt sql.NullString
	if connected {
		connectedAt = sql.NullString{String: time.Now().UTC().Format(time.RFC3339), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO integrations (user_id, kind, connected, connected_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, kind) DO UPDATE SET connected = excluded.connected,
		                                         connected_at = excluded.connected_at`,
		userID, kind, boolToInt(connected), connectedAt)
	if err != nil {
		return fmt.Errorf("set integration %q for %q: %w", kind, userID, err)
	}
	return nil
}

// ListConnected returns the kinds the user currently has connected.
func (s *IntegrationStore) ListConnected(userID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT kind FROM integrations WHERE user_id = ? AND connected = 1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close()

	var kinds []string
	for rows.Next() {
		var kind string
		if err := rows.Scan(&kind); err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		kinds = append(kinds, kind)
	}
	return kinds, rows.Err()
}
