// Package store – meetings.go implements the meeting request store.
// A meeting request is handed to an external scheduling provider; until the
// provider confirms, it stays in "pending_provider".
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MeetingRequest is a pending request to schedule a meeting through an
// external provider (e.g. "zoom", "meet").
type MeetingRequest struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Provider        string    `json:"provider"`
	Title           string    `json:"title,omitempty"`
	StartTime       string    `json:"start_time,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// MeetingStore persists meeting requests in the "meetings" table.
type MeetingStore struct {
	db *sql.DB
}

// Create inserts a meeting request. Duration defaults to 60 minutes and
// status always starts as "pending_provider".
func (s *MeetingStore) Create(m *MeetingRequest) (*MeetingRequest, error) {
	if m.UserID == "" {
		return nil, fmt.Errorf("meeting user ID is required")
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.DurationMinutes <= 0 {
		m.DurationMinutes = 60
	}
	m.Status = "pending_provider"
	m.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec(`
		INSERT INTO meetings (id, user_id, provider, title, start_time, duration_minutes, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.Provider, m.Title, m.StartTime, m.DurationMinutes,
		m.Status, m.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("create meeting request: %w", err)
	}
	return m, nil
}

// FindByID loads a meeting request by ID.
func (s *MeetingStore) FindByID(id string) (*MeetingRequest, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, provider, title, start_time, duration_minutes, status, created_at
		FROM meetings WHERE id = ?`, id)

	var (
		m         MeetingRequest
		createdAt string
	)
	if err := row.Scan(&m.ID, &m.UserID, &m.Provider, &m.Title, &m.StartTime, &m.DurationMinutes, &m.Status, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("meeting request not found")
		}
		return nil, fmt.Errorf("scan meeting request: %w", err)
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &m, nil
}

// UpdateStatus changes a meeting request's status (pending_provider,
// confirmed, cancelled).
func (s *MeetingStore) UpdateStatus(id, status string) error {
	res, err := s.db.Exec("UPDATE meetings SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("update meeting request %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("meeting request %q not found", id)
	}
	return nil
}
