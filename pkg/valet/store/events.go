// Package store – events.go implements the calendar event entity store,
// including the overlap query used by the guardrail conflict check.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CalendarEvent is a locally materialized calendar entry. Source is "manual"
// for events created through the assistant; synced events carry the name of
// the external integration they came from.
type CalendarEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Location  string    `json:"location,omitempty"`
	Attendees []string  `json:"attendees,omitempty"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// EventStore persists calendar events in the "events" table.
type EventStore struct {
	db *sql.DB
}

// Create validates and inserts an event. End time is required; source
// defaults to "manual".
func (s *EventStore) Create(e *CalendarEvent) (*CalendarEvent, error) {
	if e.UserID == "" {
		return nil, fmt.Errorf("event user ID is required")
	}
	if e.EndTime.IsZero() {
		return nil, fmt.Errorf("event end time is required")
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Source == "" {
		e.Source = "manual"
	}
	e.CreatedAt = time.Now().UTC()

	attendees, err := json.Marshal(e.Attendees)
	if err != nil {
		return nil, fmt.Errorf("marshal attendees: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO events (id, user_id, title, start_time, end_time, location, attendees, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Title,
		e.StartTime.UTC().Format(time.RFC3339), e.EndTime.UTC().Format(time.RFC3339),
		e.Location, string(attendees), e.Source, e.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return e, nil
}

// FindByID loads an event by ID.
func (s *EventStore) FindByID(id string) (*CalendarEvent, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, title, start_time, end_time, location, attendees, source, created_at
		FROM events WHERE id = ?`, id)
	return scanEvent(row)
}

// FindOverlapping returns the user's events overlapping [start, end).
// Used by the calendar conflict guardrail; overlaps warn but never block.
func (s *EventStore) FindOverlapping(userID string, start, end time.Time) ([]*CalendarEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, title, start_time, end_time, location, attendees, source, created_at
		FROM events
		WHERE user_id = ? AND start_time < ? AND end_time > ?
		ORDER BY start_time ASC`,
		userID, end.UTC().Format(time.RFC3339), start.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("find overlapping events: %w", err)
	}
	defer rows.Close()

	var events []*CalendarEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListUpcoming returns the user's events starting after now, soonest first.
func (s *EventStore) ListUpcoming(userID string, limit int) ([]*CalendarEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, title, start_time, end_time, location, attendees, source, created_at
		FROM events WHERE user_id = ? AND start_time >= ?
		ORDER BY start_time ASC LIMIT ?`,
		userID, time.Now().UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	defer rows.Close()

	var events []*CalendarEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(row rowScanner) (*CalendarEvent, error) {
	var (
		e         CalendarEvent
		startTime string
		endTime   string
		attendees string
		createdAt string
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.Title, &startTime, &endTime, &e.Location, &attendees, &e.Source, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("event not found")
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	e.StartTime, _ = time.Parse(time.RFC3339, startTime)
	e.EndTime, _ = time.Parse(time.RFC3339, endTime)
	_ = json.Unmarshal([]byte(attendees), &e.Attendees)
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &e, nil
}
