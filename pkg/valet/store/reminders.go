// Package store – reminders.go implements the reminder entity store.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Reminder is a time-anchored alert. ReminderTime must always be a concrete
// instant; ambiguous relative phrases are resolved (or rejected) upstream
// before a reminder ever reaches this store.
type Reminder struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	Notes        string    `json:"notes,omitempty"`
	ReminderTime time.Time `json:"reminder_time"`
	IsUrgent     bool      `json:"is_urgent"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// ReminderStore persists reminders in the "reminders" table.
type ReminderStore struct {
	db *sql.DB
}

// Create validates and inserts a reminder. Title and a concrete reminder
// time are required; status always starts as "active".
func (s *ReminderStore) Create(r *Reminder) (*Reminder, error) {
	if strings.TrimSpace(r.Title) == "" {
		return nil, fmt.Errorf("reminder title is required")
	}
	if r.UserID == "" {
		return nil, fmt.Errorf("reminder user ID is required")
	}
	if r.ReminderTime.IsZero() {
		return nil, fmt.Errorf("reminder time is required")
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.Status = "active"
	r.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec(`
		INSERT INTO reminders (id, user_id, title, notes, reminder_time, is_urgent, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Title, r.Notes,
		r.ReminderTime.UTC().Format(time.RFC3339),
		boolToInt(r.IsUrgent), r.Status, r.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("create reminder: %w", err)
	}
	return r, nil
}

// FindByID loads a reminder by ID.
func (s *ReminderStore) FindByID(id string) (*Reminder, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, title, notes, reminder_time, is_urgent, status, created_at
		FROM reminders WHERE id = ?`, id)

	var (
		r            Reminder
		isUrgent     int
		reminderTime string
		createdAt    string
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.Title, &r.Notes, &reminderTime, &isUrgent, &r.Status, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("reminder not found")
		}
		return nil, fmt.Errorf("scan reminder: %w", err)
	}
	r.IsUrgent = isUrgent != 0
	r.ReminderTime, _ = time.Parse(time.RFC3339, reminderTime)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &r, nil
}

// ListActive returns the user's active reminders ordered by fire time.
func (s *ReminderStore) ListActive(userID string, limit int) ([]*Reminder, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, title, notes, reminder_time, is_urgent, status, created_at
		FROM reminders WHERE user_id = ? AND status = 'active'
		ORDER BY reminder_time ASC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*Reminder
	for rows.Next() {
		var (
			r            Reminder
			isUrgent     int
			reminderTime string
			createdAt    string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Title, &r.Notes, &reminderTime, &isUrgent, &r.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		r.IsUrgent = isUrgent != 0
		r.ReminderTime, _ = time.Parse(time.RFC3339, reminderTime)
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		reminders = append(reminders, &r)
	}
	return reminders, rows.Err()
}

// UpdateStatus changes a reminder's status (active, done, dismissed).
func (s *ReminderStore) UpdateStatus(id, status string) error {
	res, err := s.db.Exec("UPDATE reminders SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("update reminder %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("reminder %q not found", id)
	}
	return nil
}
