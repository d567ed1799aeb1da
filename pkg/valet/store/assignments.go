// Package store – assignments.go implements the research assignment store.
// Assignments are the one long-lived, stateful entity: the store enforces the
// status machine (in_progress → completed | failed, failed → in_progress via
// retry) and provides the claim/lease operations the background worker uses
// to guarantee a single consumer per assignment.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Assignment statuses.
const (
	AssignmentInProgress = "in_progress"
	AssignmentCompleted  = "completed"
	AssignmentFailed     = "failed"
)

// Assignment types recognized by the classifier.
var assignmentTypes = map[string]bool{
	"research":       true,
	"comparison":     true,
	"recommendation": true,
	"investigation":  true,
	"analysis":       true,
}

// ErrInvalidTransition is returned when a status change violates the
// assignment state machine.
var ErrInvalidTransition = errors.New("invalid assignment status transition")

// Assignment is a long-running research request completed out-of-band by the
// background worker. Findings are populated only on completion.
type Assignment struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Query            string     `json:"query"`
	Type             string     `json:"type"`
	Priority         string     `json:"priority"`
	Status           string     `json:"status"`
	Findings         string     `json:"findings,omitempty"`
	NotificationSent bool       `json:"notification_sent"`
	Viewed           bool       `json:"viewed"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// AssignmentStore persists assignments in the "assignments" table.
type AssignmentStore struct {
	db *sql.DB
}

// Create validates and inserts an assignment. Title and query are required;
// type defaults to "research" and status always starts as in_progress.
func (s *AssignmentStore) Create(a *Assignment) (*Assignment, error) {
	if strings.TrimSpace(a.Title) == "" {
		return nil, fmt.Errorf("assignment title is required")
	}
	if strings.TrimSpace(a.Query) == "" {
		return nil, fmt.Errorf("assignment query is required")
	}
	if a.UserID == "" {
		return nil, fmt.Errorf("assignment user ID is required")
	}
	if a.Type != "" && !assignmentTypes[a.Type] {
		return nil, fmt.Errorf("unknown assignment type %q", a.Type)
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Type == "" {
		a.Type = "research"
	}
	if a.Priority == "" {
		a.Priority = "medium"
	}
	a.Status = AssignmentInProgress
	a.Findings = ""
	a.NotificationSent = false
	a.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec(`
		INSERT INTO assignments (id, user_id, title, description, query, type, priority, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Title, a.Description, a.Query, a.Type, a.Priority,
		a.Status, a.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("create assignment: %w", err)
	}
	return a, nil
}

// FindByID loads an assignment by ID.
func (s *AssignmentStore) FindByID(id string) (*Assignment, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, title, description, query, type, priority, status,
		       findings, notification_sent, viewed, created_at, completed_at
		FROM assignments WHERE id = ?`, id)
	return scanAssignment(row)
}

// ListByUser returns the user's assignments, newest first.
func (s *AssignmentStore) ListByUser(userID string, limit int) ([]*Assignment, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, title, description, query, type, priority, status,
		       findings, notification_sent, viewed, created_at, completed_at
		FROM assignments WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// Complete transitions in_progress → completed, persisting the findings and
// stamping completed_at. Any other starting status is rejected.
func (s *AssignmentStore) Complete(id, findings string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		UPDATE assignments
		SET status = ?, findings = ?, completed_at = ?, claimed_at = NULL
		WHERE id = ? AND status = ?`,
		AssignmentCompleted, findings, now, id, AssignmentInProgress)
	if err != nil {
		return fmt.Errorf("complete assignment %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("assignment %q: %w (complete requires in_progress)", id, ErrInvalidTransition)
	}
	return nil
}

// Fail transitions in_progress → failed. Findings stay empty and no
// notification is recorded.
func (s *AssignmentStore) Fail(id string) error {
	res, err := s.db.Exec(`
		UPDATE assignments SET status = ?, claimed_at = NULL
		WHERE id = ? AND status = ?`,
		AssignmentFailed, id, AssignmentInProgress)
	if err != nil {
		return fmt.Errorf("fail assignment %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("assignment %q: %w (fail requires in_progress)", id, ErrInvalidTransition)
	}
	return nil
}

// ResetForRetry transitions failed → in_progress, clearing findings and the
// notification flag. With force=true the reset applies from any status
// (operator escape hatch).
func (s *AssignmentStore) ResetForRetry(id string, force bool) error {
	query := `
		UPDATE assignments
		SET status = ?, findings = '', notification_sent = 0, completed_at = NULL, claimed_at = NULL
		WHERE id = ?`
	args := []any{AssignmentInProgress, id}
	if !force {
		query += " AND status = ?"
		args = append(args, AssignmentFailed)
	}

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("reset assignment %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("assignment %q: %w (retry requires failed)", id, ErrInvalidTransition)
	}
	return nil
}

// SetNotificationSent records that the completion notification went out.
func (s *AssignmentStore) SetNotificationSent(id string, sent bool) error {
	_, err := s.db.Exec("UPDATE assignments SET notification_sent = ? WHERE id = ?",
		boolToInt(sent), id)
	if err != nil {
		return fmt.Errorf("update assignment %q: %w", id, err)
	}
	return nil
}

// MarkViewed records that the user opened the assignment results.
func (s *AssignmentStore) MarkViewed(id string) error {
	_, err := s.db.Exec("UPDATE assignments SET viewed = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("mark assignment %q viewed: %w", id, err)
	}
	return nil
}

// Claim takes a processing lease on an in_progress assignment. It succeeds
// only when no other consumer holds an unexpired lease, so concurrent workers
// never process the same assignment twice.
func (s *AssignmentStore) Claim(id string, leaseDuration time.Duration) (bool, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-leaseDuration).Format(time.RFC3339)

	res, err := s.db.Exec(`
		UPDATE assignments SET claimed_at = ?
		WHERE id = ? AND status = ? AND (claimed_at IS NULL OR claimed_at < ?)`,
		now.Format(time.RFC3339), id, AssignmentInProgress, cutoff)
	if err != nil {
		return false, fmt.Errorf("claim assignment %q: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// StaleInProgress returns IDs of in_progress assignments created before the
// cutoff whose lease (if any) has expired. Used by the startup/periodic sweep
// to re-enqueue work lost to a restart.
func (s *AssignmentStore) StaleInProgress(olderThan time.Duration) ([]string, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	rows, err := s.db.Query(`
		SELECT id FROM assignments
		WHERE status = ? AND created_at <= ? AND (claimed_at IS NULL OR claimed_at <= ?)`,
		AssignmentInProgress, cutoff, cutoff)
	if err != nil {
		return nil, fmt.Errorf("scan stale assignments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan assignment id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanAssignment(row rowScanner) (*Assignment, error) {
	var (
		a                Assignment
		notificationSent int
		viewed           int
		createdAt        string
		completedAt      sql.NullString
	)
	if err := row.Scan(
		&a.ID, &a.UserID, &a.Title, &a.Description, &a.Query, &a.Type,
		&a.Priority, &a.Status, &a.Findings, &notificationSent, &viewed,
		&createdAt, &completedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("assignment not found")
		}
		return nil, fmt.Errorf("scan assignment: %w", err)
	}
	a.NotificationSent = notificationSent != 0
	a.Viewed = viewed != 0
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339, completedAt.String)
		a.CompletedAt = &t
	}
	return &a, nil
}
