// Package store – tasks.go implements the task entity store.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task is a to-do item created by the user, the assistant, or voice input.
type Task struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Status      string     `json:"status"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TaskStore persists tasks in the central valet.db "tasks" table.
type TaskStore struct {
	db *sql.DB
}

// Create validates and inserts a task. Title is required; priority defaults
// to "medium" and status always starts as "pending".
func (s *TaskStore) Create(t *Task) (*Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return nil, fmt.Errorf("task title is required")
	}
	if t.UserID == "" {
		return nil, fmt.Errorf("task user ID is required")
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Priority == "" {
		t.Priority = "medium"
	}
	if t.CreatedBy == "" {
		t.CreatedBy = "user"
	}
	t.Status = "pending"
	t.CreatedAt = time.Now().UTC()

	var dueDate sql.NullString
	if t.DueDate != nil {
		dueDate = sql.NullString{String: t.DueDate.UTC().Format(time.RFC3339), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO tasks (id, user_id, title, description, priority, due_date, status, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Title, t.Description, t.Priority, dueDate,
		t.Status, t.CreatedBy, t.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// FindByID loads a task by ID.
func (s *TaskStore) FindByID(id string) (*Task, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, title, description, priority, due_date, status, created_by, created_at
		FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// ListPending returns the user's pending tasks, newest first, up to limit.
func (s *TaskStore) ListPending(userID string, limit int) ([]*Task, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, title, description, priority, due_date, status, created_by, created_at
		FROM tasks WHERE user_id = ? AND status = 'pending'
		ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateStatus changes a task's status.
func (s *TaskStore) UpdateStatus(id, status string) error {
	res, err := s.db.Exec("UPDATE tasks SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("update task %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %q not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		t         Task
		dueDate   sql.NullString
		createdAt string
	)
	if err := row.Scan(
		&t.ID, &t.UserID, &t.Title, &t.Description, &t.Priority,
		&dueDate, &t.Status, &t.CreatedBy, &createdAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("task not found")
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if dueDate.Valid {
		d, _ := time.Parse(time.RFC3339, dueDate.String)
		t.DueDate = &d
	}
	return &t, nil
}
