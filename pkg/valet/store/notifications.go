// Package store – notifications.go implements the notification store.
// Notifications are pull-based: the route layer lists them for display and
// push delivery is its concern, not ours.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Notification is a user-facing alert, typically emitted when a background
// assignment completes. RelatedID/RelatedModel point at the source entity.
type Notification struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	Type         string            `json:"type"`
	Title        string            `json:"title"`
	Message      string            `json:"message"`
	Priority     string            `json:"priority"`
	RelatedID    string            `json:"related_id,omitempty"`
	RelatedModel string            `json:"related_model,omitempty"`
	ActionURL    string            `json:"action_url,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// NotificationStore persists notifications in the "notifications" table.
type NotificationStore struct {
	db *sql.DB
}

// Create inserts a notification. Priority defaults to "medium".
func (s *NotificationStore) Create(n *Notification) (*Notification, error) {
	if n.UserID == "" {
		return nil, fmt.Errorf("notification user ID is required")
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Priority == "" {
		n.Priority = "medium"
	}
	n.CreatedAt = time.Now().UTC()

	metadata := "{}"
	if len(n.Metadata) > 0 {
		b, err := json.Marshal(n.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal notification metadata: %w", err)
		}
		metadata = string(b)
	}

	_, err := s.db.Exec(`
		INSERT INTO notifications (id, user_id, type, title, message, priority,
		                           related_id, related_model, action_url, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.Priority,
		n.RelatedID, n.RelatedModel, n.ActionURL, metadata,
		n.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	return n, nil
}

// ListByUser returns the user's notifications, newest first.
func (s *NotificationStore) ListByUser(userID string, limit int) ([]*Notification, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, type, title, message, priority, related_id,
		       related_model, action_url, metadata, created_at
		FROM notifications WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		var (
			n         Notification
			metadata  string
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message,
			&n.Priority, &n.RelatedID, &n.RelatedModel, &n.ActionURL,
			&metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		_ = json.Unmarshal([]byte(metadata), &n.Metadata)
		n.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

// FindByRelated returns notifications pointing at a specific entity.
func (s *NotificationStore) FindByRelated(relatedModel, relatedID string) ([]*Notification, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id FROM notifications
		WHERE related_model = ? AND related_id = ?`, relatedModel, relatedID)
	if err != nil {
		return nil, fmt.Errorf("find notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}
