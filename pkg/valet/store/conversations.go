// Package store – conversations.go persists conversations and their
// append-only message log. Messages are never mutated after creation; the
// accumulator reads back a bounded recent window per turn.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is one turn in a conversation. Role is "user" or "assistant".
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationRecord is the persisted conversation header.
type ConversationRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Mode         string    `json:"mode"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// ConversationStore persists conversations and messages.
type ConversationStore struct {
	db *sql.DB
}

// Create inserts a new conversation for the user.
func (s *ConversationStore) Create(userID, mode string) (*ConversationRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("conversation user ID is required")
	}
	if mode == "" {
		mode = "text"
	}

	now := time.Now().UTC()
	rec := &ConversationRecord{
		ID:           uuid.NewString(),
		UserID:       userID,
		Mode:         mode,
		CreatedAt:    now,
		LastActiveAt: now,
	}

	_, err := s.db.Exec(`
		INSERT INTO conversations (id, user_id, mode, created_at, last_active_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Mode,
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return rec, nil
}

// FindByID loads a conversation header.
func (s *ConversationStore) FindByID(id string) (*ConversationRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, mode, created_at, last_active_at
		FROM conversations WHERE id = ?`, id)

	var (
		rec          ConversationRecord
		createdAt    string
		lastActiveAt string
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Mode, &createdAt, &lastActiveAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("conversation not found")
		}
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.LastActiveAt, _ = time.Parse(time.RFC3339, lastActiveAt)
	return &rec, nil
}

// AppendMessage adds one message to the conversation log and bumps the
// conversation's last-active timestamp.
func (s *ConversationStore) AppendMessage(conversationID, role, content string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	if _, err := s.db.Exec(`
		INSERT INTO messages (conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?)`,
		conversationID, role, content, now); err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	if _, err := s.db.Exec(`
		UPDATE conversations SET last_active_at = ? WHERE id = ?`,
		now, conversationID); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

// RecentMessages returns the last maxEntries messages in chronological order.
func (s *ConversationStore) RecentMessages(conversationID string, maxEntries int) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT role, content, created_at FROM messages
		WHERE conversation_id = ?
		ORDER BY id DESC LIMIT ?`, conversationID, maxEntries)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			m         Message
			createdAt string
		)
		if err := rows.Scan(&m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
