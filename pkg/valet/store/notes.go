// Package store – notes.go implements the note entity store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Note is a free-form piece of text, optionally categorized and tagged.
// Research assignments produce derived notes with category "research".
type Note struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NoteStore persists notes in the "notes" table.
type NoteStore struct {
	db *sql.DB
}

// Create validates and inserts a note. Content is required; category
// defaults to "personal".
func (s *NoteStore) Create(n *Note) (*Note, error) {
	if strings.TrimSpace(n.Content) == "" {
		return nil, fmt.Errorf("note content is required")
	}
	if n.UserID == "" {
		return nil, fmt.Errorf("note user ID is required")
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Category == "" {
		n.Category = "personal"
	}
	n.CreatedAt = time.Now().UTC()

	tags, err := json.Marshal(n.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshal note tags: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO notes (id, user_id, title, content, category, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Title, n.Content, n.Category, string(tags),
		n.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}
	return n, nil
}

// FindByID loads a note by ID.
func (s *NoteStore) FindByID(id string) (*Note, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, title, content, category, tags, created_at
		FROM notes WHERE id = ?`, id)

	var (
		n         Note
		tags      string
		createdAt string
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.Category, &tags, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("note not found")
		}
		return nil, fmt.Errorf("scan note: %w", err)
	}
	_ = json.Unmarshal([]byte(tags), &n.Tags)
	n.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &n, nil
}

// FindByTitle returns the newest note with an exact title match, or nil.
func (s *NoteStore) FindByTitle(userID, title string) (*Note, error) {
	row := s.db.QueryRow(`
		SELECT id FROM notes WHERE user_id = ? AND title = ?
		ORDER BY created_at DESC LIMIT 1`, userID, title)

	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find note by title: %w", err)
	}
	return s.FindByID(id)
}
