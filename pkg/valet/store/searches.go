// Package store – searches.go logs search requests. The actual search is
// executed by the route layer against the matching backend (web, email,
// calendar, tasks); the log exists for history and rate accounting.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SearchRequest is a logged search intent.
type SearchRequest struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Query     string    `json:"query"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchStore persists search requests in the "searches" table.
type SearchStore struct {
	db *sql.DB
}

// Create inserts a search request. Query is required; type defaults to "web".
func (s *SearchStore) Create(r *SearchRequest) (*SearchRequest, error) {
	if strings.TrimSpace(r.Query) == "" {
		return nil, fmt.Errorf("search query is required")
	}
	if r.UserID == "" {
		return nil, fmt.Errorf("search user ID is required")
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Type == "" {
		r.Type = "web"
	}
	r.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec(`
		INSERT INTO searches (id, user_id, query, type, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Query, r.Type, r.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	return r, nil
}

// FindByID loads a search request by ID.
func (s *SearchStore) FindByID(id string) (*SearchRequest, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, query, type, created_at FROM searches WHERE id = ?`, id)

	var (
		r         SearchRequest
		createdAt string
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.Query, &r.Type, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("search request not found")
		}
		return nil, fmt.Errorf("scan search request: %w", err)
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &r, nil
}
