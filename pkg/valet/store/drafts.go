// Package store – drafts.go implements the email draft store. Drafts are
// never sent by the assistant; sending happens through the user's connected
// mail integration after explicit review.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EmailDraft is a prepared email awaiting user review. IsDraft is always
// true on creation and only an external send path may flip it.
type EmailDraft struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	To        []string  `json:"to"`
	CC        []string  `json:"cc,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body,omitempty"`
	IsDraft   bool      `json:"is_draft"`
	CreatedAt time.Time `json:"created_at"`
}

// DraftStore persists email drafts in the "email_drafts" table.
type DraftStore struct {
	db *sql.DB
}

// Create inserts a draft. The draft flag is forced on.
func (s *DraftStore) Create(d *EmailDraft) (*EmailDraft, error) {
	if d.UserID == "" {
		return nil, fmt.Errorf("draft user ID is required")
	}

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.IsDraft = true
	d.CreatedAt = time.Now().UTC()

	to, err := json.Marshal(d.To)
	if err != nil {
		return nil, fmt.Errorf("marshal recipients: %w", err)
	}
	cc, err := json.Marshal(d.CC)
	if err != nil {
		return nil, fmt.Errorf("marshal cc: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO email_drafts (id, user_id, to_addrs, cc_addrs, subject, body, is_draft, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
		d.ID, d.UserID, string(to), string(cc), d.Subject, d.Body,
		d.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}
	return d, nil
}

// FindByID loads a draft by ID.
func (s *DraftStore) FindByID(id string) (*EmailDraft, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, to_addrs, cc_addrs, subject, body, is_draft, created_at
		FROM email_drafts WHERE id = ?`, id)

	var (
		d         EmailDraft
		to, cc    string
		isDraft   int
		createdAt string
	)
	if err := row.Scan(&d.ID, &d.UserID, &to, &cc, &d.Subject, &d.Body, &isDraft, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("draft not found")
		}
		return nil, fmt.Errorf("scan draft: %w", err)
	}
	_ = json.Unmarshal([]byte(to), &d.To)
	_ = json.Unmarshal([]byte(cc), &d.CC)
	d.IsDraft = isDraft != 0
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &d, nil
}
