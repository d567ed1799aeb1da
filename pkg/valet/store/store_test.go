package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// openTestDB creates a throwaway database under a temp dir.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "valet-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	db, err := Open(filepath.Join(tmpDir, "valet.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesSchema(t *testing.T) {
	db := openTestDB(t)

	if err := db.Conn().Ping(); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	// All stores must be wired.
	if db.Tasks == nil || db.Assignments == nil || db.Conversations == nil || db.Counters == nil {
		t.Fatal("typed stores not initialized")
	}
}

func TestTaskCreateDefaults(t *testing.T) {
	db := openTestDB(t)

	task, err := db.Tasks.Create(&Task{UserID: "u1", Title: "buy milk"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if task.ID == "" {
		t.Error("expected generated ID")
	}
	if task.Priority != "medium" {
		t.Errorf("expected default priority medium, got %q", task.Priority)
	}
	if task.Status != "pending" {
		t.Errorf("expected status pending, got %q", task.Status)
	}

	loaded, err := db.Tasks.FindByID(task.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if loaded.Title != "buy milk" {
		t.Errorf("title round-trip mismatch: %q", loaded.Title)
	}
}

func TestTaskCreateRequiresTitle(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.Tasks.Create(&Task{UserID: "u1"}); err == nil {
		t.Fatal("expected error for missing title")
	}
}

func TestNoteCreateRequiresContent(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.Notes.Create(&Note{UserID: "u1", Title: "empty"}); err == nil {
		t.Fatal("expected error for missing content")
	}

	note, err := db.Notes.Create(&Note{UserID: "u1", Content: "an idea", Tags: []string{"x"}})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if note.Category != "personal" {
		t.Errorf("expected default category personal, got %q", note.Category)
	}

	loaded, err := db.Notes.FindByID(note.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if len(loaded.Tags) != 1 || loaded.Tags[0] != "x" {
		t.Errorf("tags round-trip mismatch: %v", loaded.Tags)
	}
}

func TestEventOverlapQuery(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC)
	_, err := db.Events.Create(&CalendarEvent{
		UserID:    "u1",
		Title:     "standup",
		StartTime: base,
		EndTime:   base.Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	overlapping, err := db.Events.FindOverlapping("u1", base.Add(15*time.Minute), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("FindOverlapping failed: %v", err)
	}
	if len(overlapping) != 1 || overlapping[0].Title != "standup" {
		t.Fatalf("expected the standup event, got %v", overlapping)
	}

	clear, err := db.Events.FindOverlapping("u1", base.Add(time.Hour), base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("FindOverlapping failed: %v", err)
	}
	if len(clear) != 0 {
		t.Fatalf("expected no overlap, got %v", clear)
	}
}

func TestIntegrationConnectionState(t *testing.T) {
	db := openTestDB(t)

	if db.Integrations.IsConnected("u1", IntegrationEmail) {
		t.Error("expected email disconnected by default")
	}

	if err := db.Integrations.SetConnected("u1", IntegrationEmail, true); err != nil {
		t.Fatalf("SetConnected failed: %v", err)
	}
	if !db.Integrations.IsConnected("u1", IntegrationEmail) {
		t.Error("expected email connected")
	}

	// Toggle back off via the same UPSERT path.
	if err := db.Integrations.SetConnected("u1", IntegrationEmail, false); err != nil {
		t.Fatalf("SetConnected failed: %v", err)
	}
	if db.Integrations.IsConnected("u1", IntegrationEmail) {
		t.Error("expected email disconnected after toggle")
	}
}

func TestCounterIncrementAndWindow(t *testing.T) {
	db := openTestDB(t)

	count, _, err := db.Counters.Increment("u1", "note", time.Hour)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}

	count, resetAt, err := db.Counters.Increment("u1", "note", time.Hour)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}
	if !resetAt.After(time.Now()) {
		t.Error("expected reset time in the future")
	}

	// A different action type counts separately.
	count, _, err = db.Counters.Increment("u1", "task", time.Hour)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected independent counter, got %d", count)
	}
}

func TestConversationAppendAndWindow(t *testing.T) {
	db := openTestDB(t)

	conv, err := db.Conversations.Create("u1", "text")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for _, msg := range []string{"hello", "hi there", "what's up"} {
		if err := db.Conversations.AppendMessage(conv.ID, "user", msg); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	window, err := db.Conversations.RecentMessages(conv.ID, 2)
	if err != nil {
		t.Fatalf("RecentMessages failed: %v", err)
	}
	if len(window) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(window))
	}
	// Chronological order: the oldest of the two comes first.
	if window[0].Content != "hi there" || window[1].Content != "what's up" {
		t.Errorf("window order wrong: %q, %q", window[0].Content, window[1].Content)
	}
}
