// Package store – store.go provides the central SQLite database for Valet.
// A single valet.db file holds every domain entity (tasks, reminders, notes,
// events, drafts, meetings, assignments, notifications), conversation
// history, integration connections, and the rate-limit counters.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// schema is the DDL executed on every startup (idempotent via IF NOT EXISTS).
const schema = `
-- Tasks
CREATE TABLE IF NOT EXISTS tasks (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    title       TEXT NOT NULL,
    description TEXT DEFAULT '',
    priority    TEXT DEFAULT 'medium',
    due_date    TEXT,
    status      TEXT DEFAULT 'pending',
    created_by  TEXT DEFAULT 'user',
    created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);

-- Reminders
CREATE TABLE IF NOT EXISTS reminders (
    id            TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL,
    title         TEXT NOT NULL,
    notes         TEXT DEFAULT '',
    reminder_time TEXT NOT NULL,
    is_urgent     INTEGER DEFAULT 0,
    status        TEXT DEFAULT 'active',
    created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reminders_user ON reminders(user_id);

-- Notes
CREATE TABLE IF NOT EXISTS notes (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    title      TEXT DEFAULT '',
    content    TEXT NOT NULL,
    category   TEXT DEFAULT 'personal',
    tags       TEXT DEFAULT '[]',
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notes_user ON notes(user_id);

-- Calendar events
CREATE TABLE IF NOT EXISTS events (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    title      TEXT DEFAULT '',
    start_time TEXT NOT NULL,
    end_time   TEXT NOT NULL,
    location   TEXT DEFAULT '',
    attendees  TEXT DEFAULT '[]',
    source     TEXT DEFAULT 'manual',
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_user_start ON events(user_id, start_time);

-- Email drafts (never sent automatically)
CREATE TABLE IF NOT EXISTS email_drafts (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    to_addrs   TEXT DEFAULT '[]',
    cc_addrs   TEXT DEFAULT '[]',
    subject    TEXT DEFAULT '',
    body       TEXT DEFAULT '',
    is_draft   INTEGER DEFAULT 1,
    created_at TEXT NOT NULL
);

-- Meeting requests
CREATE TABLE IF NOT EXISTS meetings (
    id               TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    provider         TEXT DEFAULT '',
    title            TEXT DEFAULT '',
    start_time       TEXT DEFAULT '',
    duration_minutes INTEGER DEFAULT 60,
    status           TEXT DEFAULT 'pending_provider',
    created_at       TEXT NOT NULL
);

-- Search request log
CREATE TABLE IF NOT EXISTS searches (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    query      TEXT NOT NULL,
    type       TEXT DEFAULT 'web',
    created_at TEXT NOT NULL
);

-- Research assignments (the one stateful, long-lived entity)
CREATE TABLE IF NOT EXISTS assignments (
    id                TEXT PRIMARY KEY,
    user_id           TEXT NOT NULL,
    title             TEXT NOT NULL,
    description       TEXT DEFAULT '',
    query             TEXT NOT NULL,
    type              TEXT DEFAULT 'research',
    priority          TEXT DEFAULT 'medium',
    status            TEXT NOT NULL DEFAULT 'in_progress',
    findings          TEXT DEFAULT '',
    notification_sent INTEGER DEFAULT 0,
    viewed            INTEGER DEFAULT 0,
    claimed_at        TEXT,
    created_at        TEXT NOT NULL,
    completed_at      TEXT
);
CREATE INDEX IF NOT EXISTS idx_assignments_user ON assignments(user_id);
CREATE INDEX IF NOT EXISTS idx_assignments_status ON assignments(status);

-- Notifications
CREATE TABLE IF NOT EXISTS notifications (
    id            TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL,
    type          TEXT DEFAULT '',
    title         TEXT DEFAULT '',
    message       TEXT DEFAULT '',
    priority      TEXT DEFAULT 'medium',
    related_id    TEXT DEFAULT '',
    related_model TEXT DEFAULT '',
    action_url    TEXT DEFAULT '',
    metadata      TEXT DEFAULT '{}',
    created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id);

-- Connected external integrations (email, calendar, ...)
CREATE TABLE IF NOT EXISTS integrations (
    user_id      TEXT NOT NULL,
    kind         TEXT NOT NULL,
    connected    INTEGER DEFAULT 0,
    connected_at TEXT,
    PRIMARY KEY (user_id, kind)
);

-- Rate-limit counters, one row per (user, action type) window
CREATE TABLE IF NOT EXISTS rate_counters (
    user_id         TEXT NOT NULL,
    action_type     TEXT NOT NULL,
    count           INTEGER DEFAULT 0,
    window_reset_at TEXT NOT NULL,
    PRIMARY KEY (user_id, action_type)
);

-- Conversations and their append-only message log
CREATE TABLE IF NOT EXISTS conversations (
    id             TEXT PRIMARY KEY,
    user_id        TEXT NOT NULL,
    mode           TEXT DEFAULT 'text',
    created_at     TEXT NOT NULL,
    last_active_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL,
    role            TEXT NOT NULL,
    content         TEXT NOT NULL,
    created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conv ON messages(conversation_id);
`

// DB wraps the shared sql.DB and exposes one typed store per entity.
type DB struct {
	conn *sql.DB

	Tasks         *TaskStore
	Reminders     *ReminderStore
	Notes         *NoteStore
	Events        *EventStore
	Drafts        *DraftStore
	Meetings      *MeetingStore
	Searches      *SearchStore
	Assignments   *AssignmentStore
	Notifications *NotificationStore
	Integrations  *IntegrationStore
	Counters      *CounterStore
	Conversations *ConversationStore
}

// Open opens (or creates) the central valet.db at the given path.
// It enables WAL mode for concurrent read performance and creates all tables.
func Open(path string) (*DB, error) {
	if path == "" {
		path = "./data/valet.db"
	}

	// Ensure parent directory exists.
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory %q: %w", dir, err)
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}

	// Verify connectivity.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Create schema (idempotent).
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	db := &DB{conn: conn}
	db.Tasks = &TaskStore{db: conn}
	db.Reminders = &ReminderStore{db: conn}
	db.Notes = &NoteStore{db: conn}
	db.Events = &EventStore{db: conn}
	db.Drafts = &DraftStore{db: conn}
	db.Meetings = &MeetingStore{db: conn}
	db.Searches = &SearchStore{db: conn}
	db.Assignments = &AssignmentStore{db: conn}
	db.Notifications = &NotificationStore{db: conn}
	db.Integrations = &IntegrationStore{db: conn}
	db.Counters = &CounterStore{db: conn}
	db.Conversations = &ConversationStore{db: conn}
	return db, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn exposes the raw connection for ad-hoc queries (tests, diagnostics).
func (d *DB) Conn() *sql.DB {
	return d.conn
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
