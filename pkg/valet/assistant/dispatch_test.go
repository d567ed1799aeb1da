package assistant

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/valetd/valet/pkg/valet/assistant/security"
	"github.com/valetd/valet/pkg/valet/store"
)

// fakeQueue records queued assignment IDs.
type fakeQueue struct {
	ids []string
}

func (f *fakeQueue) Queue(assignmentID string) {
	f.ids = append(f.ids, assignmentID)
}

func openTestDB(t *testing.T) *store.DB {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "valet-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	db, err := store.Open(filepath.Join(tmpDir, "valet.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestMaterializer(t *testing.T, db *store.DB, queue AssignmentQueue) *Materializer {
	t.Helper()

	limiter := security.NewLimiter(security.NewMemoryCounters(), time.Hour, nil)
	guard := security.NewEngine(limiter, db.Integrations, nil)
	return NewMaterializer(db, guard, queue, DefaultConfig(), nil)
}

func TestMaterializeIsolatesPerItemFailures(t *testing.T) {
	db := openTestDB(t)
	m := newTestMaterializer(t, db, nil)

	env := &IntentEnvelope{
		Tasks: []TaskAction{
			{Title: "first"},
			{Title: ""}, // invalid: store rejects empty titles
			{Title: "third"},
		},
	}
	env.Normalize()

	result := m.Materialize(context.Background(), "u1", env)

	if len(result.Created) != 2 {
		t.Fatalf("expected 2 created tasks, got %d", len(result.Created))
	}
	if result.Created[0].Title != "first" || result.Created[1].Title != "third" {
		t.Errorf("declared order not preserved: %+v", result.Created)
	}
}

func TestMaterializeSkipsUnresolvableReminderTime(t *testing.T) {
	db := openTestDB(t)
	m := newTestMaterializer(t, db, nil)

	env := &IntentEnvelope{
		Reminders: []ReminderAction{
			{Title: "bad", ReminderTime: "sometime soon"},
			{Title: "good", ReminderTime: "2026-09-02T09:00:00Z"},
		},
	}
	env.Normalize()

	result := m.Materialize(context.Background(), "u1", env)

	if len(result.Created) != 1 || result.Created[0].Title != "good" {
		t.Fatalf("expected only the parseable reminder, got %+v", result.Created)
	}
}

func TestMaterializeRecordsGuardrailDenials(t *testing.T) {
	db := openTestDB(t)
	m := newTestMaterializer(t, db, nil)

	env := &IntentEnvelope{
		Notes: []NoteAction{
			{Title: "card", Content: "number is 4111 1111 1111 1111"},
			{Title: "clean", Content: "water the plants"},
		},
	}
	env.Normalize()

	result := m.Materialize(context.Background(), "u1", env)

	if len(result.Denials) != 1 {
		t.Fatalf("expected 1 denial, got %d", len(result.Denials))
	}
	if result.Denials[0].Result.Severity != security.SeverityCritical {
		t.Errorf("expected critical severity, got %q", result.Denials[0].Result.Severity)
	}
	if len(result.Created) != 1 || result.Created[0].Title != "clean" {
		t.Fatalf("the clean note should still be created, got %+v", result.Created)
	}

	// The denied note must not exist.
	denied, err := db.Notes.FindByTitle("u1", "card")
	if err != nil {
		t.Fatalf("FindByTitle failed: %v", err)
	}
	if denied != nil {
		t.Error("denied note must not be persisted")
	}
}

func TestMaterializeEnqueuesAssignments(t *testing.T) {
	db := openTestDB(t)
	queue := &fakeQueue{}
	m := newTestMaterializer(t, db, queue)

	env := &IntentEnvelope{
		Assignments: []AssignmentAction{
			{Title: "Best laptops", Query: "compare the best laptops for developers"},
		},
	}
	env.Normalize()

	result := m.Materialize(context.Background(), "u1", env)

	if len(result.Created) != 1 {
		t.Fatalf("expected 1 created assignment, got %+v", result.Created)
	}
	if len(queue.ids) != 1 || queue.ids[0] != result.Created[0].ID {
		t.Fatalf("assignment not handed to the queue: %v", queue.ids)
	}

	a, err := db.Assignments.FindByID(result.Created[0].ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if a.Status != store.AssignmentInProgress {
		t.Errorf("expected in_progress, got %q", a.Status)
	}
}

func TestMaterializeEventRequiresCalendarIntegration(t *testing.T) {
	db := openTestDB(t)
	m := newTestMaterializer(t, db, nil)

	env := &IntentEnvelope{
		CalendarEvents: []EventAction{
			{Title: "lunch", StartTime: "2026-09-02T12:00:00Z", EndTime: "2026-09-02T13:00:00Z"},
		},
	}
	env.Normalize()

	result := m.Materialize(context.Background(), "u1", env)
	if len(result.Denials) != 1 || len(result.Created) != 0 {
		t.Fatalf("expected integration denial, got %+v", result)
	}

	// With the integration connected the event goes through.
	if err := db.Integrations.SetConnected("u1", store.IntegrationCalendar, true); err != nil {
		t.Fatalf("SetConnected failed: %v", err)
	}
	result = m.Materialize(context.Background(), "u1", env)
	if len(result.Created) != 1 {
		t.Fatalf("expected event created, got %+v", result)
	}
}

func TestMaterializeWarnsOnOverlappingEvents(t *testing.T) {
	db := openTestDB(t)
	m := newTestMaterializer(t, db, nil)

	if err := db.Integrations.SetConnected("u1", store.IntegrationCalendar, true); err != nil {
		t.Fatalf("SetConnected failed: %v", err)
	}

	base := time.Date(2026, 9, 2, 12, 0, 0, 0, time.UTC)
	if _, err := db.Events.Create(&store.CalendarEvent{
		UserID:    "u1",
		Title:     "standup",
		StartTime: base,
		EndTime:   base.Add(time.Hour),
	}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	env := &IntentEnvelope{
		CalendarEvents: []EventAction{
			{Title: "lunch", StartTime: "2026-09-02T12:30:00Z", EndTime: "2026-09-02T13:30:00Z"},
		},
	}
	env.Normalize()

	result := m.Materialize(context.Background(), "u1", env)

	// Overlap warns but the event is still created.
	if len(result.Created) != 1 {
		t.Fatalf("expected event created despite overlap, got %+v", result)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected an overlap warning")
	}
}

func TestMaterializeMeetingDefaultsProvider(t *testing.T) {
	db := openTestDB(t)
	m := newTestMaterializer(t, db, nil)

	if err := db.Integrations.SetConnected("u1", store.IntegrationCalendar, true); err != nil {
		t.Fatalf("SetConnected failed: %v", err)
	}

	env := &IntentEnvelope{
		Meetings: []MeetingAction{{Title: "sync with Alex"}},
	}
	env.Normalize()

	result := m.Materialize(context.Background(), "u1", env)
	if len(result.Created) != 1 {
		t.Fatalf("expected meeting created, got %+v", result)
	}

	meeting, err := db.Meetings.FindByID(result.Created[0].ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if meeting.Provider != DefaultConfig().Meetings.DefaultProvider {
		t.Errorf("expected default provider, got %q", meeting.Provider)
	}
	if meeting.DurationMinutes != 60 {
		t.Errorf("expected default duration 60, got %d", meeting.DurationMinutes)
	}
}
