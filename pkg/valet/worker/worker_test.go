package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/valetd/valet/pkg/valet/store"
)

// completeFunc adapts a plain function to CompletionService.
type completeFunc func(ctx context.Context, prompt string) (string, error)

func (f completeFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
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

func createTestAssignment(t *testing.T, db *store.DB) *store.Assignment {
	t.Helper()
	a, err := db.Assignments.Create(&store.Assignment{
		UserID: "u1",
		Title:  "Standing desk options",
		Query:  "find the best standing desks under $500",
		Type:   "research",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return a
}

func TestProcessCompletesAssignment(t *testing.T) {
	db := openTestDB(t)
	a := createTestAssignment(t, db)

	w := New(db, completeFunc(func(_ context.Context, _ string) (string, error) {
		return "## Findings\nThe best desk is the one you stand at.", nil
	}), Config{}, nil)

	w.process(context.Background(), w.logger, a.ID)

	loaded, err := db.Assignments.FindByID(a.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if loaded.Status != store.AssignmentCompleted {
		t.Fatalf("expected completed, got %q", loaded.Status)
	}
	if loaded.Findings == "" {
		t.Error("findings not persisted")
	}
	if !loaded.NotificationSent {
		t.Error("expected notification_sent after delivery")
	}

	// The derived research note exists.
	note, err := db.Notes.FindByTitle("u1", "Research: Standing desk options")
	if err != nil {
		t.Fatalf("FindByTitle failed: %v", err)
	}
	if note == nil {
		t.Fatal("expected a derived research note")
	}
	if note.Category != "research" {
		t.Errorf("expected category research, got %q", note.Category)
	}

	// And the completion notification points at the assignment.
	notifications, err := db.Notifications.FindByRelated("assignment", a.ID)
	if err != nil {
		t.Fatalf("FindByRelated failed: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifications))
	}
}

func TestProcessFailsOnCompletionError(t *testing.T) {
	db := openTestDB(t)
	a := createTestAssignment(t, db)

	w := New(db, completeFunc(func(_ context.Context, _ string) (string, error) {
		return "", errors.New("upstream down")
	}), Config{}, nil)

	w.process(context.Background(), w.logger, a.ID)

	loaded, _ := db.Assignments.FindByID(a.ID)
	if loaded.Status != store.AssignmentFailed {
		t.Fatalf("expected failed, got %q", loaded.Status)
	}
	if loaded.Findings != "" || loaded.NotificationSent {
		t.Error("failed assignments must carry no findings or notification")
	}

	// No note, no notification.
	notifications, _ := db.Notifications.FindByRelated("assignment", a.ID)
	if len(notifications) != 0 {
		t.Errorf("expected no notifications, got %d", len(notifications))
	}
}

func TestProcessFailsOnEmptyFindings(t *testing.T) {
	db := openTestDB(t)
	a := createTestAssignment(t, db)

	w := New(db, completeFunc(func(_ context.Context, _ string) (string, error) {
		return "   ", nil
	}), Config{}, nil)

	w.process(context.Background(), w.logger, a.ID)

	loaded, _ := db.Assignments.FindByID(a.ID)
	if loaded.Status != store.AssignmentFailed {
		t.Fatalf("expected failed on empty findings, got %q", loaded.Status)
	}
}

func TestProcessSkipsAlreadyClaimed(t *testing.T) {
	db := openTestDB(t)
	a := createTestAssignment(t, db)

	// Another consumer holds the lease.
	claimed, err := db.Assignments.Claim(a.ID, time.Hour)
	if err != nil || !claimed {
		t.Fatalf("setup claim failed: %v", err)
	}

	calls := 0
	w := New(db, completeFunc(func(_ context.Context, _ string) (string, error) {
		calls++
		return "findings", nil
	}), Config{}, nil)

	w.process(context.Background(), w.logger, a.ID)

	if calls != 0 {
		t.Fatal("a claimed assignment must not be processed again")
	}
	loaded, _ := db.Assignments.FindByID(a.ID)
	if loaded.Status != store.AssignmentInProgress {
		t.Fatalf("status must be untouched, got %q", loaded.Status)
	}
}

func TestRetryResetsAndQueues(t *testing.T) {
	db := openTestDB(t)
	a := createTestAssignment(t, db)

	if err := db.Assignments.Fail(a.ID); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	w := New(db, completeFunc(func(_ context.Context, _ string) (string, error) {
		return "findings", nil
	}), Config{}, nil)

	if err := w.Retry(a.ID, false); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}

	loaded, _ := db.Assignments.FindByID(a.ID)
	if loaded.Status != store.AssignmentInProgress {
		t.Fatalf("expected in_progress after retry, got %q", loaded.Status)
	}

	select {
	case id := <-w.queue:
		if id != a.ID {
			t.Fatalf("queued wrong ID: %s", id)
		}
	default:
		t.Fatal("expected the assignment on the queue")
	}
}

func TestRetryRejectsNonFailed(t *testing.T) {
	db := openTestDB(t)
	a := createTestAssignment(t, db)

	w := New(db, nil, Config{}, nil)

	err := w.Retry(a.ID, false)
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestQueueNeverBlocksWhenFull(t *testing.T) {
	db := openTestDB(t)
	w := New(db, nil, Config{QueueSize: 1}, nil)

	w.Queue("a")
	done := make(chan struct{})
	go func() {
		w.Queue("b") // buffer full; must drop, not block
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Queue blocked on a full buffer")
	}
}

func TestWorkerEndToEnd(t *testing.T) {
	db := openTestDB(t)
	a := createTestAssignment(t, db)

	w := New(db, completeFunc(func(_ context.Context, _ string) (string, error) {
		return "the findings", nil
	}), Config{Concurrency: 1}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	w.Queue(a.ID)

	// Poll until the consumer finishes.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		loaded, err := db.Assignments.FindByID(a.ID)
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if loaded.Status == store.AssignmentCompleted {
			cancel()
			w.Wait()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("assignment never completed")
}
