package store

import (
	"errors"
	"testing"
	"time"
)

func createTestAssignment(t *testing.T, db *DB) *Assignment {
	t.Helper()
	a, err := db.Assignments.Create(&Assignment{
		UserID: "u1",
		Title:  "Best e-bikes 2026",
		Query:  "compare the best commuter e-bikes available in 2026",
		Type:   "comparison",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return a
}

func TestAssignmentCreateStartsInProgress(t *testing.T) {
	db := openTestDB(t)
	a := createTestAssignment(t, db)

	if a.Status != AssignmentInProgress {
		t.Fatalf("expected status in_progress, got %q", a.Status)
	}
	if a.Findings != "" || a.NotificationSent {
		t.Error("new assignment must start with empty findings and no notification")
	}
}

func TestAssignmentCreateRejectsUnknownType(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Assignments.Create(&Assignment{
		UserID: "u1",
		Title:  "x",
		Query:  "y",
		Type:   "espionage",
	})
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestAssignmentCompleteTransition(t *testing.T) {
	db := openTestDB(t)
	a := createTestAssignment(t, db)

	if err := db.Assignments.Complete(a.ID, "the findings"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	loaded, err := db.Assignments.FindByID(a.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if loaded.Status != AssignmentCompleted {
		t.Errorf("expected completed, got %q", loaded.Status)
	}
	if loaded.Findings != "the findings" {
		t.Errorf("findings not persisted: %q", loaded.Findings)
	}
	if loaded.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}

	// Completing twice violates the state machine.
	err = db.Assignments.Complete(a.ID, "again")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestAssignmentFailTransition(t *testing.T) {
	db := openTestDB(t)
	a := createTestAssignment(t, db)

	if err := db.Assignments.Fail(a.ID); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	loaded, _ := db.Assignments.FindByID(a.ID)
	if loaded.Status != AssignmentFailed {
		t.Errorf("expected failed, got %q", loaded.Status)
	}
	if loaded.Findings != "" {
		t.Errorf("failed assignment must keep findings empty, got %q", loaded.Findings)
	}

	// A failed assignment cannot be completed directly.
	err := db.Assignments.Complete(a.ID, "late findings")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestAssignmentRetryOnlyFromFailed(t *testing.T) {
	db := openTestDB(t)
	a := createTestAssignment(t, db)

	// Retrying while in_progress is rejected.
	err := db.Assignments.ResetForRetry(a.ID, false)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if err := db.Assignments.Fail(a.ID); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	if err := db.Assignments.ResetForRetry(a.ID, false); err != nil {
		t.Fatalf("ResetForRetry failed: %v", err)
	}

	loaded, _ := db.Assignments.FindByID(a.ID)
	if loaded.Status != AssignmentInProgress {
		t.Errorf("expected in_progress after retry, got %q", loaded.Status)
	}
	if loaded.NotificationSent {
		t.Error("retry must clear the notification flag")
	}
}

func TestAssignmentForceRetryFromCompleted(t *testing.T) {
	db := openTestDB(t)
	a := createTestAssignment(t, db)

	if err := db.Assignments.Complete(a.ID, "done"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if err := db.Assignments.SetNotificationSent(a.ID, true); err != nil {
		t.Fatalf("SetNotificationSent failed: %v", err)
	}

	// Plain retry is rejected from completed.
	if err := db.Assignments.ResetForRetry(a.ID, false); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	// Force resets from any status and clears the result fields.
	if err := db.Assignments.ResetForRetry(a.ID, true); err != nil {
		t.Fatalf("forced ResetForRetry failed: %v", err)
	}

	loaded, _ := db.Assignments.FindByID(a.ID)
	if loaded.Status != AssignmentInProgress {
		t.Errorf("expected in_progress, got %q", loaded.Status)
	}
	if loaded.Findings != "" || loaded.NotificationSent || loaded.CompletedAt != nil {
		t.Error("force retry must clear findings, notification flag, and completed_at")
	}
}

func TestAssignmentClaimIsExclusive(t *testing.T) {
	db := openTestDB(t)
	a := createTestAssignment(t, db)

	claimed, err := db.Assignments.Claim(a.ID, time.Minute)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if !claimed {
		t.Fatal("first claim should succeed")
	}

	// A second claim within the lease is rejected.
	claimed, err = db.Assignments.Claim(a.ID, time.Minute)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if claimed {
		t.Fatal("second claim within the lease should fail")
	}

	// An expired lease can be reclaimed.
	claimed, err = db.Assignments.Claim(a.ID, -time.Second)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if !claimed {
		t.Fatal("expired lease should be reclaimable")
	}
}

func TestAssignmentClaimRejectsFinalStatus(t *testing.T) {
	db := openTestDB(t)
	a := createTestAssignment(t, db)

	if err := db.Assignments.Complete(a.ID, "done"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	claimed, err := db.Assignments.Claim(a.ID, time.Minute)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if claimed {
		t.Fatal("completed assignments must not be claimable")
	}
}

func TestStaleInProgressSweep(t *testing.T) {
	db := openTestDB(t)
	a := createTestAssignment(t, db)

	// With olderThan=0 every unclaimed in_progress assignment is stale.
	ids, err := db.Assignments.StaleInProgress(0)
	if err != nil {
		t.Fatalf("StaleInProgress failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != a.ID {
		t.Fatalf("expected [%s], got %v", a.ID, ids)
	}

	// A fresh assignment is not stale for a longer horizon.
	ids, err = db.Assignments.StaleInProgress(time.Hour)
	if err != nil {
		t.Fatalf("StaleInProgress failed: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no stale assignments, got %v", ids)
	}

	// Completed assignments never show up.
	if err := db.Assignments.Complete(a.ID, "done"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	ids, _ = db.Assignments.StaleInProgress(0)
	if len(ids) != 0 {
		t.Fatalf("expected no stale assignments after completion, got %v", ids)
	}
}
