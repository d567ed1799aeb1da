package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// completeFunc adapts a plain function to CompletionService.
type completeFunc func(ctx context.Context, prompt string) (string, error)

func (f completeFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func staticCompletion(output string) CompletionService {
	return completeFunc(func(_ context.Context, _ string) (string, error) {
		return output, nil
	})
}

func TestClassifyParsesCleanJSON(t *testing.T) {
	c := NewClassifier(staticCompletion(`{
		"hasActions": true,
		"tasks": [{"title": "buy milk", "priority": "low"}]
	}`), "UTC", nil)

	env := c.Classify(context.Background(), "add buy milk to my list", time.Now())

	if !env.HasActions || len(env.Tasks) != 1 {
		t.Fatalf("expected one task, got %+v", env)
	}
	if env.Tasks[0].Title != "buy milk" {
		t.Errorf("title mismatch: %q", env.Tasks[0].Title)
	}
}

func TestClassifyStripsCodeFences(t *testing.T) {
	c := NewClassifier(staticCompletion("```json\n{\"hasActions\": true, \"notes\": [{\"content\": \"an idea\"}]}\n```"), "UTC", nil)

	env := c.Classify(context.Background(), "note this down", time.Now())

	if len(env.Notes) != 1 || env.Notes[0].Content != "an idea" {
		t.Fatalf("expected the note parsed out of the fenced block, got %+v", env)
	}
}

func TestClassifyRepairsMalformedJSON(t *testing.T) {
	// Trailing comma and single quotes: invalid JSON the repair pass fixes.
	c := NewClassifier(staticCompletion(`{'hasActions': true, 'tasks': [{'title': 'buy milk'},]}`), "UTC", nil)

	env := c.Classify(context.Background(), "add buy milk", time.Now())

	if len(env.Tasks) != 1 || env.Tasks[0].Title != "buy milk" {
		t.Fatalf("expected repaired envelope, got %+v", env)
	}
}

func TestClassifyDegradesOnCompletionError(t *testing.T) {
	c := NewClassifier(completeFunc(func(_ context.Context, _ string) (string, error) {
		return "", errors.New("upstream down")
	}), "UTC", nil)

	env := c.Classify(context.Background(), "anything", time.Now())

	if env.HasActions || env.ActionCount() != 0 || env.NeedsClarification {
		t.Fatalf("expected neutral envelope on failure, got %+v", env)
	}
}

func TestClassifyDegradesOnEmptyOutput(t *testing.T) {
	c := NewClassifier(staticCompletion("   "), "UTC", nil)

	env := c.Classify(context.Background(), "anything", time.Now())
	if env.ActionCount() != 0 {
		t.Fatalf("expected neutral envelope, got %+v", env)
	}
}

func TestClassifyNormalizesContradictoryEnvelope(t *testing.T) {
	// The model set clarification AND actions; normalization drops the actions.
	c := NewClassifier(staticCompletion(`{
		"hasActions": true,
		"needsClarification": true,
		"clarificationNeeded": "When?",
		"reminders": [{"title": "call mom", "reminderTime": "2026-09-02T09:00:00Z"}]
	}`), "UTC", nil)

	env := c.Classify(context.Background(), "remind me to call mom", time.Now())

	if env.HasActions || len(env.Reminders) != 0 {
		t.Fatal("clarification must win over actions")
	}
	if env.ClarificationNeeded != "When?" {
		t.Errorf("clarification question lost: %q", env.ClarificationNeeded)
	}
}

func TestClassifyPromptCarriesTimeAndUtterance(t *testing.T) {
	var captured string
	c := NewClassifier(completeFunc(func(_ context.Context, prompt string) (string, error) {
		captured = prompt
		return `{"hasActions": false}`, nil
	}), "America/New_York", nil)

	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	c.Classify(context.Background(), "what's up", now)

	if !strings.Contains(captured, now.Format(time.RFC3339)) {
		t.Error("prompt must carry the current time")
	}
	if !strings.Contains(captured, "America/New_York") {
		t.Error("prompt must carry the timezone")
	}
	if !strings.Contains(captured, "what's up") {
		t.Error("prompt must carry the utterance")
	}
}
