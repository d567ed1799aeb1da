// Package assistant – classifier.go turns a free-text utterance into an
// Intent Envelope via a single completion call. Parsing is defensive: the
// model's output is untrusted text, so code fences are stripped, malformed
// JSON goes through a repair pass, and any remaining failure degrades to the
// neutral envelope instead of aborting the conversation.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// classifyPromptTemplate is the fixed instruction block sent as a single
// user turn. The current time and timezone let the model resolve relative
// phrases ("tomorrow at 3pm") to concrete instants.
const classifyPromptTemplate = `You are the intent classifier for a personal assistant.
Current time: %s (timezone: %s)

Classify the user's message into actions. Respond with ONLY a JSON object:
{
  "hasActions": bool,
  "needsClarification": bool, "clarificationNeeded": "question to ask",
  "needsPermission": bool, "permissionsNeeded": ["calendar"], "permissionReason": "",
  "tasks": [{"title": "", "description": "", "priority": "low|medium|high", "dueDate": "RFC3339"}],
  "reminders": [{"title": "", "notes": "", "reminderTime": "RFC3339", "isUrgent": bool}],
  "notes": [{"title": "", "content": "", "category": "personal|work|idea|urgent", "tags": []}],
  "calendarEvents": [{"title": "", "startTime": "RFC3339", "endTime": "RFC3339", "location": "", "attendees": []}],
  "emails": [{"to": [], "cc": [], "subject": "", "body": ""}],
  "meetings": [{"provider": "", "title": "", "startTime": "RFC3339", "duration": 60}],
  "assignments": [{"title": "", "description": "", "query": "", "type": "research|comparison|recommendation|investigation|analysis", "priority": ""}],
  "search": {"query": "", "type": "web|email|calendar|tasks"}
}

Rules:
- Reminder times MUST be concrete RFC3339 instants resolved against the
  current time. If the user gives no time or an ambiguous one, set
  needsClarification instead of guessing.
- Open-ended research requests ("research X", "compare Y and Z", "find the
  best W") become assignments, not searches.
- If the message is plain conversation with nothing to do, return
  {"hasActions": false}.
- Never set needsClarification or needsPermission together with actions.
- Omit empty arrays and fields.

User message: %s`

// Classifier is the intent classifier adapter.
type Classifier struct {
	llm      CompletionService
	timezone string
	logger   *slog.Logger
}

// NewClassifier creates a classifier over the given completion service.
func NewClassifier(llm CompletionService, timezone string, logger *slog.Logger) *Classifier {
	if timezone == "" {
		timezone = "UTC"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		llm:      llm,
		timezone: timezone,
		logger:   logger.With("component", "classifier"),
	}
}

// Classify sends the utterance to the completion service and parses the
// result. It never returns an error: classification is best-effort and any
// failure yields the neutral envelope.
func (c *Classifier) Classify(ctx context.Context, utterance string, now time.Time) *IntentEnvelope {
	prompt := fmt.Sprintf(classifyPromptTemplate,
		now.Format(time.RFC3339), c.timezone, utterance)

	raw, err := c.llm.Complete(ctx, prompt)
	if err != nil {
		c.logger.Warn("classification call failed, degrading to neutral envelope", "error", err)
		return NeutralEnvelope()
	}

	envelope, err := parseEnvelope(raw)
	if err != nil {
		c.logger.Warn("classification output unparseable, degrading to neutral envelope",
			"error", err,
			"output_len", len(raw),
		)
		return NeutralEnvelope()
	}

	envelope.Normalize()
	return envelope
}

// parseEnvelope strips code fences and parses the model output, running a
// JSON repair pass before giving up on malformed payloads.
func parseEnvelope(raw string) (*IntentEnvelope, error) {
	text := stripCodeFences(raw)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty classification output")
	}

	var envelope IntentEnvelope
	if err := json.Unmarshal([]byte(text), &envelope); err == nil {
		return &envelope, nil
	}

	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return nil, fmt.Errorf("repair classification JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &envelope); err != nil {
		return nil, fmt.Errorf("parse classification JSON: %w", err)
	}
	return &envelope, nil
}

// stripCodeFences removes a leading ```json (or bare ```) fence and the
// matching trailing fence. Models add these despite instructions not to.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	// Drop an optional language tag on the opening fence line.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		firstLine := strings.TrimSpace(s[:idx])
		if firstLine == "json" || firstLine == "" {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
