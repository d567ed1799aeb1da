// Package assistant – dispatch.go implements the action materializer: the
// single place where approved envelope actions become persisted entities.
// Every item is guarded and isolated — one failing or denied action never
// aborts its siblings, and the batch always reports what actually happened.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/valetd/valet/pkg/valet/assistant/security"
	"github.com/valetd/valet/pkg/valet/store"
)

// Action type names used for guardrail checks and created-action summaries.
const (
	ActionTask       = "task"
	ActionReminder   = "reminder"
	ActionNote       = "note"
	ActionEvent      = "calendar_event"
	ActionEmailDraft = "email_draft"
	ActionMeeting    = "meeting"
	ActionSearch     = "search"
	ActionAssignment = "assignment"
)

// CreatedAction summarizes one materialized entity.
type CreatedAction struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Denial records a guardrail denial for one proposed action.
type Denial struct {
	ActionType string
	Title      string
	Result     security.Result
}

// DispatchResult is the outcome of materializing one envelope.
type DispatchResult struct {
	Created  []CreatedAction
	Denials  []Denial
	Warnings []string
}

// AssignmentQueue hands an assignment ID to the background processor.
// Queue must return immediately; processing happens out-of-band.
type AssignmentQueue interface {
	Queue(assignmentID string)
}

// Materializer turns approved envelope actions into domain entities.
type Materializer struct {
	db              *store.DB
	guard           *security.Engine
	queue           AssignmentQueue
	defaultProvider string
	loc             *time.Location
	logger          *slog.Logger
}

// NewMaterializer creates a materializer over the shared database.
func NewMaterializer(db *store.DB, guard *security.Engine, queue AssignmentQueue, cfg *Config, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}

	return &Materializer{
		db:              db,
		guard:           guard,
		queue:           queue,
		defaultProvider: cfg.Meetings.DefaultProvider,
		loc:             loc,
		logger:          logger.With("component", "dispatch"),
	}
}

// Materialize creates one entity per approved action, following the
// envelope's declared order within each family. Per-item failures are
// logged and skipped; siblings are still attempted.
func (m *Materializer) Materialize(ctx context.Context, userID string, env *IntentEnvelope) *DispatchResult {
	result := &DispatchResult{}

	for _, action := range env.Tasks {
		m.materializeTask(userID, action, result)
	}
	for _, action := range env.Reminders {
		m.materializeReminder(userID, action, result)
	}
	for _, action := range env.Notes {
		m.materializeNote(userID, action, result)
	}
	for _, action := range env.CalendarEvents {
		m.materializeEvent(userID, action, result)
	}
	for _, action := range env.Emails {
		m.materializeEmail(userID, action, result)
	}
	for _, action := range env.Meetings {
		m.materializeMeeting(userID, action, result)
	}
	for _, action := range env.Assignments {
		m.materializeAssignment(userID, action, result)
	}
	if env.Search != nil {
		m.materializeSearch(userID, *env.Search, result)
	}

	return result
}

// check runs the guardrail engine for one action, recording denials and
// allowed-with-flag findings. Returns true when materialization may proceed.
func (m *Materializer) check(userID, actionType, title, content string, result *DispatchResult) bool {
	verdict := m.guard.Check(security.CheckContext{
		UserID:     userID,
		ActionType: actionType,
		Content:    content,
	})

	if !verdict.Allowed {
		m.logger.Info("action denied by guardrail",
			"user_id", userID,
			"action_type", actionType,
			"severity", verdict.Severity,
			"reason", verdict.Reason,
		)
		result.Denials = append(result.Denials, Denial{
			ActionType: actionType,
			Title:      title,
			Result:     verdict,
		})
		return false
	}

	if verdict.Reason != "" {
		result.Warnings = append(result.Warnings, verdict.Reason)
	}
	return true
}

// skip logs a per-item materialization failure without aborting the batch.
func (m *Materializer) skip(userID, actionType string, err error) {
	m.logger.Warn("action skipped",
		"user_id", userID,
		"action_type", actionType,
		"error", err,
	)
}

func (m *Materializer) materializeTask(userID string, action TaskAction, result *DispatchResult) {
	if !m.check(userID, ActionTask, action.Title, action.Title+" "+action.Description, result) {
		return
	}

	task := &store.Task{
		UserID:      userID,
		Title:       action.Title,
		Description: action.Description,
		Priority:    normalizePriority(action.Priority),
		CreatedBy:   action.CreatedBy,
	}
	if due, err := m.parseTime(action.DueDate); err == nil {
		task.DueDate = &due
	}

	created, err := m.db.Tasks.Create(task)
	if err != nil {
		m.skip(userID, ActionTask, err)
		return
	}
	result.Created = append(result.Created, CreatedAction{Type: ActionTask, ID: created.ID, Title: created.Title})
}

func (m *Materializer) materializeReminder(userID string, action ReminderAction, result *DispatchResult) {
	if !m.check(userID, ActionReminder, action.Title, action.Title+" "+action.Notes, result) {
		return
	}

	reminderTime, err := m.parseTime(action.ReminderTime)
	if err != nil {
		m.skip(userID, ActionReminder, fmt.Errorf("unresolvable reminder time %q: %w", action.ReminderTime, err))
		return
	}

	created, err := m.db.Reminders.Create(&store.Reminder{
		UserID:       userID,
		Title:        action.Title,
		Notes:        action.Notes,
		ReminderTime: reminderTime,
		IsUrgent:     action.IsUrgent,
	})
	if err != nil {
		m.skip(userID, ActionReminder, err)
		return
	}
	result.Created = append(result.Created, CreatedAction{Type: ActionReminder, ID: created.ID, Title: created.Title})
}

func (m *Materializer) materializeNote(userID string, action NoteAction, result *DispatchResult) {
	if !m.check(userID, ActionNote, action.Title, action.Title+" "+action.Content, result) {
		return
	}

	created, err := m.db.Notes.Create(&store.Note{
		UserID:   userID,
		Title:    action.Title,
		Content:  action.Content,
		Category: action.Category,
		Tags:     action.Tags,
	})
	if err != nil {
		m.skip(userID, ActionNote, err)
		return
	}
	result.Created = append(result.Created, CreatedAction{Type: ActionNote, ID: created.ID, Title: created.Title})
}

func (m *Materializer) materializeEvent(userID string, action EventAction, result *DispatchResult) {
	if !m.check(userID, ActionEvent, action.Title, action.Title+" "+action.Location, result) {
		return
	}

	startTime, startErr := m.parseTime(action.StartTime)
	endTime, endErr := m.parseTime(action.EndTime)
	if endErr != nil {
		m.skip(userID, ActionEvent, fmt.Errorf("invalid event end time %q: %w", action.EndTime, endErr))
		return
	}

	// Overlap warns but never blocks; the user confirms through the reply.
	if startErr == nil {
		conflict := security.CheckConflicts(m.overlapTitles, userID, startTime, endTime)
		if conflict.Reason != "" {
			result.Warnings = append(result.Warnings, conflict.Reason+" "+conflict.Suggestion)
		}
	}

	created, err := m.db.Events.Create(&store.CalendarEvent{
		UserID:    userID,
		Title:     action.Title,
		StartTime: startTime,
		EndTime:   endTime,
		Location:  action.Location,
		Attendees: action.Attendees,
	})
	if err != nil {
		m.skip(userID, ActionEvent, err)
		return
	}
	result.Created = append(result.Created, CreatedAction{Type: ActionEvent, ID: created.ID, Title: created.Title})
}

func (m *Materializer) materializeEmail(userID string, action EmailAction, result *DispatchResult) {
	content := action.Subject + " " + action.Body + " " + strings.Join(action.To, " ")
	if !m.check(userID, ActionEmailDraft, action.Subject, content, result) {
		return
	}

	created, err := m.db.Drafts.Create(&store.EmailDraft{
		UserID:  userID,
		To:      action.To,
		CC:      action.CC,
		Subject: action.Subject,
		Body:    action.Body,
	})
	if err != nil {
		m.skip(userID, ActionEmailDraft, err)
		return
	}
	result.Created = append(result.Created, CreatedAction{Type: ActionEmailDraft, ID: created.ID, Title: created.Subject})
}

func (m *Materializer) materializeMeeting(userID string, action MeetingAction, result *DispatchResult) {
	if !m.check(userID, ActionMeeting, action.Title, action.Title, result) {
		return
	}

	provider := action.Provider
	if provider == "" {
		provider = m.defaultProvider
	}

	created, err := m.db.Meetings.Create(&store.MeetingRequest{
		UserID:          userID,
		Provider:        provider,
		Title:           action.Title,
		StartTime:       action.StartTime,
		DurationMinutes: action.DurationMinutes,
	})
	if err != nil {
		m.skip(userID, ActionMeeting, err)
		return
	}
	result.Created = append(result.Created, CreatedAction{Type: ActionMeeting, ID: created.ID, Title: created.Title})
}

func (m *Materializer) materializeAssignment(userID string, action AssignmentAction, result *DispatchResult) {
	if !m.check(userID, ActionAssignment, action.Title, action.Title+" "+action.Query+" "+action.Description, result) {
		return
	}

	created, err := m.db.Assignments.Create(&store.Assignment{
		UserID:      userID,
		Title:       action.Title,
		Description: action.Description,
		Query:       action.Query,
		Type:        action.Type,
		Priority:    normalizePriority(action.Priority),
	})
	if err != nil {
		m.skip(userID, ActionAssignment, err)
		return
	}

	// The only action family that completes out-of-band: hand off to the
	// background processor and return immediately.
	if m.queue != nil {
		m.queue.Queue(created.ID)
	}

	result.Created = append(result.Created, CreatedAction{Type: ActionAssignment, ID: created.ID, Title: created.Title})
}

func (m *Materializer) materializeSearch(userID string, action SearchAction, result *DispatchResult) {
	if !m.check(userID, ActionSearch, action.Query, action.Query, result) {
		return
	}

	created, err := m.db.Searches.Create(&store.SearchRequest{
		UserID: userID,
		Query:  action.Query,
		Type:   action.Type,
	})
	if err != nil {
		m.skip(userID, ActionSearch, err)
		return
	}
	result.Created = append(result.Created, CreatedAction{Type: ActionSearch, ID: created.ID, Title: created.Query})
}

// overlapTitles adapts the event store to the conflict check's query shape.
func (m *Materializer) overlapTitles(userID string, start, end time.Time) ([]string, error) {
	events, err := m.db.Events.FindOverlapping(userID, start, end)
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(events))
	for _, e := range events {
		titles = append(titles, e.Title)
	}
	return titles, nil
}

// parseTime parses a classifier-emitted timestamp. RFC3339 is expected;
// zone-less timestamps fall back to the user's reference timezone.
func (m *Materializer) parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, m.loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, m.loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// normalizePriority clamps priority to the known set, defaulting to medium.
func normalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "low":
		return "low"
	case "high":
		return "high"
	default:
		return "medium"
	}
}
