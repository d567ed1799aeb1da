// Package assistant – envelope.go defines the Intent Envelope: the
// structured contract between the classifier and the rest of the pipeline.
// The upstream model's output is untrusted, so every field is validated and
// normalized here before anything downstream sees it.
package assistant

import "strings"

// Permission kinds a classified action may require from the device/user.
var permissionKinds = map[string]bool{
	"location":      true,
	"contacts":      true,
	"calendar":      true,
	"photos":        true,
	"microphone":    true,
	"camera":        true,
	"notifications": true,
}

// IntentEnvelope is the classifier's output: zero or more proposed actions,
// or a request for clarification or permissions. Clarification/permission
// and actions are mutually exclusive; Normalize enforces that.
type IntentEnvelope struct {
	HasActions bool `json:"hasActions"`

	NeedsClarification  bool   `json:"needsClarification,omitempty"`
	ClarificationNeeded string `json:"clarificationNeeded,omitempty"`

	NeedsPermission   bool     `json:"needsPermission,omitempty"`
	PermissionsNeeded []string `json:"permissionsNeeded,omitempty"`
	PermissionReason  string   `json:"permissionReason,omitempty"`

	Tasks          []TaskAction       `json:"tasks,omitempty"`
	Reminders      []ReminderAction   `json:"reminders,omitempty"`
	Notes          []NoteAction       `json:"notes,omitempty"`
	CalendarEvents []EventAction      `json:"calendarEvents,omitempty"`
	Emails         []EmailAction      `json:"emails,omitempty"`
	Meetings       []MeetingAction    `json:"meetings,omitempty"`
	Assignments    []AssignmentAction `json:"assignments,omitempty"`
	Search         *SearchAction      `json:"search,omitempty"`
}

// TaskAction is a proposed task creation.
type TaskAction struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
	CreatedBy   string `json:"createdBy,omitempty"`
}

// ReminderAction is a proposed reminder. ReminderTime must be a concrete
// RFC3339 instant; the classifier asks for clarification instead of emitting
// ambiguous relative phrases.
type ReminderAction struct {
	Title        string `json:"title"`
	Notes        string `json:"notes,omitempty"`
	ReminderTime string `json:"reminderTime"`
	IsUrgent     bool   `json:"isUrgent,omitempty"`
}

// NoteAction is a proposed note creation.
type NoteAction struct {
	Title    string   `json:"title,omitempty"`
	Content  string   `json:"content"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// EventAction is a proposed calendar event.
type EventAction struct {
	Title     string   `json:"title,omitempty"`
	StartTime string   `json:"startTime,omitempty"`
	EndTime   string   `json:"endTime"`
	Location  string   `json:"location,omitempty"`
	Attendees []string `json:"attendees,omitempty"`
}

// EmailAction is a proposed email draft. Drafts are never sent automatically.
type EmailAction struct {
	To      []string `json:"to"`
	CC      []string `json:"cc,omitempty"`
	Subject string   `json:"subject,omitempty"`
	Body    string   `json:"body,omitempty"`
}

// MeetingAction is a proposed meeting request.
type MeetingAction struct {
	Provider        string `json:"provider,omitempty"`
	Title           string `json:"title,omitempty"`
	StartTime       string `json:"startTime,omitempty"`
	DurationMinutes int    `json:"duration,omitempty"`
}

// AssignmentAction is a proposed research assignment — the only action
// family handed off to the background worker instead of completing
// synchronously.
type AssignmentAction struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Query       string `json:"query"`
	Type        string `json:"type,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

// SearchAction is a proposed search. At most one per envelope.
type SearchAction struct {
	Query string `json:"query"`
	Type  string `json:"type,omitempty"`
}

// NeutralEnvelope is the fallback for classification failures: no actions,
// no clarification, no permissions. The conversation proceeds as plain chat.
func NeutralEnvelope() *IntentEnvelope {
	return &IntentEnvelope{}
}

// ActionCount returns the number of proposed actions across all families.
func (e *IntentEnvelope) ActionCount() int {
	n := len(e.Tasks) + len(e.Reminders) + len(e.Notes) +
		len(e.CalendarEvents) + len(e.Emails) + len(e.Meetings) +
		len(e.Assignments)
	if e.Search != nil {
		n++
	}
	return n
}

// Normalize enforces the envelope invariants in place:
//   - clarification/permission requests short-circuit actions entirely
//   - unknown permission kinds are dropped
//   - HasActions reflects the actual action lists
func (e *IntentEnvelope) Normalize() {
	if e.NeedsClarification || e.NeedsPermission {
		e.HasActions = false
		e.Tasks = nil
		e.Reminders = nil
		e.Notes = nil
		e.CalendarEvents = nil
		e.Emails = nil
		e.Meetings = nil
		e.Assignments = nil
		e.Search = nil
	}

	if e.NeedsPermission {
		valid := e.PermissionsNeeded[:0]
		for _, p := range e.PermissionsNeeded {
			if permissionKinds[strings.ToLower(strings.TrimSpace(p))] {
				valid = append(valid, strings.ToLower(strings.TrimSpace(p)))
			}
		}
		e.PermissionsNeeded = valid
		if len(e.PermissionsNeeded) == 0 {
			// A permission request naming no known permission degrades to a
			// clarification so the user still gets a useful reply.
			e.NeedsPermission = false
			if e.PermissionReason != "" && !e.NeedsClarification {
				e.NeedsClarification = true
				e.ClarificationNeeded = e.PermissionReason
			}
		}
	}

	e.HasActions = e.ActionCount() > 0
}
