package assistant

import "testing"

func TestNormalizeClarificationDropsActions(t *testing.T) {
	env := &IntentEnvelope{
		HasActions:          true,
		NeedsClarification:  true,
		ClarificationNeeded: "What time should the reminder fire?",
		Reminders:           []ReminderAction{{Title: "call mom"}},
		Tasks:               []TaskAction{{Title: "buy milk"}},
	}

	env.Normalize()

	if env.HasActions {
		t.Error("clarification must clear HasActions")
	}
	if env.ActionCount() != 0 {
		t.Errorf("expected all actions dropped, got %d", env.ActionCount())
	}
	if env.ClarificationNeeded == "" {
		t.Error("the clarification question must survive")
	}
}

func TestNormalizePermissionDropsActions(t *testing.T) {
	env := &IntentEnvelope{
		NeedsPermission:   true,
		PermissionsNeeded: []string{"Calendar", "telepathy"},
		PermissionReason:  "I need calendar access to check your schedule.",
		CalendarEvents:    []EventAction{{Title: "lunch"}},
	}

	env.Normalize()

	if env.ActionCount() != 0 {
		t.Error("permission requests must drop actions")
	}
	// Known kinds are lowercased, unknown kinds dropped.
	if len(env.PermissionsNeeded) != 1 || env.PermissionsNeeded[0] != "calendar" {
		t.Errorf("expected [calendar], got %v", env.PermissionsNeeded)
	}
}

func TestNormalizeUnknownPermissionsDegradeToClarification(t *testing.T) {
	env := &IntentEnvelope{
		NeedsPermission:   true,
		PermissionsNeeded: []string{"telepathy"},
		PermissionReason:  "I need mind-reading access.",
	}

	env.Normalize()

	if env.NeedsPermission {
		t.Error("a permission request with no known kinds must not survive")
	}
	if !env.NeedsClarification || env.ClarificationNeeded == "" {
		t.Error("expected degradation to a clarification carrying the reason")
	}
}

func TestNormalizeRecomputesHasActions(t *testing.T) {
	env := &IntentEnvelope{
		HasActions: false,
		Tasks:      []TaskAction{{Title: "buy milk"}},
		Search:     &SearchAction{Query: "weather"},
	}

	env.Normalize()

	if !env.HasActions {
		t.Error("HasActions must reflect the actual action lists")
	}
	if env.ActionCount() != 2 {
		t.Errorf("expected 2 actions, got %d", env.ActionCount())
	}
}

func TestNeutralEnvelopeIsEmpty(t *testing.T) {
	env := NeutralEnvelope()
	if env.HasActions || env.NeedsClarification || env.NeedsPermission || env.ActionCount() != 0 {
		t.Errorf("neutral envelope must be completely empty: %+v", env)
	}
}
