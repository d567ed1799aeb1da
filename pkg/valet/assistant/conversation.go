// Package assistant – conversation.go implements the conversation context
// accumulator. Messages are append-only and persisted; a bounded recent
// window plus a per-turn digest of the user's current state feed every
// completion call. An LRU cache keeps hot conversation headers in memory
// without turning into an unbounded global map.
package assistant

import (
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/valetd/valet/pkg/valet/store"
)

// Conversation modes.
const (
	ModeText  = "text"
	ModeVoice = "voice"
)

// ConversationManager resolves, caches, and appends to conversations, and
// builds the context digest injected into prompts.
type ConversationManager struct {
	db         *store.DB
	cache      *lru.Cache[string, *store.ConversationRecord]
	windowSize int
	logger     *slog.Logger
}

// NewConversationManager creates a manager over the shared database.
func NewConversationManager(db *store.DB, cfg ContextConfig, logger *slog.Logger) (*ConversationManager, error) {
	windowSize := cfg.WindowSize
	if windowSize <= 0 {
		windowSize = 10
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}

	cache, err := lru.New[string, *store.ConversationRecord](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create conversation cache: %w", err)
	}

	return &ConversationManager{
		db:         db,
		cache:      cache,
		windowSize: windowSize,
		logger:     logger.With("component", "conversations"),
	}, nil
}

// Resolve returns the conversation with the given ID, or creates a new one
// when the ID is empty. Ownership is checked: a conversation ID belonging to
// another user is rejected.
func (m *ConversationManager) Resolve(userID, conversationID, mode string) (*store.ConversationRecord, error) {
	if conversationID == "" {
		rec, err := m.db.Conversations.Create(userID, mode)
		if err != nil {
			return nil, err
		}
		m.cache.Add(rec.ID, rec)
		m.logger.Info("conversation created",
			"conversation_id", rec.ID,
			"user_id", userID,
			"mode", mode,
		)
		return rec, nil
	}

	if rec, ok := m.cache.Get(conversationID); ok {
		if rec.UserID != userID {
			return nil, fmt.Errorf("conversation %q does not belong to user", conversationID)
		}
		return rec, nil
	}

	rec, err := m.db.Conversations.FindByID(conversationID)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, fmt.Errorf("conversation %q does not belong to user", conversationID)
	}

	m.cache.Add(rec.ID, rec)
	return rec, nil
}

// Append adds one message to the conversation log. Messages are never
// mutated after creation.
func (m *ConversationManager) Append(conversationID, role, content string) error {
	return m.db.Conversations.AppendMessage(conversationID, role, content)
}

// RecentWindow returns the last N messages in chronological order.
func (m *ConversationManager) RecentWindow(conversationID string) ([]store.Message, error) {
	return m.db.Conversations.RecentMessages(conversationID, m.windowSize)
}

// ContextSummary builds a text digest of the user's current tasks,
// reminders, events, and connected integrations, recomputed per turn and
// injected as a leading instruction into completion calls.
func (m *ConversationManager) ContextSummary(userID string) string {
	var b strings.Builder

	if tasks, err := m.db.Tasks.ListPending(userID, 5); err == nil && len(tasks) > 0 {
		b.WriteString("Pending tasks:\n")
		for _, t := range tasks {
			b.WriteString("- " + t.Title)
			if t.DueDate != nil {
				b.WriteString(" (due " + t.DueDate.Format("Mon Jan 2 15:04") + ")")
			}
			b.WriteString("\n")
		}
	}

	if reminders, err := m.db.Reminders.ListActive(userID, 5); err == nil && len(reminders) > 0 {
		b.WriteString("Active reminders:\n")
		for _, r := range reminders {
			fmt.Fprintf(&b, "- %s at %s\n", r.Title, r.ReminderTime.Format("Mon Jan 2 15:04"))
		}
	}

	if events, err := m.db.Events.ListUpcoming(userID, 5); err == nil && len(events) > 0 {
		b.WriteString("Upcoming events:\n")
		for _, e := range events {
			fmt.Fprintf(&b, "- %s at %s\n", e.Title, e.StartTime.Format("Mon Jan 2 15:04"))
		}
	}

	if kinds, err := m.db.Integrations.ListConnected(userID); err == nil && len(kinds) > 0 {
		b.WriteString("Connected integrations: " + strings.Join(kinds, ", ") + "\n")
	}

	if b.Len() == 0 {
		return "The user has no pending tasks, reminders, or upcoming events."
	}
	return b.String()
}

// StyleInstructions returns the reply-style constraint for the mode.
// Voice replies are read aloud, so they stay short and unformatted.
func StyleInstructions(mode string) string {
	if mode == ModeVoice {
		return "Reply in 1-3 short spoken-style sentences. No markdown, no lists, no headings."
	}
	return "Reply helpfully and concisely. Markdown formatting is allowed."
}

// FormatWindow renders the recent message window for inclusion in a prompt.
func FormatWindow(messages []store.Message) string {
	if len(messages) == 0 {
		return "(no prior messages)"
	}
	var b strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}
	return b.String()
}
