// Package assistant implements the conversational action orchestrator: one
// utterance in, a reply plus zero or more materialized actions out. The
// pipeline is classify → guard → materialize → reply, with conversation
// context persisted around it.
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

// replyPromptTemplate builds the reply-generation completion call. The
// classification already happened; this call only produces the user-facing
// text acknowledging what was (or wasn't) done.
const replyPromptTemplate = `You are %s, a personal assistant.
Current time: %s (timezone: %s)

What you know about the user:
%s

Recent conversation:
%s

%s

%s

User message: %s

Reply to the user now.`

// TurnResult is the outcome of one conversational turn.
type TurnResult struct {
	ConversationID string          `json:"conversationId"`
	ReplyText      string          `json:"replyText"`
	CreatedActions []CreatedAction `json:"createdActions,omitempty"`
}

// Assistant is the orchestrator tying the classifier, guardrails,
// materializer, and conversation context together.
type Assistant struct {
	cfg           *Config
	db            *store.DB
	llm           CompletionService
	classifier    *Classifier
	conversations *ConversationManager
	materializer  *Materializer
	logger        *slog.Logger
}

// New wires up a full assistant over the shared database and completion
// service. The queue receives assignment IDs for out-of-band processing; it
// may be nil in single-shot contexts where no worker is running.
func New(cfg *Config, db *store.DB, llm CompletionService, queue AssignmentQueue, logger *slog.Logger) (*Assistant, error) {
	if logger == nil {
		logger = slog.Default()
	}

	window := security.DefaultWindow
	if cfg.Security.RateWindowMinutes > 0 {
		window = time.Duration(cfg.Security.RateWindowMinutes) * time.Minute
	}
	ceilings := security.DefaultCeilings
	if len(cfg.Security.RateCeilings) > 0 {
		merged := make(map[string]int, len(ceilings)+len(cfg.Security.RateCeilings))
		for k, v := range ceilings {
			merged[k] = v
		}
		for k, v := range cfg.Security.RateCeilings {
			merged[k] = v
		}
		ceilings = merged
	}

	limiter := security.NewLimiter(db.Counters, window, ceilings)
	guard := security.NewEngine(limiter, db.Integrations, logger)

	conversations, err := NewConversationManager(db, cfg.Context, logger)
	if err != nil {
		return nil, fmt.Errorf("create conversation manager: %w", err)
	}

	return &Assistant{
		cfg:           cfg,
		db:            db,
		llm:           llm,
		classifier:    NewClassifier(llm, cfg.Timezone, logger),
		conversations: conversations,
		materializer:  NewMaterializer(db, guard, queue, cfg, logger),
		logger:        logger.With("component", "assistant"),
	}, nil
}

// Conversations exposes the conversation manager (CLI history views).
func (a *Assistant) Conversations() *ConversationManager {
	return a.conversations
}

// HandleUtterance processes one conversational turn end to end. An empty
// conversationID starts a new conversation; the returned result carries the
// ID to continue it. Classification and per-action failures degrade
// gracefully; only reply generation is fatal.
func (a *Assistant) HandleUtterance(ctx context.Context, userID, conversationID, text, mode string) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty utterance")
	}
	if mode != ModeVoice {
		mode = ModeText
	}

	started := time.Now()

	// ── Step 1: resolve the conversation and log the user turn ──
	conv, err := a.conversations.Resolve(userID, conversationID, mode)
	if err != nil {
		return nil, fmt.Errorf("resolve conversation: %w", err)
	}
	if err := a.conversations.Append(conv.ID, "user", text); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	// ── Step 2: classify the utterance into an action envelope ──
	envelope := a.classifier.Classify(ctx, text, time.Now())

	// ── Step 3: clarification and permission requests short-circuit ──
	if envelope.NeedsClarification {
		question := envelope.ClarificationNeeded
		if question == "" {
			question = "Could you clarify what you'd like me to do?"
		}
		return a.finishTurn(conv.ID, question, nil)
	}
	if envelope.NeedsPermission {
		reply := permissionReply(envelope)
		return a.finishTurn(conv.ID, reply, nil)
	}

	// ── Step 4: guard and materialize the approved actions ──
	var dispatched *DispatchResult
	if envelope.HasActions {
		dispatched = a.materializer.Materialize(ctx, userID, envelope)
	} else {
		dispatched = &DispatchResult{}
	}

	// ── Step 5: generate the user-facing reply ──
	reply, err := a.generateReply(ctx, userID, conv.ID, text, mode, dispatched)
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}

	a.logger.Info("turn handled",
		"user_id", userID,
		"conversation_id", conv.ID,
		"mode", mode,
		"actions_created", len(dispatched.Created),
		"actions_denied", len(dispatched.Denials),
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return a.finishTurn(conv.ID, reply, dispatched.Created)
}

// finishTurn appends the assistant reply to the conversation and builds the
// turn result.
func (a *Assistant) finishTurn(conversationID, reply string, created []CreatedAction) (*TurnResult, error) {
	if err := a.conversations.Append(conversationID, "assistant", reply); err != nil {
		return nil, fmt.Errorf("append assistant message: %w", err)
	}
	return &TurnResult{
		ConversationID: conversationID,
		ReplyText:      reply,
		CreatedActions: created,
	}, nil
}

// generateReply runs the reply-generation completion with the context digest,
// the recent window, and a summary of what just happened.
func (a *Assistant) generateReply(ctx context.Context, userID, conversationID, text, mode string, dispatched *DispatchResult) (string, error) {
	window, err := a.conversations.RecentWindow(conversationID)
	if err != nil {
		a.logger.Warn("recent window unavailable", "error", err)
	}

	prompt := fmt.Sprintf(replyPromptTemplate,
		a.cfg.Name,
		time.Now().Format(time.RFC3339),
		a.cfg.Timezone,
		a.conversations.ContextSummary(userID),
		FormatWindow(window),
		outcomeSummary(dispatched),
		StyleInstructions(mode),
		text,
	)

	reply, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("empty reply from completion service")
	}
	return reply, nil
}

// outcomeSummary renders the dispatch result as prompt instructions so the
// reply accurately reflects what was created, denied, or flagged.
func outcomeSummary(d *DispatchResult) string {
	if d == nil || (len(d.Created) == 0 && len(d.Denials) == 0 && len(d.Warnings) == 0) {
		return "No actions were taken for this message. Reply conversationally."
	}

	var b strings.Builder
	if len(d.Created) > 0 {
		b.WriteString("Actions just completed (mention them naturally):\n")
		for _, c := range d.Created {
			fmt.Fprintf(&b, "- created %s: %q\n", c.Type, c.Title)
			if c.Type == ActionAssignment {
				b.WriteString("  (this runs in the background; tell the user you'll notify them when it's done)\n")
			}
		}
	}
	for _, denial := range d.Denials {
		fmt.Fprintf(&b, "Denied %s %q: %s %s\n",
			denial.ActionType, denial.Title, denial.Result.Reason, denial.Result.Suggestion)
	}
	for _, warning := range d.Warnings {
		b.WriteString("Warning to relay: " + warning + "\n")
	}
	return strings.TrimSpace(b.String())
}

// permissionReply renders a permission request as user-facing text.
func permissionReply(envelope *IntentEnvelope) string {
	reason := envelope.PermissionReason
	if reason == "" {
		reason = "I need additional access to do that."
	}
	if len(envelope.PermissionsNeeded) == 0 {
		return reason
	}
	return fmt.Sprintf("%s Please grant access to: %s.",
		reason, strings.Join(envelope.PermissionsNeeded, ", "))
}
