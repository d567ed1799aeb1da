// Package security implements the guardrail policy engine for Valet.
// Every proposed action passes through Check before materialization: sensitive
// data, dangerous phrasing, rate limits, integration requirements, content
// moderation, and privacy compliance, evaluated in fixed order with
// short-circuit on the first denial.
package security

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// Severity grades a guardrail finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Result is the outcome of a guardrail evaluation. It is ephemeral: returned
// to the caller, never persisted.
type Result struct {
	Allowed    bool     `json:"allowed"`
	Reason     string   `json:"reason,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
	Severity   Severity `json:"severity,omitempty"`
}

// CheckContext describes one proposed action.
type CheckContext struct {
	UserID     string
	ActionType string
	Content    string
	Metadata   map[string]string
}

// IntegrationChecker reports whether a user has an external integration
// connected. Implemented by store.IntegrationStore.
type IntegrationChecker interface {
	IsConnected(userID, kind string) bool
}

// Engine evaluates guardrail policy. Side-effect free except for the
// rate-limit counters.
type Engine struct {
	limiter      *Limiter
	integrations IntegrationChecker
	logger       *slog.Logger
}

// NewEngine creates a guardrail engine. A nil integrations checker disables
// the integration check (everything counts as connected).
func NewEngine(limiter *Limiter, integrations IntegrationChecker, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		limiter:      limiter,
		integrations: integrations,
		logger:       logger.With("component", "guardrails"),
	}
}

// ---------- Pattern Families ----------

// sensitivePattern is one family of the sensitive-data scan. Any match is a
// critical denial.
type sensitivePattern struct {
	name       string
	re         *regexp.Regexp
	suggestion string
}

var sensitivePatterns = []sensitivePattern{
	{
		name:       "credit card number",
		re:         regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{4}\b`),
		suggestion: "Remove the card number. If you need to reference it, use only the last 4 digits.",
	},
	{
		name:       "social security number",
		re:         regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		suggestion: "Remove the SSN before saving this.",
	},
	{
		name:       "password or secret",
		re:         regexp.MustCompile(`(?i)\b(password|passwd|pwd|secret)\s*[:=]\s*\S+`),
		suggestion: "Never store passwords in plain text. Use a password manager.",
	},
	{
		name:       "API key or token",
		re:         regexp.MustCompile(`(?i)\b(api[_-]?key|access[_-]?token|auth[_-]?token|bearer)\s*[:=]\s*\S{8,}|\bsk-[A-Za-z0-9]{20,}\b`),
		suggestion: "Remove the API key. Keys belong in a secrets manager, not in notes or messages.",
	},
	{
		name:       "private key material",
		re:         regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----`),
		suggestion: "Remove the private key before saving this.",
	},
}

// dangerousPattern is one family of the dangerous-action scan.
type dangerousPattern struct {
	name     string
	re       *regexp.Regexp
	severity Severity
}

var dangerousPatterns = []dangerousPattern{
	{
		name:     "bulk deletion",
		re:       regexp.MustCompile(`(?i)\b(delete|remove|erase|wipe)\b.{0,40}\b(all|everything)\b`),
		severity: SeverityCritical,
	},
	{
		name:     "mass messaging",
		re:       regexp.MustCompile(`(?i)\b(send|notify|message|email|text)\b.{0,40}\b(all|everyone|everybody)\b`),
		severity: SeverityWarning,
	},
	{
		name:     "financial transfer",
		re:       regexp.MustCompile(`(?i)\b(transfer|wire|pay)\b.{0,40}?(\$|€|£|\b\d+([.,]\d{2})?\b.{0,10}\b(dollars|euros|pounds|usd|eur|gbp)\b)`),
		severity: SeverityCritical,
	},
	{
		name:     "account closure",
		re:       regexp.MustCompile(`(?i)\b(close|delete|deactivate|cancel)\b.{0,30}\baccount\b`),
		severity: SeverityWarning,
	},
}

// integrationRequired maps action types to the integration they depend on.
var integrationRequired = map[string]string{
	"email_draft":    "email",
	"calendar_event": "calendar",
	"meeting":        "calendar",
}

// offensivePattern flags hostile language. Matches warn but never deny.
var offensivePattern = regexp.MustCompile(`(?i)\b(idiot|moron|stupid|hate you|shut up|damn you)\b`)

// Patterns for the privacy-compliance scan of outbound drafts.
var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)
	phonePattern = regexp.MustCompile(`\b\+?\d{1,3}[ .\-]?\(?\d{2,3}\)?[ .\-]?\d{3,4}[ .\-]?\d{4}\b`)
	ipPattern    = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
)

// maxNoteLength is the privacy threshold for oversized note payloads.
const maxNoteLength = 10000

// ---------- Checks ----------

// Check evaluates all guardrails for one proposed action, in fixed order,
// short-circuiting on the first denial. Allowed-but-flagged findings (e.g.
// offensive language, privacy notices) are returned after all checks pass.
func (e *Engine) Check(ctx CheckContext) Result {
	// 1. Sensitive data.
	if r := e.checkSensitiveData(ctx); !r.Allowed {
		return r
	}

	// 2. Dangerous actions.
	if r := e.checkDangerousActions(ctx); !r.Allowed {
		return r
	}

	// 3. Rate limiting.
	if r := e.checkRateLimit(ctx); !r.Allowed {
		return r
	}

	// 4. Integration requirements.
	if r := e.checkIntegrations(ctx); !r.Allowed {
		return r
	}

	// 5. Content moderation (spam denies; offensive language only flags).
	moderation := e.checkModeration(ctx)
	if !moderation.Allowed {
		return moderation
	}

	// 6. Privacy compliance (never denies).
	privacy := e.checkPrivacy(ctx)

	// Surface the strongest allowed-with-flag finding.
	if moderation.Reason != "" {
		return moderation
	}
	if privacy.Reason != "" {
		return privacy
	}
	return Result{Allowed: true}
}

func (e *Engine) checkSensitiveData(ctx CheckContext) Result {
	for _, p := range sensitivePatterns {
		if p.re.MatchString(ctx.Content) {
			e.logger.Warn("sensitive data blocked",
				"user_id", ctx.UserID,
				"action_type", ctx.ActionType,
				"pattern", p.name,
			)
			return Result{
				Allowed:    false,
				Reason:     fmt.Sprintf("The content appears to contain a %s.", p.name),
				Suggestion: p.suggestion,
				Severity:   SeverityCritical,
			}
		}
	}
	return Result{Allowed: true}
}

func (e *Engine) checkDangerousActions(ctx CheckContext) Result {
	for _, p := range dangerousPatterns {
		if p.re.MatchString(ctx.Content) {
			e.logger.Warn("dangerous action blocked",
				"user_id", ctx.UserID,
				"action_type", ctx.ActionType,
				"pattern", p.name,
			)
			return Result{
				Allowed:    false,
				Reason:     fmt.Sprintf("This looks like a %s request, which I can't perform automatically.", p.name),
				Suggestion: "If you really want this, do it manually through the relevant app.",
				Severity:   p.severity,
			}
		}
	}
	return Result{Allowed: true}
}

func (e *Engine) checkRateLimit(ctx CheckContext) Result {
	if e.limiter == nil {
		return Result{Allowed: true}
	}

	ok, retryAfter, err := e.limiter.Allow(ctx.UserID, ctx.ActionType)
	if err != nil {
		// A broken counter store must not take the assistant down; admit and log.
		e.logger.Error("rate limiter unavailable", "error", err)
		return Result{Allowed: true}
	}
	if !ok {
		minutes := int(retryAfter.Minutes()) + 1
		return Result{
			Allowed:    false,
			Reason:     fmt.Sprintf("You've reached the hourly limit for %s actions.", ctx.ActionType),
			Suggestion: fmt.Sprintf("Try again in about %d minute(s).", minutes),
			Severity:   SeverityWarning,
		}
	}
	return Result{Allowed: true}
}

func (e *Engine) checkIntegrations(ctx CheckContext) Result {
	kind, needs := integrationRequired[ctx.ActionType]
	if !needs || e.integrations == nil {
		return Result{Allowed: true}
	}
	if e.integrations.IsConnected(ctx.UserID, kind) {
		return Result{Allowed: true}
	}
	return Result{
		Allowed:    false,
		Reason:     fmt.Sprintf("This action needs a connected %s integration.", kind),
		Suggestion: fmt.Sprintf("Please connect your %s account in settings first.", kind),
		Severity:   SeverityInfo,
	}
}

func (e *Engine) checkModeration(ctx CheckContext) Result {
	// Spam heuristic: one token dominating a long payload.
	tokens := strings.Fields(ctx.Content)
	if len(tokens) > 10 {
		counts := make(map[string]int, len(tokens))
		max := 0
		for _, tok := range tokens {
			counts[strings.ToLower(tok)]++
			if counts[strings.ToLower(tok)] > max {
				max = counts[strings.ToLower(tok)]
			}
		}
		if max*2 > len(tokens) {
			return Result{
				Allowed:  false,
				Reason:   "The content looks like repeated spam.",
				Severity: SeverityWarning,
			}
		}
	}

	if offensivePattern.MatchString(ctx.Content) {
		return Result{
			Allowed:  true,
			Reason:   "The content contains language that may come across as hostile.",
			Severity: SeverityWarning,
		}
	}
	return Result{Allowed: true}
}

func (e *Engine) checkPrivacy(ctx CheckContext) Result {
	if ctx.ActionType == "email_draft" {
		if emailPattern.MatchString(ctx.Content) || phonePattern.MatchString(ctx.Content) || ipPattern.MatchString(ctx.Content) {
			return Result{
				Allowed:  true,
				Reason:   "The draft contains embedded contact details (email, phone, or IP).",
				Severity: SeverityInfo,
			}
		}
	}
	if ctx.ActionType == "note" && len(ctx.Content) > maxNoteLength {
		return Result{
			Allowed:  true,
			Reason:   fmt.Sprintf("The note is very large (over %d characters).", maxNoteLength),
			Severity: SeverityInfo,
		}
	}
	return Result{Allowed: true}
}

// ---------- Conflict Check ----------

// OverlapQuery returns the titles of existing calendar events overlapping
// [start, end). The assistant wires this to its event store.
type OverlapQuery func(userID string, start, end time.Time) ([]string, error)

// CheckConflicts looks for calendar events overlapping [start, end). Overlap
// is allowed but returns a warning naming the conflicting event; the caller
// decides whether to surface it for confirmation.
func CheckConflicts(query OverlapQuery, userID string, start, end time.Time) Result {
	if query == nil {
		return Result{Allowed: true}
	}

	titles, err := query(userID, start, end)
	if err != nil || len(titles) == 0 {
		return Result{Allowed: true}
	}

	return Result{
		Allowed:    true,
		Reason:     fmt.Sprintf("This overlaps with %q.", titles[0]),
		Suggestion: "Double-check the time or confirm you want overlapping events.",
		Severity:   SeverityWarning,
	}
}

// ---------- Sanitization ----------

// SanitizeMode controls how aggressively Sanitize redacts.
type SanitizeMode string

const (
	SanitizeStrict   SanitizeMode = "strict"
	SanitizeModerate SanitizeMode = "moderate"
	SanitizeLenient  SanitizeMode = "lenient"
)

// Sanitize redacts sensitive-data matches in place. Used when content must
// be logged or stored despite a warning-level finding.
func Sanitize(content string, mode SanitizeMode) string {
	for _, p := range sensitivePatterns {
		switch mode {
		case SanitizeLenient:
			// Only the unambiguous identifiers.
			if p.name != "credit card number" && p.name != "social security number" && p.name != "private key material" {
				continue
			}
		case SanitizeModerate:
			if p.name == "password or secret" {
				continue
			}
		}
		content = p.re.ReplaceAllString(content, "[REDACTED]")
	}
	return content
}
