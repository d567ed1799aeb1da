// Package worker implements the assignment background processor. Assignments
// are created in_progress by the conversational pipeline and handed off here;
// the worker claims each one, runs the research completion, and records the
// outcome (findings + derived note + notification, or failed). The
// assignments table is the system of record: the in-process channel is only a
// wake-up signal, and a periodic sweep re-enqueues anything lost to a restart
// or a crashed consumer.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/valetd/valet/pkg/valet/store"
)

// CompletionService is the completion contract the worker needs.
// Satisfied by assistant.LLMClient.
type CompletionService interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// researchPromptTemplate drives the out-of-band research completion.
const researchPromptTemplate = `You are a research assistant working on a background %s assignment.

Assignment: %s
Query: %s
%s
Produce a thorough, well-organized answer in markdown. Lead with a short
summary, then the detailed findings. Do not address the user directly; this
text is stored as the assignment's findings.`

// Config holds worker tuning. Zero values fall back to sane defaults.
type Config struct {
	// Concurrency is the number of consumer goroutines.
	Concurrency int

	// QueueSize is the wake-up channel buffer.
	QueueSize int

	// Timeout bounds the research completion per assignment.
	Timeout time.Duration

	// StaleAfter is how old an unclaimed in_progress assignment must be
	// before the sweep re-enqueues it.
	StaleAfter time.Duration

	// SweepSchedule is the cron spec for the stale sweep.
	SweepSchedule string
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 15 * time.Minute
	}
	if c.SweepSchedule == "" {
		c.SweepSchedule = "@every 5m"
	}
}

// Worker consumes queued assignment IDs and processes them to completion.
type Worker struct {
	db     *store.DB
	llm    CompletionService
	cfg    Config
	queue  chan string
	cron   *cron.Cron
	logger *slog.Logger
	wg     sync.WaitGroup
}

// New creates a worker over the shared database and completion service.
func New(db *store.DB, llm CompletionService, cfg Config, logger *slog.Logger) *Worker {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		db:     db,
		llm:    llm,
		cfg:    cfg,
		queue:  make(chan string, cfg.QueueSize),
		logger: logger.With("component", "worker"),
	}
}

// Start launches the consumer goroutines and the stale-assignment sweep, and
// re-enqueues work left in_progress by a previous run. It returns immediately;
// cancel the context to stop. Call Wait to block until consumers drain.
func (w *Worker) Start(ctx context.Context) error {
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.consume(ctx, i)
	}

	w.cron = cron.New()
	_, err := w.cron.AddFunc(w.cfg.SweepSchedule, func() {
		w.sweep(w.cfg.StaleAfter)
	})
	if err != nil {
		return fmt.Errorf("schedule stale sweep %q: %w", w.cfg.SweepSchedule, err)
	}
	w.cron.Start()

	go func() {
		<-ctx.Done()
		w.cron.Stop()
	}()

	// Anything still in_progress from before this process started has no
	// channel entry; rescan immediately rather than waiting for the sweep.
	w.sweep(0)

	w.logger.Info("worker started",
		"concurrency", w.cfg.Concurrency,
		"queue_size", w.cfg.QueueSize,
		"sweep_schedule", w.cfg.SweepSchedule,
	)
	return nil
}

// Wait blocks until all consumer goroutines have exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// Queue wakes a consumer for the given assignment ID. Never blocks: when the
// buffer is full the assignment stays in_progress and the sweep picks it up.
func (w *Worker) Queue(assignmentID string) {
	select {
	case w.queue <- assignmentID:
	default:
		w.logger.Warn("queue full, deferring to sweep", "assignment_id", assignmentID)
	}
}

// Retry resets a failed assignment to in_progress and re-enqueues it. With
// force=true the reset applies regardless of current status.
func (w *Worker) Retry(assignmentID string, force bool) error {
	if err := w.db.Assignments.ResetForRetry(assignmentID, force); err != nil {
		return err
	}
	w.logger.Info("assignment reset for retry", "assignment_id", assignmentID, "force", force)
	w.Queue(assignmentID)
	return nil
}

// ---------- Internal ----------

// consume is one consumer goroutine: pull an ID, process it, repeat.
func (w *Worker) consume(ctx context.Context, id int) {
	defer w.wg.Done()
	logger := w.logger.With("consumer", id)

	for {
		select {
		case <-ctx.Done():
			return
		case assignmentID := <-w.queue:
			w.safeProcess(ctx, logger, assignmentID)
		}
	}
}

// safeProcess guards one assignment run against panics: a bad assignment must
// never take a consumer down.
func (w *Worker) safeProcess(ctx context.Context, logger *slog.Logger, assignmentID string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing assignment",
				"assignment_id", assignmentID,
				"panic", r,
			)
		}
	}()
	w.process(ctx, logger, assignmentID)
}

// process runs one assignment end to end: claim, research, record outcome.
func (w *Worker) process(ctx context.Context, logger *slog.Logger, assignmentID string) {
	// The lease outlives the completion timeout so a slow call can't be
	// double-claimed by the sweep mid-flight.
	claimed, err := w.db.Assignments.Claim(assignmentID, 2*w.cfg.Timeout)
	if err != nil {
		logger.Error("claim failed", "assignment_id", assignmentID, "error", err)
		return
	}
	if !claimed {
		// Another consumer holds it, or it already reached a final status.
		return
	}

	assignment, err := w.db.Assignments.FindByID(assignmentID)
	if err != nil {
		logger.Error("load failed", "assignment_id", assignmentID, "error", err)
		return
	}

	logger.Info("processing assignment",
		"assignment_id", assignment.ID,
		"user_id", assignment.UserID,
		"type", assignment.Type,
		"title", assignment.Title,
	)

	findings, err := w.research(ctx, assignment)
	if err != nil {
		logger.Warn("assignment failed",
			"assignment_id", assignment.ID,
			"error", err,
		)
		if failErr := w.db.Assignments.Fail(assignment.ID); failErr != nil {
			logger.Error("record failure", "assignment_id", assignment.ID, "error", failErr)
		}
		return
	}

	if err := w.db.Assignments.Complete(assignment.ID, findings); err != nil {
		logger.Error("record completion", "assignment_id", assignment.ID, "error", err)
		return
	}

	// Findings also land as a browsable note; a notification tells the user.
	// Failures past this point are logged but don't undo the completion.
	w.deliver(logger, assignment, findings)

	logger.Info("assignment completed",
		"assignment_id", assignment.ID,
		"findings_len", len(findings),
	)
}

// research runs the bounded research completion for one assignment.
func (w *Worker) research(ctx context.Context, assignment *store.Assignment) (string, error) {
	description := ""
	if assignment.Description != "" {
		description = "Context: " + assignment.Description + "\n"
	}
	prompt := fmt.Sprintf(researchPromptTemplate,
		assignment.Type, assignment.Title, assignment.Query, description)

	callCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	findings, err := w.llm.Complete(callCtx, prompt)
	if err != nil {
		return "", fmt.Errorf("research completion: %w", err)
	}
	findings = strings.TrimSpace(findings)
	if findings == "" {
		return "", fmt.Errorf("empty findings")
	}
	return findings, nil
}

// deliver creates the derived research note and the completion notification.
func (w *Worker) deliver(logger *slog.Logger, assignment *store.Assignment, findings string) {
	_, err := w.db.Notes.Create(&store.Note{
		UserID:   assignment.UserID,
		Title:    "Research: " + assignment.Title,
		Content:  findings,
		Category: "research",
		Tags:     []string{assignment.Type, "assignment"},
	})
	if err != nil {
		logger.Error("create research note", "assignment_id", assignment.ID, "error", err)
	}

	_, err = w.db.Notifications.Create(&store.Notification{
		UserID:       assignment.UserID,
		Type:         "assignment_completed",
		Title:        "Research ready: " + assignment.Title,
		Message:      fmt.Sprintf("Your %s assignment %q is done. Open it to see the findings.", assignment.Type, assignment.Title),
		Priority:     assignment.Priority,
		RelatedID:    assignment.ID,
		RelatedModel: "assignment",
	})
	if err != nil {
		logger.Error("create notification", "assignment_id", assignment.ID, "error", err)
		return
	}

	if err := w.db.Assignments.SetNotificationSent(assignment.ID, true); err != nil {
		logger.Error("mark notification sent", "assignment_id", assignment.ID, "error", err)
	}
}

// sweep re-enqueues in_progress assignments whose lease has lapsed.
func (w *Worker) sweep(olderThan time.Duration) {
	ids, err := w.db.Assignments.StaleInProgress(olderThan)
	if err != nil {
		w.logger.Error("stale sweep failed", "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	w.logger.Info("re-enqueueing stale assignments", "count", len(ids))
	for _, id := range ids {
		w.Queue(id)
	}
}
