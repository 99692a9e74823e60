// Package worker
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"commentbot/packages/domain"
	"commentbot/packages/guard"
	"commentbot/packages/metrics"
	"commentbot/packages/store"
)

// transientRetries bounds session-level retries for connectivity faults
// before the task is failed and the session flagged for recreation.
const transientRetries = 2

// Consumer-side session interfaces; the browser manager satisfies them
// through a thin adapter at wiring time.
type PostingSession interface {
	BeginTask(ctx context.Context) (restore func(), err error)
	Navigate(ctx context.Context, url string) error
	EnsureAuthenticated(ctx context.Context) error
	FocusCommentBox(ctx context.Context) error
	TypeComment(ctx context.Context, text string) error
	AttachImages(ctx context.Context, paths []string) error
	Submit(ctx context.Context) error
}

type Sessions interface {
	Posting(ctx context.Context) (PostingSession, error)
	FlagUnhealthy(role domain.SessionRole)
}

// Worker is the single consumer draining the FIFO posting queue. The bounded
// channel plus the one consumer is the only concurrency control between the
// approval surface (many producers) and browser automation (one interaction
// at a time).
type Worker struct {
	store        store.Store
	sessions     Sessions
	guard        *guard.Guard
	queue        chan domain.PostingTask
	statsEvery   int
	attachImages bool

	ready atomic.Bool

	mu       sync.Mutex
	inflight map[string]bool

	// rolling stats, reset every statsEvery tasks
	taskCount int
	failCount int
	totalDur  time.Duration
}

func New(st store.Store, sessions Sessions, g *guard.Guard, queueSize, statsEvery int, attachImages bool) *Worker {
	if statsEvery <= 0 {
		statsEvery = 10
	}
	return &Worker{
		store:        st,
		sessions:     sessions,
		guard:        g,
		queue:        make(chan domain.PostingTask, queueSize),
		statsEvery:   statsEvery,
		attachImages: attachImages,
		inflight:     make(map[string]bool),
	}
}

// Ready reports whether the consumer loop is draining the queue.
func (w *Worker) Ready() bool { return w.ready.Load() }

// Enqueue hands a task to the consumer. A task already queued or in flight
// for the same comment id is a no-op; a full queue is an explicit rejection
// so producers see backpressure instead of unbounded growth.
func (w *Worker) Enqueue(task domain.PostingTask) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inflight[task.CommentID] {
		return nil
	}
	select {
	case w.queue <- task:
		w.inflight[task.CommentID] = true
		metrics.QueueDepth.Set(float64(len(w.queue)))
		return nil
	default:
		return domain.NewFault(domain.FaultQueueFull, fmt.Sprintf("posting queue full (%d)", cap(w.queue)))
	}
}

func (w *Worker) release(id string) {
	w.mu.Lock()
	delete(w.inflight, id)
	w.mu.Unlock()
}

// Approve applies the human decision: optional text edit combined atomically
// with the approve transition, then an enqueue. While the posting subsystem
// is not ready the comment parks in WAITING_FOR_BOT and is picked up by
// ProcessPending once the worker signals ready.
func (w *Worker) Approve(ctx context.Context, id, editedText string) error {
	target := domain.StatusApproved
	if !w.Ready() {
		target = domain.StatusWaitingForBot
	}
	if err := w.store.Approve(ctx, id, editedText, target); err != nil {
		return err
	}
	if target == domain.StatusWaitingForBot {
		return nil
	}

	comment, err := w.store.GetComment(ctx, id)
	if err != nil {
		return err
	}
	if err := w.Enqueue(taskFor(comment)); err != nil {
		if domain.IsKind(err, domain.FaultQueueFull) {
			if terr := w.store.Transition(ctx, id, domain.StatusWaitingForBot, "posting queue full"); terr != nil {
				slog.Error("Failed to park comment after queue rejection", "id", id, "error", terr)
			}
		}
		return err
	}
	return nil
}

func (w *Worker) Reject(ctx context.Context, id, reason string) error {
	if reason == "" {
		reason = "rejected by operator"
	}
	return w.store.Transition(ctx, id, domain.StatusRejected, reason)
}

func (w *Worker) EditText(ctx context.Context, id, text string) error {
	return w.store.UpdateText(ctx, id, text)
}

// ProcessPending is the single re-queue path: it drains WAITING_FOR_BOT
// comments into the queue once the posting subsystem is ready. FAILED
// comments are never touched here; manual re-approval is their only way back.
func (w *Worker) ProcessPending(ctx context.Context) error {
	if !w.Ready() {
		return domain.NewFault(domain.FaultSessionUnavailable, "posting subsystem not ready")
	}
	waiting, err := w.store.ListComments(ctx, domain.StatusWaitingForBot)
	if err != nil {
		return err
	}
	for _, c := range waiting {
		if err := w.store.Transition(ctx, c.ID, domain.StatusApproved, ""); err != nil {
			slog.Warn("Skipping waiting comment", "id", c.ID, "error", err)
			continue
		}
		if err := w.Enqueue(taskFor(c)); err != nil {
			// Queue filled back up; park the rest for the next pass.
			if terr := w.store.Transition(ctx, c.ID, domain.StatusWaitingForBot, "posting queue full"); terr != nil {
				slog.Error("Failed to re-park comment", "id", c.ID, "error", terr)
			}
			return err
		}
	}
	return nil
}

// ProcessPendingLoop re-runs ProcessPending on a cadence. Comments park back
// to WAITING_FOR_BOT after startup too (daily cap, queue full), so a one-shot
// drain on readiness would strand them.
func (w *Worker) ProcessPendingLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !w.Ready() {
				continue
			}
			if err := w.ProcessPending(ctx); err != nil && !domain.IsKind(err, domain.FaultQueueFull) {
				slog.Warn("Pending approvals pass failed", "error", err)
			}
		}
	}
}

func taskFor(c domain.QueuedComment) domain.PostingTask {
	text := c.Text
	if text == "" {
		text = c.Generated
	}
	return domain.PostingTask{CommentID: c.ID, PostURL: c.PostURL, Text: text}
}

// Run drains the queue until ctx is done. One bad task never stalls the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.ready.Store(true)
	defer w.ready.Store(false)
	slog.Info("Posting worker started", "queue_capacity", cap(w.queue))

	for {
		select {
		case <-ctx.Done():
			slog.Info("Posting worker stopped")
			return ctx.Err()
		case task := <-w.queue:
			metrics.QueueDepth.Set(float64(len(w.queue)))
			w.process(ctx, task)
		}
	}
}

func (w *Worker) process(ctx context.Context, task domain.PostingTask) {
	defer w.release(task.CommentID)
	defer func() {
		if p := recover(); p != nil {
			w.fail(ctx, task, fmt.Errorf("task panicked: %v", p))
		}
	}()

	comment, err := w.store.GetComment(ctx, task.CommentID)
	if err != nil {
		slog.Error("Dequeued task has no comment row", "id", task.CommentID, "error", err)
		return
	}
	// Re-check just before acting: a comment rejected while queued is
	// silently skipped, and a duplicate dequeue of a POSTING/terminal id is
	// a no-op.
	if comment.Status != domain.StatusApproved && comment.Status != domain.StatusWaitingForBot {
		slog.Info("Skipping task, comment no longer approved", "id", task.CommentID, "status", comment.Status)
		return
	}

	// Fail closed: without the daily count the cap cannot be checked.
	today := time.Now().Format("2006-01-02")
	counts, err := w.store.GetDailyCounts(ctx, today)
	if err != nil {
		slog.Warn("Daily count read failed, parking task", "id", task.CommentID, "error", err)
		if terr := w.store.Transition(ctx, task.CommentID, domain.StatusWaitingForBot, "daily count unavailable"); terr != nil {
			slog.Error("Failed to park task", "id", task.CommentID, "error", terr)
		}
		return
	}
	if ok, reason := w.guard.AllowPost(time.Now(), counts.Posted, time.Time{}); !ok {
		if terr := w.store.Transition(ctx, task.CommentID, domain.StatusWaitingForBot, reason); terr != nil {
			slog.Error("Failed to park rate-limited comment", "id", task.CommentID, "error", terr)
		}
		slog.Info("Task parked by rate guard", "id", task.CommentID, "reason", reason)
		return
	}

	// POSTING is claimed immediately on dequeue so a second enqueue of the
	// same id cannot race the browser interaction.
	if err := w.store.Transition(ctx, task.CommentID, domain.StatusPosting, ""); err != nil {
		slog.Info("Skipping task, could not claim", "id", task.CommentID, "error", err)
		return
	}

	start := time.Now()
	err = w.executeTask(ctx, task)
	elapsed := time.Since(start)
	metrics.TaskDuration.Observe(elapsed.Seconds())

	if err != nil {
		w.fail(ctx, task, err)
	} else {
		if terr := w.store.Transition(ctx, task.CommentID, domain.StatusPosted, ""); terr != nil {
			slog.Error("Failed to persist posted status", "id", task.CommentID, "error", terr)
		}
		if cerr := w.store.IncrementDailyCount(ctx, time.Now().Format("2006-01-02"), domain.StatusPosted); cerr != nil {
			slog.Warn("Failed to bump daily posted count", "error", cerr)
		}
		metrics.TasksPosted.Inc()
		slog.Info("Comment posted", "id", task.CommentID, "url", task.PostURL, "duration", elapsed)
	}

	w.recordStats(elapsed, err != nil)

	if err == nil {
		// Human cadence between posts.
		select {
		case <-ctx.Done():
		case <-time.After(w.guard.NextDelay()):
		}
	}
}

// executeTask runs the browser interaction. Transient connectivity faults are
// retried with exponential backoff a bounded number of times; everything else
// fails the task on first occurrence.
func (w *Worker) executeTask(ctx context.Context, task domain.PostingTask) error {
	sess, err := w.sessions.Posting(ctx)
	if err != nil {
		// No requeue: looping on a dead session helps nobody.
		return domain.WrapFault(domain.FaultSessionUnavailable, "posting session unavailable", err)
	}

	backoff := 2 * time.Second
	var lastErr error
	for attempt := 0; attempt <= transientRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		lastErr = w.runSteps(ctx, sess, task)
		if lastErr == nil {
			return nil
		}
		if !domain.IsKind(lastErr, domain.FaultTransient) {
			return lastErr
		}
		slog.Warn("Transient fault, retrying task step", "id", task.CommentID, "attempt", attempt+1, "error", lastErr)
	}
	w.sessions.FlagUnhealthy(domain.RolePost)
	return lastErr
}

func (w *Worker) runSteps(ctx context.Context, sess PostingSession, task domain.PostingTask) error {
	restore, err := sess.BeginTask(ctx)
	if err != nil {
		return err
	}
	defer restore()

	if err := sess.Navigate(ctx, task.PostURL); err != nil {
		return err
	}
	if err := sess.EnsureAuthenticated(ctx); err != nil {
		return err
	}
	if err := sess.FocusCommentBox(ctx); err != nil {
		return err
	}
	if w.attachImages && len(task.ImagePaths) > 0 {
		if err := sess.AttachImages(ctx, task.ImagePaths); err != nil {
			return err
		}
	}
	if err := sess.TypeComment(ctx, task.Text); err != nil {
		return err
	}
	return sess.Submit(ctx)
}

func (w *Worker) fail(ctx context.Context, task domain.PostingTask, err error) {
	kind := domain.KindOf(err)
	reason := err.Error()
	if len(reason) > 300 {
		reason = reason[:300]
	}
	if terr := w.store.Transition(ctx, task.CommentID, domain.StatusFailed, reason); terr != nil {
		slog.Error("Failed to persist failed status", "id", task.CommentID, "error", terr)
	}
	if cerr := w.store.IncrementDailyCount(ctx, time.Now().Format("2006-01-02"), domain.StatusFailed); cerr != nil {
		slog.Warn("Failed to bump daily failed count", "error", cerr)
	}
	metrics.TasksFailed.WithLabelValues(string(kind)).Inc()
	slog.Error("Task failed", "id", task.CommentID, "kind", kind, "error", err)

	// Auth and checkpoint failures are session problems, not task problems.
	if kind == domain.FaultUnauthenticated || kind == domain.FaultSubmissionRejected {
		w.sessions.FlagUnhealthy(domain.RolePost)
	}
}

// recordStats logs a rolling average duration and failure rate every
// statsEvery tasks so locator drift shows up without external monitoring.
func (w *Worker) recordStats(elapsed time.Duration, failed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.taskCount++
	w.totalDur += elapsed
	if failed {
		w.failCount++
	}
	if w.taskCount%w.statsEvery == 0 {
		avg := w.totalDur / time.Duration(w.taskCount)
		rate := float64(w.failCount) / float64(w.taskCount)
		slog.Info("Posting stats", "tasks", w.taskCount, "avg_duration", avg, "failure_rate", fmt.Sprintf("%.2f", rate))
		w.taskCount, w.failCount, w.totalDur = 0, 0, 0
	}
}
