package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/garnizeh/interviewer/internal/logging"
	"github.com/garnizeh/interviewer/pkg/models"
	"github.com/garnizeh/interviewer/pkg/repository"
)

// persistTimeout bounds task bookkeeping writes, which outlive cancellation.
const persistTimeout = 5 * time.Second

// Runner keeps at most one running task per call id. Tasks run detached from
// the caller's context and are persisted through the repository so they can be
// resumed after a restart.
type Runner struct {
	repo        repository.PollTaskRepo
	handler     Handler
	logger      *slog.Logger
	interval    time.Duration
	maxAttempts int

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	active  map[string]context.CancelFunc
	stopped bool
}

func NewRunner(repo repository.PollTaskRepo, handler Handler, logger *slog.Logger, interval time.Duration, maxAttempts int) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if interval <= 0 {
		interval = 20 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 6
	}
	base, cancel := context.WithCancel(context.Background())
	return &Runner{
		repo:        repo,
		handler:     handler,
		logger:      logger,
		interval:    interval,
		maxAttempts: maxAttempts,
		base:        base,
		cancel:      cancel,
		active:      make(map[string]context.CancelFunc),
	}
}

// Submit starts polling callID unless a task for it is already running or has
// already finished. It reports whether a new task was started. ctx is only
// used for the bookkeeping done before the task starts.
func (r *Runner) Submit(ctx context.Context, callID string, interviewID int64) (bool, error) {
	if callID == "" {
		return false, fmt.Errorf("call id is required")
	}

	// reserve the key before touching the store so concurrent submits dedupe
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return false, ErrStopped
	}
	if _, ok := r.active[callID]; ok {
		r.mu.Unlock()
		return false, nil
	}
	r.active[callID] = nil
	r.mu.Unlock()

	task, err := r.load(ctx, callID, interviewID)
	if err != nil || task == nil {
		r.release(callID)
		return false, err
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		r.release(callID)
		return false, ErrStopped
	}
	taskCtx, cancel := context.WithCancel(r.base)
	r.active[callID] = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(taskCtx, task)
	return true, nil
}

// load returns the persisted task for callID, creating it when missing. A nil
// task means the call was already resolved or exhausted.
func (r *Runner) load(ctx context.Context, callID string, interviewID int64) (*models.PollTask, error) {
	task, err := r.repo.GetPollTaskByCallID(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("load poll task: %w", err)
	}
	if task != nil {
		if task.Status != models.PollStatusPolling {
			r.logger.InfoContext(ctx, "poll task already finished", "call_id", callID, "status", task.Status)
			return nil, nil
		}
		return task, nil
	}

	next := time.Now().Add(r.interval).UnixMilli()
	task = &models.PollTask{
		CallID:      callID,
		InterviewID: interviewID,
		Status:      models.PollStatusPolling,
		MaxAttempts: r.maxAttempts,
		NextTryAt:   &next,
	}
	if _, err := r.repo.CreatePollTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create poll task: %w", err)
	}
	return task, nil
}

func (r *Runner) release(callID string) {
	r.mu.Lock()
	delete(r.active, callID)
	r.mu.Unlock()
}

func (r *Runner) run(ctx context.Context, task *models.PollTask) {
	defer r.wg.Done()
	defer r.release(task.CallID)

	ctx = logging.AppendCtx(ctx, slog.String("call_id", task.CallID))
	ctx = logging.AppendCtx(ctx, slog.Int64("interview_id", task.InterviewID))
	r.logger.InfoContext(ctx, "poll task started", "attempts", task.Attempts, "max_attempts", task.MaxAttempts)

	timer := time.NewTimer(r.firstDelay(task))
	defer timer.Stop()

	for task.Attempts < task.MaxAttempts {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "poll task cancelled", "attempts", task.Attempts)
			return
		case <-timer.C:
		}

		task.Attempts++
		err := r.attempt(ctx, task)
		if err == nil {
			task.Status = models.PollStatusResolved
			task.NextTryAt = nil
			task.LastError = ""
			if r.persist(ctx, task) {
				r.logger.InfoContext(ctx, "poll task resolved", "attempts", task.Attempts)
			}
			return
		}
		if ctx.Err() != nil {
			// interrupted by shutdown, the attempt does not count
			task.Attempts--
			r.persist(ctx, task)
			r.logger.InfoContext(ctx, "poll task cancelled", "attempts", task.Attempts)
			return
		}
		if errors.Is(err, ErrAbandon) {
			task.Status = models.PollStatusAbandoned
			task.NextTryAt = nil
			task.LastError = err.Error()
			if r.persist(ctx, task) {
				r.logger.WarnContext(ctx, "poll task abandoned", "attempts", task.Attempts, logging.ErrKey, err)
			}
			return
		}

		task.LastError = err.Error()
		r.logger.WarnContext(ctx, "poll attempt failed", "attempt", task.Attempts, "max_attempts", task.MaxAttempts, logging.ErrKey, err)
		if task.Attempts >= task.MaxAttempts {
			break
		}

		next := time.Now().Add(r.interval).UnixMilli()
		task.NextTryAt = &next
		if !r.persist(ctx, task) {
			return
		}
		timer.Reset(r.interval)
	}

	if task.LastError == "" {
		task.LastError = ErrMaxAttempts.Error()
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := r.repo.MoveToUnresolved(pctx, task); err != nil {
		if errors.Is(err, repository.ErrPollTaskFinished) {
			r.logger.InfoContext(ctx, "poll task finished elsewhere, not moving to unresolved", "attempts", task.Attempts)
			return
		}
		r.logger.ErrorContext(ctx, "move poll task to unresolved", logging.ErrKey, err)
	}
	r.logger.ErrorContext(ctx, "reconciliation exhausted, needs manual follow-up",
		"attempts", task.Attempts, "last_error", task.LastError, logging.PriorityCritical())
}

// attempt runs the handler, turning a panic into a failed attempt.
func (r *Runner) attempt(ctx context.Context, task *models.PollTask) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("poll handler panic: %v", p)
		}
	}()
	return r.handler(ctx, task)
}

// persist writes task back and reports whether the task is still owned by this
// runner. It returns false once another path finished the task, e.g. a manual
// fetch resolved it.
func (r *Runner) persist(ctx context.Context, task *models.PollTask) bool {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	err := r.repo.UpdatePollTask(pctx, task)
	if errors.Is(err, repository.ErrPollTaskFinished) {
		r.logger.InfoContext(ctx, "poll task finished elsewhere", "attempts", task.Attempts)
		return false
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "update poll task", logging.ErrKey, err)
	}
	return true
}

// firstDelay honours a persisted next_try_at so resumed tasks keep their schedule.
func (r *Runner) firstDelay(task *models.PollTask) time.Duration {
	if task.NextTryAt == nil {
		return r.interval
	}
	d := time.Until(time.UnixMilli(*task.NextTryAt))
	if d < 0 {
		return 0
	}
	if d > r.interval {
		return r.interval
	}
	return d
}

// Resume restarts every task still marked polling in the store. It returns the
// number of tasks started.
func (r *Runner) Resume(ctx context.Context) (int, error) {
	tasks, err := r.repo.ListPollTasks(ctx, models.PollStatusPolling)
	if err != nil {
		return 0, fmt.Errorf("list polling tasks: %w", err)
	}
	started := 0
	for _, t := range tasks {
		ok, err := r.Submit(ctx, t.CallID, t.InterviewID)
		if err != nil {
			return started, err
		}
		if ok {
			started++
		}
	}
	if started > 0 {
		r.logger.InfoContext(ctx, "poll tasks resumed", "count", started)
	}
	return started, nil
}

// Active reports whether a task for callID is running.
func (r *Runner) Active(callID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[callID]
	return ok
}

// Cancel stops the running task for callID without touching its stored state.
// It reports whether a task was running.
func (r *Runner) Cancel(callID string) bool {
	r.mu.Lock()
	cancel, ok := r.active[callID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	if cancel != nil {
		cancel()
	}
	return true
}

// ActiveCount returns the number of running tasks.
func (r *Runner) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Stop cancels every running task and waits for them to return. Cancelled
// tasks stay in the polling state. Stop is idempotent.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}
