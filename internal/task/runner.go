package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reelsong/reelsong-api/internal/domain"
	"github.com/reelsong/reelsong-api/internal/metrics"
)

// Common errors returned by the TaskRunner
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue
	QueueSize int

	// Retry is the policy applied to failed pipeline runs.
	Retry RetryPolicy

	// StuckTaskAge defines how long a record may sit in processing before
	// it is considered orphaned and reset for another run
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often to check for stuck tasks
	// If zero, defaults to 5 minutes
	StuckTaskCheckInterval time.Duration
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:            2,
		QueueSize:              100,
		Retry:                  DefaultRetryPolicy(),
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
	}
}

// queuedTask pairs a task with its attempt counter. The counter lives here
// rather than on the task so re-queued runs of the same task ID carry their
// attempt history through the queue.
type queuedTask struct {
	task    Task
	attempt int
}

// TaskRunner executes queued pipeline runs on a bounded pool of workers.
// Retryable failures are re-queued after the policy delay without holding a
// worker slot asleep; non-retryable failures and exhausted ceilings finalize
// the task record as failed.
type TaskRunner struct {
	store      TaskStore
	builder    TaskBuilder
	queue      chan *queuedTask
	mu         sync.Mutex
	closed     bool
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     TaskRunnerConfig
	logger     *slog.Logger
}

// NewTaskRunner creates a new TaskRunner. builder may be nil, in which case
// the runner only executes tasks submitted in-process and skips recovery of
// persisted records.
func NewTaskRunner(store TaskStore, builder TaskBuilder, config TaskRunnerConfig, logger *slog.Logger) *TaskRunner {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1
	}
	if config.StuckTaskCheckInterval == 0 {
		config.StuckTaskCheckInterval = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &TaskRunner{
		store:      store,
		builder:    builder,
		queue:      make(chan *queuedTask, config.QueueSize),
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger,
	}
}

// Start re-queues unfinished records from previous runs, then launches the
// worker goroutines and the stuck-task monitor.
func (r *TaskRunner) Start() error {
	if r.builder != nil {
		if err := r.Recover(); err != nil {
			return fmt.Errorf("failed to recover tasks: %w", err)
		}
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	if r.builder != nil {
		r.wg.Add(1)
		go r.stuckTaskMonitor()
	}

	return nil
}

// Recover loads any unfinished task records from the store and re-queues
// them. Records found in processing were interrupted mid-run; they are reset
// to pending first so pollers never see a dead run as live.
func (r *TaskRunner) Recover() error {
	ctx := context.Background()

	pending, err := r.store.GetPendingTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending tasks: %w", err)
	}

	processing, err := r.store.GetProcessingTasks(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to get processing tasks: %w", err)
	}

	if len(pending) == 0 && len(processing) == 0 {
		return nil
	}

	r.logger.Info("recovering unfinished tasks",
		"pending_count", len(pending),
		"processing_count", len(processing))

	for _, rec := range pending {
		r.requeueRecord(ctx, rec)
	}

	for _, rec := range processing {
		if err := r.store.ResetToPending(ctx, rec.ID); err != nil {
			r.logger.Error("failed to reset interrupted task",
				"task_id", rec.ID,
				"error", err)
			continue
		}
		r.requeueRecord(ctx, rec)
	}

	return nil
}

// requeueRecord rebuilds the task for a persisted record and enqueues it.
// The interrupted run consumed an attempt, so the re-queued run carries the
// next attempt number.
func (r *TaskRunner) requeueRecord(ctx context.Context, rec *TaskRecord) {
	t, err := r.builder.CreateTask(rec)
	if err != nil {
		r.logger.Error("failed to rebuild task from record",
			"task_id", rec.ID,
			"error", err)
		return
	}

	if err := r.enqueue(&queuedTask{task: t, attempt: rec.Attempts + 1}); err != nil {
		r.logger.Error("failed to re-queue recovered task",
			"task_id", rec.ID,
			"error", err)
	}
}

// Stop gracefully shuts down the task runner. In-flight runs finish their
// current store write; pending retry timers are dropped.
func (r *TaskRunner) Stop() {
	r.cancelFunc()
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
}

// Submit enqueues a task for its first run. The task's record must already
// exist in the task store.
func (r *TaskRunner) Submit(ctx context.Context, t Task) error {
	return r.enqueue(&queuedTask{task: t, attempt: 1})
}

// enqueue adds a queued run without blocking. Returns ErrQueueFull when the
// buffer is at capacity and ErrQueueClosed after shutdown.
func (r *TaskRunner) enqueue(qt *queuedTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrQueueClosed
	}

	select {
	case r.queue <- qt:
		r.logger.Debug("task enqueued",
			"task_id", qt.task.ID(),
			"task_type", qt.task.Type(),
			"attempt", qt.attempt,
			"queue_len", len(r.queue),
			"queue_cap", cap(r.queue))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(r.queue))
	}
}

// worker processes tasks from the queue
func (r *TaskRunner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return

		case qt, ok := <-r.queue:
			if !ok {
				r.logger.Debug("task queue closed, stopping worker", "worker_id", id)
				return
			}
			r.processTask(qt, id)
		}
	}
}

// processTask handles execution of a single queued run, consulting the retry
// policy on failure.
func (r *TaskRunner) processTask(qt *queuedTask, workerID int) {
	ctx := context.Background()
	log := r.logger.With(
		"task_id", qt.task.ID(),
		"task_type", qt.task.Type(),
		"worker_id", workerID,
		"attempt", qt.attempt,
	)

	if err := r.store.MarkProcessing(ctx, qt.task.ID(), qt.attempt); err != nil {
		log.Error("failed to mark task processing", "error", err)
		return
	}

	log.Info("processing task")

	err := qt.task.Execute(r.ctx)
	if err == nil {
		log.Info("task run finished")
		return
	}

	kind, _ := domain.Classify(err)
	metrics.PipelineErrorsTotal.WithLabelValues(string(kind)).Inc()

	decision := r.config.Retry.Decide(kind, qt.attempt)
	if !decision.Retry {
		log.Error("task failed terminally", "error_kind", kind, "error", err)
		metrics.PipelineRunsTotal.WithLabelValues("failed").Inc()
		if ferr := r.store.Fail(ctx, qt.task.ID(), kind, domain.ErrorMessage(err)); ferr != nil {
			log.Error("failed to finalize task as failed", "error", ferr)
		}
		return
	}

	log.Warn("task failed, scheduling retry",
		"error_kind", kind,
		"error", err,
		"retry_delay", decision.Delay,
		"max_attempts", r.config.Retry.MaxAttempts)
	metrics.PipelineRunsTotal.WithLabelValues("retried").Inc()
	r.scheduleRetry(qt, kind, decision.Delay)
}

// scheduleRetry re-queues the run after the given delay without occupying a
// worker slot. The retry is abandoned if the runner shuts down first; a
// retry dropped because the queue is full finalizes the record as failed so
// it never sits in processing with no run to finish it.
func (r *TaskRunner) scheduleRetry(qt *queuedTask, kind domain.ErrorKind, delay time.Duration) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-r.ctx.Done():
			return
		case <-timer.C:
		}

		next := &queuedTask{task: qt.task, attempt: qt.attempt + 1}
		err := r.enqueue(next)
		if err == nil {
			return
		}

		if errors.Is(err, ErrQueueClosed) {
			// Shutdown raced the timer. The record stays non-terminal and
			// recovery re-queues it at the next start.
			r.logger.Warn("retry dropped during shutdown",
				"task_id", qt.task.ID(),
				"attempt", next.attempt)
			return
		}

		r.logger.Error("failed to re-queue task for retry, finalizing as failed",
			"task_id", qt.task.ID(),
			"attempt", next.attempt,
			"error", err)
		metrics.PipelineRunsTotal.WithLabelValues("failed").Inc()
		if ferr := r.store.Fail(context.Background(), qt.task.ID(), kind,
			"Processing could not be retried, please resubmit the URL"); ferr != nil {
			r.logger.Error("failed to finalize task after dropped retry",
				"task_id", qt.task.ID(),
				"error", ferr)
		}
	}()
}

// stuckTaskMonitor periodically resets records that have sat in processing
// longer than the configured age and re-queues them.
func (r *TaskRunner) stuckTaskMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			ctx := context.Background()

			stuck, err := r.store.GetProcessingTasks(ctx, r.config.StuckTaskAge)
			if err != nil {
				r.logger.Error("failed to check for stuck tasks", "error", err)
				continue
			}
			if len(stuck) == 0 {
				continue
			}

			r.logger.Info("found stuck tasks", "count", len(stuck))
			for _, rec := range stuck {
				if err := r.store.ResetToPending(ctx, rec.ID); err != nil {
					r.logger.Error("failed to reset stuck task",
						"task_id", rec.ID,
						"error", err)
					continue
				}
				r.requeueRecord(ctx, rec)
			}
		}
	}
}
