package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelsong/reelsong-api/internal/domain"
)

// newTestRunner builds a runner with a fast retry policy so tests do not
// sleep through real pipeline delays.
func newTestRunner(store TaskStore, maxAttempts int) *TaskRunner {
	cfg := TaskRunnerConfig{
		WorkerCount: 2,
		QueueSize:   10,
		Retry:       RetryPolicy{MaxAttempts: maxAttempts, Delay: 5 * time.Millisecond},
	}
	return NewTaskRunner(store, nil, cfg, slog.Default())
}

// fakeBuilder rebuilds mock tasks for persisted records and keeps them
// reachable for assertions.
type fakeBuilder struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*MockTask
}

func newFakeBuilder() *fakeBuilder {
	return &fakeBuilder{tasks: make(map[uuid.UUID]*MockTask)}
}

func (f *fakeBuilder) CreateTask(rec *TaskRecord) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	mt := NewMockTask()
	mt.TaskID = rec.ID
	f.tasks[rec.ID] = mt
	return mt, nil
}

func (f *fakeBuilder) task(id uuid.UUID) *MockTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[id]
}

// seedRecord creates a pending record in the store and a mock task with a
// matching ID.
func seedRecord(t *testing.T, store *MockTaskStore) *MockTask {
	t.Helper()

	rec := NewTaskRecord("https://www.instagram.com/reel/ABC123/", "ABC123")
	require.NoError(t, store.CreateTask(context.Background(), rec))

	mt := NewMockTask()
	mt.TaskID = rec.ID
	return mt
}

func TestTaskRunnerExecutesSubmittedTask(t *testing.T) {
	t.Parallel()

	store := NewMockTaskStore()
	mt := seedRecord(t, store)

	runner := newTestRunner(store, 3)
	require.NoError(t, runner.Start())
	defer runner.Stop()

	require.NoError(t, runner.Submit(context.Background(), mt))

	require.Eventually(t, func() bool {
		return mt.RunCount() == 1
	}, time.Second, 5*time.Millisecond)

	rec, err := store.GetTask(context.Background(), mt.ID())
	require.NoError(t, err)
	assert.Equal(t, TaskStatusProcessing, rec.Status)
	assert.Equal(t, 1, rec.Attempts)
}

func TestTaskRunnerRetriesUntilCeiling(t *testing.T) {
	t.Parallel()

	store := NewMockTaskStore()
	mt := seedRecord(t, store)
	mt.ExecuteFn = func(ctx context.Context) error {
		return domain.NewPipelineError(domain.ErrorKindNetwork, "connection reset")
	}

	runner := newTestRunner(store, 3)
	require.NoError(t, runner.Start())
	defer runner.Stop()

	require.NoError(t, runner.Submit(context.Background(), mt))

	require.Eventually(t, func() bool {
		rec, err := store.GetTask(context.Background(), mt.ID())
		return err == nil && rec.Status == TaskStatusFailed
	}, 2*time.Second, 5*time.Millisecond)

	rec, err := store.GetTask(context.Background(), mt.ID())
	require.NoError(t, err)
	assert.Equal(t, string(domain.ErrorKindNetwork), rec.ErrorCode)
	assert.Equal(t, "connection reset", rec.ErrorMessage)
	assert.Equal(t, 3, rec.Attempts, "every attempt up to the ceiling should run")
	assert.Equal(t, 3, mt.RunCount())
}

func TestTaskRunnerNonRetryableFailsImmediately(t *testing.T) {
	t.Parallel()

	store := NewMockTaskStore()
	mt := seedRecord(t, store)
	mt.ExecuteFn = func(ctx context.Context) error {
		return domain.NewPipelineError(domain.ErrorKindPrivateAccount, "Cannot access content from private accounts")
	}

	runner := newTestRunner(store, 3)
	require.NoError(t, runner.Start())
	defer runner.Stop()

	require.NoError(t, runner.Submit(context.Background(), mt))

	require.Eventually(t, func() bool {
		rec, err := store.GetTask(context.Background(), mt.ID())
		return err == nil && rec.Status == TaskStatusFailed
	}, time.Second, 5*time.Millisecond)

	rec, err := store.GetTask(context.Background(), mt.ID())
	require.NoError(t, err)
	assert.Equal(t, string(domain.ErrorKindPrivateAccount), rec.ErrorCode)
	assert.Equal(t, 1, mt.RunCount(), "non-retryable failures must not re-run")
}

func TestTaskRunnerUnclassifiedErrorRetries(t *testing.T) {
	t.Parallel()

	store := NewMockTaskStore()
	mt := seedRecord(t, store)
	mt.ExecuteFn = func(ctx context.Context) error {
		return errors.New("something unexpected")
	}

	runner := newTestRunner(store, 2)
	require.NoError(t, runner.Start())
	defer runner.Stop()

	require.NoError(t, runner.Submit(context.Background(), mt))

	require.Eventually(t, func() bool {
		rec, err := store.GetTask(context.Background(), mt.ID())
		return err == nil && rec.Status == TaskStatusFailed
	}, time.Second, 5*time.Millisecond)

	rec, err := store.GetTask(context.Background(), mt.ID())
	require.NoError(t, err)
	assert.Equal(t, string(domain.ErrorKindProcessing), rec.ErrorCode)
	assert.Equal(t, 2, mt.RunCount(), "unclassified errors fall back to the retryable default")
}

func TestTaskRunnerSubmitAfterStop(t *testing.T) {
	t.Parallel()

	store := NewMockTaskStore()
	runner := newTestRunner(store, 3)
	require.NoError(t, runner.Start())
	runner.Stop()

	err := runner.Submit(context.Background(), NewMockTask())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestTaskRunnerQueueFull(t *testing.T) {
	t.Parallel()

	store := NewMockTaskStore()
	cfg := TaskRunnerConfig{WorkerCount: 1, QueueSize: 1, Retry: DefaultRetryPolicy()}
	runner := NewTaskRunner(store, nil, cfg, slog.Default())
	// Not started: nothing drains the queue.

	require.NoError(t, runner.Submit(context.Background(), NewMockTask()))
	err := runner.Submit(context.Background(), NewMockTask())
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestTaskRunnerDroppedRetryFinalizesRecord(t *testing.T) {
	t.Parallel()

	store := NewMockTaskStore()
	release := make(chan struct{})
	blocked := func(ctx context.Context) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}

	flaky := seedRecord(t, store)
	flaky.ExecuteFn = func(ctx context.Context) error {
		return domain.NewPipelineError(domain.ErrorKindNetwork, "connection reset")
	}
	occupier := seedRecord(t, store)
	occupier.ExecuteFn = blocked
	filler := seedRecord(t, store)
	filler.ExecuteFn = blocked

	cfg := TaskRunnerConfig{
		WorkerCount: 1,
		QueueSize:   1,
		Retry:       RetryPolicy{MaxAttempts: 3, Delay: 100 * time.Millisecond},
	}
	runner := NewTaskRunner(store, nil, cfg, slog.Default())
	require.NoError(t, runner.Start())
	defer runner.Stop()
	defer close(release)

	// The flaky run fails and schedules a retry; before the timer fires, the
	// single worker is pinned and the queue slot is taken.
	require.NoError(t, runner.Submit(context.Background(), flaky))
	require.Eventually(t, func() bool {
		return flaky.RunCount() == 1
	}, time.Second, 2*time.Millisecond)

	require.NoError(t, runner.Submit(context.Background(), occupier))
	require.Eventually(t, func() bool {
		return occupier.RunCount() == 1
	}, time.Second, 2*time.Millisecond)

	require.NoError(t, runner.Submit(context.Background(), filler))

	require.Eventually(t, func() bool {
		rec, err := store.GetTask(context.Background(), flaky.ID())
		return err == nil && rec.Status == TaskStatusFailed
	}, 2*time.Second, 5*time.Millisecond, "a dropped retry must finalize the record")

	rec, err := store.GetTask(context.Background(), flaky.ID())
	require.NoError(t, err)
	assert.Equal(t, string(domain.ErrorKindNetwork), rec.ErrorCode)
	assert.Equal(t, 1, flaky.RunCount(), "the dropped retry never re-ran")
}

func TestTaskRunnerRecoversUnfinishedRecords(t *testing.T) {
	t.Parallel()

	store := NewMockTaskStore()
	ctx := context.Background()

	neverRan := NewTaskRecord("https://www.instagram.com/reel/ABC123/", "ABC123")
	require.NoError(t, store.CreateTask(ctx, neverRan))

	interrupted := NewTaskRecord("https://www.instagram.com/reel/DEF456/", "DEF456")
	require.NoError(t, store.CreateTask(ctx, interrupted))
	require.NoError(t, store.MarkProcessing(ctx, interrupted.ID, 1))

	builder := newFakeBuilder()
	cfg := TaskRunnerConfig{
		WorkerCount: 2,
		QueueSize:   10,
		Retry:       RetryPolicy{MaxAttempts: 3, Delay: 5 * time.Millisecond},
	}
	runner := NewTaskRunner(store, builder, cfg, slog.Default())
	require.NoError(t, runner.Start())
	defer runner.Stop()

	require.Eventually(t, func() bool {
		a, b := builder.task(neverRan.ID), builder.task(interrupted.ID)
		return a != nil && b != nil && a.RunCount() == 1 && b.RunCount() == 1
	}, 2*time.Second, 5*time.Millisecond, "both unfinished records should be re-run")

	rec, err := store.GetTask(ctx, neverRan.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Attempts)

	rec, err = store.GetTask(ctx, interrupted.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Attempts, "the interrupted run consumed an attempt")
}

func TestTaskRunnerResetsStuckTasks(t *testing.T) {
	t.Parallel()

	store := NewMockTaskStore()
	ctx := context.Background()

	builder := newFakeBuilder()
	cfg := TaskRunnerConfig{
		WorkerCount:            1,
		QueueSize:              10,
		Retry:                  RetryPolicy{MaxAttempts: 3, Delay: 5 * time.Millisecond},
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 10 * time.Millisecond,
	}
	runner := NewTaskRunner(store, builder, cfg, slog.Default())
	require.NoError(t, runner.Start())
	defer runner.Stop()

	// A run claimed this record long ago and died without finalizing it.
	rec := NewTaskRecord("https://www.instagram.com/reel/ABC123/", "ABC123")
	require.NoError(t, store.CreateTask(ctx, rec))
	require.NoError(t, store.MarkProcessing(ctx, rec.ID, 1))
	store.SetUpdatedAt(rec.ID, time.Now().Add(-time.Hour))

	require.Eventually(t, func() bool {
		mt := builder.task(rec.ID)
		return mt != nil && mt.RunCount() == 1
	}, 2*time.Second, 5*time.Millisecond, "the stuck record should be reset and re-run")

	got, err := store.GetTask(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
}
