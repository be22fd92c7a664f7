package task

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reelsong/reelsong-api/internal/domain"
	"github.com/reelsong/reelsong-api/internal/store"
)

// MockTaskStore is an in-memory implementation of the TaskStore interface.
// The default behavior honors the interface contract, including the
// terminal-state no-op rule; individual methods can be overridden by setting
// the corresponding function field.
type MockTaskStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*TaskRecord

	CreateTaskFn         func(ctx context.Context, rec *TaskRecord) error
	GetTaskFn            func(ctx context.Context, id uuid.UUID) (*TaskRecord, error)
	MarkProcessingFn     func(ctx context.Context, id uuid.UUID, attempt int) error
	CompleteWithSongFn   func(ctx context.Context, id uuid.UUID, songID uuid.UUID) error
	CompleteNoMatchFn    func(ctx context.Context, id uuid.UUID, message string) error
	FailFn               func(ctx context.Context, id uuid.UUID, kind domain.ErrorKind, message string) error
	GetPendingTasksFn    func(ctx context.Context) ([]*TaskRecord, error)
	GetProcessingTasksFn func(ctx context.Context, olderThan time.Duration) ([]*TaskRecord, error)
	ResetToPendingFn     func(ctx context.Context, id uuid.UUID) error
}

// NewMockTaskStore creates a new empty mock task store.
func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{records: make(map[uuid.UUID]*TaskRecord)}
}

// Ensure MockTaskStore implements the TaskStore interface
var _ TaskStore = (*MockTaskStore)(nil)

// CreateTask implements TaskStore.CreateTask.
func (m *MockTaskStore) CreateTask(ctx context.Context, rec *TaskRecord) error {
	if m.CreateTaskFn != nil {
		return m.CreateTaskFn(ctx, rec)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[rec.ID]; exists {
		return store.ErrDuplicate
	}
	clone := *rec
	m.records[rec.ID] = &clone
	return nil
}

// GetTask implements TaskStore.GetTask.
func (m *MockTaskStore) GetTask(ctx context.Context, id uuid.UUID) (*TaskRecord, error) {
	if m.GetTaskFn != nil {
		return m.GetTaskFn(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.records[id]
	if !exists {
		return nil, store.ErrTaskNotFound
	}
	clone := *rec
	return &clone, nil
}

// MarkProcessing implements TaskStore.MarkProcessing.
func (m *MockTaskStore) MarkProcessing(ctx context.Context, id uuid.UUID, attempt int) error {
	if m.MarkProcessingFn != nil {
		return m.MarkProcessingFn(ctx, id, attempt)
	}

	return m.transition(id, func(rec *TaskRecord) {
		rec.Status = TaskStatusProcessing
		rec.Attempts = attempt
	})
}

// CompleteWithSong implements TaskStore.CompleteWithSong.
func (m *MockTaskStore) CompleteWithSong(ctx context.Context, id uuid.UUID, songID uuid.UUID) error {
	if m.CompleteWithSongFn != nil {
		return m.CompleteWithSongFn(ctx, id, songID)
	}

	return m.transition(id, func(rec *TaskRecord) {
		rec.Status = TaskStatusCompleted
		rec.SongSearchID = &songID
		rec.ErrorCode = ""
		rec.ErrorMessage = ""
	})
}

// CompleteNoMatch implements TaskStore.CompleteNoMatch.
func (m *MockTaskStore) CompleteNoMatch(ctx context.Context, id uuid.UUID, message string) error {
	if m.CompleteNoMatchFn != nil {
		return m.CompleteNoMatchFn(ctx, id, message)
	}

	return m.transition(id, func(rec *TaskRecord) {
		rec.Status = TaskStatusCompleted
		rec.ErrorCode = string(domain.ErrorKindNoSongFound)
		rec.ErrorMessage = message
	})
}

// Fail implements TaskStore.Fail.
func (m *MockTaskStore) Fail(ctx context.Context, id uuid.UUID, kind domain.ErrorKind, message string) error {
	if m.FailFn != nil {
		return m.FailFn(ctx, id, kind, message)
	}

	return m.transition(id, func(rec *TaskRecord) {
		rec.Status = TaskStatusFailed
		rec.ErrorCode = string(kind)
		rec.ErrorMessage = message
	})
}

// GetPendingTasks implements TaskStore.GetPendingTasks.
func (m *MockTaskStore) GetPendingTasks(ctx context.Context) ([]*TaskRecord, error) {
	if m.GetPendingTasksFn != nil {
		return m.GetPendingTasksFn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var records []*TaskRecord
	for _, rec := range m.records {
		if rec.Status == TaskStatusPending {
			clone := *rec
			records = append(records, &clone)
		}
	}
	return records, nil
}

// GetProcessingTasks implements TaskStore.GetProcessingTasks.
func (m *MockTaskStore) GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]*TaskRecord, error) {
	if m.GetProcessingTasksFn != nil {
		return m.GetProcessingTasksFn(ctx, olderThan)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var records []*TaskRecord
	for _, rec := range m.records {
		if rec.Status != TaskStatusProcessing {
			continue
		}
		if olderThan > 0 && !rec.UpdatedAt.Before(cutoff) {
			continue
		}
		clone := *rec
		records = append(records, &clone)
	}
	return records, nil
}

// ResetToPending implements TaskStore.ResetToPending.
func (m *MockTaskStore) ResetToPending(ctx context.Context, id uuid.UUID) error {
	if m.ResetToPendingFn != nil {
		return m.ResetToPendingFn(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.records[id]
	if !exists || rec.Status != TaskStatusProcessing {
		return nil
	}
	rec.Status = TaskStatusPending
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// transition applies fn to the record unless it is missing or terminal, in
// which case the update is silently skipped per the interface contract.
func (m *MockTaskStore) transition(id uuid.UUID, fn func(rec *TaskRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.records[id]
	if !exists || rec.Terminal() {
		return nil
	}
	fn(rec)
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// SetUpdatedAt backdates a record's last update, for exercising age-based
// queries in tests.
func (m *MockTaskStore) SetUpdatedAt(id uuid.UUID, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, exists := m.records[id]; exists {
		rec.UpdatedAt = at
	}
}

// IDs returns the IDs of every record in the store, for test assertions.
func (m *MockTaskStore) IDs() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	return ids
}

// MockTask is a configurable implementation of the Task interface for
// exercising the runner.
type MockTask struct {
	TaskID   uuid.UUID
	TaskType string

	mu       sync.Mutex
	runCount int

	ExecuteFn func(ctx context.Context) error
}

// NewMockTask creates a mock task that succeeds by default.
func NewMockTask() *MockTask {
	return &MockTask{TaskID: uuid.New(), TaskType: "mock_task"}
}

// Ensure MockTask implements the Task interface
var _ Task = (*MockTask)(nil)

// ID implements Task.ID.
func (m *MockTask) ID() uuid.UUID { return m.TaskID }

// Type implements Task.Type.
func (m *MockTask) Type() string { return m.TaskType }

// Payload implements Task.Payload.
func (m *MockTask) Payload() []byte { return []byte(`{}`) }

// Status implements Task.Status.
func (m *MockTask) Status() TaskStatus { return TaskStatusPending }

// Execute implements Task.Execute, counting runs.
func (m *MockTask) Execute(ctx context.Context) error {
	m.mu.Lock()
	m.runCount++
	m.mu.Unlock()

	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx)
	}
	return nil
}

// RunCount returns how many times Execute has been called.
func (m *MockTask) RunCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runCount
}
