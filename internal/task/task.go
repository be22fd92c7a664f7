package task

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/reelsong/reelsong-api/internal/domain"
)

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task type constants
const (
	// TaskTypeIdentifySong represents the task type for identifying a song
	// from a media URL.
	TaskTypeIdentifySong = "identify_song"
)

// TaskRecord is the caller-facing registry entry for one submission. Callers
// poll it by ID until it reaches a terminal state. SongSearchID is set only
// when the run completed with a match; ErrorCode/ErrorMessage are set when it
// failed, or when it completed without a match (NO_SONG_FOUND).
type TaskRecord struct {
	ID           uuid.UUID
	Status       TaskStatus
	SourceURL    string
	MediaID      string
	SongSearchID *uuid.UUID
	ErrorCode    string
	ErrorMessage string
	Attempts     int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewTaskRecord creates a pending task record for the given submission.
func NewTaskRecord(sourceURL, mediaID string) *TaskRecord {
	now := time.Now().UTC()
	return &TaskRecord{
		ID:        uuid.New(),
		Status:    TaskStatusPending,
		SourceURL: sourceURL,
		MediaID:   mediaID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Terminal reports whether the record has reached a stable final state.
func (r *TaskRecord) Terminal() bool {
	return r.Status == TaskStatusCompleted || r.Status == TaskStatusFailed
}

// Task represents a unit of background work to be processed
type Task interface {
	// ID returns the task's unique identifier
	ID() uuid.UUID

	// Type returns the task type identifier
	Type() string

	// Payload returns the task data as a byte slice
	Payload() []byte

	// Status returns the current task status
	Status() TaskStatus

	// Execute runs the task logic
	Execute(ctx context.Context) error
}

// TaskStore defines the interface for persisting task records. Status
// transitions are write-once into terminal states: implementations must treat
// updates to missing or already-terminal records as no-ops so that a record
// deleted or finalized concurrently never fails the pipeline over
// bookkeeping.
type TaskStore interface {
	// CreateTask persists a new pending task record.
	CreateTask(ctx context.Context, rec *TaskRecord) error

	// GetTask retrieves a task record by ID.
	// Returns store.ErrTaskNotFound if it does not exist.
	GetTask(ctx context.Context, id uuid.UUID) (*TaskRecord, error)

	// MarkProcessing transitions the record to processing and records the
	// attempt number of the run that claimed it.
	MarkProcessing(ctx context.Context, id uuid.UUID, attempt int) error

	// CompleteWithSong finalizes the record as completed with a reference to
	// the identified song.
	CompleteWithSong(ctx context.Context, id uuid.UUID, songID uuid.UUID) error

	// CompleteNoMatch finalizes the record as completed with NO_SONG_FOUND
	// and no song reference.
	CompleteNoMatch(ctx context.Context, id uuid.UUID, message string) error

	// Fail finalizes the record as failed with the classified error kind and
	// message.
	Fail(ctx context.Context, id uuid.UUID, kind domain.ErrorKind, message string) error

	// GetPendingTasks returns all records still in the pending state, oldest
	// first. Used to re-queue work that never ran before a restart.
	GetPendingTasks(ctx context.Context) ([]*TaskRecord, error)

	// GetProcessingTasks returns records in the processing state whose last
	// update is older than the given age. An age of zero returns every
	// processing record regardless of when it was claimed.
	GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]*TaskRecord, error)

	// ResetToPending moves a processing record back to pending so it can be
	// claimed again. Records in any other state are left untouched.
	ResetToPending(ctx context.Context, id uuid.UUID) error
}

// TaskBuilder rebuilds an executable task from its persisted record, so the
// runner can resume work that outlived the process that queued it.
// Implemented by IdentifyTaskFactory.
type TaskBuilder interface {
	CreateTask(rec *TaskRecord) (Task, error)
}

// ResultCache is the optional hot cache the pipeline populates after a
// successful identification. Implemented by redcache.Cache.
type ResultCache interface {
	SetSong(ctx context.Context, song *domain.SongSearch)
	InvalidateStats(ctx context.Context)
}
