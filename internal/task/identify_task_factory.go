package task

import (
	"log/slog"

	"github.com/reelsong/reelsong-api/internal/extraction"
	"github.com/reelsong/reelsong-api/internal/recognition"
	"github.com/reelsong/reelsong-api/internal/store"
)

// IdentifyTaskFactory creates IdentifySongTask instances with pre-configured
// dependencies, so the submission path only needs a task record.
type IdentifyTaskFactory struct {
	clipSeconds int
	extractor   extraction.Extractor
	recognizer  recognition.Recognizer
	songs       store.SongStore
	tasks       TaskStore
	cache       ResultCache
	logger      *slog.Logger
}

// NewIdentifyTaskFactory creates a new factory. cache may be nil.
func NewIdentifyTaskFactory(
	clipSeconds int,
	extractor extraction.Extractor,
	recognizer recognition.Recognizer,
	songs store.SongStore,
	tasks TaskStore,
	cache ResultCache,
	logger *slog.Logger,
) *IdentifyTaskFactory {
	return &IdentifyTaskFactory{
		clipSeconds: clipSeconds,
		extractor:   extractor,
		recognizer:  recognizer,
		songs:       songs,
		tasks:       tasks,
		cache:       cache,
		logger:      logger,
	}
}

// CreateTask builds a pipeline task for the given record.
func (f *IdentifyTaskFactory) CreateTask(rec *TaskRecord) (Task, error) {
	t, err := NewIdentifySongTask(
		rec,
		f.clipSeconds,
		f.extractor,
		f.recognizer,
		f.songs,
		f.tasks,
		f.cache,
		f.logger,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}
