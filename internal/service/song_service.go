// Package service implements the application's use cases on top of the
// stores, the hot cache and the background pipeline. HTTP handlers call into
// this layer only; they never touch stores or the task runner directly.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/reelsong/reelsong-api/internal/domain"
	"github.com/reelsong/reelsong-api/internal/media"
	"github.com/reelsong/reelsong-api/internal/metrics"
	"github.com/reelsong/reelsong-api/internal/store"
	"github.com/reelsong/reelsong-api/internal/task"
)

// DefaultTrendingLimit is the number of songs returned by the stats endpoint.
const DefaultTrendingLimit = 10

// TaskFactory builds executable pipeline tasks for persisted task records.
// Implemented by task.IdentifyTaskFactory.
type TaskFactory interface {
	CreateTask(rec *task.TaskRecord) (task.Task, error)
}

// TaskQueue accepts tasks for background execution. Implemented by
// task.TaskRunner.
type TaskQueue interface {
	Submit(ctx context.Context, t task.Task) error
}

// HotCache is the optional Redis layer. Implemented by redcache.Cache; a nil
// HotCache disables caching entirely.
type HotCache interface {
	GetSong(ctx context.Context, mediaID string) *domain.SongSearch
	SetSong(ctx context.Context, song *domain.SongSearch)
	GetStats(ctx context.Context) []byte
	SetStats(ctx context.Context, payload []byte)
	InvalidateStats(ctx context.Context)
}

// SubmitResult is the outcome of a find-song submission. Either Song is set
// (the media was identified before, served synchronously) or TaskID is set
// (a background identification run was queued).
type SubmitResult struct {
	CacheHit bool
	Song     *domain.SongSearch
	TaskID   uuid.UUID
}

// TaskStatusResult pairs a task record with its identified song, when the
// task completed with a match.
type TaskStatusResult struct {
	Record *task.TaskRecord
	Song   *domain.SongSearch
}

// StatsResult is the trending statistics snapshot. It is also the shape
// serialized into the hot cache.
type StatsResult struct {
	TotalSearches int64                `json:"total_searches"`
	UniqueSongs   int                  `json:"unique_songs"`
	Trending      []*domain.SongSearch `json:"trending"`
}

// SongService implements the submission, polling and stats use cases.
type SongService struct {
	songs   store.SongStore
	tasks   task.TaskStore
	factory TaskFactory
	queue   TaskQueue
	cache   HotCache
	logger  *slog.Logger
}

// NewSongService creates a song service. cache may be nil.
func NewSongService(
	songs store.SongStore,
	tasks task.TaskStore,
	factory TaskFactory,
	queue TaskQueue,
	cache HotCache,
	logger *slog.Logger,
) *SongService {
	if songs == nil {
		panic("songs store cannot be nil")
	}
	if tasks == nil {
		panic("task store cannot be nil")
	}
	if factory == nil {
		panic("task factory cannot be nil")
	}
	if queue == nil {
		panic("task queue cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SongService{
		songs:   songs,
		tasks:   tasks,
		factory: factory,
		queue:   queue,
		cache:   cache,
		logger:  logger.With(slog.String("component", "song_service")),
	}
}

// Submit handles a find-song request. A URL whose media was already
// identified is answered from the store with its search counter bumped; an
// unknown media queues a background identification run and returns its task
// ID for polling. Invalid URLs are rejected synchronously with an
// INVALID_URL pipeline error.
func (s *SongService) Submit(ctx context.Context, url string) (*SubmitResult, error) {
	if err := media.ValidateURL(url); err != nil {
		metrics.SubmissionsTotal.WithLabelValues("invalid_url").Inc()
		return nil, err
	}

	mediaID := media.CanonicalID(url)
	log := s.logger.With(slog.String("media_id", mediaID))

	song, err := s.songs.IncrementSearchCount(ctx, mediaID)
	if err != nil && !errors.Is(err, store.ErrSongSearchNotFound) {
		return nil, fmt.Errorf("failed to check for existing search: %w", err)
	}

	// A counted record is a dedup hit: serve it without touching the
	// pipeline. Title-less records (a previous no-match or a half-finished
	// run) don't count and fall through to be identified again.
	if err == nil {
		log.Info("dedup cache hit", slog.Int("search_count", song.SearchCount))
		metrics.SubmissionsTotal.WithLabelValues("cache_hit").Inc()
		if s.cache != nil {
			s.cache.SetSong(ctx, song)
		}
		return &SubmitResult{CacheHit: true, Song: song}, nil
	}

	rec := task.NewTaskRecord(url, mediaID)
	if err := s.tasks.CreateTask(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create task record: %w", err)
	}

	t, err := s.factory.CreateTask(rec)
	if err != nil {
		s.failTask(ctx, rec.ID, "task construction failed")
		return nil, fmt.Errorf("failed to build identification task: %w", err)
	}

	if err := s.queue.Submit(ctx, t); err != nil {
		log.Error("failed to enqueue identification task",
			slog.String("task_id", rec.ID.String()),
			slog.String("error", err.Error()))
		s.failTask(ctx, rec.ID, "task queue rejected the submission")
		return nil, fmt.Errorf("failed to enqueue identification task: %w", err)
	}

	log.Info("identification task queued", slog.String("task_id", rec.ID.String()))
	metrics.SubmissionsTotal.WithLabelValues("queued").Inc()
	return &SubmitResult{TaskID: rec.ID}, nil
}

// failTask finalizes a record that never made it onto the queue. Best effort:
// the caller already has a more specific error to return.
func (s *SongService) failTask(ctx context.Context, id uuid.UUID, message string) {
	if err := s.tasks.Fail(ctx, id, domain.ErrorKindProcessing, message); err != nil {
		s.logger.Error("failed to finalize unqueued task",
			slog.String("task_id", id.String()),
			slog.String("error", err.Error()))
	}
}

// GetTaskStatus returns the task record for polling, with the identified
// song attached once the task completed with a match.
// Returns store.ErrTaskNotFound for unknown IDs.
func (s *SongService) GetTaskStatus(ctx context.Context, id uuid.UUID) (*TaskStatusResult, error) {
	rec, err := s.tasks.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &TaskStatusResult{Record: rec}
	if rec.SongSearchID == nil {
		return result, nil
	}

	if s.cache != nil {
		if song := s.cache.GetSong(ctx, rec.MediaID); song != nil {
			result.Song = song
			return result, nil
		}
	}

	song, err := s.songs.GetByID(ctx, *rec.SongSearchID)
	if err != nil {
		// The task finished; a vanished song record degrades the response
		// rather than failing the poll.
		s.logger.Warn("song referenced by completed task not found",
			slog.String("task_id", id.String()),
			slog.String("song_id", rec.SongSearchID.String()))
		return result, nil
	}

	if s.cache != nil {
		s.cache.SetSong(ctx, song)
	}
	result.Song = song
	return result, nil
}

// TrendingStats returns aggregate search statistics and the most searched
// identified songs, served from the hot cache when a fresh snapshot exists.
func (s *SongService) TrendingStats(ctx context.Context) (*StatsResult, error) {
	if s.cache != nil {
		if data := s.cache.GetStats(ctx); data != nil {
			var cached StatsResult
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
			s.logger.Warn("discarding corrupt stats snapshot")
		}
	}

	stats, err := s.songs.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load search stats: %w", err)
	}

	trending, err := s.songs.Trending(ctx, DefaultTrendingLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load trending songs: %w", err)
	}

	result := &StatsResult{
		TotalSearches: stats.TotalSearches,
		UniqueSongs:   stats.UniqueSongs,
		Trending:      trending,
	}

	if s.cache != nil {
		if data, err := json.Marshal(result); err == nil {
			s.cache.SetStats(ctx, data)
		}
	}

	return result, nil
}
