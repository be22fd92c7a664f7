package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/reelsong/reelsong-api/internal/domain"
	"github.com/reelsong/reelsong-api/internal/extraction"
	"github.com/reelsong/reelsong-api/internal/metrics"
	"github.com/reelsong/reelsong-api/internal/recognition"
	"github.com/reelsong/reelsong-api/internal/store"
)

// noMatchMessage is the stable message callers see when a run completes
// without identifying a song.
const noMatchMessage = "No song was identified in this audio."

// Common errors
var (
	ErrNilExtractor  = errors.New("extractor cannot be nil")
	ErrNilRecognizer = errors.New("recognizer cannot be nil")
	ErrNilSongStore  = errors.New("song store cannot be nil")
	ErrNilTaskStore  = errors.New("task store cannot be nil")
	ErrNilLogger     = errors.New("logger cannot be nil")
	ErrNilRecord     = errors.New("task record cannot be nil")
)

// identifyPayload represents the serialized data stored with the task
type identifyPayload struct {
	URL     string `json:"url"`
	MediaID string `json:"media_id"`
}

// IdentifySongTask runs one end-to-end identification pipeline for a single
// submission: extract a short audio clip from the source URL, send it to the
// recognition collaborator, persist the result, and finalize the task record.
// The temporary audio clip is removed on every exit path.
type IdentifySongTask struct {
	id          uuid.UUID
	sourceURL   string
	mediaID     string
	clipSeconds int
	extractor   extraction.Extractor
	recognizer  recognition.Recognizer
	songs       store.SongStore
	tasks       TaskStore
	cache       ResultCache
	logger      *slog.Logger
	status      TaskStatus
}

// NewIdentifySongTask creates a pipeline task for the given pending record.
// cache may be nil when the hot cache is disabled.
func NewIdentifySongTask(
	rec *TaskRecord,
	clipSeconds int,
	extractor extraction.Extractor,
	recognizer recognition.Recognizer,
	songs store.SongStore,
	tasks TaskStore,
	cache ResultCache,
	logger *slog.Logger,
) (*IdentifySongTask, error) {
	if rec == nil {
		return nil, ErrNilRecord
	}
	if extractor == nil {
		return nil, ErrNilExtractor
	}
	if recognizer == nil {
		return nil, ErrNilRecognizer
	}
	if songs == nil {
		return nil, ErrNilSongStore
	}
	if tasks == nil {
		return nil, ErrNilTaskStore
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	return &IdentifySongTask{
		id:          rec.ID,
		sourceURL:   rec.SourceURL,
		mediaID:     rec.MediaID,
		clipSeconds: clipSeconds,
		extractor:   extractor,
		recognizer:  recognizer,
		songs:       songs,
		tasks:       tasks,
		cache:       cache,
		logger:      logger.With("task_type", TaskTypeIdentifySong, "task_id", rec.ID),
		status:      TaskStatusPending,
	}, nil
}

// ID returns the task's unique identifier
func (t *IdentifySongTask) ID() uuid.UUID {
	return t.id
}

// Type returns the task type identifier
func (t *IdentifySongTask) Type() string {
	return TaskTypeIdentifySong
}

// Payload returns the task data as a byte slice
func (t *IdentifySongTask) Payload() []byte {
	data, err := json.Marshal(identifyPayload{URL: t.sourceURL, MediaID: t.mediaID})
	if err != nil {
		t.logger.Error("failed to marshal task payload", "error", err)
		return []byte{}
	}
	return data
}

// Status returns the current task status
func (t *IdentifySongTask) Status() TaskStatus {
	return t.status
}

// Execute runs one identification attempt. A nil return means the task
// finalized its own record (completed with a match or completed no-match);
// a non-nil return carries the classified failure for the runner's retry
// policy.
func (t *IdentifySongTask) Execute(ctx context.Context) error {
	t.status = TaskStatusProcessing
	t.logger.Info("starting song identification", "url", t.sourceURL)

	clip, err := t.extractor.Extract(ctx, t.sourceURL, t.clipSeconds)
	if err != nil {
		t.status = TaskStatusFailed
		return fmt.Errorf("audio extraction: %w", err)
	}
	defer func() {
		if cerr := clip.Cleanup(); cerr != nil {
			t.logger.Warn("failed to clean up audio clip", "path", clip.Path, "error", cerr)
		}
	}()

	t.logger.Info("audio clip extracted", "path", clip.Path)

	outcome, err := t.recognizer.Identify(ctx, clip)
	if err != nil {
		t.status = TaskStatusFailed
		return fmt.Errorf("song recognition: %w", err)
	}

	if !outcome.Matched {
		t.logger.Info("no song identified")
		metrics.PipelineRunsTotal.WithLabelValues("no_match").Inc()
		if err := t.tasks.CompleteNoMatch(ctx, t.id, noMatchMessage); err != nil {
			t.logger.Error("failed to finalize no-match task", "error", err)
		}
		t.status = TaskStatusCompleted
		return nil
	}

	song, err := t.buildSongSearch(outcome.Track)
	if err != nil {
		t.status = TaskStatusFailed
		return fmt.Errorf("building song record: %w", err)
	}

	saved, err := t.songs.Upsert(ctx, song)
	if err != nil {
		t.status = TaskStatusFailed
		return fmt.Errorf("persisting song record: %w", err)
	}

	// Bookkeeping only: a record deleted concurrently must not fail the run.
	if err := t.tasks.CompleteWithSong(ctx, t.id, saved.ID); err != nil {
		t.logger.Error("failed to link task to song record", "error", err)
	}

	if t.cache != nil {
		t.cache.SetSong(ctx, saved)
		t.cache.InvalidateStats(ctx)
	}

	metrics.PipelineRunsTotal.WithLabelValues("matched").Inc()
	t.logger.Info("song identified",
		"song_title", saved.SongTitle,
		"artist_name", saved.ArtistName)

	t.status = TaskStatusCompleted
	return nil
}

// buildSongSearch maps a recognition match onto a SongSearch record for the
// task's media ID.
func (t *IdentifySongTask) buildSongSearch(track *recognition.TrackMatch) (*domain.SongSearch, error) {
	song, err := domain.NewSongSearch(t.mediaID, t.sourceURL)
	if err != nil {
		return nil, err
	}

	song.SongTitle = track.Title
	song.ArtistName = track.Subtitle
	song.AlbumArtwork = track.Artwork()
	song.SpotifyLink = track.SpotifyLink()
	song.AppleMusicLink = track.AppleMusicLink()
	song.ShazamTrackID = track.Key
	song.ShazamURL = track.URL
	return song, nil
}
