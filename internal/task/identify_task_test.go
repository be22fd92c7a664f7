package task

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelsong/reelsong-api/internal/domain"
	"github.com/reelsong/reelsong-api/internal/extraction"
	"github.com/reelsong/reelsong-api/internal/recognition"
	"github.com/reelsong/reelsong-api/internal/store"
)

// fakeExtractor returns a pre-built clip or error.
type fakeExtractor struct {
	clip *extraction.AudioClip
	err  error
}

func (f *fakeExtractor) Extract(ctx context.Context, url string, clipSeconds int) (*extraction.AudioClip, error) {
	return f.clip, f.err
}

// fakeRecognizer returns a pre-built outcome or error.
type fakeRecognizer struct {
	outcome recognition.Outcome
	err     error
}

func (f *fakeRecognizer) Identify(ctx context.Context, clip *extraction.AudioClip) (recognition.Outcome, error) {
	return f.outcome, f.err
}

// fakeSongStore records upserts and satisfies the rest of the interface with
// not-found responses.
type fakeSongStore struct {
	mu       sync.Mutex
	upserted *domain.SongSearch
	err      error
}

func (f *fakeSongStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.SongSearch, error) {
	return nil, store.ErrSongSearchNotFound
}

func (f *fakeSongStore) GetByMediaID(ctx context.Context, mediaID string) (*domain.SongSearch, error) {
	return nil, store.ErrSongSearchNotFound
}

func (f *fakeSongStore) Upsert(ctx context.Context, song *domain.SongSearch) (*domain.SongSearch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	clone := *song
	f.upserted = &clone
	return &clone, nil
}

func (f *fakeSongStore) IncrementSearchCount(ctx context.Context, mediaID string) (*domain.SongSearch, error) {
	return nil, store.ErrSongSearchNotFound
}

func (f *fakeSongStore) Trending(ctx context.Context, limit int) ([]*domain.SongSearch, error) {
	return nil, nil
}

func (f *fakeSongStore) Stats(ctx context.Context) (*store.SearchStats, error) {
	return &store.SearchStats{}, nil
}

func (f *fakeSongStore) WithTx(tx *sql.Tx) store.SongStore { return f }

// fakeCache records population calls.
type fakeCache struct {
	mu          sync.Mutex
	setSong     *domain.SongSearch
	invalidated bool
}

func (f *fakeCache) SetSong(ctx context.Context, song *domain.SongSearch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setSong = song
}

func (f *fakeCache) InvalidateStats(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = true
}

// writeClip creates a real temp file so cleanup behavior is observable.
func writeClip(t *testing.T, mediaID string) *extraction.AudioClip {
	t.Helper()

	path := filepath.Join(t.TempDir(), mediaID+".mp3")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))
	return &extraction.AudioClip{Path: path, MediaID: mediaID}
}

func matchedOutcome() recognition.Outcome {
	return recognition.Outcome{
		Matched: true,
		Track: &recognition.TrackMatch{
			Key:      "40333609",
			Title:    "Blinding Lights",
			Subtitle: "The Weeknd",
			URL:      "https://www.shazam.com/track/40333609",
			Images: recognition.TrackImages{
				CoverArt:   "https://images.example/cover.jpg",
				Background: "https://images.example/bg.jpg",
			},
			Hub: recognition.Hub{
				Options: []recognition.HubOption{
					{
						ProviderName: "applemusic",
						Actions: []recognition.HubAction{
							{Type: "uri", URI: "https://music.apple.com/track/123"},
						},
					},
				},
				Providers: []recognition.HubProvider{
					{
						Type: "SPOTIFY",
						Actions: []recognition.HubAction{
							{Type: "uri", URI: "spotify:search:Blinding Lights The Weeknd"},
						},
					},
				},
			},
		},
	}
}

func newIdentifyFixture(t *testing.T, extractor extraction.Extractor, recognizer recognition.Recognizer) (*IdentifySongTask, *MockTaskStore, *fakeSongStore, *fakeCache) {
	t.Helper()

	tasks := NewMockTaskStore()
	songs := &fakeSongStore{}
	cache := &fakeCache{}

	rec := NewTaskRecord("https://www.instagram.com/reel/ABC123/", "ABC123")
	require.NoError(t, tasks.CreateTask(context.Background(), rec))

	it, err := NewIdentifySongTask(rec, 10, extractor, recognizer, songs, tasks, cache, slog.Default())
	require.NoError(t, err)
	return it, tasks, songs, cache
}

func TestIdentifySongTaskMatch(t *testing.T) {
	clip := writeClip(t, "ABC123")
	it, tasks, songs, cache := newIdentifyFixture(t,
		&fakeExtractor{clip: clip},
		&fakeRecognizer{outcome: matchedOutcome()},
	)

	require.NoError(t, it.Execute(context.Background()))

	require.NotNil(t, songs.upserted)
	assert.Equal(t, "ABC123", songs.upserted.MediaID)
	assert.Equal(t, "Blinding Lights", songs.upserted.SongTitle)
	assert.Equal(t, "The Weeknd", songs.upserted.ArtistName)
	assert.Equal(t, "https://images.example/cover.jpg", songs.upserted.AlbumArtwork)
	assert.Equal(t, "https://open.spotify.com/search/Blinding Lights The Weeknd", songs.upserted.SpotifyLink)
	assert.Equal(t, "https://music.apple.com/track/123", songs.upserted.AppleMusicLink)
	assert.Equal(t, "40333609", songs.upserted.ShazamTrackID)

	rec, err := tasks.GetTask(context.Background(), it.ID())
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCompleted, rec.Status)
	require.NotNil(t, rec.SongSearchID)
	assert.Equal(t, songs.upserted.ID, *rec.SongSearchID)
	assert.Empty(t, rec.ErrorCode)

	assert.NotNil(t, cache.setSong)
	assert.True(t, cache.invalidated)

	_, err = os.Stat(clip.Path)
	assert.True(t, os.IsNotExist(err), "audio clip should be removed after the run")
}

func TestIdentifySongTaskNoMatch(t *testing.T) {
	clip := writeClip(t, "ABC123")
	it, tasks, songs, cache := newIdentifyFixture(t,
		&fakeExtractor{clip: clip},
		&fakeRecognizer{outcome: recognition.Outcome{}},
	)

	require.NoError(t, it.Execute(context.Background()))

	assert.Nil(t, songs.upserted, "no-match must not persist a song record")

	rec, err := tasks.GetTask(context.Background(), it.ID())
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCompleted, rec.Status)
	assert.Nil(t, rec.SongSearchID)
	assert.Equal(t, string(domain.ErrorKindNoSongFound), rec.ErrorCode)
	assert.NotEmpty(t, rec.ErrorMessage)

	assert.Nil(t, cache.setSong)
	assert.False(t, cache.invalidated)

	_, err = os.Stat(clip.Path)
	assert.True(t, os.IsNotExist(err), "audio clip should be removed after a no-match run")
}

func TestIdentifySongTaskExtractionFailure(t *testing.T) {
	it, tasks, songs, _ := newIdentifyFixture(t,
		&fakeExtractor{err: domain.NewPipelineError(domain.ErrorKindContentNotFound, "The content does not exist or has been deleted")},
		&fakeRecognizer{},
	)

	err := it.Execute(context.Background())
	require.Error(t, err)

	kind, retryable := domain.Classify(err)
	assert.Equal(t, domain.ErrorKindContentNotFound, kind)
	assert.False(t, retryable)

	assert.Nil(t, songs.upserted)

	// Finalizing failures is the runner's job; the record must not be
	// terminal yet.
	rec, gerr := tasks.GetTask(context.Background(), it.ID())
	require.NoError(t, gerr)
	assert.False(t, rec.Terminal())
}

func TestIdentifySongTaskRecognitionFailure(t *testing.T) {
	clip := writeClip(t, "ABC123")
	it, _, songs, _ := newIdentifyFixture(t,
		&fakeExtractor{clip: clip},
		&fakeRecognizer{err: domain.NewPipelineError(domain.ErrorKindRateLimited, "recognition API rate limit exceeded")},
	)

	err := it.Execute(context.Background())
	require.Error(t, err)

	kind, retryable := domain.Classify(err)
	assert.Equal(t, domain.ErrorKindRateLimited, kind)
	assert.True(t, retryable)

	assert.Nil(t, songs.upserted)

	_, serr := os.Stat(clip.Path)
	assert.True(t, os.IsNotExist(serr), "audio clip should be removed even when recognition fails")
}

func TestIdentifySongTaskUpsertFailure(t *testing.T) {
	clip := writeClip(t, "ABC123")
	it, _, songs, cache := newIdentifyFixture(t,
		&fakeExtractor{clip: clip},
		&fakeRecognizer{outcome: matchedOutcome()},
	)
	songs.err = errors.New("connection refused")

	err := it.Execute(context.Background())
	require.Error(t, err)

	kind, retryable := domain.Classify(err)
	assert.Equal(t, domain.ErrorKindProcessing, kind)
	assert.True(t, retryable)
	assert.Nil(t, cache.setSong)
}

func TestNewIdentifySongTaskValidation(t *testing.T) {
	rec := NewTaskRecord("https://www.instagram.com/reel/ABC123/", "ABC123")
	extractor := &fakeExtractor{}
	recognizer := &fakeRecognizer{}
	songs := &fakeSongStore{}
	tasks := NewMockTaskStore()

	testCases := []struct {
		name    string
		build   func() (*IdentifySongTask, error)
		wantErr error
	}{
		{
			name: "nil record",
			build: func() (*IdentifySongTask, error) {
				return NewIdentifySongTask(nil, 10, extractor, recognizer, songs, tasks, nil, slog.Default())
			},
			wantErr: ErrNilRecord,
		},
		{
			name: "nil extractor",
			build: func() (*IdentifySongTask, error) {
				return NewIdentifySongTask(rec, 10, nil, recognizer, songs, tasks, nil, slog.Default())
			},
			wantErr: ErrNilExtractor,
		},
		{
			name: "nil recognizer",
			build: func() (*IdentifySongTask, error) {
				return NewIdentifySongTask(rec, 10, extractor, nil, songs, tasks, nil, slog.Default())
			},
			wantErr: ErrNilRecognizer,
		},
		{
			name: "nil song store",
			build: func() (*IdentifySongTask, error) {
				return NewIdentifySongTask(rec, 10, extractor, recognizer, nil, tasks, nil, slog.Default())
			},
			wantErr: ErrNilSongStore,
		},
		{
			name: "nil task store",
			build: func() (*IdentifySongTask, error) {
				return NewIdentifySongTask(rec, 10, extractor, recognizer, songs, nil, nil, slog.Default())
			},
			wantErr: ErrNilTaskStore,
		},
		{
			name: "nil logger",
			build: func() (*IdentifySongTask, error) {
				return NewIdentifySongTask(rec, 10, extractor, recognizer, songs, tasks, nil, nil)
			},
			wantErr: ErrNilLogger,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.build()
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	t.Run("nil cache is allowed", func(t *testing.T) {
		it, err := NewIdentifySongTask(rec, 10, extractor, recognizer, songs, tasks, nil, slog.Default())
		require.NoError(t, err)
		assert.Equal(t, rec.ID, it.ID())
		assert.Equal(t, TaskTypeIdentifySong, it.Type())
	})
}
