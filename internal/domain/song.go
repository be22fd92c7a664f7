package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for SongSearch
var (
	ErrEmptySongSearchID  = errors.New("song search ID cannot be empty")
	ErrEmptyMediaID       = errors.New("song search media ID cannot be empty")
	ErrEmptySourceURL     = errors.New("song search source URL cannot be empty")
	ErrInvalidSearchCount = errors.New("song search count must be at least 1")
)

// SongSearch is a cached song identification result, keyed by the canonical
// media ID so that repeated requests for the same clip never trigger a second
// pipeline run. SearchCount tracks how many times callers asked for this
// item; it starts at 1 and is incremented only on genuine cache hits.
type SongSearch struct {
	ID             uuid.UUID `json:"id"`
	MediaID        string    `json:"ig_media_id"`
	SourceURL      string    `json:"ig_url"`
	SongTitle      string    `json:"song_title"`
	ArtistName     string    `json:"artist_name"`
	AlbumArtwork   string    `json:"album_artwork"`
	SpotifyLink    string    `json:"spotify_link"`
	AppleMusicLink string    `json:"apple_music_link"`
	ShazamTrackID  string    `json:"shazam_track_id"`
	ShazamURL      string    `json:"shazam_url"`
	SearchCount    int       `json:"search_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewSongSearch creates a new SongSearch for the given media ID and source
// URL. It generates a new UUID, sets the search count to 1, and sets the
// creation/update timestamps. Song metadata fields are filled in by the
// caller from the recognition result before persisting.
// Returns an error if validation fails.
func NewSongSearch(mediaID, sourceURL string) (*SongSearch, error) {
	now := time.Now().UTC()
	s := &SongSearch{
		ID:          uuid.New(),
		MediaID:     mediaID,
		SourceURL:   sourceURL,
		SearchCount: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// Validate checks if the SongSearch has valid data.
// Returns an error if any field fails validation.
func (s *SongSearch) Validate() error {
	if s.ID == uuid.Nil {
		return ErrEmptySongSearchID
	}

	if s.MediaID == "" {
		return ErrEmptyMediaID
	}

	if s.SourceURL == "" {
		return ErrEmptySourceURL
	}

	if s.SearchCount < 1 {
		return ErrInvalidSearchCount
	}

	return nil
}

// HasTitle reports whether a song was actually identified for this record.
// Records with an empty title exist only as dedup markers and are excluded
// from trending queries.
func (s *SongSearch) HasTitle() bool {
	return s.SongTitle != ""
}
