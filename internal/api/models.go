package api

import (
	"time"

	"github.com/reelsong/reelsong-api/internal/domain"
	"github.com/reelsong/reelsong-api/internal/service"
	"github.com/reelsong/reelsong-api/internal/task"
)

// processingMessage is returned with a 202 when a pipeline run is queued.
const processingMessage = "Processing started. Poll the task status endpoint for the result."

// FindSongRequest defines the payload for the find-song endpoint.
type FindSongRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// SongResponse is the serialized form of an identified song. Field names
// match the persisted record so clients see one stable schema everywhere.
type SongResponse struct {
	ID             string    `json:"id"`
	MediaID        string    `json:"ig_media_id"`
	SourceURL      string    `json:"ig_url"`
	SongTitle      string    `json:"song_title"`
	ArtistName     string    `json:"artist_name"`
	AlbumArtwork   string    `json:"album_artwork,omitempty"`
	SpotifyLink    string    `json:"spotify_link,omitempty"`
	AppleMusicLink string    `json:"apple_music_link,omitempty"`
	ShazamTrackID  string    `json:"shazam_track_id,omitempty"`
	ShazamURL      string    `json:"shazam_url,omitempty"`
	SearchCount    int       `json:"search_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FindSongResponse defines the response for the find-song endpoint. Data is
// set for a dedup hit; TaskID, Status and Message for a queued
// identification.
type FindSongResponse struct {
	Success bool          `json:"success"`
	Cached  bool          `json:"cached"`
	Data    *SongResponse `json:"data,omitempty"`
	TaskID  string        `json:"task_id,omitempty"`
	Status  string        `json:"status,omitempty"`
	Message string        `json:"message,omitempty"`
}

// TaskStatusResponse defines the response for the task-status endpoint.
// Data is set for tasks that completed with a match; ErrorCode/Message for
// completed-no-match and failed tasks.
type TaskStatusResponse struct {
	Success      bool          `json:"success"`
	TaskID       string        `json:"task_id"`
	Status       string        `json:"status"`
	Data         *SongResponse `json:"data,omitempty"`
	ErrorCode    string        `json:"error_code,omitempty"`
	ErrorMessage string        `json:"message,omitempty"`
	Attempts     int           `json:"attempts"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// StatsResponse defines the response for the stats endpoint.
type StatsResponse struct {
	TrendingSongs []SongResponse `json:"trending_songs"`
	TotalSearches int64          `json:"total_searches"`
	UniqueSongs   int            `json:"unique_songs"`
}

// songToDTO maps a song record onto its response form.
func songToDTO(song *domain.SongSearch) *SongResponse {
	if song == nil {
		return nil
	}
	return &SongResponse{
		ID:             song.ID.String(),
		MediaID:        song.MediaID,
		SourceURL:      song.SourceURL,
		SongTitle:      song.SongTitle,
		ArtistName:     song.ArtistName,
		AlbumArtwork:   song.AlbumArtwork,
		SpotifyLink:    song.SpotifyLink,
		AppleMusicLink: song.AppleMusicLink,
		ShazamTrackID:  song.ShazamTrackID,
		ShazamURL:      song.ShazamURL,
		SearchCount:    song.SearchCount,
		CreatedAt:      song.CreatedAt,
		UpdatedAt:      song.UpdatedAt,
	}
}

// taskStatusToDTO maps a task poll result onto its response form. A failed
// task reports success false; pending and processing polls stay true because
// the poll itself succeeded.
func taskStatusToDTO(status *service.TaskStatusResult) *TaskStatusResponse {
	rec := status.Record
	return &TaskStatusResponse{
		Success:      rec.Status != task.TaskStatusFailed,
		TaskID:       rec.ID.String(),
		Status:       string(rec.Status),
		Data:         songToDTO(status.Song),
		ErrorCode:    rec.ErrorCode,
		ErrorMessage: rec.ErrorMessage,
		Attempts:     rec.Attempts,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

// statsToDTO maps the stats snapshot onto its response form.
func statsToDTO(stats *service.StatsResult) *StatsResponse {
	resp := &StatsResponse{
		TrendingSongs: make([]SongResponse, 0, len(stats.Trending)),
		TotalSearches: stats.TotalSearches,
		UniqueSongs:   stats.UniqueSongs,
	}
	for _, song := range stats.Trending {
		resp.TrendingSongs = append(resp.TrendingSongs, *songToDTO(song))
	}
	return resp
}
