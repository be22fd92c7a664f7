// Package extraction downloads a short audio clip for a media URL using
// yt-dlp and ffmpeg. Failures surface as structured pipeline errors so the
// orchestrator never has to classify from message text.
package extraction

import (
	"context"
	"errors"
	"io/fs"
	"os"
)

// AudioClip is a temporary audio file produced by extraction. It is owned
// exclusively by the pipeline run that created it and must be removed on
// every exit path via Cleanup.
type AudioClip struct {
	// Path is the absolute path of the audio file on disk.
	Path string

	// MediaID is the provider-reported ID of the media the clip came from.
	MediaID string
}

// Cleanup removes the clip from disk. Removing an already-removed clip is
// not an error.
func (c *AudioClip) Cleanup() error {
	if c == nil || c.Path == "" {
		return nil
	}
	if err := os.Remove(c.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Extractor is the audio extraction collaborator consumed by the pipeline.
// Extract retries transient fetch failures internally up to its configured
// attempt ceiling before surfacing a terminal classification.
type Extractor interface {
	Extract(ctx context.Context, url string, clipSeconds int) (*AudioClip, error)
}
