// Package recognition identifies songs in audio clips via the Shazam
// recognition API. The provider's loosely-typed response is mapped onto an
// explicit schema, and streaming links are extracted by pure functions with
// defined precedence and fallbacks.
package recognition

import (
	"context"
	"strings"

	"github.com/reelsong/reelsong-api/internal/extraction"
)

// spotifySearchScheme is the Spotify URI prefix that converts to a web
// search URL rather than a direct link.
const spotifySearchScheme = "spotify:search:"

// HubAction is a single action under a hub option or provider.
type HubAction struct {
	Type string `json:"type"`
	URI  string `json:"uri"`
}

// HubOption is a store/provider option in the track hub.
type HubOption struct {
	ProviderName string      `json:"providername"`
	Actions      []HubAction `json:"actions"`
}

// HubProvider is a streaming provider entry in the track hub.
type HubProvider struct {
	Type    string      `json:"type"`
	Actions []HubAction `json:"actions"`
}

// Hub is the provider-specific payload carrying streaming-service links.
type Hub struct {
	Options   []HubOption   `json:"options"`
	Providers []HubProvider `json:"providers"`
}

// TrackImages holds the artwork URLs reported for a track.
type TrackImages struct {
	CoverArt   string `json:"coverart"`
	Background string `json:"background"`
}

// TrackMatch is a successful recognition result.
type TrackMatch struct {
	Key      string      `json:"key"`
	Title    string      `json:"title"`
	Subtitle string      `json:"subtitle"`
	URL      string      `json:"url"`
	Images   TrackImages `json:"images"`
	Hub      Hub         `json:"hub"`
}

// Outcome distinguishes a match from a clean no-match run. A no-match is a
// successful outcome, not an error.
type Outcome struct {
	Matched bool
	Track   *TrackMatch
}

// Recognizer is the song recognition collaborator consumed by the pipeline.
type Recognizer interface {
	Identify(ctx context.Context, clip *extraction.AudioClip) (Outcome, error)
}

// Artwork returns the track's artwork URL, preferring cover art over the
// background image. Returns the empty string when the provider reports
// neither.
func (t *TrackMatch) Artwork() string {
	if t.Images.CoverArt != "" {
		return t.Images.CoverArt
	}
	return t.Images.Background
}

// AppleMusicLink returns the Apple Music deep link from the hub's
// "applemusic" option, or the empty string when the provider omits it.
func (t *TrackMatch) AppleMusicLink() string {
	for _, opt := range t.Hub.Options {
		if opt.ProviderName != "applemusic" {
			continue
		}
		for _, action := range opt.Actions {
			if action.Type == "uri" && action.URI != "" {
				return action.URI
			}
		}
	}
	return ""
}

// SpotifyLink returns a Spotify link from the hub's SPOTIFY provider entry.
// Search URIs are converted to open.spotify.com web search URLs; other
// spotify: URIs are returned as-is. Returns the empty string when absent.
func (t *TrackMatch) SpotifyLink() string {
	for _, provider := range t.Hub.Providers {
		if provider.Type != "SPOTIFY" {
			continue
		}
		for _, action := range provider.Actions {
			if !strings.HasPrefix(action.URI, "spotify:") {
				continue
			}
			if term, ok := strings.CutPrefix(action.URI, spotifySearchScheme); ok {
				return "https://open.spotify.com/search/" + term
			}
			return action.URI
		}
	}
	return ""
}
