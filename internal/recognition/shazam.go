package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/reelsong/reelsong-api/internal/config"
	"github.com/reelsong/reelsong-api/internal/domain"
	"github.com/reelsong/reelsong-api/internal/extraction"
	"github.com/reelsong/reelsong-api/internal/metrics"
)

// contentTypes maps audio file extensions to the content type the API
// expects for raw binary uploads.
var contentTypes = map[string]string{
	".mp3": "audio/mpeg",
	".wav": "audio/wav",
	".ogg": "audio/ogg",
	".m4a": "audio/mp4",
}

// ShazamClient implements Recognizer against the Shazam song recognition API
// on RapidAPI. The clip is uploaded as raw binary data.
type ShazamClient struct {
	cfg    config.RecognitionConfig
	client *http.Client
	logger *slog.Logger
}

// NewShazamClient creates a recognition client with the given configuration.
func NewShazamClient(cfg config.RecognitionConfig, logger *slog.Logger) *ShazamClient {
	return &ShazamClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout()},
		logger: logger.With("component", "recognizer"),
	}
}

// WithHTTPClient sets a custom HTTP client (for testing).
func (c *ShazamClient) WithHTTPClient(client *http.Client) *ShazamClient {
	c.client = client
	return c
}

var _ Recognizer = (*ShazamClient)(nil)

// Identify uploads the clip and returns the recognition outcome.
func (c *ShazamClient) Identify(ctx context.Context, clip *extraction.AudioClip) (Outcome, error) {
	if c.cfg.APIKey == "" {
		return Outcome{}, domain.NewPipelineError(domain.ErrorKindAuth, "recognition API key not configured")
	}

	audio, err := os.ReadFile(clip.Path)
	if err != nil {
		return Outcome{}, domain.WrapPipelineError(domain.ErrorKindProcessing, "audio clip not readable", err)
	}

	contentType := contentTypes[strings.ToLower(filepath.Ext(clip.Path))]
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(audio))
	if err != nil {
		return Outcome{}, domain.WrapPipelineError(domain.ErrorKindProcessing, "building recognition request", err)
	}
	req.Header.Set("X-RapidAPI-Key", c.cfg.APIKey)
	req.Header.Set("X-RapidAPI-Host", c.cfg.APIHost)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.RecognitionRequestSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return Outcome{}, domain.WrapPipelineError(domain.ErrorKindNetwork, "failed to reach recognition API", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{}, domain.WrapPipelineError(domain.ErrorKindNetwork, "reading recognition response", err)
	}

	c.logger.Debug("recognition response", "status", resp.StatusCode, "bytes", len(body))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Outcome{}, domain.NewPipelineError(domain.ErrorKindRateLimited, "recognition API rate limit exceeded")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Outcome{}, domain.NewPipelineError(domain.ErrorKindAuth, "recognition API rejected credentials")
	case resp.StatusCode != http.StatusOK:
		return Outcome{}, domain.NewPipelineError(
			domain.ErrorKindProcessing,
			fmt.Sprintf("recognition API returned status %d", resp.StatusCode),
		)
	}

	return parseResponse(body)
}

// parseResponse maps the API's variable response shapes onto an Outcome.
// The body may be an object with a "track" field, a bare track object, or a
// list of matches; anything without an identifiable track is a no-match.
func parseResponse(body []byte) (Outcome, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Outcome{}, nil
	}

	if trimmed[0] == '[' {
		var matches []TrackMatch
		if err := json.Unmarshal(trimmed, &matches); err != nil {
			return Outcome{}, domain.WrapPipelineError(domain.ErrorKindProcessing, "malformed recognition response", err)
		}
		if len(matches) == 0 || matches[0].Title == "" {
			return Outcome{}, nil
		}
		return Outcome{Matched: true, Track: &matches[0]}, nil
	}

	var wrapped struct {
		Track *TrackMatch `json:"track"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return Outcome{}, domain.WrapPipelineError(domain.ErrorKindProcessing, "malformed recognition response", err)
	}
	if wrapped.Track != nil && wrapped.Track.Title != "" {
		return Outcome{Matched: true, Track: wrapped.Track}, nil
	}

	// Some response variants put the track fields at the top level.
	var direct TrackMatch
	if err := json.Unmarshal(trimmed, &direct); err == nil && direct.Title != "" {
		return Outcome{Matched: true, Track: &direct}, nil
	}

	return Outcome{}, nil
}
