package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/reelsong/reelsong-api/internal/config"
	"github.com/reelsong/reelsong-api/internal/domain"
	"github.com/reelsong/reelsong-api/internal/media"
	"github.com/reelsong/reelsong-api/internal/metrics"
)

// browserUserAgent is sent on metadata probes; the provider serves different
// responses to unidentified clients.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// CommandRunner executes an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// YtDlpExtractor implements Extractor by shelling out to yt-dlp for the
// download and ffmpeg for trimming. The metadata probe goes through the
// configured proxy (when set) and is retried internally; the media download
// itself runs direct to save proxy bandwidth.
type YtDlpExtractor struct {
	cfg    config.ExtractionConfig
	logger *slog.Logger
	run    CommandRunner
}

// NewYtDlpExtractor creates an extractor with the given configuration.
func NewYtDlpExtractor(cfg config.ExtractionConfig, logger *slog.Logger) *YtDlpExtractor {
	return &YtDlpExtractor{
		cfg:    cfg,
		logger: logger.With("component", "extractor"),
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (e *YtDlpExtractor) WithCommandRunner(run CommandRunner) *YtDlpExtractor {
	e.run = run
	return e
}

var _ Extractor = (*YtDlpExtractor)(nil)

// probeInfo is the subset of yt-dlp's JSON metadata the extractor needs.
type probeInfo struct {
	ID string `json:"id"`
}

// Extract downloads the media's audio track and trims it to clipSeconds.
func (e *YtDlpExtractor) Extract(ctx context.Context, url string, clipSeconds int) (*AudioClip, error) {
	// The submission layer validates too; this guard keeps the collaborator
	// safe when driven directly.
	if err := media.ValidateURL(url); err != nil {
		return nil, err
	}

	tempDir := e.cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, domain.WrapPipelineError(domain.ErrorKindDownload, "cannot create temp directory", err)
	}

	info, err := e.probe(ctx, url)
	if err != nil {
		return nil, err
	}

	path, err := e.download(ctx, url, info.ID, tempDir)
	if err != nil {
		return nil, err
	}

	path = e.trim(ctx, path, clipSeconds)

	return &AudioClip{Path: path, MediaID: info.ID}, nil
}

// probe fetches media metadata, retrying transient failures up to the
// configured attempt ceiling with a fixed delay between attempts.
// Content that genuinely does not exist fails immediately; access failures
// that persist through every attempt surface as PRIVATE_ACCOUNT.
func (e *YtDlpExtractor) probe(ctx context.Context, url string) (*probeInfo, error) {
	args := []string{
		"--dump-single-json",
		"--no-download",
		"--no-warnings",
		"--user-agent", browserUserAgent,
	}
	if e.cfg.Proxy != "" {
		args = append(args, "--proxy", e.cfg.Proxy)
	}
	args = append(args, url)

	var lastOutput string
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		metrics.ExtractionAttemptsTotal.Inc()

		out, err := e.run(ctx, e.cfg.YtDlpPath, args...)
		if err == nil {
			var info probeInfo
			if jerr := json.Unmarshal(out, &info); jerr != nil || info.ID == "" {
				return nil, domain.NewPipelineError(
					domain.ErrorKindDownload,
					"could not read media metadata",
				)
			}
			e.logger.Debug("metadata probe succeeded",
				"attempt", attempt,
				"max_attempts", e.cfg.MaxAttempts,
				"media_id", info.ID)
			return &info, nil
		}

		if ctx.Err() != nil {
			return nil, domain.WrapPipelineError(domain.ErrorKindProcessing, "extraction cancelled", ctx.Err())
		}

		lastOutput = strings.ToLower(string(out) + " " + err.Error())

		// Content that does not exist will not appear on retry.
		if strings.Contains(lastOutput, "not exist") || strings.Contains(lastOutput, "404") {
			return nil, domain.NewPipelineError(
				domain.ErrorKindContentNotFound,
				"The content does not exist or has been deleted",
			)
		}

		e.logger.Warn("metadata probe failed",
			"attempt", attempt,
			"max_attempts", e.cfg.MaxAttempts,
			"error", err)

		if attempt < e.cfg.MaxAttempts {
			if serr := sleepCtx(ctx, e.cfg.RetryDelay()); serr != nil {
				return nil, domain.WrapPipelineError(domain.ErrorKindProcessing, "extraction cancelled", serr)
			}
		}
	}

	if strings.Contains(lastOutput, "private") ||
		strings.Contains(lastOutput, "login required") ||
		strings.Contains(lastOutput, "rate") {
		return nil, domain.NewPipelineError(
			domain.ErrorKindPrivateAccount,
			"Cannot access content from private accounts",
		)
	}

	return nil, domain.NewPipelineError(
		domain.ErrorKindDownload,
		fmt.Sprintf("media metadata fetch failed after %d attempts", e.cfg.MaxAttempts),
	)
}

// download fetches the best audio stream as mp3, without the proxy.
func (e *YtDlpExtractor) download(ctx context.Context, url, mediaID, tempDir string) (string, error) {
	outputTemplate := filepath.Join(tempDir, mediaID+".%(ext)s")
	args := []string{
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", "128K",
		"--no-warnings",
		"-o", outputTemplate,
		url,
	}

	if out, err := e.run(ctx, e.cfg.YtDlpPath, args...); err != nil {
		return "", domain.WrapPipelineError(
			domain.ErrorKindDownload,
			fmt.Sprintf("failed to download media: %s", strings.TrimSpace(string(out))),
			err,
		)
	}

	path := filepath.Join(tempDir, mediaID+".mp3")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	// Post-processing may have kept another container.
	for _, ext := range []string{"m4a", "mp4", "webm"} {
		alt := filepath.Join(tempDir, mediaID+"."+ext)
		if _, err := os.Stat(alt); err == nil {
			return alt, nil
		}
	}

	return "", domain.NewPipelineError(domain.ErrorKindDownload, "audio file not found after extraction")
}

// trim cuts the clip down to clipSeconds with ffmpeg. Trimming is best
// effort: on any failure the full-length file is used instead.
func (e *YtDlpExtractor) trim(ctx context.Context, path string, clipSeconds int) string {
	ext := filepath.Ext(path)
	trimmed := strings.TrimSuffix(path, ext) + "_trimmed" + ext

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", path,
		"-t", strconv.Itoa(clipSeconds),
		"-acodec", "copy",
		trimmed,
	}

	if out, err := e.run(ctx, e.cfg.FFmpegPath, args...); err != nil {
		e.logger.Warn("audio trim failed, using full clip",
			"error", err,
			"output", strings.TrimSpace(string(out)))
		return path
	}

	if _, err := os.Stat(trimmed); err != nil {
		e.logger.Warn("trimmed file missing, using full clip", "path", trimmed)
		return path
	}

	if err := os.Remove(path); err != nil {
		e.logger.Warn("failed to remove untrimmed audio file", "path", path, "error", err)
	}
	return trimmed
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
