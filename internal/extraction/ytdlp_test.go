package extraction

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelsong/reelsong-api/internal/config"
	"github.com/reelsong/reelsong-api/internal/domain"
)

const testURL = "https://www.instagram.com/reel/ABC123/"

// commandLog records every invocation routed through the fake runner.
type commandLog struct {
	mu    sync.Mutex
	calls [][]string
}

func (l *commandLog) record(name string, args []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, append([]string{name}, args...))
}

// probeCalls counts yt-dlp metadata probe invocations.
func (l *commandLog) probeCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, call := range l.calls {
		for _, arg := range call {
			if arg == "--dump-single-json" {
				n++
				break
			}
		}
	}
	return n
}

func testConfig(tempDir string) config.ExtractionConfig {
	return config.ExtractionConfig{
		YtDlpPath:         "yt-dlp",
		FFmpegPath:        "ffmpeg",
		TempDir:           tempDir,
		ClipSeconds:       10,
		MaxAttempts:       3,
		RetryDelaySeconds: 0,
	}
}

func hasArg(args []string, want string) bool {
	for _, arg := range args {
		if arg == want {
			return true
		}
	}
	return false
}

// happyRunner simulates a successful probe, download and trim sequence,
// creating the files the real tools would leave behind.
func happyRunner(t *testing.T, tempDir string, log *commandLog) CommandRunner {
	t.Helper()

	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		log.record(name, args)

		switch {
		case name == "yt-dlp" && hasArg(args, "--dump-single-json"):
			return []byte(`{"id": "ABC123", "title": "some reel"}`), nil

		case name == "yt-dlp":
			path := filepath.Join(tempDir, "ABC123.mp3")
			require.NoError(t, os.WriteFile(path, []byte("full audio"), 0o644))
			return []byte("done"), nil

		case name == "ffmpeg":
			out := args[len(args)-1]
			require.NoError(t, os.WriteFile(out, []byte("trimmed"), 0o644))
			return nil, nil

		default:
			return nil, errors.New("unexpected command: " + name)
		}
	}
}

func TestExtractSuccessWithTrim(t *testing.T) {
	tempDir := t.TempDir()
	log := &commandLog{}

	e := NewYtDlpExtractor(testConfig(tempDir), slog.Default()).
		WithCommandRunner(happyRunner(t, tempDir, log))

	clip, err := e.Extract(context.Background(), testURL, 10)
	require.NoError(t, err)

	assert.Equal(t, "ABC123", clip.MediaID)
	assert.True(t, strings.HasSuffix(clip.Path, "ABC123_trimmed.mp3"))

	_, err = os.Stat(clip.Path)
	assert.NoError(t, err, "trimmed clip should exist")

	_, err = os.Stat(filepath.Join(tempDir, "ABC123.mp3"))
	assert.True(t, os.IsNotExist(err), "untrimmed file should be removed after a successful trim")

	assert.Equal(t, 1, log.probeCalls())
}

func TestExtractTrimFailureFallsBackToFullClip(t *testing.T) {
	tempDir := t.TempDir()
	log := &commandLog{}

	run := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		log.record(name, args)
		switch {
		case name == "yt-dlp" && hasArg(args, "--dump-single-json"):
			return []byte(`{"id": "ABC123"}`), nil
		case name == "yt-dlp":
			path := filepath.Join(tempDir, "ABC123.mp3")
			require.NoError(t, os.WriteFile(path, []byte("full audio"), 0o644))
			return nil, nil
		default:
			return []byte("codec error"), errors.New("exit status 1")
		}
	}

	e := NewYtDlpExtractor(testConfig(tempDir), slog.Default()).WithCommandRunner(run)

	clip, err := e.Extract(context.Background(), testURL, 10)
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(clip.Path, "ABC123.mp3"), "full clip should be used when trimming fails")
	_, err = os.Stat(clip.Path)
	assert.NoError(t, err)
}

func TestExtractContentNotFoundFailsImmediately(t *testing.T) {
	tempDir := t.TempDir()
	log := &commandLog{}

	run := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		log.record(name, args)
		return []byte("ERROR: HTTP Error 404: Not Found"), errors.New("exit status 1")
	}

	e := NewYtDlpExtractor(testConfig(tempDir), slog.Default()).WithCommandRunner(run)

	_, err := e.Extract(context.Background(), testURL, 10)
	require.Error(t, err)

	kind, retryable := domain.Classify(err)
	assert.Equal(t, domain.ErrorKindContentNotFound, kind)
	assert.False(t, retryable)
	assert.Equal(t, 1, log.probeCalls(), "missing content must not be retried")
}

func TestExtractPrivateAccountAfterExhaustedAttempts(t *testing.T) {
	tempDir := t.TempDir()
	log := &commandLog{}

	run := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		log.record(name, args)
		return []byte("ERROR: login required to access this content"), errors.New("exit status 1")
	}

	e := NewYtDlpExtractor(testConfig(tempDir), slog.Default()).WithCommandRunner(run)

	_, err := e.Extract(context.Background(), testURL, 10)
	require.Error(t, err)

	kind, retryable := domain.Classify(err)
	assert.Equal(t, domain.ErrorKindPrivateAccount, kind)
	assert.False(t, retryable)
	assert.Equal(t, 3, log.probeCalls(), "access failures retry up to the attempt ceiling")
}

func TestExtractGenericProbeFailure(t *testing.T) {
	tempDir := t.TempDir()
	log := &commandLog{}

	run := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		log.record(name, args)
		return []byte("ERROR: connection reset by peer"), errors.New("exit status 1")
	}

	e := NewYtDlpExtractor(testConfig(tempDir), slog.Default()).WithCommandRunner(run)

	_, err := e.Extract(context.Background(), testURL, 10)
	require.Error(t, err)

	kind, retryable := domain.Classify(err)
	assert.Equal(t, domain.ErrorKindDownload, kind)
	assert.True(t, retryable)
	assert.Equal(t, 3, log.probeCalls())
}

func TestExtractRejectsUnsupportedURL(t *testing.T) {
	tempDir := t.TempDir()
	log := &commandLog{}

	run := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		log.record(name, args)
		return nil, nil
	}

	e := NewYtDlpExtractor(testConfig(tempDir), slog.Default()).WithCommandRunner(run)

	_, err := e.Extract(context.Background(), "https://www.instagram.com/reels/audio/12345/", 10)
	require.Error(t, err)

	kind, _ := domain.Classify(err)
	assert.Equal(t, domain.ErrorKindInvalidURL, kind)
	assert.Empty(t, log.calls, "no external command should run for a rejected URL")
}

func TestExtractProxyOnlyOnProbe(t *testing.T) {
	tempDir := t.TempDir()
	log := &commandLog{}

	cfg := testConfig(tempDir)
	cfg.Proxy = "http://proxy.example:8080"

	e := NewYtDlpExtractor(cfg, slog.Default()).WithCommandRunner(happyRunner(t, tempDir, log))

	_, err := e.Extract(context.Background(), testURL, 10)
	require.NoError(t, err)

	for _, call := range log.calls {
		isProbe := hasArg(call, "--dump-single-json")
		hasProxy := hasArg(call, "--proxy")
		if isProbe {
			assert.True(t, hasProxy, "metadata probe should go through the proxy")
		} else if call[0] == "yt-dlp" {
			assert.False(t, hasProxy, "media download should run direct")
		}
	}
}

func TestAudioClipCleanup(t *testing.T) {
	t.Run("removes existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "clip.mp3")
		require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))

		clip := &AudioClip{Path: path, MediaID: "X"}
		require.NoError(t, clip.Cleanup())

		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("missing file is not an error", func(t *testing.T) {
		clip := &AudioClip{Path: filepath.Join(t.TempDir(), "gone.mp3"), MediaID: "X"}
		assert.NoError(t, clip.Cleanup())
	})

	t.Run("nil clip is safe", func(t *testing.T) {
		var clip *AudioClip
		assert.NoError(t, clip.Cleanup())
	})
}
