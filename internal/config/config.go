package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"      validate:"required"`
	Database    DatabaseConfig    `mapstructure:"database"    validate:"required"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Extraction  ExtractionConfig  `mapstructure:"extraction"  validate:"required"`
	Recognition RecognitionConfig `mapstructure:"recognition" validate:"required"`
	Task        TaskConfig        `mapstructure:"task"        validate:"required"`
}

// ServerConfig contains all HTTP server related configuration settings.
type ServerConfig struct {
	Port      int    `mapstructure:"port"       validate:"required,gt=0,lt=65536"`
	LogLevel  string `mapstructure:"log_level"  validate:"required,oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"required,oneof=json text"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// CacheConfig contains settings for the optional Redis result cache.
// When Enabled is false the service runs against the database alone.
type CacheConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	RedisURL   string `mapstructure:"redis_url"   validate:"required_if=Enabled true"`
	TTLSeconds int    `mapstructure:"ttl_seconds" validate:"gte=0"`
}

// TTL returns the cache entry lifetime as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// ExtractionConfig contains settings for the audio extraction collaborator.
type ExtractionConfig struct {
	YtDlpPath         string `mapstructure:"ytdlp_path"          validate:"required"`
	FFmpegPath        string `mapstructure:"ffmpeg_path"         validate:"required"`
	TempDir           string `mapstructure:"temp_dir"`
	Proxy             string `mapstructure:"proxy"`
	ClipSeconds       int    `mapstructure:"clip_seconds"        validate:"required,gt=0"`
	MaxAttempts       int    `mapstructure:"max_attempts"        validate:"required,gt=0"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=0"`
}

// RetryDelay returns the delay between extraction attempts as a duration.
func (c ExtractionConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// RecognitionConfig contains settings for the song recognition collaborator.
type RecognitionConfig struct {
	APIKey         string `mapstructure:"api_key"         validate:"required"`
	APIHost        string `mapstructure:"api_host"        validate:"required"`
	Endpoint       string `mapstructure:"endpoint"        validate:"required,url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"required,gt=0"`
}

// Timeout returns the recognition request timeout as a duration.
func (c RecognitionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TaskConfig contains settings for the background identification pipeline.
type TaskConfig struct {
	WorkerCount         int `mapstructure:"worker_count"           validate:"required,gt=0"`
	QueueSize           int `mapstructure:"queue_size"             validate:"required,gt=0"`
	MaxAttempts         int `mapstructure:"max_attempts"           validate:"required,gt=0"`
	RetryDelaySeconds   int `mapstructure:"retry_delay_seconds"    validate:"gte=0"`
	StuckTaskAgeSeconds int `mapstructure:"stuck_task_age_seconds" validate:"required,gt=0"`
}

// RetryDelay returns the delay before a failed pipeline run is re-queued.
func (c TaskConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// StuckTaskAge returns how long a task may sit in processing before it is
// reset for another run.
func (c TaskConfig) StuckTaskAge() time.Duration {
	return time.Duration(c.StuckTaskAgeSeconds) * time.Second
}
