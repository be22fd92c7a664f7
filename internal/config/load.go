package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// envPrefix is the prefix for all environment variables consumed by the
// service, e.g. REELSONG_SERVER_PORT maps to server.port.
const envPrefix = "REELSONG"

// Load reads configuration from environment variables and an optional config
// file. Environment variables take precedence over values from the file.
// Returns a populated Config struct or an error if loading/validation fails.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		// A config file is optional when everything comes from the environment.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers default values for all optional settings.
// Retry ceilings and delays default to the values the pipeline was tuned
// with: 10 extraction-internal attempts, 3 pipeline re-queues, 5s delays.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")

	// Empty defaults register the keys with viper so AutomaticEnv can fill
	// them during Unmarshal.
	v.SetDefault("database.url", "")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl_seconds", 300)

	v.SetDefault("extraction.ytdlp_path", "yt-dlp")
	v.SetDefault("extraction.ffmpeg_path", "ffmpeg")
	v.SetDefault("extraction.temp_dir", "")
	v.SetDefault("extraction.proxy", "")
	v.SetDefault("extraction.clip_seconds", 10)
	v.SetDefault("extraction.max_attempts", 10)
	v.SetDefault("extraction.retry_delay_seconds", 5)

	v.SetDefault("recognition.api_key", "")
	v.SetDefault("recognition.api_host", "shazam-song-recognition-api.p.rapidapi.com")
	v.SetDefault(
		"recognition.endpoint",
		"https://shazam-song-recognition-api.p.rapidapi.com/recognize/file",
	)
	v.SetDefault("recognition.timeout_seconds", 60)

	v.SetDefault("task.worker_count", 2)
	v.SetDefault("task.queue_size", 100)
	v.SetDefault("task.max_attempts", 3)
	v.SetDefault("task.retry_delay_seconds", 5)
	v.SetDefault("task.stuck_task_age_seconds", 1800)
}
