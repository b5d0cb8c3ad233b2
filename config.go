package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/readwell/narrate/narrate"
)

// config holds the runtime settings for a reading session. Values come from
// the environment first, then the config file; flags override both.
type config struct {
	// Endpoint is the synthesis service URL.
	Endpoint string `env:"NARRATE_ENDPOINT" envDefault:"https://tts.readwell.dev/v1/synthesize"`
	// Voice is the narration voice, or "local" for on-device synthesis.
	Voice string `env:"NARRATE_VOICE"`
	// Rate is the playback rate multiplier.
	Rate float64 `env:"NARRATE_RATE" envDefault:"1.0"`
	// Pitch is the on-device synthesizer pitch, 0 to 99.
	Pitch int `env:"NARRATE_PITCH" envDefault:"50"`
	// QuotaLimit is the monthly network character budget.
	QuotaLimit int `env:"NARRATE_QUOTA_LIMIT" envDefault:"1000000"`
	// CacheDir overrides where synthesized audio is cached.
	CacheDir string `env:"NARRATE_CACHE_DIR"`
	// CacheMB caps the synthesis cache size, in megabytes.
	CacheMB int `env:"NARRATE_CACHE_MB" envDefault:"256"`
	// Debug enables debug logging to the log file.
	Debug bool `env:"NARRATE_DEBUG"`
	// LogFile overrides the debug log destination.
	LogFile string `env:"NARRATE_LOGFILE"`
}

// loadConfig builds the session config from environment and config file.
func loadConfig() (config, error) {
	cfg, err := env.ParseAs[config]()
	if err != nil {
		return cfg, fmt.Errorf("error parsing environment: %w", err)
	}

	if v := viper.GetString("endpoint"); v != "" {
		cfg.Endpoint = v
	}
	if v := viper.GetString("voice"); v != "" {
		cfg.Voice = v
	}
	if v := viper.GetFloat64("rate"); v != 0 {
		cfg.Rate = v
	}
	if viper.IsSet("pitch") {
		cfg.Pitch = viper.GetInt("pitch")
	}
	if v := viper.GetInt("quota.limit"); v != 0 {
		cfg.QuotaLimit = v
	}
	if v := viper.GetString("cache.dir"); v != "" {
		cfg.CacheDir = v
	}
	if v := viper.GetInt("cache.max_size"); v != 0 {
		cfg.CacheMB = v
	}

	if cfg.Voice == "" {
		cfg.Voice = narrate.DefaultVoice
	}
	if cfg.CacheDir == "" {
		dir, err := scope.CacheDir()
		if err != nil {
			return cfg, fmt.Errorf("error resolving cache dir: %w", err)
		}
		cfg.CacheDir = filepath.Join(dir, "synthesis")
	}

	return cfg, validateConfig(cfg)
}

func validateConfig(cfg config) error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("synthesis endpoint must not be empty")
	}
	if cfg.Rate < narrate.MinRate || cfg.Rate > narrate.MaxRate {
		return fmt.Errorf("rate must be between %.1f and %.1f, got %.2f", narrate.MinRate, narrate.MaxRate, cfg.Rate)
	}
	if cfg.Pitch < 0 || cfg.Pitch > 99 {
		return fmt.Errorf("pitch must be between 0 and 99, got %d", cfg.Pitch)
	}
	if cfg.QuotaLimit < 1 {
		return fmt.Errorf("quota limit must be positive, got %d", cfg.QuotaLimit)
	}
	if cfg.CacheMB < 1 || cfg.CacheMB > 10000 {
		return fmt.Errorf("cache max_size must be between 1 and 10000 MB, got %d", cfg.CacheMB)
	}
	return nil
}

// setupLog routes logging away from the terminal the reader draws on. With
// debugging on, logs go to a file under the data dir.
func setupLog() (func() error, error) {
	cfg, err := env.ParseAs[config]()
	if err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}

	if !cfg.Debug && cfg.LogFile == "" {
		log.SetOutput(io.Discard)
		return func() error { return nil }, nil
	}

	path := cfg.LogFile
	if path == "" {
		path, err = scope.LogPath("narrate.log")
		if err != nil {
			return nil, fmt.Errorf("error resolving log path: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("error creating log dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}

	log.SetOutput(f)
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	return f.Close, nil
}
