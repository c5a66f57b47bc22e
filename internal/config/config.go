// Package config loads the application configuration.
//
// Sources, in increasing precedence: built-in defaults, the config file at
// ~/.config/masternote/config.yaml, then MN_* environment variables
// (MN_SUPABASE_URL overrides supabase.url, and so on).
package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config is the resolved application configuration.
type Config struct {
	DataDir string `mapstructure:"data_dir"`

	Supabase struct {
		URL     string `mapstructure:"url"`
		AnonKey string `mapstructure:"anon_key"`
		UserID  string `mapstructure:"user_id"`
	} `mapstructure:"supabase"`

	AI struct {
		Provider     string `mapstructure:"provider"` // openai or anthropic
		Model        string `mapstructure:"model"`
		OpenAIKey    string `mapstructure:"openai_key"`
		AnthropicKey string `mapstructure:"anthropic_key"`
		BaseURL      string `mapstructure:"base_url"`
	} `mapstructure:"ai"`

	Dashboard struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"dashboard"`

	Sync struct {
		// IntervalSeconds between outbox drains in the daemon.
		IntervalSeconds int `mapstructure:"interval_seconds"`
	} `mapstructure:"sync"`

	Log struct {
		File       string `mapstructure:"file"`
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
		MaxAgeDays int    `mapstructure:"max_age_days"`
	} `mapstructure:"log"`
}

// Dir returns the configuration directory, honoring XDG_CONFIG_HOME.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "masternote")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".masternote"
	}
	return filepath.Join(home, ".config", "masternote")
}

// Load reads the configuration. A missing config file is not an error;
// defaults and environment variables still apply.
func Load() (*Config, error) {
	return load(Dir())
}

func load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix("MN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv alone is not enough for Unmarshal: keys with neither a
	// default nor a config-file entry are invisible to it, so an env-only
	// setup (MN_SUPABASE_URL and friends with no config file) would come
	// back empty. Bind every key explicitly.
	for _, key := range []string{
		"data_dir",
		"supabase.url", "supabase.anon_key", "supabase.user_id",
		"ai.provider", "ai.model", "ai.openai_key", "ai.anthropic_key", "ai.base_url",
		"dashboard.port",
		"sync.interval_seconds",
		"log.file", "log.max_size_mb", "log.max_backups", "log.max_age_days",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	v.SetDefault("data_dir", filepath.Join(dir, "data"))
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("dashboard.port", 8420)
	v.SetDefault("sync.interval_seconds", 30)
	v.SetDefault("log.file", filepath.Join(dir, "masternote.log"))
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 30)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Save writes the given keys back to the config file, creating it if needed.
func Save(values map[string]any) error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	for key, val := range values {
		v.Set(key, val)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// NewLogger builds the application logger, tee'd to the rotating log file.
// With quiet set, output goes only to the file.
func (c *Config) NewLogger(quiet bool) *log.Logger {
	rotator := &lumberjack.Logger{
		Filename:   c.Log.File,
		MaxSize:    c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAgeDays,
		Compress:   true,
	}
	var out io.Writer = rotator
	if !quiet {
		out = io.MultiWriter(os.Stderr, rotator)
	}
	return log.New(out, "", log.LstdFlags)
}

// DatabasePath returns the SQLite file path inside the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "masternote.db")
}
