// Package config loads engine settings from a YAML file, the
// environment, and built-in defaults, in that order of increasing
// precedence for env over file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds everything the engine needs at startup. Durations are
// parsed from Go duration strings ("5m", "30s").
type Config struct {
	CloudURL   string `mapstructure:"cloud_url"`
	CloudToken string `mapstructure:"cloud_token"`
	UserID     string `mapstructure:"user_id"`
	DeviceID   string `mapstructure:"device_id"`
	DataDir    string `mapstructure:"data_dir"`

	SyncInterval   time.Duration `mapstructure:"sync_interval"`
	ProbeInterval  time.Duration `mapstructure:"probe_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	BatchSize      int           `mapstructure:"batch_size"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	PullWindowDays int           `mapstructure:"pull_window_days"`

	DashboardPort int    `mapstructure:"dashboard_port"`
	LogFile       string `mapstructure:"log_file"`
}

// DatabasePath returns the SQLite file location under DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "habitloop.db")
}

func (c *Config) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if c.CloudURL == "" {
		return fmt.Errorf("cloud_url is required")
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".habitloop"
	}
	return filepath.Join(home, ".habitloop")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("sync_interval", "5m")
	v.SetDefault("probe_interval", "30s")
	v.SetDefault("request_timeout", "15s")
	v.SetDefault("batch_size", 50)
	v.SetDefault("max_attempts", 8)
	v.SetDefault("pull_window_days", 90)
	v.SetDefault("dashboard_port", 4747)
}

// Load reads the config file at path, or the default location when
// path is empty. Environment variables prefixed HABITLOOP_ override
// file values (HABITLOOP_CLOUD_URL, HABITLOOP_USER_ID, ...). A missing
// file is not an error; defaults and env still apply.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("habitloop")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultDataDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, v, nil
}

// Watch reloads cfg from v whenever the config file changes on disk and
// calls onChange with the fresh value. Reload failures keep the old
// config and report through onError.
func Watch(v *viper.Viper, onChange func(*Config), onError func(error)) {
	v.OnConfigChange(func(fsnotify.Event) {
		cfg := &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			onError(fmt.Errorf("reload config: %w", err))
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

// starterConfig is what `habitloop init` writes. Kept as a plain map so
// the file carries only the keys a new user should look at.
type starterConfig struct {
	CloudURL     string `yaml:"cloud_url"`
	CloudToken   string `yaml:"cloud_token"`
	UserID       string `yaml:"user_id"`
	DeviceID     string `yaml:"device_id"`
	DataDir      string `yaml:"data_dir"`
	SyncInterval string `yaml:"sync_interval"`
}

// WriteDefault creates a starter config file at path with a fresh
// device id. Fails if the file already exists.
func WriteDefault(path, userID string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	starter := starterConfig{
		CloudURL:     "https://cloud.habitloop.dev",
		UserID:       userID,
		DeviceID:     uuid.NewString(),
		DataDir:      defaultDataDir(),
		SyncInterval: "5m",
	}
	data, err := yaml.Marshal(starter)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
