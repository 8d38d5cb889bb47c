// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the client configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Playback PlaybackConfig `yaml:"playback"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig locates the library server and its push channel.
type ServerConfig struct {
	BaseURL string `yaml:"base_url" validate:"required,url"`
	WSPath  string `yaml:"ws_path" default:"/api/ws"`
	Token   string `yaml:"token"`
}

// PlaybackConfig tunes the engine.
type PlaybackConfig struct {
	TickIntervalMs   int `yaml:"tick_interval_ms" default:"250" validate:"gte=50,lte=5000"`
	ReconnectDelayMs int `yaml:"reconnect_delay_ms" default:"1000" validate:"gte=100,lte=60000"`
	DefaultVolume    int `yaml:"default_volume" default:"20" validate:"gte=0,lte=100"`
}

// StorageConfig locates the local snapshot store.
type StorageConfig struct {
	Path string `yaml:"path" default:"cuebox.db"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Output string `yaml:"output" default:"stdout"`
	Level  string `yaml:"level" default:"info"`
}

// TickInterval returns the tick interval as a duration.
func (p PlaybackConfig) TickInterval() time.Duration {
	return time.Duration(p.TickIntervalMs) * time.Millisecond
}

// ReconnectDelay returns the reconnect backoff as a duration.
func (p PlaybackConfig) ReconnectDelay() time.Duration {
	return time.Duration(p.ReconnectDelayMs) * time.Millisecond
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive
// fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv applies environment variable overrides.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("CUEBOX_SERVER_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("CUEBOX_TOKEN"); v != "" {
		c.Server.Token = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}
