package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Viewer  ViewerConfig
	Image   ImageConfig
	Logging LogConfig
}

// ServerConfig holds HTTP front-end configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// ViewerConfig holds per-session protocol tunables.
type ViewerConfig struct {
	StartPage         string        `envconfig:"START_PAGE" default:"about:blank"`
	MaxSessions       int           `envconfig:"MAX_SESSIONS" default:"32"`
	InactivityTimeout time.Duration `envconfig:"INACTIVITY_TIMEOUT" default:"30s"`
	CloseGracePeriod  time.Duration `envconfig:"CLOSE_GRACE_PERIOD" default:"4s"`
	DownloadTTL       time.Duration `envconfig:"DOWNLOAD_TTL" default:"10s"`
}

// ImageConfig holds image pipeline configuration.
type ImageConfig struct {
	Quality     int           `envconfig:"IMAGE_QUALITY" default:"80"`
	AllowPNG    bool          `envconfig:"IMAGE_ALLOW_PNG" default:"true"`
	SendTimeout time.Duration `envconfig:"IMAGE_SEND_TIMEOUT" default:"2s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
		Viewer: ViewerConfig{
			StartPage:         "about:blank",
			MaxSessions:       32,
			InactivityTimeout: 30 * time.Second,
			CloseGracePeriod:  4 * time.Second,
			DownloadTTL:       10 * time.Second,
		},
		Image: ImageConfig{
			Quality:     80,
			AllowPNG:    true,
			SendTimeout: 2 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Viewer.MaxSessions <= 0 {
		return fmt.Errorf("MAX_SESSIONS must be positive, got %d", c.Viewer.MaxSessions)
	}
	maxQuality := 100
	if c.Image.AllowPNG {
		maxQuality = 101
	}
	if c.Image.Quality < 1 || c.Image.Quality > maxQuality {
		return fmt.Errorf("IMAGE_QUALITY must be in [1, %d], got %d", maxQuality, c.Image.Quality)
	}
	if c.Viewer.InactivityTimeout <= c.Viewer.CloseGracePeriod {
		return fmt.Errorf("INACTIVITY_TIMEOUT must exceed CLOSE_GRACE_PERIOD")
	}
	return nil
}
