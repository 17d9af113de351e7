package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultSimURL is the default base URL of the local sim telemetry API.
	DefaultSimURL = "http://localhost:6397"

	// DefaultBackendURL is the default base URL of the leaderboard backend.
	DefaultBackendURL = "http://localhost:8000"

	// DefaultPollInterval is the default telemetry polling interval.
	DefaultPollInterval = time.Second
)

// Config is the root configuration for laptrack.
type Config struct {
	Global GlobalConfig  `yaml:"global"`
	Client *ClientConfig `yaml:"client,omitempty"`
	API    *APIConfig    `yaml:"api,omitempty"`
}

// GlobalConfig contains settings shared by all commands.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level"`
}

// ClientConfig contains settings for the recording client.
type ClientConfig struct {
	SimURL       string `yaml:"sim_url"`
	BackendURL   string `yaml:"backend_url"`
	Token        string `yaml:"token"`
	PollInterval string `yaml:"poll_interval,omitempty"`
	ApplySession bool   `yaml:"apply_session"`
}

// Load reads and parses a configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Client != nil {
		if c.Client.SimURL == "" {
			c.Client.SimURL = DefaultSimURL
		}

		if c.Client.BackendURL == "" {
			c.Client.BackendURL = DefaultBackendURL
		}
	}

	if c.API != nil {
		c.API.applyDefaults()
	}
}

// PollIntervalDuration returns the configured polling interval or the default.
func (c *ClientConfig) PollIntervalDuration() (time.Duration, error) {
	if c.PollInterval == "" {
		return DefaultPollInterval, nil
	}

	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("parsing poll_interval: %w", err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("poll_interval must be positive")
	}

	return d, nil
}

// ValidateClient checks the client section for errors.
func (c *Config) ValidateClient() error {
	if c.Client == nil {
		return fmt.Errorf("client section is required")
	}

	if _, err := c.Client.PollIntervalDuration(); err != nil {
		return err
	}

	return nil
}
