// Package config loads the console configuration from a YAML file,
// PARKWATCH_* environment variables and command-line overrides, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const appDirName = "parkwatch"

type Config struct {
	APIURL         string        `yaml:"api_url"`
	WSURL          string        `yaml:"ws_url"`
	StateDir       string        `yaml:"state_dir"`
	LogLevel       string        `yaml:"log_level"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Poll           PollConfig    `yaml:"poll"`
	Stream         StreamConfig  `yaml:"stream"`
}

type PollConfig struct {
	Interval    time.Duration `yaml:"interval"`
	EventsLimit int           `yaml:"events_limit"`
}

type StreamConfig struct {
	ReconnectBase time.Duration `yaml:"reconnect_base"`
	ReconnectMax  time.Duration `yaml:"reconnect_max"`
	PingInterval  time.Duration `yaml:"ping_interval"`
	PongTimeout   time.Duration `yaml:"pong_timeout"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		APIURL:         "http://localhost:8000",
		LogLevel:       "info",
		RequestTimeout: 10 * time.Second,
		Poll: PollConfig{
			Interval:    15 * time.Second,
			EventsLimit: 50,
		},
		Stream: StreamConfig{
			ReconnectBase: time.Second,
			ReconnectMax:  30 * time.Second,
			PingInterval:  30 * time.Second,
			PongTimeout:   60 * time.Second,
		},
	}
}

// Load reads the YAML file at path over the defaults and applies
// environment overrides. A missing file is not an error; an empty path
// selects DefaultPath.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.APIURL = envOrDefault("PARKWATCH_API_URL", c.APIURL)
	c.WSURL = envOrDefault("PARKWATCH_WS_URL", c.WSURL)
	c.StateDir = envOrDefault("PARKWATCH_STATE_DIR", c.StateDir)
	c.LogLevel = envOrDefault("PARKWATCH_LOG_LEVEL", c.LogLevel)
}

// Finalize fills derived fields and validates the result. It must be
// called again after flag overrides are applied.
func (c *Config) Finalize() error {
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}
	if c.WSURL == "" {
		ws, err := DeriveWSURL(c.APIURL)
		if err != nil {
			return fmt.Errorf("deriving ws_url: %w", err)
		}
		c.WSURL = ws
	}
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir()
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive, got %v", c.Poll.Interval)
	}
	if c.Poll.EventsLimit <= 0 {
		c.Poll.EventsLimit = 50
	}
	if c.Stream.ReconnectBase <= 0 || c.Stream.ReconnectMax < c.Stream.ReconnectBase {
		return fmt.Errorf("stream reconnect bounds invalid: base=%v max=%v",
			c.Stream.ReconnectBase, c.Stream.ReconnectMax)
	}
	return nil
}

// DeriveWSURL converts http://host:port/prefix → ws://host:port/ws.
func DeriveWSURL(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("no host in %q", apiURL)
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/ws", scheme, u.Host), nil
}

// DefaultPath returns ~/.config/parkwatch/config.yaml, respecting
// XDG_CONFIG_HOME.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appDirName, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", appDirName, "config.yaml")
}

// DefaultStateDir returns ~/.local/state/parkwatch, respecting
// XDG_STATE_HOME.
func DefaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appDirName)
	}
	return filepath.Join(home, ".local", "state", appDirName)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
