package client

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Default client settings.
const (
	DefaultServerURL      = "http://localhost:8080"
	DefaultPollInterval   = 2 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// Config holds the paperctl settings read from a TOML file.
type Config struct {
	ServerURL      string `toml:"server_url"`
	PollInterval   string `toml:"poll_interval"`
	RequestTimeout string `toml:"request_timeout"`
	StateFile      string `toml:"state_file"`

	// Parsed forms of the duration strings, filled by LoadConfig.
	Poll    time.Duration `toml:"-"`
	Timeout time.Duration `toml:"-"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		ServerURL:      DefaultServerURL,
		PollInterval:   DefaultPollInterval.String(),
		RequestTimeout: DefaultRequestTimeout.String(),
		StateFile:      "~/.local/share/audiopaper/pending.db",
	}
}

// LoadConfig reads the TOML file at path over the defaults. An empty path
// means ~/.config/audiopaper/client.toml; a missing default file is not an
// error, but a missing explicit path is.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = "~/.config/audiopaper/client.toml"
	}
	resolved, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.ServerURL = strings.TrimRight(strings.TrimSpace(c.ServerURL), "/")
	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid server_url %q", c.ServerURL)
	}

	if c.Poll, err = parseDuration("poll_interval", c.PollInterval, DefaultPollInterval); err != nil {
		return err
	}
	if c.Timeout, err = parseDuration("request_timeout", c.RequestTimeout, DefaultRequestTimeout); err != nil {
		return err
	}

	if c.StateFile == "" {
		c.StateFile = DefaultConfig().StateFile
	}
	if c.StateFile, err = ExpandPath(c.StateFile); err != nil {
		return err
	}
	return nil
}

func parseDuration(key, value string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return filepath.Clean(path), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
