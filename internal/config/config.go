// Package config loads marketdesk's settings from a YAML file, an optional
// .env file and MARKETDESK_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"marketdesk/internal/hub"
)

// Environment variables that override the file.
const (
	EnvHubURL      = "MARKETDESK_HUB_URL"
	EnvLogLevel    = "MARKETDESK_LOG_LEVEL"
	EnvLogFile     = "MARKETDESK_LOG_FILE"
	EnvMetricsAddr = "MARKETDESK_METRICS_ADDR"
	EnvDataDir     = "MARKETDESK_DATA_DIR"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultRPS          = 5
	defaultBurst        = 10
	defaultPageSize     = 30
	defaultHistoryLimit = 50
	defaultMaxMessages  = 1000
)

// Config is the whole file.
type Config struct {
	Hub     HubConfig     `yaml:"hub"`
	Inbox   InboxConfig   `yaml:"inbox"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	DataDir string        `yaml:"data_dir"`
}

type HubConfig struct {
	BaseURL   string          `yaml:"base_url"`
	Timeout   Duration        `yaml:"timeout"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig bounds outbound requests to the hub.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type InboxConfig struct {
	PageSize     int `yaml:"page_size"`
	HistoryLimit int `yaml:"history_limit"`
	MaxMessages  int `yaml:"max_messages"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Duration is a time.Duration that parses from "30s" strings or plain
// numbers of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// DefaultDataDir is ~/.config/marketdesk.
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "marketdesk")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "marketdesk")
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

// Loader reads configuration through an afero filesystem so tests can use
// an in-memory one. Getenv defaults to os.Getenv.
type Loader struct {
	Fs     afero.Fs
	Getenv func(string) string
}

// Load reads path (a missing file is fine, defaults apply), then .env in
// the working directory, then the environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	return Loader{Fs: afero.NewOsFs(), Getenv: os.Getenv}.Load(path)
}

// Load is the filesystem-agnostic body of the package-level Load.
func (l Loader) Load(path string) (*Config, error) {
	getenv := l.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	var cfg Config
	b, err := afero.ReadFile(l.Fs, path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config file not found: %s", path)
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv(getenv)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnvFile merges KEY=VALUE pairs from an env file on fs into a lookup
// that falls back to getenv. Values already in the environment win, as with
// godotenv.Load.
func LoadEnvFile(fs afero.Fs, path string, getenv func(string) string) (func(string) string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vals, err := godotenv.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return func(k string) string {
		if v := getenv(k); v != "" {
			return v
		}
		return vals[k]
	}, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvHubURL); v != "" {
		c.Hub.BaseURL = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := getenv(EnvLogFile); v != "" {
		c.Log.File = v
	}
	if v := getenv(EnvMetricsAddr); v != "" {
		c.Metrics.Addr = v
	}
	if v := getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
}

func (c *Config) applyDefaults() {
	if c.Hub.BaseURL == "" {
		c.Hub.BaseURL = hub.DefaultBaseURL
	}
	if c.Hub.Timeout == 0 {
		c.Hub.Timeout = Duration(defaultTimeout)
	}
	if c.Hub.RateLimit.RPS == 0 {
		c.Hub.RateLimit.RPS = defaultRPS
	}
	if c.Hub.RateLimit.Burst == 0 {
		c.Hub.RateLimit.Burst = defaultBurst
	}
	if c.Inbox.PageSize == 0 {
		c.Inbox.PageSize = defaultPageSize
	}
	if c.Inbox.HistoryLimit == 0 {
		c.Inbox.HistoryLimit = defaultHistoryLimit
	}
	if c.Inbox.MaxMessages == 0 {
		c.Inbox.MaxMessages = defaultMaxMessages
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
	if c.Log.File == "" {
		c.Log.File = filepath.Join(c.DataDir, "marketdesk.log")
	}
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.Hub.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("hub.base_url %q is not an http(s) URL", c.Hub.BaseURL))
	}
	if c.Hub.Timeout.Duration() < 0 {
		errs = append(errs, fmt.Errorf("hub.timeout must not be negative"))
	}
	if c.Hub.RateLimit.RPS < 0 || c.Hub.RateLimit.Burst < 0 {
		errs = append(errs, fmt.Errorf("hub.rate_limit values must not be negative"))
	}
	if c.Inbox.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("inbox.page_size must be positive, got %d", c.Inbox.PageSize))
	}
	if c.Inbox.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("inbox.history_limit must be positive, got %d", c.Inbox.HistoryLimit))
	}
	if c.Inbox.MaxMessages <= 0 {
		errs = append(errs, fmt.Errorf("inbox.max_messages must be positive, got %d", c.Inbox.MaxMessages))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// DBPath is the session database inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "marketdesk.db")
}

// HubOptions converts the hub section for hub.New.
func (c *Config) HubOptions() hub.Options {
	return hub.Options{
		BaseURL: c.Hub.BaseURL,
		Timeout: c.Hub.Timeout.Duration(),
		RPS:     c.Hub.RateLimit.RPS,
		Burst:   c.Hub.RateLimit.Burst,
	}
}
