package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketdesk/internal/hub"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	l := Loader{Fs: afero.NewMemMapFs(), Getenv: envMap(map[string]string{EnvDataDir: "/data"})}
	cfg, err := l.Load("")
	require.NoError(t, err)

	assert.Equal(t, hub.DefaultBaseURL, cfg.Hub.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Hub.Timeout.Duration())
	assert.Equal(t, float64(5), cfg.Hub.RateLimit.RPS)
	assert.Equal(t, 10, cfg.Hub.RateLimit.Burst)
	assert.Equal(t, 30, cfg.Inbox.PageSize)
	assert.Equal(t, 50, cfg.Inbox.HistoryLimit)
	assert.Equal(t, 1000, cfg.Inbox.MaxMessages)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, filepath.Join("/data", "marketdesk.log"), cfg.Log.File)
	assert.Equal(t, filepath.Join("/data", "marketdesk.db"), cfg.DBPath())
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoadFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/marketdesk.yaml", []byte(`
hub:
  base_url: https://hub.example.com/api
  timeout: 5s
  rate_limit:
    rps: 2.5
    burst: 3
inbox:
  page_size: 10
log:
  level: debug
  format: json
metrics:
  addr: 127.0.0.1:9090
data_dir: /var/lib/marketdesk
`), 0o644))

	cfg, err := Loader{Fs: fs, Getenv: envMap(nil)}.Load("/etc/marketdesk.yaml")
	require.NoError(t, err)

	assert.Equal(t, "https://hub.example.com/api", cfg.Hub.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Hub.Timeout.Duration())
	assert.Equal(t, 2.5, cfg.Hub.RateLimit.RPS)
	assert.Equal(t, 3, cfg.Hub.RateLimit.Burst)
	assert.Equal(t, 10, cfg.Inbox.PageSize)
	assert.Equal(t, 50, cfg.Inbox.HistoryLimit, "unset keys keep defaults")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "127.0.0.1:9090", cfg.Metrics.Addr)
	assert.Equal(t, "/var/lib/marketdesk/marketdesk.log", cfg.Log.File)

	opts := cfg.HubOptions()
	assert.Equal(t, "https://hub.example.com/api", opts.BaseURL)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Equal(t, 3, opts.Burst)
}

func TestEnvOverridesFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/c.yaml", []byte("hub:\n  base_url: http://file:1/api\nlog:\n  level: warn\n"), 0o644))

	cfg, err := Loader{Fs: fs, Getenv: envMap(map[string]string{
		EnvHubURL:      "http://env:2/api",
		EnvLogLevel:    "debug",
		EnvLogFile:     "/tmp/md.log",
		EnvMetricsAddr: ":9100",
	})}.Load("/c.yaml")
	require.NoError(t, err)

	assert.Equal(t, "http://env:2/api", cfg.Hub.BaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/md.log", cfg.Log.File)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
}

func TestDurationNumericSeconds(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/c.yaml", []byte("hub:\n  timeout: 12\n"), 0o644))

	cfg, err := Loader{Fs: fs, Getenv: envMap(nil)}.Load("/c.yaml")
	require.NoError(t, err)
	assert.Equal(t, 12*time.Second, cfg.Hub.Timeout.Duration())
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad duration", "hub:\n  timeout: soon\n"},
		{"bad url", "hub:\n  base_url: ftp://hub/api\n"},
		{"negative page size", "inbox:\n  page_size: -1\n"},
		{"bad log format", "log:\n  format: xml\n"},
		{"not yaml", "hub: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "/c.yaml", []byte(tt.body), 0o644))
			_, err := Loader{Fs: fs, Getenv: envMap(nil)}.Load("/c.yaml")
			assert.Error(t, err)
		})
	}
}

func TestExplicitMissingFile(t *testing.T) {
	_, err := Loader{Fs: afero.NewMemMapFs(), Getenv: envMap(nil)}.Load("/nope.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadEnvFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/.env", []byte("MARKETDESK_HUB_URL=http://dotenv:3/api\nMARKETDESK_LOG_LEVEL=error\n"), 0o644))

	getenv, err := LoadEnvFile(fs, "/.env", envMap(map[string]string{EnvLogLevel: "debug"}))
	require.NoError(t, err)

	cfg, err := Loader{Fs: fs, Getenv: getenv}.Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://dotenv:3/api", cfg.Hub.BaseURL)
	assert.Equal(t, "debug", cfg.Log.Level, "real environment wins over .env")
}
