package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 1, cfg.Crawl.StartPage)
	assert.Equal(t, 1, cfg.Crawl.EndPage)
	assert.Equal(t, 1, cfg.Crawl.PageWorkers)
	assert.Equal(t, 10*time.Second, cfg.Crawl.Timeout)
	assert.Equal(t, 3, cfg.Download.Workers)
	assert.Equal(t, 3, cfg.Download.Retries)
	assert.Equal(t, time.Second, cfg.Download.RetryDelay)
	assert.True(t, cfg.Pacing.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.Pacing.MinDelay)
	assert.Equal(t, 1500*time.Millisecond, cfg.Pacing.MaxDelay)
	assert.Equal(t, "./downloads", cfg.Output.BaseDirectory)
	assert.NotEmpty(t, cfg.Site.Selectors.ListingCard)

	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing base URL", func(c *Config) { c.Site.BaseURL = "" }},
		{"missing image selector", func(c *Config) { c.Site.Selectors.Image = "" }},
		{"zero start page", func(c *Config) { c.Crawl.StartPage = 0 }},
		{"end before start", func(c *Config) { c.Crawl.StartPage = 5; c.Crawl.EndPage = 2 }},
		{"zero page workers", func(c *Config) { c.Crawl.PageWorkers = 0 }},
		{"zero timeout", func(c *Config) { c.Crawl.Timeout = 0 }},
		{"zero download workers", func(c *Config) { c.Download.Workers = 0 }},
		{"zero retries", func(c *Config) { c.Download.Retries = 0 }},
		{"inverted pacing range", func(c *Config) { c.Pacing.MinDelay = time.Second; c.Pacing.MaxDelay = 0 }},
		{"missing output directory", func(c *Config) { c.Output.BaseDirectory = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAllowsDiscoverEndPage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Crawl.StartPage = 3
	cfg.Crawl.EndPage = 0 // discover
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	content := `
site:
  base_url: https://gallery.example.org/
crawl:
  start_page: 2
  end_page: 9
download:
  workers: 5
pacing:
  enabled: false
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "https://gallery.example.org/", cfg.Site.BaseURL)
	assert.Equal(t, 2, cfg.Crawl.StartPage)
	assert.Equal(t, 9, cfg.Crawl.EndPage)
	assert.Equal(t, 5, cfg.Download.Workers)
	assert.False(t, cfg.Pacing.Enabled)
	// Unset values keep defaults
	assert.Equal(t, 3, cfg.Download.Retries)
}

func TestLoadFromFileMissingPathIsNotAnError(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.LoadFromFile(""))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ALBUMGRAB_BASE_URL", "https://env.example.org/")
	t.Setenv("ALBUMGRAB_OUTPUT_DIR", "/tmp/env-downloads")
	t.Setenv("ALBUMGRAB_DOWNLOAD_WORKERS", "7")
	t.Setenv("ALBUMGRAB_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "https://env.example.org/", cfg.Site.BaseURL)
	assert.Equal(t, "/tmp/env-downloads", cfg.Output.BaseDirectory)
	assert.Equal(t, 7, cfg.Download.Workers)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestMergeCommandLineFlagsTakePrecedence(t *testing.T) {
	t.Setenv("ALBUMGRAB_DOWNLOAD_WORKERS", "7")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"download-workers": 2,
		"end":              0,
		"no-pacing":        true,
		"timeout":          5 * time.Second,
	})

	assert.Equal(t, 2, cfg.Download.Workers)
	assert.Equal(t, 0, cfg.Crawl.EndPage)
	assert.False(t, cfg.Pacing.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Crawl.Timeout)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Crawl.EndPage = 4
	require.NoError(t, cfg.Save(path))

	reloaded := DefaultConfig()
	require.NoError(t, reloaded.LoadFromFile(path))
	assert.Equal(t, 4, reloaded.Crawl.EndPage)
}
