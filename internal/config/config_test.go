package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 1.0, cfg.Search.RPS)
	require.Equal(t, 10*time.Second, cfg.SearchTimeout())
	require.Equal(t, 10, cfg.Enrich.ResultsPerQuery)
	require.Equal(t, 5, cfg.Enrich.MaxQueries)
	require.Equal(t, 2, cfg.Enrich.MaxEmailsPerRecord)
	require.True(t, cfg.Enrich.ScrapeEnabled)
	require.Equal(t, 4, cfg.Enrich.FetchConcurrency)
	require.Equal(t, 1, cfg.Enrich.RecordConcurrency)
	require.Equal(t, "data/jobs", cfg.Storage.JobsDir)
	require.True(t, cfg.Logging.Development)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
search:
  api_key: file-key
  rps: 0.5
enrich:
  max_queries: 3
  scrape_enabled: false
storage:
  jobs_dir: /tmp/jobs
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "file-key", cfg.Search.APIKey)
	require.Equal(t, 0.5, cfg.Search.RPS)
	require.Equal(t, 3, cfg.Enrich.MaxQueries)
	require.False(t, cfg.Enrich.ScrapeEnabled)
	require.Equal(t, "/tmp/jobs", cfg.Storage.JobsDir)
	// Values the file omits keep their defaults.
	require.Equal(t, 2, cfg.Enrich.MaxEmailsPerRecord)
}

func TestLoadAPIKeyFromLegacyEnv(t *testing.T) {
	t.Setenv("BRAVE_API_KEY", "legacy-key")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "legacy-key", cfg.Search.APIKey)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("ENRICHER_SERVER_PORT", "7070")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: -1\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad search timeout", func(c *Config) { c.Search.TimeoutSeconds = 0 }},
		{"bad fetch concurrency", func(c *Config) { c.Enrich.FetchConcurrency = 0 }},
		{"bad record concurrency", func(c *Config) { c.Enrich.RecordConcurrency = -1 }},
		{"empty jobs dir", func(c *Config) { c.Storage.JobsDir = " " }},
		{"bad job defaults", func(c *Config) { c.Enrich.MaxEmailsPerRecord = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
