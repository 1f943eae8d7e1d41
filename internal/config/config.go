// Package config loads and validates enricher configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/openweb-labs/enricher/internal/enrich"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Search  SearchConfig  `mapstructure:"search"`
	Enrich  EnrichConfig  `mapstructure:"enrich"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SearchConfig configures the external search API client.
type SearchConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	Endpoint       string  `mapstructure:"endpoint"`
	RPS            float64 `mapstructure:"rps"`
	Burst          int     `mapstructure:"burst"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// EnrichConfig holds the per-job defaults and the engine concurrency caps.
type EnrichConfig struct {
	ResultsPerQuery    int     `mapstructure:"results_per_query"`
	MaxQueries         int     `mapstructure:"max_queries"`
	MaxEmailsPerRecord int     `mapstructure:"max_emails_per_record"`
	FetchTimeoutSec    float64 `mapstructure:"fetch_timeout_seconds"`
	ScrapeEnabled      bool    `mapstructure:"scrape_enabled"`
	FetchConcurrency   int     `mapstructure:"fetch_concurrency"`
	RecordConcurrency  int     `mapstructure:"record_concurrency"`
	UserAgent          string  `mapstructure:"user_agent"`
}

// StorageConfig sets where job artifacts are persisted.
type StorageConfig struct {
	JobsDir string `mapstructure:"jobs_dir"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ENRICHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// The original deployment ships the credential as BRAVE_API_KEY.
	if err := v.BindEnv("search.api_key", "ENRICHER_SEARCH_API_KEY", "BRAVE_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("search.endpoint", "")
	v.SetDefault("search.rps", 1.0)
	v.SetDefault("search.burst", 1)
	v.SetDefault("search.timeout_seconds", 10)
	v.SetDefault("enrich.results_per_query", 10)
	v.SetDefault("enrich.max_queries", 5)
	v.SetDefault("enrich.max_emails_per_record", 2)
	v.SetDefault("enrich.fetch_timeout_seconds", 15)
	v.SetDefault("enrich.scrape_enabled", true)
	v.SetDefault("enrich.fetch_concurrency", 4)
	v.SetDefault("enrich.record_concurrency", 1)
	v.SetDefault("enrich.user_agent", "openweb-enricher/1.0 (+https://example.local)")
	v.SetDefault("storage.jobs_dir", "data/jobs")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Search.TimeoutSeconds <= 0 {
		return fmt.Errorf("search.timeout_seconds must be > 0")
	}
	if c.Enrich.FetchConcurrency <= 0 {
		return fmt.Errorf("enrich.fetch_concurrency must be > 0")
	}
	if c.Enrich.RecordConcurrency <= 0 {
		return fmt.Errorf("enrich.record_concurrency must be > 0")
	}
	if strings.TrimSpace(c.Storage.JobsDir) == "" {
		return fmt.Errorf("storage.jobs_dir must be set")
	}
	if err := c.JobDefaults().Validate(); err != nil {
		return fmt.Errorf("enrich defaults: %w", err)
	}
	return nil
}

// JobDefaults converts the enrich section into the per-job config snapshot
// used when a submission omits overrides.
func (c Config) JobDefaults() enrich.JobConfig {
	return enrich.JobConfig{
		ResultsPerQuery:    c.Enrich.ResultsPerQuery,
		MaxQueries:         c.Enrich.MaxQueries,
		MaxEmailsPerRecord: c.Enrich.MaxEmailsPerRecord,
		FetchTimeoutSec:    c.Enrich.FetchTimeoutSec,
		ScrapeEnabled:      c.Enrich.ScrapeEnabled,
	}
}

// SearchTimeout returns the per-request search timeout.
func (c Config) SearchTimeout() time.Duration {
	return time.Duration(c.Search.TimeoutSeconds) * time.Second
}
