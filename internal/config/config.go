// Package config loads and validates climatedb configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Log     LogConfig     `mapstructure:"log"`
	DB      DBConfig      `mapstructure:"db"`
	Search  SearchConfig  `mapstructure:"search"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Sources SourcesConfig `mapstructure:"sources"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Server  ServerConfig  `mapstructure:"server"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool     `mapstructure:"development"`
	OutputPaths []string `mapstructure:"output_paths"`
}

// ArchiveConfig selects where keyed stores live.
type ArchiveConfig struct {
	Root      string `mapstructure:"root"`
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// LogConfig selects where ordered URL logs live.
type LogConfig struct {
	Backend string `mapstructure:"backend"`
}

// DBConfig controls access to Postgres when it backs the URL logs.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// SearchConfig tunes live retrieval.
type SearchConfig struct {
	Topic             string        `mapstructure:"topic"`
	BaseURL           string        `mapstructure:"base_url"`
	UserAgent         string        `mapstructure:"user_agent"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BackoffUnit       time.Duration `mapstructure:"backoff_unit"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	PageSize          int           `mapstructure:"page_size"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// FetchConfig tunes article page fetches.
type FetchConfig struct {
	UserAgent         string        `mapstructure:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RespectRobots     bool          `mapstructure:"respect_robots"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// SourcesConfig points at the source definitions file. Empty uses the
// embedded defaults.
type SourcesConfig struct {
	File string `mapstructure:"file"`
}

// PubSubConfig holds metadata for archived-article notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether notifications are configured.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.Topic != ""
}

// MetricsConfig controls the Pushgateway used by batch commands.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// ServerConfig controls the read-only archive API.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CLIMATEDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stderr"})
	v.SetDefault("archive.root", "data")
	v.SetDefault("archive.backend", "local")
	v.SetDefault("log.backend", "jsonl")
	v.SetDefault("db.table", "url_log")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("search.topic", "climate change")
	v.SetDefault("search.base_url", "https://www.google.com")
	v.SetDefault("search.user_agent", "Mozilla/5.0 (compatible; climatedb/0.1)")
	v.SetDefault("search.max_attempts", 6)
	v.SetDefault("search.backoff_unit", time.Second)
	v.SetDefault("search.requests_per_second", 0.5)
	v.SetDefault("search.page_size", 10)
	v.SetDefault("search.timeout", 15*time.Second)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; climatedb/0.1)")
	v.SetDefault("fetch.timeout", 20*time.Second)
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.requests_per_second", 1)
	v.SetDefault("metrics.job", "climatedb")
	v.SetDefault("server.port", 8080)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.Archive.Backend {
	case "local":
		if c.Archive.Root == "" {
			return fmt.Errorf("archive.root must be set for the local backend")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend must be local or gcs, got %q", c.Archive.Backend)
	}
	switch c.Log.Backend {
	case "jsonl":
		if c.Archive.Root == "" {
			return fmt.Errorf("archive.root must be set for the jsonl log backend")
		}
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres log backend")
		}
	default:
		return fmt.Errorf("log.backend must be jsonl or postgres, got %q", c.Log.Backend)
	}
	if c.Search.MaxAttempts <= 0 {
		return fmt.Errorf("search.max_attempts must be > 0")
	}
	if c.Search.BackoffUnit <= 0 {
		return fmt.Errorf("search.backoff_unit must be > 0")
	}
	if c.Search.PageSize <= 0 {
		return fmt.Errorf("search.page_size must be > 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic must be set together")
	}
	return nil
}
