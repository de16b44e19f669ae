// Package config loads and validates enricher configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	DB       DBConfig       `mapstructure:"db"`
	Enricher EnricherConfig `mapstructure:"enricher"`
	Writer   WriterConfig   `mapstructure:"writer"`
	Import   ImportConfig   `mapstructure:"import"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the optional ops HTTP server (health + metrics).
// A port of 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the catalog database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// EnricherConfig governs the enrichment pipeline behavior.
type EnricherConfig struct {
	BaseURL             string `mapstructure:"base_url"`
	UserAgent           string `mapstructure:"user_agent"`
	BatchSize           int    `mapstructure:"batch_size"`
	Workers             int    `mapstructure:"workers"`
	FetchTimeoutSeconds int    `mapstructure:"fetch_timeout_seconds"`
	LogEvery            int    `mapstructure:"log_every"`
	BatchPauseMs        int    `mapstructure:"batch_pause_ms"`
	BatchPauseJitterMs  int    `mapstructure:"batch_pause_jitter_ms"`
}

// WriterConfig configures result write retry behavior.
type WriterConfig struct {
	MaxRetries      int `mapstructure:"max_retries"`
	BackoffBaseMs   int `mapstructure:"backoff_base_ms"`
	BackoffJitterMs int `mapstructure:"backoff_jitter_ms"`
}

// ImportConfig configures the bulk catalog import command.
type ImportConfig struct {
	WorkDir   string `mapstructure:"work_dir"`
	BatchSize int    `mapstructure:"batch_size"`
	PauseMs   int    `mapstructure:"pause_ms"`
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
	v.SetDefault("server.port", 0)
	v.SetDefault("db.table", "dpd_drug_product_all")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("enricher.base_url", "https://health-products.canada.ca/dpd-bdpp")
	v.SetDefault("enricher.user_agent", "DoseValidator/1.0 (+https://github.com/dosevalidator)")
	v.SetDefault("enricher.batch_size", 500)
	v.SetDefault("enricher.workers", 4)
	v.SetDefault("enricher.fetch_timeout_seconds", 20)
	v.SetDefault("enricher.log_every", 500)
	v.SetDefault("enricher.batch_pause_ms", 200)
	v.SetDefault("enricher.batch_pause_jitter_ms", 300)
	v.SetDefault("writer.max_retries", 6)
	v.SetDefault("writer.backoff_base_ms", 600)
	v.SetDefault("writer.backoff_jitter_ms", 300)
	v.SetDefault("import.work_dir", "dpd_extract")
	v.SetDefault("import.batch_size", 500)
	v.SetDefault("import.pause_ms", 200)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.Enricher.BatchSize <= 0 {
		return fmt.Errorf("enricher.batch_size must be > 0")
	}
	if c.Enricher.Workers <= 0 {
		return fmt.Errorf("enricher.workers must be > 0")
	}
	if c.Enricher.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("enricher.fetch_timeout_seconds must be > 0")
	}
	if c.Enricher.LogEvery <= 0 {
		return fmt.Errorf("enricher.log_every must be > 0")
	}
	if c.Writer.MaxRetries <= 0 {
		return fmt.Errorf("writer.max_retries must be > 0")
	}
	if c.Writer.BackoffBaseMs <= 0 {
		return fmt.Errorf("writer.backoff_base_ms must be > 0")
	}
	if c.Server.Port < 0 {
		return fmt.Errorf("server.port must be >= 0")
	}
	return nil
}

// FetchTimeout converts the fetch timeout config into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Enricher.FetchTimeoutSeconds) * time.Second
}

// BackoffBase converts the writer backoff base config into a duration.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.Writer.BackoffBaseMs) * time.Millisecond
}

// BackoffJitter converts the writer jitter ceiling config into a duration.
func (c Config) BackoffJitter() time.Duration {
	return time.Duration(c.Writer.BackoffJitterMs) * time.Millisecond
}
