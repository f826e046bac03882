package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"CATALOG_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"CATALOG_DB_MAX_CONNS" default:"8"`

	OracleProvider       string `envconfig:"ORACLE_PROVIDER" default:"local"`
	OracleEndpoint       string `envconfig:"ORACLE_ENDPOINT" default:"http://127.0.0.1:8844/v1"`
	OracleModel          string `envconfig:"ORACLE_MODEL" default:""`
	OracleAPIKey         string `envconfig:"ORACLE_API_KEY" default:""`
	OracleTimeoutSeconds int    `envconfig:"ORACLE_TIMEOUT_SECONDS" default:"45"`

	AutoApproveConfidence float64 `envconfig:"CATALOG_AUTO_APPROVE_CONFIDENCE" default:"0.90"`
	MatchSampleLimit      int     `envconfig:"CATALOG_MATCH_SAMPLE_LIMIT" default:"40"`
	BackfillChunkSize     int     `envconfig:"CATALOG_BACKFILL_CHUNK_SIZE" default:"25"`
	BackfillPauseMS       int     `envconfig:"CATALOG_BACKFILL_PAUSE_MS" default:"1500"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("CATALOG_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("CATALOG_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("CATALOG_DB_MIN_CONNS (%d) cannot exceed CATALOG_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.OracleTimeoutSeconds < 1 {
		return fmt.Errorf("ORACLE_TIMEOUT_SECONDS must be >= 1")
	}
	if c.AutoApproveConfidence < 0 || c.AutoApproveConfidence > 1 {
		return fmt.Errorf("CATALOG_AUTO_APPROVE_CONFIDENCE must be between 0 and 1")
	}
	if c.MatchSampleLimit < 1 {
		return fmt.Errorf("CATALOG_MATCH_SAMPLE_LIMIT must be >= 1")
	}
	if c.BackfillChunkSize < 1 {
		return fmt.Errorf("CATALOG_BACKFILL_CHUNK_SIZE must be >= 1")
	}
	if c.BackfillPauseMS < 0 {
		return fmt.Errorf("CATALOG_BACKFILL_PAUSE_MS must be >= 0")
	}
	return nil
}

func (c *Config) OracleTimeout() time.Duration {
	return time.Duration(c.OracleTimeoutSeconds) * time.Second
}

func (c *Config) BackfillPause() time.Duration {
	return time.Duration(c.BackfillPauseMS) * time.Millisecond
}
