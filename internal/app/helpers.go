package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/estoqa/catalog/internal/classify"
	"github.com/estoqa/catalog/internal/cli"
	"github.com/estoqa/catalog/internal/config"
	"github.com/estoqa/catalog/internal/db"
	"github.com/estoqa/catalog/internal/logging"
	"github.com/estoqa/catalog/internal/pipeline"
)

const (
	outputFormatTable = "table"
	outputFormatJSON  = "json"
)

type runtime struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *db.Pool
}

// bootstrap loads env + config, builds the logger and connects the pool.
func bootstrap(envLoader *cli.EnvLoader) (*runtime, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	pool, err := db.NewPool(dbCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return &runtime{
		cfg:    cfg,
		logger: logger,
		pool:   pool,
	}, nil
}

func (r *runtime) close() {
	if r != nil && r.pool != nil {
		_ = r.pool.Close()
	}
}

// buildOracle wires the configured provider from the registry.
func buildOracle(cfg *config.Config) (classify.Provider, error) {
	registry := classify.NewRegistry()

	local := classify.NewLocalProvider(cfg.OracleEndpoint, cfg.OracleModel, cfg.OracleTimeout())
	if err := registry.Register(local); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.OracleAPIKey) != "" {
		hosted, err := classify.NewOpenAIProvider(cfg.OracleAPIKey, "", cfg.OracleModel, cfg.OracleTimeout())
		if err != nil {
			return nil, err
		}
		if err := registry.Register(hosted); err != nil {
			return nil, err
		}
	}

	return registry.Get(cfg.OracleProvider)
}

func buildService(r *runtime) (*pipeline.Service, error) {
	oracle, err := buildOracle(r.cfg)
	if err != nil {
		return nil, fmt.Errorf("build oracle provider: %w", err)
	}
	return pipeline.NewService(r.pool, oracle, r.logger, pipeline.Options{
		AutoApproveConfidence: r.cfg.AutoApproveConfidence,
		MatchSampleLimit:      r.cfg.MatchSampleLimit,
		BackfillChunkSize:     r.cfg.BackfillChunkSize,
		BackfillPause:         r.cfg.BackfillPause(),
	})
}

func parseOutputFormat(raw, defaultFormat string) (string, error) {
	format := strings.TrimSpace(strings.ToLower(raw))
	if format == "" {
		format = strings.TrimSpace(strings.ToLower(defaultFormat))
	}
	switch format {
	case outputFormatTable, outputFormatJSON:
		return format, nil
	default:
		return "", fmt.Errorf("--format must be table or json")
	}
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func truncateForTable(value string, maxLen int) string {
	trimmed := strings.TrimSpace(value)
	if maxLen <= 0 {
		return trimmed
	}
	if utf8.RuneCountInString(trimmed) <= maxLen {
		return trimmed
	}

	runes := []rune(trimmed)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

func shortSKU(sku string) string {
	if len(sku) <= 12 {
		return sku
	}
	return sku[:12]
}

func formatUTCTimestamp(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}
