package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/estoqa/catalog/internal/cli"
)

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	rt, err := bootstrap(envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer rt.close()

	stats, err := rt.pool.GetCatalogStats(context.Background())
	if err != nil {
		rt.logger.Error().Err(err).Msg("stats failed")
		fmt.Fprintf(os.Stderr, "Failed to load stats: %v\n", err)
		return 1
	}

	if err := printJSON(stats); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render output: %v\n", err)
		return 1
	}
	return 0
}
