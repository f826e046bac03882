package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/estoqa/catalog/internal/classify"
	"github.com/estoqa/catalog/internal/cli"
	"github.com/estoqa/catalog/internal/pipeline"
)

func runNormalize(args []string) int {
	fs := flag.NewFlagSet("normalize", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	userID := fs.Int64("user", 0, "Owning user id recorded on the reference")
	stockItemID := fs.Int64("stock-item", 0, "Stock item id to propagate the resolved identity onto")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	raw := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if raw == "" {
		fmt.Fprintln(os.Stderr, "usage: catalog normalize [flags] <raw description>")
		return 2
	}

	rt, err := bootstrap(envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer rt.close()

	svc, err := buildService(rt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build pipeline: %v\n", err)
		return 1
	}

	req := pipeline.NormalizeRequest{
		RawDescription: raw,
		UserID:         *userID,
	}
	if *stockItemID > 0 {
		req.StockItemID = stockItemID
	}

	outcome, err := svc.Normalize(context.Background(), req)
	if err != nil {
		if errors.Is(err, classify.ErrOracleUnavailable) {
			fmt.Fprintln(os.Stderr, "Oracle unavailable; normalization deferred (no rows written)")
			return 1
		}
		rt.logger.Error().Err(err).Msg("normalize failed")
		fmt.Fprintf(os.Stderr, "Normalize failed: %v\n", err)
		return 1
	}

	if err := printJSON(outcome); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render output: %v\n", err)
		return 1
	}
	return 0
}

func runMatch(args []string) int {
	fs := flag.NewFlagSet("match", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	raw := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if raw == "" {
		fmt.Fprintln(os.Stderr, "usage: catalog match [flags] <raw description>")
		return 2
	}

	rt, err := bootstrap(envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer rt.close()

	svc, err := buildService(rt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build pipeline: %v\n", err)
		return 1
	}

	outcome, err := svc.Match(context.Background(), raw)
	if err != nil {
		rt.logger.Error().Err(err).Msg("match probe failed")
		fmt.Fprintf(os.Stderr, "Match failed: %v\n", err)
		return 1
	}

	if err := printJSON(outcome); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render output: %v\n", err)
		return 1
	}
	return 0
}
