package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/estoqa/catalog/internal/classify"
	"github.com/estoqa/catalog/internal/cli"
)

func runConsolidate(args []string) int {
	fs := flag.NewFlagSet("consolidate", flag.ContinueOnError)
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

	svc, err := buildService(rt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build pipeline: %v\n", err)
		return 1
	}

	report, err := svc.Consolidate(context.Background())
	if err != nil {
		rt.logger.Error().Err(err).Msg("consolidation failed")
		fmt.Fprintf(os.Stderr, "Consolidation failed: %v\n", err)
		return 1
	}

	if err := printJSON(report); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render output: %v\n", err)
		return 1
	}
	return 0
}

func runBackfill(args []string) int {
	fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
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

	svc, err := buildService(rt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build pipeline: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		cancel()
	}()

	report, err := svc.Backfill(ctx)
	if err != nil {
		if report != nil {
			_ = printJSON(report)
		}
		if errors.Is(err, classify.ErrOracleUnavailable) {
			fmt.Fprintln(os.Stderr, "Oracle unavailable; backfill stopped, rerun to resume")
			return 1
		}
		rt.logger.Error().Err(err).Msg("backfill failed")
		fmt.Fprintf(os.Stderr, "Backfill failed: %v\n", err)
		return 1
	}

	if err := printJSON(report); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render output: %v\n", err)
		return 1
	}
	return 0
}
