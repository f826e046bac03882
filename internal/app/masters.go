package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/estoqa/catalog/internal/cli"
	"github.com/estoqa/catalog/internal/db"
)

func runMasters(args []string) int {
	fs := flag.NewFlagSet("masters", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	status := fs.String("status", "active", "Filter by status (active, consolidated, empty for all)")
	category := fs.String("category", "", "Filter by category")
	search := fs.String("q", "", "Canonical name search")
	limit := fs.Int("limit", 25, "Maximum rows")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
		return 2
	}

	rt, err := bootstrap(envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer rt.close()

	// With positional args, show a single master's detail instead.
	if sku := strings.TrimSpace(strings.Join(fs.Args(), "")); sku != "" {
		return printMasterDetail(rt, sku)
	}

	items, err := rt.pool.ListMasters(context.Background(), db.MasterListOptions{
		Status:   *status,
		Category: *category,
		Search:   *search,
		Limit:    *limit,
	})
	if err != nil {
		rt.logger.Error().Err(err).Msg("list masters failed")
		fmt.Fprintf(os.Stderr, "Failed to list masters: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(items); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render output: %v\n", err)
			return 1
		}
		return 0
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SKU\tNAME\tCATEGORY\tSTATUS\tREFS\tUSERS\tSYNONYMS")
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			shortSKU(item.SKU),
			truncateForTable(item.CanonicalName, 42),
			item.Category,
			item.Status,
			item.NotesCount,
			item.UserCount,
			item.SynonymCount,
		)
	}
	_ = w.Flush()
	return 0
}

func printMasterDetail(rt *runtime, sku string) int {
	detail, err := rt.pool.GetMasterDetail(context.Background(), sku)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			fmt.Fprintf(os.Stderr, "No master with SKU %s\n", sku)
			return 1
		}
		rt.logger.Error().Err(err).Str("sku", sku).Msg("master detail failed")
		fmt.Fprintf(os.Stderr, "Failed to load master: %v\n", err)
		return 1
	}
	if err := printJSON(detail); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render output: %v\n", err)
		return 1
	}
	return 0
}
