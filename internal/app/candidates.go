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

func runCandidates(args []string) int {
	fs := flag.NewFlagSet("candidates", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	status := fs.String("status", db.CandidateStatusPending, "Filter by status (pending, auto_approved, approved, rejected, empty for all)")
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

	items, err := rt.pool.ListCandidates(context.Background(), *status, *limit)
	if err != nil {
		rt.logger.Error().Err(err).Msg("list candidates failed")
		fmt.Fprintf(os.Stderr, "Failed to list candidates: %v\n", err)
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
	fmt.Fprintln(w, "UUID\tRAW\tRESOLVED TO\tCONF\tSTATUS\tCREATED")
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
			item.CandidateUUID,
			truncateForTable(item.RawDescription, 32),
			truncateForTable(item.CanonicalName, 32),
			item.Confidence,
			item.Status,
			formatUTCTimestamp(item.CreatedAt),
		)
	}
	_ = w.Flush()
	return 0
}

func runDecide(args []string, decision string) int {
	fs := flag.NewFlagSet(decision, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	decidedBy := fs.String("by", "cli", "Reviewer identifier recorded on the decision")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	candidateUUID := strings.TrimSpace(strings.Join(fs.Args(), ""))
	if candidateUUID == "" {
		fmt.Fprintf(os.Stderr, "usage: catalog %s [flags] <candidate uuid>\n", decision)
		return 2
	}

	newStatus := db.CandidateStatusApproved
	if decision == "reject" {
		newStatus = db.CandidateStatusRejected
	}

	rt, err := bootstrap(envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer rt.close()

	ctx := context.Background()
	if err := rt.pool.DecideCandidate(ctx, candidateUUID, newStatus, *decidedBy); err != nil {
		if errors.Is(err, db.ErrNoRows) {
			fmt.Fprintf(os.Stderr, "No pending candidate with UUID %s\n", candidateUUID)
			return 1
		}
		rt.logger.Error().Err(err).Str("candidate_uuid", candidateUUID).Msg("decide candidate failed")
		fmt.Fprintf(os.Stderr, "Failed to %s candidate: %v\n", decision, err)
		return 1
	}

	candidate, err := rt.pool.GetCandidateByUUID(ctx, candidateUUID)
	if err != nil {
		rt.logger.Error().Err(err).Str("candidate_uuid", candidateUUID).Msg("reload candidate failed")
		fmt.Fprintf(os.Stderr, "Decision recorded but reload failed: %v\n", err)
		return 1
	}
	if err := printJSON(candidate); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render output: %v\n", err)
		return 1
	}
	return 0
}
