package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "normalize":
		return runNormalize(args[1:])
	case "match":
		return runMatch(args[1:])
	case "consolidate":
		return runConsolidate(args[1:])
	case "backfill":
		return runBackfill(args[1:])
	case "masters":
		return runMasters(args[1:])
	case "candidates":
		return runCandidates(args[1:])
	case "approve":
		return runDecide(args[1:], "approve")
	case "reject":
		return runDecide(args[1:], "reject")
	case "stats":
		return runStats(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "catalog CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  catalog <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health       Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  normalize    Resolve one raw description to a master product")
	fmt.Fprintln(os.Stderr, "  match        Probe registry and oracle matching without writing")
	fmt.Fprintln(os.Stderr, "  consolidate  Merge duplicate masters into survivors")
	fmt.Fprintln(os.Stderr, "  backfill     Normalize historical stock items without a SKU")
	fmt.Fprintln(os.Stderr, "  masters      List or inspect master products")
	fmt.Fprintln(os.Stderr, "  candidates   List review queue entries")
	fmt.Fprintln(os.Stderr, "  approve      Approve a pending candidate")
	fmt.Fprintln(os.Stderr, "  reject       Reject a pending candidate")
	fmt.Fprintln(os.Stderr, "  stats        Show catalog counters")
	fmt.Fprintln(os.Stderr, "  serve        Start the Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"catalog <command> -h\" for command-specific flags.")
}
