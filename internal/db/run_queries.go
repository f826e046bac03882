package db

import (
	"context"
	"fmt"
)

// Run kinds and statuses.
const (
	RunKindBackfill    = "backfill"
	RunKindConsolidate = "consolidate"

	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// RunCounters aggregates the outcome of a run.
type RunCounters struct {
	ItemsScanned  int
	ItemsResolved int
	ItemsDeferred int
	ItemsFailed   int
	LastStockItem *int64
}

// StartRun opens a ledger row for a pipeline run.
func (p *Pool) StartRun(ctx context.Context, kind string) (int64, error) {
	const q = `
INSERT INTO catalog.normalization_runs (kind, status)
VALUES ($1, 'running')
RETURNING run_id
`
	var runID int64
	if err := p.QueryRow(ctx, q, kind).Scan(&runID); err != nil {
		return 0, fmt.Errorf("start %s run: %w", kind, err)
	}
	return runID, nil
}

// FinishRun closes a ledger row with final counters.
func (p *Pool) FinishRun(ctx context.Context, runID int64, status string, counters RunCounters, errorMessage *string) error {
	const q = `
UPDATE catalog.normalization_runs
SET status = $2,
	finished_at = now(),
	items_scanned = $3,
	items_resolved = $4,
	items_deferred = $5,
	items_failed = $6,
	last_stock_item = $7,
	error_message = $8,
	updated_at = now()
WHERE run_id = $1
`
	tag, err := p.Exec(ctx, q, runID, status,
		counters.ItemsScanned,
		counters.ItemsResolved,
		counters.ItemsDeferred,
		counters.ItemsFailed,
		counters.LastStockItem,
		errorMessage,
	)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %d not found", runID)
	}
	return nil
}

// UpdateRunProgress checkpoints counters mid-run so an interrupted backfill
// records how far it got.
func (p *Pool) UpdateRunProgress(ctx context.Context, runID int64, counters RunCounters) error {
	const q = `
UPDATE catalog.normalization_runs
SET items_scanned = $2,
	items_resolved = $3,
	items_deferred = $4,
	items_failed = $5,
	last_stock_item = $6,
	updated_at = now()
WHERE run_id = $1
`
	if _, err := p.Exec(ctx, q, runID,
		counters.ItemsScanned,
		counters.ItemsResolved,
		counters.ItemsDeferred,
		counters.ItemsFailed,
		counters.LastStockItem,
	); err != nil {
		return fmt.Errorf("update run %d progress: %w", runID, err)
	}
	return nil
}
