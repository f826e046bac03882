package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/estoqa/catalog/internal/classify"
	"github.com/estoqa/catalog/internal/db"
)

// BackfillReport summarizes one backfill run over historical inventory.
type BackfillReport struct {
	ItemsScanned  int   `json:"items_scanned"`
	ItemsResolved int   `json:"items_resolved"`
	ItemsDeferred int   `json:"items_deferred"`
	ItemsFailed   int   `json:"items_failed"`
	LastStockItem int64 `json:"last_stock_item,omitempty"`
	Remaining     int64 `json:"remaining"`
}

// Backfill normalizes historical stock items that never received a catalog
// identity. Work proceeds in bounded chunks with a pause between chunks to
// respect oracle rate limits. Each item commits independently, so a crash
// mid-run leaves committed rows valid, and a restart skips them: already
// resolved rows fall out of the unresolved query, and repeat variants hit
// the synonym registry before the oracle is consulted.
func (s *Service) Backfill(ctx context.Context) (*BackfillReport, error) {
	runID, err := s.store.StartRun(ctx, db.RunKindBackfill)
	if err != nil {
		return nil, err
	}

	report, runErr := s.backfillLoop(ctx, runID)

	status := db.RunStatusSucceeded
	var errorMessage *string
	if runErr != nil {
		status = db.RunStatusFailed
		msg := runErr.Error()
		errorMessage = &msg
	}
	if err := s.store.FinishRun(ctx, runID, status, backfillCounters(report), errorMessage); err != nil {
		s.logger.Error().Err(err).Int64("run_id", runID).Msg("failed to close backfill run")
	}

	return report, runErr
}

func (s *Service) backfillLoop(ctx context.Context, runID int64) (*BackfillReport, error) {
	report := &BackfillReport{}
	var afterID int64

	for {
		items, err := s.store.ListUnresolvedStockItems(ctx, afterID, s.opts.BackfillChunkSize)
		if err != nil {
			return report, fmt.Errorf("list unresolved stock items: %w", err)
		}
		if len(items) == 0 {
			break
		}

		for _, item := range items {
			afterID = item.StockItemID
			report.ItemsScanned++
			report.LastStockItem = item.StockItemID

			stockItemID := item.StockItemID
			_, err := s.Normalize(ctx, NormalizeRequest{
				RawDescription: item.RawDescription,
				UserID:         item.UserID,
				StockItemID:    &stockItemID,
			})
			switch {
			case err == nil:
				report.ItemsResolved++
			case errors.Is(err, classify.ErrOracleUnavailable):
				// Fail closed: leave the item untouched and stop the run so
				// the next invocation retries from here.
				report.ItemsDeferred++
				return report, fmt.Errorf("backfill stock item %d: %w", item.StockItemID, err)
			case errors.Is(err, ErrEmptyDescription):
				report.ItemsFailed++
				s.logger.Warn().Int64("stock_item_id", item.StockItemID).Msg("skipping stock item with empty description")
			default:
				report.ItemsFailed++
				s.logger.Error().Err(err).Int64("stock_item_id", item.StockItemID).Msg("backfill item failed")
			}
		}

		if err := s.store.UpdateRunProgress(ctx, runID, backfillCounters(report)); err != nil {
			s.logger.Warn().Err(err).Int64("run_id", runID).Msg("failed to checkpoint backfill progress")
		}

		if len(items) < s.opts.BackfillChunkSize {
			break
		}
		if s.opts.BackfillPause > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(s.opts.BackfillPause):
			}
		}
	}

	remaining, err := s.store.CountUnresolvedStockItems(ctx)
	if err != nil {
		return report, fmt.Errorf("count remaining stock items: %w", err)
	}
	report.Remaining = remaining
	return report, nil
}

func backfillCounters(report *BackfillReport) db.RunCounters {
	counters := db.RunCounters{}
	if report == nil {
		return counters
	}
	counters.ItemsScanned = report.ItemsScanned
	counters.ItemsResolved = report.ItemsResolved
	counters.ItemsDeferred = report.ItemsDeferred
	counters.ItemsFailed = report.ItemsFailed
	if report.LastStockItem > 0 {
		last := report.LastStockItem
		counters.LastStockItem = &last
	}
	return counters
}
