package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/estoqa/catalog/internal/db"
)

// ConsolidateReport summarizes one consolidation pass.
type ConsolidateReport struct {
	GroupsExamined      int   `json:"groups_examined"`
	MergedCount         int   `json:"merged_count"`
	SynonymsCreated     int64 `json:"synonyms_created"`
	ReferencesRewritten int64 `json:"references_rewritten"`
	FailedGroups        int   `json:"failed_groups"`
}

// Consolidate repairs catalog drift: active masters sharing a
// case-normalized (base name, brand) signature are merged into a single
// survivor. Running it on clean data is a no-op, so the pass is a fixed
// point. Group failures are isolated; one broken merge never aborts the
// rest of the batch.
func (s *Service) Consolidate(ctx context.Context) (*ConsolidateReport, error) {
	runID, err := s.store.StartRun(ctx, db.RunKindConsolidate)
	if err != nil {
		return nil, err
	}

	report, runErr := s.consolidateOnce(ctx)

	status := db.RunStatusSucceeded
	var errorMessage *string
	if runErr != nil {
		status = db.RunStatusFailed
		msg := runErr.Error()
		errorMessage = &msg
	}
	counters := db.RunCounters{}
	if report != nil {
		counters.ItemsScanned = report.GroupsExamined
		counters.ItemsResolved = report.MergedCount
		counters.ItemsFailed = report.FailedGroups
	}
	if err := s.store.FinishRun(ctx, runID, status, counters, errorMessage); err != nil {
		s.logger.Error().Err(err).Int64("run_id", runID).Msg("failed to close consolidation run")
	}

	return report, runErr
}

func (s *Service) consolidateOnce(ctx context.Context) (*ConsolidateReport, error) {
	masters, err := s.store.ListActiveMastersForConsolidation(ctx)
	if err != nil {
		return nil, fmt.Errorf("list masters: %w", err)
	}

	groups := make(map[string][]db.ConsolidationMaster)
	for _, m := range masters {
		key := consolidationKey(m)
		groups[key] = append(groups[key], m)
	}

	report := &ConsolidateReport{}
	for key, members := range groups {
		if len(members) < 2 {
			continue
		}
		report.GroupsExamined++

		survivor := pickSurvivor(members)
		logger := s.logger.With().
			Str("group", key).
			Int64("survivor_id", survivor.MasterProductID).
			Str("survivor_sku", survivor.SKU).
			Logger()

		failed := false
		for _, loser := range members {
			if loser.MasterProductID == survivor.MasterProductID {
				continue
			}
			counts, err := s.store.MergeMasters(ctx, survivor.MasterProductID, loser.MasterProductID)
			if err != nil {
				logger.Error().Err(err).
					Int64("loser_id", loser.MasterProductID).
					Msg("merge failed, skipping rest of group")
				failed = true
				break
			}
			report.MergedCount++
			// Loser's SKU plus every synonym it carried.
			report.SynonymsCreated += counts.SynonymsMoved + 1
			report.ReferencesRewritten += counts.StockItemsRewired + counts.CandidatesRewired + counts.SynonymsMoved
			logger.Info().
				Int64("loser_id", loser.MasterProductID).
				Int64("stock_items", counts.StockItemsRewired).
				Int64("candidates", counts.CandidatesRewired).
				Int64("synonyms", counts.SynonymsMoved).
				Msg("merged duplicate master")
		}
		if failed {
			report.FailedGroups++
		}
	}

	return report, nil
}

func consolidationKey(m db.ConsolidationMaster) string {
	brand := ""
	if m.Brand != nil {
		brand = strings.ToUpper(strings.TrimSpace(*m.Brand))
	}
	return strings.ToUpper(strings.TrimSpace(m.BaseName)) + "|" + brand
}

// pickSurvivor favors the identity with the most evidence: highest
// reference count, then most distinct users, then the oldest row.
func pickSurvivor(members []db.ConsolidationMaster) db.ConsolidationMaster {
	sorted := make([]db.ConsolidationMaster, len(members))
	copy(sorted, members)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.NotesCount != b.NotesCount {
			return a.NotesCount > b.NotesCount
		}
		if a.UserCount != b.UserCount {
			return a.UserCount > b.UserCount
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.MasterProductID < b.MasterProductID
	})
	return sorted[0]
}
