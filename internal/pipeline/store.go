package pipeline

import (
	"context"

	"github.com/estoqa/catalog/internal/db"
)

// Store is the persistence surface the pipeline needs. *db.Pool implements
// it; tests substitute an in-memory stub.
type Store interface {
	LookupSynonymMaster(ctx context.Context, variantText string) (db.MasterRef, bool, error)
	UpsertSynonym(ctx context.Context, masterProductID int64, variantText string, confidence float64) error

	GetActiveMasterBySKU(ctx context.Context, sku string) (db.MasterRef, bool, error)
	ResolveConsolidatedSKU(ctx context.Context, sku string) (db.MasterRef, bool, error)
	UpsertMaster(ctx context.Context, params db.UpsertMasterParams) (db.MasterRef, bool, error)
	BumpMasterReference(ctx context.Context, masterProductID int64) error
	RecountMasterUsers(ctx context.Context, masterProductID int64) error
	ListMatchSample(ctx context.Context, limit int) ([]db.MatchSampleRow, error)

	InsertCandidate(ctx context.Context, params db.InsertCandidateParams) (string, error)

	ApplyMasterToStockItem(ctx context.Context, stockItemID, masterProductID int64) (bool, error)
	ListUnresolvedStockItems(ctx context.Context, afterID int64, limit int) ([]db.UnresolvedStockItem, error)
	CountUnresolvedStockItems(ctx context.Context) (int64, error)

	ListActiveMastersForConsolidation(ctx context.Context) ([]db.ConsolidationMaster, error)
	MergeMasters(ctx context.Context, survivorID, loserID int64) (db.MergeCounts, error)

	StartRun(ctx context.Context, kind string) (int64, error)
	UpdateRunProgress(ctx context.Context, runID int64, counters db.RunCounters) error
	FinishRun(ctx context.Context, runID int64, status string, counters db.RunCounters, errorMessage *string) error
}
