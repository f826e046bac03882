package db

import (
	"context"
	"fmt"
	"time"
)

// ConsolidationMaster carries the fields consolidation grouping needs.
type ConsolidationMaster struct {
	MasterProductID int64
	SKU             string
	CanonicalName   string
	BaseName        string
	Brand           *string
	NotesCount      int
	UserCount       int
	CreatedAt       time.Time
}

// MergeCounts reports what a single merge rewrote.
type MergeCounts struct {
	SynonymsMoved     int64
	StockItemsRewired int64
	CandidatesRewired int64
	NotesFolded       int
}

// ListActiveMastersForConsolidation returns every active master with the
// fields duplicate grouping and survivor selection need.
func (p *Pool) ListActiveMastersForConsolidation(ctx context.Context) ([]ConsolidationMaster, error) {
	const q = `
SELECT master_product_id, sku, canonical_name, base_name, brand, notes_count, user_count, created_at
FROM catalog.master_products
WHERE status = 'active'
ORDER BY master_product_id ASC
`

	rows, err := p.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query masters for consolidation: %w", err)
	}
	defer rows.Close()

	items := make([]ConsolidationMaster, 0, 64)
	for rows.Next() {
		var row ConsolidationMaster
		if err := rows.Scan(
			&row.MasterProductID,
			&row.SKU,
			&row.CanonicalName,
			&row.BaseName,
			&row.Brand,
			&row.NotesCount,
			&row.UserCount,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan consolidation master: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consolidation masters: %w", err)
	}
	return items, nil
}

// MergeMasters folds one duplicate master into a survivor inside a single
// transaction: the loser's SKU and synonyms move to the survivor,
// stock items and candidates are rewired, counters fold, and the loser is
// soft-retired with a pointer to the survivor. Everything rolls back
// together on any failure.
func (p *Pool) MergeMasters(ctx context.Context, survivorID, loserID int64) (MergeCounts, error) {
	if survivorID == loserID {
		return MergeCounts{}, fmt.Errorf("survivor and loser are the same master %d", survivorID)
	}

	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return MergeCounts{}, fmt.Errorf("begin merge transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Lock both rows in id order so concurrent merges cannot deadlock.
	const lockQuery = `
SELECT master_product_id, sku, notes_count
FROM catalog.master_products
WHERE master_product_id IN ($1, $2) AND status = 'active'
ORDER BY master_product_id ASC
FOR UPDATE
`
	rows, err := tx.Query(ctx, lockQuery, survivorID, loserID)
	if err != nil {
		return MergeCounts{}, fmt.Errorf("lock merge pair %d<-%d: %w", survivorID, loserID, err)
	}

	var loserSKU string
	var loserNotes int
	locked := 0
	for rows.Next() {
		var id int64
		var sku string
		var notes int
		if err := rows.Scan(&id, &sku, &notes); err != nil {
			rows.Close()
			return MergeCounts{}, fmt.Errorf("scan merge pair row: %w", err)
		}
		locked++
		if id == loserID {
			loserSKU = sku
			loserNotes = notes
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return MergeCounts{}, fmt.Errorf("iterate merge pair rows: %w", err)
	}
	rows.Close()
	if locked != 2 {
		return MergeCounts{}, fmt.Errorf("merge pair %d<-%d: expected 2 active masters, found %d", survivorID, loserID, locked)
	}

	var counts MergeCounts
	counts.NotesFolded = loserNotes

	// The loser's SKU becomes a confirmed synonym of the survivor, seeded
	// with the retiring master's observation count so lookups that used to
	// resolve through the loser still land in one hop.
	const skuSynonymQuery = `
INSERT INTO catalog.synonyms (master_product_id, variant_text, confidence, occurrence_count, first_seen_at, last_seen_at)
VALUES ($1, $2, 1.0, GREATEST($3, 1), now(), now())
ON CONFLICT (master_product_id, variant_text)
DO UPDATE SET
	confidence = GREATEST(catalog.synonyms.confidence, EXCLUDED.confidence),
	occurrence_count = catalog.synonyms.occurrence_count + EXCLUDED.occurrence_count,
	last_seen_at = now()
`
	if _, err := tx.Exec(ctx, skuSynonymQuery, survivorID, loserSKU, loserNotes); err != nil {
		return MergeCounts{}, fmt.Errorf("register loser sku synonym: %w", err)
	}

	// Move synonyms, folding occurrence counts where the survivor already
	// knows the variant.
	const moveSynonymsQuery = `
INSERT INTO catalog.synonyms (master_product_id, variant_text, confidence, occurrence_count, first_seen_at, last_seen_at)
SELECT $1, variant_text, confidence, occurrence_count, first_seen_at, last_seen_at
FROM catalog.synonyms
WHERE master_product_id = $2
ON CONFLICT (master_product_id, variant_text)
DO UPDATE SET
	confidence = GREATEST(catalog.synonyms.confidence, EXCLUDED.confidence),
	occurrence_count = catalog.synonyms.occurrence_count + EXCLUDED.occurrence_count,
	first_seen_at = LEAST(catalog.synonyms.first_seen_at, EXCLUDED.first_seen_at),
	last_seen_at = GREATEST(catalog.synonyms.last_seen_at, EXCLUDED.last_seen_at)
`
	tag, err := tx.Exec(ctx, moveSynonymsQuery, survivorID, loserID)
	if err != nil {
		return MergeCounts{}, fmt.Errorf("move loser synonyms: %w", err)
	}
	counts.SynonymsMoved = tag.RowsAffected()

	if _, err := tx.Exec(ctx, `DELETE FROM catalog.synonyms WHERE master_product_id = $1`, loserID); err != nil {
		return MergeCounts{}, fmt.Errorf("delete loser synonyms: %w", err)
	}

	const rewireStockQuery = `
UPDATE catalog.stock_items AS si
SET master_product_id = m.master_product_id,
	sku = m.sku,
	canonical_name = m.canonical_name,
	base_name = m.base_name,
	brand = m.brand,
	category = m.category,
	updated_at = now()
FROM catalog.master_products AS m
WHERE m.master_product_id = $1
  AND si.master_product_id = $2
`
	tag, err = tx.Exec(ctx, rewireStockQuery, survivorID, loserID)
	if err != nil {
		return MergeCounts{}, fmt.Errorf("rewire stock items: %w", err)
	}
	counts.StockItemsRewired = tag.RowsAffected()

	const rewireCandidatesQuery = `
UPDATE catalog.candidates
SET master_product_id = $1, updated_at = now()
WHERE master_product_id = $2
`
	tag, err = tx.Exec(ctx, rewireCandidatesQuery, survivorID, loserID)
	if err != nil {
		return MergeCounts{}, fmt.Errorf("rewire candidates: %w", err)
	}
	counts.CandidatesRewired = tag.RowsAffected()

	const foldCountersQuery = `
UPDATE catalog.master_products
SET notes_count = notes_count + $2,
	user_count = (
		SELECT COUNT(DISTINCT si.user_id)
		FROM catalog.stock_items si
		WHERE si.master_product_id = $1
		  AND si.deleted_at IS NULL
	),
	updated_at = now()
WHERE master_product_id = $1
`
	if _, err := tx.Exec(ctx, foldCountersQuery, survivorID, loserNotes); err != nil {
		return MergeCounts{}, fmt.Errorf("fold survivor counters: %w", err)
	}

	const retireLoserQuery = `
UPDATE catalog.master_products
SET status = 'consolidated',
	consolidated_into_id = $1,
	notes_count = 0,
	user_count = 0,
	updated_at = now()
WHERE master_product_id = $2 AND status = 'active'
`
	tag, err = tx.Exec(ctx, retireLoserQuery, survivorID, loserID)
	if err != nil {
		return MergeCounts{}, fmt.Errorf("retire loser master: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return MergeCounts{}, fmt.Errorf("loser master %d is not active", loserID)
	}

	if err := tx.Commit(ctx); err != nil {
		return MergeCounts{}, fmt.Errorf("commit merge %d<-%d: %w", survivorID, loserID, err)
	}
	return counts, nil
}
