package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// LookupSynonymMaster resolves a normalized variant text to its active
// master. Returns found=false when no synonym matches or the owning master
// is no longer active.
func (p *Pool) LookupSynonymMaster(ctx context.Context, variantText string) (MasterRef, bool, error) {
	trimmed := strings.TrimSpace(variantText)
	if trimmed == "" {
		return MasterRef{}, false, fmt.Errorf("variant text is required")
	}

	const q = `
SELECT m.master_product_id, m.master_product_uuid::text, m.sku, m.canonical_name,
	m.base_name, m.brand, m.package_type,
	m.quantity_value, m.quantity_unit, m.quantity_base, m.quantity_base_unit,
	m.is_bulk, m.category
FROM catalog.synonyms s
JOIN catalog.master_products m
	ON m.master_product_id = s.master_product_id
WHERE s.variant_text = $1
  AND m.status = 'active'
ORDER BY s.occurrence_count DESC, s.last_seen_at DESC
LIMIT 1
`

	var ref MasterRef
	err := p.QueryRow(ctx, q, trimmed).Scan(ref.scanDest()...)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return MasterRef{}, false, nil
		}
		return MasterRef{}, false, fmt.Errorf("query synonym master: %w", err)
	}
	return ref, true, nil
}

// UpsertSynonym records a confirmed variant text under a master. Repeat
// sightings bump the occurrence counter and keep the highest confidence;
// the registry is append-only otherwise.
func (p *Pool) UpsertSynonym(ctx context.Context, masterProductID int64, variantText string, confidence float64) error {
	trimmed := strings.TrimSpace(variantText)
	if trimmed == "" {
		return fmt.Errorf("variant text is required")
	}

	const q = `
INSERT INTO catalog.synonyms (master_product_id, variant_text, confidence, occurrence_count, first_seen_at, last_seen_at)
VALUES ($1, $2, $3, 1, now(), now())
ON CONFLICT (master_product_id, variant_text)
DO UPDATE SET
	occurrence_count = catalog.synonyms.occurrence_count + 1,
	confidence = GREATEST(catalog.synonyms.confidence, EXCLUDED.confidence),
	last_seen_at = now()
`

	if _, err := p.Exec(ctx, q, masterProductID, trimmed, confidence); err != nil {
		return fmt.Errorf("upsert synonym: %w", err)
	}
	return nil
}

// CountSynonyms returns the number of synonyms registered for a master.
func (p *Pool) CountSynonyms(ctx context.Context, masterProductID int64) (int, error) {
	const q = `
SELECT COUNT(*) FROM catalog.synonyms WHERE master_product_id = $1
`
	var count int
	if err := p.QueryRow(ctx, q, masterProductID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count synonyms: %w", err)
	}
	return count, nil
}
