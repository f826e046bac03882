package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Master statuses.
const (
	MasterStatusActive       = "active"
	MasterStatusConsolidated = "consolidated"
)

// MasterRef carries the identity of a master product after an upsert or
// lookup, decomposition fields included so callers never need a second
// round trip to echo them back.
type MasterRef struct {
	MasterProductID   int64   `json:"master_product_id"`
	MasterProductUUID string  `json:"master_product_uuid"`
	SKU               string  `json:"sku"`
	CanonicalName     string  `json:"canonical_name"`
	BaseName          string  `json:"base_name"`
	Brand             *string `json:"brand"`
	PackageType       *string `json:"package_type"`
	QuantityValue     float64 `json:"quantity_value"`
	QuantityUnit      string  `json:"quantity_unit"`
	QuantityBase      float64 `json:"quantity_base"`
	QuantityBaseUnit  string  `json:"quantity_base_unit"`
	IsBulk            bool    `json:"is_bulk"`
	Category          string  `json:"category"`
}

func (r *MasterRef) scanDest() []any {
	return []any{
		&r.MasterProductID, &r.MasterProductUUID, &r.SKU, &r.CanonicalName,
		&r.BaseName, &r.Brand, &r.PackageType,
		&r.QuantityValue, &r.QuantityUnit, &r.QuantityBase, &r.QuantityBaseUnit,
		&r.IsBulk, &r.Category,
	}
}

// MasterSummary is a read model for list commands and API responses.
type MasterSummary struct {
	MasterProductID   int64     `json:"master_product_id"`
	MasterProductUUID string    `json:"master_product_uuid"`
	SKU               string    `json:"sku"`
	CanonicalName     string    `json:"canonical_name"`
	Category          string    `json:"category"`
	Status            string    `json:"status"`
	IsBulk            bool      `json:"is_bulk"`
	NotesCount        int       `json:"notes_count"`
	UserCount         int       `json:"user_count"`
	SynonymCount      int       `json:"synonym_count"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// MasterDetail contains one master and its synonym rows.
type MasterDetail struct {
	Master   MasterDetailHeader `json:"master"`
	Synonyms []MasterSynonymRow `json:"synonyms"`
}

// MasterDetailHeader is the master section for detail output.
type MasterDetailHeader struct {
	MasterProductID    int64     `json:"master_product_id"`
	MasterProductUUID  string    `json:"master_product_uuid"`
	SKU                string    `json:"sku"`
	CanonicalName      string    `json:"canonical_name"`
	BaseName           string    `json:"base_name"`
	Brand              *string   `json:"brand,omitempty"`
	PackageType        *string   `json:"package_type,omitempty"`
	QuantityValue      float64   `json:"quantity_value"`
	QuantityUnit       string    `json:"quantity_unit"`
	QuantityBase       float64   `json:"quantity_base"`
	QuantityBaseUnit   string    `json:"quantity_base_unit"`
	IsBulk             bool      `json:"is_bulk"`
	Category           string    `json:"category"`
	Status             string    `json:"status"`
	ConsolidatedIntoID *int64    `json:"consolidated_into_id,omitempty"`
	NotesCount         int       `json:"notes_count"`
	UserCount          int       `json:"user_count"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// MasterSynonymRow is a synonym row within a master detail.
type MasterSynonymRow struct {
	SynonymUUID     string    `json:"synonym_uuid"`
	VariantText     string    `json:"variant_text"`
	Confidence      float64   `json:"confidence"`
	OccurrenceCount int       `json:"occurrence_count"`
	FirstSeenAt     time.Time `json:"first_seen_at"`
	LastSeenAt      time.Time `json:"last_seen_at"`
}

// MasterListOptions controls master list queries.
type MasterListOptions struct {
	Status   string
	Category string
	Search   string
	Limit    int
}

// UpsertMasterParams carries the decomposed identity of a new reference.
type UpsertMasterParams struct {
	SKU              string
	CanonicalName    string
	BaseName         string
	Brand            *string
	PackageType      *string
	QuantityValue    float64
	QuantityUnit     string
	QuantityBase     float64
	QuantityBaseUnit string
	IsBulk           bool
	Category         string
}

// UpsertMaster inserts a master for a fresh SKU or bumps the reference
// counter of the existing active row. The partial unique index on
// (sku) WHERE status='active' makes this race-safe: concurrent inserts of
// the same SKU collapse onto one row.
func (p *Pool) UpsertMaster(ctx context.Context, params UpsertMasterParams) (MasterRef, bool, error) {
	if strings.TrimSpace(params.SKU) == "" {
		return MasterRef{}, false, fmt.Errorf("sku is required")
	}
	if strings.TrimSpace(params.CanonicalName) == "" {
		return MasterRef{}, false, fmt.Errorf("canonical name is required")
	}

	const q = `
INSERT INTO catalog.master_products (
	sku, canonical_name, base_name, brand, package_type,
	quantity_value, quantity_unit, quantity_base, quantity_base_unit,
	is_bulk, category, status, notes_count, user_count
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'active', 1, 0)
ON CONFLICT (sku) WHERE status = 'active'
DO UPDATE SET
	notes_count = catalog.master_products.notes_count + 1,
	updated_at = now()
RETURNING master_product_id, master_product_uuid::text, sku, canonical_name,
	base_name, brand, package_type,
	quantity_value, quantity_unit, quantity_base, quantity_base_unit,
	is_bulk, category, (xmax = 0) AS inserted
`

	var ref MasterRef
	var inserted bool
	err := p.QueryRow(ctx, q,
		params.SKU,
		params.CanonicalName,
		params.BaseName,
		params.Brand,
		params.PackageType,
		params.QuantityValue,
		params.QuantityUnit,
		params.QuantityBase,
		params.QuantityBaseUnit,
		params.IsBulk,
		params.Category,
	).Scan(append(ref.scanDest(), &inserted)...)
	if err != nil {
		return MasterRef{}, false, fmt.Errorf("upsert master product: %w", err)
	}
	return ref, inserted, nil
}

// BumpMasterReference increments the reference counter for a synonym hit,
// where no upsert runs.
func (p *Pool) BumpMasterReference(ctx context.Context, masterProductID int64) error {
	const q = `
UPDATE catalog.master_products
SET notes_count = notes_count + 1, updated_at = now()
WHERE master_product_id = $1
`
	tag, err := p.Exec(ctx, q, masterProductID)
	if err != nil {
		return fmt.Errorf("bump master reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("master product %d not found", masterProductID)
	}
	return nil
}

// RecountMasterUsers recomputes user_count from stock item assignments.
// Recomputing keeps the counter idempotent under retries and backfills.
func (p *Pool) RecountMasterUsers(ctx context.Context, masterProductID int64) error {
	const q = `
UPDATE catalog.master_products
SET user_count = (
	SELECT COUNT(DISTINCT si.user_id)
	FROM catalog.stock_items si
	WHERE si.master_product_id = $1
	  AND si.deleted_at IS NULL
), updated_at = now()
WHERE master_product_id = $1
`
	if _, err := p.Exec(ctx, q, masterProductID); err != nil {
		return fmt.Errorf("recount master users: %w", err)
	}
	return nil
}

// GetActiveMasterBySKU returns the active master for a SKU, if any.
func (p *Pool) GetActiveMasterBySKU(ctx context.Context, sku string) (MasterRef, bool, error) {
	const q = `
SELECT master_product_id, master_product_uuid::text, sku, canonical_name,
	base_name, brand, package_type,
	quantity_value, quantity_unit, quantity_base, quantity_base_unit,
	is_bulk, category
FROM catalog.master_products
WHERE sku = $1 AND status = 'active'
`
	var ref MasterRef
	err := p.QueryRow(ctx, q, strings.TrimSpace(sku)).Scan(ref.scanDest()...)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return MasterRef{}, false, nil
		}
		return MasterRef{}, false, fmt.Errorf("query active master by sku: %w", err)
	}
	return ref, true, nil
}

// ResolveConsolidatedSKU follows a retired master's SKU through the
// consolidation chain to its active survivor. Returns found=false when the
// SKU never belonged to a consolidated master or the chain has no active
// endpoint.
func (p *Pool) ResolveConsolidatedSKU(ctx context.Context, sku string) (MasterRef, bool, error) {
	const q = `
WITH RECURSIVE chain AS (
	SELECT master_product_id, consolidated_into_id, 1 AS depth
	FROM catalog.master_products
	WHERE sku = $1 AND status = 'consolidated'
	UNION ALL
	SELECT m.master_product_id, m.consolidated_into_id, c.depth + 1
	FROM catalog.master_products m
	JOIN chain c ON m.master_product_id = c.consolidated_into_id
	WHERE c.depth < 16
)
SELECT m.master_product_id, m.master_product_uuid::text, m.sku, m.canonical_name,
	m.base_name, m.brand, m.package_type,
	m.quantity_value, m.quantity_unit, m.quantity_base, m.quantity_base_unit,
	m.is_bulk, m.category
FROM chain c
JOIN catalog.master_products m ON m.master_product_id = c.master_product_id
WHERE m.status = 'active'
LIMIT 1
`
	var ref MasterRef
	err := p.QueryRow(ctx, q, strings.TrimSpace(sku)).Scan(ref.scanDest()...)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return MasterRef{}, false, nil
		}
		return MasterRef{}, false, fmt.Errorf("resolve consolidated sku: %w", err)
	}
	return ref, true, nil
}

// MatchSampleRow is one active master offered to the oracle during matching.
type MatchSampleRow struct {
	SKU           string
	CanonicalName string
	Category      string
}

// ListMatchSample returns the most recently referenced active masters.
func (p *Pool) ListMatchSample(ctx context.Context, limit int) ([]MatchSampleRow, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT sku, canonical_name, category
FROM catalog.master_products
WHERE status = 'active'
ORDER BY updated_at DESC, master_product_id DESC
LIMIT $1
`
	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query match sample: %w", err)
	}
	defer rows.Close()

	items := make([]MatchSampleRow, 0, limit)
	for rows.Next() {
		var row MatchSampleRow
		if err := rows.Scan(&row.SKU, &row.CanonicalName, &row.Category); err != nil {
			return nil, fmt.Errorf("scan match sample row: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate match sample rows: %w", err)
	}
	return items, nil
}

// ListMasters lists masters filtered by status, category and name search.
func (p *Pool) ListMasters(ctx context.Context, opts MasterListOptions) ([]MasterSummary, error) {
	if opts.Limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	search := strings.TrimSpace(opts.Search)
	if search != "" {
		search = "%" + search + "%"
	}

	const q = `
SELECT
	m.master_product_id,
	m.master_product_uuid::text,
	m.sku,
	m.canonical_name,
	m.category,
	m.status,
	m.is_bulk,
	m.notes_count,
	m.user_count,
	(SELECT COUNT(*) FROM catalog.synonyms s WHERE s.master_product_id = m.master_product_id) AS synonym_count,
	m.created_at,
	m.updated_at
FROM catalog.master_products m
WHERE ($1 = '' OR m.status = $1)
  AND ($2 = '' OR m.category = $2)
  AND ($3 = '' OR m.canonical_name ILIKE $3)
ORDER BY m.notes_count DESC, m.updated_at DESC, m.master_product_id DESC
LIMIT $4
`

	rows, err := p.Query(ctx, q,
		strings.TrimSpace(strings.ToLower(opts.Status)),
		strings.TrimSpace(strings.ToLower(opts.Category)),
		search,
		opts.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query masters: %w", err)
	}
	defer rows.Close()

	items := make([]MasterSummary, 0, opts.Limit)
	for rows.Next() {
		var row MasterSummary
		if err := rows.Scan(
			&row.MasterProductID,
			&row.MasterProductUUID,
			&row.SKU,
			&row.CanonicalName,
			&row.Category,
			&row.Status,
			&row.IsBulk,
			&row.NotesCount,
			&row.UserCount,
			&row.SynonymCount,
			&row.CreatedAt,
			&row.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan master summary row: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate master summary rows: %w", err)
	}
	return items, nil
}

// GetMasterDetail returns one master by SKU and its synonyms. Consolidated
// rows resolve too so history stays inspectable.
func (p *Pool) GetMasterDetail(ctx context.Context, sku string) (*MasterDetail, error) {
	trimmed := strings.TrimSpace(sku)
	if trimmed == "" {
		return nil, fmt.Errorf("sku is required")
	}

	const masterQuery = `
SELECT
	master_product_id,
	master_product_uuid::text,
	sku,
	canonical_name,
	base_name,
	brand,
	package_type,
	quantity_value,
	quantity_unit,
	quantity_base,
	quantity_base_unit,
	is_bulk,
	category,
	status,
	consolidated_into_id,
	notes_count,
	user_count,
	created_at,
	updated_at
FROM catalog.master_products
WHERE sku = $1
ORDER BY (status = 'active') DESC, updated_at DESC
LIMIT 1
`

	var header MasterDetailHeader
	if err := p.QueryRow(ctx, masterQuery, trimmed).Scan(
		&header.MasterProductID,
		&header.MasterProductUUID,
		&header.SKU,
		&header.CanonicalName,
		&header.BaseName,
		&header.Brand,
		&header.PackageType,
		&header.QuantityValue,
		&header.QuantityUnit,
		&header.QuantityBase,
		&header.QuantityBaseUnit,
		&header.IsBulk,
		&header.Category,
		&header.Status,
		&header.ConsolidatedIntoID,
		&header.NotesCount,
		&header.UserCount,
		&header.CreatedAt,
		&header.UpdatedAt,
	); err != nil {
		if errors.Is(err, ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query master detail header: %w", err)
	}

	const synonymsQuery = `
SELECT synonym_uuid::text, variant_text, confidence, occurrence_count, first_seen_at, last_seen_at
FROM catalog.synonyms
WHERE master_product_id = $1
ORDER BY occurrence_count DESC, last_seen_at DESC
`

	rows, err := p.Query(ctx, synonymsQuery, header.MasterProductID)
	if err != nil {
		return nil, fmt.Errorf("query master synonyms: %w", err)
	}
	defer rows.Close()

	synonyms := make([]MasterSynonymRow, 0, 8)
	for rows.Next() {
		var row MasterSynonymRow
		if err := rows.Scan(
			&row.SynonymUUID,
			&row.VariantText,
			&row.Confidence,
			&row.OccurrenceCount,
			&row.FirstSeenAt,
			&row.LastSeenAt,
		); err != nil {
			return nil, fmt.Errorf("scan master synonym row: %w", err)
		}
		synonyms = append(synonyms, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate master synonym rows: %w", err)
	}

	return &MasterDetail{
		Master:   header,
		Synonyms: synonyms,
	}, nil
}
