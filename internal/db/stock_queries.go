package db

import (
	"context"
	"fmt"
	"time"
)

// UnresolvedStockItem is one inventory row awaiting a catalog identity.
type UnresolvedStockItem struct {
	StockItemID    int64      `json:"stock_item_id"`
	StockItemUUID  string     `json:"stock_item_uuid"`
	UserID         int64      `json:"user_id"`
	RawDescription string     `json:"raw_description"`
	PurchasedAt    *time.Time `json:"purchased_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ApplyMasterToStockItem copies a master's identity (sku, canonical name,
// base name, brand, category) onto a stock item that has no identity yet.
// Rows already carrying a SKU are never overwritten; the return value
// reports whether the assignment landed.
func (p *Pool) ApplyMasterToStockItem(ctx context.Context, stockItemID, masterProductID int64) (bool, error) {
	const q = `
UPDATE catalog.stock_items AS si
SET sku = m.sku,
	master_product_id = m.master_product_id,
	canonical_name = m.canonical_name,
	base_name = m.base_name,
	brand = m.brand,
	category = m.category,
	updated_at = now()
FROM catalog.master_products AS m
WHERE si.stock_item_id = $1
  AND m.master_product_id = $2
  AND (si.sku IS NULL OR si.sku = '')
  AND si.deleted_at IS NULL
`
	tag, err := p.Exec(ctx, q, stockItemID, masterProductID)
	if err != nil {
		return false, fmt.Errorf("apply master to stock item: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListUnresolvedStockItems pages through inventory rows without a SKU using
// keyset pagination, so interrupted backfills resume where they stopped.
func (p *Pool) ListUnresolvedStockItems(ctx context.Context, afterID int64, limit int) ([]UnresolvedStockItem, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT stock_item_id, stock_item_uuid::text, user_id, raw_description, purchased_at, created_at
FROM catalog.stock_items
WHERE stock_item_id > $1
  AND (sku IS NULL OR sku = '')
  AND deleted_at IS NULL
ORDER BY stock_item_id ASC
LIMIT $2
`

	rows, err := p.Query(ctx, q, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query unresolved stock items: %w", err)
	}
	defer rows.Close()

	items := make([]UnresolvedStockItem, 0, limit)
	for rows.Next() {
		var row UnresolvedStockItem
		if err := rows.Scan(
			&row.StockItemID,
			&row.StockItemUUID,
			&row.UserID,
			&row.RawDescription,
			&row.PurchasedAt,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan unresolved stock item: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unresolved stock items: %w", err)
	}
	return items, nil
}

// CountUnresolvedStockItems returns the remaining backfill workload.
func (p *Pool) CountUnresolvedStockItems(ctx context.Context) (int64, error) {
	const q = `
SELECT COUNT(*)
FROM catalog.stock_items
WHERE (sku IS NULL OR sku = '')
  AND deleted_at IS NULL
`
	var count int64
	if err := p.QueryRow(ctx, q).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unresolved stock items: %w", err)
	}
	return count, nil
}
