package db

import (
	"context"
	"fmt"
)

// CatalogStats summarizes the catalog for the stats command and endpoint.
type CatalogStats struct {
	ActiveMasters        int64            `json:"active_masters"`
	ConsolidatedMasters  int64            `json:"consolidated_masters"`
	Synonyms             int64            `json:"synonyms"`
	CandidatesByStatus   map[string]int64 `json:"candidates_by_status"`
	StockItems           int64            `json:"stock_items"`
	UnresolvedStockItems int64            `json:"unresolved_stock_items"`
	RunsByStatus         map[string]int64 `json:"runs_by_status"`
}

// GetCatalogStats collects row counts across the catalog schema.
func (p *Pool) GetCatalogStats(ctx context.Context) (*CatalogStats, error) {
	stats := &CatalogStats{
		CandidatesByStatus: make(map[string]int64),
		RunsByStatus:       make(map[string]int64),
	}

	const countsQuery = `
SELECT
	(SELECT COUNT(*) FROM catalog.master_products WHERE status = 'active'),
	(SELECT COUNT(*) FROM catalog.master_products WHERE status = 'consolidated'),
	(SELECT COUNT(*) FROM catalog.synonyms),
	(SELECT COUNT(*) FROM catalog.stock_items WHERE deleted_at IS NULL),
	(SELECT COUNT(*) FROM catalog.stock_items WHERE (sku IS NULL OR sku = '') AND deleted_at IS NULL)
`
	if err := p.QueryRow(ctx, countsQuery).Scan(
		&stats.ActiveMasters,
		&stats.ConsolidatedMasters,
		&stats.Synonyms,
		&stats.StockItems,
		&stats.UnresolvedStockItems,
	); err != nil {
		return nil, fmt.Errorf("query catalog counts: %w", err)
	}

	const candidatesQuery = `
SELECT status, COUNT(*) FROM catalog.candidates GROUP BY status
`
	rows, err := p.Query(ctx, candidatesQuery)
	if err != nil {
		return nil, fmt.Errorf("query candidate counts: %w", err)
	}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan candidate count: %w", err)
		}
		stats.CandidatesByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate candidate counts: %w", err)
	}
	rows.Close()

	const runsQuery = `
SELECT status, COUNT(*) FROM catalog.normalization_runs GROUP BY status
`
	rows, err = p.Query(ctx, runsQuery)
	if err != nil {
		return nil, fmt.Errorf("query run counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan run count: %w", err)
		}
		stats.RunsByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run counts: %w", err)
	}

	return stats, nil
}
