package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Candidate statuses.
const (
	CandidateStatusPending      = "pending"
	CandidateStatusAutoApproved = "auto_approved"
	CandidateStatusApproved     = "approved"
	CandidateStatusRejected     = "rejected"
)

// CandidateSummary is a read model for the review queue.
type CandidateSummary struct {
	CandidateID    int64      `json:"candidate_id"`
	CandidateUUID  string     `json:"candidate_uuid"`
	MasterSKU      string     `json:"master_sku"`
	CanonicalName  string     `json:"canonical_name"`
	RawDescription string     `json:"raw_description"`
	VariantText    string     `json:"variant_text"`
	Confidence     float64    `json:"confidence"`
	Language       string     `json:"language,omitempty"`
	Status         string     `json:"status"`
	DecidedBy      *string    `json:"decided_by,omitempty"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// InsertCandidateParams records one normalization decision for audit.
type InsertCandidateParams struct {
	MasterProductID int64
	RawDescription  string
	VariantText     string
	OracleResponse  *string
	Confidence      float64
	Language        string
	Status          string
}

// InsertCandidate appends a row to the review queue and returns its UUID.
func (p *Pool) InsertCandidate(ctx context.Context, params InsertCandidateParams) (string, error) {
	if params.MasterProductID <= 0 {
		return "", fmt.Errorf("master product id is required")
	}
	switch params.Status {
	case CandidateStatusPending, CandidateStatusAutoApproved:
	default:
		return "", fmt.Errorf("invalid initial candidate status %q", params.Status)
	}

	const q = `
INSERT INTO catalog.candidates (
	master_product_id, raw_description, variant_text,
	oracle_response, confidence, language, status
) VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING candidate_uuid::text
`

	var uuid string
	err := p.QueryRow(ctx, q,
		params.MasterProductID,
		params.RawDescription,
		params.VariantText,
		params.OracleResponse,
		params.Confidence,
		params.Language,
		params.Status,
	).Scan(&uuid)
	if err != nil {
		return "", fmt.Errorf("insert candidate: %w", err)
	}
	return uuid, nil
}

// ListCandidates lists queue rows, optionally filtered by status.
func (p *Pool) ListCandidates(ctx context.Context, status string, limit int) ([]CandidateSummary, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	c.candidate_id,
	c.candidate_uuid::text,
	m.sku,
	m.canonical_name,
	c.raw_description,
	c.variant_text,
	c.confidence,
	c.language,
	c.status,
	c.decided_by,
	c.decided_at,
	c.created_at
FROM catalog.candidates c
JOIN catalog.master_products m
	ON m.master_product_id = c.master_product_id
WHERE ($1 = '' OR c.status = $1)
ORDER BY c.created_at DESC, c.candidate_id DESC
LIMIT $2
`

	rows, err := p.Query(ctx, q, strings.TrimSpace(strings.ToLower(status)), limit)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	items := make([]CandidateSummary, 0, limit)
	for rows.Next() {
		var row CandidateSummary
		if err := rows.Scan(
			&row.CandidateID,
			&row.CandidateUUID,
			&row.MasterSKU,
			&row.CanonicalName,
			&row.RawDescription,
			&row.VariantText,
			&row.Confidence,
			&row.Language,
			&row.Status,
			&row.DecidedBy,
			&row.DecidedAt,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan candidate row: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate rows: %w", err)
	}
	return items, nil
}

// GetCandidateByUUID returns one queue row.
func (p *Pool) GetCandidateByUUID(ctx context.Context, candidateUUID string) (*CandidateSummary, error) {
	trimmed := strings.TrimSpace(candidateUUID)
	if trimmed == "" {
		return nil, fmt.Errorf("candidate UUID is required")
	}

	const q = `
SELECT
	c.candidate_id,
	c.candidate_uuid::text,
	m.sku,
	m.canonical_name,
	c.raw_description,
	c.variant_text,
	c.confidence,
	c.language,
	c.status,
	c.decided_by,
	c.decided_at,
	c.created_at
FROM catalog.candidates c
JOIN catalog.master_products m
	ON m.master_product_id = c.master_product_id
WHERE c.candidate_uuid = $1::uuid
`

	var row CandidateSummary
	err := p.QueryRow(ctx, q, trimmed).Scan(
		&row.CandidateID,
		&row.CandidateUUID,
		&row.MasterSKU,
		&row.CanonicalName,
		&row.RawDescription,
		&row.VariantText,
		&row.Confidence,
		&row.Language,
		&row.Status,
		&row.DecidedBy,
		&row.DecidedAt,
		&row.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query candidate by uuid: %w", err)
	}
	return &row, nil
}

// DecideCandidate moves a pending row to approved or rejected. Approval
// confirms the mapping, so the candidate's variant text is registered as a
// synonym of its master in the same transaction. Decided rows stay decided:
// a second decision is a no-op reported as not found.
func (p *Pool) DecideCandidate(ctx context.Context, candidateUUID, newStatus, decidedBy string) error {
	switch newStatus {
	case CandidateStatusApproved, CandidateStatusRejected:
	default:
		return fmt.Errorf("invalid candidate decision %q", newStatus)
	}

	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return fmt.Errorf("begin decision transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const q = `
UPDATE catalog.candidates
SET status = $2, decided_by = $3, decided_at = now(), updated_at = now()
WHERE candidate_uuid = $1::uuid
  AND status = 'pending'
RETURNING master_product_id, variant_text
`

	var masterProductID int64
	var variantText string
	err = tx.QueryRow(ctx, q, strings.TrimSpace(candidateUUID), newStatus, decidedBy).
		Scan(&masterProductID, &variantText)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return ErrNoRows
		}
		return fmt.Errorf("decide candidate: %w", err)
	}

	if newStatus == CandidateStatusApproved {
		const synonymQuery = `
INSERT INTO catalog.synonyms (master_product_id, variant_text, confidence, occurrence_count, first_seen_at, last_seen_at)
VALUES ($1, $2, 1.0, 1, now(), now())
ON CONFLICT (master_product_id, variant_text)
DO UPDATE SET
	confidence = GREATEST(catalog.synonyms.confidence, EXCLUDED.confidence),
	last_seen_at = now()
`
		if _, err := tx.Exec(ctx, synonymQuery, masterProductID, variantText); err != nil {
			return fmt.Errorf("register approved synonym: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit candidate decision: %w", err)
	}
	return nil
}
