package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/estoqa/catalog/internal/classify"
	"github.com/estoqa/catalog/internal/db"
	"github.com/estoqa/catalog/internal/pipeline"
)

type normalizeRequest struct {
	RawDescription string `json:"raw_description"`
	UserID         int64  `json:"user_id"`
	StockItemID    *int64 `json:"stock_item_id,omitempty"`
}

type matchRequest struct {
	RawDescription string `json:"raw_description"`
}

// handleNormalize resolves one raw description. A dead oracle answers 503
// with an explicit deferred marker instead of a half-written identity.
func (s *Server) handleNormalize(c echo.Context) error {
	var req normalizeRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"body": "must be valid JSON"})
	}
	if strings.TrimSpace(req.RawDescription) == "" {
		return failValidation(c, map[string]string{"raw_description": "is required"})
	}

	outcome, err := s.service.Normalize(c.Request().Context(), pipeline.NormalizeRequest{
		RawDescription: req.RawDescription,
		UserID:         req.UserID,
		StockItemID:    req.StockItemID,
	})
	if err != nil {
		if errors.Is(err, classify.ErrOracleUnavailable) {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"error":  "ORACLE_UNAVAILABLE",
				"status": "PENDING_NORMALIZATION",
			})
		}
		if errors.Is(err, pipeline.ErrEmptyDescription) {
			return failValidation(c, map[string]string{"raw_description": "is required"})
		}
		s.logger.Error().Err(err).Msg("normalize failed")
		return internalError(c, "Failed to normalize description")
	}

	return success(c, outcome)
}

func (s *Server) handleMatch(c echo.Context) error {
	var req matchRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"body": "must be valid JSON"})
	}
	if strings.TrimSpace(req.RawDescription) == "" {
		return failValidation(c, map[string]string{"raw_description": "is required"})
	}

	outcome, err := s.service.Match(c.Request().Context(), req.RawDescription)
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyDescription) {
			return failValidation(c, map[string]string{"raw_description": "is required"})
		}
		s.logger.Error().Err(err).Msg("match probe failed")
		return internalError(c, "Failed to match description")
	}
	return success(c, outcome)
}

func (s *Server) handleConsolidate(c echo.Context) error {
	report, err := s.service.Consolidate(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("consolidation failed")
		return internalError(c, "Failed to consolidate catalog")
	}
	return success(c, map[string]any{
		"merged_count":         report.MergedCount,
		"synonyms_created":     report.SynonymsCreated,
		"references_rewritten": report.ReferencesRewritten,
		"failed_groups":        report.FailedGroups,
	})
}

func (s *Server) handleMasters(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	items, err := s.pool.ListMasters(c.Request().Context(), db.MasterListOptions{
		Status:   c.QueryParam("status"),
		Category: c.QueryParam("category"),
		Search:   c.QueryParam("q"),
		Limit:    limit,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("query masters failed")
		return internalError(c, "Failed to load masters")
	}

	return success(c, map[string]any{
		"items": items,
		"limit": limit,
	})
}

func (s *Server) handleMasterDetail(c echo.Context) error {
	sku := strings.TrimSpace(c.Param("sku"))
	if sku == "" {
		return failValidation(c, map[string]string{"sku": "is required"})
	}

	detail, err := s.pool.GetMasterDetail(c.Request().Context(), sku)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return failNotFound(c, "Master product not found")
		}
		s.logger.Error().Err(err).Str("sku", sku).Msg("query master detail failed")
		return internalError(c, "Failed to load master detail")
	}
	return success(c, detail)
}

func (s *Server) handleCandidates(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	status := strings.TrimSpace(strings.ToLower(c.QueryParam("status")))
	switch status {
	case "", db.CandidateStatusPending, db.CandidateStatusAutoApproved, db.CandidateStatusApproved, db.CandidateStatusRejected:
	default:
		return failValidation(c, map[string]string{"status": "unknown candidate status"})
	}

	items, err := s.pool.ListCandidates(c.Request().Context(), status, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("query candidates failed")
		return internalError(c, "Failed to load candidates")
	}

	return success(c, map[string]any{
		"items":  items,
		"status": status,
		"limit":  limit,
	})
}

func (s *Server) handleApproveCandidate(c echo.Context) error {
	return s.decideCandidate(c, db.CandidateStatusApproved)
}

func (s *Server) handleRejectCandidate(c echo.Context) error {
	return s.decideCandidate(c, db.CandidateStatusRejected)
}

func (s *Server) decideCandidate(c echo.Context, newStatus string) error {
	candidateUUID := strings.TrimSpace(c.Param("candidate_uuid"))
	if candidateUUID == "" {
		return failValidation(c, map[string]string{"candidate_uuid": "is required"})
	}

	decidedBy := strings.TrimSpace(c.QueryParam("decided_by"))
	if decidedBy == "" {
		decidedBy = "api"
	}

	if err := s.pool.DecideCandidate(c.Request().Context(), candidateUUID, newStatus, decidedBy); err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return failNotFound(c, "No pending candidate with that UUID")
		}
		s.logger.Error().Err(err).Str("candidate_uuid", candidateUUID).Msg("decide candidate failed")
		return internalError(c, "Failed to decide candidate")
	}

	candidate, err := s.pool.GetCandidateByUUID(c.Request().Context(), candidateUUID)
	if err != nil {
		s.logger.Error().Err(err).Str("candidate_uuid", candidateUUID).Msg("reload candidate failed")
		return internalError(c, "Failed to load candidate")
	}
	return success(c, candidate)
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.pool.GetCatalogStats(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}
