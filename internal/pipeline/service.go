package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/estoqa/catalog/internal/catalog"
	"github.com/estoqa/catalog/internal/classify"
	"github.com/estoqa/catalog/internal/db"
	"github.com/estoqa/catalog/internal/langdetect"
)

// Resolution kinds for a normalization outcome.
const (
	ResolutionSynonym = "synonym"
	ResolutionMatched = "matched"
	ResolutionCreated = "created"
	ResolutionReused  = "reused"
)

// ErrEmptyDescription rejects blank input before any oracle call.
var ErrEmptyDescription = errors.New("raw description is empty")

// Options tunes pipeline behavior.
type Options struct {
	AutoApproveConfidence float64
	MatchSampleLimit      int
	BackfillChunkSize     int
	BackfillPause         time.Duration
}

func (o Options) withDefaults() Options {
	if o.AutoApproveConfidence <= 0 {
		o.AutoApproveConfidence = 0.90
	}
	if o.MatchSampleLimit <= 0 {
		o.MatchSampleLimit = 40
	}
	if o.BackfillChunkSize <= 0 {
		o.BackfillChunkSize = 25
	}
	return o
}

// Service runs the normalization pipeline: synonym lookup, oracle matching,
// canonicalization, master upsert, candidate queueing and inventory
// propagation.
type Service struct {
	store  Store
	oracle classify.Provider
	logger zerolog.Logger
	opts   Options
}

func NewService(store Store, oracle classify.Provider, logger zerolog.Logger, opts Options) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if oracle == nil {
		return nil, fmt.Errorf("oracle provider is required")
	}
	return &Service{
		store:  store,
		oracle: oracle,
		logger: logger.With().Str("component", "pipeline").Logger(),
		opts:   opts.withDefaults(),
	}, nil
}

// NormalizeRequest is one raw receipt line to resolve.
type NormalizeRequest struct {
	RawDescription string
	UserID         int64
	StockItemID    *int64
}

// NormalizeOutcome reports how a raw description resolved, carrying the
// full decomposed identity of the master it landed on.
type NormalizeOutcome struct {
	Resolution        string  `json:"resolution"`
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
	MasterProductID   int64   `json:"master_product_id"`
	MasterProductUUID string  `json:"master_product_uuid"`
	CandidateUUID     string  `json:"candidate_uuid,omitempty"`
	CandidateStatus   string  `json:"candidate_status,omitempty"`
	Confidence        float64 `json:"confidence,omitempty"`
	Propagated        bool    `json:"propagated"`
}

func outcomeIdentity(ref db.MasterRef) NormalizeOutcome {
	return NormalizeOutcome{
		SKU:               ref.SKU,
		CanonicalName:     ref.CanonicalName,
		BaseName:          ref.BaseName,
		Brand:             ref.Brand,
		PackageType:       ref.PackageType,
		QuantityValue:     ref.QuantityValue,
		QuantityUnit:      ref.QuantityUnit,
		QuantityBase:      ref.QuantityBase,
		QuantityBaseUnit:  ref.QuantityBaseUnit,
		IsBulk:            ref.IsBulk,
		Category:          ref.Category,
		MasterProductID:   ref.MasterProductID,
		MasterProductUUID: ref.MasterProductUUID,
	}
}

// Normalize resolves one raw description to a master product. Steps run
// strictly in order: synonym lookup, oracle match over a catalog sample,
// canonicalize, fingerprint, upsert, candidate, propagate. The oracle match
// fails open; canonicalization fails closed with zero rows written, so a
// dead oracle can never mint a wrong identity.
func (s *Service) Normalize(ctx context.Context, req NormalizeRequest) (NormalizeOutcome, error) {
	variant := catalog.NormalizeText(req.RawDescription)
	if variant == "" {
		return NormalizeOutcome{}, ErrEmptyDescription
	}

	logger := s.logger.With().Str("variant", variant).Logger()

	if ref, found, err := s.store.LookupSynonymMaster(ctx, variant); err != nil {
		return NormalizeOutcome{}, fmt.Errorf("lookup synonym: %w", err)
	} else if found {
		return s.resolveExisting(ctx, logger, req, variant, ref, ResolutionSynonym, 1, "")
	}

	if outcome, matched, err := s.tryOracleMatch(ctx, logger, req, variant); err != nil {
		return NormalizeOutcome{}, err
	} else if matched {
		return outcome, nil
	}

	result, err := s.oracle.Canonicalize(ctx, req.RawDescription)
	if err != nil {
		if errors.Is(err, classify.ErrOracleUnavailable) {
			logger.Warn().Err(err).Msg("oracle unavailable, deferring normalization")
			return NormalizeOutcome{}, fmt.Errorf("canonicalize %q: %w", variant, err)
		}
		return NormalizeOutcome{}, fmt.Errorf("canonicalize %q: %w", variant, err)
	}

	d := result.Decomposition
	sku := catalog.Fingerprint(d)

	// A SKU minted for a master that was since consolidated must land on
	// the survivor, not resurrect the retired row.
	if ref, found, err := s.store.ResolveConsolidatedSKU(ctx, sku); err != nil {
		return NormalizeOutcome{}, fmt.Errorf("resolve consolidated sku: %w", err)
	} else if found {
		return s.resolveExisting(ctx, logger, req, variant, ref, ResolutionReused, d.Confidence, result.RawResponse)
	}

	ref, inserted, err := s.store.UpsertMaster(ctx, db.UpsertMasterParams{
		SKU:              sku,
		CanonicalName:    d.CanonicalName(),
		BaseName:         d.BaseName,
		Brand:            d.Brand,
		PackageType:      d.PackageType,
		QuantityValue:    d.QuantityValue,
		QuantityUnit:     d.QuantityUnit,
		QuantityBase:     d.QuantityBase,
		QuantityBaseUnit: d.QuantityBaseUnit,
		IsBulk:           d.IsBulk,
		Category:         string(d.Category),
	})
	if err != nil {
		return NormalizeOutcome{}, fmt.Errorf("upsert master: %w", err)
	}

	candidateUUID, candidateStatus, err := s.enqueueCandidate(ctx, req, variant, ref, d.Confidence, result.RawResponse)
	if err != nil {
		return NormalizeOutcome{}, err
	}

	// Pending candidates stay out of the registry until a reviewer approves
	// them; only auto-approved mappings bind the variant immediately.
	if candidateStatus == db.CandidateStatusAutoApproved {
		if err := s.store.UpsertSynonym(ctx, ref.MasterProductID, variant, d.Confidence); err != nil {
			return NormalizeOutcome{}, fmt.Errorf("register synonym: %w", err)
		}
	}

	resolution := ResolutionReused
	if inserted {
		resolution = ResolutionCreated
	}

	propagated, err := s.propagate(ctx, req, ref)
	if err != nil {
		return NormalizeOutcome{}, err
	}

	logger.Info().
		Str("resolution", resolution).
		Str("sku", ref.SKU).
		Str("candidate_status", candidateStatus).
		Float64("confidence", d.Confidence).
		Msg("normalized raw description")

	outcome := outcomeIdentity(ref)
	outcome.Resolution = resolution
	outcome.CandidateUUID = candidateUUID
	outcome.CandidateStatus = candidateStatus
	outcome.Confidence = d.Confidence
	outcome.Propagated = propagated
	return outcome, nil
}

// MatchOutcome reports a read-only match probe.
type MatchOutcome struct {
	Matched       bool    `json:"matched"`
	Source        string  `json:"source,omitempty"`
	SKU           string  `json:"sku,omitempty"`
	CanonicalName string  `json:"canonical_name,omitempty"`
	Confidence    float64 `json:"confidence,omitempty"`
}

// Match probes the synonym registry and the oracle without writing anything.
// Oracle failures surface as a plain no-match.
func (s *Service) Match(ctx context.Context, rawDescription string) (MatchOutcome, error) {
	variant := catalog.NormalizeText(rawDescription)
	if variant == "" {
		return MatchOutcome{}, ErrEmptyDescription
	}

	if ref, found, err := s.store.LookupSynonymMaster(ctx, variant); err != nil {
		return MatchOutcome{}, fmt.Errorf("lookup synonym: %w", err)
	} else if found {
		return MatchOutcome{
			Matched:       true,
			Source:        "registry",
			SKU:           ref.SKU,
			CanonicalName: ref.CanonicalName,
			Confidence:    1,
		}, nil
	}

	sample, err := s.store.ListMatchSample(ctx, s.opts.MatchSampleLimit)
	if err != nil {
		return MatchOutcome{}, fmt.Errorf("list match sample: %w", err)
	}
	if len(sample) == 0 {
		return MatchOutcome{}, nil
	}

	offered := make([]classify.SampleProduct, 0, len(sample))
	for _, row := range sample {
		offered = append(offered, classify.SampleProduct{
			SKU:           row.SKU,
			CanonicalName: row.CanonicalName,
			Category:      row.Category,
		})
	}

	match, err := s.oracle.Match(ctx, rawDescription, offered)
	if err != nil {
		s.logger.Warn().Err(err).Str("variant", variant).Msg("oracle match probe failed")
		return MatchOutcome{}, nil
	}
	if !match.Matched {
		return MatchOutcome{}, nil
	}

	ref, found, err := s.store.GetActiveMasterBySKU(ctx, match.SKU)
	if err != nil {
		return MatchOutcome{}, fmt.Errorf("load matched master: %w", err)
	}
	if !found {
		return MatchOutcome{}, nil
	}

	return MatchOutcome{
		Matched:       true,
		Source:        "oracle",
		SKU:           ref.SKU,
		CanonicalName: ref.CanonicalName,
		Confidence:    match.Confidence,
	}, nil
}

// tryOracleMatch offers the most recent active masters to the oracle. Any
// failure here is logged and swallowed: a missed match costs at most a
// temporary duplicate, which consolidation later repairs.
func (s *Service) tryOracleMatch(ctx context.Context, logger zerolog.Logger, req NormalizeRequest, variant string) (NormalizeOutcome, bool, error) {
	sample, err := s.store.ListMatchSample(ctx, s.opts.MatchSampleLimit)
	if err != nil {
		return NormalizeOutcome{}, false, fmt.Errorf("list match sample: %w", err)
	}
	if len(sample) == 0 {
		return NormalizeOutcome{}, false, nil
	}

	offered := make([]classify.SampleProduct, 0, len(sample))
	for _, row := range sample {
		offered = append(offered, classify.SampleProduct{
			SKU:           row.SKU,
			CanonicalName: row.CanonicalName,
			Category:      row.Category,
		})
	}

	match, err := s.oracle.Match(ctx, req.RawDescription, offered)
	if err != nil {
		logger.Warn().Err(err).Msg("oracle match failed, treating as new product")
		return NormalizeOutcome{}, false, nil
	}
	if !match.Matched {
		return NormalizeOutcome{}, false, nil
	}

	ref, found, err := s.store.GetActiveMasterBySKU(ctx, match.SKU)
	if err != nil {
		return NormalizeOutcome{}, false, fmt.Errorf("load matched master: %w", err)
	}
	if !found {
		logger.Warn().Str("sku", match.SKU).Msg("matched master vanished, treating as new product")
		return NormalizeOutcome{}, false, nil
	}

	outcome, err := s.resolveExisting(ctx, logger, req, variant, ref, ResolutionMatched, match.Confidence, "")
	if err != nil {
		return NormalizeOutcome{}, false, err
	}
	return outcome, true, nil
}

// resolveExisting records a reference to a known master: bump counters,
// queue an audit candidate for oracle-sourced resolutions, register the
// variant once confirmed, and propagate to inventory.
func (s *Service) resolveExisting(ctx context.Context, logger zerolog.Logger, req NormalizeRequest, variant string, ref db.MasterRef, resolution string, confidence float64, oracleResponse string) (NormalizeOutcome, error) {
	if err := s.store.BumpMasterReference(ctx, ref.MasterProductID); err != nil {
		return NormalizeOutcome{}, fmt.Errorf("bump master reference: %w", err)
	}

	var candidateUUID, candidateStatus string
	if resolution != ResolutionSynonym {
		var err error
		candidateUUID, candidateStatus, err = s.enqueueCandidate(ctx, req, variant, ref, confidence, oracleResponse)
		if err != nil {
			return NormalizeOutcome{}, err
		}
	}

	// A synonym hit bumps the existing registry row without touching its
	// confidence. Oracle resolutions bind only once auto-approved; pending
	// candidates leave the registry untouched until review.
	switch {
	case resolution == ResolutionSynonym:
		if err := s.store.UpsertSynonym(ctx, ref.MasterProductID, variant, 0); err != nil {
			return NormalizeOutcome{}, fmt.Errorf("register synonym: %w", err)
		}
	case candidateStatus == db.CandidateStatusAutoApproved:
		if err := s.store.UpsertSynonym(ctx, ref.MasterProductID, variant, confidence); err != nil {
			return NormalizeOutcome{}, fmt.Errorf("register synonym: %w", err)
		}
	}

	propagated, err := s.propagate(ctx, req, ref)
	if err != nil {
		return NormalizeOutcome{}, err
	}

	logger.Info().
		Str("resolution", resolution).
		Str("sku", ref.SKU).
		Msg("resolved raw description to existing master")

	outcome := outcomeIdentity(ref)
	outcome.Resolution = resolution
	outcome.CandidateUUID = candidateUUID
	outcome.CandidateStatus = candidateStatus
	outcome.Confidence = confidence
	outcome.Propagated = propagated
	return outcome, nil
}

func (s *Service) enqueueCandidate(ctx context.Context, req NormalizeRequest, variant string, ref db.MasterRef, confidence float64, oracleResponse string) (string, string, error) {
	status := db.CandidateStatusPending
	if confidence >= s.opts.AutoApproveConfidence {
		status = db.CandidateStatusAutoApproved
	}

	var response *string
	if strings.TrimSpace(oracleResponse) != "" {
		response = &oracleResponse
	}

	uuid, err := s.store.InsertCandidate(ctx, db.InsertCandidateParams{
		MasterProductID: ref.MasterProductID,
		RawDescription:  req.RawDescription,
		VariantText:     variant,
		OracleResponse:  response,
		Confidence:      confidence,
		Language:        langdetect.DetectISO6391(req.RawDescription),
		Status:          status,
	})
	if err != nil {
		return "", "", fmt.Errorf("insert candidate: %w", err)
	}
	return uuid, status, nil
}

// propagate copies the resolved identity onto the originating stock item.
// Rows that already carry a SKU keep it.
func (s *Service) propagate(ctx context.Context, req NormalizeRequest, ref db.MasterRef) (bool, error) {
	if req.StockItemID == nil {
		return false, nil
	}
	applied, err := s.store.ApplyMasterToStockItem(ctx, *req.StockItemID, ref.MasterProductID)
	if err != nil {
		return false, fmt.Errorf("propagate to stock item %d: %w", *req.StockItemID, err)
	}
	if applied {
		if err := s.store.RecountMasterUsers(ctx, ref.MasterProductID); err != nil {
			return false, fmt.Errorf("recount master users: %w", err)
		}
	}
	return applied, nil
}
