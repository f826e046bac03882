package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/estoqa/catalog/internal/catalog"
	"github.com/estoqa/catalog/internal/classify"
	"github.com/estoqa/catalog/internal/db"
)

type stubMaster struct {
	ref              db.MasterRef
	baseName         string
	brand            *string
	status           string
	consolidatedInto int64
	notesCount       int
	userCount        int
	createdAt        time.Time
}

type stubStock struct {
	item     db.UnresolvedStockItem
	sku      string
	masterID int64
}

type stubStore struct {
	nextMasterID int64
	masters      map[int64]*stubMaster
	synonyms     map[int64]map[string]int
	synonymConf  map[int64]map[string]float64
	candidates   []db.InsertCandidateParams
	stock        map[int64]*stubStock
	mergeErrs    map[int64]error
	startedRuns  []string
	finishedRuns []string
}

func newStubStore() *stubStore {
	return &stubStore{
		masters:     make(map[int64]*stubMaster),
		synonyms:    make(map[int64]map[string]int),
		synonymConf: make(map[int64]map[string]float64),
		stock:       make(map[int64]*stubStock),
		mergeErrs:   make(map[int64]error),
	}
}

func (s *stubStore) addMaster(sku, canonicalName, baseName string, brand *string, notes, users int, createdAt time.Time) *stubMaster {
	s.nextMasterID++
	m := &stubMaster{
		ref: db.MasterRef{
			MasterProductID:   s.nextMasterID,
			MasterProductUUID: fmt.Sprintf("uuid-%d", s.nextMasterID),
			SKU:               sku,
			CanonicalName:     canonicalName,
			BaseName:          baseName,
			Brand:             brand,
		},
		baseName:   baseName,
		brand:      brand,
		status:     db.MasterStatusActive,
		notesCount: notes,
		userCount:  users,
		createdAt:  createdAt,
	}
	s.masters[m.ref.MasterProductID] = m
	return m
}

func (s *stubStore) addStockItem(id, userID int64, raw string) {
	s.stock[id] = &stubStock{
		item: db.UnresolvedStockItem{
			StockItemID:    id,
			StockItemUUID:  fmt.Sprintf("stock-%d", id),
			UserID:         userID,
			RawDescription: raw,
		},
	}
}

func (s *stubStore) LookupSynonymMaster(_ context.Context, variantText string) (db.MasterRef, bool, error) {
	for masterID, variants := range s.synonyms {
		if _, ok := variants[variantText]; !ok {
			continue
		}
		m := s.masters[masterID]
		if m != nil && m.status == db.MasterStatusActive {
			return m.ref, true, nil
		}
	}
	return db.MasterRef{}, false, nil
}

func (s *stubStore) UpsertSynonym(_ context.Context, masterProductID int64, variantText string, confidence float64) error {
	if s.synonyms[masterProductID] == nil {
		s.synonyms[masterProductID] = make(map[string]int)
	}
	if s.synonymConf[masterProductID] == nil {
		s.synonymConf[masterProductID] = make(map[string]float64)
	}
	s.synonyms[masterProductID][variantText]++
	if confidence > s.synonymConf[masterProductID][variantText] {
		s.synonymConf[masterProductID][variantText] = confidence
	}
	return nil
}

func (s *stubStore) GetActiveMasterBySKU(_ context.Context, sku string) (db.MasterRef, bool, error) {
	for _, m := range s.masters {
		if m.ref.SKU == sku && m.status == db.MasterStatusActive {
			return m.ref, true, nil
		}
	}
	return db.MasterRef{}, false, nil
}

func (s *stubStore) ResolveConsolidatedSKU(_ context.Context, sku string) (db.MasterRef, bool, error) {
	for _, m := range s.masters {
		if m.ref.SKU != sku || m.status != db.MasterStatusConsolidated {
			continue
		}
		current := m
		for depth := 0; depth < 16; depth++ {
			next := s.masters[current.consolidatedInto]
			if next == nil {
				return db.MasterRef{}, false, nil
			}
			if next.status == db.MasterStatusActive {
				return next.ref, true, nil
			}
			current = next
		}
	}
	return db.MasterRef{}, false, nil
}

func (s *stubStore) UpsertMaster(_ context.Context, params db.UpsertMasterParams) (db.MasterRef, bool, error) {
	for _, m := range s.masters {
		if m.ref.SKU == params.SKU && m.status == db.MasterStatusActive {
			m.notesCount++
			return m.ref, false, nil
		}
	}
	m := s.addMaster(params.SKU, params.CanonicalName, params.BaseName, params.Brand, 1, 0, time.Now())
	m.ref.PackageType = params.PackageType
	m.ref.QuantityValue = params.QuantityValue
	m.ref.QuantityUnit = params.QuantityUnit
	m.ref.QuantityBase = params.QuantityBase
	m.ref.QuantityBaseUnit = params.QuantityBaseUnit
	m.ref.IsBulk = params.IsBulk
	m.ref.Category = params.Category
	return m.ref, true, nil
}

func (s *stubStore) BumpMasterReference(_ context.Context, masterProductID int64) error {
	m := s.masters[masterProductID]
	if m == nil {
		return fmt.Errorf("master %d not found", masterProductID)
	}
	m.notesCount++
	return nil
}

func (s *stubStore) RecountMasterUsers(_ context.Context, masterProductID int64) error {
	m := s.masters[masterProductID]
	if m == nil {
		return fmt.Errorf("master %d not found", masterProductID)
	}
	users := make(map[int64]struct{})
	for _, item := range s.stock {
		if item.masterID == masterProductID {
			users[item.item.UserID] = struct{}{}
		}
	}
	m.userCount = len(users)
	return nil
}

func (s *stubStore) ListMatchSample(_ context.Context, limit int) ([]db.MatchSampleRow, error) {
	rows := make([]db.MatchSampleRow, 0, limit)
	for _, m := range s.masters {
		if m.status != db.MasterStatusActive {
			continue
		}
		rows = append(rows, db.MatchSampleRow{
			SKU:           m.ref.SKU,
			CanonicalName: m.ref.CanonicalName,
		})
		if len(rows) == limit {
			break
		}
	}
	return rows, nil
}

func (s *stubStore) InsertCandidate(_ context.Context, params db.InsertCandidateParams) (string, error) {
	s.candidates = append(s.candidates, params)
	return fmt.Sprintf("cand-%d", len(s.candidates)), nil
}

func (s *stubStore) ApplyMasterToStockItem(_ context.Context, stockItemID, masterProductID int64) (bool, error) {
	item := s.stock[stockItemID]
	if item == nil || item.sku != "" {
		return false, nil
	}
	master := s.masters[masterProductID]
	if master == nil {
		return false, fmt.Errorf("master %d not found", masterProductID)
	}
	item.sku = master.ref.SKU
	item.masterID = masterProductID
	return true, nil
}

func (s *stubStore) ListUnresolvedStockItems(_ context.Context, afterID int64, limit int) ([]db.UnresolvedStockItem, error) {
	ids := make([]int64, 0, len(s.stock))
	for id, item := range s.stock {
		if id > afterID && item.sku == "" {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	items := make([]db.UnresolvedStockItem, 0, limit)
	for _, id := range ids {
		items = append(items, s.stock[id].item)
		if len(items) == limit {
			break
		}
	}
	return items, nil
}

func (s *stubStore) CountUnresolvedStockItems(_ context.Context) (int64, error) {
	var count int64
	for _, item := range s.stock {
		if item.sku == "" {
			count++
		}
	}
	return count, nil
}

func (s *stubStore) ListActiveMastersForConsolidation(_ context.Context) ([]db.ConsolidationMaster, error) {
	items := make([]db.ConsolidationMaster, 0, len(s.masters))
	for _, m := range s.masters {
		if m.status != db.MasterStatusActive {
			continue
		}
		items = append(items, db.ConsolidationMaster{
			MasterProductID: m.ref.MasterProductID,
			SKU:             m.ref.SKU,
			CanonicalName:   m.ref.CanonicalName,
			BaseName:        m.baseName,
			Brand:           m.brand,
			NotesCount:      m.notesCount,
			UserCount:       m.userCount,
			CreatedAt:       m.createdAt,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].MasterProductID < items[j].MasterProductID })
	return items, nil
}

func (s *stubStore) MergeMasters(_ context.Context, survivorID, loserID int64) (db.MergeCounts, error) {
	if err := s.mergeErrs[loserID]; err != nil {
		return db.MergeCounts{}, err
	}
	survivor := s.masters[survivorID]
	loser := s.masters[loserID]
	if survivor == nil || loser == nil || survivor.status != db.MasterStatusActive || loser.status != db.MasterStatusActive {
		return db.MergeCounts{}, fmt.Errorf("merge pair %d<-%d not active", survivorID, loserID)
	}

	var counts db.MergeCounts
	if s.synonyms[survivorID] == nil {
		s.synonyms[survivorID] = make(map[string]int)
	}
	if s.synonymConf[survivorID] == nil {
		s.synonymConf[survivorID] = make(map[string]float64)
	}
	seed := loser.notesCount
	if seed < 1 {
		seed = 1
	}
	s.synonyms[survivorID][loser.ref.SKU] += seed
	s.synonymConf[survivorID][loser.ref.SKU] = 1
	for variant, occurrences := range s.synonyms[loserID] {
		s.synonyms[survivorID][variant] += occurrences
		counts.SynonymsMoved++
	}
	delete(s.synonyms, loserID)

	for _, item := range s.stock {
		if item.masterID == loserID {
			item.masterID = survivorID
			item.sku = survivor.ref.SKU
			counts.StockItemsRewired++
		}
	}

	counts.NotesFolded = loser.notesCount
	survivor.notesCount += loser.notesCount
	loser.status = db.MasterStatusConsolidated
	loser.consolidatedInto = survivorID
	loser.notesCount = 0
	loser.userCount = 0
	return counts, nil
}

func (s *stubStore) StartRun(_ context.Context, kind string) (int64, error) {
	s.startedRuns = append(s.startedRuns, kind)
	return int64(len(s.startedRuns)), nil
}

func (s *stubStore) UpdateRunProgress(_ context.Context, _ int64, _ db.RunCounters) error {
	return nil
}

func (s *stubStore) FinishRun(_ context.Context, _ int64, status string, _ db.RunCounters, _ *string) error {
	s.finishedRuns = append(s.finishedRuns, status)
	return nil
}

type stubOracle struct {
	canonicalizeResult classify.Result
	canonicalizeErr    error
	matchResult        classify.MatchResult
	matchErr           error
	canonicalizeCalls  int
	matchCalls         int
}

func (o *stubOracle) Name() string { return "stub" }

func (o *stubOracle) Canonicalize(_ context.Context, _ string) (classify.Result, error) {
	o.canonicalizeCalls++
	if o.canonicalizeErr != nil {
		return classify.Result{}, o.canonicalizeErr
	}
	return o.canonicalizeResult, nil
}

func (o *stubOracle) Match(_ context.Context, _ string, _ []classify.SampleProduct) (classify.MatchResult, error) {
	o.matchCalls++
	if o.matchErr != nil {
		return classify.MatchResult{}, o.matchErr
	}
	return o.matchResult, nil
}

func newTestService(t *testing.T, store *stubStore, oracle *stubOracle) *Service {
	t.Helper()
	svc, err := NewService(store, oracle, zerolog.Nop(), Options{
		AutoApproveConfidence: 0.90,
		MatchSampleLimit:      40,
		BackfillChunkSize:     2,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func milkDecomposition(confidence float64) classify.Result {
	brand := "Italac"
	d := catalog.Decomposition{
		BaseName:         "Leite Integral",
		Brand:            &brand,
		QuantityValue:    1,
		QuantityUnit:     "l",
		QuantityBase:     1000,
		QuantityBaseUnit: "ml",
		Category:         catalog.CategoryDairy,
		Confidence:       confidence,
	}
	return classify.Result{Decomposition: d, RawResponse: `{"base_name":"Leite Integral"}`}
}

func TestNormalizeSynonymHitSkipsOracle(t *testing.T) {
	store := newStubStore()
	m := store.addMaster("sku-milk", "LEITE INTEGRAL ITALAC 1000ML", "Leite Integral", nil, 3, 1, time.Now())
	store.synonyms[m.ref.MasterProductID] = map[string]int{"LEITE INTEG ITALAC 1L": 2}
	oracle := &stubOracle{}
	svc := newTestService(t, store, oracle)

	outcome, err := svc.Normalize(context.Background(), NormalizeRequest{RawDescription: " leite  integ italac 1l "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Resolution != ResolutionSynonym {
		t.Errorf("resolution = %q", outcome.Resolution)
	}
	if outcome.SKU != "sku-milk" {
		t.Errorf("sku = %q", outcome.SKU)
	}
	if oracle.canonicalizeCalls != 0 || oracle.matchCalls != 0 {
		t.Errorf("oracle consulted on synonym hit: canonicalize=%d match=%d", oracle.canonicalizeCalls, oracle.matchCalls)
	}
	if m.notesCount != 4 {
		t.Errorf("notes count = %d, want 4", m.notesCount)
	}
	if store.synonyms[m.ref.MasterProductID]["LEITE INTEG ITALAC 1L"] != 3 {
		t.Errorf("occurrence count = %d, want 3", store.synonyms[m.ref.MasterProductID]["LEITE INTEG ITALAC 1L"])
	}
	if len(store.candidates) != 0 {
		t.Errorf("synonym hit queued %d candidates", len(store.candidates))
	}
}

func TestNormalizeOracleMatchReusesMaster(t *testing.T) {
	store := newStubStore()
	m := store.addMaster("sku-milk", "LEITE INTEGRAL ITALAC 1000ML", "Leite Integral", nil, 3, 1, time.Now())
	oracle := &stubOracle{
		matchResult: classify.MatchResult{Matched: true, SKU: "sku-milk", Confidence: 0.92},
	}
	svc := newTestService(t, store, oracle)

	outcome, err := svc.Normalize(context.Background(), NormalizeRequest{RawDescription: "LEITE ITALAC INTEGRAL CX 1LT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Resolution != ResolutionMatched {
		t.Errorf("resolution = %q", outcome.Resolution)
	}
	if oracle.canonicalizeCalls != 0 {
		t.Error("canonicalizer consulted despite successful match")
	}
	if store.synonyms[m.ref.MasterProductID]["LEITE ITALAC INTEGRAL CX 1LT"] != 1 {
		t.Error("variant not registered as synonym")
	}
	if len(store.candidates) != 1 {
		t.Fatalf("candidate count = %d, want 1", len(store.candidates))
	}
	if store.candidates[0].Status != db.CandidateStatusAutoApproved {
		t.Errorf("candidate status = %q", store.candidates[0].Status)
	}
}

func TestNormalizeCreatesMasterAutoApproved(t *testing.T) {
	store := newStubStore()
	oracle := &stubOracle{canonicalizeResult: milkDecomposition(0.95)}
	svc := newTestService(t, store, oracle)

	outcome, err := svc.Normalize(context.Background(), NormalizeRequest{RawDescription: "LEITE INTEG ITALAC 1L"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Resolution != ResolutionCreated {
		t.Errorf("resolution = %q", outcome.Resolution)
	}
	if outcome.CanonicalName != "LEITE INTEGRAL ITALAC 1000ML" {
		t.Errorf("canonical name = %q", outcome.CanonicalName)
	}
	if outcome.BaseName != "Leite Integral" {
		t.Errorf("base name = %q", outcome.BaseName)
	}
	if outcome.Brand == nil || *outcome.Brand != "Italac" {
		t.Errorf("brand = %v", outcome.Brand)
	}
	if outcome.QuantityBase != 1000 || outcome.QuantityBaseUnit != "ml" {
		t.Errorf("normalized quantity = %v %s", outcome.QuantityBase, outcome.QuantityBaseUnit)
	}
	if outcome.IsBulk {
		t.Error("milk is not bulk")
	}
	if outcome.Category != string(catalog.CategoryDairy) {
		t.Errorf("category = %q", outcome.Category)
	}
	if outcome.CandidateStatus != db.CandidateStatusAutoApproved {
		t.Errorf("candidate status = %q", outcome.CandidateStatus)
	}
	if len(store.masters) != 1 {
		t.Fatalf("master count = %d", len(store.masters))
	}
	if store.synonyms[outcome.MasterProductID]["LEITE INTEG ITALAC 1L"] != 1 {
		t.Error("variant not registered as synonym")
	}
	if store.synonymConf[outcome.MasterProductID]["LEITE INTEG ITALAC 1L"] != 0.95 {
		t.Errorf("synonym confidence = %v", store.synonymConf[outcome.MasterProductID]["LEITE INTEG ITALAC 1L"])
	}
}

func TestNormalizeLowConfidencePending(t *testing.T) {
	store := newStubStore()
	oracle := &stubOracle{canonicalizeResult: milkDecomposition(0.55)}
	svc := newTestService(t, store, oracle)

	outcome, err := svc.Normalize(context.Background(), NormalizeRequest{RawDescription: "LT INTEG ITAL"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.CandidateStatus != db.CandidateStatusPending {
		t.Errorf("candidate status = %q, want pending", outcome.CandidateStatus)
	}
	if len(store.synonyms[outcome.MasterProductID]) != 0 {
		t.Error("pending candidate must not bind a synonym before review")
	}
}

func TestNormalizeMatchedLowConfidenceDoesNotBindSynonym(t *testing.T) {
	store := newStubStore()
	m := store.addMaster("sku-milk", "LEITE INTEGRAL ITALAC 1000ML", "Leite Integral", nil, 3, 1, time.Now())
	oracle := &stubOracle{
		matchResult: classify.MatchResult{Matched: true, SKU: "sku-milk", Confidence: 0.60},
	}
	svc := newTestService(t, store, oracle)

	outcome, err := svc.Normalize(context.Background(), NormalizeRequest{RawDescription: "LEITE ITALAC INTEGRAL CX 1LT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.CandidateStatus != db.CandidateStatusPending {
		t.Errorf("candidate status = %q, want pending", outcome.CandidateStatus)
	}
	if len(store.synonyms[m.ref.MasterProductID]) != 0 {
		t.Error("unreviewed oracle match must not enter the registry")
	}

	// A second sighting of the same variant must consult the oracle again
	// instead of short-circuiting through a registry entry that was never
	// confirmed.
	if _, err := svc.Normalize(context.Background(), NormalizeRequest{RawDescription: "LEITE ITALAC INTEGRAL CX 1LT"}); err != nil {
		t.Fatalf("second normalize: %v", err)
	}
	if oracle.matchCalls != 2 {
		t.Errorf("match calls = %d, want 2", oracle.matchCalls)
	}
}

func TestNormalizeSecondVariantReusesSKU(t *testing.T) {
	store := newStubStore()
	oracle := &stubOracle{canonicalizeResult: milkDecomposition(0.95)}
	svc := newTestService(t, store, oracle)

	first, err := svc.Normalize(context.Background(), NormalizeRequest{RawDescription: "LEITE INTEG ITALAC 1L"})
	if err != nil {
		t.Fatalf("first normalize: %v", err)
	}
	second, err := svc.Normalize(context.Background(), NormalizeRequest{RawDescription: "LEITE ITALAC INTEGRAL CAIXA 1 LITRO"})
	if err != nil {
		t.Fatalf("second normalize: %v", err)
	}
	if second.SKU != first.SKU {
		t.Errorf("second variant minted different sku: %q vs %q", second.SKU, first.SKU)
	}
	if second.Resolution != ResolutionReused {
		t.Errorf("second resolution = %q, want reused", second.Resolution)
	}
	if len(store.masters) != 1 {
		t.Errorf("master count = %d, want 1", len(store.masters))
	}
}

func TestNormalizeOracleDownFailsClosed(t *testing.T) {
	store := newStubStore()
	oracle := &stubOracle{
		canonicalizeErr: fmt.Errorf("%w: connection refused", classify.ErrOracleUnavailable),
	}
	svc := newTestService(t, store, oracle)

	_, err := svc.Normalize(context.Background(), NormalizeRequest{RawDescription: "LEITE INTEG ITALAC 1L"})
	if !errors.Is(err, classify.ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
	if len(store.masters) != 0 {
		t.Error("master written despite oracle failure")
	}
	if len(store.synonyms) != 0 {
		t.Error("synonym written despite oracle failure")
	}
	if len(store.candidates) != 0 {
		t.Error("candidate written despite oracle failure")
	}
}

func TestNormalizeMatchFailureFailsOpen(t *testing.T) {
	store := newStubStore()
	store.addMaster("sku-other", "ARROZ BRANCO TIO JOAO 5000G", "Arroz Branco", nil, 1, 1, time.Now())
	oracle := &stubOracle{
		matchErr:           fmt.Errorf("%w: timeout", classify.ErrOracleUnavailable),
		canonicalizeResult: milkDecomposition(0.95),
	}
	svc := newTestService(t, store, oracle)

	outcome, err := svc.Normalize(context.Background(), NormalizeRequest{RawDescription: "LEITE INTEG ITALAC 1L"})
	if err != nil {
		t.Fatalf("match failure must not block normalization: %v", err)
	}
	if outcome.Resolution != ResolutionCreated {
		t.Errorf("resolution = %q", outcome.Resolution)
	}
	if oracle.matchCalls != 1 || oracle.canonicalizeCalls != 1 {
		t.Errorf("calls: match=%d canonicalize=%d", oracle.matchCalls, oracle.canonicalizeCalls)
	}
}

func TestNormalizePropagatesToStockItem(t *testing.T) {
	store := newStubStore()
	store.addStockItem(7, 42, "LEITE INTEG ITALAC 1L")
	oracle := &stubOracle{canonicalizeResult: milkDecomposition(0.95)}
	svc := newTestService(t, store, oracle)

	stockItemID := int64(7)
	outcome, err := svc.Normalize(context.Background(), NormalizeRequest{
		RawDescription: "LEITE INTEG ITALAC 1L",
		UserID:         42,
		StockItemID:    &stockItemID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Propagated {
		t.Error("expected propagation to stock item")
	}
	if store.stock[7].sku != outcome.SKU {
		t.Errorf("stock sku = %q, want %q", store.stock[7].sku, outcome.SKU)
	}
	if store.masters[outcome.MasterProductID].userCount != 1 {
		t.Errorf("user count = %d, want 1", store.masters[outcome.MasterProductID].userCount)
	}
}

func TestNormalizeNeverOverwritesAssignedStockItem(t *testing.T) {
	store := newStubStore()
	store.addStockItem(7, 42, "LEITE INTEG ITALAC 1L")
	store.stock[7].sku = "already-assigned"
	oracle := &stubOracle{canonicalizeResult: milkDecomposition(0.95)}
	svc := newTestService(t, store, oracle)

	stockItemID := int64(7)
	outcome, err := svc.Normalize(context.Background(), NormalizeRequest{
		RawDescription: "LEITE INTEG ITALAC 1L",
		StockItemID:    &stockItemID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Propagated {
		t.Error("propagation must skip items that already carry a sku")
	}
	if store.stock[7].sku != "already-assigned" {
		t.Errorf("stock sku overwritten: %q", store.stock[7].sku)
	}
}

func TestNormalizeConsolidatedSKUResolvesSurvivor(t *testing.T) {
	store := newStubStore()
	survivor := store.addMaster("sku-survivor", "LEITE INTEGRAL ITALAC 1000ML", "Leite Integral", nil, 5, 2, time.Now())
	brand := "Italac"
	d := catalog.Decomposition{
		BaseName:         "Leite Integral",
		Brand:            &brand,
		QuantityBase:     1000,
		QuantityBaseUnit: "ml",
		Category:         catalog.CategoryDairy,
		Confidence:       0.95,
	}
	retiredSKU := catalog.Fingerprint(d)
	retired := store.addMaster(retiredSKU, "LEITE INTEGRAL ITALAC 1000ML", "Leite Integral", &brand, 0, 0, time.Now())
	retired.status = db.MasterStatusConsolidated
	retired.consolidatedInto = survivor.ref.MasterProductID

	oracle := &stubOracle{canonicalizeResult: classify.Result{Decomposition: d, RawResponse: "{}"}}
	svc := newTestService(t, store, oracle)

	outcome, err := svc.Normalize(context.Background(), NormalizeRequest{RawDescription: "LEITE INTEG ITALAC 1L"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.MasterProductID != survivor.ref.MasterProductID {
		t.Errorf("resolved master %d, want survivor %d", outcome.MasterProductID, survivor.ref.MasterProductID)
	}
	if outcome.SKU != "sku-survivor" {
		t.Errorf("sku = %q, want survivor's", outcome.SKU)
	}
	if retired.status != db.MasterStatusConsolidated {
		t.Error("retired master resurrected")
	}
}

func TestNormalizeEmptyDescription(t *testing.T) {
	svc := newTestService(t, newStubStore(), &stubOracle{})
	if _, err := svc.Normalize(context.Background(), NormalizeRequest{RawDescription: "   "}); !errors.Is(err, ErrEmptyDescription) {
		t.Fatalf("expected ErrEmptyDescription, got %v", err)
	}
}

func TestConsolidateMergesDuplicatesToFixedPoint(t *testing.T) {
	store := newStubStore()
	brand := "Matte Leao"
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	survivor := store.addMaster("sku-a", "CHA MATE MATTE LEAO 1500ML", "Cha Mate", &brand, 10, 3, base)
	loser := store.addMaster("sku-b", "CHA MATE NATURAL MATTE LEAO 1500ML", "cha mate", &brand, 2, 1, base.Add(time.Hour))
	store.synonyms[loser.ref.MasterProductID] = map[string]int{"CHA PRONTO MATTE LEAO 1,5L": 2}
	store.addStockItem(1, 11, "CHA MATE")
	store.stock[1].masterID = loser.ref.MasterProductID
	store.stock[1].sku = "sku-b"

	svc := newTestService(t, store, &stubOracle{})

	report, err := svc.Consolidate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.MergedCount != 1 {
		t.Fatalf("merged count = %d, want 1", report.MergedCount)
	}
	if loser.status != db.MasterStatusConsolidated {
		t.Error("loser not retired")
	}
	if loser.consolidatedInto != survivor.ref.MasterProductID {
		t.Error("loser does not point at survivor")
	}
	if store.stock[1].sku != "sku-a" {
		t.Errorf("stock item not rewired: %q", store.stock[1].sku)
	}
	if store.synonyms[survivor.ref.MasterProductID]["CHA PRONTO MATTE LEAO 1,5L"] != 2 {
		t.Error("loser synonym not moved to survivor")
	}
	if store.synonyms[survivor.ref.MasterProductID]["sku-b"] != 2 {
		t.Errorf("loser sku synonym occurrence = %d, want seeded from loser notes", store.synonyms[survivor.ref.MasterProductID]["sku-b"])
	}
	if store.synonymConf[survivor.ref.MasterProductID]["sku-b"] != 1 {
		t.Error("loser sku synonym must be fully confirmed")
	}
	if survivor.notesCount != 12 {
		t.Errorf("survivor notes = %d, want 12", survivor.notesCount)
	}

	second, err := svc.Consolidate(context.Background())
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if second.MergedCount != 0 {
		t.Errorf("second pass merged %d, want 0 (fixed point)", second.MergedCount)
	}
}

func TestConsolidateSurvivorSelection(t *testing.T) {
	store := newStubStore()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	older := store.addMaster("sku-old", "ARROZ TIO JOAO 5000G", "Arroz", nil, 5, 1, base)
	newer := store.addMaster("sku-new", "ARROZ TIO JOAO 5KG", "ARROZ", nil, 5, 1, base.Add(24*time.Hour))

	svc := newTestService(t, store, &stubOracle{})
	if _, err := svc.Consolidate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if older.status != db.MasterStatusActive {
		t.Error("oldest master should survive on equal usage")
	}
	if newer.status != db.MasterStatusConsolidated {
		t.Error("newer master should be retired")
	}
}

func TestConsolidateGroupFailureIsolated(t *testing.T) {
	store := newStubStore()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	store.addMaster("sku-a1", "FEIJAO CARIOCA 1000G", "Feijao Carioca", nil, 5, 1, base)
	brokenLoser := store.addMaster("sku-a2", "FEIJAO CARIOCA 1KG", "FEIJAO CARIOCA", nil, 1, 1, base.Add(time.Hour))
	store.addMaster("sku-b1", "ACUCAR CRISTAL 1000G", "Acucar Cristal", nil, 5, 1, base)
	goodLoser := store.addMaster("sku-b2", "ACUCAR CRISTAL 1KG", "ACUCAR CRISTAL", nil, 1, 1, base.Add(time.Hour))
	store.mergeErrs[brokenLoser.ref.MasterProductID] = fmt.Errorf("deadlock detected")

	svc := newTestService(t, store, &stubOracle{})
	report, err := svc.Consolidate(context.Background())
	if err != nil {
		t.Fatalf("group failure must not abort the batch: %v", err)
	}
	if report.FailedGroups != 1 {
		t.Errorf("failed groups = %d, want 1", report.FailedGroups)
	}
	if report.MergedCount != 1 {
		t.Errorf("merged count = %d, want 1", report.MergedCount)
	}
	if goodLoser.status != db.MasterStatusConsolidated {
		t.Error("healthy group was not merged")
	}
	if brokenLoser.status != db.MasterStatusActive {
		t.Error("failed merge must leave the loser untouched")
	}
}

func TestBackfillResolvesUnresolvedItems(t *testing.T) {
	store := newStubStore()
	store.addStockItem(1, 11, "LEITE INTEG ITALAC 1L")
	store.addStockItem(2, 12, "LEITE ITALAC INTEGRAL 1 LITRO")
	store.addStockItem(3, 11, "LEITE INTEGRAL CX ITALAC")
	oracle := &stubOracle{canonicalizeResult: milkDecomposition(0.95)}
	svc := newTestService(t, store, oracle)

	report, err := svc.Backfill(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.ItemsScanned != 3 || report.ItemsResolved != 3 {
		t.Errorf("scanned=%d resolved=%d, want 3/3", report.ItemsScanned, report.ItemsResolved)
	}
	if report.Remaining != 0 {
		t.Errorf("remaining = %d", report.Remaining)
	}
	for id, item := range store.stock {
		if item.sku == "" {
			t.Errorf("stock item %d still unresolved", id)
		}
	}
	if len(store.masters) != 1 {
		t.Errorf("master count = %d, want 1 (variants converge)", len(store.masters))
	}
	if store.masters[1].userCount != 2 {
		t.Errorf("user count = %d, want 2", store.masters[1].userCount)
	}
	if got := store.finishedRuns; len(got) != 1 || got[0] != db.RunStatusSucceeded {
		t.Errorf("finished runs = %v", got)
	}
}

func TestBackfillStopsWhenOracleDown(t *testing.T) {
	store := newStubStore()
	store.addStockItem(1, 11, "LEITE INTEG ITALAC 1L")
	store.addStockItem(2, 12, "ARROZ TIO JOAO 5KG")
	oracle := &stubOracle{
		canonicalizeErr: fmt.Errorf("%w: connection refused", classify.ErrOracleUnavailable),
	}
	svc := newTestService(t, store, oracle)

	report, err := svc.Backfill(context.Background())
	if !errors.Is(err, classify.ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
	if report.ItemsDeferred != 1 {
		t.Errorf("deferred = %d, want 1", report.ItemsDeferred)
	}
	for id, item := range store.stock {
		if item.sku != "" {
			t.Errorf("stock item %d written despite oracle outage", id)
		}
	}
	if got := store.finishedRuns; len(got) != 1 || got[0] != db.RunStatusFailed {
		t.Errorf("finished runs = %v", got)
	}
}

func TestBackfillSecondRunSkipsViaSynonyms(t *testing.T) {
	store := newStubStore()
	store.addStockItem(1, 11, "LEITE INTEG ITALAC 1L")
	store.addStockItem(2, 12, "LEITE INTEG ITALAC 1L")
	oracle := &stubOracle{canonicalizeResult: milkDecomposition(0.95)}
	svc := newTestService(t, store, oracle)

	if _, err := svc.Backfill(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if oracle.canonicalizeCalls != 1 {
		t.Errorf("canonicalize calls = %d, want 1 (second item resolves via synonym)", oracle.canonicalizeCalls)
	}
}

func TestConsolidationKeyNormalizesCase(t *testing.T) {
	brand := " Italac "
	a := db.ConsolidationMaster{BaseName: "leite integral", Brand: &brand}
	other := "ITALAC"
	b := db.ConsolidationMaster{BaseName: " LEITE INTEGRAL", Brand: &other}
	if consolidationKey(a) != consolidationKey(b) {
		t.Errorf("keys differ: %q vs %q", consolidationKey(a), consolidationKey(b))
	}
	if !strings.Contains(consolidationKey(a), "|") {
		t.Error("key missing separator")
	}
}
