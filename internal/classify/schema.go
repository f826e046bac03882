package classify

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/estoqa/catalog/internal/catalog"
)

//go:embed decomposition.schema.json
var decompositionSchemaJSON []byte

//go:embed match.schema.json
var matchSchemaJSON []byte

var (
	compileOnce         sync.Once
	compileErr          error
	decompositionSchema *jsonschema.Schema
	matchSchema         *jsonschema.Schema
)

func compiledSchemas() (*jsonschema.Schema, *jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("decomposition.schema.json", bytes.NewReader(decompositionSchemaJSON)); err != nil {
			compileErr = fmt.Errorf("add decomposition schema: %w", err)
			return
		}
		if err := compiler.AddResource("match.schema.json", bytes.NewReader(matchSchemaJSON)); err != nil {
			compileErr = fmt.Errorf("add match schema: %w", err)
			return
		}
		decompositionSchema, compileErr = compiler.Compile("decomposition.schema.json")
		if compileErr != nil {
			compileErr = fmt.Errorf("compile decomposition schema: %w", compileErr)
			return
		}
		matchSchema, compileErr = compiler.Compile("match.schema.json")
		if compileErr != nil {
			compileErr = fmt.Errorf("compile match schema: %w", compileErr)
		}
	})
	return decompositionSchema, matchSchema, compileErr
}

type decompositionPayload struct {
	BaseName      string  `json:"base_name"`
	Brand         *string `json:"brand"`
	PackageType   *string `json:"package_type"`
	QuantityValue float64 `json:"quantity_value"`
	QuantityUnit  string  `json:"quantity_unit"`
	IsBulk        bool    `json:"is_bulk"`
	Category      string  `json:"category"`
	Confidence    float64 `json:"confidence"`
}

type matchPayload struct {
	Matched    bool    `json:"matched"`
	SKU        string  `json:"sku"`
	Confidence float64 `json:"confidence"`
}

func decodeStrictJSON(raw string, out any) error {
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return err
	}
	if decoder.More() {
		return fmt.Errorf("trailing content after JSON object")
	}
	return nil
}

func validateAgainst(schema *jsonschema.Schema, raw string) error {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("parse JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}

// parseCanonicalizeResponse validates an oracle canonicalization reply and
// maps it onto a Decomposition. Malformed output counts as oracle
// unavailability so the caller fails closed. The normalized quantity pair is
// derived locally rather than trusted from the model.
func parseCanonicalizeResponse(response string) (Result, error) {
	decSchema, _, err := compiledSchemas()
	if err != nil {
		return Result{}, err
	}

	raw, err := extractJSONObject(response)
	if err != nil {
		return Result{}, fmt.Errorf("%w: oracle response: %v", ErrOracleUnavailable, err)
	}
	if err := validateAgainst(decSchema, raw); err != nil {
		return Result{}, fmt.Errorf("%w: oracle response: %v", ErrOracleUnavailable, err)
	}

	var payload decompositionPayload
	if err := decodeStrictJSON(raw, &payload); err != nil {
		return Result{}, fmt.Errorf("%w: decode oracle response: %v", ErrOracleUnavailable, err)
	}

	baseValue, baseUnit := catalog.NormalizeQuantity(payload.QuantityValue, payload.QuantityUnit)
	d := catalog.Decomposition{
		BaseName:         strings.TrimSpace(payload.BaseName),
		Brand:            trimPtr(payload.Brand),
		PackageType:      trimPtr(payload.PackageType),
		QuantityValue:    payload.QuantityValue,
		QuantityUnit:     strings.ToLower(payload.QuantityUnit),
		QuantityBase:     baseValue,
		QuantityBaseUnit: baseUnit,
		IsBulk:           payload.IsBulk,
		Category:         catalog.ParseCategory(payload.Category),
		Confidence:       payload.Confidence,
	}
	if d.BaseName == "" {
		return Result{}, fmt.Errorf("%w: oracle response: empty base_name", ErrOracleUnavailable)
	}
	return Result{Decomposition: d, RawResponse: raw}, nil
}

// parseMatchResponse validates an oracle match reply and rejects SKUs that
// were not part of the offered sample.
func parseMatchResponse(response string, sample []SampleProduct) (MatchResult, error) {
	_, mSchema, err := compiledSchemas()
	if err != nil {
		return MatchResult{}, err
	}

	raw, err := extractJSONObject(response)
	if err != nil {
		return MatchResult{}, fmt.Errorf("oracle response: %w", err)
	}
	if err := validateAgainst(mSchema, raw); err != nil {
		return MatchResult{}, fmt.Errorf("oracle response: %w", err)
	}

	var payload matchPayload
	if err := decodeStrictJSON(raw, &payload); err != nil {
		return MatchResult{}, fmt.Errorf("decode oracle response: %w", err)
	}

	if !payload.Matched {
		return MatchResult{Matched: false}, nil
	}
	for _, p := range sample {
		if p.SKU == payload.SKU {
			return MatchResult{Matched: true, SKU: payload.SKU, Confidence: payload.Confidence}, nil
		}
	}
	return MatchResult{}, fmt.Errorf("oracle matched unknown sku %q", payload.SKU)
}

func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}
