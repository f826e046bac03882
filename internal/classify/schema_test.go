package classify

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/estoqa/catalog/internal/catalog"
)

func TestParseCanonicalizeResponse(t *testing.T) {
	response := `Here is the decomposition:
{"base_name":"Leite Integral","brand":"Italac","package_type":"caixa","quantity_value":1,"quantity_unit":"l","is_bulk":false,"category":"laticínios","confidence":0.95}`

	result, err := parseCanonicalizeResponse(response)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := result.Decomposition
	if d.BaseName != "Leite Integral" {
		t.Errorf("base name = %q", d.BaseName)
	}
	if d.Brand == nil || *d.Brand != "Italac" {
		t.Errorf("brand = %v", d.Brand)
	}
	if d.QuantityBase != 1000 || d.QuantityBaseUnit != "ml" {
		t.Errorf("normalized quantity = %v %s", d.QuantityBase, d.QuantityBaseUnit)
	}
	if d.Category != catalog.CategoryDairy {
		t.Errorf("category = %q", d.Category)
	}
	if d.Confidence != 0.95 {
		t.Errorf("confidence = %v", d.Confidence)
	}
}

func TestParseCanonicalizeResponseNullBrand(t *testing.T) {
	response := `{"base_name":"Banana Prata","brand":null,"package_type":null,"quantity_value":0.7,"quantity_unit":"kg","is_bulk":true,"category":"hortifruti","confidence":0.9}`

	result, err := parseCanonicalizeResponse(response)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := result.Decomposition
	if d.Brand != nil {
		t.Errorf("expected nil brand, got %v", *d.Brand)
	}
	if !d.IsBulk {
		t.Error("expected bulk item")
	}
	if d.Category != catalog.CategoryProduce {
		t.Errorf("category = %q", d.Category)
	}
}

func TestParseCanonicalizeResponseRejectsBadUnit(t *testing.T) {
	response := `{"base_name":"Arroz","brand":null,"package_type":null,"quantity_value":5,"quantity_unit":"sacos","is_bulk":false,"category":"grocery","confidence":0.8}`

	_, err := parseCanonicalizeResponse(response)
	if err == nil {
		t.Fatal("expected schema rejection for unknown unit")
	}
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Errorf("malformed output should read as oracle unavailability, got %v", err)
	}
}

func TestParseCanonicalizeResponseRejectsUnknownCategoryGracefully(t *testing.T) {
	response := `{"base_name":"Pilha AA","brand":null,"package_type":null,"quantity_value":4,"quantity_unit":"un","is_bulk":false,"category":"eletronicos","confidence":0.7}`

	result, err := parseCanonicalizeResponse(response)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Decomposition.Category != catalog.CategoryOther {
		t.Errorf("category = %q, want other", result.Decomposition.Category)
	}
}

func TestParseCanonicalizeResponseNoJSON(t *testing.T) {
	_, err := parseCanonicalizeResponse("I could not parse that line.")
	if err == nil {
		t.Fatal("expected error for response without JSON")
	}
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Errorf("malformed output should read as oracle unavailability, got %v", err)
	}
}

func TestParseMatchResponse(t *testing.T) {
	sample := []SampleProduct{
		{SKU: "abc123", CanonicalName: "LEITE INTEGRAL ITALAC 1000ML", Category: "dairy"},
		{SKU: "def456", CanonicalName: "ARROZ BRANCO TIO JOAO 5000G", Category: "grocery"},
	}

	result, err := parseMatchResponse(`{"matched":true,"sku":"abc123","confidence":0.93}`, sample)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Matched || result.SKU != "abc123" || result.Confidence != 0.93 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestParseMatchResponseNoMatch(t *testing.T) {
	result, err := parseMatchResponse(`{"matched":false,"sku":"","confidence":0}`, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Matched {
		t.Error("expected no match")
	}
}

func TestParseMatchResponseRejectsForeignSKU(t *testing.T) {
	sample := []SampleProduct{{SKU: "abc123"}}
	_, err := parseMatchResponse(`{"matched":true,"sku":"zzz999","confidence":0.9}`, sample)
	if err == nil {
		t.Fatal("expected rejection of sku outside the offered sample")
	}
	if !strings.Contains(err.Error(), "unknown sku") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExtractJSONObject(t *testing.T) {
	raw, err := extractJSONObject("```json\n{\"a\": {\"b\": \"}\"}}\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw != `{"a": {"b": "}"}}` {
		t.Errorf("extracted %q", raw)
	}
}

func TestExtractJSONObjectUnbalanced(t *testing.T) {
	if _, err := extractJSONObject(`{"a": 1`); err == nil {
		t.Fatal("expected error for unbalanced object")
	}
}

func TestErrOracleUnavailableWrapping(t *testing.T) {
	err := fmt.Errorf("%w: connection refused", ErrOracleUnavailable)
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Fatal("expected errors.Is to see ErrOracleUnavailable through wrapping")
	}
}
