package catalog

import (
	"strings"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestFingerprintDeterministic(t *testing.T) {
	d := Decomposition{
		BaseName:         "Leite Integral",
		Brand:            strPtr("Italac"),
		PackageType:      strPtr("caixa"),
		QuantityValue:    1,
		QuantityUnit:     "l",
		QuantityBase:     1000,
		QuantityBaseUnit: "ml",
		Category:         CategoryDairy,
		Confidence:       0.97,
	}

	first := Fingerprint(d)
	second := Fingerprint(d)
	if first != second {
		t.Fatalf("fingerprint not deterministic: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(first))
	}
	if first != strings.ToLower(first) {
		t.Fatalf("expected lowercase hex, got %s", first)
	}
}

func TestFingerprintCaseAndSpaceInsensitive(t *testing.T) {
	a := Decomposition{
		BaseName:         "leite integral",
		Brand:            strPtr("italac"),
		QuantityBase:     1000,
		QuantityBaseUnit: "ml",
		Category:         CategoryDairy,
	}
	b := Decomposition{
		BaseName:         "  LEITE INTEGRAL ",
		Brand:            strPtr(" ITALAC"),
		QuantityBase:     1000,
		QuantityBaseUnit: "ML",
		Category:         CategoryDairy,
	}
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatal("expected identical fingerprints for case/space variants")
	}
}

func TestFingerprintDistinguishesQuantity(t *testing.T) {
	base := Decomposition{
		BaseName:         "Leite Integral",
		Brand:            strPtr("Italac"),
		QuantityBase:     1000,
		QuantityBaseUnit: "ml",
		Category:         CategoryDairy,
	}
	other := base
	other.QuantityBase = 500
	if Fingerprint(base) == Fingerprint(other) {
		t.Fatal("different quantities must not collide")
	}
}

func TestFingerprintMissingBrandDiffers(t *testing.T) {
	with := Decomposition{
		BaseName:         "Arroz Branco",
		Brand:            strPtr("Tio Joao"),
		QuantityBase:     5000,
		QuantityBaseUnit: "g",
		Category:         CategoryGrocery,
	}
	without := with
	without.Brand = nil
	if Fingerprint(with) == Fingerprint(without) {
		t.Fatal("brandless decomposition must not collide with branded one")
	}
}

func TestFingerprintIgnoresCategory(t *testing.T) {
	a := Decomposition{
		BaseName:         "Creme de Leite",
		Brand:            strPtr("Italac"),
		QuantityBase:     200,
		QuantityBaseUnit: "g",
		Category:         CategoryDairy,
	}
	b := a
	b.Category = CategoryOther
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatal("category drift must not mint a new SKU for the same identity fields")
	}
}

func TestFingerprintBulkConverges(t *testing.T) {
	a := Decomposition{
		BaseName:         "Banana Prata",
		QuantityValue:    0.732,
		QuantityUnit:     "kg",
		QuantityBase:     732,
		QuantityBaseUnit: "g",
		IsBulk:           true,
		Category:         CategoryProduce,
	}
	b := a
	b.QuantityValue = 1.105
	b.QuantityBase = 1105
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatal("bulk purchases with different weights must share a SKU")
	}
}
