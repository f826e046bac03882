package catalog

import "testing"

func TestNormalizeQuantity(t *testing.T) {
	cases := []struct {
		value    float64
		unit     string
		wantVal  float64
		wantUnit string
	}{
		{1, "kg", 1000, "g"},
		{0.5, "KG", 500, "g"},
		{350, "g", 350, "g"},
		{2, "l", 2000, "ml"},
		{600, "ml", 600, "ml"},
		{6, "un", 6, "un"},
		{1, "dz", 1, "un"},
		{12, "", 12, "un"},
	}
	for _, c := range cases {
		gotVal, gotUnit := NormalizeQuantity(c.value, c.unit)
		if gotVal != c.wantVal || gotUnit != c.wantUnit {
			t.Errorf("NormalizeQuantity(%v, %q) = (%v, %q), want (%v, %q)",
				c.value, c.unit, gotVal, gotUnit, c.wantVal, c.wantUnit)
		}
	}
}

func TestCanonicalName(t *testing.T) {
	d := Decomposition{
		BaseName:         "Leite Integral",
		Brand:            strPtr("Italac"),
		QuantityBase:     1000,
		QuantityBaseUnit: "ml",
		Category:         CategoryDairy,
	}
	if got := d.CanonicalName(); got != "LEITE INTEGRAL ITALAC 1000ML" {
		t.Fatalf("unexpected canonical name: %q", got)
	}
}

func TestCanonicalNameBulkAndBrandless(t *testing.T) {
	d := Decomposition{
		BaseName:         "Banana Prata",
		QuantityBase:     732,
		QuantityBaseUnit: "g",
		IsBulk:           true,
		Category:         CategoryProduce,
	}
	if got := d.CanonicalName(); got != "BANANA PRATA GRANEL" {
		t.Fatalf("unexpected canonical name: %q", got)
	}
}

func TestCanonicalNameTrimsFractionalZeros(t *testing.T) {
	d := Decomposition{
		BaseName:         "Refrigerante Cola",
		QuantityBase:     1500,
		QuantityBaseUnit: "ml",
		Category:         CategoryBeverages,
	}
	if got := d.CanonicalName(); got != "REFRIGERANTE COLA 1500ML" {
		t.Fatalf("unexpected canonical name: %q", got)
	}
}

func TestNormalizeText(t *testing.T) {
	if got := NormalizeText("  leite   lt integral  italac 1l "); got != "LEITE LT INTEGRAL ITALAC 1L" {
		t.Fatalf("unexpected normalized text: %q", got)
	}
}

func TestParseCategory(t *testing.T) {
	cases := map[string]Category{
		"dairy":      CategoryDairy,
		"Laticínios": CategoryDairy,
		"BEBIDAS":    CategoryBeverages,
		"hortifruti": CategoryProduce,
		"açougue":    CategoryButcher,
		"limpeza":    CategoryCleaning,
		"":           CategoryOther,
		"misc":       CategoryOther,
	}
	for raw, want := range cases {
		if got := ParseCategory(raw); got != want {
			t.Errorf("ParseCategory(%q) = %q, want %q", raw, got, want)
		}
	}
}
