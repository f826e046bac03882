package catalog

import (
	"fmt"
	"strings"
)

// BulkMarker replaces the quantity segment for items sold by weight at the
// counter, where the printed quantity is the purchased amount rather than a
// package size.
const BulkMarker = "GRANEL"

// Decomposition is the structured identity extracted from a raw receipt
// description. QuantityBase and QuantityBaseUnit are always derived locally
// from QuantityValue and QuantityUnit via NormalizeQuantity.
type Decomposition struct {
	BaseName         string
	Brand            *string
	PackageType      *string
	QuantityValue    float64
	QuantityUnit     string
	QuantityBase     float64
	QuantityBaseUnit string
	IsBulk           bool
	Category         Category
	Confidence       float64
}

// NormalizeQuantity converts a quantity to base units: kilograms to grams,
// liters to milliliters. Counts and unknown units pass through as "un".
func NormalizeQuantity(value float64, unit string) (float64, string) {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "kg":
		return value * 1000, "g"
	case "g":
		return value, "g"
	case "mg":
		return value / 1000, "g"
	case "l":
		return value * 1000, "ml"
	case "ml":
		return value, "ml"
	default:
		return value, "un"
	}
}

// CanonicalName renders the uppercase display name for a decomposition:
// base name, brand when known, then the quantity segment.
func (d Decomposition) CanonicalName() string {
	parts := []string{strings.ToUpper(strings.TrimSpace(d.BaseName))}
	if d.Brand != nil {
		if brand := strings.ToUpper(strings.TrimSpace(*d.Brand)); brand != "" {
			parts = append(parts, brand)
		}
	}
	parts = append(parts, d.quantitySegment())
	return strings.Join(parts, " ")
}

func (d Decomposition) quantitySegment() string {
	if d.IsBulk {
		return BulkMarker
	}
	return fmt.Sprintf("%s%s", formatQuantity(d.QuantityBase), strings.ToUpper(d.QuantityBaseUnit))
}

func formatQuantity(v float64) string {
	s := fmt.Sprintf("%.3f", v)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}

// NormalizeText collapses a raw variant description to its lookup form:
// trimmed, uppercased, inner whitespace folded to single spaces.
func NormalizeText(raw string) string {
	fields := strings.Fields(raw)
	return strings.ToUpper(strings.Join(fields, " "))
}
