package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the deterministic SKU for a decomposition. The hash
// covers exactly base name, brand, package type and the normalized quantity
// pair, each uppercased and trimmed, joined by pipes. Bulk items hash the
// bulk marker instead of a quantity so every weighed purchase of the same
// product converges on one SKU. Category stays out of the hash: it is the
// least reliable oracle field, and identity must not fork when the oracle
// recategorizes a known product.
func Fingerprint(d Decomposition) string {
	fields := []string{
		canonField(d.BaseName),
		canonPtr(d.Brand),
		canonPtr(d.PackageType),
	}
	if d.IsBulk {
		fields = append(fields, BulkMarker, "")
	} else {
		fields = append(fields, formatQuantity(d.QuantityBase), canonField(d.QuantityBaseUnit))
	}

	sum := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(sum[:])
}

func canonField(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func canonPtr(p *string) string {
	if p == nil {
		return ""
	}
	return canonField(*p)
}
