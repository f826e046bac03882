package classify

import (
	"fmt"
	"strings"
)

const canonicalizeSystemPrompt = `You are a product catalog normalizer for Brazilian supermarket receipts.
Receipt lines are truncated, abbreviated, uppercase strings printed by fiscal printers.
Decompose each line into its structured identity.

Common package-type abbreviations:
- CX = caixa (box), LT = lata (can), PCT = pacote (pack), BDJ = bandeja (tray)
- SC = sachê/saco (sachet/bag), FR = frasco (flask), GRF = garrafa (bottle), TP = tetra pak

Common unit forms: GR/GRS -> g, KG -> kg, LT/LTS (after a number) -> l, ML -> ml, UN/UND/UNID -> un.
Common truncations: CR. = creme, REFRIG = refrigerante, BISC = biscoito, CHOC = chocolate, DESOD = desodorante.

Respond with a single JSON object and nothing else:
{
  "base_name": "product name without brand or quantity, in Portuguese",
  "brand": "brand name or null when absent/unreadable",
  "package_type": "package type or null",
  "quantity_value": number,
  "quantity_unit": "kg|g|mg|l|ml|un",
  "is_bulk": boolean (true for items weighed at the counter, e.g. produce sold by kg),
  "category": "department label",
  "confidence": number between 0 and 1
}

When quantity is absent assume 1 un. Never invent a brand.`

const matchSystemPrompt = `You decide whether a raw supermarket receipt line refers to one of the
catalog products listed below. Abbreviations, truncations and reordered words still count as the
same product; a different brand, flavor or package size does not.

Respond with a single JSON object and nothing else:
{
  "matched": boolean,
  "sku": "the sku of the matching product, or empty string",
  "confidence": number between 0 and 1
}

Only report a match when you are confident it is the same product.`

func buildCanonicalizeUserPrompt(rawDescription string) string {
	return fmt.Sprintf("Receipt line: %q", rawDescription)
}

func buildMatchUserPrompt(rawDescription string, sample []SampleProduct) string {
	var b strings.Builder
	b.WriteString("Catalog products:\n")
	for _, p := range sample {
		fmt.Fprintf(&b, "- sku=%s name=%q category=%s\n", p.SKU, p.CanonicalName, p.Category)
	}
	fmt.Fprintf(&b, "\nReceipt line: %q", rawDescription)
	return b.String()
}
