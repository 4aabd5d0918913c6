package mrscraper

import (
	"github.com/pricewatch/price-monitor/pkg/model"
)

//
// ────────────────────────────────────────────────
//   Mapper – Converts raw products to Canonical
// ────────────────────────────────────────────────
//

// Field alias tables. Different scrapers return different field names for
// the same thing depending on the retailer's page structure; resolution is
// first-present-wins.
var (
	nameAliases     = []string{"product_name", "name", "title"}
	priceAliases    = []string{"current_price", "price", "product_price"}
	origAliases     = []string{"original_price", "list_price", "was_price"}
	currencyAliases = []string{"currency", "product_currency"}
	urlAliases      = []string{"product_url", "url", "link"}
)

// Mapper translates extraction-service payloads into canonical Products.
type Mapper struct{}

// NewMapper constructs a Mapper instance.
func NewMapper() *Mapper { return &Mapper{} }

// Normalize maps one raw product object into a canonical Product. It never
// fails: every field has a defined fallback. The orchestrator stamps
// retailer, category, scraped_at and source_url afterwards.
func (m *Mapper) Normalize(raw RawProduct, sourceURL string) model.Product {
	p := model.Product{
		ProductName:  "Unknown",
		CurrentPrice: ParsePrice(firstValue(raw, priceAliases)),
		Currency:     "USD",
		InStock:      ParseAvailability(raw),
		ProductURL:   ResolveURL(firstString(raw, urlAliases), sourceURL),
		Seller:       stringOf(raw["seller"]),
	}

	if name := firstString(raw, nameAliases); name != "" {
		p.ProductName = name
	}
	if currency := firstString(raw, currencyAliases); currency != "" {
		p.Currency = NormalizeCurrency(currency)
	}
	if orig := firstValue(raw, origAliases); orig != nil {
		price := ParsePrice(orig)
		p.OriginalPrice = &price
	}

	return p
}

// firstValue returns the first non-nil value among the aliased fields.
func firstValue(raw RawProduct, aliases []string) any {
	for _, key := range aliases {
		if v, ok := raw[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// firstString returns the first non-empty string value among the aliased fields.
func firstString(raw RawProduct, aliases []string) string {
	for _, key := range aliases {
		if s := stringOf(raw[key]); s != "" {
			return s
		}
	}
	return ""
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}
