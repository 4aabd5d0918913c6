package model

import "time"

//
// ────────────────────────────────────────────────
//   Canonical Product / Observation Models
// ────────────────────────────────────────────────
//

// Product is the canonical, fully-typed product record produced by the
// normalization layer. Every field has a defined fallback, so a Product is
// always safe to persist regardless of how messy the extracted payload was.
type Product struct {
	ProductName   string   `json:"product_name"`             // never empty; "Unknown" when the payload has no name
	CurrentPrice  float64  `json:"current_price"`            // >= 0; 0 when unparseable
	OriginalPrice *float64 `json:"original_price,omitempty"` // list price before discounts, when shown
	Currency      string   `json:"currency"`                 // ISO 4217, uppercase
	InStock       bool     `json:"in_stock"`                 // defaults true when the payload says nothing
	ProductURL    string   `json:"product_url,omitempty"`    // absolute URL, or empty
	Seller        string   `json:"seller,omitempty"`

	// Stamped by the scrape orchestrator, not the normalizer.
	Retailer  string    `json:"retailer"`
	Category  string    `json:"category"`
	SourceURL string    `json:"source_url"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// Observation is a stored Product row: the canonical record plus its
// database identity. Rows are append-only and never mutated.
type Observation struct {
	ID        int64     `json:"id"`
	Product               // embedded canonical fields
	CreatedAt time.Time `json:"created_at"`
}

// PairKey identifies the entity a price series belongs to. Change detection
// partitions the observation history by this key.
type PairKey struct {
	ProductName string
	Retailer    string
}

// Key returns the observation's partition key.
func (o Observation) Key() PairKey {
	return PairKey{ProductName: o.ProductName, Retailer: o.Retailer}
}
