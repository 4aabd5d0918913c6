package mrscraper

//
// ────────────────────────────────────────────────
//   Extraction Service Wire Types
// ────────────────────────────────────────────────
//

// RawProduct is one loosely-typed product object as returned by the
// extraction service. No schema is enforced at this layer; the mapper is
// responsible for turning it into a canonical record.
type RawProduct = map[string]any

// RerunRequest is the payload for re-running a pre-configured scraper
// against a target URL.
// POST /api/v1/scrapers-ai-rerun
type RerunRequest struct {
	ScraperID string `json:"scraperId"`
	URL       string `json:"url"`
	MaxRetry  int    `json:"maxRetry"`
	MaxPages  int    `json:"maxPages"`
	Timeout   int    `json:"timeout"` // seconds, service-side
	Stream    bool   `json:"stream"`
}

// AIRequest is the payload for the direct AI extraction endpoint. It is the
// degraded fallback path used when no scraper ID is configured: no prompt
// tuning, but identical normalization downstream.
// POST /api/ai
type AIRequest struct {
	URLs    []string       `json:"urls"`
	Min     int            `json:"min"`
	Max     int            `json:"max"`
	Timeout int            `json:"timeout"` // seconds, service-side
	Schema  map[string]any `json:"schema"`
}

// ErrorResponse is the extraction service's error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// priceSchema is the JSON schema sent on the AI fallback path. On the rerun
// path the scraper's own dashboard prompt defines the output instead.
var priceSchema = map[string]any{
	"type":        "array",
	"description": "List of products with pricing information",
	"items": map[string]any{
		"type":        "object",
		"description": "Individual product pricing data",
		"properties": map[string]any{
			"product_name":   map[string]any{"type": "string", "description": "Full product name/title"},
			"current_price":  map[string]any{"type": "number", "description": "Current selling price (after discounts)"},
			"original_price": map[string]any{"type": "number", "description": "Original/list price before discounts (if available)"},
			"currency":       map[string]any{"type": "string", "description": "Price currency code (e.g. USD, EUR)"},
			"in_stock":       map[string]any{"type": "boolean", "description": "Whether the product is currently in stock"},
			"product_url":    map[string]any{"type": "string", "description": "Direct URL to the product page"},
			"seller":         map[string]any{"type": "string", "description": "Seller or retailer name if shown on the page"},
		},
		"required": []string{"product_name", "current_price", "currency"},
	},
}
