package mrscraper

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/pricewatch/price-monitor/pkg/logger"
)

//
// ────────────────────────────────────────────────
//   Value Parsers — raw scalars to canonical values
// ────────────────────────────────────────────────
//
// Every parser here degrades instead of failing: unparseable input maps to a
// defined fallback and the caller never sees an error.
//

// priceStrip lists the tokens removed from price strings before parsing.
// Longer codes come before their prefixes so "USD249.00" does not decay
// into "D249.00".
var priceStrip = []string{"USD", "EUR", "GBP", "US", "$", "€", "£", "¥", ","}

// ParsePrice converts a raw price value into a float.
// Numbers pass through; strings are cleaned of currency symbols, currency
// codes and thousands separators first. nil or unparseable input yields 0.
func ParsePrice(value any) float64 {
	switch v := value.(type) {
	case nil:
		return 0.0
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		cleaned := strings.TrimSpace(v)
		for _, tok := range priceStrip {
			cleaned = strings.ReplaceAll(cleaned, tok, "")
		}
		cleaned = strings.TrimSpace(cleaned)

		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			logger.S().Warnw("parse.price_unparseable", "value", v)
			return 0.0
		}
		return f
	default:
		return 0.0
	}
}

// currencySymbols maps known symbols and lowercase codes to ISO 4217 codes.
var currencySymbols = map[string]string{
	"$":   "USD",
	"€":   "EUR",
	"£":   "GBP",
	"¥":   "JPY",
	"us$": "USD",
}

// NormalizeCurrency maps currency symbols to ISO codes; anything unknown is
// trimmed and uppercased unchanged.
func NormalizeCurrency(value string) string {
	lowered := strings.ToLower(strings.TrimSpace(value))
	if code, ok := currencySymbols[lowered]; ok {
		return code
	}
	return strings.ToUpper(strings.TrimSpace(value))
}

// Availability keyword sets. Negative indicators are always checked first
// because "unavailable" contains the substring "available".
var (
	negativeStock = []string{"out of stock", "unavailable", "sold out", "not available"}
	positiveStock = []string{"in stock", "available", "add to cart", "buy now"}

	// Social-proof phrases some retailers show in place of a stock label,
	// e.g. "In 50+ people's carts", "1000+ bought since yesterday".
	socialProofStock = []string{"people's carts", "bought since", "bought in"}

	channelAvailable = []string{"available", "in stock", "ready"}
)

// stockFields are inspected in priority order on the raw product object.
var stockFields = []string{"in_stock", "availability_status", "availability"}

// ParseAvailability resolves a raw product's stock status to a boolean.
// A product that says nothing about stock is assumed available.
func ParseAvailability(raw RawProduct) bool {
	var value any
	found := false
	for _, field := range stockFields {
		if v, ok := raw[field]; ok {
			value = v
			found = true
			break
		}
	}
	if !found || value == nil {
		return true
	}

	switch v := value.(type) {
	case bool:
		return v

	case string:
		lowered := strings.ToLower(strings.TrimSpace(v))
		if containsAny(lowered, negativeStock) {
			return false
		}
		if containsAny(lowered, positiveStock) || containsAny(lowered, socialProofStock) {
			return true
		}
		return true // unknown string, assume available

	case map[string]any:
		// Per-channel fulfillment, e.g. {"pickup": "Unavailable", "shipping": "Available"}.
		// The product counts as in stock if ANY channel is available.
		for _, status := range v {
			switch s := status.(type) {
			case string:
				lowered := strings.ToLower(strings.TrimSpace(s))
				if containsAny(lowered, negativeStock) {
					continue
				}
				if containsAny(lowered, channelAvailable) {
					return true
				}
			case bool:
				if s {
					return true
				}
			}
		}
		return false

	default:
		return true
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// ResolveURL turns a possibly-relative product URL into an absolute one
// using the scraped page's URL as the base. Absolute URLs pass through
// unchanged; anything that cannot be resolved is returned as-is rather
// than dropped.
func ResolveURL(rawURL, sourceURL string) string {
	if rawURL == "" {
		return ""
	}

	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return rawURL
	}

	if sourceURL != "" && strings.HasPrefix(rawURL, "/") {
		parsed, err := url.Parse(sourceURL)
		if err == nil && parsed.Scheme != "" && parsed.Host != "" {
			return parsed.Scheme + "://" + parsed.Host + rawURL
		}
	}

	return rawURL
}
