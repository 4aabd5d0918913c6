package mrscraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected float64
	}{
		{"nil", nil, 0.0},
		{"float passthrough", 19.99, 19.99},
		{"int passthrough", 42, 42.0},
		{"plain string", "249.00", 249.00},
		{"dollar sign", "$249.00", 249.00},
		{"us dollar prefix", "US$249.00", 249.00},
		{"small dollar", "$13.30", 13.30},
		{"euro symbol", "€10", 10.0},
		{"currency code", "USD249.00", 249.00},
		{"eur code", "EUR 99.95", 99.95},
		{"gbp code", "GBP12.50", 12.50},
		{"thousands separator", "$1,299.00", 1299.00},
		{"surrounding whitespace", "  $5.00  ", 5.00},
		{"unparseable string", "call for price", 0.0},
		{"empty string", "", 0.0},
		{"unsupported type", []string{"x"}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, ParsePrice(tt.input), 1e-9)
		})
	}
}

func TestNormalizeCurrency(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"dollar symbol", "$", "USD"},
		{"euro symbol", "€", "EUR"},
		{"pound symbol", "£", "GBP"},
		{"yen symbol", "¥", "JPY"},
		{"us dollar", "US$", "USD"},
		{"lowercase code", "eur", "EUR"},
		{"already uppercase", "USD", "USD"},
		{"unknown uppercased", "cad", "CAD"},
		{"whitespace trimmed", " gbp ", "GBP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeCurrency(tt.input))
		})
	}
}

func TestParseAvailability(t *testing.T) {
	tests := []struct {
		name     string
		raw      RawProduct
		expected bool
	}{
		{"absent defaults true", RawProduct{}, true},
		{"bool false", RawProduct{"in_stock": false}, false},
		{"bool true", RawProduct{"in_stock": true}, true},
		{"negative string", RawProduct{"availability": "Unavailable"}, false},
		{"out of stock", RawProduct{"availability": "Out of Stock"}, false},
		{"sold out", RawProduct{"availability_status": "SOLD OUT"}, false},
		{"not available beats available substring", RawProduct{"availability": "Not available"}, false},
		{"positive string", RawProduct{"availability": "In Stock"}, true},
		{"add to cart", RawProduct{"availability": "Add to cart"}, true},
		{"social proof carts", RawProduct{"availability": "In 50+ people's carts"}, true},
		{"social proof bought", RawProduct{"availability": "1000+ bought since yesterday"}, true},
		{"unknown string defaults true", RawProduct{"availability": "ships eventually"}, true},
		{"nil value defaults true", RawProduct{"availability": nil}, true},
		{
			"field priority in_stock wins",
			RawProduct{"in_stock": false, "availability": "In Stock"},
			false,
		},
		{
			"any channel available",
			RawProduct{"availability": map[string]any{"pickup": "Unavailable", "shipping": "Available"}},
			true,
		},
		{
			"all channels unavailable",
			RawProduct{"availability": map[string]any{"pickup": "Unavailable", "shipping": "Out of stock"}},
			false,
		},
		{
			"channel bool true",
			RawProduct{"availability": map[string]any{"pickup": false, "shipping": true}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseAvailability(tt.raw))
		})
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name      string
		rawURL    string
		sourceURL string
		expected  string
	}{
		{"empty", "", "https://shop.example.com/deals", ""},
		{"absolute passthrough", "https://shop.example.com/p/1", "https://other.example.com", "https://shop.example.com/p/1"},
		{"http passthrough", "http://shop.example.com/p/1", "", "http://shop.example.com/p/1"},
		{"relative joined", "/p/1", "https://shop.example.com/deals?page=2", "https://shop.example.com/p/1"},
		{"malformed source returns input", "/p/1", "::not a url::", "/p/1"},
		{"no source returns input", "/p/1", "", "/p/1"},
		{"schemeless non-rooted returns input", "p/1", "https://shop.example.com", "p/1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ResolveURL(tt.rawURL, tt.sourceURL))
		})
	}
}
