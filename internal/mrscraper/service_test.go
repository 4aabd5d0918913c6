package mrscraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pricewatch/price-monitor/internal/rate"
	"github.com/pricewatch/price-monitor/pkg/config"
)

type staticToken string

func (s staticToken) Resolve(_ context.Context) (string, error) { return string(s), nil }

type failingToken struct{}

func (failingToken) Resolve(_ context.Context) (string, error) {
	return "", fmt.Errorf("no token source configured")
}

func testRateManager() *rate.Manager {
	return rate.NewManager(rate.Config{RequestsPerSecond: 1000, Burst: 1000})
}

func newTestService(t *testing.T, handler http.Handler) (*Service, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(zap.NewNop(), testRateManager(), srv.URL+"/rerun", srv.URL+"/ai")
	return NewService(zap.NewNop(), client, staticToken("test-token"), "global-scraper"), srv
}

func rerunEnvelope(products ...RawProduct) map[string]any {
	list := make([]any, 0, len(products))
	for _, p := range products {
		list = append(list, map[string]any(p))
	}
	return map[string]any{
		"message": "ok",
		"data":    map[string]any{"status": "Finished", "data": list},
	}
}

func TestScrapeAllStampsMetadata(t *testing.T) {
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerun", r.URL.Path)
		assert.Equal(t, "test-token", r.Header.Get("x-api-token"))

		var req RerunRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 3, req.MaxRetry)

		_ = json.NewEncoder(w).Encode(rerunEnvelope(
			RawProduct{"product_name": "Monitor", "current_price": "$100.00", "product_url": "/p/1"},
			RawProduct{"product_name": "Keyboard", "current_price": "$50.00"},
		))
	}))

	targets := &config.Targets{
		Retailers: []config.Target{
			{Retailer: "acme", URL: "https://acme.example.com/deals", Category: "electronics", ScraperID: "sc-1"},
		},
		Scraping: config.ScrapeParams{MaxPages: 1, MaxRetry: 3, TimeoutSec: 1},
	}

	products, err := svc.ScrapeAll(context.Background(), targets)

	require.NoError(t, err)
	require.Len(t, products, 2)
	for _, p := range products {
		assert.Equal(t, "acme", p.Retailer)
		assert.Equal(t, "electronics", p.Category)
		assert.Equal(t, "https://acme.example.com/deals", p.SourceURL)
		assert.False(t, p.ScrapedAt.IsZero())
	}
	// One timestamp per run.
	assert.Equal(t, products[0].ScrapedAt, products[1].ScrapedAt)
	// Relative URL resolved against the target page.
	assert.Equal(t, "https://acme.example.com/p/1", products[0].ProductURL)
}

func TestScrapeAllIsolatesTargetFailures(t *testing.T) {
	var calls int
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req RerunRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if req.ScraperID == "sc-broken" {
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "scraper not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(rerunEnvelope(
			RawProduct{"product_name": "Monitor", "current_price": 100},
		))
	}))

	targets := &config.Targets{
		Retailers: []config.Target{
			{Retailer: "broken", URL: "https://broken.example.com", ScraperID: "sc-broken"},
			{Retailer: "acme", URL: "https://acme.example.com", ScraperID: "sc-ok"},
		},
		Scraping: config.ScrapeParams{MaxPages: 1, MaxRetry: 1, TimeoutSec: 1},
	}

	products, err := svc.ScrapeAll(context.Background(), targets)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, products, 1)
	assert.Equal(t, "acme", products[0].Retailer)
}

func TestScrapeAllUsesAIFallbackWithoutScraperID(t *testing.T) {
	var aiCalled bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ai", r.URL.Path)
		aiCalled = true
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req AIRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.URLs, 1)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": []any{map[string]any{"product_name": "Monitor", "price": 99.0}},
		})
	}))
	t.Cleanup(srv.Close)

	client := NewClient(zap.NewNop(), testRateManager(), srv.URL+"/rerun", srv.URL+"/ai")
	// No per-target and no global scraper ID: the AI path is the only option.
	svc := NewService(zap.NewNop(), client, staticToken("test-token"), "")

	targets := &config.Targets{
		Retailers: []config.Target{{Retailer: "acme", URL: "https://acme.example.com", Category: "general"}},
		Scraping:  config.ScrapeParams{MaxPages: 1, MaxRetry: 1, TimeoutSec: 1},
	}

	products, err := svc.ScrapeAll(context.Background(), targets)

	require.NoError(t, err)
	assert.True(t, aiCalled)
	require.Len(t, products, 1)
	assert.Equal(t, "Monitor", products[0].ProductName)
	assert.InDelta(t, 99.0, products[0].CurrentPrice, 1e-9)
}

func TestScrapeAllConfigurationErrors(t *testing.T) {
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request should be made")
	}))

	_, err := svc.ScrapeAll(context.Background(), nil)
	assert.Error(t, err)

	_, err = svc.ScrapeAll(context.Background(), &config.Targets{})
	assert.Error(t, err)
}

func TestScrapeAllAbortsWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("no request should be made")
	}))
	t.Cleanup(srv.Close)

	client := NewClient(zap.NewNop(), testRateManager(), srv.URL+"/rerun", srv.URL+"/ai")
	svc := NewService(zap.NewNop(), client, failingToken{}, "global")

	_, err := svc.ScrapeAll(context.Background(), &config.Targets{
		Retailers: []config.Target{{Retailer: "acme", URL: "https://acme.example.com"}},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token source")
}

func TestScrapeAllUnexpectedEnvelopeYieldsNoProducts(t *testing.T) {
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "accepted"})
	}))

	targets := &config.Targets{
		Retailers: []config.Target{{Retailer: "acme", URL: "https://acme.example.com", ScraperID: "sc-1"}},
		Scraping:  config.ScrapeParams{MaxPages: 1, MaxRetry: 1, TimeoutSec: 1},
	}

	products, err := svc.ScrapeAll(context.Background(), targets)

	require.NoError(t, err)
	assert.Empty(t, products)
}
