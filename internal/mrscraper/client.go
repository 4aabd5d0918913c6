package mrscraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pricewatch/price-monitor/internal/httpclient"
	"github.com/pricewatch/price-monitor/internal/metrics"
	"github.com/pricewatch/price-monitor/internal/rate"
	"github.com/pricewatch/price-monitor/pkg/config"
)

// Client wraps low-level HTTP communication with the extraction service.
// The API token is supplied per-request so a single Client instance can be
// shared across the whole run.
type Client struct {
	logger   *zap.Logger
	exec     *httpclient.Executor
	rerunURL string
	aiURL    string
}

// NewClient constructs a new extraction-service HTTP client.
func NewClient(logger *zap.Logger, rateMgr *rate.Manager, rerunURL, aiURL string) *Client {
	// No client-level timeout: each call gets a context deadline derived
	// from the service-side timeout, which varies per request.
	httpClient := &http.Client{}
	exec := httpclient.New(logger, rateMgr, httpClient, 2, "mrscraper", func(status int, body []byte) error {
		var errResp ErrorResponse
		_ = json.Unmarshal(body, &errResp)

		logger.Warn("mrscraper.client_error",
			zap.Int("status", status),
			zap.String("error", errResp.Error),
			zap.String("message", errResp.Message))

		errMsg := errResp.Message
		if errMsg == "" {
			errMsg = errResp.Error
		}
		if errMsg == "" {
			errMsg = string(body)
		}
		return fmt.Errorf("extraction service returned %d: %s", status, errMsg)
	})
	return &Client{
		logger:   logger,
		exec:     exec,
		rerunURL: rerunURL,
		aiURL:    aiURL,
	}
}

// Rerun triggers a pre-configured scraper against a target URL and unwraps
// the response. This is the primary extraction path: agent type, prompt and
// output format are tuned on the scraper itself.
func (c *Client) Rerun(ctx context.Context, token, scraperID, targetURL string, params config.ScrapeParams) ([]RawProduct, error) {
	payload := RerunRequest{
		ScraperID: scraperID,
		URL:       targetURL,
		MaxRetry:  params.MaxRetry,
		MaxPages:  params.MaxPages,
		Timeout:   params.TimeoutSec,
		Stream:    params.Stream,
	}

	c.logger.Info("mrscraper.rerun.start",
		zap.String("scraper_id", shortID(scraperID)),
		zap.String("url", truncate(targetURL, 80)),
		zap.Int("max_pages", params.MaxPages),
		zap.Int("timeout_sec", params.TimeoutSec))

	// Client deadline sits above the service-side timeout so the service
	// gets a chance to respond before we give up.
	deadline := time.Duration(params.TimeoutSec+60) * time.Second

	products, err := c.post(ctx, c.rerunURL, "rerun", deadline, payload, func(req *http.Request) {
		req.Header.Set("x-api-token", token)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("mrscraper.rerun.done", zap.Int("products", len(products)))
	return products, nil
}

// AIExtract scrapes a URL through the direct AI endpoint with a JSON schema.
// Fallback path for targets without a configured scraper ID.
func (c *Client) AIExtract(ctx context.Context, token, targetURL string) ([]RawProduct, error) {
	const timeoutSec = 180

	payload := AIRequest{
		URLs:    []string{targetURL},
		Min:     5,
		Max:     50,
		Timeout: timeoutSec,
		Schema:  priceSchema,
	}

	c.logger.Info("mrscraper.ai.start", zap.String("url", truncate(targetURL, 80)))

	deadline := time.Duration(timeoutSec+30) * time.Second

	products, err := c.post(ctx, c.aiURL, "ai", deadline, payload, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("mrscraper.ai.done", zap.Int("products", len(products)))
	return products, nil
}

// post executes one extraction call and unwraps the envelope.
func (c *Client) post(ctx context.Context, url, endpoint string, deadline time.Duration, body any, auth func(*http.Request)) ([]RawProduct, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	auth(req)

	start := time.Now()
	raw, err := c.exec.DoRaw(ctx, req, "mrscraper:"+endpoint)
	if err != nil {
		metrics.ObserveScrape(endpoint, "error", start)
		return nil, err
	}
	metrics.ObserveScrape(endpoint, "ok", start)

	var envelope any
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	products, diag := Unwrap(envelope)
	if diag != "" {
		// Unexpected shape is non-fatal: the target contributes no products.
		c.logger.Warn("mrscraper.unexpected_envelope",
			zap.String("endpoint", endpoint),
			zap.String("reason", diag))
	}
	return products, nil
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
