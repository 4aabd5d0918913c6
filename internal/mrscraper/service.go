package mrscraper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pricewatch/price-monitor/internal/metrics"
	"github.com/pricewatch/price-monitor/pkg/config"
	"github.com/pricewatch/price-monitor/pkg/model"
)

// TokenSource supplies the extraction-service API token.
type TokenSource interface {
	Resolve(ctx context.Context) (string, error)
}

// Service orchestrates the scrape cycle: for each configured retailer
// target it invokes the extraction service, unwraps and normalizes the
// response, and stamps the results with run metadata. Targets are processed
// sequentially and each target's failure is fully isolated from the rest.
type Service struct {
	logger        *zap.Logger
	client        *Client
	tokens        TokenSource
	mapper        *Mapper
	globalScraper string // fallback scraper ID when a target has none
}

// NewService constructs a scrape orchestrator.
func NewService(logger *zap.Logger, client *Client, tokens TokenSource, globalScraperID string) *Service {
	return &Service{
		logger:        logger,
		client:        client,
		tokens:        tokens,
		mapper:        NewMapper(),
		globalScraper: globalScraperID,
	}
}

// ScrapeAll runs the full scrape cycle over the configured targets and
// returns the concatenated canonical products. It returns an error only for
// configuration problems (no targets, no API token); per-target transport
// and payload failures are logged and contribute zero products.
func (s *Service) ScrapeAll(ctx context.Context, targets *config.Targets) ([]model.Product, error) {
	if targets == nil || len(targets.Retailers) == 0 {
		return nil, fmt.Errorf("no retailer targets configured")
	}

	token, err := s.tokens.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("scrape aborted: %w", err)
	}

	scrapedAt := time.Now().UTC().Truncate(time.Second)
	var all []model.Product

	for _, target := range targets.Retailers {
		raw, err := s.scrapeTarget(ctx, token, target, targets.Scraping)
		if err != nil {
			s.logger.Error("mrscraper.target_failed",
				zap.String("retailer", target.Retailer),
				zap.String("url", truncate(target.URL, 80)),
				zap.Error(err))
			metrics.IncError("scraper", "target_failed")
			continue
		}

		for _, r := range raw {
			p := s.mapper.Normalize(r, target.URL)
			p.Retailer = target.Retailer
			p.Category = target.Category
			p.ScrapedAt = scrapedAt
			p.SourceURL = target.URL
			all = append(all, p)
		}

		metrics.ProductsScraped.WithLabelValues(target.Retailer).Add(float64(len(raw)))
		s.logger.Info("mrscraper.target_done",
			zap.String("retailer", target.Retailer),
			zap.Int("products", len(raw)))
	}

	s.logger.Info("mrscraper.scrape_complete",
		zap.Int("products", len(all)),
		zap.Int("targets", len(targets.Retailers)))

	return all, nil
}

// scrapeTarget fetches raw products for one target, choosing the rerun path
// when a scraper ID is available and the AI fallback otherwise.
func (s *Service) scrapeTarget(ctx context.Context, token string, target config.Target, params config.ScrapeParams) ([]RawProduct, error) {
	scraperID := target.ScraperID
	if scraperID == "" {
		scraperID = s.globalScraper
	}

	if scraperID != "" {
		return s.client.Rerun(ctx, token, scraperID, target.URL, params)
	}

	s.logger.Warn("mrscraper.no_scraper_id",
		zap.String("retailer", target.Retailer),
		zap.String("hint", "using AI fallback; configure a scraper ID for prompt tuning"))
	return s.client.AIExtract(ctx, token, target.URL)
}
