package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pricewatch/price-monitor/internal/detect"
	"github.com/pricewatch/price-monitor/internal/metrics"
	"github.com/pricewatch/price-monitor/internal/notify"
	"github.com/pricewatch/price-monitor/internal/store"
	"github.com/pricewatch/price-monitor/pkg/config"
	"github.com/pricewatch/price-monitor/pkg/model"
)

// SnapshotKey is the Redis key holding the most recent batch of products,
// refreshed on every successful storing run.
const SnapshotKey = "latest_products"

// Scraper produces one batch of normalized products for the configured targets.
type Scraper interface {
	ScrapeAll(ctx context.Context, targets *config.Targets) ([]model.Product, error)
}

// AlertPublisher fans persisted alerts out to the event bus.
type AlertPublisher interface {
	PublishAll(ctx context.Context, runID string, alerts []model.Alert) int
}

// Options tune a single run. Zero values mean a full scrape-store-detect cycle
// with the configured threshold.
type Options struct {
	DryRun       bool    // scrape and print, touch nothing
	DetectOnly   bool    // skip scraping, re-run detection over stored history
	ThresholdPct float64 // overrides the configured threshold when > 0
}

// Pipeline wires the scrape, persistence, detection and notification stages
// into one end-to-end run.
type Pipeline struct {
	logger    *zap.Logger
	cfg       *config.Config
	scraper   Scraper
	store     store.Store
	notifiers []notify.Notifier
	publisher AlertPublisher // optional; nil disables event publishing
}

func New(logger *zap.Logger, cfg *config.Config, scraper Scraper, st store.Store, notifiers []notify.Notifier, publisher AlertPublisher) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		logger:    logger,
		cfg:       cfg,
		scraper:   scraper,
		store:     st,
		notifiers: notifiers,
		publisher: publisher,
	}
}

// Run executes one monitoring cycle. Configuration problems (missing targets
// file, unresolvable token) and storage-read failures abort the run with an
// error; partial failures inside a stage are recorded on the summary instead.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*model.RunSummary, error) {
	start := time.Now()
	summary := &model.RunSummary{
		RunID:  uuid.NewString(),
		Status: "success",
	}

	threshold := opts.ThresholdPct
	if threshold <= 0 {
		threshold = p.cfg.ThresholdPct
	}

	p.logger.Info("pipeline.run_start",
		zap.String("run_id", summary.RunID),
		zap.Bool("dry_run", opts.DryRun),
		zap.Bool("detect_only", opts.DetectOnly),
		zap.Float64("threshold_pct", threshold))

	if !opts.DetectOnly {
		if err := p.scrapeAndStore(ctx, opts, summary); err != nil {
			summary.Status = "error"
			summary.Duration = time.Since(start)
			return summary, err
		}
		if opts.DryRun {
			summary.Duration = time.Since(start)
			return summary, nil
		}
	}

	if err := p.detectAndNotify(ctx, threshold, summary); err != nil {
		summary.Status = "error"
		summary.Duration = time.Since(start)
		return summary, err
	}

	if stats, err := p.store.SummaryStats(ctx); err != nil {
		p.logger.Warn("pipeline.stats_failed", zap.Error(err))
		summary.Errors = append(summary.Errors, fmt.Sprintf("stats: %v", err))
	} else {
		summary.DatabaseStats = stats
	}

	metrics.LastRunTimestamp.SetToCurrentTime()
	summary.Duration = time.Since(start)

	p.logger.Info("pipeline.run_complete",
		zap.String("run_id", summary.RunID),
		zap.Int("products_scraped", summary.ProductsScraped),
		zap.Int("products_stored", summary.ProductsStored),
		zap.Int("alerts_detected", summary.AlertsDetected),
		zap.Int("alerts_persisted", summary.AlertsPersisted),
		zap.Strings("channels_notified", summary.ChannelsNotified),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

func (p *Pipeline) scrapeAndStore(ctx context.Context, opts Options, summary *model.RunSummary) error {
	targets, err := config.LoadTargets(p.cfg.TargetsPath)
	if err != nil {
		return err
	}

	products, err := p.scraper.ScrapeAll(ctx, targets)
	if err != nil {
		return err
	}
	summary.ProductsScraped = len(products)

	if opts.DryRun {
		out, err := json.MarshalIndent(products, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal products: %w", err)
		}
		fmt.Println(string(out))
		p.logger.Info("pipeline.dry_run_complete", zap.Int("products", len(products)))
		return nil
	}

	stored, err := p.store.InsertObservations(ctx, products)
	if err != nil {
		return fmt.Errorf("store observations: %w", err)
	}
	summary.ProductsStored = stored
	metrics.ProductsStored.Add(float64(stored))

	// Snapshot is a cache convenience for the read API; a failure here must
	// not fail the run.
	if len(products) > 0 {
		if err := p.store.SetJSON(ctx, SnapshotKey, products, p.cfg.SnapshotTTL); err != nil {
			p.logger.Warn("pipeline.snapshot_failed", zap.Error(err))
			summary.Errors = append(summary.Errors, fmt.Sprintf("snapshot: %v", err))
		}
	}
	return nil
}

func (p *Pipeline) detectAndNotify(ctx context.Context, threshold float64, summary *model.RunSummary) error {
	observations, err := p.store.ListObservations(ctx)
	if err != nil {
		return fmt.Errorf("list observations: %w", err)
	}

	alerts := detect.Detect(observations, threshold)
	summary.AlertsDetected = len(alerts)
	for _, a := range alerts {
		metrics.AlertsDetected.WithLabelValues(string(a.AlertType)).Inc()
	}
	if len(alerts) == 0 {
		p.logger.Info("pipeline.no_alerts", zap.Int("observations", len(observations)))
		return nil
	}

	// Persistence is idempotent on (product, retailer, observed_at); only
	// alerts that were actually new reach the notification channels, so a
	// re-run over unchanged data stays silent.
	persisted, err := p.store.SaveAlerts(ctx, alerts)
	if err != nil {
		p.logger.Error("pipeline.save_alerts_failed", zap.Error(err))
		summary.Errors = append(summary.Errors, fmt.Sprintf("save alerts: %v", err))
		return nil
	}
	summary.AlertsPersisted = len(persisted)
	if len(persisted) == 0 {
		p.logger.Info("pipeline.alerts_already_seen", zap.Int("detected", len(alerts)))
		return nil
	}

	summary.ChannelsNotified = notify.Dispatch(ctx, p.logger, p.notifiers, persisted)
	if p.publisher != nil {
		published := p.publisher.PublishAll(ctx, summary.RunID, persisted)
		p.logger.Info("pipeline.alerts_published",
			zap.Int("published", published),
			zap.Int("persisted", len(persisted)))
	}
	return nil
}
