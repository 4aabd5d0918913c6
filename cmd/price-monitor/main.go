package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/pricewatch/price-monitor/internal/api"
	"github.com/pricewatch/price-monitor/internal/mrscraper"
	"github.com/pricewatch/price-monitor/internal/notify"
	"github.com/pricewatch/price-monitor/internal/pipeline"
	"github.com/pricewatch/price-monitor/internal/rate"
	"github.com/pricewatch/price-monitor/internal/store"
	"github.com/pricewatch/price-monitor/pkg/config"
	"github.com/pricewatch/price-monitor/pkg/logger"
	"github.com/pricewatch/price-monitor/pkg/secrets"
	"github.com/pricewatch/price-monitor/pkg/utils"

	alertpub "github.com/pricewatch/price-monitor/internal/publisher"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "scrape and print products without storing or alerting")
	detectOnly := flag.Bool("detect-only", false, "skip scraping and re-run detection over stored history")
	threshold := flag.Float64("threshold", 0, "price change threshold in percent (overrides ALERT_THRESHOLD_PCT)")
	serve := flag.Bool("serve", false, "run the HTTP API and scrape on an interval instead of once")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	logg := logger.S()
	logg.Infof("starting [%s]...", cfg.ServiceName)
	logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))

	// --- API token source (env first, AWS Secrets Manager fallback) ---
	awsProvider, err := secrets.NewAWSProvider(cfg.AWSRegion)
	if err != nil {
		if cfg.APIToken == "" {
			logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
		}
		logg.Warnw("AWS Secrets Manager unavailable; using SCRAPER_API_TOKEN only", "error", err)
		awsProvider = nil
	}

	tokenCache := secrets.NewCache[string](cfg.CacheTTL)
	stopCleaner := make(chan struct{})
	go tokenCache.StartCleaner(cfg.CleanupFreq, stopCleaner)
	defer close(stopCleaner)

	tokens := secrets.NewTokenResolver(logger.L(), cfg.APIToken, cfg.TokenSecretName, awsProvider, tokenCache)

	// --- Rate limiter ---
	// The extraction service runs headless browsers; keep request rates low.
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: 2,
		Burst:             4,
		Cooldown:          1 * time.Second,
	})

	// --- Extraction client + scrape service ---
	scrapeClient := mrscraper.NewClient(logger.L(), rateMgr, cfg.RerunAPIURL, cfg.AIAPIURL)
	scrapeSvc := mrscraper.NewService(logger.L(), scrapeClient, tokens, cfg.ScraperID)

	opts := pipeline.Options{
		DryRun:       *dryRun,
		DetectOnly:   *detectOnly,
		ThresholdPct: *threshold,
	}

	// Dry runs touch no infrastructure: no store, no NATS, no notifiers.
	if *dryRun && !*detectOnly && !*serve {
		pipe := pipeline.New(logger.L(), cfg, scrapeSvc, nil, nil, nil)
		if _, err := pipe.Run(ctx, opts); err != nil {
			logg.Fatalw("pipeline.run_failed", "error", err)
		}
		return
	}

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logg.Fatalw("failed to connect to NATS", "error", err)
	}

	// --- Publisher ---
	pub, err := alertpub.New(nc, cfg.AlertSubject, cfg.ServiceName, logger.L())
	if err != nil {
		logg.Fatalw("failed to init publisher", "error", err)
	}

	// --- Store (Redis + Postgres hybrid) ---
	st, err := store.NewHybrid(cfg.RedisAddr, cfg.RedisDB, cfg.DatabaseURL, store.PGPoolConfig{
		MaxConns:          int32(cfg.PGMaxConns),
		MinConns:          int32(cfg.PGMinConns),
		MaxConnLifetime:   cfg.PGMaxConnLifetime,
		MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
		HealthCheckPeriod: cfg.PGHealthCheckPeriod,
	}, logg.Desugar())
	if err != nil {
		logg.Fatalw("failed to init store", "error", err)
	}
	if err := st.(*store.HybridStore).EnsureSchema(ctx); err != nil {
		logg.Fatalw("failed to ensure schema", "error", err)
	}

	// --- Notification channels ---
	notifiers := []notify.Notifier{notify.NewConsole(logger.L())}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhook(logger.L(), cfg.WebhookURL, cfg.WebhookFormat))
	}

	pipe := pipeline.New(logger.L(), cfg, scrapeSvc, st, notifiers, pub)

	if !*serve {
		summary, err := pipe.Run(ctx, opts)
		if err != nil {
			logg.Fatalw("pipeline.run_failed", "error", err)
		}
		out, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(out))
		shutdown(logg, nc, st)
		return
	}

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})
	priceHandler := api.NewPriceHandler(logger.L(), st, cfg.HistoryDays)
	api.RegisterRoutes(app, nc, st, priceHandler)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	// --- Scrape loop ---
	go func() {
		runOnce := func() {
			if _, err := pipe.Run(ctx, opts); err != nil {
				logg.Errorw("pipeline.run_failed", "error", err)
			}
		}
		runOnce()
		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runOnce()
			}
		}
	}()

	logg.Infow(fmt.Sprintf("[%s] running", cfg.ServiceName),
		"nats", cfg.NATSURL,
		"env", cfg.Env,
		"poll_interval", cfg.PollInterval)

	<-ctx.Done()
	logg.Infof("shutting down [%s]...", cfg.ServiceName)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	shutdown(logg, nc, st)
}

func shutdown(logg *zap.SugaredLogger, nc *nats.Conn, st store.Store) {
	if err := nc.Drain(); err != nil {
		logg.Warnw("nats.drain_failed", "error", err)
	}
	if err := st.Close(); err != nil {
		logg.Warnw("store.close_failed", "error", err)
	}
}
