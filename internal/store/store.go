package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pricewatch/price-monitor/pkg/model"
)

// HistoryFilter narrows a price-history query. Zero values mean no filter.
type HistoryFilter struct {
	ProductName string // partial match
	Retailer    string // exact match
	Category    string // exact match
	Days        int    // history window; <= 0 means 30 days
}

// Store defines the contract for persisting observations and alerts.
type Store interface {
	InsertObservations(ctx context.Context, products []model.Product) (int, error)
	ListObservations(ctx context.Context) ([]model.Observation, error)
	QueryHistory(ctx context.Context, filter HistoryFilter) ([]model.Observation, error)
	LatestByRetailer(ctx context.Context, category string) ([]model.Observation, error)
	SaveAlerts(ctx context.Context, alerts []model.Alert) ([]model.Alert, error)
	ListAlerts(ctx context.Context, limit int) ([]model.Alert, error)
	SummaryStats(ctx context.Context) (map[string]any, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) error
	HealthCheck(ctx context.Context) error
	Close() error
}

type HybridStore struct {
	redis  *redis.Client
	PG     *pgxpool.Pool
	logger *zap.Logger
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewHybrid creates a Redis-cached, Postgres-backed store.
func NewHybrid(redisAddr string, redisDB int, pgURL string, pgPoolConfig PGPoolConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
		DB:   redisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	var pgPool *pgxpool.Pool
	if pgURL != "" {
		cfg, err := pgxpool.ParseConfig(pgURL)
		if err != nil {
			return nil, fmt.Errorf("invalid pg config: %w", err)
		}
		if pgPoolConfig.MaxConns > 0 {
			cfg.MaxConns = pgPoolConfig.MaxConns
		}
		if pgPoolConfig.MinConns > 0 {
			cfg.MinConns = pgPoolConfig.MinConns
		}
		if pgPoolConfig.MaxConnLifetime > 0 {
			cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
		}
		if pgPoolConfig.MaxConnIdleTime > 0 {
			cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
		}
		if pgPoolConfig.HealthCheckPeriod > 0 {
			cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
		}
		pgPool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	}

	return &HybridStore{redis: rdb, PG: pgPool, logger: logger}, nil
}

// EnsureSchema creates the observation and alert tables if missing. The
// uniqueness key on price_alerts makes alert persistence idempotent: a
// detection run repeated over unchanged data re-derives the same
// (product, retailer, observed_at) triple and the insert becomes a no-op.
func (s *HybridStore) EnsureSchema(ctx context.Context) error {
	if s.PG == nil {
		return fmt.Errorf("postgres unavailable")
	}
	_, err := s.PG.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS price_history (
			id             BIGSERIAL PRIMARY KEY,
			product_name   TEXT NOT NULL,
			retailer       TEXT NOT NULL,
			category       TEXT NOT NULL DEFAULT 'general',
			current_price  DOUBLE PRECISION NOT NULL,
			original_price DOUBLE PRECISION,
			currency       TEXT NOT NULL DEFAULT 'USD',
			in_stock       BOOLEAN NOT NULL DEFAULT TRUE,
			product_url    TEXT NOT NULL DEFAULT '',
			seller         TEXT NOT NULL DEFAULT '',
			source_url     TEXT NOT NULL DEFAULT '',
			scraped_at     TIMESTAMPTZ NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_price_history_pair
			ON price_history (product_name, retailer, scraped_at DESC);
		CREATE INDEX IF NOT EXISTS idx_price_history_scraped
			ON price_history (scraped_at);
		CREATE INDEX IF NOT EXISTS idx_price_history_category
			ON price_history (category);

		CREATE TABLE IF NOT EXISTS price_alerts (
			id           BIGSERIAL PRIMARY KEY,
			product_name TEXT NOT NULL,
			retailer     TEXT NOT NULL,
			alert_type   TEXT NOT NULL,
			old_price    DOUBLE PRECISION,
			new_price    DOUBLE PRECISION,
			pct_change   DOUBLE PRECISION,
			message      TEXT NOT NULL DEFAULT '',
			observed_at  TIMESTAMPTZ NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT uq_price_alerts_pair UNIQUE (product_name, retailer, observed_at)
		);
	`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertObservations appends a batch of canonical products to the price
// history. Rows that fail to insert are logged and skipped; the batch
// continues. Returns the number of rows written.
func (s *HybridStore) InsertObservations(ctx context.Context, products []model.Product) (int, error) {
	if s.PG == nil {
		return 0, fmt.Errorf("postgres unavailable")
	}

	inserted := 0
	for _, p := range products {
		_, err := s.PG.Exec(ctx, `
			INSERT INTO price_history
				(product_name, retailer, category, current_price, original_price,
				 currency, in_stock, product_url, seller, source_url, scraped_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, p.ProductName, p.Retailer, p.Category, p.CurrentPrice, p.OriginalPrice,
			p.Currency, p.InStock, p.ProductURL, p.Seller, p.SourceURL, p.ScrapedAt)
		if err != nil {
			s.logger.Error("store.pg.insert_observation_failed",
				zap.String("product", p.ProductName),
				zap.String("retailer", p.Retailer),
				zap.Error(err))
			continue
		}
		inserted++
	}
	return inserted, nil
}

const observationColumns = `
	id, product_name, retailer, category, current_price, original_price,
	currency, in_stock, product_url, seller, source_url, scraped_at, created_at`

// ListObservations returns the full observation history, newest first.
// Change detection consumes this and re-ranks per pair in memory.
func (s *HybridStore) ListObservations(ctx context.Context) ([]model.Observation, error) {
	if s.PG == nil {
		return nil, fmt.Errorf("postgres unavailable")
	}
	rows, err := s.PG.Query(ctx, `
		SELECT `+observationColumns+`
		FROM price_history
		ORDER BY scraped_at DESC, id DESC;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObservations(rows)
}

// QueryHistory returns a date-windowed slice of the history with optional
// product/retailer/category filters, newest first.
func (s *HybridStore) QueryHistory(ctx context.Context, filter HistoryFilter) ([]model.Observation, error) {
	if s.PG == nil {
		return nil, fmt.Errorf("postgres unavailable")
	}

	days := filter.Days
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	query := `SELECT ` + observationColumns + ` FROM price_history WHERE scraped_at >= $1`
	args := []any{cutoff}

	if filter.ProductName != "" {
		args = append(args, "%"+filter.ProductName+"%")
		query += fmt.Sprintf(" AND product_name ILIKE $%d", len(args))
	}
	if filter.Retailer != "" {
		args = append(args, filter.Retailer)
		query += fmt.Sprintf(" AND retailer = $%d", len(args))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	query += " ORDER BY scraped_at DESC, id DESC;"

	rows, err := s.PG.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObservations(rows)
}

// LatestByRetailer returns the most recent observation for each
// (product, retailer) pair, for the comparison dashboard view.
func (s *HybridStore) LatestByRetailer(ctx context.Context, category string) ([]model.Observation, error) {
	if s.PG == nil {
		return nil, fmt.Errorf("postgres unavailable")
	}
	rows, err := s.PG.Query(ctx, `
		WITH ranked AS (
			SELECT `+observationColumns+`,
				ROW_NUMBER() OVER (
					PARTITION BY product_name, retailer
					ORDER BY scraped_at DESC, id DESC
				) AS rn
			FROM price_history
		)
		SELECT `+observationColumns+`
		FROM ranked
		WHERE rn = 1 AND ($1 = '' OR category = $1)
		ORDER BY product_name, retailer;
	`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObservations(rows)
}

// SaveAlerts persists detected alerts append-only and returns the subset
// that was actually written. Re-running detection over unchanged data
// re-derives the same (product, retailer, observed_at) keys, so those rows
// hit the uniqueness constraint and are dropped; only genuinely new alerts
// come back to be notified.
func (s *HybridStore) SaveAlerts(ctx context.Context, alerts []model.Alert) ([]model.Alert, error) {
	if s.PG == nil {
		return nil, fmt.Errorf("postgres unavailable")
	}

	var inserted []model.Alert
	for _, a := range alerts {
		tag, err := s.PG.Exec(ctx, `
			INSERT INTO price_alerts
				(product_name, retailer, alert_type, old_price, new_price, pct_change, message, observed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT ON CONSTRAINT uq_price_alerts_pair DO NOTHING
		`, a.ProductName, a.Retailer, string(a.AlertType), a.OldPrice, a.NewPrice,
			a.PctChange, a.Message, a.ObservedAt)
		if err != nil {
			s.logger.Error("store.pg.insert_alert_failed",
				zap.String("product", a.ProductName),
				zap.String("retailer", a.Retailer),
				zap.Error(err))
			continue
		}
		if tag.RowsAffected() > 0 {
			inserted = append(inserted, a)
		}
	}
	return inserted, nil
}

// ListAlerts returns the most recent alerts, newest first.
func (s *HybridStore) ListAlerts(ctx context.Context, limit int) ([]model.Alert, error) {
	if s.PG == nil {
		return nil, fmt.Errorf("postgres unavailable")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.PG.Query(ctx, `
		SELECT id, product_name, retailer, alert_type, old_price, new_price,
		       pct_change, message, observed_at, created_at
		FROM price_alerts
		ORDER BY created_at DESC, id DESC
		LIMIT $1;
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		var alertType string
		if err := rows.Scan(&a.ID, &a.ProductName, &a.Retailer, &alertType,
			&a.OldPrice, &a.NewPrice, &a.PctChange, &a.Message, &a.ObservedAt, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.AlertType = model.AlertType(alertType)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// SummaryStats returns high-level stats about the price database.
func (s *HybridStore) SummaryStats(ctx context.Context) (map[string]any, error) {
	if s.PG == nil {
		return nil, fmt.Errorf("postgres unavailable")
	}

	stats := make(map[string]any)

	var totalRecords, uniqueProducts, retailers int64
	var earliest, latest *time.Time
	err := s.PG.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(DISTINCT product_name),
		       COUNT(DISTINCT retailer),
		       MIN(scraped_at),
		       MAX(scraped_at)
		FROM price_history;
	`).Scan(&totalRecords, &uniqueProducts, &retailers, &earliest, &latest)
	if err != nil {
		return nil, err
	}
	stats["total_records"] = totalRecords
	stats["unique_products"] = uniqueProducts
	stats["retailers_tracked"] = retailers
	stats["earliest_scrape"] = earliest
	stats["latest_scrape"] = latest

	var alerts24h int64
	err = s.PG.QueryRow(ctx, `
		SELECT COUNT(*) FROM price_alerts
		WHERE created_at >= NOW() - INTERVAL '24 hours';
	`).Scan(&alerts24h)
	if err != nil {
		return nil, err
	}
	stats["alerts_24h"] = alerts24h

	return stats, nil
}

func (s *HybridStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key, data, ttl).Err()
}

func (s *HybridStore) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if s.PG != nil {
		if err := s.PG.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
	}
	return nil
}

func (s *HybridStore) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
