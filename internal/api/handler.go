package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/pricewatch/price-monitor/internal/pipeline"
	"github.com/pricewatch/price-monitor/internal/store"
	"github.com/pricewatch/price-monitor/pkg/model"
)

// PriceHandler serves the read side of the monitor: price history, the
// latest observation per retailer, recorded alerts and summary statistics.
type PriceHandler struct {
	logger      *zap.Logger
	store       store.Store
	historyDays int // default window when the request does not pass ?days
}

func NewPriceHandler(logger *zap.Logger, st store.Store, historyDays int) *PriceHandler {
	if historyDays <= 0 {
		historyDays = 30
	}
	return &PriceHandler{
		logger:      logger,
		store:       st,
		historyDays: historyDays,
	}
}

// HistoryHandler returns price observations filtered by product (partial
// match), retailer, category and a rolling day window.
func (h *PriceHandler) HistoryHandler(c *fiber.Ctx) error {
	filter := store.HistoryFilter{
		ProductName: c.Query("product"),
		Retailer:    c.Query("retailer"),
		Category:    c.Query("category"),
		Days:        h.historyDays,
	}
	if v := c.Query("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "days must be a positive integer"})
		}
		filter.Days = days
	}

	observations, err := h.store.QueryHistory(c.Context(), filter)
	if err != nil {
		h.logger.Error("api.history.failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "history query failed"})
	}

	return c.JSON(fiber.Map{
		"count":        len(observations),
		"days":         filter.Days,
		"observations": observations,
	})
}

// LatestHandler returns the most recent observation per (product, retailer)
// pair. Without a category filter it serves the cached snapshot of the last
// scrape when available, falling back to the database.
func (h *PriceHandler) LatestHandler(c *fiber.Ctx) error {
	category := c.Query("category")

	if category == "" {
		var products []model.Product
		if err := h.store.GetJSON(c.Context(), pipeline.SnapshotKey, &products); err == nil && len(products) > 0 {
			return c.JSON(fiber.Map{
				"source":   "cache",
				"count":    len(products),
				"products": products,
			})
		}
	}

	observations, err := h.store.LatestByRetailer(c.Context(), category)
	if err != nil {
		h.logger.Error("api.latest.failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "latest query failed"})
	}

	return c.JSON(fiber.Map{
		"source":   "db",
		"count":    len(observations),
		"products": observations,
	})
}

// AlertsHandler returns the most recent alerts, newest first.
func (h *PriceHandler) AlertsHandler(c *fiber.Ctx) error {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be a positive integer"})
		}
		limit = n
	}

	alerts, err := h.store.ListAlerts(c.Context(), limit)
	if err != nil {
		h.logger.Error("api.alerts.failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "alerts query failed"})
	}

	return c.JSON(fiber.Map{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

// StatsHandler returns aggregate counts over the stored history.
func (h *PriceHandler) StatsHandler(c *fiber.Ctx) error {
	stats, err := h.store.SummaryStats(c.Context())
	if err != nil {
		h.logger.Error("api.stats.failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stats query failed"})
	}
	return c.JSON(stats)
}
