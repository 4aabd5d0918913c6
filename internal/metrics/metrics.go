package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks outbound calls to the extraction service.
	ScrapeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_api_requests_total",
			Help: "Total number of extraction-service requests made (by endpoint and result).",
		},
		[]string{"endpoint", "result"}, // result = "ok" | "error"
	)

	// Measures duration of extraction-service requests.
	ScrapeRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_api_request_duration_seconds",
			Help:    "Duration of extraction-service requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15), // 10ms → ~160s; scrapes are slow
		},
		[]string{"endpoint"},
	)

	// Products extracted and stored per retailer.
	ProductsScraped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "products_scraped_total",
			Help: "Total number of products extracted, by retailer.",
		},
		[]string{"retailer"},
	)

	ProductsStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "products_stored_total",
			Help: "Total number of observation rows written to the price history.",
		},
	)

	// Alerts by classification.
	AlertsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_alerts_total",
			Help: "Total number of alerts detected, by type.",
		},
		[]string{"type"},
	)

	// Tracks total errors (aggregated).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_errors_total",
			Help: "Count of service-level errors by component.",
		},
		[]string{"component", "reason"},
	)

	// Gauges the last successful pipeline run (seconds since epoch).
	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_last_run_timestamp",
			Help: "Timestamp (unix seconds) of the last completed pipeline run.",
		},
	)
)

// IncError increments the aggregated error counter for a component.
func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}

// ObserveScrape records one extraction-service call.
func ObserveScrape(endpoint, result string, start time.Time) {
	ScrapeRequestsTotal.WithLabelValues(endpoint, result).Inc()
	ScrapeRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
