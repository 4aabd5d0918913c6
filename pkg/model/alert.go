package model

import "time"

// AlertType classifies a detected change between two consecutive
// observations of the same (product, retailer) pair.
type AlertType string

const (
	AlertPriceDrop     AlertType = "price_drop"
	AlertPriceIncrease AlertType = "price_increase"
	AlertBackInStock   AlertType = "back_in_stock"
	AlertOutOfStock    AlertType = "out_of_stock"
)

// Alert records one economically significant transition. At most one alert
// is produced per (product, retailer) pair per detection run, derived from
// exactly the two most recent observations of that pair.
type Alert struct {
	ID          int64     `json:"id,omitempty"`
	ProductName string    `json:"product_name"`
	Retailer    string    `json:"retailer"`
	AlertType   AlertType `json:"alert_type"`
	OldPrice    float64   `json:"old_price"`
	NewPrice    float64   `json:"new_price"`
	PctChange   float64   `json:"pct_change"` // rounded to 2 decimals

	// ObservedAt is the scraped_at of the newer observation in the pair.
	// It keys alert de-duplication across repeated detection runs.
	ObservedAt time.Time `json:"observed_at"`

	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// RunSummary reports the outcome of one pipeline run.
type RunSummary struct {
	RunID            string         `json:"run_id"`
	Status           string         `json:"status"` // "success" | "error"
	ProductsScraped  int            `json:"products_scraped"`
	ProductsStored   int            `json:"products_stored"`
	AlertsDetected   int            `json:"alerts_detected"`
	AlertsPersisted  int            `json:"alerts_persisted"`
	ChannelsNotified []string       `json:"channels_notified"`
	Errors           []string       `json:"errors,omitempty"`
	Duration         time.Duration  `json:"duration"`
	DatabaseStats    map[string]any `json:"database_stats,omitempty"`
}
