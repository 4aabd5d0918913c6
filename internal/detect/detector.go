package detect

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/pricewatch/price-monitor/pkg/model"
)

//
// ────────────────────────────────────────────────
//   Change Detector
// ────────────────────────────────────────────────
//
// Detect compares the two most recent observations of every
// (product, retailer) pair and classifies economically significant deltas.
// It is a pure function over already-committed rows: repeated calls against
// an unchanged observation set classify the same pairs identically.
//

// Detect partitions observations by (product_name, retailer), ranks each
// partition by scraped_at descending, and compares the top two rows. A pair
// qualifies when the absolute percentage price change exceeds thresholdPct
// or the stock status flipped. Pairs with fewer than two observations
// produce no alert; each qualifying pair produces exactly one.
func Detect(observations []model.Observation, thresholdPct float64) []model.Alert {
	partitions := make(map[model.PairKey][]model.Observation)
	for _, obs := range observations {
		key := obs.Key()
		partitions[key] = append(partitions[key], obs)
	}

	threshold := decimal.NewFromFloat(thresholdPct)
	var alerts []model.Alert

	for _, series := range partitions {
		if len(series) < 2 {
			continue
		}

		// Rank by scraped_at descending; row ID breaks timestamp ties so
		// two observations from the same cycle order deterministically.
		sort.Slice(series, func(i, j int) bool {
			if !series[i].ScrapedAt.Equal(series[j].ScrapedAt) {
				return series[i].ScrapedAt.After(series[j].ScrapedAt)
			}
			return series[i].ID > series[j].ID
		})

		curr, prev := series[0], series[1]

		pct := pctChange(prev.CurrentPrice, curr.CurrentPrice)
		stockFlip := curr.InStock != prev.InStock

		if !stockFlip && !pct.Abs().GreaterThan(threshold) {
			continue
		}

		alerts = append(alerts, classify(curr, prev, pct, stockFlip))
	}

	// Map iteration order is random; callers and tests want stable output.
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].ProductName != alerts[j].ProductName {
			return alerts[i].ProductName < alerts[j].ProductName
		}
		return alerts[i].Retailer < alerts[j].Retailer
	})

	return alerts
}

// pctChange computes the percentage move from old to new, rounded to two
// decimals. Decimal arithmetic keeps 100→90 at exactly -10 instead of a
// float artifact. A non-positive old price yields 0.
func pctChange(oldPrice, newPrice float64) decimal.Decimal {
	if oldPrice <= 0 {
		return decimal.Zero
	}
	o := decimal.NewFromFloat(oldPrice)
	n := decimal.NewFromFloat(newPrice)
	return n.Sub(o).Div(o).Mul(decimal.NewFromInt(100)).Round(2)
}

// classify builds the alert for one qualifying pair. A stock transition
// takes priority over a simultaneous price change; price fields are still
// carried through on stock alerts.
func classify(curr, prev model.Observation, pct decimal.Decimal, stockFlip bool) model.Alert {
	alert := model.Alert{
		ProductName: curr.ProductName,
		Retailer:    curr.Retailer,
		OldPrice:    prev.CurrentPrice,
		NewPrice:    curr.CurrentPrice,
		PctChange:   pct.InexactFloat64(),
		ObservedAt:  curr.ScrapedAt,
	}

	switch {
	case stockFlip && curr.InStock:
		alert.AlertType = model.AlertBackInStock
	case stockFlip:
		alert.AlertType = model.AlertOutOfStock
	case pct.IsNegative():
		alert.AlertType = model.AlertPriceDrop
	default:
		alert.AlertType = model.AlertPriceIncrease
	}

	alert.Message = message(alert)
	return alert
}

// message renders the human-readable alert line.
func message(a model.Alert) string {
	switch a.AlertType {
	case model.AlertBackInStock:
		return fmt.Sprintf("%s (%s): Now back in stock", a.ProductName, a.Retailer)
	case model.AlertOutOfStock:
		return fmt.Sprintf("%s (%s): Now out of stock", a.ProductName, a.Retailer)
	}

	direction := "increased"
	if a.PctChange < 0 {
		direction = "dropped"
	}
	abs := a.PctChange
	if abs < 0 {
		abs = -abs
	}
	return fmt.Sprintf("%s (%s): Price %s %.1f%%: $%.2f -> $%.2f",
		a.ProductName, a.Retailer, direction, abs, a.OldPrice, a.NewPrice)
}
