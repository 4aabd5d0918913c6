package store

import (
	"github.com/jackc/pgx/v5"

	"github.com/pricewatch/price-monitor/pkg/model"
)

// scanObservations collects price_history rows selected with
// observationColumns.
func scanObservations(rows pgx.Rows) ([]model.Observation, error) {
	var results []model.Observation
	for rows.Next() {
		var o model.Observation
		if err := rows.Scan(
			&o.ID, &o.ProductName, &o.Retailer, &o.Category,
			&o.CurrentPrice, &o.OriginalPrice, &o.Currency, &o.InStock,
			&o.ProductURL, &o.Seller, &o.SourceURL, &o.ScrapedAt, &o.CreatedAt,
		); err != nil {
			return nil, err
		}
		results = append(results, o)
	}
	return results, rows.Err()
}
