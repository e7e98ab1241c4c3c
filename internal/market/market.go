// Package market
package market

import (
	"context"
	"time"
)

// Data is a read-only market snapshot consumed once per tick.
// FundingRate, Volatility and MarketCap are optional; nil means unknown.
type Data struct {
	Timestamp   time.Time `json:"timestamp"`
	Price       float64   `json:"price"`
	Volume      float64   `json:"volume"`
	FundingRate *float64  `json:"funding_rate,omitempty"`
	Volatility  *float64  `json:"volatility,omitempty"`
	MarketCap   *float64  `json:"market_cap,omitempty"`
}

// DataSource provides one market snapshot per tick for an asset.
type DataSource interface {
	MarketData(ctx context.Context, asset string) (Data, error)
}
