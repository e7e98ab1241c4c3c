// Package exchange
package exchange

import (
	"context"
	"time"
)

// OrderRequest represents a new order to be submitted.
type OrderRequest struct {
	Asset    string
	Side     string // "buy" or "sell"
	Type     string // "limit" or "market"
	Price    float64
	Quantity float64
}

// Order represents the response from the venue.
type Order struct {
	OrderID   string
	Status    string
	FilledQty float64
	AvgPrice  float64
	Timestamp time.Time
	Asset     string
	Side      string
	Type      string
	Price     float64
	Quantity  float64
}

// Filled reports whether the order was fully executed.
func (o Order) Filled() bool {
	return o.Status == "FILLED"
}

// ExecutionSink is the single execution boundary of the engine. Idempotency is
// not guaranteed; a failed submission must leave no position created or removed.
type ExecutionSink interface {
	Name() string
	SubmitOrder(ctx context.Context, req OrderRequest) (Order, error)
}

// BalanceFetcher is implemented by sinks that can report account equity.
type BalanceFetcher interface {
	FetchBalance(ctx context.Context) (float64, error)
}
