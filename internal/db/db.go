// Package db
package db

import (
	"context"
	"time"

	"github.com/quantflow/agent-trader/internal/journal"
	"github.com/quantflow/agent-trader/internal/position"
)

// Trade is a closed-trade record written once per position close.
type Trade struct {
	ID         string
	StrategyID string
	Asset      string
	Side       position.Side
	EntryPrice float64
	ClosePrice float64
	Amount     float64
	PnL        float64
	Reason     string
	OpenedAt   time.Time
	ClosedAt   time.Time
}

// Storage is the interface for all persistent storage.
type Storage interface {
	journal.Journaler
	SaveTrade(ctx context.Context, t Trade) error
	GetTrades(ctx context.Context, strategyID string, start, end time.Time) ([]Trade, error)
	Close() error
}
