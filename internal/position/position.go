// Package position
package position

import (
	"fmt"
	"time"

	"github.com/quantflow/agent-trader/internal/strategy"
)

// Side of an open exposure.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// SideFor maps a trade action to the side it implies. HOLD has no side.
func SideFor(action strategy.Action) (Side, bool) {
	switch action {
	case strategy.Buy:
		return Long, true
	case strategy.Sell:
		return Short, true
	default:
		return "", false
	}
}

// Position is one open exposure on an asset. UnrealizedPnL is recomputed on
// every tick; everything else is fixed at entry.
type Position struct {
	Asset           string    `json:"asset"`
	Side            Side      `json:"side"`
	EntryPrice      float64   `json:"entry_price"`
	Amount          float64   `json:"amount"`
	StopLossPrice   float64   `json:"stop_loss_price"`
	TakeProfitPrice float64   `json:"take_profit_price"`
	EntryTime       time.Time `json:"entry_time"`
	UnrealizedPnL   float64   `json:"unrealized_pnl"`
}

// ExitReason names the trigger that closed a position.
type ExitReason string

const (
	StopLoss   ExitReason = "stop-loss"
	TakeProfit ExitReason = "take-profit"
)

// ExitIntent is a triggered close: the opposite-direction signal it carries is
// routed through the same execution path as any other signal.
type ExitIntent struct {
	Asset  string
	Reason ExitReason
	Signal strategy.Signal
}

// Book holds the open positions of one strategy, keyed by asset.
// At most one position per asset exists at any time. The Book is mutated only
// by its owning strategy's loop and needs no locking.
type Book struct {
	positions map[string]*Position
}

func NewBook() *Book {
	return &Book{positions: make(map[string]*Position)}
}

// Get returns the open position for an asset, if any.
func (b *Book) Get(asset string) (*Position, bool) {
	p, ok := b.positions[asset]
	return p, ok
}

// Len returns the number of open positions.
func (b *Book) Len() int {
	return len(b.positions)
}

// Snapshot returns a copy of the open positions for read-only consumers
// (risk gating, queries).
func (b *Book) Snapshot() map[string]Position {
	out := make(map[string]Position, len(b.positions))
	for asset, p := range b.positions {
		out[asset] = *p
	}
	return out
}

// Open creates a position from an approved BUY/SELL signal. Stop and target
// come from the signal when present, otherwise they are derived from the
// strategy's stop-loss/take-profit percentages.
func (b *Book) Open(sig strategy.Signal, stopLossPct, takeProfitPct float64) (*Position, error) {
	side, ok := SideFor(sig.Action)
	if !ok {
		return nil, fmt.Errorf("cannot open position from %s signal", sig.Action)
	}
	if _, exists := b.positions[sig.Asset]; exists {
		return nil, fmt.Errorf("position already open for %s", sig.Asset)
	}

	entryTime := sig.Time
	if entryTime.IsZero() {
		entryTime = time.Now().UTC()
	}

	p := &Position{
		Asset:      sig.Asset,
		Side:       side,
		EntryPrice: sig.Price,
		Amount:     sig.Amount,
		EntryTime:  entryTime,
	}

	if sig.StopLossPrice != nil {
		p.StopLossPrice = *sig.StopLossPrice
	} else {
		p.StopLossPrice = StopLossFor(sig.Price, side, stopLossPct)
	}
	if sig.TakeProfitPrice != nil {
		p.TakeProfitPrice = *sig.TakeProfitPrice
	} else {
		p.TakeProfitPrice = TakeProfitFor(sig.Price, side, takeProfitPct)
	}

	b.positions[sig.Asset] = p
	return p, nil
}

// StopLossFor derives a stop price from the entry: below entry for LONG,
// above for SHORT. pct is a percentage (2.0 means 2%).
func StopLossFor(entry float64, side Side, pct float64) float64 {
	if side == Long {
		return entry * (1 - pct/100)
	}
	return entry * (1 + pct/100)
}

// TakeProfitFor derives a target price from the entry: above entry for LONG,
// below for SHORT. pct is a percentage (5.0 means 5%).
func TakeProfitFor(entry float64, side Side, pct float64) float64 {
	if side == Long {
		return entry * (1 + pct/100)
	}
	return entry * (1 - pct/100)
}

// MarkAll recomputes the unrealized PnL of every open position against the
// tick's price. No state transition happens here.
func (b *Book) MarkAll(price float64) {
	for _, p := range b.positions {
		p.UnrealizedPnL = unrealized(p, price)
	}
}

func unrealized(p *Position, price float64) float64 {
	if p.Side == Long {
		return (price - p.EntryPrice) * p.Amount
	}
	return (p.EntryPrice - price) * p.Amount
}

// ExitChecks returns a close intent for every position whose stop or target
// triggered at the given price. Positions are not removed here; removal
// happens in Realize once the closing order executed successfully.
func (b *Book) ExitChecks(price float64) []ExitIntent {
	var intents []ExitIntent
	for asset, p := range b.positions {
		reason, triggered := exitReason(p, price)
		if !triggered {
			continue
		}

		closeAction := strategy.Sell
		if p.Side == Short {
			closeAction = strategy.Buy
		}

		intents = append(intents, ExitIntent{
			Asset:  asset,
			Reason: reason,
			Signal: strategy.Signal{
				Time:      time.Now().UTC(),
				Action:    closeAction,
				Asset:     asset,
				Amount:    p.Amount,
				Price:     price,
				Reasoning: fmt.Sprintf("%s triggered at %.8f", reason, price),
			},
		})
	}
	return intents
}

func exitReason(p *Position, price float64) (ExitReason, bool) {
	if p.Side == Long {
		if price <= p.StopLossPrice {
			return StopLoss, true
		}
		if price >= p.TakeProfitPrice {
			return TakeProfit, true
		}
		return "", false
	}
	if price >= p.StopLossPrice {
		return StopLoss, true
	}
	if price <= p.TakeProfitPrice {
		return TakeProfit, true
	}
	return "", false
}

// Realize removes the position and returns its realized PnL at the close
// price. Unrealized PnL is discarded. Call only after the closing order
// executed successfully.
func (b *Book) Realize(asset string, closePrice float64) (float64, error) {
	p, ok := b.positions[asset]
	if !ok {
		return 0, fmt.Errorf("no open position for %s", asset)
	}
	delete(b.positions, asset)

	if p.Side == Long {
		return (closePrice - p.EntryPrice) * p.Amount, nil
	}
	return (p.EntryPrice - closePrice) * p.Amount, nil
}
