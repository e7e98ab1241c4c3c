// Package strategy
package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/quantflow/agent-trader/internal/exchange"
	"github.com/quantflow/agent-trader/internal/market"
)

// Type identifies a strategy variant.
type Type string

const (
	FundingRateArbitrage Type = "funding_rate_arbitrage"
	MarketMaking         Type = "market_making"
)

// RiskLevel expresses how aggressively a strategy sizes its trades.
type RiskLevel int

const (
	Conservative RiskLevel = 1
	Moderate     RiskLevel = 5
	Aggressive   RiskLevel = 10
)

// Action is the trade action carried by a signal.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
	Hold Action = "HOLD"
)

// Opposite returns the closing action for an action.
func (a Action) Opposite() Action {
	switch a {
	case Buy:
		return Sell
	case Sell:
		return Buy
	default:
		return Hold
	}
}

// Params holds the immutable configuration of a strategy instance.
// Changing parameters requires constructing a new instance.
type Params struct {
	Type             Type      `yaml:"type" json:"type"`
	Asset            string    `yaml:"asset" json:"asset"`
	RiskLevel        RiskLevel `yaml:"risk_level" json:"risk_level"`
	MaxPositionSize  float64   `yaml:"max_position_size" json:"max_position_size"`
	StopLossPct      float64   `yaml:"stop_loss_pct" json:"stop_loss_pct"`
	TakeProfitPct    float64   `yaml:"take_profit_pct" json:"take_profit_pct"`
	MaxDrawdownPct   float64   `yaml:"max_drawdown_pct" json:"max_drawdown_pct"`
	IntervalSeconds  int       `yaml:"interval_seconds" json:"interval_seconds"`
	EnabledVenues    []string  `yaml:"enabled_venues" json:"enabled_venues"`
	InitialBalance   float64   `yaml:"initial_balance" json:"initial_balance"`
}

// Interval returns the configured execution interval.
func (p Params) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

// Signal is a proposed trade produced by a strategy's analysis.
// HOLD signals carry amount 0 and are never risk-gated.
type Signal struct {
	Time            time.Time `json:"time"`
	Action          Action    `json:"action"`
	Asset           string    `json:"asset"`
	Amount          float64   `json:"amount"`
	Price           float64   `json:"price"`
	Confidence      float64   `json:"confidence"`
	Reasoning       string    `json:"reasoning"`
	RiskScore       float64   `json:"risk_score"`
	StopLossPrice   *float64  `json:"stop_loss_price,omitempty"`
	TakeProfitPrice *float64  `json:"take_profit_price,omitempty"`
}

// HoldSignal builds a HOLD signal for an asset with the given reasoning.
func HoldSignal(asset string, price float64, reasoning string) Signal {
	return Signal{
		Time:      time.Now().UTC(),
		Action:    Hold,
		Asset:     asset,
		Amount:    0,
		Price:     price,
		Reasoning: reasoning,
	}
}

// Strategy is the interface for all trading strategies. The control loop and
// the risk/position machinery are shared; variants only decide and execute.
type Strategy interface {
	Name() string
	Params() Params
	AnalyzeMarket(ctx context.Context, data market.Data) (Signal, error)
	ExecuteSignal(ctx context.Context, sig Signal) (bool, error)
}

// New constructs a strategy instance for the configured type.
// An unsupported type is a construction-time error, never entered into the loop.
func New(params Params, sink exchange.ExecutionSink) (Strategy, error) {
	switch params.Type {
	case FundingRateArbitrage:
		return NewFundingRateArbitrage(params, sink), nil
	case MarketMaking:
		return NewMarketMaking(params, sink), nil
	default:
		return nil, fmt.Errorf("unsupported strategy type %q (supported: %s, %s)",
			params.Type, FundingRateArbitrage, MarketMaking)
	}
}
