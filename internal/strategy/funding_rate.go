// Package strategy
package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/quantflow/agent-trader/internal/exchange"
	"github.com/quantflow/agent-trader/internal/market"
	"github.com/quantflow/agent-trader/internal/utils"
)

// FundingRateArbitrageStrategy trades perpetual funding-rate extremes: when
// longs pay shorts it goes short to collect the funding, and vice versa.
type FundingRateArbitrageStrategy struct {
	params Params
	sink   exchange.ExecutionSink

	minFundingRate float64 // minimum absolute rate worth trading
}

func NewFundingRateArbitrage(params Params, sink exchange.ExecutionSink) *FundingRateArbitrageStrategy {
	return &FundingRateArbitrageStrategy{
		params:         params,
		sink:           sink,
		minFundingRate: 0.01,
	}
}

func (s *FundingRateArbitrageStrategy) Name() string { return string(FundingRateArbitrage) }

func (s *FundingRateArbitrageStrategy) Params() Params { return s.params }

// AnalyzeMarket generates a signal from the funding rate in the snapshot.
// Positive rates mean longs pay shorts, so the profitable side is SHORT.
func (s *FundingRateArbitrageStrategy) AnalyzeMarket(ctx context.Context, data market.Data) (Signal, error) {
	fundingRate := 0.0
	if data.FundingRate != nil {
		fundingRate = *data.FundingRate
	}

	if math.Abs(fundingRate) < s.minFundingRate {
		return HoldSignal(s.params.Asset, data.Price, "funding rate too low for arbitrage"), nil
	}

	// Size by funding strength, capped at a 5% rate.
	strength := math.Min(math.Abs(fundingRate)/0.05, 1.0)
	amount := s.params.MaxPositionSize * strength

	var action Action
	var reasoning string
	if fundingRate > 0 {
		action = Sell
		reasoning = fmt.Sprintf("high positive funding rate %.4f, going short to collect funding", fundingRate)
	} else {
		action = Buy
		reasoning = fmt.Sprintf("high negative funding rate %.4f, going long to collect funding", fundingRate)
	}
	confidence := math.Min(0.9, strength+0.3)

	riskScore := s.riskScore(data, fundingRate)

	// Tighter stops than the configured default: the edge here is the funding
	// payment, not price movement. The target is 80% of the funding rate.
	stopLossPct := math.Min(s.params.StopLossPct, 2.0)
	takeProfitPct := math.Abs(fundingRate) * 100 * 0.8

	var stopLoss, takeProfit float64
	if action == Buy {
		stopLoss = data.Price * (1 - stopLossPct/100)
		takeProfit = data.Price * (1 + takeProfitPct/100)
	} else {
		stopLoss = data.Price * (1 + stopLossPct/100)
		takeProfit = data.Price * (1 - takeProfitPct/100)
	}

	utils.GetLogger().Printf("Strategy | [%s funding] %s %.2f @ %.2f, funding=%.4f, risk=%.2f\n",
		s.params.Asset, action, amount, data.Price, fundingRate, riskScore)

	return Signal{
		Time:            time.Now().UTC(),
		Action:          action,
		Asset:           s.params.Asset,
		Amount:          amount,
		Price:           data.Price,
		Confidence:      confidence,
		Reasoning:       reasoning,
		RiskScore:       riskScore,
		StopLossPrice:   &stopLoss,
		TakeProfitPrice: &takeProfit,
	}, nil
}

// riskScore penalizes volatile markets and extreme funding, which tends to
// accompany market stress.
func (s *FundingRateArbitrageStrategy) riskScore(data market.Data, fundingRate float64) float64 {
	score := 0.0

	if data.Volatility != nil {
		switch {
		case *data.Volatility > 0.5:
			score += 0.3
		case *data.Volatility > 0.3:
			score += 0.1
		}
	}

	if math.Abs(fundingRate) > 0.1 {
		score += 0.3
	}

	return math.Min(score, 1.0)
}

// ExecuteSignal submits the order through the execution sink. HOLD is a
// trivial success.
func (s *FundingRateArbitrageStrategy) ExecuteSignal(ctx context.Context, sig Signal) (bool, error) {
	return executeViaSink(ctx, s.sink, sig)
}

// executeViaSink is the shared execution path for all strategy variants.
func executeViaSink(ctx context.Context, sink exchange.ExecutionSink, sig Signal) (bool, error) {
	if sig.Action == Hold {
		return true, nil
	}

	side := "buy"
	if sig.Action == Sell {
		side = "sell"
	}

	order, err := sink.SubmitOrder(ctx, exchange.OrderRequest{
		Asset:    sig.Asset,
		Side:     side,
		Type:     "market",
		Price:    sig.Price,
		Quantity: sig.Amount,
	})
	if err != nil {
		return false, fmt.Errorf("submitting %s order for %s: %w", side, sig.Asset, err)
	}

	return order.Filled(), nil
}
