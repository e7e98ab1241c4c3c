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

// MarketMakingStrategy accumulates inventory on dips and sheds it on pops:
// it buys when the price falls more than one half-spread below its reference
// and sells when it rises above, with the half-spread scaled by volatility.
type MarketMakingStrategy struct {
	params Params
	sink   exchange.ExecutionSink

	minHalfSpread float64 // floor on the quoting band, as a fraction
	refPrice      float64 // reference price, reset on every signal
}

func NewMarketMaking(params Params, sink exchange.ExecutionSink) *MarketMakingStrategy {
	return &MarketMakingStrategy{
		params:        params,
		sink:          sink,
		minHalfSpread: 0.002,
	}
}

func (s *MarketMakingStrategy) Name() string { return string(MarketMaking) }

func (s *MarketMakingStrategy) Params() Params { return s.params }

func (s *MarketMakingStrategy) AnalyzeMarket(ctx context.Context, data market.Data) (Signal, error) {
	if s.refPrice == 0 {
		s.refPrice = data.Price
		return HoldSignal(s.params.Asset, data.Price, "establishing reference price"), nil
	}

	vol := 0.0
	if data.Volatility != nil {
		vol = *data.Volatility
	}

	halfSpread := math.Max(s.minHalfSpread, vol/10)
	move := data.Price/s.refPrice - 1

	if math.Abs(move) < halfSpread {
		return HoldSignal(s.params.Asset, data.Price,
			fmt.Sprintf("price within %.2f%% band", halfSpread*100)), nil
	}

	// Scale size by risk level; a deeper move does not grow the order.
	amount := s.params.MaxPositionSize * float64(s.params.RiskLevel) / float64(Aggressive) * 0.5

	var action Action
	var reasoning string
	if move < 0 {
		action = Buy
		reasoning = fmt.Sprintf("price %.2f%% below reference, buying the dip", -move*100)
	} else {
		action = Sell
		reasoning = fmt.Sprintf("price %.2f%% above reference, selling the pop", move*100)
	}

	s.refPrice = data.Price

	utils.GetLogger().Printf("Strategy | [%s mm] %s %.2f @ %.2f, move=%.4f, band=%.4f\n",
		s.params.Asset, action, amount, data.Price, move, halfSpread)

	return Signal{
		Time:       time.Now().UTC(),
		Action:     action,
		Asset:      s.params.Asset,
		Amount:     amount,
		Price:      data.Price,
		Confidence: math.Min(0.9, math.Abs(move)/halfSpread*0.3),
		Reasoning:  reasoning,
		RiskScore:  math.Min(vol*1.5, 1.0),
	}, nil
}

func (s *MarketMakingStrategy) ExecuteSignal(ctx context.Context, sig Signal) (bool, error) {
	return executeViaSink(ctx, s.sink, sig)
}
