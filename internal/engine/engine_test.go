package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflow/agent-trader/internal/db"
	"github.com/quantflow/agent-trader/internal/market"
	"github.com/quantflow/agent-trader/internal/risk"
	"github.com/quantflow/agent-trader/internal/strategy"
)

// stubSource replays a scripted sequence of snapshots; the last one repeats.
type stubSource struct {
	data []market.Data
	i    int
	err  error
}

func (s *stubSource) MarketData(ctx context.Context, asset string) (market.Data, error) {
	if s.err != nil {
		return market.Data{}, s.err
	}
	if len(s.data) == 0 {
		return market.Data{}, errors.New("no scripted data")
	}
	d := s.data[s.i]
	if s.i < len(s.data)-1 {
		s.i++
	}
	return d, nil
}

// stubStrategy emits scripted signals and records every execution request.
type stubStrategy struct {
	params   strategy.Params
	signals  []strategy.Signal
	i        int
	execOK   bool
	execErr  error
	executed []strategy.Signal
}

func newStubStrategy(signals ...strategy.Signal) *stubStrategy {
	return &stubStrategy{
		params: strategy.Params{
			Type:            strategy.FundingRateArbitrage,
			Asset:           "BTCUSDT",
			RiskLevel:       strategy.Moderate,
			MaxPositionSize: 1000.0,
			StopLossPct:     2.0,
			TakeProfitPct:   5.0,
			MaxDrawdownPct:  10.0,
			IntervalSeconds: 1,
			InitialBalance:  10000.0,
		},
		signals: signals,
		execOK:  true,
	}
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) Params() strategy.Params { return s.params }

func (s *stubStrategy) AnalyzeMarket(ctx context.Context, data market.Data) (strategy.Signal, error) {
	if s.i >= len(s.signals) {
		return strategy.HoldSignal(s.params.Asset, data.Price, "script exhausted"), nil
	}
	sig := s.signals[s.i]
	s.i++
	return sig, nil
}

func (s *stubStrategy) ExecuteSignal(ctx context.Context, sig strategy.Signal) (bool, error) {
	s.executed = append(s.executed, sig)
	if sig.Action == strategy.Hold {
		return true, nil
	}
	return s.execOK, s.execErr
}

func tick(price float64) market.Data {
	return market.Data{Timestamp: time.Now().UTC(), Price: price, Volume: 1000.0}
}

func buySignal(price, amount float64) strategy.Signal {
	return strategy.Signal{
		Time:      time.Now().UTC(),
		Action:    strategy.Buy,
		Asset:     "BTCUSDT",
		Amount:    amount,
		Price:     price,
		RiskScore: 0.3,
	}
}

func newTestRunner(strat *stubStrategy, source *stubSource, storage db.Storage) *runner {
	return newRunner("s1", strat, source, storage, nil, nil, risk.DefaultLimits(), 5*time.Millisecond)
}

func TestRunner_TickOpensPosition(t *testing.T) {
	ctx := context.Background()
	mem := db.NewMemory()
	strat := newStubStrategy(buySignal(50000.0, 100.0))
	r := newTestRunner(strat, &stubSource{data: []market.Data{tick(50000.0)}}, mem)

	require.NoError(t, r.tick(ctx))

	pos, ok := r.book.Get("BTCUSDT")
	require.True(t, ok)
	assert.InDelta(t, 50000.0, pos.EntryPrice, 1e-9)
	assert.InDelta(t, 49000.0, pos.StopLossPrice, 1e-6)
	assert.InDelta(t, 52500.0, pos.TakeProfitPrice, 1e-6)

	snap := r.metrics.Snapshot()
	assert.Equal(t, 1, snap.OpenPositions)
	assert.Equal(t, 0, snap.TotalTrades)

	events, err := mem.GetEvents(ctx, "position", time.Time{}, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "position_opened", events[0].Description)
}

func TestRunner_RejectedSignalLeavesNoPosition(t *testing.T) {
	ctx := context.Background()
	mem := db.NewMemory()

	risky := buySignal(50000.0, 100.0)
	risky.RiskScore = 0.95
	strat := newStubStrategy(risky)
	r := newTestRunner(strat, &stubSource{data: []market.Data{tick(50000.0)}}, mem)

	require.NoError(t, r.tick(ctx))

	assert.Equal(t, 0, r.book.Len())
	assert.Empty(t, strat.executed)

	events, err := mem.GetEvents(ctx, "risk", time.Time{}, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "risk_rejected", events[0].Description)
}

func TestRunner_TakeProfitClosesPosition(t *testing.T) {
	ctx := context.Background()
	mem := db.NewMemory()
	strat := newStubStrategy(buySignal(50000.0, 100.0))
	r := newTestRunner(strat, &stubSource{data: []market.Data{tick(50000.0), tick(52600.0)}}, mem)

	require.NoError(t, r.tick(ctx))
	require.NoError(t, r.tick(ctx))

	assert.Equal(t, 0, r.book.Len())

	snap := r.metrics.Snapshot()
	assert.Equal(t, 1, snap.TotalTrades)
	assert.Equal(t, 1, snap.SuccessfulTrades)
	assert.InDelta(t, (52600.0-50000.0)*100.0, snap.TotalPnL, 1e-6)
	assert.Equal(t, 0, snap.OpenPositions)

	trades, err := mem.GetTrades(ctx, "s1", time.Time{}, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "take-profit", trades[0].Reason)
	assert.NotEmpty(t, trades[0].ID)

	// The closing order went through the strategy's execution path.
	require.Len(t, strat.executed, 2)
	assert.Equal(t, strategy.Sell, strat.executed[1].Action)
}

func TestRunner_StopLossRealizesLoss(t *testing.T) {
	ctx := context.Background()
	mem := db.NewMemory()
	strat := newStubStrategy(buySignal(50000.0, 100.0))
	r := newTestRunner(strat, &stubSource{data: []market.Data{tick(50000.0), tick(48900.0)}}, mem)

	require.NoError(t, r.tick(ctx))
	require.NoError(t, r.tick(ctx))

	snap := r.metrics.Snapshot()
	assert.Equal(t, 1, snap.TotalTrades)
	assert.Equal(t, 0, snap.SuccessfulTrades)
	assert.InDelta(t, (48900.0-50000.0)*100.0, snap.TotalPnL, 1e-6)

	// The loss pulls equity below the peak, so the risk manager sees drawdown.
	assert.Greater(t, r.riskMgr.Drawdown(), 0.0)
}

func TestRunner_OppositeSignalClosesExposure(t *testing.T) {
	ctx := context.Background()
	mem := db.NewMemory()

	sell := buySignal(51000.0, 100.0)
	sell.Action = strategy.Sell
	strat := newStubStrategy(buySignal(50000.0, 100.0), sell)
	r := newTestRunner(strat, &stubSource{data: []market.Data{tick(50000.0), tick(51000.0)}}, mem)

	require.NoError(t, r.tick(ctx))
	require.NoError(t, r.tick(ctx))

	assert.Equal(t, 0, r.book.Len())

	snap := r.metrics.Snapshot()
	assert.Equal(t, 1, snap.TotalTrades)
	assert.InDelta(t, (51000.0-50000.0)*100.0, snap.TotalPnL, 1e-6)

	trades, err := mem.GetTrades(ctx, "s1", time.Time{}, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "opposite signal", trades[0].Reason)
}

func TestRunner_FailedExecutionLeavesNoPosition(t *testing.T) {
	ctx := context.Background()
	strat := newStubStrategy(buySignal(50000.0, 100.0))
	strat.execOK = false
	r := newTestRunner(strat, &stubSource{data: []market.Data{tick(50000.0)}}, db.NewMemory())

	require.NoError(t, r.tick(ctx))

	assert.Equal(t, 0, r.book.Len())
	assert.Equal(t, 0, r.metrics.Snapshot().OpenPositions)
}

func TestRunner_UnfilledCloseKeepsPosition(t *testing.T) {
	ctx := context.Background()
	strat := newStubStrategy(buySignal(50000.0, 100.0))
	r := newTestRunner(strat, &stubSource{data: []market.Data{tick(50000.0), tick(52600.0)}}, db.NewMemory())

	require.NoError(t, r.tick(ctx))

	// The venue stops filling before the take-profit tick.
	strat.execOK = false
	require.NoError(t, r.tick(ctx))

	assert.Equal(t, 1, r.book.Len())
	assert.Equal(t, 0, r.metrics.Snapshot().TotalTrades)
}

func TestRunner_DataErrorSurfacesFromTick(t *testing.T) {
	strat := newStubStrategy()
	r := newTestRunner(strat, &stubSource{err: errors.New("venue down")}, db.NewMemory())

	err := r.tick(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "venue down")
}

func TestRunner_LoopSurvivesErrorsUntilCanceled(t *testing.T) {
	mem := db.NewMemory()
	strat := newStubStrategy()
	r := newTestRunner(strat, &stubSource{err: errors.New("venue down")}, mem)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after cancellation")
	}

	events, err := mem.GetEvents(context.Background(), "error", time.Time{}, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestExecutor_AddRejectsDuplicates(t *testing.T) {
	e := NewExecutor(&stubSource{data: []market.Data{tick(50000.0)}}, db.NewMemory(), nil,
		WithErrorBackoff(5*time.Millisecond))
	defer e.Shutdown()

	require.NoError(t, e.Add(context.Background(), "alpha", newStubStrategy()))
	assert.ErrorIs(t, e.Add(context.Background(), "alpha", newStubStrategy()), ErrDuplicateStrategy)
}

func TestExecutor_PerformanceQueries(t *testing.T) {
	e := NewExecutor(&stubSource{data: []market.Data{tick(50000.0)}}, db.NewMemory(), nil,
		WithErrorBackoff(5*time.Millisecond))
	defer e.Shutdown()

	require.NoError(t, e.Add(context.Background(), "alpha", newStubStrategy()))
	require.NoError(t, e.Add(context.Background(), "beta", newStubStrategy()))

	_, err := e.Performance("alpha")
	assert.NoError(t, err)

	_, err = e.Performance("missing")
	assert.ErrorIs(t, err, ErrStrategyNotFound)

	all := e.AllPerformance()
	assert.Len(t, all, 2)
	assert.Contains(t, all, "alpha")
	assert.Contains(t, all, "beta")
}

func TestExecutor_RemoveStopsAndDeregisters(t *testing.T) {
	e := NewExecutor(&stubSource{data: []market.Data{tick(50000.0)}}, db.NewMemory(), nil,
		WithErrorBackoff(5*time.Millisecond))
	defer e.Shutdown()

	require.NoError(t, e.Add(context.Background(), "alpha", newStubStrategy()))
	require.NoError(t, e.Remove("alpha"))

	assert.Empty(t, e.AllPerformance())
	assert.ErrorIs(t, e.Remove("alpha"), ErrStrategyNotFound)

	_, err := e.Performance("alpha")
	assert.ErrorIs(t, err, ErrStrategyNotFound)
}

func TestExecutor_ShutdownStopsEverything(t *testing.T) {
	e := NewExecutor(&stubSource{data: []market.Data{tick(50000.0)}}, db.NewMemory(), nil,
		WithErrorBackoff(5*time.Millisecond))

	require.NoError(t, e.Add(context.Background(), "alpha", newStubStrategy()))
	require.NoError(t, e.Add(context.Background(), "beta", newStubStrategy()))

	e.Shutdown()
	assert.Empty(t, e.IDs())
}
