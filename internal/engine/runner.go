// Package engine
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/quantflow/agent-trader/internal/db"
	"github.com/quantflow/agent-trader/internal/exchange"
	"github.com/quantflow/agent-trader/internal/journal"
	"github.com/quantflow/agent-trader/internal/market"
	"github.com/quantflow/agent-trader/internal/notifier"
	"github.com/quantflow/agent-trader/internal/perf"
	"github.com/quantflow/agent-trader/internal/position"
	"github.com/quantflow/agent-trader/internal/risk"
	"github.com/quantflow/agent-trader/internal/strategy"
	"github.com/quantflow/agent-trader/pkg/id"
)

// runner drives one strategy's control loop. It exclusively owns the
// strategy's risk manager, position book and metrics; nothing outside the
// loop mutates them.
type runner struct {
	id       string
	strat    strategy.Strategy
	source   market.DataSource
	riskMgr  *risk.Manager
	book     *position.Book
	metrics  *perf.Metrics
	storage  db.Storage
	notifier notifier.Notifier
	balances exchange.BalanceFetcher // optional live balance reports

	interval time.Duration
	backoff  time.Duration

	equity float64
}

func newRunner(
	strategyID string,
	strat strategy.Strategy,
	source market.DataSource,
	storage db.Storage,
	n notifier.Notifier,
	balances exchange.BalanceFetcher,
	limits risk.Limits,
	backoff time.Duration,
) *runner {
	params := strat.Params()

	interval := params.Interval()
	if interval <= 0 {
		interval = time.Minute
	}

	r := &runner{
		id:       strategyID,
		strat:    strat,
		source:   source,
		riskMgr:  risk.NewManager(params.MaxDrawdownPct/100, limits),
		book:     position.NewBook(),
		metrics:  perf.New(),
		storage:  storage,
		notifier: n,
		balances: balances,
		interval: interval,
		backoff:  backoff,
		equity:   params.InitialBalance,
	}
	if r.equity > 0 {
		r.riskMgr.UpdateBalance(r.equity)
	}
	return r
}

// run is the control loop. Any error inside a tick is logged and followed by
// a fixed backoff; the loop ends only when the context is canceled.
func (r *runner) run(ctx context.Context) {
	log.Printf("Engine | [%s] Starting strategy %s", r.id, r.strat.Name())

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Engine | [%s] Recovered from panic: %v", r.id, rec)
			if r.notifier != nil {
				r.notifier.SendWithRetry(fmt.Sprintf("PANIC in strategy %s: %v", r.id, rec))
			}
		}
		log.Printf("Engine | [%s] Strategy stopped", r.id)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := r.tick(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Engine | [%s] Tick error: %v", r.id, err)
			r.journal(ctx, "error", "tick_error", map[string]any{
				"strategy_id": r.id,
				"error":       err.Error(),
			})
			sleepCtx(ctx, r.backoff)
			continue
		}

		sleepCtx(ctx, r.interval)
	}
}

// tick runs one iteration: fetch data, close triggered exits, analyze,
// risk-gate, execute, mark to market.
func (r *runner) tick(ctx context.Context) error {
	data, err := r.source.MarketData(ctx, r.strat.Params().Asset)
	if err != nil {
		return fmt.Errorf("fetching market data: %w", err)
	}

	// Exit checks come before new-signal analysis, so a position cannot be
	// re-entered before its stop or target has been honored.
	if err := r.closeTriggered(ctx, data); err != nil {
		return err
	}

	sig, err := r.strat.AnalyzeMarket(ctx, data)
	if err != nil {
		return fmt.Errorf("analyzing market: %w", err)
	}

	if sig.Action != strategy.Hold {
		if err := r.handleSignal(ctx, sig); err != nil {
			return err
		}
	}

	r.book.MarkAll(data.Price)

	r.reportBalance(ctx)

	return nil
}

// closeTriggered executes the close for every position whose stop-loss or
// take-profit fired at the tick's price. The position is removed only when
// the closing order succeeded; a rejected fill leaves it for the next tick.
func (r *runner) closeTriggered(ctx context.Context, data market.Data) error {
	for _, intent := range r.book.ExitChecks(data.Price) {
		executed, err := r.strat.ExecuteSignal(ctx, intent.Signal)
		if err != nil {
			return fmt.Errorf("executing %s close for %s: %w", intent.Reason, intent.Asset, err)
		}
		if !executed {
			log.Printf("Engine | [%s] Close for %s not filled, retrying next tick", r.id, intent.Asset)
			continue
		}

		if err := r.realize(ctx, intent.Asset, data.Price, string(intent.Reason)); err != nil {
			return err
		}
	}
	return nil
}

// handleSignal risk-gates a non-HOLD signal and, on approval and successful
// execution, opens a position or closes the opposite one.
func (r *runner) handleSignal(ctx context.Context, sig strategy.Signal) error {
	open := r.book.Snapshot()

	approved, reason := r.riskMgr.Assess(sig, open)
	if !approved {
		log.Printf("Engine | [%s] Signal rejected by risk manager: %s", r.id, reason)
		r.journal(ctx, "risk", "risk_rejected", map[string]any{
			"strategy_id": r.id,
			"signal":      sig,
			"reason":      reason,
		})
		return nil
	}

	executed, err := r.strat.ExecuteSignal(ctx, sig)
	if err != nil {
		return fmt.Errorf("executing signal: %w", err)
	}
	if !executed {
		log.Printf("Engine | [%s] Signal for %s not filled", r.id, sig.Asset)
		return nil
	}

	if existing, ok := r.book.Get(sig.Asset); ok {
		// The gate only lets opposite-direction signals through here, so a
		// successful execution closes the existing exposure.
		return r.realize(ctx, existing.Asset, sig.Price, "opposite signal")
	}

	pos, err := r.book.Open(sig, r.strat.Params().StopLossPct, r.strat.Params().TakeProfitPct)
	if err != nil {
		return fmt.Errorf("opening position: %w", err)
	}
	r.metrics.RecordOpen(sig.Amount)

	log.Printf("Engine | [%s] Opened %s %s: amount=%.2f entry=%.2f stop=%.2f target=%.2f",
		r.id, pos.Side, pos.Asset, pos.Amount, pos.EntryPrice, pos.StopLossPrice, pos.TakeProfitPrice)
	r.journal(ctx, "position", "position_opened", map[string]any{
		"strategy_id": r.id,
		"position":    pos,
		"reasoning":   sig.Reasoning,
	})

	return nil
}

// realize removes the position, books its PnL, and reports the new equity to
// the risk manager.
func (r *runner) realize(ctx context.Context, asset string, closePrice float64, reason string) error {
	pos, ok := r.book.Get(asset)
	if !ok {
		return fmt.Errorf("no open position for %s", asset)
	}
	entryPrice, side, amount, openedAt := pos.EntryPrice, pos.Side, pos.Amount, pos.EntryTime

	pnl, err := r.book.Realize(asset, closePrice)
	if err != nil {
		return err
	}
	r.metrics.RecordClose(pnl)

	r.equity += pnl
	r.riskMgr.UpdateBalance(r.equity)

	log.Printf("Engine | [%s] Closed %s %s at %.2f (%s): pnl=%.2f equity=%.2f",
		r.id, side, asset, closePrice, reason, pnl, r.equity)

	trade := db.Trade{
		ID:         id.New(),
		StrategyID: r.id,
		Asset:      asset,
		Side:       side,
		EntryPrice: entryPrice,
		ClosePrice: closePrice,
		Amount:     amount,
		PnL:        pnl,
		Reason:     reason,
		OpenedAt:   openedAt,
		ClosedAt:   time.Now().UTC(),
	}
	if r.storage != nil {
		if err := r.storage.SaveTrade(ctx, trade); err != nil {
			log.Printf("Engine | [%s] Failed to save trade %s: %v", r.id, trade.ID, err)
		}
	}
	r.journal(ctx, "position", "position_closed", map[string]any{
		"strategy_id": r.id,
		"trade":       trade,
	})

	if r.notifier != nil {
		r.notifier.SendWithRetry(fmt.Sprintf("[%s] Closed %s %s at %.2f (%s): pnl=%.2f",
			r.id, side, asset, closePrice, reason, pnl))
	}

	return nil
}

// reportBalance feeds live account equity into the risk manager when a
// balance source is wired. Failures only log; balance reports are advisory.
func (r *runner) reportBalance(ctx context.Context) {
	if r.balances == nil {
		return
	}
	balance, err := r.balances.FetchBalance(ctx)
	if err != nil {
		log.Printf("Engine | [%s] Failed to fetch balance: %v", r.id, err)
		return
	}
	r.equity = balance
	r.riskMgr.UpdateBalance(balance)
}

func (r *runner) journal(ctx context.Context, eventType, description string, data map[string]any) {
	if r.storage == nil {
		return
	}
	err := r.storage.LogEvent(ctx, journal.Event{
		Time:        time.Now().UTC(),
		Type:        eventType,
		Description: description,
		Data:        data,
	})
	if err != nil {
		log.Printf("Engine | [%s] Failed to journal %s: %v", r.id, description, err)
	}
}

// sleepCtx suspends for d or until the context is canceled.
func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
