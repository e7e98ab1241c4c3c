// Package perf
package perf

import "sync"

// Snapshot is a read-only copy of a strategy's performance counters.
type Snapshot struct {
	TotalTrades      int     `json:"total_trades"`
	SuccessfulTrades int     `json:"successful_trades"`
	TotalPnL         float64 `json:"total_pnl"`
	WinRate          float64 `json:"win_rate"`
	OpenPositions    int     `json:"open_positions"`
	TotalVolume      float64 `json:"total_volume"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
}

// Metrics accumulates per-strategy performance. Trade and win counters move
// only when a position closes, since a trade's outcome is the sign of its
// realized PnL; opens only touch the open-position count and volume.
//
// The owning strategy's loop is the only writer; the mutex exists because the
// executor reads snapshots from other goroutines.
type Metrics struct {
	mu sync.RWMutex

	totalTrades      int
	successfulTrades int
	totalPnL         float64
	winRate          float64
	openPositions    int
	totalVolume      float64

	// Reserved for richer reporting; not computed by the engine.
	sharpeRatio float64
	maxDrawdown float64
}

func New() *Metrics {
	return &Metrics{}
}

// RecordOpen accounts for a newly opened position and its notional volume.
func (m *Metrics) RecordOpen(notional float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.openPositions++
	m.totalVolume += notional
}

// RecordClose realizes a position's PnL and updates the trade counters and
// win rate.
func (m *Metrics) RecordClose(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.openPositions > 0 {
		m.openPositions--
	}

	m.totalTrades++
	if pnl > 0 {
		m.successfulTrades++
	}
	m.totalPnL += pnl
	m.winRate = float64(m.successfulTrades) / float64(m.totalTrades)
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Snapshot{
		TotalTrades:      m.totalTrades,
		SuccessfulTrades: m.successfulTrades,
		TotalPnL:         m.totalPnL,
		WinRate:          m.winRate,
		OpenPositions:    m.openPositions,
		TotalVolume:      m.totalVolume,
		SharpeRatio:      m.sharpeRatio,
		MaxDrawdown:      m.maxDrawdown,
	}
}
