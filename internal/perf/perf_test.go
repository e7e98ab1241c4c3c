// Package perf
package perf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_OpenDoesNotCountTrades(t *testing.T) {
	m := New()

	m.RecordOpen(1000.0)
	m.RecordOpen(500.0)

	snap := m.Snapshot()
	assert.Equal(t, 0, snap.TotalTrades)
	assert.Equal(t, 2, snap.OpenPositions)
	assert.InDelta(t, 1500.0, snap.TotalVolume, 1e-9)
	assert.InDelta(t, 0.0, snap.WinRate, 1e-9)
}

func TestMetrics_CloseDrivesWinRate(t *testing.T) {
	m := New()

	m.RecordOpen(1000.0)
	m.RecordClose(250.0)

	snap := m.Snapshot()
	assert.Equal(t, 1, snap.TotalTrades)
	assert.Equal(t, 1, snap.SuccessfulTrades)
	assert.InDelta(t, 1.0, snap.WinRate, 1e-9)
	assert.Equal(t, 0, snap.OpenPositions)

	m.RecordOpen(1000.0)
	m.RecordClose(-100.0)

	snap = m.Snapshot()
	assert.Equal(t, 2, snap.TotalTrades)
	assert.Equal(t, 1, snap.SuccessfulTrades)
	assert.InDelta(t, 0.5, snap.WinRate, 1e-9)
	assert.InDelta(t, 150.0, snap.TotalPnL, 1e-9)
}

func TestMetrics_BreakEvenIsNotAWin(t *testing.T) {
	m := New()

	m.RecordOpen(1000.0)
	m.RecordClose(0.0)

	snap := m.Snapshot()
	assert.Equal(t, 1, snap.TotalTrades)
	assert.Equal(t, 0, snap.SuccessfulTrades)
	assert.InDelta(t, 0.0, snap.WinRate, 1e-9)
}
