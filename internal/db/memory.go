// Package db
package db

import (
	"context"
	"sync"
	"time"

	"github.com/quantflow/agent-trader/internal/journal"
)

// Memory is an in-memory Storage used when no database is configured and in
// tests. Safe for concurrent use by multiple strategy loops.
type Memory struct {
	mu     sync.RWMutex
	events []journal.Event
	trades []Trade
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) LogEvent(ctx context.Context, event journal.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *Memory) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]journal.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []journal.Event
	for _, e := range m.events {
		if e.Type != eventType {
			continue
		}
		if e.Time.Before(start) || e.Time.After(end) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *Memory) SaveTrade(ctx context.Context, t Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, t)
	return nil
}

func (m *Memory) GetTrades(ctx context.Context, strategyID string, start, end time.Time) ([]Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Trade
	for _, t := range m.trades {
		if t.StrategyID != strategyID {
			continue
		}
		if t.ClosedAt.Before(start) || t.ClosedAt.After(end) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
