// Package db
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/quantflow/agent-trader/internal/journal"
	"github.com/quantflow/agent-trader/internal/position"
)

// Postgres implements Storage on top of PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool and verifies it.
func NewPostgres(connStr string, maxOpen, maxIdle int) (*Postgres, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &Postgres{db: db}, nil
}

// NewPostgresFromDB wraps an existing connection (used by tests).
func NewPostgresFromDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// executeWithTransaction runs fn inside a transaction, rolling back on error.
func (p *Postgres) executeWithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if fnErr := fn(tx); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction rollback failed: %w (original error: %v)", rbErr, fnErr)
		}
		return fnErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("transaction commit failed: %w", commitErr)
	}
	return nil
}

func (p *Postgres) LogEvent(ctx context.Context, event journal.Event) error {
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		data, _ := json.Marshal(event.Data)
		_, err := tx.ExecContext(ctx, `INSERT INTO events (time, type, description, data) VALUES ($1,$2,$3,$4)`,
			event.Time, event.Type, event.Description, data)
		if err != nil {
			return fmt.Errorf("failed to log event: %w", err)
		}
		return nil
	})
}

func (p *Postgres) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]journal.Event, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT time, type, description, data FROM events WHERE type=$1 AND time >= $2 AND time <= $3 ORDER BY time ASC`,
		eventType, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []journal.Event
	for rows.Next() {
		var e journal.Event
		var data []byte
		if err := rows.Scan(&e.Time, &e.Type, &e.Description, &data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, fmt.Errorf("failed to decode event data: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (p *Postgres) SaveTrade(ctx context.Context, t Trade) error {
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO trades (id, strategy_id, asset, side, entry_price, close_price, amount, pnl, reason, opened_at, closed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO NOTHING`,
			t.ID, t.StrategyID, t.Asset, string(t.Side), t.EntryPrice, t.ClosePrice, t.Amount, t.PnL, t.Reason, t.OpenedAt, t.ClosedAt)
		if err != nil {
			return fmt.Errorf("failed to save trade %s: %w", t.ID, err)
		}
		return nil
	})
}

func (p *Postgres) GetTrades(ctx context.Context, strategyID string, start, end time.Time) ([]Trade, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, strategy_id, asset, side, entry_price, close_price, amount, pnl, reason, opened_at, closed_at
		FROM trades WHERE strategy_id=$1 AND closed_at >= $2 AND closed_at <= $3 ORDER BY closed_at ASC`,
		strategyID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var t Trade
		var side string
		if err := rows.Scan(&t.ID, &t.StrategyID, &t.Asset, &side, &t.EntryPrice, &t.ClosePrice,
			&t.Amount, &t.PnL, &t.Reason, &t.OpenedAt, &t.ClosedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Side = position.Side(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
