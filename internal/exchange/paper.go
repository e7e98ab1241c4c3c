// Package exchange
package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/quantflow/agent-trader/internal/utils"
	"github.com/quantflow/agent-trader/pkg/id"
)

// PaperSink simulates order execution: every market or limit order fills
// immediately at the requested price. It is the default sink outside live mode.
type PaperSink struct {
	balance float64
}

// NewPaperSink creates a paper execution sink with a starting balance.
func NewPaperSink(startBalance float64) *PaperSink {
	return &PaperSink{balance: startBalance}
}

func (p *PaperSink) Name() string {
	return "paper"
}

func (p *PaperSink) SubmitOrder(ctx context.Context, req OrderRequest) (Order, error) {
	select {
	case <-ctx.Done():
		return Order{}, ctx.Err()
	default:
		if req.Type != "limit" && req.Type != "market" {
			return Order{}, fmt.Errorf("paper sink: order type %q not supported", req.Type)
		}
		if req.Quantity <= 0 {
			return Order{}, fmt.Errorf("paper sink: non-positive quantity %.8f", req.Quantity)
		}

		orderID := fmt.Sprintf("paper_%s", id.New())

		order := Order{
			OrderID:   orderID,
			Status:    "FILLED",
			FilledQty: req.Quantity,
			AvgPrice:  req.Price,
			Timestamp: time.Now().UTC(),
			Asset:     req.Asset,
			Side:      req.Side,
			Type:      req.Type,
			Price:     req.Price,
			Quantity:  req.Quantity,
		}

		utils.GetLogger().Printf("PaperSink | Order filled: OrderID=%s, Asset=%s, Side=%s, Price=%.8f, Quantity=%.8f\n",
			orderID, req.Asset, req.Side, req.Price, req.Quantity)

		return order, nil
	}
}

func (p *PaperSink) FetchBalance(ctx context.Context) (float64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
		return p.balance, nil
	}
}

// SetBalance replaces the simulated account balance.
func (p *PaperSink) SetBalance(balance float64) {
	p.balance = balance
}
