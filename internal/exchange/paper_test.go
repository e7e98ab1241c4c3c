// Package exchange
package exchange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaperSink_FillsMarketOrders(t *testing.T) {
	p := NewPaperSink(10000.0)

	order, err := p.SubmitOrder(context.Background(), OrderRequest{
		Asset: "BTCUSDT", Side: "buy", Type: "market", Price: 50000.0, Quantity: 0.5,
	})
	require.NoError(t, err)

	assert.True(t, order.Filled())
	assert.InDelta(t, 0.5, order.FilledQty, 1e-9)
	assert.InDelta(t, 50000.0, order.AvgPrice, 1e-9)
	assert.Contains(t, order.OrderID, "paper_")
}

func TestPaperSink_RejectsBadOrders(t *testing.T) {
	p := NewPaperSink(10000.0)

	_, err := p.SubmitOrder(context.Background(), OrderRequest{
		Asset: "BTCUSDT", Side: "sell", Type: "stop-limit", Price: 50000.0, Quantity: 1.0,
	})
	assert.Error(t, err)

	_, err = p.SubmitOrder(context.Background(), OrderRequest{
		Asset: "BTCUSDT", Side: "sell", Type: "market", Price: 50000.0, Quantity: 0,
	})
	assert.Error(t, err)
}

func TestPaperSink_RespectsCancellation(t *testing.T) {
	p := NewPaperSink(10000.0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.SubmitOrder(ctx, OrderRequest{
		Asset: "BTCUSDT", Side: "buy", Type: "market", Price: 50000.0, Quantity: 1.0,
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPaperSink_Balance(t *testing.T) {
	p := NewPaperSink(10000.0)

	balance, err := p.FetchBalance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 10000.0, balance, 1e-9)

	p.SetBalance(12000.0)
	balance, err = p.FetchBalance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 12000.0, balance, 1e-9)
}

func TestNormalizeAsset(t *testing.T) {
	assert.Equal(t, "BTCUSDT", NormalizeAsset("btc-usdt"))
	assert.Equal(t, "ETHUSDT", NormalizeAsset("ETHUSDT"))
}

func TestRealizedVolatility(t *testing.T) {
	// A flat series has zero volatility.
	vol, ok := realizedVolatility([]float64{100, 100, 100, 100})
	require.True(t, ok)
	assert.InDelta(t, 0.0, vol, 1e-9)

	// Alternating moves produce a positive one.
	vol, ok = realizedVolatility([]float64{100, 110, 100, 110, 100})
	require.True(t, ok)
	assert.Greater(t, vol, 0.0)

	_, ok = realizedVolatility([]float64{100, 101})
	assert.False(t, ok)
}
