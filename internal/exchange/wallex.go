// Package exchange
package exchange

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/quantflow/agent-trader/internal/market"
	"github.com/quantflow/agent-trader/internal/notifier"
	"github.com/quantflow/agent-trader/internal/utils"
	wallex "github.com/wallexchange/wallex-go"
)

// WallexExchange adapts the Wallex client to the engine's data-source and
// execution-sink boundaries.
type WallexExchange struct {
	client   *wallex.Client
	notifier notifier.Notifier
}

func NewWallexExchange(apiKey string, n notifier.Notifier) *WallexExchange {
	return &WallexExchange{
		client:   wallex.New(wallex.ClientOptions{APIKey: apiKey}),
		notifier: n,
	}
}

func (w *WallexExchange) Name() string {
	return "wallex"
}

// NormalizeAsset converts an asset identifier to the venue's symbol form.
func NormalizeAsset(asset string) string {
	return strings.ToUpper(strings.ReplaceAll(asset, "-", ""))
}

// retry wraps a function with retry logic for transient errors, using exponential backoff and error logging.
func retry(attempts int, delay time.Duration, fn func() error) error {
	backoff := delay
	for i := 1; i <= attempts; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		utils.GetLogger().Printf("Exchange | Wallex retry attempt %d/%d failed: %v. Backing off for %v", i, attempts, err, backoff)
		time.Sleep(backoff)
		// Exponential backoff, but cap at 5 minutes
		if backoff < 5*time.Minute {
			backoff *= 2
			if backoff > 5*time.Minute {
				backoff = 5 * time.Minute
			}
		}
	}
	return errors.New("all retry attempts failed")
}

// MarketData builds a snapshot from the latest hourly candles: the close of the
// most recent candle, 24h summed volume, and realized volatility from close-to-close
// returns. Wallex is a spot venue so the funding rate is left unset.
func (w *WallexExchange) MarketData(ctx context.Context, asset string) (market.Data, error) {
	select {
	case <-ctx.Done():
		utils.GetLogger().Printf("Exchange | %s MarketData timeout", w.Name())
		return market.Data{}, ctx.Err()

	default:
		end := time.Now().UTC()
		start := end.Add(-24 * time.Hour)
		symbol := NormalizeAsset(asset)

		var candles []*wallex.Candle
		err := retry(3, 2*time.Second, func() error {
			var err error
			candles, err = w.client.Candles(symbol, "60", start, end)
			if err != nil {
				return fmt.Errorf("fetching candles: %w", err)
			}
			return nil
		})
		if err != nil {
			return market.Data{}, fmt.Errorf("MarketData failed for %s: %w", asset, err)
		}
		if len(candles) == 0 {
			return market.Data{}, fmt.Errorf("no candles returned for %s", asset)
		}

		closes := make([]float64, 0, len(candles))
		var volume float64
		for _, c := range candles {
			close, _ := strconv.ParseFloat(string(c.Close), 64)
			vol, _ := strconv.ParseFloat(string(c.Volume), 64)
			if close <= 0 {
				continue // Skip invalid candles
			}
			closes = append(closes, close)
			volume += vol
		}
		if len(closes) == 0 {
			return market.Data{}, fmt.Errorf("no valid candles for %s", asset)
		}

		data := market.Data{
			Timestamp: candles[len(candles)-1].Timestamp.UTC(),
			Price:     closes[len(closes)-1],
			Volume:    volume,
		}
		if vol, ok := realizedVolatility(closes); ok {
			data.Volatility = &vol
		}
		return data, nil
	}
}

// realizedVolatility computes the standard deviation of close-to-close returns.
func realizedVolatility(closes []float64) (float64, bool) {
	if len(closes) < 3 {
		return 0, false
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	if len(returns) < 2 {
		return 0, false
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance), true
}

func (w *WallexExchange) SubmitOrder(ctx context.Context, req OrderRequest) (Order, error) {
	select {
	case <-ctx.Done():
		utils.GetLogger().Printf("Exchange | %s SubmitOrder timeout", w.Name())
		return Order{}, ctx.Err()

	default:
		price := strconv.FormatFloat(req.Price, 'f', 8, 64)
		qty := strconv.FormatFloat(req.Quantity, 'f', 8, 64)

		params := &wallex.OrderParams{
			Symbol:   NormalizeAsset(req.Asset),
			Type:     strings.ToUpper(req.Type),
			Side:     strings.ToUpper(req.Side),
			Price:    wallex.Number(price),
			Quantity: wallex.Number(qty),
		}
		resp, err := w.client.PlaceOrder(params)
		if err != nil {
			if w.notifier != nil {
				w.notifier.SendWithRetry(fmt.Sprintf("Order submission failed for %s: %v", req.Asset, err))
			}
			return Order{}, err
		}

		return Order{
			OrderID:   resp.ClientOrderID,
			Status:    strings.ToUpper(resp.Status),
			FilledQty: float64Ptr(resp.ExecutedQty),
			AvgPrice:  float64Ptr(resp.ExecutedPrice),
			Timestamp: resp.CreatedAt.UTC(),
			Asset:     req.Asset,
			Side:      req.Side,
			Type:      req.Type,
			Price:     req.Price,
			Quantity:  req.Quantity,
		}, nil
	}
}

// FetchBalance sums non-fiat balances valued in the quote currency plus fiat
// balances, so the risk manager tracks one equity number.
func (w *WallexExchange) FetchBalance(ctx context.Context) (float64, error) {
	select {
	case <-ctx.Done():
		utils.GetLogger().Printf("Exchange | %s FetchBalance timeout", w.Name())
		return 0, ctx.Err()

	default:
		var balances map[string]*wallex.Balance
		err := retry(3, 2*time.Second, func() error {
			var err error
			balances, err = w.client.Balances()
			if err != nil {
				return fmt.Errorf("fetching balances: %w", err)
			}
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("FetchBalance failed: %w", err)
		}

		var total float64
		for _, b := range balances {
			available, _ := strconv.ParseFloat(string(b.Value), 64)
			locked, _ := strconv.ParseFloat(string(b.Locked), 64)
			total += available + locked
		}
		return total, nil
	}
}

// Helper to safely dereference *wallex.Number
func float64Ptr(n *wallex.Number) float64 {
	if n == nil {
		return 0
	}
	out, _ := strconv.ParseFloat(string(*n), 64)
	return out
}
