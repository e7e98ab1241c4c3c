// Package risk
package risk

import (
	"fmt"
	"log"
	"strings"

	"github.com/quantflow/agent-trader/internal/position"
	"github.com/quantflow/agent-trader/internal/strategy"
)

// Limits are the gate's tunables. They default to the values the engine has
// always shipped with but stay injectable so tests and deployments can
// substitute their own.
type Limits struct {
	BaseLimit         float64            `yaml:"base_limit"`
	RiskScoreLimit    float64            `yaml:"risk_score_limit"`
	MaxOpenPositions  int                `yaml:"max_open_positions"`
	DefaultVolatility float64            `yaml:"default_volatility"`
	VolatilityTable   map[string]float64 `yaml:"volatility_table"`
}

// DefaultLimits returns the stock limit set: $10k base exposure, 0.8 risk-score
// cap, 10 concurrent positions, and a volatility table covering stablecoins
// and the majors. Unrecognized assets fall back to 0.30.
func DefaultLimits() Limits {
	return Limits{
		BaseLimit:         10000.0,
		RiskScoreLimit:    0.8,
		MaxOpenPositions:  10,
		DefaultVolatility: 0.30,
		VolatilityTable: map[string]float64{
			"USDT": 0.01,
			"USDC": 0.01,
			"DAI":  0.01,
			"BUSD": 0.01,
			"BTC":  0.15,
			"ETH":  0.20,
			"BNB":  0.22,
			"SOL":  0.25,
		},
	}
}

// quote suffixes stripped before the volatility lookup, so "BTCUSDT" resolves
// to BTC rather than to the USDT stablecoin entry.
var quoteSuffixes = []string{"USDT", "USDC", "BUSD", "TMN", "IRT", "USD"}

// Manager gates proposed trades against exposure limits and tracks the
// balance high-water mark for drawdown-aware sizing. Each strategy owns its
// own Manager; there is no cross-strategy sharing.
type Manager struct {
	limits          Limits
	maxDrawdownPct  float64 // fraction, e.g. 0.1 for 10%
	peakBalance     float64
	currentBalance  float64
	currentDrawdown float64
}

// NewManager creates a risk manager. maxDrawdownPct is a fraction (0.1 = 10%).
func NewManager(maxDrawdownPct float64, limits Limits) *Manager {
	if limits.BaseLimit == 0 {
		limits = DefaultLimits()
	}
	return &Manager{
		limits:         limits,
		maxDrawdownPct: maxDrawdownPct,
	}
}

// Assess decides whether a signal may be executed against the current open
// positions. It returns the rejection reason alongside the verdict; an
// approved signal carries an empty reason. HOLD always passes.
func (m *Manager) Assess(sig strategy.Signal, open map[string]position.Position) (bool, string) {
	if sig.Action == strategy.Hold {
		return true, ""
	}

	if limit := m.PositionLimit(sig.Asset); sig.Amount > limit {
		reason := fmt.Sprintf("position size %.2f exceeds limit %.2f for %s", sig.Amount, limit, sig.Asset)
		log.Printf("Risk | Rejected: %s", reason)
		return false, reason
	}

	if m.currentDrawdown > m.maxDrawdownPct {
		reason := fmt.Sprintf("current drawdown %.2f%% exceeds limit %.2f%%", m.currentDrawdown*100, m.maxDrawdownPct*100)
		log.Printf("Risk | Rejected: %s", reason)
		return false, reason
	}

	if sig.RiskScore > m.limits.RiskScoreLimit {
		reason := fmt.Sprintf("risk score %.2f above limit %.2f", sig.RiskScore, m.limits.RiskScoreLimit)
		log.Printf("Risk | Rejected: %s", reason)
		return false, reason
	}

	existing, hasPosition := open[sig.Asset]
	if hasPosition {
		side, _ := position.SideFor(sig.Action)
		if existing.Side == side {
			reason := fmt.Sprintf("already %s %s, doubling exposure not allowed", existing.Side, sig.Asset)
			log.Printf("Risk | Rejected: %s", reason)
			return false, reason
		}
		// Opposite direction against an existing position is a closing or
		// flipping trade and passes the remaining checks.
	}

	if !hasPosition && len(open) >= m.limits.MaxOpenPositions {
		reason := fmt.Sprintf("open positions %d at cap %d", len(open), m.limits.MaxOpenPositions)
		log.Printf("Risk | Rejected: %s", reason)
		return false, reason
	}

	return true, ""
}

// PositionLimit computes the maximum allowed exposure for an asset:
// base * volatility adjustment * drawdown adjustment. The more volatile the
// asset and the deeper the drawdown, the smaller the next allowed trade.
func (m *Manager) PositionLimit(asset string) float64 {
	vol := m.assetVolatility(asset)

	volAdj := 1 - vol*2
	if volAdj < 0.1 {
		volAdj = 0.1
	}

	ddAdj := 1 - m.currentDrawdown*2
	if ddAdj < 0.5 {
		ddAdj = 0.5
	}

	return m.limits.BaseLimit * volAdj * ddAdj
}

// assetVolatility looks up the asset's volatility class. Quote suffixes are
// stripped first so pair symbols resolve to their base asset; the longest
// matching table key wins.
func (m *Manager) assetVolatility(asset string) float64 {
	base := strings.ToUpper(asset)
	for _, suffix := range quoteSuffixes {
		if trimmed := strings.TrimSuffix(base, suffix); trimmed != "" && trimmed != base {
			base = trimmed
			break
		}
	}

	bestLen := 0
	vol := m.limits.DefaultVolatility
	for key, v := range m.limits.VolatilityTable {
		if strings.Contains(base, key) && len(key) > bestLen {
			bestLen = len(key)
			vol = v
		}
	}
	return vol
}

// UpdateBalance records a balance report, raising the peak high-water mark
// when exceeded and recomputing the drawdown.
func (m *Manager) UpdateBalance(newBalance float64) {
	m.currentBalance = newBalance
	if newBalance > m.peakBalance {
		m.peakBalance = newBalance
	}

	if m.peakBalance > 0 {
		m.currentDrawdown = (m.peakBalance - newBalance) / m.peakBalance
	} else {
		m.currentDrawdown = 0
	}
}

// Drawdown returns the current fractional decline from the peak balance.
func (m *Manager) Drawdown() float64 {
	return m.currentDrawdown
}

// Balance returns the last reported balance.
func (m *Manager) Balance() float64 {
	return m.currentBalance
}
