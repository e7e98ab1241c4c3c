package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/quantflow/agent-trader/internal/db"
	"github.com/quantflow/agent-trader/internal/exchange"
	"github.com/quantflow/agent-trader/internal/market"
	"github.com/quantflow/agent-trader/internal/notifier"
	"github.com/quantflow/agent-trader/internal/perf"
	"github.com/quantflow/agent-trader/internal/risk"
	"github.com/quantflow/agent-trader/internal/strategy"
)

var (
	ErrDuplicateStrategy = errors.New("strategy already registered")
	ErrStrategyNotFound  = errors.New("strategy not found")
)

// DefaultErrorBackoff is the pause after a failed tick before the loop
// retries.
const DefaultErrorBackoff = 60 * time.Second

// handle pairs a running strategy with its cancellation and completion
// signal.
type handle struct {
	runner *runner
	cancel context.CancelFunc
	done   chan struct{}
}

// Executor owns the registry of running strategies. Each added strategy runs
// in its own goroutine; the executor serializes registry mutations and lets
// queries run against live metrics.
type Executor struct {
	source   market.DataSource
	storage  db.Storage
	notifier notifier.Notifier
	balances exchange.BalanceFetcher
	limits   risk.Limits
	backoff  time.Duration

	mu      sync.Mutex
	handles map[string]*handle
}

// Option configures an Executor.
type Option func(*Executor)

// WithBalances wires a live balance source into every strategy loop.
func WithBalances(b exchange.BalanceFetcher) Option {
	return func(e *Executor) { e.balances = b }
}

// WithRiskLimits overrides the default position-sizing limits.
func WithRiskLimits(l risk.Limits) Option {
	return func(e *Executor) { e.limits = l }
}

// WithErrorBackoff overrides the pause after a failed tick.
func WithErrorBackoff(d time.Duration) Option {
	return func(e *Executor) { e.backoff = d }
}

func NewExecutor(source market.DataSource, storage db.Storage, n notifier.Notifier, opts ...Option) *Executor {
	e := &Executor{
		source:   source,
		storage:  storage,
		notifier: n,
		limits:   risk.DefaultLimits(),
		backoff:  DefaultErrorBackoff,
		handles:  make(map[string]*handle),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Add registers the strategy under the given id and starts its control loop.
func (e *Executor) Add(ctx context.Context, strategyID string, strat strategy.Strategy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.handles[strategyID]; exists {
		return ErrDuplicateStrategy
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &handle{
		runner: newRunner(strategyID, strat, e.source, e.storage, e.notifier, e.balances, e.limits, e.backoff),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	e.handles[strategyID] = h

	go func() {
		defer close(h.done)
		h.runner.run(runCtx)
	}()

	log.Printf("Executor | Added strategy %s (%s)", strategyID, strat.Name())
	return nil
}

// Remove stops the strategy's loop and deregisters it. It returns once the
// loop has fully exited, so in-flight work past its last suspension point
// finishes first.
func (e *Executor) Remove(strategyID string) error {
	e.mu.Lock()
	h, ok := e.handles[strategyID]
	if ok {
		delete(e.handles, strategyID)
	}
	e.mu.Unlock()

	if !ok {
		return ErrStrategyNotFound
	}

	h.cancel()
	<-h.done

	log.Printf("Executor | Removed strategy %s", strategyID)
	return nil
}

// Performance returns the metrics snapshot of one running strategy.
func (e *Executor) Performance(strategyID string) (perf.Snapshot, error) {
	e.mu.Lock()
	h, ok := e.handles[strategyID]
	e.mu.Unlock()

	if !ok {
		return perf.Snapshot{}, ErrStrategyNotFound
	}
	return h.runner.metrics.Snapshot(), nil
}

// AllPerformance returns a metrics snapshot per running strategy.
func (e *Executor) AllPerformance() map[string]perf.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]perf.Snapshot, len(e.handles))
	for strategyID, h := range e.handles {
		out[strategyID] = h.runner.metrics.Snapshot()
	}
	return out
}

// IDs returns the ids of all running strategies.
func (e *Executor) IDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.handles))
	for strategyID := range e.handles {
		ids = append(ids, strategyID)
	}
	return ids
}

// Shutdown stops every running strategy and waits for their loops to exit.
func (e *Executor) Shutdown() {
	for _, strategyID := range e.IDs() {
		if err := e.Remove(strategyID); err != nil {
			log.Printf("Executor | Failed to remove strategy %s: %v", strategyID, err)
		}
	}
}
