package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/relaycore/relay/internal/ids"
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	LeaseSeconds int
	BatchSize    int

	// PollRate throttles how often RunOnce is allowed to claim when the
	// caller drives it in a tight loop; zero disables throttling.
	PollRate rate.Limit

	// CircuitBreaker settings, applied per topic. A tripped breaker rejects
	// the item with a HandlerFailure-class error without invoking the
	// handler at all, so RunOnce abandons it for retry, matching the
	// mediator's per-endpoint breaker.
	CircuitBreakerEnabled     bool
	CircuitBreakerRequests    uint32
	CircuitBreakerInterval    time.Duration
	CircuitBreakerRatio       float64
	CircuitBreakerTimeout     time.Duration
	CircuitBreakerMinRequests uint32

	Logger *slog.Logger
}

// DefaultRunnerConfig returns sensible defaults: a 30s lease, batches of
// 100, no poll throttling, and a circuit breaker that trips at 50% failure
// ratio once at least 10 requests have been observed in a 60s window.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		LeaseSeconds:              30,
		BatchSize:                 100,
		CircuitBreakerEnabled:     true,
		CircuitBreakerRequests:    10,
		CircuitBreakerInterval:    60 * time.Second,
		CircuitBreakerRatio:       0.5,
		CircuitBreakerTimeout:     5 * time.Second,
		CircuitBreakerMinRequests: 10,
	}
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.LeaseSeconds <= 0 {
		c.LeaseSeconds = 30
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// sourceStats is the per-source cumulative counters exposed via Stats.
type sourceStats struct {
	Claimed  int64
	Acked    int64
	Abandons int64
	Fails    int64
}

// Runner drives the claim/handle/ack loop (C5) against a StoreProvider,
// SelectionStrategy and HandlerResolver.
type Runner struct {
	provider StoreProvider
	strategy SelectionStrategy
	resolver HandlerResolver
	cfg      RunnerConfig

	limiter *rate.Limiter

	mu        sync.Mutex
	lastEmpty bool
	breakers  map[string]*gobreaker.CircuitBreaker
	stats     map[string]*sourceStats
}

// NewRunner constructs a Runner. strategy is typically NewRoundRobin() or
// NewDrainFirst().
func NewRunner(provider StoreProvider, strategy SelectionStrategy, resolver HandlerResolver, cfg RunnerConfig) *Runner {
	cfg = cfg.withDefaults()
	var limiter *rate.Limiter
	if cfg.PollRate > 0 {
		limiter = rate.NewLimiter(cfg.PollRate, 1)
	}
	return &Runner{
		provider: provider,
		strategy: strategy,
		resolver: resolver,
		cfg:      cfg,
		limiter:  limiter,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		stats:    make(map[string]*sourceStats),
	}
}

// RunOnce performs one claim/handle/ack cycle: generate an owner token,
// ask the strategy for the next store, claim a batch, resolve a handler
// per item, and batch the resulting ack/abandon/fail calls. It returns the
// number of items claimed.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return 0, err
		}
	}

	stores := r.provider.Stores()
	r.mu.Lock()
	idx := r.strategy.Next(stores, r.lastEmpty)
	r.mu.Unlock()
	if idx < 0 || idx >= len(stores) {
		return 0, nil
	}
	store := stores[idx].store

	owner := ids.NewOwnerToken()
	items, err := store.claim(ctx, owner, r.cfg.LeaseSeconds, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("dispatch: claim from %s: %w", store.name(), err)
	}

	r.mu.Lock()
	r.lastEmpty = len(items) == 0
	st := r.statsFor(store.name())
	st.Claimed += int64(len(items))
	r.mu.Unlock()

	if len(items) == 0 {
		return 0, nil
	}

	var (
		ackKeys     []string
		abandonKeys []string
		abandonErrs []string
		failKeys    []string
	)

	for _, it := range items {
		handler, ok := r.resolver.Resolve(it.topic)
		if !ok {
			if store.isInbox() {
				failKeys = append(failKeys, it.key)
				continue
			}
			abandonKeys = append(abandonKeys, it.key)
			abandonErrs = append(abandonErrs, fmt.Sprintf("no handler registered for topic %q", it.topic))
			continue
		}

		if err := r.invokeWithBreaker(ctx, it.topic, handler, it.payload); err != nil {
			abandonKeys = append(abandonKeys, it.key)
			abandonErrs = append(abandonErrs, err.Error())
			continue
		}
		ackKeys = append(ackKeys, it.key)
	}

	r.mu.Lock()
	st.Acked += int64(len(ackKeys))
	st.Abandons += int64(len(abandonKeys))
	st.Fails += int64(len(failKeys))
	r.mu.Unlock()

	if len(ackKeys) > 0 {
		if err := store.ack(ctx, owner, ackKeys); err != nil {
			return len(items), fmt.Errorf("dispatch: ack on %s: %w", store.name(), err)
		}
	}
	if len(abandonKeys) > 0 {
		// lastError carries only the most recent failure when the batch
		// mixes causes; per-item detail is in the handler's own logging.
		lastError := ""
		if len(abandonErrs) > 0 {
			lastError = abandonErrs[len(abandonErrs)-1]
		}
		if err := store.abandon(ctx, owner, abandonKeys, lastError, nil); err != nil {
			return len(items), fmt.Errorf("dispatch: abandon on %s: %w", store.name(), err)
		}
	}
	if len(failKeys) > 0 {
		if err := store.fail(ctx, owner, failKeys, "no handler registered"); err != nil {
			return len(items), fmt.Errorf("dispatch: fail on %s: %w", store.name(), err)
		}
	}

	return len(items), nil
}

func (r *Runner) invokeWithBreaker(ctx context.Context, topic string, h Handler, payload string) error {
	if !r.cfg.CircuitBreakerEnabled {
		return invokeHandler(ctx, h, payload)
	}
	cb := r.breakerFor(topic)
	_, err := cb.Execute(func() (any, error) {
		return nil, invokeHandler(ctx, h, payload)
	})
	return err
}

func (r *Runner) breakerFor(topic string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[topic]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        topic,
		MaxRequests: r.cfg.CircuitBreakerRequests,
		Interval:    r.cfg.CircuitBreakerInterval,
		Timeout:     r.cfg.CircuitBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < r.cfg.CircuitBreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= r.cfg.CircuitBreakerRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.cfg.Logger.Warn("dispatch: circuit breaker state change", "topic", name, "from", from, "to", to)
		},
	})
	r.breakers[topic] = cb
	return cb
}

func (r *Runner) statsFor(name string) *sourceStats {
	st, ok := r.stats[name]
	if !ok {
		st = &sourceStats{}
		r.stats[name] = st
	}
	return st
}

// SourceStats is the public snapshot returned by Stats.
type SourceStats struct {
	Claimed  int64
	Acked    int64
	Abandons int64
	Fails    int64
}

// Stats returns a per-source snapshot of cumulative claim/ack/abandon/fail
// counts, for operational dashboards - a supplemented feature beyond the
// bare RunOnce contract.
func (r *Runner) Stats() map[string]SourceStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]SourceStats, len(r.stats))
	for name, st := range r.stats {
		out[name] = SourceStats{Claimed: st.Claimed, Acked: st.Acked, Abandons: st.Abandons, Fails: st.Fails}
	}
	return out
}

// RecoverOnStartup reaps expired leases on every configured store before
// normal polling begins, so rows left InProgress by a crashed prior
// instance become claimable again immediately rather than waiting out
// their lease. Returns the total rows reaped.
func (r *Runner) RecoverOnStartup(ctx context.Context, maxRowsPerStore int) (int, error) {
	total := 0
	for _, src := range r.provider.Stores() {
		n, err := src.store.reapExpired(ctx, maxRowsPerStore)
		if err != nil {
			return total, fmt.Errorf("dispatch: recover %s: %w", src.store.name(), err)
		}
		total += n
		if n > 0 {
			r.cfg.Logger.Info("dispatch: reaped expired leases on startup", "store", src.store.name(), "count", n)
		}
	}
	return total, nil
}
