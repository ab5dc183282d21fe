// Package lease implements the Lease Runner (C7): a named exclusive hold
// with automatic monotonic self-renewal and loss signalling, distinct from
// the per-name bounded semaphore leases in package semaphore - the two
// concepts share no rows or tokens.
package lease

import (
	"context"
	"sync"
	"time"

	"github.com/relaycore/relay/internal/clock"
	"github.com/relaycore/relay/internal/workqueue"
)

// AcquireResult is returned by Store.Acquire.
type AcquireResult struct {
	Acquired  bool
	Epoch     int64
	ExpiresAt time.Time
}

// RenewResult is returned by Store.Renew.
type RenewResult struct {
	Renewed   bool
	ExpiresAt time.Time
}

// Store is the narrow database contract the Runner drives. A Postgres
// implementation lives alongside it; Runner itself is storage-agnostic so
// its renewal-scheduling logic (the hard part per spec 4.6) can be unit
// tested against a fake Store and a fake Clock without a database.
type Store interface {
	Acquire(ctx context.Context, name, owner string, duration time.Duration) (AcquireResult, error)
	Renew(ctx context.Context, name string, epoch int64, duration time.Duration) (RenewResult, error)
	Release(ctx context.Context, name string, epoch int64) (bool, error)
}

func validateName(name string) error { return workqueue.ValidateName(name) }

// Runner wraps an acquired lease with a self-renewing goroutine. Renewal
// scheduling is driven entirely by clock.Clock - never time.Now() directly
// - so that a forward wall-clock jump or a process pause (spec scenario S8)
// cannot schedule a renewal earlier than the recorded deadline, and a
// spurious wakeup before the deadline is a no-op rather than a reschedule.
type Runner struct {
	store    Store
	clk      clock.Clock
	name     string
	owner    string
	duration time.Duration
	fraction float64
	epoch    int64

	mu       sync.Mutex
	deadline clock.Instant
	isLost   bool
	disposed bool
	onLost   func()

	lostCh chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Acquire attempts to acquire name for owner. renewFraction controls how
// far into duration the runner schedules its first renewal (0.5 renews at
// the midpoint, matching the spec's default). Returns nil if the lease is
// held by another owner whose expiry has not passed.
func Acquire(ctx context.Context, store Store, clk clock.Clock, name, owner string, duration time.Duration, renewFraction float64) (*Runner, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if renewFraction <= 0 || renewFraction >= 1 {
		renewFraction = 0.5
	}

	result, err := store.Acquire(ctx, name, owner, duration)
	if err != nil {
		return nil, err
	}
	if !result.Acquired {
		return nil, nil
	}

	r := &Runner{
		store:    store,
		clk:      clk,
		name:     name,
		owner:    owner,
		duration: duration,
		fraction: renewFraction,
		epoch:    result.Epoch,
		lostCh:   make(chan struct{}),
		stopCh:   make(chan struct{}),
	}
	r.deadline = clk.Now().Add(time.Duration(float64(duration) * renewFraction))

	r.wg.Add(1)
	go r.renewLoop()

	return r, nil
}

// OnLost registers a callback fired exactly once when the lease is lost.
func (r *Runner) OnLost(fn func()) {
	r.mu.Lock()
	r.onLost = fn
	r.mu.Unlock()
}

// IsLost reports whether the runner has observed loss of the lease.
func (r *Runner) IsLost() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isLost
}

// ThrowIfLost returns ErrLost once IsLost is true, for callers that want to
// bail out of work they're holding the lease for.
func (r *Runner) ThrowIfLost() error {
	if r.IsLost() {
		return ErrLost
	}
	return nil
}

// Lost returns a channel that closes exactly once, when the lease is lost.
// Work holding the lease should select on this alongside its own context.
func (r *Runner) Lost() <-chan struct{} { return r.lostCh }

// TryRenewNow performs an out-of-band renewal immediately, outside the
// scheduled cadence, and returns whether it succeeded. After Dispose it
// always returns false without contacting the store.
func (r *Runner) TryRenewNow(ctx context.Context) bool {
	r.mu.Lock()
	if r.disposed || r.isLost {
		r.mu.Unlock()
		return false
	}
	epoch := r.epoch
	r.mu.Unlock()

	result, err := r.store.Renew(ctx, r.name, epoch, r.duration)
	if err != nil || !result.Renewed {
		r.markLost()
		return false
	}

	r.mu.Lock()
	r.deadline = r.clk.Now().Add(time.Duration(float64(r.duration) * r.fraction))
	r.mu.Unlock()
	return true
}

// Dispose stops the renewal loop and releases the lease. After Dispose,
// TryRenewNow returns false and no further renewals are scheduled.
func (r *Runner) Dispose(ctx context.Context) {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	epoch := r.epoch
	r.mu.Unlock()

	close(r.stopCh)
	r.wg.Wait()

	_, _ = r.store.Release(ctx, r.name, epoch)
}

func (r *Runner) markLost() {
	r.mu.Lock()
	if r.isLost {
		r.mu.Unlock()
		return
	}
	r.isLost = true
	fn := r.onLost
	r.mu.Unlock()

	close(r.lostCh)
	if fn != nil {
		fn()
	}
}

// renewLoop polls the monotonic clock against the recorded deadline. A
// real Clock advances via wall time; a Fake clock only advances when a
// test calls Advance, which is what lets scenario S8 be expressed without
// sleeping - the loop simply never fires until the fake is pushed past the
// deadline.
func (r *Runner) renewLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if !r.renewIfDue(context.Background()) {
				r.mu.Lock()
				stop := r.disposed || r.isLost
				r.mu.Unlock()
				if stop {
					return
				}
			}
		}
	}
}

// renewIfDue renews only if the monotonic clock has reached the scheduled
// deadline; called by the background loop, and directly by tests that
// advance a Fake clock and want to evaluate one tick deterministically
// without depending on wall-clock ticker timing.
func (r *Runner) renewIfDue(ctx context.Context) bool {
	r.mu.Lock()
	due := !r.clk.Now().Before(r.deadline)
	disposed := r.disposed
	lost := r.isLost
	r.mu.Unlock()

	if disposed || lost || !due {
		return false
	}
	return r.TryRenewNow(ctx)
}

// ErrLost is returned by ThrowIfLost once the runner has observed loss of
// its lease.
var ErrLost = leaseLostError{}

type leaseLostError struct{}

func (leaseLostError) Error() string { return "lease: lost" }
