// Package retention implements the periodic reap/cleanup loops named in
// the component table's "Cleanup / retention loops" row: bounded-batch
// deletion of aged completed rows and bounded-batch reaping of expired
// leases, each driven by its own ticker and wired as a lifecycle.Service.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/relaycore/relay/internal/lifecycle"
	"github.com/relaycore/relay/internal/semaphore"
)

// Reaper is anything exposing ReapExpired(ctx, maxRows) - satisfied by
// outbox.Store, inbox.Store, and package semaphore's per-name reap (via the
// small SemaphoreReaper adapter, since semaphore's ReapExpired also takes a
// name).
type Reaper interface {
	ReapExpired(ctx context.Context, maxRows int) (int, error)
}

// ReaperLoop returns a lifecycle.Service that calls ReapExpired on every
// tick, bounded to maxRows per call so a large backlog is drained
// incrementally rather than in one long-running transaction.
func ReaperLoop(name string, r Reaper, interval time.Duration, maxRows int) *lifecycle.ServiceFunc {
	stopCh := make(chan struct{})
	return lifecycle.NewServiceFunc(name,
		func(ctx context.Context) error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-stopCh:
					return nil
				case <-ticker.C:
					n, err := r.ReapExpired(ctx, maxRows)
					if err != nil {
						// Cleanup services tolerate a missing cleanup
						// procedure (schema not yet deployed) by logging
						// and continuing, never crashing the process.
						slog.Error("retention: reap failed", "loop", name, "error", err)
						continue
					}
					if n > 0 {
						slog.Info("retention: reaped expired rows", "loop", name, "count", n)
					}
				}
			}
		},
		func(ctx context.Context) error {
			close(stopCh)
			return nil
		},
	)
}

// semaphoreReaper adapts semaphore.Store's per-name ReapExpired to the
// Reaper interface, since a semaphore's expired leases are scoped to one
// named semaphore rather than a whole table.
type semaphoreReaper struct {
	store semaphore.Store
	name  string
}

func (r semaphoreReaper) ReapExpired(ctx context.Context, maxRows int) (int, error) {
	return r.store.ReapExpired(ctx, r.name, maxRows)
}

// SemaphoreReaper returns a Reaper bound to a single named semaphore, for
// use with ReaperLoop.
func SemaphoreReaper(store semaphore.Store, name string) Reaper {
	return semaphoreReaper{store: store, name: name}
}

// Cleaner is the Outbox Cleanup surface - deletion of Done rows older
// than a retention window, bounded to maxRows per call.
type Cleaner interface {
	Cleanup(ctx context.Context, retention time.Duration, maxRows int) (int, error)
}

// CleanupLoop returns a lifecycle.Service that calls Cleanup on every
// tick.
func CleanupLoop(name string, c Cleaner, interval, retention time.Duration, maxRows int) *lifecycle.ServiceFunc {
	stopCh := make(chan struct{})
	return lifecycle.NewServiceFunc(name,
		func(ctx context.Context) error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-stopCh:
					return nil
				case <-ticker.C:
					n, err := c.Cleanup(ctx, retention, maxRows)
					if err != nil {
						slog.Error("retention: cleanup failed", "loop", name, "error", err)
						continue
					}
					if n > 0 {
						slog.Info("retention: cleaned up rows", "loop", name, "count", n)
					}
				}
			}
		},
		func(ctx context.Context) error {
			close(stopCh)
			return nil
		},
	)
}
