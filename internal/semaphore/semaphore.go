// Package semaphore implements the Distributed Semaphore (C6): a named
// bounded counting semaphore with unforgeable lease tokens and strictly
// monotonic per-name fencing counters.
package semaphore

import (
	"context"
	"errors"
	"time"

	"github.com/relaycore/relay/internal/workqueue"
)

// AcquireResult is the outcome of TryAcquire.
type AcquireResult struct {
	Acquired      bool
	Token         string
	Fencing       int64
	ExpiresAtUTC  time.Time
}

// RenewResult is the outcome of Renew.
type RenewResult struct {
	Renewed      bool
	ExpiresAtUTC time.Time
}

const (
	DefaultMaxLimit      = 10_000
	MinTTLSeconds        = 1
	MaxTTLSeconds        = 3600
	DefaultReapBatch     = 10
)

var ErrInvalidArgument = workqueue.ErrInvalidArgument

// Store is the Distributed Semaphore component (C6).
type Store interface {
	EnsureExists(ctx context.Context, name string, limit int) error
	TryAcquire(ctx context.Context, name string, ttlSeconds int, ownerID string, clientRequestID *string) (AcquireResult, error)
	Renew(ctx context.Context, name, token string, ttlSeconds int) (RenewResult, error)
	Release(ctx context.Context, name, token string) (bool, error)
	UpdateLimit(ctx context.Context, name string, newLimit int, ensureIfMissing bool) error
	ReapExpired(ctx context.Context, name string, maxRows int) (int, error)
}

func validateName(name string) error { return workqueue.ValidateName(name) }

func validateLimit(limit int) error {
	if limit < 1 || limit > DefaultMaxLimit {
		return errors.New("semaphore: limit outside [1, MaxLimit]")
	}
	return nil
}

func validateTTL(ttlSeconds int) error {
	if ttlSeconds < MinTTLSeconds || ttlSeconds > MaxTTLSeconds {
		return errors.New("semaphore: ttlSeconds outside [MinTtlSeconds, MaxTtlSeconds]")
	}
	return nil
}
