// Package workqueue defines the generic claim/ack/abandon/fail/reap
// contract (C2) that the Outbox and Inbox stores specialise. The protocol
// itself is a set of atomic database operations; this package only carries
// the shared validation rules and sentinel errors, since the claimed row
// shape differs between the Outbox and Inbox (see packages outbox, inbox).
package workqueue

import (
	"errors"
	"fmt"
	"regexp"
)

// Bounds on Claim's inputs, per the protocol contract.
const (
	MinLeaseSeconds = 1
	MaxLeaseSeconds = 3600
	MinBatchSize    = 1
	MaxBatchSize    = 10_000

	// DefaultReapBatch bounds the number of InProgress/Processing rows
	// opportunistically reclaimed inside a single Claim call.
	DefaultReapBatch = 10
)

// ErrInvalidArgument reports a Name/TTL/limit/owner outside its allowed
// domain, or an empty required identifier. It is surfaced synchronously -
// the only error kind in this package that indicates the caller made a
// mistake, rather than a condition the caller must poll for.
var ErrInvalidArgument = errors.New("workqueue: invalid argument")

// ErrNotFound reports an operation targeting a row that does not exist.
var ErrNotFound = errors.New("workqueue: not found")

// nameBytesPattern matches the semaphore-name rules (also reused by the
// lease package, since the two concepts share the same naming domain).
var nameBytesPattern = regexp.MustCompile(`^[A-Za-z0-9._:/\-]+$`)

// ValidateLeaseSeconds checks leaseSeconds against [MinLeaseSeconds, MaxLeaseSeconds].
func ValidateLeaseSeconds(leaseSeconds int) error {
	if leaseSeconds < MinLeaseSeconds || leaseSeconds > MaxLeaseSeconds {
		return fmt.Errorf("%w: leaseSeconds %d outside [%d, %d]", ErrInvalidArgument, leaseSeconds, MinLeaseSeconds, MaxLeaseSeconds)
	}
	return nil
}

// ValidateBatchSize checks batchSize against [MinBatchSize, MaxBatchSize].
func ValidateBatchSize(batchSize int) error {
	if batchSize < MinBatchSize || batchSize > MaxBatchSize {
		return fmt.Errorf("%w: batchSize %d outside [%d, %d]", ErrInvalidArgument, batchSize, MinBatchSize, MaxBatchSize)
	}
	return nil
}

// ValidateName checks a resource name (semaphore or lease) against the
// shared naming rule: non-empty, <=200 bytes, restricted charset.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidArgument)
	}
	if len(name) > 200 {
		return fmt.Errorf("%w: name exceeds 200 bytes", ErrInvalidArgument)
	}
	if !nameBytesPattern.MatchString(name) {
		return fmt.Errorf("%w: name %q contains characters outside [A-Za-z0-9._:/-]", ErrInvalidArgument, name)
	}
	return nil
}
