package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/relaycore/relay/internal/ids"
	"github.com/relaycore/relay/internal/workqueue"
)

// ErrOwnerMismatch is never returned by Ack/Abandon/Fail - it documents the
// contract (silent no-op) rather than signalling it, matching the source's
// "owner mismatch is silently ignored" error-taxonomy entry.
var ErrOwnerMismatch = errors.New("outbox: owner mismatch (no-op)")

// JoinAdvancer is the capability Ack/Fail use to advance an outbox join's
// counters. It is satisfied by package join's Store; outbox depends on this
// narrow interface rather than importing join's concrete type, keeping the
// two packages from needing to know about each other's internals (the
// join.wait handler, conversely, consumes Store like any other caller -
// see package join and package dispatch).
type JoinAdvancer interface {
	IncrementCompleted(ctx context.Context, joinID ids.JoinID, messageID ids.OutboxMessageID) error
	IncrementFailed(ctx context.Context, joinID ids.JoinID, messageID ids.OutboxMessageID) error
	JoinsForMessage(ctx context.Context, messageID ids.OutboxMessageID) ([]ids.JoinID, error)
}

// EnqueueOptions configures Enqueue beyond the required topic/payload.
type EnqueueOptions struct {
	CorrelationID *string
	DueTimeUTC    *time.Time
}

// Store is the Outbox component (C3): the C2 work-queue protocol
// specialised to outbound messages, plus durable enqueue and cleanup.
type Store interface {
	// Enqueue inserts a Ready row through the store's own connection
	// pool. It takes no caller transaction: the insert commits on its own
	// and does not enlist in any transaction the caller has open.
	Enqueue(ctx context.Context, topic, payload string, opts EnqueueOptions) (ids.OutboxMessageID, ids.OutboxWorkItemID, error)

	// EnqueueSimple is Enqueue with default options - it satisfies package
	// join's OutboxEnqueuer interface so the join.wait handler can publish
	// follow-up messages without join importing this package.
	EnqueueSimple(ctx context.Context, topic, payload string) (ids.OutboxMessageID, ids.OutboxWorkItemID, error)

	// EnqueueJoinWait publishes a join.wait message that the dispatcher's
	// join.wait handler (package join) will pick up once the handler
	// resolver routes it there.
	EnqueueJoinWait(ctx context.Context, joinID ids.JoinID, failIfAnyStepFailed bool, onCompleteTopic, onCompletePayload, onFailTopic, onFailPayload *string) (ids.OutboxMessageID, error)

	Claim(ctx context.Context, owner ids.OwnerToken, leaseSeconds, batchSize int) ([]ids.OutboxWorkItemID, error)

	// LoadForDispatch fetches the topic/payload of claimed rows so the
	// dispatcher can resolve a handler per item - Claim itself only
	// returns identifiers, per the protocol contract (C2).
	LoadForDispatch(ctx context.Context, items []ids.OutboxWorkItemID) ([]Row, error)
	Ack(ctx context.Context, owner ids.OwnerToken, items []ids.OutboxWorkItemID) error
	Abandon(ctx context.Context, owner ids.OwnerToken, items []ids.OutboxWorkItemID, lastError string, delay *time.Duration) error
	Fail(ctx context.Context, owner ids.OwnerToken, items []ids.OutboxWorkItemID, lastError string, processedBy ids.InstanceID) error
	ReapExpired(ctx context.Context, maxRows int) (int, error)

	// Cleanup deletes Done rows older than retention, bounded to maxRows.
	Cleanup(ctx context.Context, retention time.Duration, maxRows int) (int, error)
}

// JoinWaitTopic is the well-known topic the dispatcher's handler resolver
// routes to package join's handler.
const JoinWaitTopic = "join.wait"

// validateClaimInputs is shared by every Store implementation.
func validateClaimInputs(owner ids.OwnerToken, leaseSeconds, batchSize int) error {
	if owner.IsZero() {
		return workqueue.ErrInvalidArgument
	}
	if err := workqueue.ValidateLeaseSeconds(leaseSeconds); err != nil {
		return err
	}
	return workqueue.ValidateBatchSize(batchSize)
}
