package inbox

import (
	"context"

	"github.com/relaycore/relay/internal/ids"
	"github.com/relaycore/relay/internal/workqueue"
)

// Store is the Inbox component (C4).
type Store interface {
	// AlreadyProcessed touches or creates the (messageId, source) row and
	// reports whether it was already Done before this call.
	AlreadyProcessed(ctx context.Context, messageID ids.InboxMessageID, source string, hash []byte) (bool, error)

	// Enqueue inserts/merges a row for dispatcher-style consumption -
	// semantically the same upsert as AlreadyProcessed but discarding the
	// already-processed result, for ingesters that only care about
	// recording the message.
	Enqueue(ctx context.Context, topic, source string, messageID ids.InboxMessageID, payload string) error

	MarkProcessing(ctx context.Context, messageID ids.InboxMessageID, source string) error
	MarkProcessed(ctx context.Context, messageID ids.InboxMessageID, source string) error
	MarkDead(ctx context.Context, messageID ids.InboxMessageID, source string) error

	// Peek returns the full current row state for (messageID, source),
	// including Attempts and Status, without claiming or mutating it.
	// workqueue.ErrNotFound if no such row exists.
	Peek(ctx context.Context, messageID ids.InboxMessageID, source string) (Row, error)

	// Claim takes Seen rows (and reclaims expired Processing rows) from
	// every source: the source argument does not filter what is claimed,
	// and each returned ItemID carries its row's own Source.
	Claim(ctx context.Context, owner ids.OwnerToken, source string, leaseSeconds, batchSize int) ([]ItemID, error)

	// LoadForDispatch fetches the topic/payload of claimed rows so the
	// dispatcher can resolve a handler per item.
	LoadForDispatch(ctx context.Context, items []ItemID) ([]Row, error)
	Ack(ctx context.Context, owner ids.OwnerToken, items []ItemID) error
	Abandon(ctx context.Context, owner ids.OwnerToken, items []ItemID, lastError string) error
	Fail(ctx context.Context, owner ids.OwnerToken, items []ItemID) error
	ReapExpired(ctx context.Context, maxRows int) (int, error)
}

func validateClaimInputs(owner ids.OwnerToken, leaseSeconds, batchSize int) error {
	if owner.IsZero() {
		return workqueue.ErrInvalidArgument
	}
	if err := workqueue.ValidateLeaseSeconds(leaseSeconds); err != nil {
		return err
	}
	return workqueue.ValidateBatchSize(batchSize)
}
