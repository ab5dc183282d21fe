package join

import (
	"context"
	"errors"

	"github.com/relaycore/relay/internal/ids"
	"github.com/relaycore/relay/internal/workqueue"
)

// ErrNotFound reports that the join (or member) does not exist.
var ErrNotFound = workqueue.ErrNotFound

// Store is the Join barrier (C8).
type Store interface {
	CreateJoin(ctx context.Context, tenantID int64, expectedSteps int, metadata *string) (Join, error)
	AttachMessage(ctx context.Context, joinID ids.JoinID, messageID ids.OutboxMessageID) error
	IncrementCompleted(ctx context.Context, joinID ids.JoinID, messageID ids.OutboxMessageID) error
	IncrementFailed(ctx context.Context, joinID ids.JoinID, messageID ids.OutboxMessageID) error
	UpdateStatus(ctx context.Context, joinID ids.JoinID, status Status) error
	GetJoin(ctx context.Context, joinID ids.JoinID) (Join, error)
	GetJoinMessages(ctx context.Context, joinID ids.JoinID) ([]ids.OutboxMessageID, error)

	// JoinsForMessage satisfies outbox.JoinAdvancer's membership lookup,
	// used by Outbox's Ack/Fail to find which joins a given message
	// participates in without either package importing the other's
	// concrete types.
	JoinsForMessage(ctx context.Context, messageID ids.OutboxMessageID) ([]ids.JoinID, error)
}

func validateCreate(expectedSteps int) error {
	if expectedSteps < 1 {
		return errors.New("join: expectedSteps must be >= 1")
	}
	return nil
}
