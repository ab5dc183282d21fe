// Package outbox implements the transactional-publish store (C3): durable
// enqueue plus the work-queue protocol (C2) specialised to outbound
// messages, and the join advancement that rides along with Ack/Fail.
package outbox

import (
	"time"

	"github.com/relaycore/relay/internal/ids"
)

// Status is the outbox row's work-queue state.
type Status int

const (
	StatusReady      Status = 0
	StatusInProgress Status = 1
	StatusDone       Status = 2
	StatusFailed     Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "Ready"
	case StatusInProgress:
		return "InProgress"
	case StatusDone:
		return "Done"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

func (s Status) IsTerminal() bool { return s == StatusDone || s == StatusFailed }

// Row mirrors the authoritative outbox column set from the external
// interfaces contract.
type Row struct {
	ID            ids.OutboxWorkItemID
	MessageID     ids.OutboxMessageID
	Topic         string
	Payload       string
	CorrelationID *string
	CreatedAt     time.Time
	DueTimeUTC    *time.Time
	IsProcessed   bool
	ProcessedAt   *time.Time
	ProcessedBy   *string
	RetryCount    int
	LastError     *string
	NextAttemptAt *time.Time
	Status        Status
	LockedUntil   *time.Time
	OwnerToken    *ids.OwnerToken
}
