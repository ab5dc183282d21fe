// Package join implements the Outbox Join barrier (C8): a fan-in that
// counts per-step completions and failures of a fixed set of attached
// outbox messages, and a join.wait topic handler that completes once every
// attached message has reported.
package join

import (
	"time"

	"github.com/relaycore/relay/internal/ids"
)

// Status is the join's overall lifecycle state.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
)

// MemberStatus is a single attached message's reported outcome.
type MemberStatus string

const (
	MemberPending   MemberStatus = "Pending"
	MemberCompleted MemberStatus = "Completed"
	MemberFailed    MemberStatus = "Failed"
)

// Join is the fan-in barrier row.
type Join struct {
	ID             ids.JoinID
	TenantID       int64
	ExpectedSteps  int
	CompletedSteps int
	FailedSteps    int
	Status         Status
	Metadata       *string
	CreatedUTC     time.Time
	LastUpdatedUTC time.Time
}

// Ready reports whether every expected step has reported a terminal
// outcome, per spec 4.7's join.wait readiness check.
func (j Join) Ready() bool { return j.CompletedSteps+j.FailedSteps >= j.ExpectedSteps }
