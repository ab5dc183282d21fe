// Package ids defines the opaque identifier types shared across the core:
// owner tokens, outbox/inbox identifiers, join identifiers, and the
// instance/database identifiers used to tag ownership and origin.
//
// Each type wraps a value but is not interchangeable with the others -
// there is deliberately no shared underlying type alias, so a compile error
// results from passing a JoinID where an OwnerToken is expected.
package ids

import (
	"fmt"

	"github.com/google/uuid"
)

// OwnerToken authorises all mutations of rows claimed under it until lease
// expiry. It is an unforgeable random identifier, never signed or verified
// against a secret - possession is the entire authorisation model.
type OwnerToken struct{ v uuid.UUID }

// NewOwnerToken mints a fresh random owner token.
func NewOwnerToken() OwnerToken { return OwnerToken{uuid.New()} }

func (o OwnerToken) String() string { return o.v.String() }
func (o OwnerToken) IsZero() bool   { return o.v == uuid.Nil }
func (o OwnerToken) Equal(other OwnerToken) bool { return o.v == other.v }

// ParseOwnerToken parses a canonical UUID string into an OwnerToken.
func ParseOwnerToken(s string) (OwnerToken, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return OwnerToken{}, fmt.Errorf("ids: invalid owner token %q: %w", s, err)
	}
	return OwnerToken{u}, nil
}

// OutboxMessageID is the business identifier for an outbox message -
// distinct from the row's primary key (OutboxWorkItemID). Join membership
// is keyed on this identifier, not on the work-item id, so that the same
// business message can be resolved to a join member regardless of how many
// times the underlying row has been retried.
type OutboxMessageID struct{ v uuid.UUID }

func NewOutboxMessageID() OutboxMessageID   { return OutboxMessageID{uuid.New()} }
func (m OutboxMessageID) String() string    { return m.v.String() }
func (m OutboxMessageID) IsZero() bool      { return m.v == uuid.Nil }
func (m OutboxMessageID) Equal(o OutboxMessageID) bool { return m.v == o.v }

func ParseOutboxMessageID(s string) (OutboxMessageID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return OutboxMessageID{}, fmt.Errorf("ids: invalid outbox message id %q: %w", s, err)
	}
	return OutboxMessageID{u}, nil
}

// OutboxWorkItemID is the outbox row's primary key - the identifier Claim,
// Ack, Abandon and Fail operate on.
type OutboxWorkItemID struct{ v uuid.UUID }

func NewOutboxWorkItemID() OutboxWorkItemID { return OutboxWorkItemID{uuid.New()} }
func (w OutboxWorkItemID) String() string   { return w.v.String() }
func (w OutboxWorkItemID) IsZero() bool     { return w.v == uuid.Nil }
func (w OutboxWorkItemID) Equal(o OutboxWorkItemID) bool { return w.v == o.v }

func ParseOutboxWorkItemID(s string) (OutboxWorkItemID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return OutboxWorkItemID{}, fmt.Errorf("ids: invalid outbox work item id %q: %w", s, err)
	}
	return OutboxWorkItemID{u}, nil
}

// InboxMessageID is source-provided, not generated here - it is an opaque
// string up to 128 bytes, per the wire contract the ingester was handed.
type InboxMessageID struct{ v string }

const maxInboxMessageIDBytes = 128

func NewInboxMessageID(s string) (InboxMessageID, error) {
	if s == "" {
		return InboxMessageID{}, fmt.Errorf("ids: inbox message id must not be empty")
	}
	if len(s) > maxInboxMessageIDBytes {
		return InboxMessageID{}, fmt.Errorf("ids: inbox message id exceeds %d bytes", maxInboxMessageIDBytes)
	}
	return InboxMessageID{s}, nil
}

func (m InboxMessageID) String() string { return m.v }
func (m InboxMessageID) IsZero() bool   { return m.v == "" }

// JoinID identifies an outbox join barrier.
type JoinID struct{ v uuid.UUID }

func NewJoinID() JoinID { return JoinID{uuid.New()} }
func (j JoinID) String() string { return j.v.String() }
func (j JoinID) IsZero() bool   { return j.v == uuid.Nil }
func (j JoinID) Equal(o JoinID) bool { return j.v == o.v }

func ParseJoinID(s string) (JoinID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return JoinID{}, fmt.Errorf("ids: invalid join id %q: %w", s, err)
	}
	return JoinID{u}, nil
}

// InstanceID identifies a running process for diagnostic attribution (e.g.
// ProcessedBy = "FAILED:<instance>"). Not an authorisation primitive.
type InstanceID struct{ v string }

func NewInstanceID(s string) InstanceID { return InstanceID{s} }
func (i InstanceID) String() string     { return i.v }
func (i InstanceID) IsZero() bool       { return i.v == "" }

// DatabaseID identifies one per-tenant store for the multi-store
// dispatcher's store-provider/selection-strategy pair.
type DatabaseID struct{ v string }

func NewDatabaseID(s string) DatabaseID { return DatabaseID{s} }
func (d DatabaseID) String() string     { return d.v }
func (d DatabaseID) IsZero() bool       { return d.v == "" }
