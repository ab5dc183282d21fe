// Package inbox implements the dedup-on-ingest store (C4): at-most-once
// ingestion keyed on (MessageId, Source), plus the work-queue protocol (C2)
// specialised to inbound messages with string-valued status.
package inbox

import (
	"time"

	"github.com/relaycore/relay/internal/ids"
)

type Status string

const (
	StatusSeen       Status = "Seen"
	StatusProcessing Status = "Processing"
	StatusDone       Status = "Done"
	StatusDead       Status = "Dead"
)

// Row mirrors the authoritative inbox column set.
type Row struct {
	MessageID    ids.InboxMessageID
	Source       string
	Topic        string
	Payload      string
	Hash         []byte
	FirstSeenUTC time.Time
	LastSeenUTC  time.Time
	ProcessedUTC *time.Time
	Attempts     int
	Status       Status
	OwnerToken   *ids.OwnerToken
	LockedUntil  *time.Time
}

// ItemID identifies an inbox row by its composite primary key, used as the
// work-queue protocol's generic ID type for this store.
type ItemID struct {
	MessageID ids.InboxMessageID
	Source    string
}
