package dispatch

import (
	"github.com/relaycore/relay/internal/ids"
	"github.com/relaycore/relay/internal/inbox"
	"github.com/relaycore/relay/internal/outbox"
)

// Source is a named, claimable store the Runner polls. Construct one per
// outbox.Store, and one per (inbox.Store, source) pair, and hand the list
// to NewRunner.
type Source struct {
	store workStore
}

// NewOutboxSource wraps an outbox.Store as a dispatch Source. processedBy
// tags rows this runner instance moves to Failed, for operational
// traceability across instances (spec's ProcessedBy column).
func NewOutboxSource(name string, store outbox.Store, processedBy ids.InstanceID) Source {
	return Source{store: newOutboxAdapter(name, store, processedBy)}
}

// NewInboxSource wraps an inbox.Store as a dispatch Source, passing source
// to every Claim. Claims are not filtered by source: the Source takes Seen
// rows from every source in the store.
func NewInboxSource(name string, store inbox.Store, source string) Source {
	return Source{store: newInboxAdapter(name, store, source)}
}
