// Package dispatch implements the Multi-Store Dispatcher (C5): a runner
// that composes one or more C3/C4 stores with a selection strategy and a
// topic-to-handler resolver, and drives the claim/handle/ack loop against
// them. Unlike outbox and join, which avoid importing each other's
// concrete types, dispatch is explicitly allowed to depend on both outbox
// and inbox directly - the source's own control-flow description treats
// C5 as composing C3 or C4, not as a peer that needs decoupling from them.
package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/relaycore/relay/internal/ids"
	"github.com/relaycore/relay/internal/inbox"
	"github.com/relaycore/relay/internal/outbox"
)

// item is a claimed unit of work, normalised across whichever store
// produced it so the runner's loop doesn't need to know which one it's
// talking to.
type item struct {
	key     string
	topic   string
	payload string
}

// workStore is the common claim/ack/abandon/fail shape the runner drives.
// outboxAdapter and inboxAdapter below implement it against outbox.Store
// and inbox.Store respectively, absorbing the differences between the
// two - inbox keys work by (messageId, source) pairs and carries an extra
// source parameter throughout, outbox keys work by a single work-item id.
type workStore interface {
	name() string
	// isInbox reports whether a missing handler for a claimed item is a
	// dead-letter condition (true) or an ordinary abandon-and-retry
	// (false) - the one place the two store kinds need different default
	// handling per the no-handler policy.
	isInbox() bool
	claim(ctx context.Context, owner ids.OwnerToken, leaseSeconds, batchSize int) ([]item, error)
	ack(ctx context.Context, owner ids.OwnerToken, keys []string) error
	abandon(ctx context.Context, owner ids.OwnerToken, keys []string, lastError string, delay *time.Duration) error
	fail(ctx context.Context, owner ids.OwnerToken, keys []string, lastError string) error
	reapExpired(ctx context.Context, maxRows int) (int, error)
}

// outboxAdapter wraps an outbox.Store.
type outboxAdapter struct {
	name_      string
	store      outbox.Store
	processBy  ids.InstanceID
}

func newOutboxAdapter(name string, store outbox.Store, processedBy ids.InstanceID) *outboxAdapter {
	return &outboxAdapter{name_: name, store: store, processBy: processedBy}
}

func (a *outboxAdapter) name() string  { return a.name_ }
func (a *outboxAdapter) isInbox() bool { return false }

func (a *outboxAdapter) claim(ctx context.Context, owner ids.OwnerToken, leaseSeconds, batchSize int) ([]item, error) {
	claimed, err := a.store.Claim(ctx, owner, leaseSeconds, batchSize)
	if err != nil {
		return nil, err
	}
	if len(claimed) == 0 {
		return nil, nil
	}
	rows, err := a.store.LoadForDispatch(ctx, claimed)
	if err != nil {
		return nil, err
	}
	items := make([]item, 0, len(rows))
	for _, row := range rows {
		items = append(items, item{key: row.ID.String(), topic: row.Topic, payload: row.Payload})
	}
	return items, nil
}

func (a *outboxAdapter) ack(ctx context.Context, owner ids.OwnerToken, keys []string) error {
	return a.store.Ack(ctx, owner, parseOutboxKeys(keys))
}

func (a *outboxAdapter) abandon(ctx context.Context, owner ids.OwnerToken, keys []string, lastError string, delay *time.Duration) error {
	return a.store.Abandon(ctx, owner, parseOutboxKeys(keys), lastError, delay)
}

func (a *outboxAdapter) fail(ctx context.Context, owner ids.OwnerToken, keys []string, lastError string) error {
	return a.store.Fail(ctx, owner, parseOutboxKeys(keys), lastError, a.processBy)
}

func (a *outboxAdapter) reapExpired(ctx context.Context, maxRows int) (int, error) {
	return a.store.ReapExpired(ctx, maxRows)
}

func parseOutboxKeys(keys []string) []ids.OutboxWorkItemID {
	out := make([]ids.OutboxWorkItemID, 0, len(keys))
	for _, k := range keys {
		id, err := ids.ParseOutboxWorkItemID(k)
		if err != nil {
			// keys originate from our own claim(), so a parse failure here
			// means the adapter round-tripped something it never produced.
			continue
		}
		out = append(out, id)
	}
	return out
}

// inboxAdapter wraps an inbox.Store together with a source name, which it
// passes to inbox.Store.Claim. Claim does not filter by that source, so an
// adapter claims Seen rows from every source; ack, abandon and fail are
// keyed by each claimed row's own (messageId, source) pair, the inbox's
// composite primary key.
type inboxAdapter struct {
	name_  string
	store  inbox.Store
	source string
}

func newInboxAdapter(name string, store inbox.Store, source string) *inboxAdapter {
	return &inboxAdapter{name_: name, store: store, source: source}
}

func (a *inboxAdapter) name() string  { return a.name_ }
func (a *inboxAdapter) isInbox() bool { return true }

const keySeparator = "\x1f"

func (a *inboxAdapter) claim(ctx context.Context, owner ids.OwnerToken, leaseSeconds, batchSize int) ([]item, error) {
	claimed, err := a.store.Claim(ctx, owner, a.source, leaseSeconds, batchSize)
	if err != nil {
		return nil, err
	}
	if len(claimed) == 0 {
		return nil, nil
	}
	rows, err := a.store.LoadForDispatch(ctx, claimed)
	if err != nil {
		return nil, err
	}
	items := make([]item, 0, len(rows))
	for _, row := range rows {
		items = append(items, item{key: row.Source + keySeparator + row.MessageID.String(), topic: row.Topic, payload: row.Payload})
	}
	return items, nil
}

func (a *inboxAdapter) ack(ctx context.Context, owner ids.OwnerToken, keys []string) error {
	return a.store.Ack(ctx, owner, parseInboxKeys(keys))
}

func (a *inboxAdapter) abandon(ctx context.Context, owner ids.OwnerToken, keys []string, lastError string, _ *time.Duration) error {
	return a.store.Abandon(ctx, owner, parseInboxKeys(keys), lastError)
}

func (a *inboxAdapter) fail(ctx context.Context, owner ids.OwnerToken, keys []string, _ string) error {
	return a.store.Fail(ctx, owner, parseInboxKeys(keys))
}

func (a *inboxAdapter) reapExpired(ctx context.Context, maxRows int) (int, error) {
	return a.store.ReapExpired(ctx, maxRows)
}

func parseInboxKeys(keys []string) []inbox.ItemID {
	out := make([]inbox.ItemID, 0, len(keys))
	for _, k := range keys {
		source, rest, ok := strings.Cut(k, keySeparator)
		if !ok {
			continue
		}
		messageID, err := ids.NewInboxMessageID(rest)
		if err != nil {
			continue
		}
		out = append(out, inbox.ItemID{MessageID: messageID, Source: source})
	}
	return out
}
