package dispatch

import "context"

// Handler processes one claimed item's payload. A non-nil return (or a
// recovered panic) is treated as a catchable HandlerFailure: RunOnce
// abandons the item with the error text as its lastError and does not
// return the error to its own caller.
type Handler func(ctx context.Context, payload string) error

// HandlerResolver maps a topic to its Handler. A nil return (ok=false)
// means no handler is registered for topic.
type HandlerResolver interface {
	Resolve(topic string) (Handler, bool)
}

// TopicRouter is a HandlerResolver backed by a plain map, the common case
// of handlers registered once at startup.
type TopicRouter map[string]Handler

func (r TopicRouter) Resolve(topic string) (Handler, bool) {
	h, ok := r[topic]
	return h, ok
}

// NewTopicRouter builds a TopicRouter, allowing package join's Handler to
// be registered under outbox.JoinWaitTopic alongside application handlers.
func NewTopicRouter() TopicRouter { return make(TopicRouter) }
