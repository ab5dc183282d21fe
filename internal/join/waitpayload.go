package join

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/relaycore/relay/internal/ids"
)

// waitPayload is the join.wait outbox message body. It carries everything
// the handler needs to decide readiness and which follow-up to enqueue -
// the join row itself is looked up fresh on every handler invocation
// rather than trusted from the payload, since counters may have advanced
// since the message was enqueued.
type waitPayload struct {
	JoinID              string  `json:"joinId"`
	FailIfAnyStepFailed bool    `json:"failIfAnyStepFailed"`
	OnCompleteTopic     *string `json:"onCompleteTopic,omitempty"`
	OnCompletePayload   *string `json:"onCompletePayload,omitempty"`
	OnFailTopic         *string `json:"onFailTopic,omitempty"`
	OnFailPayload       *string `json:"onFailPayload,omitempty"`
}

// EncodeWaitPayload serialises the join.wait message body. Called from
// package outbox's EnqueueJoinWait.
func EncodeWaitPayload(joinID ids.JoinID, failIfAnyStepFailed bool, onCompleteTopic, onCompletePayload, onFailTopic, onFailPayload *string) string {
	p := waitPayload{
		JoinID:              joinID.String(),
		FailIfAnyStepFailed: failIfAnyStepFailed,
		OnCompleteTopic:     onCompleteTopic,
		OnCompletePayload:   onCompletePayload,
		OnFailTopic:         onFailTopic,
		OnFailPayload:       onFailPayload,
	}
	b, err := json.Marshal(p)
	if err != nil {
		// waitPayload contains only strings/bools/pointers; marshalling
		// cannot fail for values constructed here.
		panic(fmt.Sprintf("join: encode wait payload: %v", err))
	}
	return string(b)
}

// ErrNotReady is raised by the join.wait handler when the join's counters
// have not yet reached ExpectedSteps. The dispatcher treats it like any
// other HandlerFailure and abandons the item; RunOnce passes no retry
// delay, so no backoff is applied and the item is claimable again on the
// next claim.
var ErrNotReady = errors.New("join: not ready")

// OutboxEnqueuer is the capability the join.wait handler needs from the
// outbox store - a narrow interface so this package never imports package
// outbox, matching the "Join does not call back into Outbox directly"
// design note: the handler is wired by the caller with a concrete
// outbox.Store, which satisfies this interface through its EnqueueSimple
// method (Enqueue with default EnqueueOptions), so this package never
// needs outbox's EnqueueOptions type.
type OutboxEnqueuer interface {
	EnqueueSimple(ctx context.Context, topic, payload string) (ids.OutboxMessageID, ids.OutboxWorkItemID, error)
}

// Handler returns the join.wait topic handler, ready for registration with
// a dispatch.HandlerResolver under outbox.JoinWaitTopic.
func Handler(store Store, enqueuer OutboxEnqueuer) func(ctx context.Context, payload string) error {
	return func(ctx context.Context, payload string) error {
		var p waitPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return fmt.Errorf("join: decode wait payload: %w", err)
		}
		joinID, err := ids.ParseJoinID(p.JoinID)
		if err != nil {
			return fmt.Errorf("join: wait payload: %w", err)
		}

		j, err := store.GetJoin(ctx, joinID)
		if err != nil {
			return err
		}

		if !j.Ready() {
			return ErrNotReady
		}

		if j.Status != StatusPending {
			// Already terminalised by a prior (possibly redelivered)
			// invocation - no-op per spec's "called twice is a no-op".
			return nil
		}

		if p.FailIfAnyStepFailed && j.FailedSteps > 0 {
			if err := store.UpdateStatus(ctx, joinID, StatusFailed); err != nil {
				return err
			}
			if p.OnFailTopic != nil {
				payload := ""
				if p.OnFailPayload != nil {
					payload = *p.OnFailPayload
				}
				if _, _, err := enqueuer.EnqueueSimple(ctx, *p.OnFailTopic, payload); err != nil {
					return err
				}
			}
			return nil
		}

		if err := store.UpdateStatus(ctx, joinID, StatusCompleted); err != nil {
			return err
		}
		if p.OnCompleteTopic != nil {
			payload := ""
			if p.OnCompletePayload != nil {
				payload = *p.OnCompletePayload
			}
			if _, _, err := enqueuer.EnqueueSimple(ctx, *p.OnCompleteTopic, payload); err != nil {
				return err
			}
		}
		return nil
	}
}
