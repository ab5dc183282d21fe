package join

import (
	"context"
	"errors"
	"testing"

	"github.com/relaycore/relay/internal/ids"
)

func TestJoin_Ready(t *testing.T) {
	j := Join{ExpectedSteps: 3, CompletedSteps: 2, FailedSteps: 1}
	if !j.Ready() {
		t.Fatal("completed+failed == expected should be ready")
	}
	j.FailedSteps = 0
	if j.Ready() {
		t.Fatal("completed+failed < expected should not be ready")
	}
}

// fakeStore is a hand-rolled Store for exercising Handler without a
// database.
type fakeStore struct {
	join       Join
	status     Status
	updateErrs error
}

func (s *fakeStore) CreateJoin(ctx context.Context, tenantID int64, expectedSteps int, metadata *string) (Join, error) {
	return Join{}, nil
}
func (s *fakeStore) AttachMessage(ctx context.Context, joinID ids.JoinID, messageID ids.OutboxMessageID) error {
	return nil
}
func (s *fakeStore) IncrementCompleted(ctx context.Context, joinID ids.JoinID, messageID ids.OutboxMessageID) error {
	return nil
}
func (s *fakeStore) IncrementFailed(ctx context.Context, joinID ids.JoinID, messageID ids.OutboxMessageID) error {
	return nil
}
func (s *fakeStore) UpdateStatus(ctx context.Context, joinID ids.JoinID, status Status) error {
	if s.updateErrs != nil {
		return s.updateErrs
	}
	s.status = status
	s.join.Status = status
	return nil
}
func (s *fakeStore) GetJoin(ctx context.Context, joinID ids.JoinID) (Join, error) { return s.join, nil }
func (s *fakeStore) GetJoinMessages(ctx context.Context, joinID ids.JoinID) ([]ids.OutboxMessageID, error) {
	return nil, nil
}
func (s *fakeStore) JoinsForMessage(ctx context.Context, messageID ids.OutboxMessageID) ([]ids.JoinID, error) {
	return nil, nil
}

// fakeEnqueuer records every EnqueueSimple call.
type fakeEnqueuer struct {
	calls []struct{ topic, payload string }
}

func (e *fakeEnqueuer) EnqueueSimple(ctx context.Context, topic, payload string) (ids.OutboxMessageID, ids.OutboxWorkItemID, error) {
	e.calls = append(e.calls, struct{ topic, payload string }{topic, payload})
	return ids.NewOutboxMessageID(), ids.NewOutboxWorkItemID(), nil
}

func TestHandler_NotReadyReturnsErrNotReady(t *testing.T) {
	joinID := ids.NewJoinID()
	store := &fakeStore{join: Join{ID: joinID, ExpectedSteps: 2, CompletedSteps: 0, Status: StatusPending}}
	enqueuer := &fakeEnqueuer{}
	handler := Handler(store, enqueuer)

	payload := EncodeWaitPayload(joinID, false, nil, nil, nil, nil)
	err := handler(context.Background(), payload)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if len(enqueuer.calls) != 0 {
		t.Fatal("no follow-up should be enqueued while not ready")
	}
}

func TestHandler_CompletesAndEnqueuesOnComplete(t *testing.T) {
	joinID := ids.NewJoinID()
	store := &fakeStore{join: Join{ID: joinID, ExpectedSteps: 2, CompletedSteps: 2, Status: StatusPending}}
	enqueuer := &fakeEnqueuer{}
	onComplete := "order.fulfilled"
	handler := Handler(store, enqueuer)

	payload := EncodeWaitPayload(joinID, false, &onComplete, nil, nil, nil)
	if err := handler(context.Background(), payload); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if store.status != StatusCompleted {
		t.Fatalf("status = %v, want Completed", store.status)
	}
	if len(enqueuer.calls) != 1 || enqueuer.calls[0].topic != onComplete {
		t.Fatalf("expected one enqueue on %q, got %v", onComplete, enqueuer.calls)
	}
}

func TestHandler_FailIfAnyStepFailedRoutesToOnFail(t *testing.T) {
	joinID := ids.NewJoinID()
	store := &fakeStore{join: Join{ID: joinID, ExpectedSteps: 2, CompletedSteps: 1, FailedSteps: 1, Status: StatusPending}}
	enqueuer := &fakeEnqueuer{}
	onFail := "order.failed"
	handler := Handler(store, enqueuer)

	payload := EncodeWaitPayload(joinID, true, nil, nil, &onFail, nil)
	if err := handler(context.Background(), payload); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if store.status != StatusFailed {
		t.Fatalf("status = %v, want Failed", store.status)
	}
	if len(enqueuer.calls) != 1 || enqueuer.calls[0].topic != onFail {
		t.Fatalf("expected one enqueue on %q, got %v", onFail, enqueuer.calls)
	}
}

func TestHandler_AlreadyTerminalIsNoOp(t *testing.T) {
	joinID := ids.NewJoinID()
	store := &fakeStore{join: Join{ID: joinID, ExpectedSteps: 1, CompletedSteps: 1, Status: StatusCompleted}}
	enqueuer := &fakeEnqueuer{}
	onComplete := "order.fulfilled"
	handler := Handler(store, enqueuer)

	payload := EncodeWaitPayload(joinID, false, &onComplete, nil, nil, nil)
	if err := handler(context.Background(), payload); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(enqueuer.calls) != 0 {
		t.Fatal("a second delivery of an already-terminal join should not re-enqueue")
	}
}
