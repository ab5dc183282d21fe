package lease

import (
	"context"
	"testing"
	"time"

	"github.com/relaycore/relay/internal/clock"
)

// fakeStore is a hand-rolled Store for exercising renewal scheduling
// without a database or a real ticker.
type fakeStore struct {
	renewCalls  int
	renewResult RenewResult
	renewErr    error
	released    bool
}

func (s *fakeStore) Acquire(ctx context.Context, name, owner string, duration time.Duration) (AcquireResult, error) {
	return AcquireResult{Acquired: true, Epoch: 1, ExpiresAt: time.Time{}}, nil
}

func (s *fakeStore) Renew(ctx context.Context, name string, epoch int64, duration time.Duration) (RenewResult, error) {
	s.renewCalls++
	if s.renewErr != nil {
		return RenewResult{}, s.renewErr
	}
	return s.renewResult, nil
}

func (s *fakeStore) Release(ctx context.Context, name string, epoch int64) (bool, error) {
	s.released = true
	return true, nil
}

// newTestRunner builds a Runner with no background goroutine, so tests can
// drive renewIfDue deterministically against a Fake clock.
func newTestRunner(store Store, clk clock.Clock, duration time.Duration, fraction float64) *Runner {
	r := &Runner{
		store:    store,
		clk:      clk,
		name:     "test-lease",
		owner:    "owner-1",
		duration: duration,
		fraction: fraction,
		epoch:    1,
		lostCh:   make(chan struct{}),
		stopCh:   make(chan struct{}),
	}
	r.deadline = clk.Now().Add(time.Duration(float64(duration) * fraction))
	return r
}

func TestRenewIfDue_NotYetAtDeadlineIsNoOp(t *testing.T) {
	clk := clock.NewFake()
	store := &fakeStore{renewResult: RenewResult{Renewed: true}}
	r := newTestRunner(store, clk, 10*time.Second, 0.5)

	clk.Advance(4 * time.Second)
	if r.renewIfDue(context.Background()) {
		t.Fatal("renewIfDue fired before the scheduled deadline")
	}
	if store.renewCalls != 0 {
		t.Fatalf("renewCalls = %d, want 0", store.renewCalls)
	}
}

func TestRenewIfDue_FiresAtDeadlineAndReschedules(t *testing.T) {
	clk := clock.NewFake()
	store := &fakeStore{renewResult: RenewResult{Renewed: true}}
	r := newTestRunner(store, clk, 10*time.Second, 0.5)

	clk.Advance(5 * time.Second)
	if !r.renewIfDue(context.Background()) {
		t.Fatal("renewIfDue should fire once the clock reaches the deadline")
	}
	if store.renewCalls != 1 {
		t.Fatalf("renewCalls = %d, want 1", store.renewCalls)
	}

	// A spurious wakeup immediately after should not re-renew - the
	// deadline was pushed forward another 5s.
	if r.renewIfDue(context.Background()) {
		t.Fatal("renewIfDue fired again before the next scheduled deadline")
	}
	if store.renewCalls != 1 {
		t.Fatalf("renewCalls = %d, want 1 after spurious wakeup", store.renewCalls)
	}
}

func TestRenewIfDue_ForwardClockJumpDoesNotSkipRenewal(t *testing.T) {
	clk := clock.NewFake()
	store := &fakeStore{renewResult: RenewResult{Renewed: true}}
	r := newTestRunner(store, clk, 10*time.Second, 0.5)

	// A large forward jump (wall-clock step, process pause) should still
	// trigger exactly one renewal, not be skipped or double counted.
	clk.Advance(time.Hour)
	if !r.renewIfDue(context.Background()) {
		t.Fatal("renewIfDue should fire after a large forward clock jump")
	}
	if store.renewCalls != 1 {
		t.Fatalf("renewCalls = %d, want 1", store.renewCalls)
	}
}

func TestRenewIfDue_StoreRejectionMarksLost(t *testing.T) {
	clk := clock.NewFake()
	store := &fakeStore{renewResult: RenewResult{Renewed: false}}
	r := newTestRunner(store, clk, 10*time.Second, 0.5)

	var lostFired bool
	r.OnLost(func() { lostFired = true })

	clk.Advance(5 * time.Second)
	if r.renewIfDue(context.Background()) {
		t.Fatal("renewIfDue should report failure when the store rejects renewal")
	}
	if !r.IsLost() {
		t.Fatal("runner should observe loss when the store rejects renewal")
	}
	if !lostFired {
		t.Fatal("OnLost callback should fire exactly once on loss")
	}
	select {
	case <-r.Lost():
	default:
		t.Fatal("Lost channel should be closed once the lease is lost")
	}
	if err := r.ThrowIfLost(); err != ErrLost {
		t.Fatalf("ThrowIfLost() = %v, want ErrLost", err)
	}
}

func TestRenewIfDue_DisposedRunnerNeverRenews(t *testing.T) {
	clk := clock.NewFake()
	store := &fakeStore{renewResult: RenewResult{Renewed: true}}
	r := newTestRunner(store, clk, 10*time.Second, 0.5)
	r.disposed = true

	clk.Advance(time.Hour)
	if r.renewIfDue(context.Background()) {
		t.Fatal("a disposed runner should never renew")
	}
	if store.renewCalls != 0 {
		t.Fatalf("renewCalls = %d, want 0 after dispose", store.renewCalls)
	}
}

func TestTryRenewNow_AfterDisposeReturnsFalseWithoutContactingStore(t *testing.T) {
	clk := clock.NewFake()
	store := &fakeStore{renewResult: RenewResult{Renewed: true}}
	r := newTestRunner(store, clk, 10*time.Second, 0.5)
	r.disposed = true

	if r.TryRenewNow(context.Background()) {
		t.Fatal("TryRenewNow should return false once disposed")
	}
	if store.renewCalls != 0 {
		t.Fatalf("renewCalls = %d, want 0", store.renewCalls)
	}
}
