package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// fakeService records start/stop ordering and blocks Start until ctx is
// cancelled, like a real background loop.
type fakeService struct {
	name     string
	startErr error
	healthErr error

	mu      sync.Mutex
	started bool
	stopped bool
}

func (s *fakeService) Name() string { return s.name }

func (s *fakeService) Start(ctx context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	<-ctx.Done()
	return nil
}

func (s *fakeService) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}

func (s *fakeService) Health() error { return s.healthErr }

func TestSupervisor_StopsAllServicesOnCancel(t *testing.T) {
	a := &fakeService{name: "a"}
	b := &fakeService{name: "b"}
	sup := NewSupervisor(a, b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	time.Sleep(150 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	if !a.stopped || !b.stopped {
		t.Fatal("expected both services to be stopped")
	}

	if got := testutil.ToFloat64(serviceUp.WithLabelValues("a")); got != 0 {
		t.Fatalf("service_up{service=a} = %v, want 0 after stop", got)
	}
	if got := testutil.ToFloat64(serviceUp.WithLabelValues("b")); got != 0 {
		t.Fatalf("service_up{service=b} = %v, want 0 after stop", got)
	}
}

func TestSupervisor_FailedStartStopsAlreadyStartedServices(t *testing.T) {
	a := &fakeService{name: "a"}
	b := &fakeService{name: "b", startErr: errors.New("boom")}
	sup := NewSupervisor(a, b)

	err := sup.Run(context.Background())
	if err == nil {
		t.Fatal("expected Run to return an error when a service fails to start")
	}
	if !a.stopped {
		t.Fatal("service started before the failing one should still be stopped")
	}
}

func TestSupervisor_Health_AggregatesAcrossServices(t *testing.T) {
	a := &fakeService{name: "a"}
	b := &fakeService{name: "b", healthErr: errors.New("unhealthy")}
	sup := NewSupervisor(a, b)

	if err := sup.Health(); err == nil {
		t.Fatal("expected Health to report the unhealthy service")
	}
}

func TestServiceFunc_WithHealth(t *testing.T) {
	svc := NewServiceFunc("svc",
		func(ctx context.Context) error { <-ctx.Done(); return nil },
		func(ctx context.Context) error { return nil },
	)
	if err := svc.Health(); err != nil {
		t.Fatalf("default health should be nil, got %v", err)
	}

	wantErr := errors.New("degraded")
	svc.WithHealth(func() error { return wantErr })
	if err := svc.Health(); !errors.Is(err, wantErr) {
		t.Fatalf("Health() = %v, want %v", err, wantErr)
	}
}
