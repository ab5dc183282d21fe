// Package lifecycle provides coordinated startup/shutdown for the core's
// background loops - dispatch runners, reaper tickers, lease renewal - so
// an embedding binary can supervise them uniformly. Supervisor also
// publishes per-service up/down state to Prometheus, the same
// promauto-based approach internal/dbmetrics uses for store operations,
// so a deployment's "which loops are actually running" question is
// answerable from the same dashboards as store throughput.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var serviceUp = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "relaycore",
		Subsystem: "lifecycle",
		Name:      "service_up",
		Help:      "1 if the named service is started and not yet stopped, 0 otherwise",
	},
	[]string{"service"},
)

// Service represents a startable/stoppable background loop.
type Service interface {
	// Name returns the service identifier for logging.
	Name() string

	// Start begins the service. It should block until ctx is cancelled
	// or return an error if startup fails.
	Start(ctx context.Context) error

	// Stop gracefully shuts the service down. Should complete within the
	// given timeout.
	Stop(ctx context.Context) error

	// Health returns nil if the service is healthy, error otherwise.
	Health() error
}

// Supervisor manages multiple services with coordinated lifecycle: start
// in order, stop in reverse order.
type Supervisor struct {
	services []Service
	mu       sync.RWMutex
	running  bool
}

func NewSupervisor(services ...Service) *Supervisor {
	return &Supervisor{services: services}
}

// Run starts all services and blocks until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("lifecycle: supervisor already running")
	}
	s.running = true
	s.mu.Unlock()

	var started []Service
	for _, svc := range s.services {
		slog.Info("lifecycle: starting service", "service", svc.Name())

		errCh := make(chan error, 1)
		go func(service Service) {
			errCh <- service.Start(ctx)
		}(svc)

		select {
		case err := <-errCh:
			if err != nil {
				s.stopServices(started)
				return fmt.Errorf("lifecycle: service %s failed to start: %w", svc.Name(), err)
			}
		case <-time.After(100 * time.Millisecond):
		}

		serviceUp.WithLabelValues(svc.Name()).Set(1)
		started = append(started, svc)
	}

	<-ctx.Done()
	slog.Info("lifecycle: shutdown signal received, stopping services")
	s.stopServices(started)

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) stopServices(services []Service) {
	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := svc.Stop(stopCtx); err != nil {
			slog.Error("lifecycle: service stop error", "service", svc.Name(), "error", err)
		}
		cancel()
		serviceUp.WithLabelValues(svc.Name()).Set(0)
	}
}

// Health returns nil only if every supervised service reports healthy.
func (s *Supervisor) Health() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, svc := range s.services {
		if err := svc.Health(); err != nil {
			return fmt.Errorf("lifecycle: service %s unhealthy: %w", svc.Name(), err)
		}
	}
	return nil
}

// ServiceFunc adapts a start/stop function pair to the Service interface,
// for loops that don't need a dedicated type (reaper tickers, lease
// renewal drivers).
type ServiceFunc struct {
	name      string
	startFunc func(ctx context.Context) error
	stopFunc  func(ctx context.Context) error
	healthFn  func() error
}

func NewServiceFunc(name string, start func(ctx context.Context) error, stop func(ctx context.Context) error) *ServiceFunc {
	return &ServiceFunc{name: name, startFunc: start, stopFunc: stop, healthFn: func() error { return nil }}
}

func (s *ServiceFunc) Name() string                    { return s.name }
func (s *ServiceFunc) Start(ctx context.Context) error  { return s.startFunc(ctx) }
func (s *ServiceFunc) Stop(ctx context.Context) error   { return s.stopFunc(ctx) }
func (s *ServiceFunc) Health() error                    { return s.healthFn() }
func (s *ServiceFunc) WithHealth(fn func() error) *ServiceFunc {
	s.healthFn = fn
	return s
}
