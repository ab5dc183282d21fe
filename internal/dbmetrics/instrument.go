// Package dbmetrics wraps store operations with duration/result metrics and
// slow-operation logging, generalising the single "db" subsystem the
// teacher used into one subsystem per component (outbox, inbox, semaphore,
// lease, join) so each can be graphed independently.
package dbmetrics

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "relaycore",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Store operation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"component", "operation"},
	)

	operationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relaycore",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total store operations",
		},
		[]string{"component", "operation", "result"},
	)

	operationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relaycore",
			Subsystem: "store",
			Name:      "operation_errors_total",
			Help:      "Store operation errors by type",
		},
		[]string{"component", "operation", "error_type"},
	)

	operationRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relaycore",
			Subsystem: "store",
			Name:      "operation_retries_total",
			Help:      "Store operation retries attempted after a transient error",
		},
		[]string{"component", "operation"},
	)
)

// SlowOperationThreshold defines when a store operation is logged as slow.
const SlowOperationThreshold = 100 * time.Millisecond

// ErrorClassifier maps an error to a label-safe class for metrics. Callers
// supply one so that component-specific sentinel errors (ErrNotFound,
// ErrOwnerMismatch, ...) get distinct labels.
type ErrorClassifier func(err error) string

// transientPostgresCodes are the SQLSTATE classes the source's TransientIO
// category names: deadlocks, serialization failures, and connection-level
// exceptions. Every one of these is safe to retry because every store
// operation here is idempotent by ownership token.
var transientPostgresCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"08000": true, // connection_exception
	"08003": true, // connection_does_not_exist
	"08006": true, // connection_failure
	"08001": true, // sqlclient_unable_to_establish_sqlconnection
	"08004": true, // sqlserver_rejected_establishment_of_sqlconnection
}

// DefaultClassifier handles context, deadline, and transient Postgres
// errors; components extend it with their own sentinels via errors.Is
// before falling back to it.
func DefaultClassifier(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && transientPostgresCodes[pgErr.Code] {
		return "transient"
	}
	return "internal"
}

func retryable(class string) bool {
	return class == "timeout" || class == "transient"
}

// retryPolicy bounds how long Instrument spends retrying a single
// operation - short enough that a claim-poll caller never stalls for long,
// long enough to ride out a brief deadlock or connection blip.
func retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 500 * time.Millisecond
	return b
}

// Instrument wraps a store operation with metrics and logging, retrying a
// TransientIO-classified failure (deadlock, serialization conflict,
// connection blip) a bounded number of times before giving up. It records
// duration, success/failure counts, and logs slow operations.
func Instrument[T any](component, operation string, classify ErrorClassifier, fn func() (T, error)) (T, error) {
	start := time.Now()

	var result T
	var lastErr error
	attempts := 0

	_ = backoff.Retry(func() error {
		attempts++
		result, lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if retryable(classify(lastErr)) {
			return lastErr
		}
		return backoff.Permanent(lastErr)
	}, retryPolicy())

	duration := time.Since(start)
	operationDuration.WithLabelValues(component, operation).Observe(duration.Seconds())

	if attempts > 1 {
		operationRetries.WithLabelValues(component, operation).Add(float64(attempts - 1))
	}

	if lastErr != nil {
		operationTotal.WithLabelValues(component, operation, "error").Inc()
		operationErrors.WithLabelValues(component, operation, classify(lastErr)).Inc()
		slog.Error("store operation failed",
			"component", component,
			"operation", operation,
			"duration_ms", duration.Milliseconds(),
			"attempts", attempts,
			"error", lastErr)
	} else {
		operationTotal.WithLabelValues(component, operation, "success").Inc()
		if attempts > 1 {
			slog.Info("store operation succeeded after retry",
				"component", component,
				"operation", operation,
				"attempts", attempts)
		}
		if duration > SlowOperationThreshold {
			slog.Warn("slow store operation",
				"component", component,
				"operation", operation,
				"duration_ms", duration.Milliseconds())
		}
	}

	return result, lastErr
}

// InstrumentVoid wraps an operation that returns only an error.
func InstrumentVoid(component, operation string, classify ErrorClassifier, fn func() error) error {
	_, err := Instrument(component, operation, classify, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
