// Package config loads the core's own runtime tunables from the
// environment - lease/batch bounds, semaphore TTL defaults, and retention
// intervals - following the env-var-with-defaults idiom used throughout
// this codebase rather than a config file format.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/relaycore/relay/internal/semaphore"
	"github.com/relaycore/relay/internal/workqueue"
)

// Config holds the core's runtime tunables. Wire protocol, CLI flags, and
// per-tenant database discovery are outside this package's scope - a
// hosting binary owns those and constructs stores/pools itself.
type Config struct {
	// Dispatch tunables (C5).
	DispatchLeaseSeconds int
	DispatchBatchSize    int
	DispatchPollInterval time.Duration

	// Semaphore default TTL (C6), used when a caller doesn't specify one.
	SemaphoreDefaultTTL time.Duration

	// Lease renewal fraction (C7): how far into the lease duration the
	// runner schedules its first renewal.
	LeaseRenewFraction float64

	// Retention / reap loop cadence.
	ReapInterval    time.Duration
	ReapBatchSize   int
	CleanupInterval time.Duration
	CleanupRetention time.Duration
	CleanupBatchSize int
}

// Load reads configuration from the environment, applying defaults for
// anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		DispatchLeaseSeconds: getEnvInt("RELAY_DISPATCH_LEASE_SECONDS", 30),
		DispatchBatchSize:    getEnvInt("RELAY_DISPATCH_BATCH_SIZE", 100),
		DispatchPollInterval: getEnvDuration("RELAY_DISPATCH_POLL_INTERVAL", time.Second),

		SemaphoreDefaultTTL: getEnvDuration("RELAY_SEMAPHORE_DEFAULT_TTL", 30*time.Second),

		LeaseRenewFraction: getEnvFloat("RELAY_LEASE_RENEW_FRACTION", 0.5),

		ReapInterval:    getEnvDuration("RELAY_REAP_INTERVAL", 15*time.Second),
		ReapBatchSize:   getEnvInt("RELAY_REAP_BATCH_SIZE", workqueue.DefaultReapBatch),
		CleanupInterval: getEnvDuration("RELAY_CLEANUP_INTERVAL", time.Hour),
		CleanupRetention: getEnvDuration("RELAY_CLEANUP_RETENTION", 7*24*time.Hour),
		CleanupBatchSize: getEnvInt("RELAY_CLEANUP_BATCH_SIZE", 1000),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if err := workqueue.ValidateLeaseSeconds(c.DispatchLeaseSeconds); err != nil {
		return fmt.Errorf("config: RELAY_DISPATCH_LEASE_SECONDS: %w", err)
	}
	if err := workqueue.ValidateBatchSize(c.DispatchBatchSize); err != nil {
		return fmt.Errorf("config: RELAY_DISPATCH_BATCH_SIZE: %w", err)
	}
	ttlSeconds := int(c.SemaphoreDefaultTTL.Seconds())
	if ttlSeconds < semaphore.MinTTLSeconds || ttlSeconds > semaphore.MaxTTLSeconds {
		return fmt.Errorf("config: RELAY_SEMAPHORE_DEFAULT_TTL outside [%ds, %ds]", semaphore.MinTTLSeconds, semaphore.MaxTTLSeconds)
	}
	if c.LeaseRenewFraction <= 0 || c.LeaseRenewFraction >= 1 {
		return fmt.Errorf("config: RELAY_LEASE_RENEW_FRACTION must be in (0, 1)")
	}
	return nil
}

func getEnvInt(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
