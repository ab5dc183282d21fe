package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DispatchLeaseSeconds != 30 {
		t.Errorf("DispatchLeaseSeconds = %d, want 30", cfg.DispatchLeaseSeconds)
	}
	if cfg.LeaseRenewFraction != 0.5 {
		t.Errorf("LeaseRenewFraction = %v, want 0.5", cfg.LeaseRenewFraction)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("RELAY_DISPATCH_BATCH_SIZE", "500")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DispatchBatchSize != 500 {
		t.Errorf("DispatchBatchSize = %d, want 500", cfg.DispatchBatchSize)
	}
}

func TestLoad_RejectsInvalidLeaseSeconds(t *testing.T) {
	t.Setenv("RELAY_DISPATCH_LEASE_SECONDS", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for lease seconds of 0")
	}
}

func TestLoad_RejectsOutOfRangeRenewFraction(t *testing.T) {
	t.Setenv("RELAY_LEASE_RENEW_FRACTION", "1.5")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for renew fraction >= 1")
	}
}
