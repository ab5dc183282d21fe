package semaphore

import "testing"

func TestValidateLimit(t *testing.T) {
	if err := validateLimit(0); err == nil {
		t.Error("expected error for limit 0")
	}
	if err := validateLimit(DefaultMaxLimit + 1); err == nil {
		t.Error("expected error for limit above DefaultMaxLimit")
	}
	if err := validateLimit(1); err != nil {
		t.Errorf("limit 1 should be valid: %v", err)
	}
	if err := validateLimit(DefaultMaxLimit); err != nil {
		t.Errorf("DefaultMaxLimit should be valid: %v", err)
	}
}

func TestValidateTTL(t *testing.T) {
	if err := validateTTL(MinTTLSeconds - 1); err == nil {
		t.Error("expected error below MinTTLSeconds")
	}
	if err := validateTTL(MaxTTLSeconds + 1); err == nil {
		t.Error("expected error above MaxTTLSeconds")
	}
	if err := validateTTL(MinTTLSeconds); err != nil {
		t.Errorf("MinTTLSeconds should be valid: %v", err)
	}
	if err := validateTTL(MaxTTLSeconds); err != nil {
		t.Errorf("MaxTTLSeconds should be valid: %v", err)
	}
}

func TestValidateName(t *testing.T) {
	if err := validateName(""); err == nil {
		t.Error("expected error for empty name")
	}
	if err := validateName("order-limiter"); err != nil {
		t.Errorf("expected valid name to pass: %v", err)
	}
}
