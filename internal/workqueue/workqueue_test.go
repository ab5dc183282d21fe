package workqueue

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateLeaseSeconds(t *testing.T) {
	cases := []struct {
		seconds int
		wantErr bool
	}{
		{0, true},
		{MinLeaseSeconds, false},
		{MaxLeaseSeconds, false},
		{MaxLeaseSeconds + 1, true},
		{-1, true},
	}
	for _, c := range cases {
		err := ValidateLeaseSeconds(c.seconds)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidateLeaseSeconds(%d) error = %v, wantErr %v", c.seconds, err, c.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("ValidateLeaseSeconds(%d) error should wrap ErrInvalidArgument", c.seconds)
		}
	}
}

func TestValidateBatchSize(t *testing.T) {
	if err := ValidateBatchSize(0); err == nil {
		t.Error("expected error for batch size 0")
	}
	if err := ValidateBatchSize(MaxBatchSize + 1); err == nil {
		t.Error("expected error for batch size above max")
	}
	if err := ValidateBatchSize(MinBatchSize); err != nil {
		t.Errorf("MinBatchSize should be valid: %v", err)
	}
}

func TestValidateName(t *testing.T) {
	if err := ValidateName(""); err == nil {
		t.Error("expected error for empty name")
	}
	if err := ValidateName(strings.Repeat("a", 201)); err == nil {
		t.Error("expected error for name over 200 bytes")
	}
	if err := ValidateName("bad name with spaces"); err == nil {
		t.Error("expected error for name with disallowed characters")
	}
	if err := ValidateName("tenant.42:queue/outbox-1"); err != nil {
		t.Errorf("expected valid name to pass: %v", err)
	}
}
