package inbox

import (
	"errors"
	"testing"

	"github.com/relaycore/relay/internal/ids"
	"github.com/relaycore/relay/internal/workqueue"
)

func TestValidateClaimInputs(t *testing.T) {
	owner := ids.NewOwnerToken()

	if err := validateClaimInputs(owner, 30, 10); err != nil {
		t.Fatalf("valid inputs rejected: %v", err)
	}
	if err := validateClaimInputs(ids.OwnerToken{}, 30, 10); !errors.Is(err, workqueue.ErrInvalidArgument) {
		t.Fatalf("zero owner should be ErrInvalidArgument, got %v", err)
	}
	if err := validateClaimInputs(owner, -1, 10); err == nil {
		t.Fatal("expected error for negative lease seconds")
	}
	if err := validateClaimInputs(owner, 30, -1); err == nil {
		t.Fatal("expected error for negative batch size")
	}
}
