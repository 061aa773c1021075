package core

import (
	"errors"
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}
}

func TestParseEvaluationID(t *testing.T) {
	id := NewEvaluationID()
	parsed, err := ParseEvaluationID(" " + id.String() + " ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != id {
		t.Errorf("expected %s, got %s", id, parsed)
	}

	if _, err := ParseEvaluationID(""); err == nil {
		t.Error("expected error for empty ID")
	}
	if _, err := ParseEvaluationID("not-a-uuid"); err == nil {
		t.Error("expected error for malformed ID")
	}
}

func TestDataContractErrorIs(t *testing.T) {
	err := NewRowContractError(3, "treatment", "must be 0 or 1")
	if !errors.Is(err, ErrDataContract) {
		t.Error("row contract error should match ErrDataContract")
	}
	if !IsDataContractError(NewDataContractError("cost", "missing")) {
		t.Error("column contract error should match ErrDataContract")
	}
	if IsDataContractError(ErrSpecValidation) {
		t.Error("spec validation error must not match ErrDataContract")
	}
	want := `data contract violated at row 3, column "treatment": must be 0 or 1`
	if err.Error() != want {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestHashKeyValuesOrderIndependent(t *testing.T) {
	a := HashKeyValues(map[string]string{"x": "1", "y": "2"})
	b := HashKeyValues(map[string]string{"y": "2", "x": "1"})
	if a != b {
		t.Errorf("hash depends on map order: %s vs %s", a, b)
	}
}
