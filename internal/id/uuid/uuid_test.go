// Package uuid includes tests for the row id generator.
package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
)

// TestGeneratorNewID ensures generated row ids are valid version-7 UUIDs.
func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	id, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	parsed, err := goUUID.Parse(id)
	if err != nil {
		t.Fatalf("row id %q not a valid UUID: %v", id, err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected UUID version 7, got %d", parsed.Version())
	}
}

// TestGeneratorNewIDUnique confirms a batch of imported rows never shares ids.
func TestGeneratorNewIDUnique(t *testing.T) {
	t.Parallel()

	gen := New()
	seen := make(map[string]bool, 100)
	for i := 0; i < 100; i++ {
		id, err := gen.NewID()
		if err != nil {
			t.Fatalf("NewID() error = %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate row id %q after %d generations", id, i)
		}
		seen[id] = true
	}
}
