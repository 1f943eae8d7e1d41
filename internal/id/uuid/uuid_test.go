// Package uuid includes tests for the job ID generator.
package uuid

import (
	"regexp"
	"testing"
)

var hexID = regexp.MustCompile(`^[0-9a-f]{12}$`)

// TestGeneratorNewID ensures generated IDs are unique and well-formed.
func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	id1 := gen.NewID()
	id2 := gen.NewID()
	if id1 == id2 {
		t.Fatalf("expected unique IDs, got %s and %s", id1, id2)
	}
	if !hexID.MatchString(id1) {
		t.Fatalf("id1 %q is not 12 hex chars", id1)
	}
	if !hexID.MatchString(id2) {
		t.Fatalf("id2 %q is not 12 hex chars", id2)
	}
}
