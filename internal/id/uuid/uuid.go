// Package uuid provides job ID generation.
package uuid

import (
	"strings"

	"github.com/google/uuid"
)

// Generator creates short hex job identifiers.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a 12-character hex identifier derived from a random UUID.
// Short IDs keep job directory names and log lines readable.
func (Generator) NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
