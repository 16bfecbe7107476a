package testutil

import "fmt"

// SequentialRunIDs hands out predictable batch run ids: prefix-1, prefix-2, ...
//
// Batch runs are identified by UUIDv7 in production; tests substitute this
// generator so stored runs and report output compare byte-for-byte.
//
// Not safe for concurrent use.
type SequentialRunIDs struct {
	prefix string
	n      int
}

// NewSequentialRunIDs creates a generator. An empty prefix means "run".
func NewSequentialRunIDs(prefix string) *SequentialRunIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &SequentialRunIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialRunIDs) Generate() string {
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
