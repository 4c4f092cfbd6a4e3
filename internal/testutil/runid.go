package testutil

import (
	"fmt"
	"sync"
)

// SequentialRunIDs hands out predictable harvest run identifiers.
//
// Implements harvest.RunIDGenerator. Golden files that embed run IDs stay
// byte-identical across executions.
type SequentialRunIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialRunIDs creates a generator producing "<prefix>-0001",
// "<prefix>-0002", ... If prefix is empty, "test-run" is used.
func NewSequentialRunIDs(prefix string) *SequentialRunIDs {
	if prefix == "" {
		prefix = "test-run"
	}
	return &SequentialRunIDs{prefix: prefix}
}

// Generate returns the next run ID.
func (g *SequentialRunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
