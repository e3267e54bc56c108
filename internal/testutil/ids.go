package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs names transactions "<prefix>-1", "<prefix>-2", ... and never
// runs out, unlike engine.FixedGenerator. Golden traces stay stable however
// many sleeps a scenario performs.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix means "tx".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "tx"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
