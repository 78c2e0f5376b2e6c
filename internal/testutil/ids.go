package testutil

import (
	"fmt"
	"sync"
)

// CountingGenerator yields "<prefix>-1", "<prefix>-2", ... as history
// entry IDs, so a replayed scenario names its entries the same way every
// run. Safe for concurrent use.
type CountingGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewCountingGenerator creates a generator. An empty prefix uses "entry".
func NewCountingGenerator(prefix string) *CountingGenerator {
	if prefix == "" {
		prefix = "entry"
	}
	return &CountingGenerator{prefix: prefix}
}

// Generate returns the next ID.
//
// Implements history.IDGenerator.
func (g *CountingGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Reset restarts numbering at 1.
func (g *CountingGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
