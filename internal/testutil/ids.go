package testutil

import "fmt"

// SequentialIDGenerator returns prefix-1, prefix-2, ... It satisfies
// engine.IDGenerator and never runs out, unlike engine.FixedGenerator.
//
// The harness uses it so that golden outputs do not depend on UUIDs.
type SequentialIDGenerator struct {
	prefix string
	n      int
}

// NewSequentialIDGenerator creates a generator. An empty prefix becomes
// "compilation".
func NewSequentialIDGenerator(prefix string) *SequentialIDGenerator {
	if prefix == "" {
		prefix = "compilation"
	}
	return &SequentialIDGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDGenerator) Generate() string {
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
