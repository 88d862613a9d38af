package testutil

import (
	"fmt"
	"sync"
)

// FixedLabels hands out predetermined session labels in order and then
// falls back to "<last>-<n>" so a test that opens one connection too many
// still gets unique labels. Safe for concurrent use.
type FixedLabels struct {
	mu     sync.Mutex
	labels []string
	n      int
}

// NewFixedLabels returns a generator over labels. With no labels it
// produces "session-1", "session-2", ...
func NewFixedLabels(labels ...string) *FixedLabels {
	return &FixedLabels{labels: labels}
}

// Generate returns the next label.
func (g *FixedLabels) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.n++
	if g.n <= len(g.labels) {
		return g.labels[g.n-1]
	}
	base := "session"
	if len(g.labels) > 0 {
		base = g.labels[len(g.labels)-1]
	}
	return fmt.Sprintf("%s-%d", base, g.n)
}
