package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// LabelGenerator names sessions that are scoped to a connection.
type LabelGenerator interface {
	Generate() string
}

// UUIDv7Labels generates time-sortable UUIDv7 labels. Safe for concurrent
// use.
type UUIDv7Labels struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Labels) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceLabels returns prefix-1, prefix-2, ... Safe for concurrent use.
type SequenceLabels struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceLabels returns a generator counting from 1.
func NewSequenceLabels(prefix string) *SequenceLabels {
	return &SequenceLabels{prefix: prefix}
}

// Generate returns the next label.
func (g *SequenceLabels) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
