package session

import (
	"context"
	"time"

	"github.com/roach88/brp/internal/brp"
)

// Exchange is one answered request.
type Exchange struct {
	// Seq orders exchanges across all sessions.
	Seq      int64
	Tick     uint64
	Session  string
	Format   brp.Format
	Request  brp.Request
	Response brp.Response
	// Duration runs from the pass that received the request to the pass
	// that answered it. It includes time spent parked.
	Duration time.Duration
}

// Observer is told about every exchange, synchronously on the dispatch
// pass. A returned error is logged and does not affect the response.
type Observer interface {
	Observe(ctx context.Context, ex Exchange) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ex Exchange) error

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, ex Exchange) error { return f(ctx, ex) }

// Sequencer issues strictly increasing sequence numbers.
type Sequencer interface {
	Next() int64
}
