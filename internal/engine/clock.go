package engine

import "sync/atomic"

// Clock counts ticks. The first tick is 1.
//
// Only the tick loop advances it, but readers such as metrics or the HTTP
// health endpoint may call Current from any goroutine.
type Clock struct {
	tick atomic.Int64
}

// NewClock returns a clock at tick 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt returns a clock positioned at start, so the next tick is
// start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.tick.Store(start)
	return c
}

// Next advances to the next tick and returns it.
func (c *Clock) Next() int64 {
	return c.tick.Add(1)
}

// Current returns the last tick started.
func (c *Clock) Current() int64 {
	return c.tick.Load()
}
