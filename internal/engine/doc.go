// Package engine drives the simulation.
//
// The Engine owns the world. Each tick runs two stages in order:
//
//  1. Remote dispatch: every open session's queued requests are answered,
//     so client mutations are visible to the rest of the tick.
//  2. Systems, in registration order.
//
// Tick must be called from one goroutine; Run does that on a fixed
// interval. Transports never touch the world, they talk to sessions.
package engine
