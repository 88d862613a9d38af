// Package session connects transports to the simulation.
//
// Transports open a session per client connection and exchange requests and
// responses through its Handle from any goroutine. The Dispatcher runs on the
// simulation tick, owns the list of live sessions and answers every queued
// request against the world.
package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/roach88/brp/internal/brp"
)

var (
	// ErrSessionExists is returned by Open when the label is taken.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionNotFound is returned by Close for an unknown label.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionClosed is returned by Handle methods after the session
	// closed.
	ErrSessionClosed = errors.New("session closed")
)

// session is the state shared between a Handle and the Dispatcher.
type session struct {
	label     string
	format    brp.Format
	requests  *queue[brp.Request]
	responses *queue[brp.Response]
	closing   atomic.Bool

	// Owned by the dispatcher.
	parked []*parkedPoll
}

func newSession(label string, format brp.Format) *session {
	return &session{
		label:     label,
		format:    format,
		requests:  newQueue[brp.Request](),
		responses: newQueue[brp.Response](),
	}
}

// Handle is a transport's end of a session.
type Handle struct {
	s        *session
	registry *Registry
}

// Label returns the session label.
func (h *Handle) Label() string { return h.s.label }

// Format returns the serialization format negotiated at open time.
func (h *Handle) Format() brp.Format { return h.s.format }

// Send queues a request for the next dispatch pass.
func (h *Handle) Send(req brp.Request) error {
	if h.s.closing.Load() || !h.s.requests.Push(req) {
		return ErrSessionClosed
	}
	return nil
}

// TryRecv returns a response if one is ready.
func (h *Handle) TryRecv() (brp.Response, bool) {
	return h.s.responses.TryPop()
}

// Recv blocks until a response is ready, the session closes or ctx is done.
// Responses published before the session closed are still delivered.
func (h *Handle) Recv(ctx context.Context) (brp.Response, error) {
	for {
		if resp, ok := h.s.responses.TryPop(); ok {
			return resp, nil
		}
		if h.s.responses.Closed() {
			return brp.Response{}, ErrSessionClosed
		}
		select {
		case <-ctx.Done():
			return brp.Response{}, ctx.Err()
		case <-h.s.responses.Wait():
		}
	}
}

// Close closes the session. Pending requests are dropped.
func (h *Handle) Close() error {
	return h.registry.close(h.s)
}

// parkedPoll is a PollEntities request waiting for its result set to change.
type parkedPoll struct {
	req       brp.Request
	poll      brp.PollEntities
	watermark uint64
	// tick is the world change tick the poll was last evaluated at.
	tick     uint64
	received time.Time
}
