package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/brp/internal/brp"
	"github.com/roach88/brp/internal/session"
)

// Waiters routes responses to the callers waiting on their ids.
//
// A caller registers an id before sending, then waits on the returned
// channel. A pump reads the session's responses and delivers each one to
// its slot in O(1). Responses nobody waits for, because the caller timed
// out or never registered, are dropped.
type Waiters struct {
	mu     sync.Mutex
	slots  map[uint64]chan brp.Response
	logger *slog.Logger
}

// NewWaiters returns an empty table.
func NewWaiters(logger *slog.Logger) *Waiters {
	if logger == nil {
		logger = slog.Default()
	}
	return &Waiters{slots: make(map[uint64]chan brp.Response), logger: logger}
}

// Register creates a one-shot slot for id. Registering an id twice
// replaces the earlier slot.
func (w *Waiters) Register(id uint64) <-chan brp.Response {
	ch := make(chan brp.Response, 1)
	w.mu.Lock()
	w.slots[id] = ch
	w.mu.Unlock()
	return ch
}

// Cancel forgets id. A late response for it is dropped.
func (w *Waiters) Cancel(id uint64) {
	w.mu.Lock()
	delete(w.slots, id)
	w.mu.Unlock()
}

// Deliver hands resp to its waiter. It reports false when nobody waits.
func (w *Waiters) Deliver(resp brp.Response) bool {
	w.mu.Lock()
	ch, ok := w.slots[resp.ID]
	delete(w.slots, resp.ID)
	w.mu.Unlock()

	if !ok {
		w.logger.Debug("dropping response without waiter", "id", resp.ID)
		return false
	}
	ch <- resp
	return true
}

// Len returns the number of pending waiters.
func (w *Waiters) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.slots)
}

// Pump delivers responses from h until ctx is done or the session closes.
func (w *Waiters) Pump(ctx context.Context, h *session.Handle) error {
	for {
		resp, err := h.Recv(ctx)
		if err != nil {
			if errors.Is(err, session.ErrSessionClosed) {
				return nil
			}
			return err
		}
		w.Deliver(resp)
	}
}
