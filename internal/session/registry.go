package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/brp/internal/brp"
)

type controlOp int

const (
	opAttach controlOp = iota + 1
	opDetach
)

type control struct {
	op controlOp
	s  *session
}

// Registry hands out sessions. Labels are reserved synchronously; the
// Dispatcher picks up attach and detach messages at the start of its next
// pass and is the only code that walks the live session list.
type Registry struct {
	mu      sync.Mutex
	labels  map[string]*session
	control *queue[control]
	logger  *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger. Defaults to slog.Default().
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		labels:  make(map[string]*session),
		control: newQueue[control](),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open creates a session. It fails with ErrSessionExists when label is in
// use.
func (r *Registry) Open(label string, format brp.Format) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.labels[label]; ok {
		return nil, fmt.Errorf("open %q: %w", label, ErrSessionExists)
	}
	s := newSession(label, format)
	r.labels[label] = s
	r.control.Push(control{op: opAttach, s: s})
	r.logger.Debug("session opened", "session", label, "format", format.String())
	return &Handle{s: s, registry: r}, nil
}

// MustOpen is Open that panics on error.
func (r *Registry) MustOpen(label string, format brp.Format) *Handle {
	h, err := r.Open(label, format)
	if err != nil {
		panic(err)
	}
	return h
}

// Close closes the session with the given label.
func (r *Registry) Close(label string) error {
	r.mu.Lock()
	s, ok := r.labels[label]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("close %q: %w", label, ErrSessionNotFound)
	}
	return r.close(s)
}

func (r *Registry) close(s *session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.labels[s.label]; !ok || cur != s {
		return fmt.Errorf("close %q: %w", s.label, ErrSessionClosed)
	}
	delete(r.labels, s.label)
	s.closing.Store(true)
	r.control.Push(control{op: opDetach, s: s})
	r.logger.Debug("session closed", "session", s.label)
	return nil
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.labels)
}

// Labels returns the labels of open sessions in no particular order.
func (r *Registry) Labels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.labels))
	for l := range r.labels {
		out = append(out, l)
	}
	return out
}

func (r *Registry) pending() []control {
	ops, _ := r.control.Drain()
	return ops
}
