package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/brp/internal/brp"
	"github.com/roach88/brp/internal/codec"
	"github.com/roach88/brp/internal/names"
	"github.com/roach88/brp/internal/query"
	"github.com/roach88/brp/internal/world"
)

// Dispatcher answers session requests against a world.
//
// Process must be called from the goroutine that owns the world, once per
// simulation tick and before any other system runs, so that client
// mutations are visible to the rest of the tick.
type Dispatcher struct {
	registry  *Registry
	world     *world.World
	names     *names.Cache
	codec     *codec.Codec
	observers []Observer
	seq       Sequencer
	logger    *slog.Logger
	now       func() time.Time

	// Live sessions in attach order. Only Process touches it.
	sessions []*session
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithObserver adds an observer. Observers run in the order added.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observers = append(d.observers, o) }
}

// WithSequencer sets the source of exchange sequence numbers.
func WithSequencer(s Sequencer) Option {
	return func(d *Dispatcher) { d.seq = s }
}

// WithNames shares a name cache.
func WithNames(c *names.Cache) Option {
	return func(d *Dispatcher) { d.names = c }
}

// WithCodec sets the codec. Defaults to one logging to the dispatcher's
// logger.
func WithCodec(c *codec.Codec) Option {
	return func(d *Dispatcher) { d.codec = c }
}

// WithNow sets the time source used for exchange durations.
func WithNow(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

type counter struct{ n atomic.Int64 }

func (c *counter) Next() int64 { return c.n.Add(1) }

// NewDispatcher returns a dispatcher serving the sessions of r against w.
func NewDispatcher(r *Registry, w *world.World, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: r,
		world:    w,
		seq:      &counter{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.names == nil {
		d.names = names.New()
	}
	if d.codec == nil {
		d.codec = codec.New(d.logger)
	}
	return d
}

// Names returns the dispatcher's name cache.
func (d *Dispatcher) Names() *names.Cache { return d.names }

// Sessions returns the number of sessions attached as of the last pass.
func (d *Dispatcher) Sessions() int { return len(d.sessions) }

// Parked returns the number of polls waiting for their results to change.
func (d *Dispatcher) Parked() int {
	n := 0
	for _, s := range d.sessions {
		n += len(s.parked)
	}
	return n
}

// Process runs one dispatch pass and returns the number of responses
// published.
//
// For every session in attach order it re-checks parked polls, drains the
// request queue without blocking and answers each request in FIFO order.
// A closed queue on an attached session means a transport outlived its
// session; that is a broken invariant and Process panics.
func (d *Dispatcher) Process(ctx context.Context, tick uint64) int {
	d.applyControl()

	published := 0
	for _, s := range d.sessions {
		published += d.processSession(ctx, tick, s)
	}
	return published
}

func (d *Dispatcher) applyControl() {
	for _, c := range d.registry.pending() {
		switch c.op {
		case opAttach:
			d.sessions = append(d.sessions, c.s)
		case opDetach:
			for i, s := range d.sessions {
				if s == c.s {
					d.sessions = append(d.sessions[:i], d.sessions[i+1:]...)
					break
				}
			}
			if n := len(c.s.parked); n > 0 {
				d.logger.Debug("dropping parked polls", "session", c.s.label, "count", n)
			}
			c.s.parked = nil
			c.s.requests.Close()
			c.s.responses.Close()
		}
	}
}

func (d *Dispatcher) processSession(ctx context.Context, tick uint64, s *session) int {
	published := 0
	env := query.Env{World: d.world, Names: d.names, Codec: d.codec, Format: s.format}

	if len(s.parked) > 0 {
		kept := s.parked[:0]
		for _, p := range s.parked {
			if p.tick == d.world.ChangeTick() {
				kept = append(kept, p)
				continue
			}
			content, wait, err := d.poll(env, p)
			if wait {
				kept = append(kept, p)
				continue
			}
			d.publish(ctx, tick, s, p.req, d.respond(s, p.req, content, err), p.received)
			published++
		}
		s.parked = kept
	}

	reqs, ok := s.requests.Drain()
	if !ok {
		panic(fmt.Sprintf("session %q: request queue disconnected", s.label))
	}
	for _, req := range reqs {
		received := d.now()
		d.logger.Debug("request received", "session", s.label, "id", req.ID, "kind", req.Kind())

		if c, isPoll := req.Content.(brp.PollEntities); isPoll {
			content, parked, err := d.startPoll(env, s, req, c, received)
			if parked {
				continue
			}
			d.publish(ctx, tick, s, req, d.respond(s, req, content, err), received)
			published++
			continue
		}

		content, err := d.handle(env, req)
		d.publish(ctx, tick, s, req, d.respond(s, req, content, err), received)
		published++
	}
	return published
}

func (d *Dispatcher) respond(s *session, req brp.Request, content brp.ResponseContent, err error) brp.Response {
	if err != nil {
		if _, ok := brp.AsError(err); !ok {
			d.logger.Error("request failed",
				"session", s.label,
				"id", req.ID,
				"kind", req.Kind(),
				"error", err,
			)
		}
		return brp.ResponseFromError(req.ID, err)
	}
	if !brp.Matches(req.Kind(), content) {
		d.logger.Error("response does not match request kind",
			"session", s.label,
			"id", req.ID,
			"kind", req.Kind(),
			"content", fmt.Sprintf("%T", content),
		)
		return brp.NewResponse(req.ID, brp.NewError(brp.CodeInternalError))
	}
	return brp.NewResponse(req.ID, content)
}

func (d *Dispatcher) publish(ctx context.Context, tick uint64, s *session, req brp.Request, resp brp.Response, received time.Time) {
	if !s.responses.Push(resp) {
		panic(fmt.Sprintf("session %q: response queue disconnected", s.label))
	}
	if len(d.observers) == 0 {
		return
	}
	ex := Exchange{
		Seq:      d.seq.Next(),
		Tick:     tick,
		Session:  s.label,
		Format:   s.format,
		Request:  req,
		Response: resp,
		Duration: d.now().Sub(received),
	}
	for _, o := range d.observers {
		if err := o.Observe(ctx, ex); err != nil {
			d.logger.Warn("observer failed",
				"session", s.label,
				"seq", ex.Seq,
				"error", err,
			)
		}
	}
}

// startPoll answers a PollEntities request or parks it.
func (d *Dispatcher) startPoll(env query.Env, s *session, req brp.Request, c brp.PollEntities, received time.Time) (brp.ResponseContent, bool, error) {
	p := &parkedPoll{req: req, poll: c, received: received}
	if c.Watermark != nil {
		if *c.Watermark == 0 {
			return nil, false, brp.NewError(brp.CodeInvalidWatermark)
		}
		p.watermark = *c.Watermark
	}
	content, wait, err := d.poll(env, p)
	if wait {
		s.parked = append(s.parked, p)
		d.logger.Debug("poll parked", "session", s.label, "id", req.ID, "watermark", p.watermark)
	}
	return content, wait, err
}

// poll evaluates a poll. wait is true while the result set still has the
// poll's watermark.
func (d *Dispatcher) poll(env query.Env, p *parkedPoll) (content brp.ResponseContent, wait bool, err error) {
	results, err := query.Execute(env, p.poll.Data, p.poll.Filter, nil)
	if err != nil {
		return nil, false, err
	}
	mark, err := query.Watermark(results)
	if err != nil {
		return nil, false, err
	}
	if mark == p.watermark {
		p.tick = d.world.ChangeTick()
		return nil, true, nil
	}
	return brp.PollResult{Entities: results, Watermark: mark}, false, nil
}
