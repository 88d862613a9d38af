package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/brp/internal/session"
	"github.com/roach88/brp/internal/world"
)

// DefaultTickRate is the interval between ticks in Run.
const DefaultTickRate = time.Second / 60

// System is a stage that runs after remote dispatch on every tick.
type System struct {
	Name string
	Run  func(ctx context.Context, w *world.World) error
}

// TickStats summarises one tick.
type TickStats struct {
	Tick      int64
	Responses int
	Failed    int
}

// Engine owns the world and runs the tick loop.
//
// Thread-safety model:
//   - Tick and Run must be called from exactly one goroutine.
//   - Registry and Clock are safe from any goroutine.
type Engine struct {
	world      *world.World
	registry   *session.Registry
	dispatcher *session.Dispatcher
	clock      *Clock
	systems    []System
	tickRate   time.Duration
	logger     *slog.Logger
	onTick     []func(TickStats)

	dispatchOpts []session.Option
}

// Option configures an Engine.
type Option func(*Engine)

// WithTickRate sets the interval between ticks in Run.
func WithTickRate(d time.Duration) Option {
	return func(e *Engine) { e.tickRate = d }
}

// WithObserver adds an exchange observer to the dispatcher.
func WithObserver(o session.Observer) Option {
	return func(e *Engine) { e.dispatchOpts = append(e.dispatchOpts, session.WithObserver(o)) }
}

// WithDispatchOptions passes options through to the dispatcher.
func WithDispatchOptions(opts ...session.Option) Option {
	return func(e *Engine) { e.dispatchOpts = append(e.dispatchOpts, opts...) }
}

// WithLogger sets the logger used by the engine and its dispatcher.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithSystem appends a system. Systems run in the order they are added.
func WithSystem(name string, run func(ctx context.Context, w *world.World) error) Option {
	return func(e *Engine) { e.systems = append(e.systems, System{Name: name, Run: run}) }
}

// WithClock sets the tick clock, for example to resume from a known tick.
func WithClock(c *Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// OnTick registers a callback run at the end of every tick.
func OnTick(fn func(TickStats)) Option {
	return func(e *Engine) { e.onTick = append(e.onTick, fn) }
}

// New creates an engine serving the sessions of r against w.
func New(w *world.World, r *session.Registry, opts ...Option) *Engine {
	e := &Engine{
		world:    w,
		registry: r,
		clock:    NewClock(),
		tickRate: DefaultTickRate,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	dispatchOpts := append([]session.Option{session.WithLogger(e.logger)}, e.dispatchOpts...)
	e.dispatcher = session.NewDispatcher(r, w, dispatchOpts...)
	return e
}

// World returns the world. Only touch it from the tick goroutine.
func (e *Engine) World() *world.World { return e.world }

// Registry returns the session registry transports open sessions on.
func (e *Engine) Registry() *session.Registry { return e.registry }

// Dispatcher returns the remote dispatch stage.
func (e *Engine) Dispatcher() *session.Dispatcher { return e.dispatcher }

// Clock returns the tick clock.
func (e *Engine) Clock() *Clock { return e.clock }

// Tick runs one tick: remote dispatch, then every system. A failing system
// is logged and the remaining systems still run.
func (e *Engine) Tick(ctx context.Context) TickStats {
	stats := TickStats{Tick: e.clock.Next()}
	stats.Responses = e.dispatcher.Process(ctx, uint64(stats.Tick))

	for _, sys := range e.systems {
		if err := e.runSystem(ctx, stats.Tick, sys); err != nil {
			stats.Failed++
			e.logger.Error("system failed",
				"system", sys.Name,
				"tick", stats.Tick,
				"error", err,
			)
		}
	}
	for _, fn := range e.onTick {
		fn(stats)
	}
	return stats
}

func (e *Engine) runSystem(ctx context.Context, tick int64, sys System) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &SystemError{System: sys.Name, Tick: tick, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := sys.Run(ctx, e.world); err != nil {
		return &SystemError{System: sys.Name, Tick: tick, Err: err}
	}
	return nil
}

// Run ticks on a fixed interval until ctx is cancelled. It returns
// ctx.Err().
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "tick_rate", e.tickRate)

	ticker := time.NewTicker(e.tickRate)
	defer ticker.Stop()

	for {
		e.Tick(ctx)
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping", "tick", e.clock.Current())
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
