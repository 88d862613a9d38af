package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/brp/internal/brp"
	"github.com/roach88/brp/internal/demo"
	"github.com/roach88/brp/internal/session"
	"github.com/roach88/brp/internal/testutil"
	"github.com/roach88/brp/internal/world"
)

func newEngine(t *testing.T, opts ...Option) (*Engine, *demo.World) {
	t.Helper()
	d := demo.New()
	reg := session.NewRegistry(session.WithRegistryLogger(testutil.DiscardLogger()))
	opts = append([]Option{WithLogger(testutil.DiscardLogger())}, opts...)
	return New(d.World, reg, opts...), d
}

func TestTickDispatchesBeforeSystems(t *testing.T) {
	var (
		seen []demo.Health
		d    *demo.World
	)
	e, d := newEngine(t, WithSystem("inspect", func(_ context.Context, w *world.World) error {
		v, _ := w.Get(d.Enemy, d.Health)
		seen = append(seen, v.(demo.Health))
		return nil
	}))
	h := e.Registry().MustOpen("T", brp.FormatJSON)

	require.NoError(t, h.Send(brp.Request{ID: 1, Content: brp.InsertComponent{
		Entity:     brp.EntityID(d.Enemy),
		Components: brp.ComponentMap{"Health": brp.JSON(`{"current":7,"max":8}`)},
	}}))
	stats := e.Tick(context.Background())

	assert.Equal(t, TickStats{Tick: 1, Responses: 1}, stats)
	assert.Equal(t, []demo.Health{{Current: 7, Max: 8}}, seen, "systems see mutations from the same tick")
}

func TestFailingSystemDoesNotStopTick(t *testing.T) {
	var ran []string
	e, _ := newEngine(t,
		WithSystem("broken", func(context.Context, *world.World) error {
			ran = append(ran, "broken")
			return errors.New("boom")
		}),
		WithSystem("panics", func(context.Context, *world.World) error {
			ran = append(ran, "panics")
			panic("bad state")
		}),
		WithSystem("fine", func(context.Context, *world.World) error {
			ran = append(ran, "fine")
			return nil
		}),
	)

	stats := e.Tick(context.Background())
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, []string{"broken", "panics", "fine"}, ran)
}

func TestSystemError(t *testing.T) {
	cause := errors.New("boom")
	err := &SystemError{System: "physics", Tick: 3, Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "system physics failed at tick 3: boom", err.Error())
}

func TestRunTicksUntilCancelled(t *testing.T) {
	ticks := make(chan TickStats, 100)
	e, _ := newEngine(t,
		WithTickRate(time.Millisecond),
		OnTick(func(s TickStats) {
			select {
			case ticks <- s:
			default:
			}
		}),
	)
	h := e.Registry().MustOpen("T", brp.FormatJSON)
	require.NoError(t, h.Send(brp.Request{ID: 5, Content: brp.Ping{}}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	resp, err := h.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, brp.NewResponse(5, brp.OK{}), resp)

	for i := 0; i < 3; i++ {
		select {
		case <-ticks:
		case <-time.After(time.Second):
			t.Fatal("engine stopped ticking")
		}
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.GreaterOrEqual(t, e.Clock().Current(), int64(3))
}

func TestObserverOption(t *testing.T) {
	var n int
	e, _ := newEngine(t, WithObserver(session.ObserverFunc(func(context.Context, session.Exchange) error {
		n++
		return nil
	})))
	h := e.Registry().MustOpen("T", brp.FormatJSON)
	require.NoError(t, h.Send(brp.Request{ID: 1, Content: brp.Ping{}}))

	e.Tick(context.Background())
	assert.Equal(t, 1, n)
}
