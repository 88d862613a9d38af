package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/brp/internal/brp"
	"github.com/roach88/brp/internal/codec"
	"github.com/roach88/brp/internal/demo"
	"github.com/roach88/brp/internal/engine"
	"github.com/roach88/brp/internal/names"
	"github.com/roach88/brp/internal/schema"
	"github.com/roach88/brp/internal/session"
	"github.com/roach88/brp/internal/store"
	"github.com/roach88/brp/internal/testutil"
	"github.com/roach88/brp/internal/world"
)

// epoch pins the dispatcher clock so journaled durations are zero.
var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness executes one scenario against a fresh engine and journal.
type Harness struct {
	engine   *engine.Engine
	registry *session.Registry
	journal  *store.Store
	logger   *slog.Logger

	handles  map[string]*session.Handle
	first    string
	answers  map[string]map[uint64]brp.Response
	expected []expectation
	sent     map[int]sentRequest
}

type sentRequest struct {
	session string
	id      uint64
}

type expectation struct {
	step    int
	session string
	id      uint64
	expect  Expect
}

// Run executes a scenario and returns the result. The error is non-nil
// only when the scenario could not be executed at all; failed
// expectations and assertions are reported in the result.
func Run(s *Scenario) (*Result, error) {
	return RunContext(context.Background(), s)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, s *Scenario) (*Result, error) {
	logger := testutil.DiscardLogger()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	defer st.Close()

	w, err := buildWorld(s, logger)
	if err != nil {
		return nil, err
	}

	reg := session.NewRegistry(session.WithRegistryLogger(logger))
	eng := engine.New(w, reg,
		engine.WithLogger(logger),
		engine.WithObserver(st),
		engine.WithDispatchOptions(session.WithNow(func() time.Time { return epoch })),
	)

	h := &Harness{
		engine:   eng,
		registry: reg,
		journal:  st,
		logger:   logger,
		handles:  make(map[string]*session.Handle),
		answers:  make(map[string]map[uint64]brp.Response),
		sent:     make(map[int]sentRequest),
	}
	for _, spec := range s.Sessions {
		if err := h.open(spec); err != nil {
			return nil, fmt.Errorf("failed to open session: %w", err)
		}
	}
	h.first = s.Sessions[0].Label

	result := NewResult()
	for i, step := range s.Steps {
		if err := h.execute(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	h.checkExpectations(result)

	exchanges, err := st.ReadExchanges(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	for _, ex := range exchanges {
		ev, err := NewTraceEvent(ex)
		if err != nil {
			return nil, err
		}
		result.Trace = append(result.Trace, ev)
	}
	result.Entities = w.Len()

	for _, msg := range EvaluateAssertions(result, s.Assertions, &AssertionContext{Store: st, Ctx: ctx}) {
		result.AddError(msg)
	}
	return result, nil
}

func buildWorld(s *Scenario, logger *slog.Logger) (*world.World, error) {
	var w *world.World
	if s.World == "empty" {
		w = world.New()
	} else {
		w = demo.New().World
	}
	if s.Schema == "" {
		return w, nil
	}
	sch, err := schema.Load(s.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	if _, err := sch.Apply(w, codec.New(logger), names.New()); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return w, nil
}

func (h *Harness) open(spec SessionSpec) error {
	format, err := brp.ParseFormat(spec.Format)
	if err != nil {
		return err
	}
	handle, err := h.registry.Open(spec.Label, format)
	if err != nil {
		return err
	}
	h.handles[spec.Label] = handle
	return nil
}

func (h *Harness) close(label string) error {
	handle, ok := h.handles[label]
	if !ok {
		return fmt.Errorf("close %q: %w", label, session.ErrSessionNotFound)
	}
	return handle.Close()
}

func (h *Harness) execute(ctx context.Context, index int, step Step, result *Result) error {
	switch {
	case step.Open != nil:
		h.checkLifecycle(index, "open", h.open(*step.Open), step.Expect, result)
	case step.Close != "":
		h.checkLifecycle(index, "close", h.close(step.Close), step.Expect, result)
	default:
		if err := h.send(index, step); err != nil {
			return err
		}
	}

	for n := 0; n < step.ticks(); n++ {
		h.engine.Tick(ctx)
		h.collect()
	}

	if step.Request != "" && step.Expect != nil && step.Expect.Pending {
		label, id := h.target(index, step)
		if _, ok := h.answers[label][id]; ok {
			result.AddError(fmt.Sprintf("steps[%d]: %s %d answered, expected it to be pending", index, step.Request, id))
		}
	}
	return nil
}

func (h *Harness) checkLifecycle(index int, op string, err error, expect *Expect, result *Result) {
	wantFail := expect != nil && expect.Fails
	switch {
	case wantFail && err == nil:
		result.AddError(fmt.Sprintf("steps[%d]: %s succeeded, expected it to fail", index, op))
	case !wantFail && err != nil:
		result.AddError(fmt.Sprintf("steps[%d]: %s failed: %v", index, op, err))
	}
}

func (h *Harness) target(index int, step Step) (string, uint64) {
	label := step.Session
	if label == "" {
		label = h.first
	}
	id := uint64(index + 1)
	if step.ID != nil {
		id = *step.ID
	}
	return label, id
}

func (h *Harness) send(index int, step Step) error {
	label, id := h.target(index, step)
	handle, ok := h.handles[label]
	if !ok {
		return fmt.Errorf("unknown session %q", label)
	}
	params := step.Params
	if step.WatermarkFrom != nil {
		wm, err := h.watermark(*step.WatermarkFrom - 1)
		if err != nil {
			return err
		}
		params = make(map[string]any, len(step.Params)+1)
		for k, v := range step.Params {
			params[k] = v
		}
		params["watermark"] = wm
	}
	req, err := buildRequest(id, step.Request, params)
	if err != nil {
		return err
	}
	h.sent[index] = sentRequest{session: label, id: id}
	if err := handle.Send(req); err != nil {
		if errors.Is(err, session.ErrSessionClosed) {
			return fmt.Errorf("session %q is closed", label)
		}
		return err
	}
	if step.Expect != nil {
		h.expected = append(h.expected, expectation{step: index, session: label, id: id, expect: *step.Expect})
	}
	return nil
}

func (h *Harness) watermark(step int) (uint64, error) {
	t, ok := h.sent[step]
	if !ok {
		return 0, fmt.Errorf("watermark_from: step %d sent no request", step+1)
	}
	resp, ok := h.answers[t.session][t.id]
	if !ok {
		return 0, fmt.Errorf("watermark_from: step %d is unanswered", step+1)
	}
	poll, ok := resp.Content.(brp.PollResult)
	if !ok {
		return 0, fmt.Errorf("watermark_from: step %d answered %s", step+1, resp.Content.Tag())
	}
	return poll.Watermark, nil
}

// buildRequest decodes the step through the wire format, so scenario
// params are checked exactly like client input.
func buildRequest(id uint64, kind string, params map[string]any) (brp.Request, error) {
	envelope := map[string]any{"id": id, "request": kind}
	if params != nil {
		envelope["params"] = params
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return brp.Request{}, fmt.Errorf("encode %s: %w", kind, err)
	}
	var req brp.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return brp.Request{}, fmt.Errorf("decode %s: %w", kind, err)
	}
	return req, nil
}

func (h *Harness) collect() {
	labels := make([]string, 0, len(h.handles))
	for l := range h.handles {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	for _, l := range labels {
		for {
			resp, ok := h.handles[l].TryRecv()
			if !ok {
				break
			}
			if h.answers[l] == nil {
				h.answers[l] = make(map[uint64]brp.Response)
			}
			h.answers[l][resp.ID] = resp
		}
	}
}

func (h *Harness) checkExpectations(result *Result) {
	for _, exp := range h.expected {
		resp, ok := h.answers[exp.session][exp.id]
		if !ok {
			if !exp.expect.Pending {
				result.AddError(fmt.Sprintf("steps[%d]: no response for id %d on %s", exp.step, exp.id, exp.session))
			}
			continue
		}
		if err := matchResponse(resp, exp.expect); err != nil {
			result.AddError(fmt.Sprintf("steps[%d]: %v", exp.step, err))
		}
	}
}

func matchResponse(resp brp.Response, e Expect) error {
	tag := resp.Content.Tag()
	want := e.Response
	if e.Error != "" {
		want = "Error"
	}
	if want != "" && tag != want {
		return fmt.Errorf("response %s, expected %s (%s)", tag, want, describe(resp))
	}
	if e.Error != "" && string(resp.Err().Code) != e.Error {
		return fmt.Errorf("error %s, expected %s", resp.Err().Code, e.Error)
	}
	if e.Content == nil {
		return nil
	}

	actual, err := normalize(resp.Content)
	if err != nil {
		return err
	}
	expected, err := normalize(e.Content)
	if err != nil {
		return err
	}
	if !subset(actual, expected) {
		return fmt.Errorf("content %s does not contain %s", mustJSON(actual), mustJSON(expected))
	}
	return nil
}

func describe(resp brp.Response) string {
	if e := resp.Err(); e != nil {
		return e.Error()
	}
	return "ok"
}

// NewTraceEvent encodes a journaled exchange in wire form.
func NewTraceEvent(ex session.Exchange) (TraceEvent, error) {
	req, err := json.Marshal(ex.Request)
	if err != nil {
		return TraceEvent{}, fmt.Errorf("trace seq %d: %w", ex.Seq, err)
	}
	resp, err := json.Marshal(ex.Response)
	if err != nil {
		return TraceEvent{}, fmt.Errorf("trace seq %d: %w", ex.Seq, err)
	}
	return TraceEvent{
		Seq:      ex.Seq,
		Tick:     ex.Tick,
		Session:  ex.Session,
		Kind:     string(ex.Request.Kind()),
		Request:  req,
		Response: resp,
	}, nil
}
