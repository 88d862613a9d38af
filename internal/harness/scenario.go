package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/brp/internal/brp"
)

// Scenario is a conformance test: sessions, a sequence of steps, and
// assertions over the resulting journal and world.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// World selects the starting world: "demo" (default) or "empty".
	World string `yaml:"world,omitempty"`

	// Schema is an optional CUE schema applied to the world before the
	// first step. Relative paths resolve against the scenario file.
	Schema string `yaml:"schema,omitempty"`

	// Sessions are opened before the first step. Defaults to a single
	// JSON session labelled "client".
	Sessions []SessionSpec `yaml:"sessions,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// SessionSpec names a session and its format.
type SessionSpec struct {
	Label  string `yaml:"label"`
	Format string `yaml:"format,omitempty"`
}

// Step does exactly one of: send a request, open a session, close a session.
type Step struct {
	// Session receives the request. Defaults to the first scenario session.
	Session string `yaml:"session,omitempty"`

	// ID is the request id. Defaults to the step's 1-based index.
	ID *uint64 `yaml:"id,omitempty"`

	Request string         `yaml:"request,omitempty"`
	Params  map[string]any `yaml:"params,omitempty"`

	// WatermarkFrom copies the watermark answered to an earlier
	// PollEntities step (1-based) into params.
	WatermarkFrom *int `yaml:"watermark_from,omitempty"`

	Open  *SessionSpec `yaml:"open,omitempty"`
	Close string       `yaml:"close,omitempty"`

	// Ticks is the number of engine ticks run after the step. Defaults to 1.
	Ticks *int `yaml:"ticks,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the answer to a step.
type Expect struct {
	// Response is the expected response tag, e.g. OK or GetEntity.
	Response string `yaml:"response,omitempty"`

	// Error is the expected error code. It implies Response: Error.
	Error string `yaml:"error,omitempty"`

	// Content is matched as a subset of the response content's JSON.
	Content any `yaml:"content,omitempty"`

	// Pending asserts that the request is still unanswered after the
	// step's ticks. The other fields apply once it is answered.
	Pending bool `yaml:"pending,omitempty"`

	// Fails asserts that an open or close step returns an error.
	Fails bool `yaml:"fails,omitempty"`
}

// Assertion checks the journal or world after the last step.
type Assertion struct {
	Type string `yaml:"type"`

	// Request is the request kind (trace_contains, trace_count).
	Request string `yaml:"request,omitempty"`

	// Session restricts trace_contains to one session.
	Session string `yaml:"session,omitempty"`

	// Params is matched as a subset of the request params (trace_contains).
	Params map[string]any `yaml:"params,omitempty"`

	// Requests is the expected answer order (trace_order).
	Requests []string `yaml:"requests,omitempty"`

	// Count is the expected number of exchanges or entities.
	Count int `yaml:"count,omitempty"`

	// Table, Where and Expect query the journal (final_state).
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertEntityCount   = "entity_count"
)

// DefaultSession is the label of the implicit session.
const DefaultSession = "client"

// LoadScenario reads and validates a scenario file. Unknown fields are
// errors, so typos such as "assertion:" are caught.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if s.Schema != "" && !filepath.IsAbs(s.Schema) {
		s.Schema = filepath.Join(filepath.Dir(path), s.Schema)
	}
	if s.Schema != "" {
		if _, err := os.Stat(s.Schema); err != nil {
			return nil, fmt.Errorf("invalid scenario: schema: %w", err)
		}
	}
	return s, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(s.Sessions) == 0 {
		s.Sessions = []SessionSpec{{Label: DefaultSession}}
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	switch s.World {
	case "", "demo", "empty":
	default:
		return fmt.Errorf("world %q must be demo or empty", s.World)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, spec := range s.Sessions {
		if err := validateSession(spec); err != nil {
			return fmt.Errorf("sessions[%d]: %w", i, err)
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if from := step.WatermarkFrom; from != nil && (*from < 1 || *from > i) {
			return fmt.Errorf("steps[%d]: watermark_from %d must name an earlier step", i, *from)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateSession(spec SessionSpec) error {
	if spec.Label == "" {
		return fmt.Errorf("label is required")
	}
	if _, err := brp.ParseFormat(spec.Format); err != nil {
		return err
	}
	return nil
}

func validateStep(step Step) error {
	actions := 0
	if step.Request != "" {
		actions++
	}
	if step.Open != nil {
		actions++
		if err := validateSession(*step.Open); err != nil {
			return fmt.Errorf("open: %w", err)
		}
	}
	if step.Close != "" {
		actions++
	}
	if actions != 1 {
		return fmt.Errorf("exactly one of request, open or close is required")
	}
	if step.WatermarkFrom != nil && step.Request != "PollEntities" {
		return fmt.Errorf("watermark_from applies to PollEntities")
	}
	if step.Ticks != nil && *step.Ticks < 0 {
		return fmt.Errorf("ticks must be non-negative")
	}
	if step.Expect == nil {
		return nil
	}

	e := step.Expect
	if step.Request == "" {
		if e.Response != "" || e.Error != "" || e.Content != nil || e.Pending {
			return fmt.Errorf("expect: open and close steps only support fails")
		}
		return nil
	}
	if e.Fails {
		return fmt.Errorf("expect: fails applies to open and close steps")
	}
	if e.Error != "" && e.Response != "" && e.Response != "Error" {
		return fmt.Errorf("expect: error %s contradicts response %s", e.Error, e.Response)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		if a.Request == "" {
			return fmt.Errorf("request is required for trace_contains")
		}
	case AssertTraceOrder:
		if len(a.Requests) == 0 {
			return fmt.Errorf("requests list is required for trace_order")
		}
	case AssertTraceCount:
		if a.Request == "" {
			return fmt.Errorf("request is required for trace_count")
		}
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for trace_count")
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("table is required for final_state")
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("expect is required for final_state")
		}
	case AssertEntityCount:
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for entity_count")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// ticks returns the number of engine ticks to run after the step.
func (s Step) ticks() int {
	if s.Ticks == nil {
		return 1
	}
	return *s.Ticks
}
