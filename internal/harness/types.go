package harness

import "encoding/json"

// TraceEvent is one journaled exchange.
type TraceEvent struct {
	Seq      int64           `json:"seq"`
	Tick     uint64          `json:"tick"`
	Session  string          `json:"session"`
	Kind     string          `json:"-"`
	Request  json.RawMessage `json:"request"`
	Response json.RawMessage `json:"response"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds the journaled exchanges in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors describes each failure. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Entities is the number of live entities after the last step.
	Entities int `json:"entities"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
