package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trace(kinds ...string) []TraceEvent {
	out := make([]TraceEvent, len(kinds))
	for i, k := range kinds {
		out[i] = TraceEvent{
			Seq:      int64(i + 1),
			Session:  DefaultSession,
			Kind:     k,
			Request:  []byte(`{"id":1,"request":"` + k + `"}`),
			Response: []byte(`{"id":1,"response":"OK"}`),
		}
	}
	return out
}

func TestAssertTraceOrder(t *testing.T) {
	tr := trace("Ping", "SpawnEntity", "Ping", "QueryEntities")

	tests := []struct {
		name     string
		requests []string
		want     string
	}{
		{"in order", []string{"Ping", "SpawnEntity", "QueryEntities"}, ""},
		{"gaps allowed", []string{"Ping", "QueryEntities"}, ""},
		{"out of order", []string{"QueryEntities", "SpawnEntity"}, "should be before"},
		{"missing", []string{"Ping", "DestroyEntity"}, "missing request: DestroyEntity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceOrder(tr, Assertion{Type: AssertTraceOrder, Requests: tt.requests})
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, err.Error(), "Full trace:")
		})
	}
}

func TestAssertTraceCount(t *testing.T) {
	tr := trace("Ping", "SpawnEntity", "Ping")

	assert.NoError(t, assertTraceCount(tr, Assertion{Request: "Ping", Count: 2}))
	assert.NoError(t, assertTraceCount(tr, Assertion{Request: "GetAsset", Count: 0}))

	err := assertTraceCount(tr, Assertion{Request: "SpawnEntity", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 occurrences")
}

func TestAssertTraceContains(t *testing.T) {
	tr := []TraceEvent{{
		Seq:      1,
		Session:  "a",
		Kind:     "DestroyEntity",
		Request:  []byte(`{"id":1,"request":"DestroyEntity","params":{"entity":3}}`),
		Response: []byte(`{"id":1,"response":"OK"}`),
	}}

	tests := []struct {
		name string
		a    Assertion
		ok   bool
	}{
		{"kind only", Assertion{Request: "DestroyEntity"}, true},
		{"matching params", Assertion{Request: "DestroyEntity", Params: map[string]any{"entity": 3}}, true},
		{"other params", Assertion{Request: "DestroyEntity", Params: map[string]any{"entity": 4}}, false},
		{"other session", Assertion{Request: "DestroyEntity", Session: "b"}, false},
		{"other kind", Assertion{Request: "Ping"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceContains(tr, tt.a)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSubset(t *testing.T) {
	actual, err := normalize(map[string]any{
		"entity": 1,
		"components": map[string]any{
			"Health": map[string]any{"JSON": `{"current":1}`},
			"Name":   map[string]any{"JSON": `"x"`},
		},
		"list": []any{1, 2},
	})
	require.NoError(t, err)

	tests := []struct {
		name     string
		expected any
		want     bool
	}{
		{"empty object", map[string]any{}, true},
		{"partial object", map[string]any{"entity": 1}, true},
		{"nested", map[string]any{"components": map[string]any{"Name": map[string]any{"JSON": `"x"`}}}, true},
		{"wrong scalar", map[string]any{"entity": 2}, false},
		{"missing key", map[string]any{"has": map[string]any{}}, false},
		{"equal list", map[string]any{"list": []any{1, 2}}, true},
		{"short list", map[string]any{"list": []any{1}}, false},
		{"type mismatch", map[string]any{"entity": "1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expected, err := normalize(tt.expected)
			require.NoError(t, err)
			assert.Equal(t, tt.want, subset(actual, expected))
		})
	}
}

func TestStateValuesEqual(t *testing.T) {
	tests := []struct {
		name     string
		expected any
		actual   any
		want     bool
	}{
		{"string", "a", "a", true},
		{"bytes as string", "a", []byte("a"), true},
		{"int", 3, int64(3), true},
		{"int mismatch", 3, int64(4), false},
		{"int64", int64(3), int64(3), true},
		{"bool", true, int64(1), true},
		{"false", false, int64(0), true},
		{"float", 1.5, 1.5, true},
		{"nil", nil, nil, true},
		{"nil against value", nil, "x", false},
		{"string against int", "3", int64(3), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stateValuesEqual(tt.expected, tt.actual))
		})
	}
}

func TestBuildWhereClause(t *testing.T) {
	sql, args, err := buildWhereClause(map[string]any{"session": "a", "error_code": nil, "tick": 2})
	require.NoError(t, err)
	assert.Equal(t, "error_code IS NULL AND session = ? AND tick = ?", sql)
	assert.Equal(t, []any{"a", 2}, args)

	sql, args, err = buildWhereClause(nil)
	require.NoError(t, err)
	assert.Empty(t, sql)
	assert.Nil(t, args)

	_, _, err = buildWhereClause(map[string]any{"kind; DROP TABLE sessions": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid column name")
}

func TestFinalStateFailures(t *testing.T) {
	tests := []struct {
		name      string
		assertion string
		want      string
	}{
		{"invalid table", "{type: final_state, table: 'sessions;', expect: {label: client}}", "invalid table name"},
		{"unknown table", "{type: final_state, table: nowhere, expect: {label: client}}", "query error"},
		{"no row", "{type: final_state, table: exchanges, where: {kind: GetAsset}, expect: {seq: 1}}", "row not found"},
		{"ambiguous", "{type: final_state, table: exchanges, where: {kind: Ping}, expect: {seq: 1}}", "multiple rows matched"},
		{"unknown column", "{type: final_state, table: exchanges, where: {seq: 1}, expect: {color: red}}", `field "color" not present`},
		{"wrong value", "{type: final_state, table: exchanges, where: {seq: 1}, expect: {tick: 9}}", `field "tick" = 9`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := runYAML(t, `
name: f
description: d
steps:
  - request: Ping
  - request: Ping
assertions:
  - `+tt.assertion+`
`)
			assert.False(t, result.Pass)
			assert.Contains(t, strings.Join(result.Errors, "\n"), tt.want)
		})
	}
}

func TestEvaluateAssertionsWithoutJournal(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertFinalState, Table: "sessions", Expect: map[string]any{"label": "x"}},
		{Type: AssertEntityCount, Count: 0},
	}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "requires a journal")
}
