package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenarioDefaults(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: minimal
description: d
steps:
  - request: Ping
`))
	require.NoError(t, err)
	assert.Equal(t, []SessionSpec{{Label: DefaultSession}}, s.Sessions)
	assert.Equal(t, 1, s.Steps[0].ticks())
	assert.Empty(t, s.World)
}

func TestParseScenarioErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown field", "name: n\ndescription: d\nassertion: []\nsteps: [{request: Ping}]", "field assertion not found"},
		{"missing name", "description: d\nsteps: [{request: Ping}]", "name is required"},
		{"missing description", "name: n\nsteps: [{request: Ping}]", "description is required"},
		{"no steps", "name: n\ndescription: d", "steps list is required"},
		{"bad world", "name: n\ndescription: d\nworld: mars\nsteps: [{request: Ping}]", `world "mars"`},
		{"bad session format", "name: n\ndescription: d\nsessions: [{label: a, format: XML}]\nsteps: [{request: Ping}]", "sessions[0]"},
		{"unlabelled session", "name: n\ndescription: d\nsessions: [{format: RON}]\nsteps: [{request: Ping}]", "label is required"},
		{"empty step", "name: n\ndescription: d\nsteps: [{ticks: 1}]", "exactly one of request, open or close"},
		{"two actions", "name: n\ndescription: d\nsteps: [{request: Ping, close: client}]", "exactly one of request, open or close"},
		{"negative ticks", "name: n\ndescription: d\nsteps: [{request: Ping, ticks: -1}]", "ticks must be non-negative"},
		{"watermark on ping", "name: n\ndescription: d\nsteps: [{request: Ping, watermark_from: 1}]", "watermark_from applies to PollEntities"},
		{"watermark from later step", "name: n\ndescription: d\nsteps: [{request: PollEntities, watermark_from: 1}]", "must name an earlier step"},
		{"fails on request", "name: n\ndescription: d\nsteps: [{request: Ping, expect: {fails: true}}]", "fails applies to open and close"},
		{"response on close", "name: n\ndescription: d\nsteps: [{close: client, expect: {response: OK}}]", "only support fails"},
		{"contradicting expect", "name: n\ndescription: d\nsteps: [{request: Ping, expect: {response: OK, error: EntityNotFound}}]", "contradicts"},
		{"assertion without type", "name: n\ndescription: d\nsteps: [{request: Ping}]\nassertions: [{count: 1}]", "type is required"},
		{"unknown assertion", "name: n\ndescription: d\nsteps: [{request: Ping}]\nassertions: [{type: vibes}]", `unknown assertion type "vibes"`},
		{"trace_order without requests", "name: n\ndescription: d\nsteps: [{request: Ping}]\nassertions: [{type: trace_order}]", "requests list is required"},
		{"final_state without table", "name: n\ndescription: d\nsteps: [{request: Ping}]\nassertions: [{type: final_state, expect: {a: 1}}]", "table is required"},
		{"final_state without expect", "name: n\ndescription: d\nsteps: [{request: Ping}]\nassertions: [{type: final_state, table: sessions}]", "expect is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenarioResolvesSchema(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/arena.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "scenarios", "arena.cue"), s.Schema)
}

func TestLoadScenarioErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadScenario(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: n
description: d
schema: nowhere.cue
steps:
  - request: Ping
`), 0o644))
	_, err = LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")
}
