package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoldenPing(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/ping.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass)
}

func TestTraceSnapshotIsStable(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/ping.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := TraceSnapshot{Scenario: s.Name, Trace: first.Trace}.Canonical()
	require.NoError(t, err)
	b, err := TraceSnapshot{Scenario: s.Name, Trace: second.Trace}.Canonical()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
