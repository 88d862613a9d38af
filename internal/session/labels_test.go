package session

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Labels(t *testing.T) {
	var gen LabelGenerator = UUIDv7Labels{}
	a, b := gen.Generate(), gen.Generate()

	assert.NotEqual(t, a, b)
	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestSequenceLabels(t *testing.T) {
	var gen LabelGenerator = NewSequenceLabels("ws")
	assert.Equal(t, "ws-1", gen.Generate())
	assert.Equal(t, "ws-2", gen.Generate())
}
