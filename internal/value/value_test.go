package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePreservesNumbers(t *testing.T) {
	v, err := Parse([]byte(`{"big":18446744073709551615,"f":1.50,"list":[true,null,"s"]}`))
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, Number("18446744073709551615"), obj["big"])
	assert.Equal(t, Number("1.50"), obj["f"])
	assert.Equal(t, Array{Bool(true), Null{}, String("s")}, obj["list"])
}

func TestParseRejectsTrailingData(t *testing.T) {
	_, err := Parse([]byte(`{} {}`))
	assert.Error(t, err)
}

func TestMarshalSortsKeys(t *testing.T) {
	v := Object{"b": Int(2), "a": Array{String("x")}, "c": Null{}}
	data, err := Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":["x"],"b":2,"c":null}`, string(data))
}

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		want  string
	}{
		{"integral float collapses", Number("2.0"), `2`},
		{"float keeps fraction", Number("0.50"), `0.5`},
		{"exponent", Number("1e3"), `1000`},
		{"html not escaped", String("<a&b>"), `"<a&b>"`},
		{"control escaped", String("a\nb\x01"), `"a\nb\u0001"`},
		{"nfc normalised", String("e\u0301"), "\"\u00e9\""},
		{"utf16 key order", Object{"\U0001F600": Int(1), "￿": Int(2)}, "{\"\U0001F600\":1,\"￿\":2}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Number("1"), Number("1.0")))
	assert.True(t, Equal(Object{"a": Array{Int(1)}}, Object{"a": Array{Number("1e0")}}))
	assert.False(t, Equal(Object{"a": Int(1)}, Object{"a": Int(1), "b": Null{}}))
	assert.False(t, Equal(String("1"), Number("1")))
	assert.False(t, Equal(Array{Int(1)}, Array{Int(1), Int(2)}))
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint(DomainWatermark, Object{"x": Int(1), "y": Int(2)})
	require.NoError(t, err)
	b, err := Fingerprint(DomainWatermark, Object{"y": Number("2.0"), "x": Int(1)})
	require.NoError(t, err)
	c, err := Fingerprint(DomainTranscript, Object{"x": Int(1), "y": Int(2)})
	require.NoError(t, err)

	assert.NotZero(t, a)
	assert.Equal(t, a, b, "canonical form ignores key order and number spelling")
	assert.NotEqual(t, a, c, "domains separate digests")

	h, err := Hash(DomainWatermark, Null{})
	require.NoError(t, err)
	assert.Len(t, h, 64)
}

func TestToAnyFromAny(t *testing.T) {
	v := Object{"a": Array{Int(3), Bool(false), Null{}}, "s": String("x")}
	back, err := FromAny(ToAny(v))
	require.NoError(t, err)
	assert.True(t, Equal(v, back))
}
