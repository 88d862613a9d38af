package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/brp/internal/brp"
)

func TestEvaluateLaws(t *testing.T) {
	env, d := newEnv(t)
	ref, ok := d.Entity(d.Player)
	require.True(t, ok)

	tests := []struct {
		name string
		p    brp.Predicate
		want bool
	}{
		{name: "nil", p: nil, want: true},
		{name: "always", p: brp.Always{}, want: true},
		{name: "empty eq", p: brp.Eq{}, want: true},
		{name: "not always", p: brp.Not{Predicate: brp.Always{}}, want: false},
		{name: "empty all", p: brp.All{}, want: true},
		{name: "empty any", p: brp.Any{}, want: false},
		{name: "double negation", p: brp.Not{Predicate: brp.Not{Predicate: brp.Always{}}}, want: true},
		{name: "any with one true", p: brp.Any{brp.Not{Predicate: brp.Always{}}, brp.Always{}}, want: true},
		{name: "all with one false", p: brp.All{brp.Always{}, brp.Any{}}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(env, ref, tt.p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExecuteWithEq(t *testing.T) {
	env, d := newEnv(t)

	results, err := Execute(env, brp.QueryData{Components: []string{"Name"}}, brp.QueryFilter{
		When: brp.Eq{"Name": brp.JSON(`"enemy"`)},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []brp.EntityID{brp.EntityID(d.Enemy)}, entities(results))

	results, err = Execute(env, brp.QueryData{}, brp.QueryFilter{
		When: brp.Not{Predicate: brp.Eq{"Health": brp.JSON(`{"current":10,"max":10}`)}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []brp.EntityID{
		brp.EntityID(d.Enemy), brp.EntityID(d.Widget), brp.EntityID(d.Vault),
	}, entities(results), "entities without Health do not equal it")
}

func TestExecuteEqFormats(t *testing.T) {
	env, d := newEnv(t)

	tests := []struct {
		name  string
		value brp.SerializedValue
	}{
		{name: "json", value: brp.JSON(`{"current":3,"max":8}`)},
		{name: "json5", value: brp.JSON5(`{current: 3, max: 8,}`)},
		{name: "ron", value: brp.RON(`(current: 3, max: 8)`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := Execute(env, brp.QueryData{}, brp.QueryFilter{
				When: brp.Eq{"Health": tt.value},
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, []brp.EntityID{brp.EntityID(d.Enemy)}, entities(results))
		})
	}
}

func TestEvaluateErrors(t *testing.T) {
	env, d := newEnv(t)

	tests := []struct {
		name string
		p    brp.Predicate
		code brp.ErrorCode
	}{
		{
			name: "no equality support",
			p:    brp.Eq{"Marker": brp.JSON(`{}`)},
			code: brp.CodeMissingPartialEq,
		},
		{
			name: "bad value",
			p:    brp.Eq{"demo::ui::Position": brp.JSON(`{"x":"left"}`)},
			code: brp.CodeDeserialization,
		},
		{
			name: "unknown field",
			p:    brp.Eq{"demo::ui::Position": brp.JSON(`{"z":1}`)},
			code: brp.CodeDeserialization,
		},
		{
			name: "error inside any after false branch",
			p:    brp.Any{brp.Any{}, brp.Eq{"Marker": brp.JSON(`{}`)}},
			code: brp.CodeMissingPartialEq,
		},
		{
			name: "sorted eq order",
			p: brp.Eq{
				"Marker":             brp.JSON(`{}`),
				"demo::ui::Position": brp.JSON(`{"x":"left"}`),
			},
			code: brp.CodeMissingPartialEq,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Execute(env, brp.QueryData{}, brp.QueryFilter{When: tt.p}, &d.Widget)
			require.Error(t, err)
			assert.True(t, brp.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestEvaluateShortCircuit(t *testing.T) {
	env, d := newEnv(t)

	results, err := Execute(env, brp.QueryData{}, brp.QueryFilter{
		When: brp.Any{brp.Always{}, brp.Eq{"Marker": brp.JSON(`{}`)}},
	}, &d.Widget)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = Execute(env, brp.QueryData{}, brp.QueryFilter{
		When: brp.All{brp.Any{}, brp.Eq{"Marker": brp.JSON(`{}`)}},
	}, &d.Widget)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEvaluateMissingComponentIsFalse(t *testing.T) {
	env, d := newEnv(t)

	results, err := Execute(env, brp.QueryData{}, brp.QueryFilter{
		When: brp.Eq{"Marker": brp.JSON(`{}`)},
	}, &d.Player)
	require.NoError(t, err)
	assert.Empty(t, results)
}
