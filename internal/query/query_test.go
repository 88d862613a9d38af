package query

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/brp/internal/brp"
	"github.com/roach88/brp/internal/codec"
	"github.com/roach88/brp/internal/demo"
	"github.com/roach88/brp/internal/names"
	"github.com/roach88/brp/internal/world"
)

func newEnv(t *testing.T) (Env, *demo.World) {
	t.Helper()
	d := demo.New()
	return Env{
		World:  d.World,
		Names:  names.New(),
		Codec:  codec.New(slog.New(slog.NewTextHandler(io.Discard, nil))),
		Format: brp.FormatJSON,
	}, d
}

func entities(results []brp.QueryResult) []brp.EntityID {
	out := make([]brp.EntityID, len(results))
	for i, r := range results {
		out[i] = r.Entity
	}
	return out
}

func TestExecuteSingleEntity(t *testing.T) {
	env, d := newEnv(t)

	results, err := Execute(env, brp.QueryData{
		Components: []string{"Velocity", "demo::physics::Position"},
	}, brp.QueryFilter{}, &d.Player)
	require.NoError(t, err)
	require.Len(t, results, 1)

	row := results[0]
	assert.Equal(t, brp.EntityID(d.Player), row.Entity)
	assert.Equal(t, brp.JSON(`{"x":0.5,"y":0}`), row.Components["Velocity"])
	assert.Equal(t, brp.JSON(`{"x":1,"y":2}`), row.Components["demo::physics::Position"])
	assert.Empty(t, row.Optional)
	assert.Empty(t, row.Has)
}

func TestExecuteMissingComponentYieldsNothing(t *testing.T) {
	env, d := newEnv(t)

	results, err := Execute(env, brp.QueryData{Components: []string{"Velocity"}}, brp.QueryFilter{}, &d.Enemy)
	require.NoError(t, err)
	assert.Empty(t, results)

	missing := world.Entity(999)
	results, err = Execute(env, brp.QueryData{}, brp.QueryFilter{}, &missing)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestExecuteNameErrors(t *testing.T) {
	env, _ := newEnv(t)

	tests := []struct {
		name   string
		data   brp.QueryData
		filter brp.QueryFilter
		code   brp.ErrorCode
	}{
		{
			name: "ambiguous component",
			data: brp.QueryData{Components: []string{"Position"}},
			code: brp.CodeComponentAmbiguous,
		},
		{
			name: "unknown optional",
			data: brp.QueryData{Optional: []string{"Rotation"}},
			code: brp.CodeComponentNotFound,
		},
		{
			name:   "unknown without",
			filter: brp.QueryFilter{Without: []string{"Rotation"}},
			code:   brp.CodeComponentNotFound,
		},
		{
			name:   "unknown predicate name",
			filter: brp.QueryFilter{When: brp.Eq{"Rotation": brp.JSON(`{}`)}},
			code:   brp.CodeComponentNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Execute(env, tt.data, tt.filter, nil)
			require.Error(t, err)
			assert.True(t, brp.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestExecuteOptionalAndHas(t *testing.T) {
	env, d := newEnv(t)

	results, err := Execute(env, brp.QueryData{
		Components: []string{"Name"},
		Optional:   []string{"Velocity"},
		Has:        []string{"Health", "Secret"},
	}, brp.QueryFilter{}, nil)
	require.NoError(t, err)
	require.Equal(t, []brp.EntityID{
		brp.EntityID(d.Player), brp.EntityID(d.Enemy), brp.EntityID(d.Vault),
	}, entities(results))

	player, enemy, vault := results[0], results[1], results[2]
	assert.Equal(t, brp.JSON(`"player"`), player.Components["Name"])
	assert.Equal(t, brp.JSON(`{"x":0.5,"y":0}`), player.Optional["Velocity"])
	assert.Equal(t, map[string]bool{"Health": true, "Secret": false}, player.Has)

	require.Contains(t, enemy.Optional, "Velocity")
	assert.Nil(t, enemy.Optional["Velocity"])
	assert.Equal(t, map[string]bool{"Health": true, "Secret": false}, enemy.Has)

	assert.Equal(t, map[string]bool{"Health": false, "Secret": true}, vault.Has)
}

func TestExecuteWithWithout(t *testing.T) {
	env, d := newEnv(t)

	results, err := Execute(env, brp.QueryData{}, brp.QueryFilter{
		With:    []string{"Health"},
		Without: []string{"Velocity"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []brp.EntityID{brp.EntityID(d.Enemy)}, entities(results))
	assert.Empty(t, results[0].Components)
}

func TestExecuteWildcard(t *testing.T) {
	env, d := newEnv(t)

	results, err := Execute(env, brp.QueryData{Components: []string{brp.Wildcard}}, brp.QueryFilter{}, &d.Vault)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, brp.ComponentMap{
		demo.NamePath:    brp.JSON(`"vault"`),
		demo.SecretPath:  brp.Unserializable{},
		demo.ForeignPath: brp.Unserializable{},
	}, results[0].Components)
}

func TestExecuteWildcardEveryEntity(t *testing.T) {
	env, d := newEnv(t)

	results, err := Execute(env, brp.QueryData{Components: []string{brp.Wildcard}}, brp.QueryFilter{}, nil)
	require.NoError(t, err)
	require.Len(t, results, d.Len())
	for _, row := range results {
		assert.Len(t, row.Components, len(d.ComponentIDs(world.Entity(row.Entity))))
	}
}

func TestExecuteSerializationErrorFailsNamedQuery(t *testing.T) {
	env, d := newEnv(t)

	_, err := Execute(env, brp.QueryData{Components: []string{"Secret"}}, brp.QueryFilter{}, &d.Vault)
	require.Error(t, err)
	assert.True(t, brp.IsCode(err, brp.CodeMissingReflect))
}

func TestExecuteRONFormat(t *testing.T) {
	env, d := newEnv(t)
	env.Format = brp.FormatRON

	results, err := Execute(env, brp.QueryData{Components: []string{"Health"}}, brp.QueryFilter{}, &d.Enemy)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, brp.RON(`(current:3,max:8)`), results[0].Components["Health"])
}

func TestWatermark(t *testing.T) {
	env, d := newEnv(t)
	data := brp.QueryData{Components: []string{"Health"}}

	first, err := Execute(env, data, brp.QueryFilter{}, nil)
	require.NoError(t, err)
	again, err := Execute(env, data, brp.QueryFilter{}, nil)
	require.NoError(t, err)

	a, err := Watermark(first)
	require.NoError(t, err)
	b, err := Watermark(again)
	require.NoError(t, err)
	assert.NotZero(t, a)
	assert.Equal(t, a, b)

	require.NoError(t, d.Insert(d.Enemy, d.Health, demo.Health{Current: 1, Max: 8}))
	changed, err := Execute(env, data, brp.QueryFilter{}, nil)
	require.NoError(t, err)
	c, err := Watermark(changed)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	empty, err := Watermark(nil)
	require.NoError(t, err)
	assert.NotZero(t, empty)
}
