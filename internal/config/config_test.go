package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 500*time.Millisecond, cfg.Server.Timeout.Std())
	assert.Equal(t, time.Second/60, cfg.Engine.TickRate.Std())
	assert.True(t, cfg.Schema.Demo)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brp.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
addr = ":9000"
timeout = "2s"
cors_origins = ["http://localhost:3000"]

[engine]
tick_rate = "10ms"

[journal]
path = "brp.db"

[log]
level = "debug"
format = "json"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 2*time.Second, cfg.Server.Timeout.Std())
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "http", cfg.Server.HTTPLabel, "unset keys keep their default")
	assert.Equal(t, 10*time.Millisecond, cfg.Engine.TickRate.Std())
	assert.Equal(t, "brp.db", cfg.Journal.Path)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		toml string
		want string
	}{
		{"unknown key", "[server]\nport = 1\n", "port"},
		{"bad duration", "[server]\ntimeout = \"soon\"\n", "parse failed"},
		{"zero tick", "[engine]\ntick_rate = \"0s\"\n", "engine.tick_rate"},
		{"empty addr", "[server]\naddr = \"\"\n", "server.addr"},
		{"bad format", "[server]\nformat = \"xml\"\n", "server.format"},
		{"bad level", "[log]\nlevel = \"loud\"\n", "log.level"},
		{"bad log format", "[log]\nformat = \"yaml\"\n", "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.toml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
