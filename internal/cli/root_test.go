package cli

import (
	"bytes"
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/brp/internal/config"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "brp", cmd.Use)

	for _, name := range []string{"serve", "test", "journal", "version"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	cfg := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfg)
	assert.Equal(t, "c", cfg.Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "version", "--format", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "brp dev ("+runtime.Version()+")\n", out)

	out, err = execute(t, "version", "--format", "json")
	require.NoError(t, err)
	var env struct {
		Status string      `json:"status"`
		Data   VersionInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	assert.Equal(t, "ok", env.Status)
	assert.Equal(t, Version, env.Data.Version)
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		opts    RootOptions
		debug   bool
		jsonOut bool
	}{
		{"text info", config.LogConfig{Level: "info", Format: "text"}, RootOptions{Format: "text"}, false, false},
		{"verbose forces debug", config.LogConfig{Level: "warn", Format: "text"}, RootOptions{Verbose: true, Format: "text"}, true, false},
		{"json config", config.LogConfig{Level: "debug", Format: "json"}, RootOptions{Format: "text"}, true, true},
		{"json output forces json logs", config.LogConfig{Level: "info", Format: "text"}, RootOptions{Format: "json"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger, err := newLogger(buf, tt.cfg, &tt.opts)
			require.NoError(t, err)
			logger.Debug("probe")
			logger.Error("probe")
			lines := bytes.Count(buf.Bytes(), []byte("\n"))
			if tt.debug {
				assert.Equal(t, 2, lines)
			} else {
				assert.Equal(t, 1, lines)
			}
			assert.Equal(t, tt.jsonOut, bytes.HasPrefix(buf.Bytes(), []byte("{")))
		})
	}

	_, err := newLogger(&bytes.Buffer{}, config.LogConfig{Level: "loud"}, &RootOptions{})
	assert.Error(t, err)
}
