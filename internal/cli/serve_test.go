package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/brp/internal/brp"
	"github.com/roach88/brp/internal/config"
	"github.com/roach88/brp/internal/session"
	"github.com/roach88/brp/internal/store"
	"github.com/roach88/brp/internal/testutil"
)

func TestServeConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "brp.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
[server]
addr = "0.0.0.0:9000"
timeout = "2s"

[journal]
path = "from-file.db"
`), 0o644))

	opts := &ServeOptions{RootOptions: &RootOptions{Format: "text", Config: cfgPath}}
	cmd := newServeCommand(opts)
	require.NoError(t, cmd.Flags().Parse([]string{"--journal", "from-flag.db", "--no-demo"}))

	cfg, err := serveConfig(opts, cmd)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr, "unset flags keep file values")
	assert.Equal(t, 2*time.Second, cfg.Server.Timeout.Std())
	assert.Equal(t, "from-flag.db", cfg.Journal.Path)
	assert.False(t, cfg.Schema.Demo)
}

func TestServeConfigErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[server]\ncolour = \"red\"\n"), 0o644))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing file", []string{"serve", "--config", filepath.Join(dir, "none.toml")}, "failed to load config"},
		{"unknown key", []string{"serve", "--config", bad}, "failed to load config"},
		{"empty addr", []string{"serve", "--addr", " "}, "server.addr is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildWorld(t *testing.T) {
	logger := testutil.DiscardLogger()

	w, err := buildWorld(config.SchemaConfig{Demo: true}, logger)
	require.NoError(t, err)
	assert.Equal(t, 4, w.Len())

	w, err = buildWorld(config.SchemaConfig{}, logger)
	require.NoError(t, err)
	assert.Equal(t, 0, w.Len())

	path := filepath.Join(t.TempDir(), "game.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
components: "game::Stats": {hp: 10}
entities: [{"game::Stats": {hp: 1}}, {"game::Stats": {hp: 2}}]
`), 0o644))
	w, err = buildWorld(config.SchemaConfig{Path: path}, logger)
	require.NoError(t, err)
	assert.Equal(t, 2, w.Len())

	_, err = buildWorld(config.SchemaConfig{Path: filepath.Join(t.TempDir(), "none.cue")}, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load schema")
}

func TestBuildAppServesAndJournals(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Default()
	cfg.Journal.Path = filepath.Join(t.TempDir(), "journal.db")
	cfg.Engine.TickRate = config.Duration(time.Millisecond)
	cfg.Server.Timeout = config.Duration(2 * time.Second)

	a, err := buildApp(ctx, cfg, testutil.DiscardLogger())
	require.NoError(t, err)
	a.server.Start(ctx)
	engineDone := make(chan error, 1)
	go func() { engineDone <- a.engine.Run(ctx) }()

	ts := httptest.NewServer(a.server.Handler())
	defer ts.Close()

	res, err := http.Post(ts.URL+"/brp", "application/json", strings.NewReader(`{"id":5,"request":"Ping"}`))
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	var resp brp.Response
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, uint64(5), resp.ID)
	assert.Equal(t, brp.OK{}, resp.Content)

	// Observers run after the response is published.
	assert.Eventually(t, func() bool {
		res, err := http.Get(ts.URL + "/metrics")
		if err != nil {
			return false
		}
		defer res.Body.Close()
		body, _ := io.ReadAll(res.Body)
		return strings.Contains(string(body), `brp_requests_total{kind="Ping",outcome="ok"} 1`) &&
			strings.Contains(string(body), "go_goroutines")
	}, 2*time.Second, 10*time.Millisecond)

	res, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&health))
	res.Body.Close()
	assert.Contains(t, health, "tick")

	cancel()
	<-engineDone
	require.NoError(t, a.Close())

	st, err := store.Open(cfg.Journal.Path)
	require.NoError(t, err)
	defer st.Close()
	exchanges, err := st.ReadExchanges(context.Background(), cfg.Server.HTTPLabel)
	require.NoError(t, err)
	require.Len(t, exchanges, 1)
	assert.Equal(t, brp.KindPing, exchanges[0].Request.Kind())
}

func TestBuildAppResumesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, st.WriteExchange(context.Background(), journalPing(41)))
	require.NoError(t, st.Close())

	cfg := config.Default()
	cfg.Journal.Path = path
	a, err := buildApp(context.Background(), cfg, testutil.DiscardLogger())
	require.NoError(t, err)
	defer a.Close()

	h := a.registry.MustOpen("probe", brp.FormatJSON)
	require.NoError(t, h.Send(brp.Request{ID: 1, Content: brp.Ping{}}))
	a.engine.Tick(context.Background())

	exchanges, err := a.journal.ReadExchanges(context.Background(), "probe")
	require.NoError(t, err)
	require.Len(t, exchanges, 1)
	assert.Equal(t, int64(42), exchanges[0].Seq)
	assert.Equal(t, uint64(2), exchanges[0].Tick, "ticks continue after the journaled ones")
	assert.Equal(t, int64(2), a.engine.Clock().Current())
}

func TestServeSchemaError(t *testing.T) {
	_, err := execute(t, "serve", "--addr", "127.0.0.1:0", "--schema", filepath.Join(t.TempDir(), "none.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to start")
}

func journalPing(seq int64) session.Exchange {
	return session.Exchange{
		Seq:      seq,
		Tick:     1,
		Session:  "earlier",
		Format:   brp.FormatJSON,
		Request:  brp.Request{ID: 1, Content: brp.Ping{}},
		Response: brp.NewResponse(1, brp.OK{}),
	}
}
