package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/roach88/brp/internal/brp"
	"github.com/roach88/brp/internal/codec"
	"github.com/roach88/brp/internal/config"
	"github.com/roach88/brp/internal/demo"
	"github.com/roach88/brp/internal/engine"
	"github.com/roach88/brp/internal/metrics"
	"github.com/roach88/brp/internal/names"
	"github.com/roach88/brp/internal/schema"
	"github.com/roach88/brp/internal/session"
	"github.com/roach88/brp/internal/store"
	"github.com/roach88/brp/internal/transport"
	"github.com/roach88/brp/internal/world"
)

// ServeOptions holds flags for the serve command. Set flags override the
// config file.
type ServeOptions struct {
	*RootOptions
	Addr    string
	Journal string
	Schema  string
	NoDemo  bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the world over HTTP and WebSocket",
		Long: `Run the simulation loop and serve the remote protocol.

Endpoints:
  POST /brp      one request per call, shared session
  GET  /ws       one session per connection (?format=json|json5|ron)
  GET  /health   liveness and session counts
  GET  /metrics  Prometheus metrics

Examples:
  brp serve
  brp serve --addr :15702 --journal brp.db
  brp serve --schema game.cue --no-demo
  brp serve --config brp.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "SQLite journal path (overrides journal.path)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "CUE schema file or directory (overrides schema.path)")
	cmd.Flags().BoolVar(&opts.NoDemo, "no-demo", false, "start from an empty world instead of the demo world")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := serveConfig(opts, cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log, opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid log config", err)
	}

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app.server.Start(ctx)
	engineDone := make(chan error, 1)
	go func() { engineDone <- app.engine.Run(ctx) }()

	serveErr := app.server.ListenAndServe(ctx, cfg.Server.Addr)
	cancel()
	<-engineDone
	if serveErr != nil {
		return WrapExitError(ExitFailure, "server stopped", serveErr)
	}
	return nil
}

// serveConfig loads the config file and applies the flags that were set.
func serveConfig(opts *ServeOptions, cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return cfg, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Server.Addr = opts.Addr
	}
	if flags.Changed("journal") {
		cfg.Journal.Path = opts.Journal
	}
	if flags.Changed("schema") {
		cfg.Schema.Path = opts.Schema
	}
	if flags.Changed("no-demo") {
		cfg.Schema.Demo = !opts.NoDemo
	}
	if err := cfg.Validate(); err != nil {
		return cfg, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg, nil
}

// app is a fully wired server: world, engine, transports and the optional
// journal.
type app struct {
	engine   *engine.Engine
	registry *session.Registry
	server   *transport.Server
	journal  *store.Store
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	w, err := buildWorld(cfg.Schema, logger)
	if err != nil {
		return nil, err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reg := session.NewRegistry(session.WithRegistryLogger(logger))
	m, err := metrics.New(promReg, reg.Len)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	a := &app{registry: reg, gatherer: promReg, logger: logger}
	engineOpts := []engine.Option{
		engine.WithTickRate(cfg.Engine.TickRate.Std()),
		engine.WithLogger(logger),
		engine.WithObserver(m),
	}
	if cfg.Journal.Path != "" {
		st, err := store.Open(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		seq, err := st.Sequencer(ctx)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("resume journal: %w", err)
		}
		tick, err := st.LastTick(ctx)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("resume journal: %w", err)
		}
		a.journal = st
		engineOpts = append(engineOpts,
			engine.WithClock(engine.NewClockAt(tick)),
			engine.WithObserver(st),
			engine.WithDispatchOptions(session.WithSequencer(seq)),
		)
		logger.Info("journal enabled", "path", cfg.Journal.Path, "resume_tick", tick)
	}
	a.engine = engine.New(w, reg, engineOpts...)

	format, err := brp.ParseFormat(cfg.Server.Format)
	if err != nil {
		a.Close()
		return nil, err
	}
	clock := a.engine.Clock()
	srv, err := transport.New(reg,
		transport.WithTimeout(cfg.Server.Timeout.Std()),
		transport.WithHTTPLabel(cfg.Server.HTTPLabel),
		transport.WithCORSOrigins(cfg.Server.CORSOrigins...),
		transport.WithDefaultFormat(format),
		transport.WithMetrics(m, promReg),
		transport.WithHealth(func() map[string]any {
			return map[string]any{"tick": clock.Current()}
		}),
		transport.WithLogger(logger),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.server = srv
	return a, nil
}

// Close releases the HTTP session and the journal.
func (a *app) Close() error {
	var errs []error
	if a.server != nil {
		if err := a.server.Close(); err != nil && !errors.Is(err, session.ErrSessionClosed) {
			errs = append(errs, err)
		}
	}
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	return errors.Join(errs...)
}

// buildWorld starts from the demo or an empty world and applies the schema.
func buildWorld(cfg config.SchemaConfig, logger *slog.Logger) (*world.World, error) {
	var w *world.World
	if cfg.Demo {
		w = demo.New().World
	} else {
		w = world.New()
	}
	if cfg.Path == "" {
		return w, nil
	}
	sch, err := schema.Load(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	seeded, err := sch.Apply(w, codec.New(logger), names.New())
	if err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	logger.Info("schema applied",
		"path", cfg.Path,
		"types", len(seeded.Types),
		"entities", len(seeded.Entities),
		"assets", seeded.Assets)
	return w, nil
}
