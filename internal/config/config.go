// Package config loads brp server settings from TOML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/roach88/brp/internal/brp"
)

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Engine  EngineConfig  `toml:"engine"`
	Journal JournalConfig `toml:"journal"`
	Schema  SchemaConfig  `toml:"schema"`
	Log     LogConfig     `toml:"log"`
}

type ServerConfig struct {
	Addr        string   `toml:"addr"`
	Timeout     Duration `toml:"timeout"`
	HTTPLabel   string   `toml:"http_label"`
	CORSOrigins []string `toml:"cors_origins"`
	// Format is the default WebSocket format when the client names none.
	Format string `toml:"format"`
}

type EngineConfig struct {
	TickRate Duration `toml:"tick_rate"`
}

// JournalConfig enables the exchange journal when Path is set.
type JournalConfig struct {
	Path string `toml:"path"`
}

// SchemaConfig names a CUE schema with dynamic types and seed data.
type SchemaConfig struct {
	Path string `toml:"path"`
	// Demo loads the built-in demo world before the schema.
	Demo bool `toml:"demo"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration is a time.Duration written as a string such as "500ms".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:      "127.0.0.1:15702",
			Timeout:   Duration(500 * time.Millisecond),
			HTTPLabel: "http",
			Format:    "json",
		},
		Engine: EngineConfig{TickRate: Duration(time.Second / 60)},
		Schema: SchemaConfig{Demo: true},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. An empty path returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML over the defaults and validates the result.
// Unknown keys are errors.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("parse failed: %s", strict.String())
		}
		return Config{}, fmt.Errorf("parse failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every field holds a usable value.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.Timeout <= 0 {
		errs = append(errs, errors.New("server.timeout must be positive"))
	}
	if strings.TrimSpace(c.Server.HTTPLabel) == "" {
		errs = append(errs, errors.New("server.http_label is required"))
	}
	if _, err := brp.ParseFormat(c.Server.Format); err != nil {
		errs = append(errs, fmt.Errorf("server.format: %w", err))
	}
	if c.Engine.TickRate <= 0 {
		errs = append(errs, errors.New("engine.tick_rate must be positive"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", l.Level, err)
	}
	return level, nil
}
