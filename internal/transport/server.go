// Package transport exposes sessions over HTTP and WebSocket.
//
// HTTP clients share one session. Their ids are replaced by a server-side
// counter so concurrent clients cannot collide, and restored on the way
// out. Each WebSocket connection gets a session of its own and keeps its
// ids.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/brp/internal/brp"
	"github.com/roach88/brp/internal/metrics"
	"github.com/roach88/brp/internal/session"
)

const (
	// DefaultTimeout bounds how long an HTTP request waits for its answer.
	DefaultTimeout = 500 * time.Millisecond
	// DefaultHTTPLabel labels the session shared by HTTP clients.
	DefaultHTTPLabel = "http"
	// MaxBodyBytes caps request bodies and WebSocket frames.
	MaxBodyBytes = 1 << 20
)

// Server serves the remote protocol.
type Server struct {
	registry *session.Registry
	handle   *session.Handle
	waiters  *Waiters
	nextID   atomic.Uint64

	timeout  time.Duration
	label    string
	format   brp.Format
	labels   session.LabelGenerator
	origins  []string
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	health   func() map[string]any
	logger   *slog.Logger
	upgrader websocket.Upgrader

	router *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithTimeout sets how long HTTP requests wait for a response.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// WithHTTPLabel sets the label of the shared HTTP session.
func WithHTTPLabel(label string) Option {
	return func(s *Server) { s.label = label }
}

// WithDefaultFormat sets the WebSocket format used when the client names
// none. Defaults to JSON.
func WithDefaultFormat(f brp.Format) Option {
	return func(s *Server) { s.format = f }
}

// WithLabels sets the label generator for WebSocket sessions.
func WithLabels(g session.LabelGenerator) Option {
	return func(s *Server) { s.labels = g }
}

// WithCORSOrigins restricts cross-origin requests. Empty allows all.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithMetrics counts HTTP responses and serves /metrics from g.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithHealth adds fields to the /health payload.
func WithHealth(fn func() map[string]any) Option {
	return func(s *Server) { s.health = fn }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New opens the shared HTTP session on r and builds the router. Call Start
// before serving.
func New(r *session.Registry, opts ...Option) (*Server, error) {
	s := &Server{
		registry: r,
		timeout:  DefaultTimeout,
		label:    DefaultHTTPLabel,
		format:   brp.FormatJSON,
		labels:   session.UUIDv7Labels{},
		logger:   slog.Default(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	h, err := r.Open(s.label, brp.FormatJSON)
	if err != nil {
		return nil, fmt.Errorf("open http session: %w", err)
	}
	s.handle = h
	s.waiters = NewWaiters(s.logger)
	s.router = s.routes()
	return s, nil
}

// Start runs the response pump until ctx is done or Close is called.
func (s *Server) Start(ctx context.Context) {
	go func() {
		if err := s.waiters.Pump(ctx, s.handle); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("http response pump stopped", "error", err)
		}
	}()
}

// Close closes the shared HTTP session.
func (s *Server) Close() error {
	return s.handle.Close()
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.logger))
	if s.metrics != nil {
		r.Use(requestMetrics(s.metrics))
	}
	r.Use(cors.New(s.corsConfig()))

	r.POST("/", s.handleBRP)
	r.POST("/brp", s.handleBRP)
	r.GET("/ws", s.handleWebSocket)
	r.GET("/health", s.handleHealth)
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	r.NoMethod(func(c *gin.Context) {
		s.write(c, brp.ResponseFromError(0, brp.NewError(brp.CodeInvalidRequest)))
	})
	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(s.origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.origins
	}
	return cfg
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":   "ok",
		"sessions": s.registry.Len(),
		"pending":  s.waiters.Len(),
	}
	if s.health != nil {
		for k, v := range s.health() {
			body[k] = v
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleBRP(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxBodyBytes))
	if err != nil {
		s.write(c, brp.ResponseFromError(0, brp.NewError(brp.CodeInvalidRequest)))
		return
	}
	var req brp.Request
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Debug("malformed request", "error", err)
		s.write(c, brp.ResponseFromError(0, brp.NewError(brp.CodeInvalidRequest)))
		return
	}

	clientID := req.ID
	req.ID = s.nextID.Add(1)
	slot := s.waiters.Register(req.ID)
	if err := s.handle.Send(req); err != nil {
		s.waiters.Cancel(req.ID)
		s.logger.Error("http session unavailable", "error", err)
		s.write(c, brp.ResponseFromError(clientID, brp.NewError(brp.CodeInternalError)))
		return
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case resp := <-slot:
		resp.ID = clientID
		s.write(c, resp)
	case <-timer.C:
		s.waiters.Cancel(req.ID)
		s.write(c, brp.ResponseFromError(clientID, brp.NewError(brp.CodeTimeout)))
	case <-c.Request.Context().Done():
		s.waiters.Cancel(req.ID)
		c.Abort()
	}
}

func (s *Server) write(c *gin.Context, resp brp.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("encode response", "id", resp.ID, "error", err)
		resp = brp.ResponseFromError(resp.ID, brp.NewError(brp.CodeInternalError))
		data, _ = json.Marshal(resp)
	}
	c.Data(StatusFor(resp), "application/json", data)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http_request",
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
			"bytes", c.Writer.Size(),
		)
	}
}

func requestMetrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		m.RecordHTTP(c.Writer.Status())
	}
}
