package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/roach88/brp/internal/brp"
	"github.com/roach88/brp/internal/session"
)

const writeWait = 5 * time.Second

// wsConn serialises writes; gorilla connections allow one writer at a time.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) send(resp brp.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// handleWebSocket opens a session for the connection. Requests are read
// from text frames and responses stream back as the dispatcher answers
// them, in whatever order that is. The session closes with the connection.
func (s *Server) handleWebSocket(c *gin.Context) {
	format := s.format
	if name := c.Query("format"); name != "" {
		f, err := brp.ParseFormat(name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		format = f
	}

	raw, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()
	raw.SetReadLimit(MaxBodyBytes)

	h, err := s.registry.Open(s.labels.Generate(), format)
	if err != nil {
		s.logger.Error("open websocket session", "error", err)
		_ = conn.send(brp.ResponseFromError(0, brp.NewError(brp.CodeInternalError)))
		return
	}
	log := s.logger.With("session", h.Label())
	log.Info("websocket connected", "format", format.String())

	ctx, cancel := context.WithCancel(c.Request.Context())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Closing the connection unblocks the read loop.
		streamResponses(ctx, h, conn.send, func() {
			cancel()
			_ = raw.Close()
		}, log)
	}()

	s.readLoop(ctx, raw, conn, h, log)

	cancel()
	if err := h.Close(); err != nil && !errors.Is(err, session.ErrSessionClosed) {
		log.Warn("close websocket session", "error", err)
	}
	wg.Wait()
	log.Info("websocket disconnected")
}

// streamResponses writes h's responses with send until ctx ends. A failed
// write calls abort and stops.
func streamResponses(ctx context.Context, h *session.Handle, send func(brp.Response) error, abort func(), log *slog.Logger) {
	for {
		resp, err := h.Recv(ctx)
		if err != nil {
			return
		}
		if err := send(resp); err != nil {
			log.Debug("websocket write failed", "error", err)
			abort()
			return
		}
	}
}

func (s *Server) readLoop(ctx context.Context, raw *websocket.Conn, conn *wsConn, h *session.Handle, log *slog.Logger) {
	for ctx.Err() == nil {
		kind, data, err := raw.ReadMessage()
		if err != nil {
			log.Debug("websocket read ended", "error", err)
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		var req brp.Request
		if err := json.Unmarshal(data, &req); err != nil {
			log.Debug("malformed websocket frame", "error", err)
			if err := conn.send(brp.ResponseFromError(0, brp.NewError(brp.CodeInvalidRequest))); err != nil {
				return
			}
			continue
		}
		if err := h.Send(req); err != nil {
			return
		}
	}
}
