package collaboration

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"pixelboard/internal/middleware"
	"pixelboard/internal/models"
	"pixelboard/internal/world"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

/*
CONNECTION LIFECYCLE

Each connection gets two goroutines:
  readPump:  decodes inbound frames and applies them to the world
  writePump: the only goroutine that writes to the socket; drains the
             outbound queue and sends keepalive pings

Either side ending closes the session. The read pump owns cleanup: it
unregisters the session exactly once and closes the socket.

Ordering: applying a change and broadcasting it happen under commitMu, and
so do registering a session and queueing its init. Every client therefore
sees updates in the order the world accepted them, and never an update that
is older than its init board. The world lock and the registry lock are taken
one after the other inside commitMu, never one inside the other.
*/

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ChangeRecorder receives every accepted change with its 1-based sequence
// number. Record must not block.
type ChangeRecorder interface {
	Record(seq int, change models.Change)
}

// HandlerConfig holds the per-connection settings.
type HandlerConfig struct {
	AdminToken         string
	OutboundQueueSize  int
	AdminOnlyResize    bool
	MaxCanvasDimension int
}

// WebSocketHandler accepts canvas websocket connections.
type WebSocketHandler struct {
	world    *world.World
	registry *SessionRegistry
	recorder ChangeRecorder
	cfg      HandlerConfig
	logger   *zap.Logger
	metrics  *middleware.Metrics
	upgrader websocket.Upgrader

	commitMu sync.Mutex
	wg       sync.WaitGroup
}

// NewWebSocketHandler creates a handler. metrics may be nil.
func NewWebSocketHandler(w *world.World, registry *SessionRegistry, cfg HandlerConfig, logger *zap.Logger, metrics *middleware.Metrics) *WebSocketHandler {
	if cfg.OutboundQueueSize <= 0 {
		cfg.OutboundQueueSize = 256
	}
	return &WebSocketHandler{
		world:    w,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients are served from anywhere; there is no cookie auth to protect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetChangeRecorder sets the change journal.
func (h *WebSocketHandler) SetChangeRecorder(r ChangeRecorder) {
	h.recorder = r
}

// HandleConnection upgrades the request and starts the session pumps.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	role := h.roleFor(r.URL.Query().Get("auth"))

	ctx, span := middleware.StartSpan(r.Context(), "WebSocket.Connect",
		attribute.String("remote.addr", r.RemoteAddr),
		attribute.String("session.role", role.String()),
	)
	defer span.End()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		h.logger.Warn("websocket upgrade failed",
			zap.String("remote", r.RemoteAddr),
			zap.Error(err),
		)
		middleware.AddSpanError(ctx, err)
		return
	}

	s := newSession(models.NewSession(r.RemoteAddr, role), conn, h.cfg.OutboundQueueSize)
	if err := h.join(s); err != nil {
		h.logger.Error("failed to initialise session", zap.String("session", s.ID), zap.Error(err))
		middleware.AddSpanError(ctx, err)
		_ = conn.Close()
		return
	}
	span.SetAttributes(attribute.String("session.id", s.ID))
	h.metrics.SessionOpened()

	h.logger.Info("session connected",
		zap.String("session", s.ID),
		zap.String("remote", s.RemoteAddr),
		zap.Stringer("role", s.Role),
	)

	// The pumps outlive the request, so they keep only the span linkage.
	pumpCtx := trace.ContextWithSpanContext(context.Background(), span.SpanContext())

	h.wg.Add(2)
	go h.writePump(s)
	go h.readPump(pumpCtx, s)
}

// Shutdown closes every session and waits for their pumps to exit.
func (h *WebSocketHandler) Shutdown(ctx context.Context) error {
	h.registry.CloseAll()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *WebSocketHandler) roleFor(token string) models.Role {
	if token == "" || h.cfg.AdminToken == "" {
		return models.RolePlayer
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.AdminToken)) == 1 {
		return models.RoleAdmin
	}
	return models.RolePlayer
}

// join registers s and queues its init message as one step.
func (h *WebSocketHandler) join(s *Session) error {
	h.commitMu.Lock()
	defer h.commitMu.Unlock()

	h.registry.Register(s)

	data, err := h.initPayload()
	if err == nil {
		err = s.enqueue(outbound{kind: websocket.TextMessage, data: data})
	}
	if err != nil {
		h.registry.Unregister(s)
		s.Close()
		return err
	}
	return nil
}

func (h *WebSocketHandler) initPayload() ([]byte, error) {
	width, height, board := h.world.Board()
	return json.Marshal(models.NewInitMessage(width, height, board))
}

func (h *WebSocketHandler) readPump(ctx context.Context, s *Session) {
	defer h.wg.Done()
	defer h.disconnect(s)

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.touch()
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.logger.Warn("websocket read failed", zap.String("session", s.ID), zap.Error(err))
			}
			return
		}
		s.touch()
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch kind {
		case websocket.TextMessage:
			h.handleText(ctx, s, data)
		case websocket.BinaryMessage:
			h.metrics.ClientMessage("binary")
			n := h.registry.BroadcastExcept(websocket.BinaryMessage, data, s.ID)
			middleware.AddSpanEvent(ctx, "binary relayed",
				attribute.Int("bytes", len(data)),
				attribute.Int("recipients", n),
			)
		}
	}
}

func (h *WebSocketHandler) writePump(s *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
		_ = s.conn.Close()
		h.wg.Done()
	}()

	for {
		select {
		case msg := <-s.send:
			// One message per frame: clients parse each text frame as a
			// single JSON document.
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(msg.kind, msg.data); err != nil {
				h.logger.Debug("websocket write failed", zap.String("session", s.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// disconnect runs once per session, from its read pump.
func (h *WebSocketHandler) disconnect(s *Session) {
	if h.registry.Unregister(s) {
		h.metrics.SessionClosed()
		h.logger.Info("session disconnected",
			zap.String("session", s.ID),
			zap.Int("remaining", h.registry.Count()),
		)
	}
	s.Close()
	_ = s.conn.Close()
}

func (h *WebSocketHandler) handleText(ctx context.Context, s *Session, data []byte) {
	msg, err := models.DecodeClientMessage(data)
	if err != nil {
		h.metrics.ClientMessage("invalid")
		h.logger.Warn("dropping malformed message",
			zap.String("session", s.ID),
			zap.Error(err),
		)
		return
	}

	switch m := msg.(type) {
	case models.PaintCommand:
		h.metrics.ClientMessage(models.MessageTypePaint)
		h.handlePaint(ctx, s, m)
	case models.PingCommand:
		h.metrics.ClientMessage(models.MessageTypePing)
		h.handlePing(s)
	case models.ResizeCommand:
		h.metrics.ClientMessage(models.MessageTypeResize)
		h.handleResize(ctx, s, m)
	}
}

func (h *WebSocketHandler) handlePaint(ctx context.Context, s *Session, m models.PaintCommand) {
	color, err := models.ParseHex(m.Color)
	if err != nil {
		h.logger.Warn("dropping paint with invalid color",
			zap.String("session", s.ID),
			zap.String("color", m.Color),
		)
		return
	}

	ctx, span := middleware.StartSpan(ctx, "World.Paint",
		attribute.String("session.id", s.ID),
		attribute.Int("paint.x", int(m.X)),
		attribute.Int("paint.y", int(m.Y)),
	)
	defer span.End()

	update, err := json.Marshal(models.NewUpdateMessage(m.X, m.Y, color))
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return
	}

	ev := models.Paint{X: int(m.X), Y: int(m.Y), Color: color}

	h.commitMu.Lock()
	change, seq, err := h.world.ApplyEvent(ev)
	if err == nil {
		h.registry.BroadcastAll(websocket.TextMessage, update)
	}
	h.commitMu.Unlock()

	h.metrics.ChangeEvent(string(models.ChangeKindPaint), err)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		h.logger.Warn("paint rejected",
			zap.String("session", s.ID),
			zap.Uint("x", m.X),
			zap.Uint("y", m.Y),
			zap.Error(err),
		)
		return
	}
	h.record(seq, change)
}

func (h *WebSocketHandler) handlePing(s *Session) {
	data, err := json.Marshal(models.NewPongMessage(h.registry.Count()))
	if err != nil {
		return
	}
	h.registry.Send(s, websocket.TextMessage, data)
}

var errResizeNotAllowed = errors.New("resize requires admin role")

func (h *WebSocketHandler) handleResize(ctx context.Context, s *Session, m models.ResizeCommand) {
	ctx, span := middleware.StartSpan(ctx, "World.Resize",
		attribute.String("session.id", s.ID),
		attribute.Int("resize.width", int(m.Width)),
		attribute.Int("resize.height", int(m.Height)),
		attribute.String("resize.anchor", m.Anchor.String()),
	)
	defer span.End()

	if h.cfg.AdminOnlyResize && s.Role != models.RoleAdmin {
		middleware.AddSpanError(ctx, errResizeNotAllowed)
		h.logger.Warn("dropping resize from non-admin session", zap.String("session", s.ID))
		return
	}
	if limit := h.cfg.MaxCanvasDimension; limit > 0 && (m.Width > uint(limit) || m.Height > uint(limit)) {
		h.logger.Warn("dropping oversized resize",
			zap.String("session", s.ID),
			zap.Uint("width", m.Width),
			zap.Uint("height", m.Height),
			zap.Int("limit", limit),
		)
		return
	}

	ev := models.Resize{Width: int(m.Width), Height: int(m.Height), Anchor: m.Anchor}

	h.commitMu.Lock()
	change, seq, err := h.world.ApplyEvent(ev)
	if err == nil {
		// Every client rebuilds from the new board.
		var data []byte
		if data, err = h.initPayload(); err == nil {
			h.registry.BroadcastAll(websocket.TextMessage, data)
		}
	}
	h.commitMu.Unlock()

	h.metrics.ChangeEvent(string(models.ChangeKindResize), err)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		h.logger.Warn("resize rejected", zap.String("session", s.ID), zap.Error(err))
		return
	}

	h.logger.Info("canvas resized",
		zap.String("session", s.ID),
		zap.Uint("width", m.Width),
		zap.Uint("height", m.Height),
		zap.Stringer("anchor", m.Anchor),
		zap.Int("changes", seq),
	)
	h.record(seq, change)
}

func (h *WebSocketHandler) record(seq int, change models.Change) {
	if h.recorder != nil {
		h.recorder.Record(seq, change)
	}
}
