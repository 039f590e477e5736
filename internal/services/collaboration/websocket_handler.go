package collaboration

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"collab-relay/internal/metrics"
	"collab-relay/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const writeWait = 10 * time.Second

// GatewayConfig holds per-connection transport limits
type GatewayConfig struct {
	AllowedOrigins  []string
	MaxMessageSize  int64
	SendBufferSize  int
	EventsPerSecond int
	EventBurst      int
	PingInterval    time.Duration
	PongWait        time.Duration
}

// WebSocketHandler upgrades /ws requests and runs the read and write pumps
// for each connection
type WebSocketHandler struct {
	hub        *Hub
	dispatcher Dispatcher
	cfg        GatewayConfig
	upgrader   websocket.Upgrader
	log        *zap.Logger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *Hub, dispatcher Dispatcher, cfg GatewayConfig, log *zap.Logger) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:        hub,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin allows non-browser clients (no Origin header) and any origin
// on the allow list; "*" allows everything.
func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	h.log.Warn("websocket origin rejected", zap.String("origin", origin))
	return false
}

// ServeHTTP upgrades the connection, registers it and blocks in the read
// pump until the socket closes.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("failed to upgrade websocket", zap.Error(err))
		return
	}

	c := newConnection(
		models.ConnectionID(uuid.NewString()),
		conn,
		r.RemoteAddr,
		h.cfg.SendBufferSize,
		rate.NewLimiter(rate.Limit(h.cfg.EventsPerSecond), h.cfg.EventBurst),
	)

	if err := h.hub.Register(c); err != nil {
		h.log.Warn("rejecting connection", zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	h.log.Info("✓ WebSocket connection established",
		zap.String("conn", string(c.ID)),
		zap.String("addr", c.RemoteAddr),
	)

	// The pumps outlive the request, and every event span is a root of its own
	ctx := context.Background()

	go h.writePump(c)
	h.readPump(ctx, c)
}

// readPump decodes envelopes and hands them to the dispatcher. When the
// socket closes, the disconnect path runs before the connection is
// unregistered so peers are told while the send channel still exists.
func (h *WebSocketHandler) readPump(ctx context.Context, c *Connection) {
	defer func() {
		h.dispatcher.HandleDisconnect(ctx, c.ID)
		h.hub.Unregister(c.ID)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(h.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			h.logReadError(c, err)
			return
		}

		if !c.limiter.Allow() {
			metrics.DroppedEvents.WithLabelValues(metrics.ReasonRateLimited).Inc()
			h.log.Debug("rate limit exceeded, event dropped", zap.String("conn", string(c.ID)))
			continue
		}

		var env models.Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			metrics.DroppedEvents.WithLabelValues(metrics.ReasonMalformed).Inc()
			h.log.Warn("invalid frame dropped", zap.String("conn", string(c.ID)), zap.Error(err))
			continue
		}

		// A client-sent disconnect is treated like closing the socket
		if env.Event == models.EventDisconnect {
			return
		}

		_ = h.dispatcher.HandleEvent(ctx, c.ID, env.Event, env.Data)
	}
}

func (h *WebSocketHandler) logReadError(c *Connection, err error) {
	fields := []zap.Field{zap.String("conn", string(c.ID)), zap.Error(err)}

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		h.log.Warn("message exceeded size limit", append(fields, zap.Int64("limit", h.cfg.MaxMessageSize))...)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		h.log.Debug("client closed connection", fields...)
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		h.log.Warn("unexpected websocket close", fields...)
	default:
		h.log.Debug("websocket read ended", fields...)
	}
}

// writePump drains the send channel one frame per message and keeps the
// connection alive with pings
func (h *WebSocketHandler) writePump(c *Connection) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.log.Debug("websocket write failed", zap.String("conn", string(c.ID)), zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
