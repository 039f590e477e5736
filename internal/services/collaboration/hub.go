package collaboration

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"collab-relay/internal/metrics"
	"collab-relay/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

/*
LEARNING: THE HUB IS THE TRANSPORT, NOT THE TRUTH

The Hub tracks live sockets and the transport-level room groups. It does not
decide who is in a room; the coordinator's SessionStore does, and keeps the
hub's groups in sync through JoinGroup/LeaveGroup.

Groups are bookkeeping only. Fan-out always walks SessionStore.MembersOf, so
a group never widens who receives an event. The hub keeps them consistent
with the store as the Gateway contract requires, and reports them on
shutdown.

Sends never block: each connection has a buffered channel drained by its own
write goroutine. If the buffer is full the event is dropped for that
connection only, so one slow client cannot stall a whole room.
*/

var ErrHubClosed = errors.New("hub is shut down")

// Connection is one live WebSocket
type Connection struct {
	ID          models.ConnectionID
	RemoteAddr  string
	ConnectedAt time.Time

	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
}

func newConnection(id models.ConnectionID, conn *websocket.Conn, remoteAddr string, bufferSize int, limiter *rate.Limiter) *Connection {
	return &Connection{
		ID:          id,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, bufferSize),
		limiter:     limiter,
	}
}

// Hub manages all open connections and implements Gateway
type Hub struct {
	mu     sync.RWMutex
	conns  map[models.ConnectionID]*Connection
	groups map[string]map[models.ConnectionID]struct{} // roomID -> members
	closed bool
	wg     sync.WaitGroup

	log *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		conns:  make(map[models.ConnectionID]*Connection),
		groups: make(map[string]map[models.ConnectionID]struct{}),
		log:    log,
	}
}

// Register adds a connection. It fails once Shutdown has started.
func (h *Hub) Register(c *Connection) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	if _, exists := h.conns[c.ID]; exists {
		return errors.New("duplicate connection id")
	}

	h.conns[c.ID] = c
	h.wg.Add(1)
	metrics.OpenConnections.Inc()

	h.log.Debug("connection registered",
		zap.String("conn", string(c.ID)),
		zap.String("addr", c.RemoteAddr),
		zap.Int("total", len(h.conns)),
	)
	return nil
}

// Unregister removes a connection and closes its send channel, which tells
// the write pump to send a close frame and exit. Safe to call twice.
func (h *Hub) Unregister(id models.ConnectionID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[id]
	if !ok {
		return
	}
	delete(h.conns, id)
	for roomID, members := range h.groups {
		delete(members, id)
		if len(members) == 0 {
			delete(h.groups, roomID)
		}
	}
	close(c.send)

	h.wg.Done()
	metrics.OpenConnections.Dec()

	h.log.Debug("connection unregistered",
		zap.String("conn", string(id)),
		zap.Int("remaining", len(h.conns)),
	)
}

// Send encodes {event, data} and queues it without blocking
func (h *Hub) Send(id models.ConnectionID, kind models.EventKind, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("encode payload", zap.String("event", string(kind)), zap.Error(err))
		return false
	}
	frame, err := json.Marshal(models.Envelope{Event: kind, Data: data})
	if err != nil {
		h.log.Error("encode envelope", zap.String("event", string(kind)), zap.Error(err))
		return false
	}

	// Hold the read lock while queueing so Unregister cannot close the
	// channel underneath us.
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.conns[id]
	if !ok {
		return false
	}

	select {
	case c.send <- frame:
		return true
	default:
		h.log.Warn("send buffer full, dropping event",
			zap.String("conn", string(id)),
			zap.String("event", string(kind)),
		)
		return false
	}
}

func (h *Hub) JoinGroup(id models.ConnectionID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[id]; !ok {
		return
	}
	if h.groups[roomID] == nil {
		h.groups[roomID] = make(map[models.ConnectionID]struct{})
	}
	h.groups[roomID][id] = struct{}{}
}

func (h *Hub) LeaveGroup(id models.ConnectionID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.groups[roomID]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(h.groups, roomID)
		}
	}
}

// GroupSize returns how many connections the transport has in roomID
func (h *Hub) GroupSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[roomID])
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Shutdown closes every socket and waits until each read pump has run its
// disconnect path, or ctx expires.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.log.Info("🛑 Shutting down connection hub...",
		zap.Int("connections", len(h.conns)),
		zap.Int("rooms", len(h.groups)),
	)
	h.closed = true
	for _, c := range h.conns {
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("✓ Connection hub shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
