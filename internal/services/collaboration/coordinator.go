package collaboration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"collab-relay/internal/metrics"
	"collab-relay/internal/middleware"
	"collab-relay/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

/*
LEARNING: ONE LOCK, ONE EVENT AT A TIME

Every socket has its own read goroutine, so events from different users arrive
in parallel. The coordinator handles each event to completion under a single
mutex: store reads, store writes and all outbound sends for that event.

That is what makes the join check-then-insert safe (two "alice" joins cannot
interleave) and what keeps a broadcast from picking up a connection that is
halfway through disconnecting.

Holding the lock while sending is fine because Gateway.Send only drops bytes
into a buffered channel; it never waits on the network.
*/

type handlerFunc func(ctx context.Context, sender models.ConnectionID, data json.RawMessage) error

// Coordinator owns the session store and routes every inbound event
type Coordinator struct {
	mu       sync.Mutex
	store    *SessionStore
	gateway  Gateway
	activity ActivityRecorder
	log      *zap.Logger

	handlers map[models.EventKind]handlerFunc
}

// NewCoordinator creates a coordinator that emits through gateway
func NewCoordinator(gateway Gateway, log *zap.Logger) *Coordinator {
	c := &Coordinator{
		store:    NewSessionStore(),
		gateway:  gateway,
		activity: noopRecorder{},
		log:      log,
	}
	c.handlers = c.routes()
	return c
}

// SetActivityRecorder sets where presence transitions are recorded
func (c *Coordinator) SetActivityRecorder(r ActivityRecorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r == nil {
		r = noopRecorder{}
	}
	c.activity = r
}

// routes builds the dispatch table. Content events that need no
// interpretation all share relayVerbatim.
func (c *Coordinator) routes() map[models.EventKind]handlerFunc {
	h := map[models.EventKind]handlerFunc{
		models.EventJoinRequest: c.join,
		models.EventUserOnline:  c.setStatus(models.EventUserOnline, models.StatusOnline),
		models.EventUserOffline: c.setStatus(models.EventUserOffline, models.StatusOffline),

		models.EventSyncStructure: c.relayDirected(models.EventSyncStructure),
		models.EventSyncDrawing:   c.relayDirected(models.EventSyncDrawing),

		models.EventTypingStart: c.mutateAndBroadcast(models.EventTypingStart, func(s *models.UserSession, u models.CursorUpdate) {
			s.Typing = true
			applyCursor(s, u)
		}),
		models.EventTypingPause: c.mutateAndBroadcast(models.EventTypingPause, func(s *models.UserSession, _ models.CursorUpdate) {
			s.Typing = false
		}),
		models.EventCursorMove: c.mutateAndBroadcast(models.EventCursorMove, applyCursor),

		models.EventSendMessage:    c.relayVerbatim(models.EventReceiveMessage),
		models.EventRequestDrawing: c.requestDrawing,
	}

	for _, kind := range []models.EventKind{
		models.EventDirectoryUpdated,
		models.EventDirectoryRename,
		models.EventDirectoryDelete,
		models.EventFileCreated,
		models.EventFileUpdated,
		models.EventFileRenamed,
		models.EventFileDeleted,
		models.EventDrawingUpdate,
	} {
		h[kind] = c.relayVerbatim(kind)
	}

	return h
}

// HandleEvent dispatches one inbound event. The returned error has already
// been logged and counted; transports may ignore it.
func (c *Coordinator) HandleEvent(ctx context.Context, sender models.ConnectionID, kind models.EventKind, data json.RawMessage) (err error) {
	handler, ok := c.handlers[kind]
	label := string(kind)
	if !ok {
		label = "unknown"
	}
	metrics.InboundEvents.WithLabelValues(label).Inc()

	ctx, span := middleware.StartSpan(ctx, "Relay."+label,
		attribute.String("connection.id", string(sender)),
		attribute.String("event.kind", string(kind)),
		attribute.Int("payload.size", len(data)),
	)
	defer span.End()

	if !ok {
		err = fmt.Errorf("%w: %q", ErrUnknownEvent, kind)
		c.report(ctx, sender, kind, err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic handling %s: %v", kind, r)
			metrics.DroppedEvents.WithLabelValues(metrics.ReasonPanic).Inc()
			middleware.AddSpanError(ctx, err)
			c.log.Error("relay handler panicked",
				zap.String("conn", string(sender)),
				zap.String("event", string(kind)),
				zap.Any("panic", r),
			)
		}
	}()

	if roomID, joined := c.store.RoomOf(sender); joined {
		span.SetAttributes(attribute.String("room.id", roomID))
	}

	err = handler(ctx, sender, data)
	c.report(ctx, sender, kind, err)
	return err
}

// report classifies a handler error. Nothing here ever reaches a client.
func (c *Coordinator) report(ctx context.Context, sender models.ConnectionID, kind models.EventKind, err error) {
	if err == nil {
		return
	}

	fields := []zap.Field{
		zap.String("conn", string(sender)),
		zap.String("event", string(kind)),
		zap.Error(err),
	}

	switch {
	case errors.Is(err, ErrUsernameExists):
		c.log.Info("join rejected", fields...)
	case errors.Is(err, ErrNotJoined):
		metrics.DroppedEvents.WithLabelValues(metrics.ReasonNotJoined).Inc()
		c.log.Debug("stale reference, event ignored", fields...)
	case errors.Is(err, ErrAlreadyJoined):
		metrics.DroppedEvents.WithLabelValues(metrics.ReasonRejected).Inc()
		c.log.Debug("duplicate join ignored", fields...)
	case errors.Is(err, ErrMalformedPayload):
		metrics.DroppedEvents.WithLabelValues(metrics.ReasonMalformed).Inc()
		middleware.AddSpanError(ctx, err)
		c.log.Warn("malformed payload dropped", fields...)
	case errors.Is(err, ErrUnknownEvent):
		metrics.DroppedEvents.WithLabelValues(metrics.ReasonUnknown).Inc()
		c.log.Warn("unknown event dropped", fields...)
	default:
		middleware.AddSpanError(ctx, err)
		c.log.Error("relay handler failed", fields...)
	}
}

// RoomMembers returns a snapshot of one room in join order
func (c *Coordinator) RoomMembers(roomID string) []models.UserSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.ListByRoom(roomID)
}

// Rooms returns a summary of every active room
func (c *Coordinator) Rooms() []models.RoomSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Rooms()
}

// send hands one event to the gateway and counts the outcome
func (c *Coordinator) send(target models.ConnectionID, kind models.EventKind, payload any) bool {
	if c.gateway.Send(target, kind, payload) {
		metrics.OutboundDeliveries.WithLabelValues(string(kind)).Inc()
		return true
	}
	metrics.DroppedSends.Inc()
	c.log.Debug("send dropped", zap.String("conn", string(target)), zap.String("event", string(kind)))
	return false
}

func (c *Coordinator) record(session models.UserSession, kind models.ActivityKind) {
	c.activity.Record(models.ActivityEntry{
		RoomID:       session.RoomID,
		ConnectionID: session.ConnectionID,
		Username:     session.Username,
		Kind:         kind,
		CreatedAt:    time.Now().UTC(),
	})
}

func (c *Coordinator) refreshGauges() {
	metrics.JoinedSessions.Set(float64(c.store.Len()))
	metrics.ActiveRooms.Set(float64(c.store.RoomCount()))
}

// decode unmarshals an event payload; a missing payload decodes as {}
func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}
