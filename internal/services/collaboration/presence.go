package collaboration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"collab-relay/internal/metrics"
	"collab-relay/internal/middleware"
	"collab-relay/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// join handles join-request. A taken username is answered with
// username-exists to the requester only and leaves the store untouched.
func (c *Coordinator) join(ctx context.Context, sender models.ConnectionID, data json.RawMessage) error {
	var req models.JoinRequest
	if err := decode(data, &req); err != nil {
		return err
	}

	roomID := strings.TrimSpace(req.RoomID)
	username := strings.TrimSpace(req.Username)
	if roomID == "" || username == "" {
		return fmt.Errorf("%w: roomId and username are required", ErrMalformedPayload)
	}

	if existing, ok := c.store.Get(sender); ok {
		return fmt.Errorf("%w: %s is %q in room %q", ErrAlreadyJoined, sender, existing.Username, existing.RoomID)
	}

	if c.store.UsernameTaken(roomID, username) {
		c.send(sender, models.EventUsernameExists, models.Empty{})
		metrics.JoinRejections.Inc()
		c.record(models.UserSession{ConnectionID: sender, RoomID: roomID, Username: username}, models.ActivityRejected)
		return fmt.Errorf("%w: %q in room %q", ErrUsernameExists, username, roomID)
	}

	session := models.NewUserSession(sender, roomID, username)
	c.store.Put(session)
	c.gateway.JoinGroup(sender, roomID)

	members := c.store.ListByRoom(roomID)
	active := make([]models.UserSession, 0, len(members))
	for _, m := range members {
		if m.Status == models.StatusOnline {
			active = append(active, m)
		}
	}

	c.broadcastExcept(roomID, sender, models.EventUserJoined, models.UserPayload{User: session})
	c.send(sender, models.EventJoinAccepted, models.JoinAccepted{
		CurrentUser:     session,
		ActiveRoomUsers: active,
	})

	c.record(session, models.ActivityJoined)
	c.refreshGauges()

	middleware.AddSpanEvent(ctx, "session.joined", attribute.Int("room.size", len(members)))
	c.log.Info("user joined",
		zap.String("conn", string(sender)),
		zap.String("room", roomID),
		zap.String("username", username),
		zap.Int("members", len(members)),
	)
	return nil
}

// HandleDisconnect removes a connection's session. Calling it for a
// connection that never joined, or twice, is a no-op.
//
// The departure is broadcast before the session is removed so peers receive
// the user's last known state.
func (c *Coordinator) HandleDisconnect(ctx context.Context, id models.ConnectionID) {
	ctx, span := middleware.StartSpan(ctx, "Relay.disconnect",
		attribute.String("connection.id", string(id)),
	)
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	session, ok := c.store.Get(id)
	if !ok {
		c.log.Debug("disconnect without session", zap.String("conn", string(id)))
		return
	}
	span.SetAttributes(attribute.String("room.id", session.RoomID))

	c.broadcastExcept(session.RoomID, id, models.EventUserDisconnected, models.UserPayload{User: session})
	c.store.Remove(id)
	c.gateway.LeaveGroup(id, session.RoomID)

	c.record(session, models.ActivityDisconnected)
	c.refreshGauges()

	middleware.AddSpanEvent(ctx, "session.removed")
	c.log.Info("user disconnected",
		zap.String("conn", string(id)),
		zap.String("room", session.RoomID),
		zap.String("username", session.Username),
	)
}

// setStatus builds the user-online / user-offline handler. The toggle
// targets clientConnectionId (the sender itself when omitted) within the
// sender's room and is announced to that room, minus the sender.
func (c *Coordinator) setStatus(kind models.EventKind, status models.UserConnectionStatus) handlerFunc {
	activity := models.ActivityOnline
	if status == models.StatusOffline {
		activity = models.ActivityOffline
	}

	return func(ctx context.Context, sender models.ConnectionID, data json.RawMessage) error {
		var req models.PresenceToggle
		if err := decode(data, &req); err != nil {
			return err
		}

		room, ok := c.store.RoomOf(sender)
		if !ok {
			return fmt.Errorf("%w: sender %s", ErrNotJoined, sender)
		}

		target := req.ClientConnectionID
		if target == "" {
			target = sender
		}
		// a target in another room is a stale reference
		if targetRoom, ok := c.store.RoomOf(target); !ok || targetRoom != room {
			return fmt.Errorf("%w: presence target %s not in room %q", ErrNotJoined, target, room)
		}

		updated, ok := c.store.Update(target, func(s *models.UserSession) {
			s.Status = status
		})
		if !ok {
			return fmt.Errorf("%w: presence target %s", ErrNotJoined, target)
		}

		c.broadcastExcept(room, sender, kind, models.ConnectionRef{ConnectionID: target})
		c.record(updated, activity)
		return nil
	}
}
