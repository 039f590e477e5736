package collaboration

import (
	"context"
	"encoding/json"
	"fmt"

	"collab-relay/internal/models"
)

// targetField is the routing field of directed relays. It is stripped from
// the forwarded payload.
const targetField = "connectionId"

// BroadcastToRoom forwards payload to every other member of the sender's
// room. A sender without a session is a no-op reported as ErrNotJoined.
func (c *Coordinator) BroadcastToRoom(ctx context.Context, sender models.ConnectionID, kind models.EventKind, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broadcastFrom(sender, kind, payload)
}

// RelayToConnection delivers payload to a single joined connection
func (c *Coordinator) RelayToConnection(ctx context.Context, target models.ConnectionID, kind models.EventKind, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.store.Get(target); !ok {
		return fmt.Errorf("%w: relay target %s", ErrNotJoined, target)
	}
	c.send(target, kind, payload)
	return nil
}

func (c *Coordinator) broadcastFrom(sender models.ConnectionID, kind models.EventKind, payload any) error {
	roomID, ok := c.store.RoomOf(sender)
	if !ok {
		return fmt.Errorf("%w: sender %s", ErrNotJoined, sender)
	}
	c.broadcastExcept(roomID, sender, kind, payload)
	return nil
}

// broadcastExcept sends to every member of roomID except exclude and
// returns how many sends were queued
func (c *Coordinator) broadcastExcept(roomID string, exclude models.ConnectionID, kind models.EventKind, payload any) int {
	delivered := 0
	for _, id := range c.store.MembersOf(roomID) {
		if id == exclude {
			continue
		}
		if c.send(id, kind, payload) {
			delivered++
		}
	}
	return delivered
}

// relayVerbatim forwards the inbound payload unchanged under outKind
func (c *Coordinator) relayVerbatim(outKind models.EventKind) handlerFunc {
	return func(_ context.Context, sender models.ConnectionID, data json.RawMessage) error {
		payload := data
		if len(payload) == 0 {
			payload = json.RawMessage("{}")
		}
		return c.broadcastFrom(sender, outKind, payload)
	}
}

// relayDirected handles sync-structure and user-sync-drawing: the payload's
// connectionId picks a single recipient in the sender's room and every
// other field is forwarded as-is.
func (c *Coordinator) relayDirected(kind models.EventKind) handlerFunc {
	return func(_ context.Context, sender models.ConnectionID, data json.RawMessage) error {
		var fields map[string]json.RawMessage
		if err := decode(data, &fields); err != nil {
			return err
		}

		raw, ok := fields[targetField]
		if !ok {
			return fmt.Errorf("%w: %s requires %s", ErrMalformedPayload, kind, targetField)
		}
		var target models.ConnectionID
		if err := json.Unmarshal(raw, &target); err != nil || target == "" {
			return fmt.Errorf("%w: %s must be a non-empty string", ErrMalformedPayload, targetField)
		}
		delete(fields, targetField)

		senderRoom, ok := c.store.RoomOf(sender)
		if !ok {
			return fmt.Errorf("%w: sender %s", ErrNotJoined, sender)
		}
		targetRoom, ok := c.store.RoomOf(target)
		if !ok || targetRoom != senderRoom {
			return fmt.Errorf("%w: relay target %s not in room %q", ErrNotJoined, target, senderRoom)
		}

		c.send(target, kind, fields)
		return nil
	}
}

// requestDrawing asks the rest of the room for the current drawing; peers
// answer with user-sync-drawing addressed to the requester.
func (c *Coordinator) requestDrawing(_ context.Context, sender models.ConnectionID, _ json.RawMessage) error {
	return c.broadcastFrom(sender, models.EventRequestDrawing, models.ConnectionRef{ConnectionID: sender})
}

// mutateAndBroadcast applies a cursor/typing change to the stored session,
// then broadcasts the full updated session.
func (c *Coordinator) mutateAndBroadcast(kind models.EventKind, mutate func(*models.UserSession, models.CursorUpdate)) handlerFunc {
	return func(_ context.Context, sender models.ConnectionID, data json.RawMessage) error {
		var update models.CursorUpdate
		if err := decode(data, &update); err != nil {
			return err
		}
		if err := validateCursor(update); err != nil {
			return err
		}

		updated, ok := c.store.Update(sender, func(s *models.UserSession) {
			mutate(s, update)
		})
		if !ok {
			return fmt.Errorf("%w: sender %s", ErrNotJoined, sender)
		}

		c.broadcastExcept(updated.RoomID, sender, kind, models.SessionUserPayload{SessionUser: updated})
		return nil
	}
}

func applyCursor(s *models.UserSession, u models.CursorUpdate) {
	if u.CursorPosition != nil {
		s.CursorPosition = *u.CursorPosition
	}
	s.SelectionStart = u.SelectionStart
	s.SelectionEnd = u.SelectionEnd
}

func validateCursor(u models.CursorUpdate) error {
	for name, v := range map[string]*int{
		"cursorPosition": u.CursorPosition,
		"selectionStart": u.SelectionStart,
		"selectionEnd":   u.SelectionEnd,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%w: %s must be >= 0, got %d", ErrMalformedPayload, name, *v)
		}
	}
	return nil
}
