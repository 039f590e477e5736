package collaboration

import (
	"context"
	"encoding/json"
	"errors"

	"collab-relay/internal/models"
)

// Gateway is what the coordinator needs from the transport. Send is
// fire-and-forget: false means the event was dropped (unknown connection or a
// full send buffer) and is never retried.
type Gateway interface {
	Send(id models.ConnectionID, kind models.EventKind, payload any) bool
	JoinGroup(id models.ConnectionID, roomID string)
	LeaveGroup(id models.ConnectionID, roomID string)
}

// Dispatcher is the callback surface the transport drives for each connection
type Dispatcher interface {
	HandleEvent(ctx context.Context, id models.ConnectionID, kind models.EventKind, data json.RawMessage) error
	HandleDisconnect(ctx context.Context, id models.ConnectionID)
}

// ActivityRecorder receives presence transitions. Record must not block.
type ActivityRecorder interface {
	Record(entry models.ActivityEntry)
}

type noopRecorder struct{}

func (noopRecorder) Record(models.ActivityEntry) {}

var (
	// ErrUsernameExists rejects a join; the requester is told via username-exists
	ErrUsernameExists = errors.New("username already exists in room")

	// ErrNotJoined marks a stale reference: sender or target has no session
	ErrNotJoined = errors.New("connection has not joined a room")

	// ErrAlreadyJoined marks a second join from a joined connection
	ErrAlreadyJoined = errors.New("connection already joined a room")

	ErrMalformedPayload = errors.New("malformed payload")
	ErrUnknownEvent     = errors.New("unknown event")
)
