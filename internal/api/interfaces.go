package api

import (
	"context"

	"collab-relay/internal/models"
)

// Handlers only need read access. The coordinator and the activity
// repository satisfy these without the api package importing either.

// RoomDirectory exposes snapshots of the live room state
type RoomDirectory interface {
	Rooms() []models.RoomSummary
	RoomMembers(roomID string) []models.UserSession
}

// ActivityReader is the read side of the activity log
type ActivityReader interface {
	ListByRoom(ctx context.Context, roomID string, limit int) ([]*models.ActivityEntry, error)
}
