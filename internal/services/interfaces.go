package services

import (
	"context"

	"collab-relay/internal/models"
)

// Interfaces live with the consumer: the services package declares only what
// it calls on storage.

// ActivityRepository is the write side of the activity log
type ActivityRepository interface {
	Store(ctx context.Context, entry *models.ActivityEntry) error
}
