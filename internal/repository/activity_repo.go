package repository

import (
	"context"
	"fmt"

	"collab-relay/internal/models"

	"gorm.io/gorm"
)

/*
LEARNING: APPEND-ONLY HISTORY

The activity table is written once per presence transition and never
updated. The composite (room_id, created_at) index serves the only read
pattern: the latest N entries of one room.
*/

const (
	DefaultActivityLimit = 50
	MaxActivityLimit     = 500
)

// ActivityRepositoryImpl stores presence activity with GORM
type ActivityRepositoryImpl struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) *ActivityRepositoryImpl {
	return &ActivityRepositoryImpl{db: db}
}

// Store appends one entry
func (r *ActivityRepositoryImpl) Store(ctx context.Context, entry *models.ActivityEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to store activity: %w", err)
	}
	return nil
}

// ListByRoom returns the newest entries of a room first. limit is clamped
// to [1, MaxActivityLimit]; zero or negative means DefaultActivityLimit.
func (r *ActivityRepositoryImpl) ListByRoom(ctx context.Context, roomID string, limit int) ([]*models.ActivityEntry, error) {
	switch {
	case limit <= 0:
		limit = DefaultActivityLimit
	case limit > MaxActivityLimit:
		limit = MaxActivityLimit
	}

	var entries []*models.ActivityEntry
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}

	return entries, nil
}
