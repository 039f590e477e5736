package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

/*
LEARNING: PRESENCE ACTIVITY LOG

Room state lives only in memory. What does get written to the database is an
append-only history of presence transitions (who joined which room, who was
turned away, who left). Nothing reads it back to rebuild rooms; it exists for
operators answering "who was in room X around 14:00?".
*/

type ActivityKind string

const (
	ActivityJoined       ActivityKind = "joined"
	ActivityRejected     ActivityKind = "rejected"
	ActivityDisconnected ActivityKind = "disconnected"
	ActivityOnline       ActivityKind = "online"
	ActivityOffline      ActivityKind = "offline"
)

// ActivityEntry is a single presence transition
type ActivityEntry struct {
	ID           string       `gorm:"type:varchar(27);primaryKey" json:"id"`
	RoomID       string       `gorm:"type:varchar(255);not null;index:idx_room_time" json:"roomId"`
	ConnectionID ConnectionID `gorm:"type:varchar(64);not null" json:"connectionId"`
	Username     string       `gorm:"type:varchar(255);not null" json:"username"`
	Kind         ActivityKind `gorm:"type:varchar(32);not null" json:"kind"`
	CreatedAt    time.Time    `gorm:"index:idx_room_time" json:"createdAt"`
}

// BeforeCreate generates KSUID
func (a *ActivityEntry) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = ksuid.New().String()
	}
	return nil
}

// TableName override
func (ActivityEntry) TableName() string {
	return "presence_activity"
}
