package models

import "time"

// ProcessedEvent records an inbound message id so redeliveries are dropped.
type ProcessedEvent struct {
	MessageID   string    `gorm:"primaryKey;type:varchar(128)" json:"message_id"`
	PlayerID    *string   `json:"player_id,omitempty"`
	ProcessedAt time.Time `gorm:"not null" json:"processed_at"`
}
