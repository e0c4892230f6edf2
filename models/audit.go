package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLogEntry is append-only. Nothing updates or deletes these rows.
type AuditLogEntry struct {
	ID         string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	EntityType string         `gorm:"not null;index:idx_audit_entity" json:"entity_type"`
	EntityID   string         `gorm:"not null;index:idx_audit_entity" json:"entity_id"`
	Action     string         `gorm:"not null" json:"action"`
	Actor      *string        `json:"actor,omitempty"`
	Payload    datatypes.JSON `json:"payload,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"created_at"`
}

func (a *AuditLogEntry) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
