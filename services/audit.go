package services

import (
	"encoding/json"
	"fmt"

	"challenge-ladder/metrics"
	"challenge-ladder/models"

	"github.com/jonboulle/clockwork"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EntityChallenge = "challenge"
	EntityMatch     = "match"
	EntityPlayer    = "player"
)

// AuditTrail appends immutable records of state changes. Record is always
// called with the transaction that performs the change.
type AuditTrail struct {
	DB    *gorm.DB
	Clock clockwork.Clock
}

func NewAuditTrail(db *gorm.DB, clock clockwork.Clock) *AuditTrail {
	return &AuditTrail{DB: db, Clock: clock}
}

func (a *AuditTrail) Record(tx *gorm.DB, entityType, entityID, action string, actor *string, payload map[string]any) error {
	var raw datatypes.JSON
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal audit payload: %w", err)
		}
		raw = b
	}
	entry := models.AuditLogEntry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Actor:      actor,
		Payload:    raw,
		CreatedAt:  a.Clock.Now().UTC(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("append audit %s/%s: %w", entityType, action, err)
	}
	metrics.TransitionsTotal.WithLabelValues(entityType, action).Inc()
	return nil
}

// List returns an entity's audit history, oldest first.
func (a *AuditTrail) List(entityType, entityID string) ([]models.AuditLogEntry, error) {
	var out []models.AuditLogEntry
	err := a.DB.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC").Order("id ASC").
		Find(&out).Error
	return out, err
}

func actorOf(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
