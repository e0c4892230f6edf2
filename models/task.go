package models

import (
	"time"

	"gorm.io/gorm"
)

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskDone      TaskStatus = "done"
	TaskCancelled TaskStatus = "cancelled"
	TaskFailed    TaskStatus = "failed"
)

type TaskKind string

const (
	TaskExpireChallenge TaskKind = "expire-challenge"
	TaskExpireSchedule  TaskKind = "expire-schedule"
)

// ScheduledTask is the durable intent behind a delayed job. The in-memory
// scheduler only ever arms rows that are pending here.
type ScheduledTask struct {
	ID        string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Key       string     `gorm:"not null;uniqueIndex" json:"key"`
	Kind      TaskKind   `gorm:"type:varchar(32);not null" json:"kind"`
	EntityID  string     `gorm:"not null" json:"entity_id"`
	RunAt     time.Time  `gorm:"not null" json:"run_at"`
	Status    TaskStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	Attempts  int        `gorm:"not null;default:0" json:"attempts"`
	LastError string     `json:"last_error,omitempty"`

	Timestamps
}

func (t *ScheduledTask) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// TaskKey builds the deterministic key for an entity's task.
func TaskKey(kind TaskKind, entityID string) string {
	return string(kind) + ":" + entityID
}
