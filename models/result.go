package models

import (
	"time"

	"gorm.io/gorm"
)

type ReportStatus string

const (
	ReportPendingConfirmation ReportStatus = "PENDING_CONFIRMATION"
	ReportConfirmed           ReportStatus = "CONFIRMED"
	ReportRejected            ReportStatus = "REJECTED"
)

type ResultReport struct {
	ID         string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	MatchID    string       `gorm:"not null;uniqueIndex" json:"match_id"`
	ReporterID string       `gorm:"not null" json:"reporter_id"`
	Score      string       `gorm:"not null" json:"score"`
	Status     ReportStatus `gorm:"type:varchar(24);not null;index" json:"status"`

	ConfirmedBy *string    `json:"confirmed_by,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	RejectedBy  *string    `json:"rejected_by,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty"`

	Timestamps
}

func (r *ResultReport) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

type DisputeStatus string

const (
	DisputeOpen   DisputeStatus = "OPEN"
	DisputeClosed DisputeStatus = "CLOSED"
)

type DisputeResolution string

const (
	ResolutionAdminSetScore DisputeResolution = "ADMIN_SET_SCORE"
	ResolutionWalkover      DisputeResolution = "WALKOVER"
	ResolutionCancelled     DisputeResolution = "CANCELLED"
)

type Dispute struct {
	ID       string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	MatchID  string        `gorm:"not null;uniqueIndex" json:"match_id"`
	OpenedBy string        `gorm:"not null" json:"opened_by"`
	Status   DisputeStatus `gorm:"type:varchar(8);not null" json:"status"`

	Resolution *DisputeResolution `gorm:"type:varchar(24)" json:"resolution,omitempty"`
	ResolvedBy *string            `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time         `json:"resolved_at,omitempty"`

	Timestamps
}

func (d *Dispute) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}
