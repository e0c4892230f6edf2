package models

import (
	"time"

	"gorm.io/gorm"
)

type MatchStatus string

const (
	MatchPendingSchedule           MatchStatus = "PENDING_SCHEDULE"
	MatchScheduled                 MatchStatus = "SCHEDULED"
	MatchPendingCourtConfirmation  MatchStatus = "PENDING_COURT_CONFIRMATION"
	MatchPendingResultConfirmation MatchStatus = "PENDING_RESULT_CONFIRMATION"
	MatchDisputed                  MatchStatus = "DISPUTED"
	MatchClosed                    MatchStatus = "CLOSED"
	MatchCancelled                 MatchStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s MatchStatus) Terminal() bool {
	return s == MatchClosed || s == MatchCancelled
}

// Match is created the moment a challenge is accepted. The resolved schedule is
// either ScheduledAt (exact) or DayPart (slot); ScheduledDate is set for both.
type Match struct {
	ID               string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ChallengeID      string      `gorm:"not null;uniqueIndex" json:"challenge_id"`
	Status           MatchStatus `gorm:"type:varchar(32);not null;index" json:"status"`
	SelectedOptionID *string     `json:"selected_option_id,omitempty"`

	ScheduledAt   *time.Time `json:"scheduled_at,omitempty"`
	ScheduledDate *time.Time `json:"scheduled_date,omitempty"`
	DayPart       *DayPart   `gorm:"type:varchar(16)" json:"day_part,omitempty"`

	CourtConfirmedAt *time.Time `json:"court_confirmed_at,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`

	Challenge *Challenge `json:"challenge,omitempty" gorm:"foreignKey:ChallengeID"`

	Timestamps
}

func (m *Match) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
