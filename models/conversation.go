package models

import (
	"gorm.io/datatypes"
)

type FlowState string

const (
	FlowIdle              FlowState = "IDLE"
	FlowSelectingOpponent FlowState = "SELECTING_OPPONENT"
	FlowProposingSchedule FlowState = "PROPOSING_SCHEDULE"
	FlowReportingResult   FlowState = "REPORTING_RESULT"
)

// ConversationState is the persisted per-player router state.
type ConversationState struct {
	PlayerID string         `gorm:"primaryKey;type:varchar(36)" json:"player_id"`
	State    FlowState      `gorm:"type:varchar(24);not null" json:"state"`
	Context  datatypes.JSON `json:"context,omitempty"`

	Timestamps
}
