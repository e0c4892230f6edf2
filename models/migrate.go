package models

import (
	"fmt"

	"gorm.io/gorm"
)

// Migrate creates or updates every table plus the partial index that keeps a
// single live challenge per ordered pair.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Player{},
		&PlayerAlias{},
		&PlayerStats{},
		&MonthlyLimits{},
		&Challenge{},
		&Match{},
		&ScheduleProposal{},
		&ScheduleOption{},
		&ResultReport{},
		&Dispute{},
		&AuditLogEntry{},
		&ConversationState{},
		&ScheduledTask{},
		&ProcessedEvent{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_challenges_live_pair ON challenges (challenger_id, challenged_id) WHERE status = 'PENDING'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_proposals_open_match ON schedule_proposals (match_id) WHERE status = 'OPEN'`,
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			return fmt.Errorf("create partial index: %w", err)
		}
	}
	return nil
}
