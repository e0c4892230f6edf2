package models

import (
	"time"

	"gorm.io/gorm"
)

type ChallengeStatus string

const (
	ChallengePending   ChallengeStatus = "PENDING"
	ChallengeAccepted  ChallengeStatus = "ACCEPTED"
	ChallengeRejected  ChallengeStatus = "REJECTED"
	ChallengeExpired   ChallengeStatus = "EXPIRED"
	ChallengeCancelled ChallengeStatus = "CANCELLED"
)

// Challenge is an invitation from one player to another. Only PENDING is live;
// every other status is terminal.
type Challenge struct {
	ID           string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ChallengerID string          `gorm:"not null;index" json:"challenger_id"`
	ChallengedID string          `gorm:"not null;index" json:"challenged_id"`
	Status       ChallengeStatus `gorm:"type:varchar(16);not null;index" json:"status"`

	ExpiresAt  time.Time  `gorm:"not null" json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	RejectedAt *time.Time `json:"rejected_at,omitempty"`
	ExpiredAt  *time.Time `json:"expired_at,omitempty"`

	// Rank snapshot taken at acceptance; drives point weighting later.
	ChallengerRank *int `json:"challenger_rank,omitempty"`
	ChallengedRank *int `json:"challenged_rank,omitempty"`

	Challenger *Player `json:"challenger,omitempty" gorm:"foreignKey:ChallengerID"`
	Challenged *Player `json:"challenged,omitempty" gorm:"foreignKey:ChallengedID"`

	Timestamps
}

func (c *Challenge) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// RankDiff is the absolute gap between the acceptance-time snapshots.
func (c *Challenge) RankDiff() int {
	if c.ChallengerRank == nil || c.ChallengedRank == nil {
		return 0
	}
	d := *c.ChallengerRank - *c.ChallengedRank
	if d < 0 {
		return -d
	}
	return d
}

// Involves reports whether playerID is one of the two parties.
func (c *Challenge) Involves(playerID string) bool {
	return c.ChallengerID == playerID || c.ChallengedID == playerID
}

// Opponent returns the other party, or "" if playerID is not involved.
func (c *Challenge) Opponent(playerID string) string {
	switch playerID {
	case c.ChallengerID:
		return c.ChallengedID
	case c.ChallengedID:
		return c.ChallengerID
	}
	return ""
}
