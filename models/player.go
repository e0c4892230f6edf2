package models

import (
	"time"

	"gorm.io/gorm"
)

// MaxActiveAliases is the number of nicknames a player may keep active at once.
const MaxActiveAliases = 3

// Player is identified by the contact address messages arrive from (E.164 phone).
// Players are never hard-deleted; Active=false hides them from ranking and search.
type Player struct {
	ID             string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Address        string `gorm:"uniqueIndex;not null" json:"address"`
	DisplayName    string `gorm:"not null" json:"display_name"`
	NormalizedName string `gorm:"index" json:"-"`
	Active         bool   `gorm:"not null;default:true" json:"active"`

	Aliases []PlayerAlias `json:"aliases,omitempty" gorm:"foreignKey:PlayerID"`

	Timestamps
}

func (p *Player) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// PlayerAlias is a nickname owned by exactly one player.
type PlayerAlias struct {
	ID         string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PlayerID   string     `gorm:"not null;uniqueIndex:idx_player_alias,priority:1" json:"player_id"`
	Alias      string     `gorm:"not null" json:"alias"`
	Normalized string     `gorm:"not null;index;uniqueIndex:idx_player_alias,priority:2" json:"normalized"`
	Active     bool       `gorm:"not null;default:true" json:"active"`
	RemovedAt  *time.Time `json:"removed_at,omitempty"`

	Timestamps
}

func (a *PlayerAlias) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// PlayerStats is owned by the ranking engine; nothing else writes points or rank.
type PlayerStats struct {
	PlayerID       string     `gorm:"primaryKey;type:varchar(36)" json:"player_id"`
	Points         int64      `gorm:"not null;default:0" json:"points"`
	RankPosition   int        `gorm:"not null;default:0" json:"rank_position"`
	LastComputedAt *time.Time `json:"last_computed_at,omitempty"`

	Player *Player `json:"player,omitempty" gorm:"foreignKey:PlayerID"`

	Timestamps
}

// MonthlyLimits counts challenge activity for one player in one calendar month.
// Period is year*100+month, e.g. 202610.
type MonthlyLimits struct {
	ID            string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PlayerID      string `gorm:"not null;uniqueIndex:idx_limits_player_period,priority:1" json:"player_id"`
	Period        int    `gorm:"not null;uniqueIndex:idx_limits_player_period,priority:2" json:"period"`
	SentCount     int    `gorm:"not null;default:0" json:"sent_count"`
	AcceptedCount int    `gorm:"not null;default:0" json:"accepted_count"`

	Timestamps
}

func (m *MonthlyLimits) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
