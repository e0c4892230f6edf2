package services

import (
	"context"
	"fmt"
	"time"

	"challenge-ladder/models"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the collaborators shared by the negotiators and the adjudicator.
type Deps struct {
	DB       *gorm.DB
	Clock    clockwork.Clock
	Log      *zap.Logger
	Audit    *AuditTrail
	Ranking  *RankingEngine
	Limits   *RateLimiter
	Tasks    *ExpirationScheduler
	Notifier Notifier
	// Location is the zone players read and type times in.
	Location *time.Location
}

func (d *Deps) loc() *time.Location {
	if d.Location == nil {
		return time.UTC
	}
	return d.Location
}

// run executes fn in a transaction and, only if it commits, flushes the
// effects fn collected.
func (d *Deps) run(ctx context.Context, fn func(tx *gorm.DB, fx *effects) error) error {
	fx := &effects{}
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx, fx)
	})
	if err != nil {
		return err
	}
	fx.flush(ctx, d.Tasks, d.Ranking, d.Notifier, d.Log)
	return nil
}

// players loads the given players keyed by id. Missing ids are absent from the map.
func (d *Deps) players(tx *gorm.DB, ids ...string) (map[string]*models.Player, error) {
	var rows []models.Player
	if err := tx.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load players: %w", err)
	}
	out := make(map[string]*models.Player, len(rows))
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}

// loadChallenge returns nil without error when the row does not exist.
func loadChallenge(tx *gorm.DB, id string) (*models.Challenge, error) {
	var c models.Challenge
	res := tx.Where("id = ?", id).Limit(1).Find(&c)
	if res.Error != nil {
		return nil, fmt.Errorf("load challenge %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &c, nil
}

func loadMatch(tx *gorm.DB, id string) (*models.Match, error) {
	var m models.Match
	res := tx.Where("id = ?", id).Limit(1).Find(&m)
	if res.Error != nil {
		return nil, fmt.Errorf("load match %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &m, nil
}

// loadMatchWithChallenge loads a match and its originating challenge.
func loadMatchWithChallenge(tx *gorm.DB, id string) (*models.Match, error) {
	m, err := loadMatch(tx, id)
	if err != nil || m == nil {
		return m, err
	}
	ch, err := loadChallenge(tx, m.ChallengeID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, fmt.Errorf("match %s has no challenge %s", m.ID, m.ChallengeID)
	}
	m.Challenge = ch
	return m, nil
}

func addr(p map[string]*models.Player, id string) string {
	if pl, ok := p[id]; ok {
		return pl.Address
	}
	return ""
}

func name(p map[string]*models.Player, id string) string {
	if pl, ok := p[id]; ok {
		return pl.DisplayName
	}
	return id
}
