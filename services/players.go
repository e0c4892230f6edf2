package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"challenge-ladder/models"
	"challenge-ladder/utils"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxAliasLength = 32

// PlayerService is the player directory: resolution by contact address,
// nicknames and search.
type PlayerService struct {
	DB      *gorm.DB
	Clock   clockwork.Clock
	Audit   *AuditTrail
	Ranking *RankingEngine
	Log     *zap.Logger
}

func NewPlayerService(db *gorm.DB, clock clockwork.Clock, audit *AuditTrail, ranking *RankingEngine, log *zap.Logger) *PlayerService {
	return &PlayerService{DB: db, Clock: clock, Audit: audit, Ranking: ranking, Log: log}
}

// Resolve returns the player behind address, creating it on first contact.
// An inactive player is reactivated when they write again.
func (s *PlayerService) Resolve(ctx context.Context, address, displayName string) (*models.Player, error) {
	addr, ok := utils.NormalizePhone(address)
	if !ok {
		addr = strings.TrimSpace(address)
	}
	if addr == "" {
		return nil, fmt.Errorf("empty contact address")
	}
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = addr
	}

	db := s.DB.WithContext(ctx)
	p := models.Player{
		Address:        addr,
		DisplayName:    name,
		NormalizedName: utils.NormalizeName(name),
		Active:         true,
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&p)
	if res.Error != nil {
		return nil, fmt.Errorf("create player: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.Log.Info("👤 new player", zap.String("player_id", p.ID), zap.String("address", addr))
		if err := s.Audit.Record(db, EntityPlayer, p.ID, "REGISTERED", &p.ID, map[string]any{"display_name": name}); err != nil {
			return nil, err
		}
		s.Ranking.Invalidate(ctx)
		return &p, nil
	}

	var existing models.Player
	if err := db.Where("address = ?", addr).First(&existing).Error; err != nil {
		return nil, fmt.Errorf("load player: %w", err)
	}
	if !existing.Active {
		if err := db.Model(&existing).Update("active", true).Error; err != nil {
			return nil, fmt.Errorf("reactivate player: %w", err)
		}
		existing.Active = true
	}
	return &existing, nil
}

// Get loads a player by id, or nil when there is none.
func (s *PlayerService) Get(tx *gorm.DB, id string) (*models.Player, error) {
	if tx == nil {
		tx = s.DB
	}
	var p models.Player
	err := tx.Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load player %s: %w", id, err)
	}
	return &p, nil
}

// FindByAddress looks a player up by contact address without creating one.
func (s *PlayerService) FindByAddress(ctx context.Context, address string) (*models.Player, error) {
	addr, ok := utils.NormalizePhone(address)
	if !ok {
		addr = strings.TrimSpace(address)
	}
	if addr == "" {
		return nil, nil
	}
	var p models.Player
	res := s.DB.WithContext(ctx).Where("address = ?", addr).Limit(1).Find(&p)
	if res.Error != nil {
		return nil, fmt.Errorf("find player by address: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &p, nil
}

// Search finds active players by phone, display name or active alias. Exact
// matches come first, then prefix, then substring. exclude is left out.
func (s *PlayerService) Search(ctx context.Context, query, exclude string, limit int) ([]models.Player, error) {
	db := s.DB.WithContext(ctx)
	if limit <= 0 {
		limit = 10
	}

	if phone, ok := utils.NormalizePhone(query); ok {
		var players []models.Player
		err := db.Where("active = ? AND address = ? AND id <> ?", true, phone, exclude).Find(&players).Error
		if err != nil {
			return nil, fmt.Errorf("search by phone: %w", err)
		}
		return players, nil
	}

	q := utils.NormalizeName(query)
	if q == "" {
		return nil, nil
	}
	like := "%" + q + "%"

	var byName []models.Player
	if err := db.Where("active = ? AND id <> ? AND normalized_name LIKE ?", true, exclude, like).
		Find(&byName).Error; err != nil {
		return nil, fmt.Errorf("search by name: %w", err)
	}

	var aliases []models.PlayerAlias
	if err := db.Where("active = ? AND normalized LIKE ?", true, like).Find(&aliases).Error; err != nil {
		return nil, fmt.Errorf("search by alias: %w", err)
	}
	aliasOf := make(map[string]string, len(aliases))
	var aliasOwners []string
	for _, a := range aliases {
		if a.PlayerID == exclude {
			continue
		}
		if prev, seen := aliasOf[a.PlayerID]; !seen || score(q, a.Normalized) < score(q, prev) {
			aliasOf[a.PlayerID] = a.Normalized
		}
		aliasOwners = append(aliasOwners, a.PlayerID)
	}

	found := make(map[string]models.Player, len(byName))
	for _, p := range byName {
		found[p.ID] = p
	}
	if len(aliasOwners) > 0 {
		var owners []models.Player
		if err := db.Where("active = ? AND id IN ?", true, aliasOwners).Find(&owners).Error; err != nil {
			return nil, fmt.Errorf("load alias owners: %w", err)
		}
		for _, p := range owners {
			found[p.ID] = p
		}
	}

	best := func(p models.Player) int {
		r := score(q, p.NormalizedName)
		if a, ok := aliasOf[p.ID]; ok && score(q, a) < r {
			r = score(q, a)
		}
		return r
	}
	out := make([]models.Player, 0, len(found))
	for _, p := range found {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		bi, bj := best(out[i]), best(out[j])
		if bi != bj {
			return bi < bj
		}
		if out[i].NormalizedName != out[j].NormalizedName {
			return out[i].NormalizedName < out[j].NormalizedName
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// score ranks a candidate: 0 exact, 1 prefix, 2 substring, 3 no match.
func score(q, candidate string) int {
	switch {
	case candidate == q:
		return 0
	case strings.HasPrefix(candidate, q):
		return 1
	case strings.Contains(candidate, q):
		return 2
	}
	return 3
}

// AddAlias adds a nickname. A previously removed alias is reactivated.
func (s *PlayerService) AddAlias(ctx context.Context, playerID, alias string) (*Outcome, error) {
	const op = "add_alias"
	alias = strings.TrimSpace(alias)
	norm := utils.NormalizeName(alias)
	if norm == "" || len(alias) > maxAliasLength {
		return refuse(op, ReasonAliasInvalid), nil
	}

	var out *Outcome
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&models.PlayerAlias{}).
			Where("player_id = ? AND active = ?", playerID, true).
			Count(&active).Error; err != nil {
			return err
		}

		var existing models.PlayerAlias
		err := tx.Where("player_id = ? AND normalized = ?", playerID, norm).First(&existing).Error
		switch {
		case err == nil && existing.Active:
			out = refuse(op, ReasonAliasTaken)
			return nil
		case err == nil:
			if active >= models.MaxActiveAliases {
				out = refuse(op, ReasonAliasLimit)
				return nil
			}
			if err := tx.Model(&existing).Updates(map[string]any{"active": true, "removed_at": nil, "alias": alias}).Error; err != nil {
				return err
			}
			existing.Active, existing.RemovedAt, existing.Alias = true, nil, alias
		case errors.Is(err, gorm.ErrRecordNotFound):
			if active >= models.MaxActiveAliases {
				out = refuse(op, ReasonAliasLimit)
				return nil
			}
			existing = models.PlayerAlias{PlayerID: playerID, Alias: alias, Normalized: norm, Active: true}
			if err := tx.Create(&existing).Error; err != nil {
				return err
			}
		default:
			return err
		}

		if err := s.Audit.Record(tx, EntityPlayer, playerID, "ALIAS_ADDED", &playerID, map[string]any{"alias": alias}); err != nil {
			return err
		}
		out = ok()
		out.Alias = &existing
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add alias: %w", err)
	}
	return out, nil
}

// RemoveAlias soft-deactivates a nickname.
func (s *PlayerService) RemoveAlias(ctx context.Context, playerID, alias string) (*Outcome, error) {
	const op = "remove_alias"
	norm := utils.NormalizeName(alias)

	var out *Outcome
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.Clock.Now().UTC()
		res := tx.Model(&models.PlayerAlias{}).
			Where("player_id = ? AND normalized = ? AND active = ?", playerID, norm, true).
			Updates(map[string]any{"active": false, "removed_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			out = refuse(op, ReasonAliasNotFound)
			return nil
		}
		if err := s.Audit.Record(tx, EntityPlayer, playerID, "ALIAS_REMOVED", &playerID, map[string]any{"alias": alias}); err != nil {
			return err
		}
		out = ok()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("remove alias: %w", err)
	}
	return out, nil
}

func (s *PlayerService) ListAliases(ctx context.Context, playerID string) ([]models.PlayerAlias, error) {
	var out []models.PlayerAlias
	err := s.DB.WithContext(ctx).
		Where("player_id = ? AND active = ?", playerID, true).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// UpdateDisplayName renames a player and refreshes the search key.
func (s *PlayerService) UpdateDisplayName(ctx context.Context, playerID, name string, actor *string) (*Outcome, error) {
	const op = "rename_player"
	name = strings.TrimSpace(name)
	if name == "" {
		return refuse(op, ReasonNameInvalid), nil
	}
	var out *Outcome
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.Get(tx, playerID)
		if err != nil {
			return err
		}
		if p == nil {
			out = refuse(op, ReasonPlayerNotFound)
			return nil
		}
		previous := p.DisplayName
		if err := tx.Model(&models.Player{}).Where("id = ?", p.ID).
			Updates(map[string]any{"display_name": name, "normalized_name": utils.NormalizeName(name)}).Error; err != nil {
			return err
		}
		if err := s.Audit.Record(tx, EntityPlayer, p.ID, "RENAMED", actor, map[string]any{"display_name": name, "previous": previous}); err != nil {
			return err
		}
		out = ok()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rename player: %w", err)
	}
	return out, nil
}

// Deactivate hides a player from search and new standings. Rows are never deleted.
func (s *PlayerService) Deactivate(ctx context.Context, playerID string, actor *string) (*Outcome, error) {
	const op = "deactivate_player"
	var out *Outcome
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.Get(tx, playerID)
		if err != nil {
			return err
		}
		if p == nil {
			out = refuse(op, ReasonPlayerNotFound)
			return nil
		}
		if err := tx.Model(&models.Player{}).Where("id = ?", p.ID).Update("active", false).Error; err != nil {
			return err
		}
		if err := s.Audit.Record(tx, EntityPlayer, p.ID, "DEACTIVATED", actor, nil); err != nil {
			return err
		}
		out = ok()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deactivate player: %w", err)
	}
	return out, nil
}
