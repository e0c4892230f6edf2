package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"challenge-ladder/metrics"
	"challenge-ladder/models"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Point weights for a decided match.
const (
	WinBasePoints    = 125
	WinPerRankPoints = 5
	LossPoints       = 25
)

// WinnerPoints is what the winner earns for a match played across rankDiff positions.
func WinnerPoints(rankDiff int) int64 {
	if rankDiff < 0 {
		rankDiff = -rankDiff
	}
	return int64(WinBasePoints + WinPerRankPoints*rankDiff)
}

// RankingEntry is one row of the public standings.
type RankingEntry struct {
	Position    int    `json:"position"`
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	Address     string `json:"-"`
	Points      int64  `json:"points"`
}

// RankingEngine owns PlayerStats. Standings are recomputed from points on every
// read unless a RankCache is configured.
type RankingEngine struct {
	DB    *gorm.DB
	Clock clockwork.Clock
	Cache RankCache
	Log   *zap.Logger
}

func NewRankingEngine(db *gorm.DB, clock clockwork.Clock, cache RankCache, log *zap.Logger) *RankingEngine {
	return &RankingEngine{DB: db, Clock: clock, Cache: cache, Log: log}
}

func (e *RankingEngine) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return e.DB
}

// EnsureStats gets or creates the zero-point stats row for a player.
func (e *RankingEngine) EnsureStats(ctx context.Context, tx *gorm.DB, playerID string) (*models.PlayerStats, error) {
	db := e.conn(tx)
	var stats models.PlayerStats
	err := db.Where("player_id = ?", playerID).First(&stats).Error
	if err == nil {
		return &stats, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load stats: %w", err)
	}
	stats = models.PlayerStats{PlayerID: playerID}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&stats)
	if res.Error != nil {
		return nil, fmt.Errorf("create stats: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		e.Invalidate(ctx)
	}
	if err := db.Where("player_id = ?", playerID).First(&stats).Error; err != nil {
		return nil, fmt.Errorf("reload stats: %w", err)
	}
	return &stats, nil
}

// RecalculateRanking ensures stats for every active player, orders all rows by
// points desc then player id asc, and persists 1-based positions.
func (e *RankingEngine) RecalculateRanking(ctx context.Context, tx *gorm.DB) (map[string]int, error) {
	start := time.Now()
	defer func() { metrics.RankingRecalcDuration.Observe(time.Since(start).Seconds()) }()

	db := e.conn(tx)

	var missing []string
	err := db.Model(&models.Player{}).
		Where("active = ?", true).
		Where("id NOT IN (?)", db.Model(&models.PlayerStats{}).Select("player_id")).
		Pluck("id", &missing).Error
	if err != nil {
		return nil, fmt.Errorf("find players without stats: %w", err)
	}
	if len(missing) > 0 {
		rows := make([]models.PlayerStats, len(missing))
		for i, id := range missing {
			rows[i] = models.PlayerStats{PlayerID: id}
		}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return nil, fmt.Errorf("create missing stats: %w", err)
		}
	}

	var all []models.PlayerStats
	if err := db.Find(&all).Error; err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Points != all[j].Points {
			return all[i].Points > all[j].Points
		}
		return all[i].PlayerID < all[j].PlayerID
	})

	now := e.Clock.Now().UTC()
	positions := make(map[string]int, len(all))
	for i, st := range all {
		pos := i + 1
		positions[st.PlayerID] = pos
		err := db.Model(&models.PlayerStats{}).
			Where("player_id = ?", st.PlayerID).
			Updates(map[string]any{"rank_position": pos, "last_computed_at": now}).Error
		if err != nil {
			return nil, fmt.Errorf("persist rank for %s: %w", st.PlayerID, err)
		}
	}

	// Only committed standings are cached.
	if e.Cache != nil && tx == nil {
		if err := e.Cache.Store(ctx, positions); err != nil {
			e.Log.Warn("rank cache store failed", zap.Error(err))
		}
	}
	return positions, nil
}

// GetRankPositions returns the position of each requested player. A player with
// no stats row gets len(standings)+1.
func (e *RankingEngine) GetRankPositions(ctx context.Context, tx *gorm.DB, playerIDs ...string) (map[string]int, error) {
	for _, id := range playerIDs {
		if _, err := e.EnsureStats(ctx, tx, id); err != nil {
			return nil, err
		}
	}

	positions, hit := e.cached(ctx)
	if !hit {
		var err error
		positions, err = e.RecalculateRanking(ctx, tx)
		if err != nil {
			return nil, err
		}
	}

	out := make(map[string]int, len(playerIDs))
	for _, id := range playerIDs {
		pos, found := positions[id]
		if !found {
			pos = len(positions) + 1
		}
		out[id] = pos
	}
	return out, nil
}

func (e *RankingEngine) GetRankPosition(ctx context.Context, tx *gorm.DB, playerID string) (int, error) {
	pos, err := e.GetRankPositions(ctx, tx, playerID)
	if err != nil {
		return 0, err
	}
	return pos[playerID], nil
}

// ApplyMatchPoints credits the winner 125+5*rankDiff and the loser 25, then
// recalculates the standings.
func (e *RankingEngine) ApplyMatchPoints(ctx context.Context, tx *gorm.DB, winnerID, loserID string, rankDiff int) error {
	db := e.conn(tx)
	if err := e.addPoints(ctx, db, winnerID, WinnerPoints(rankDiff)); err != nil {
		return err
	}
	if err := e.addPoints(ctx, db, loserID, LossPoints); err != nil {
		return err
	}
	e.Invalidate(ctx)
	if _, err := e.RecalculateRanking(ctx, tx); err != nil {
		return err
	}
	e.Log.Info("🏆 points applied",
		zap.String("winner", winnerID), zap.Int64("winner_points", WinnerPoints(rankDiff)),
		zap.String("loser", loserID), zap.Int("rank_diff", rankDiff))
	return nil
}

func (e *RankingEngine) addPoints(ctx context.Context, db *gorm.DB, playerID string, pts int64) error {
	if _, err := e.EnsureStats(ctx, db, playerID); err != nil {
		return err
	}
	err := db.Model(&models.PlayerStats{}).
		Where("player_id = ?", playerID).
		Update("points", gorm.Expr("points + ?", pts)).Error
	if err != nil {
		return fmt.Errorf("add points to %s: %w", playerID, err)
	}
	return nil
}

// GetRankingList recalculates and returns the top limit entries (all when limit <= 0).
func (e *RankingEngine) GetRankingList(ctx context.Context, tx *gorm.DB, limit int) ([]RankingEntry, error) {
	if _, err := e.RecalculateRanking(ctx, tx); err != nil {
		return nil, err
	}
	db := e.conn(tx)

	q := db.Preload("Player").Order("rank_position ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.PlayerStats
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load ranking: %w", err)
	}

	out := make([]RankingEntry, 0, len(rows))
	for _, r := range rows {
		entry := RankingEntry{Position: r.RankPosition, PlayerID: r.PlayerID, Points: r.Points}
		if r.Player != nil {
			entry.DisplayName = r.Player.DisplayName
			entry.Address = r.Player.Address
		}
		out = append(out, entry)
	}
	return out, nil
}

func (e *RankingEngine) cached(ctx context.Context) (map[string]int, bool) {
	if e.Cache == nil {
		return nil, false
	}
	positions, hit, err := e.Cache.Positions(ctx)
	if err != nil {
		e.Log.Warn("rank cache read failed", zap.Error(err))
		hit = false
	}
	if hit {
		metrics.RankCacheLookups.WithLabelValues("hit").Inc()
	} else {
		metrics.RankCacheLookups.WithLabelValues("miss").Inc()
	}
	return positions, hit
}

// Invalidate drops the cached standings. Safe on a nil engine.
func (e *RankingEngine) Invalidate(ctx context.Context) {
	if e == nil || e.Cache == nil {
		return
	}
	if err := e.Cache.Invalidate(ctx); err != nil {
		e.Log.Warn("rank cache invalidate failed", zap.Error(err))
	}
}
