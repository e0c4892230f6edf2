package services

import (
	"fmt"
	"time"

	"challenge-ladder/models"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RateLimiter gates challenge activity per player per calendar month.
// A cap of zero means unlimited; the period row is still created on first use.
type RateLimiter struct {
	Clock     clockwork.Clock
	SendCap   int
	AcceptCap int
}

func NewRateLimiter(clock clockwork.Clock, sendCap, acceptCap int) *RateLimiter {
	return &RateLimiter{Clock: clock, SendCap: sendCap, AcceptCap: acceptCap}
}

// CurrentPeriod returns year*100+month of now in UTC.
func (r *RateLimiter) CurrentPeriod(now time.Time) int {
	now = now.UTC()
	return now.Year()*100 + int(now.Month())
}

// Period is CurrentPeriod at the limiter's clock.
func (r *RateLimiter) Period() int {
	return r.CurrentPeriod(r.Clock.Now())
}

func (r *RateLimiter) CanSend(tx *gorm.DB, playerID string, period int) (bool, error) {
	row, err := r.ensure(tx, playerID, period)
	if err != nil {
		return false, err
	}
	return r.SendCap <= 0 || row.SentCount < r.SendCap, nil
}

func (r *RateLimiter) CanAccept(tx *gorm.DB, playerID string, period int) (bool, error) {
	row, err := r.ensure(tx, playerID, period)
	if err != nil {
		return false, err
	}
	return r.AcceptCap <= 0 || row.AcceptedCount < r.AcceptCap, nil
}

func (r *RateLimiter) IncrementSent(tx *gorm.DB, playerID string, period int) error {
	return r.increment(tx, playerID, period, "sent_count")
}

func (r *RateLimiter) IncrementAccepted(tx *gorm.DB, playerID string, period int) error {
	return r.increment(tx, playerID, period, "accepted_count")
}

// Usage returns the period row, creating it if needed.
func (r *RateLimiter) Usage(tx *gorm.DB, playerID string, period int) (*models.MonthlyLimits, error) {
	return r.ensure(tx, playerID, period)
}

func (r *RateLimiter) increment(tx *gorm.DB, playerID string, period int, column string) error {
	if _, err := r.ensure(tx, playerID, period); err != nil {
		return err
	}
	res := tx.Model(&models.MonthlyLimits{}).
		Where("player_id = ? AND period = ?", playerID, period).
		Update(column, gorm.Expr(column+" + ?", 1))
	if res.Error != nil {
		return fmt.Errorf("increment %s: %w", column, res.Error)
	}
	return nil
}

func (r *RateLimiter) ensure(tx *gorm.DB, playerID string, period int) (*models.MonthlyLimits, error) {
	row := models.MonthlyLimits{PlayerID: playerID, Period: period}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("create monthly limits: %w", err)
	}
	var out models.MonthlyLimits
	if err := tx.Where("player_id = ? AND period = ?", playerID, period).First(&out).Error; err != nil {
		return nil, fmt.Errorf("load monthly limits: %w", err)
	}
	return &out, nil
}
