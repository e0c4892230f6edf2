package services

import (
	"context"
	"fmt"
	"time"

	"challenge-ladder/models"

	"gorm.io/gorm"
)

// MatchService owns the match lifecycle outside result handling: creation on
// acceptance, schedule expiration and the admin court and cancel commands.
type MatchService struct {
	Deps
	ScheduleTTL time.Duration
}

func NewMatchService(d Deps, scheduleTTL time.Duration) *MatchService {
	return &MatchService{Deps: d, ScheduleTTL: scheduleTTL}
}

// createMatch opens the match for an accepted challenge and enqueues its
// schedule expiration. Runs inside the acceptance transaction.
func (s *MatchService) createMatch(tx *gorm.DB, fx *effects, ch *models.Challenge) (*models.Match, error) {
	m := models.Match{ChallengeID: ch.ID, Status: models.MatchPendingSchedule}
	if err := tx.Create(&m).Error; err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}
	task, err := s.Tasks.Enqueue(tx, models.TaskExpireSchedule, m.ID, s.Clock.Now().Add(s.ScheduleTTL))
	if err != nil {
		return nil, err
	}
	fx.schedule(task)
	if err := s.Audit.Record(tx, EntityMatch, m.ID, "CREATED", nil, map[string]any{"challenge_id": ch.ID}); err != nil {
		return nil, err
	}
	m.Challenge = ch
	return &m, nil
}

// ExpireSchedule cancels a match whose schedule was never agreed. Matches in
// any other state are left alone.
func (s *MatchService) ExpireSchedule(ctx context.Context, matchID string) (*Outcome, error) {
	var out *Outcome
	err := s.run(ctx, func(tx *gorm.DB, fx *effects) error {
		m, err := loadMatchWithChallenge(tx, matchID)
		if err != nil {
			return err
		}
		if m == nil {
			out = refuse("expire_schedule", ReasonMatchNotFound)
			return nil
		}
		if m.Status != models.MatchPendingSchedule {
			out = &Outcome{Reason: ReasonStale, Match: m}
			return nil
		}

		now := s.Clock.Now().UTC()
		res := tx.Model(&models.Match{}).
			Where("id = ? AND status = ?", m.ID, models.MatchPendingSchedule).
			Updates(map[string]any{"status": models.MatchCancelled, "cancelled_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			out = &Outcome{Reason: ReasonStale, Match: m}
			return nil
		}
		m.Status, m.CancelledAt = models.MatchCancelled, &now

		if err := s.Audit.Record(tx, EntityMatch, m.ID, "SCHEDULE_EXPIRED", nil, nil); err != nil {
			return err
		}
		if err := s.notifyBoth(tx, fx, m.Challenge, "⌛ No schedule was agreed in time, the match was cancelled."); err != nil {
			return err
		}
		out = ok()
		out.Match = m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("expire schedule: %w", err)
	}
	return out, nil
}

// HandleScheduleExpiry adapts ExpireSchedule to a TaskHandler.
func (s *MatchService) HandleScheduleExpiry(ctx context.Context, matchID string) error {
	_, err := s.ExpireSchedule(ctx, matchID)
	return err
}

// CancelMatch cancels the match whatever its state, drops its schedule task
// and closes any open dispute.
func (s *MatchService) CancelMatch(ctx context.Context, matchID string, actor *string) (*Outcome, error) {
	var out *Outcome
	err := s.run(ctx, func(tx *gorm.DB, fx *effects) error {
		m, err := loadMatchWithChallenge(tx, matchID)
		if err != nil {
			return err
		}
		if m == nil {
			out = refuse("cancel_match", ReasonMatchNotFound)
			return nil
		}

		now := s.Clock.Now().UTC()
		prev := m.Status
		if err := tx.Model(&models.Match{}).Where("id = ?", m.ID).
			Updates(map[string]any{"status": models.MatchCancelled, "cancelled_at": now}).Error; err != nil {
			return err
		}
		m.Status, m.CancelledAt = models.MatchCancelled, &now

		if err := closeDispute(tx, m.ID, models.ResolutionCancelled, actor, now); err != nil {
			return err
		}
		if err := s.Tasks.Cancel(tx, models.TaskExpireSchedule, m.ID); err != nil {
			return err
		}
		fx.unschedule(models.TaskExpireSchedule, m.ID)

		if err := s.Audit.Record(tx, EntityMatch, m.ID, "CANCELLED", actor, map[string]any{"previous_status": prev}); err != nil {
			return err
		}
		if err := s.notifyBoth(tx, fx, m.Challenge, "🚫 Your match was cancelled by the organizers."); err != nil {
			return err
		}
		out = ok()
		out.Match = m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cancel match: %w", err)
	}
	return out, nil
}

// HoldCourt parks a SCHEDULED match while the organizers confirm a court.
func (s *MatchService) HoldCourt(ctx context.Context, matchID string, actor *string) (*Outcome, error) {
	const op = "hold_court"
	var out *Outcome
	err := s.run(ctx, func(tx *gorm.DB, fx *effects) error {
		m, err := loadMatchWithChallenge(tx, matchID)
		if err != nil {
			return err
		}
		if m == nil {
			out = refuse(op, ReasonMatchNotFound)
			return nil
		}
		res := tx.Model(&models.Match{}).
			Where("id = ? AND status = ?", m.ID, models.MatchScheduled).
			Update("status", models.MatchPendingCourtConfirmation)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			out = refuse(op, ReasonMatchState)
			return nil
		}
		m.Status = models.MatchPendingCourtConfirmation

		if err := s.Audit.Record(tx, EntityMatch, m.ID, "COURT_HELD", actor, nil); err != nil {
			return err
		}
		if err := s.notifyBoth(tx, fx, m.Challenge, "🏟️ We are confirming a court for your match. Hang tight."); err != nil {
			return err
		}
		out = ok()
		out.Match = m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hold court: %w", err)
	}
	return out, nil
}

// ConfirmCourt returns a match to SCHEDULED with the court confirmed. When at
// is given it replaces the agreed schedule with that exact time.
func (s *MatchService) ConfirmCourt(ctx context.Context, matchID string, at *time.Time, actor *string) (*Outcome, error) {
	const op = "confirm_court"
	var out *Outcome
	err := s.run(ctx, func(tx *gorm.DB, fx *effects) error {
		m, err := loadMatchWithChallenge(tx, matchID)
		if err != nil {
			return err
		}
		if m == nil {
			out = refuse(op, ReasonMatchNotFound)
			return nil
		}

		now := s.Clock.Now().UTC()
		updates := map[string]any{"status": models.MatchScheduled, "court_confirmed_at": now}
		if at != nil {
			t := at.UTC()
			d := models.DateOf(t.In(s.loc()))
			updates["scheduled_at"] = t
			updates["scheduled_date"] = d
			updates["day_part"] = nil
			m.ScheduledAt, m.ScheduledDate, m.DayPart = &t, &d, nil
		}
		res := tx.Model(&models.Match{}).
			Where("id = ? AND status IN ?", m.ID, []models.MatchStatus{models.MatchPendingCourtConfirmation, models.MatchScheduled}).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			out = refuse(op, ReasonMatchState)
			return nil
		}
		m.Status, m.CourtConfirmedAt = models.MatchScheduled, &now

		payload := map[string]any{}
		if at != nil {
			payload["scheduled_at"] = at.UTC()
		}
		if err := s.Audit.Record(tx, EntityMatch, m.ID, "COURT_CONFIRMED", actor, payload); err != nil {
			return err
		}
		if err := s.notifyBoth(tx, fx, m.Challenge, "🏟️ Court confirmed for "+describeSchedule(m, s.loc())+"."); err != nil {
			return err
		}
		out = ok()
		out.Match = m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("confirm court: %w", err)
	}
	return out, nil
}

func (s *MatchService) Get(ctx context.Context, matchID string) (*models.Match, error) {
	return loadMatchWithChallenge(s.DB.WithContext(ctx), matchID)
}

// ActiveFor returns the player's most recent non-terminal match, or nil.
func (s *MatchService) ActiveFor(ctx context.Context, playerID string) (*models.Match, error) {
	var m models.Match
	res := s.DB.WithContext(ctx).
		Joins("JOIN challenges ON challenges.id = matches.challenge_id").
		Where("(challenges.challenger_id = ? OR challenges.challenged_id = ?)", playerID, playerID).
		Where("matches.status NOT IN ?", []models.MatchStatus{models.MatchClosed, models.MatchCancelled}).
		Order("matches.created_at DESC").
		Limit(1).
		Find(&m)
	if res.Error != nil {
		return nil, fmt.Errorf("load active match: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return s.Get(ctx, m.ID)
}

func (s *MatchService) notifyBoth(tx *gorm.DB, fx *effects, ch *models.Challenge, text string) error {
	ps, err := s.players(tx, ch.ChallengerID, ch.ChallengedID)
	if err != nil {
		return err
	}
	fx.notify(textMsg(addr(ps, ch.ChallengerID), text), textMsg(addr(ps, ch.ChallengedID), text))
	return nil
}

// closeDispute closes the match's open dispute, if there is one.
func closeDispute(tx *gorm.DB, matchID string, resolution models.DisputeResolution, actor *string, now time.Time) error {
	err := tx.Model(&models.Dispute{}).
		Where("match_id = ? AND status = ?", matchID, models.DisputeOpen).
		Updates(map[string]any{
			"status":      models.DisputeClosed,
			"resolution":  resolution,
			"resolved_by": actor,
			"resolved_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("close dispute: %w", err)
	}
	return nil
}

func describeSchedule(m *models.Match, loc *time.Location) string {
	switch {
	case m.ScheduledAt != nil:
		return m.ScheduledAt.In(loc).Format("2006-01-02 15:04 MST")
	case m.ScheduledDate != nil && m.DayPart != nil:
		return fmt.Sprintf("%s (%s)", m.ScheduledDate.Format("2006-01-02"), *m.DayPart)
	}
	return "the agreed time"
}
