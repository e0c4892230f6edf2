package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"challenge-ladder/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ChallengeService negotiates challenges: create, accept, reject and expire.
type ChallengeService struct {
	Deps
	Matches    *MatchService
	TTL        time.Duration
	MaxRankGap int
}

func NewChallengeService(d Deps, matches *MatchService, ttl time.Duration, maxRankGap int) *ChallengeService {
	return &ChallengeService{Deps: d, Matches: matches, TTL: ttl, MaxRankGap: maxRankGap}
}

// CreateChallenge opens a PENDING challenge from challengerID to challengedID.
func (s *ChallengeService) CreateChallenge(ctx context.Context, challengerID, challengedID string) (*Outcome, error) {
	const op = "create_challenge"
	if challengerID == challengedID {
		return refuse(op, ReasonSelfChallenge), nil
	}

	var out *Outcome
	err := s.run(ctx, func(tx *gorm.DB, fx *effects) error {
		ps, err := s.players(tx, challengerID, challengedID)
		if err != nil {
			return err
		}
		if ps[challengerID] == nil || ps[challengedID] == nil {
			out = refuse(op, ReasonPlayerNotFound)
			return nil
		}
		if !ps[challengedID].Active {
			out = refuse(op, ReasonPlayerInactive)
			return nil
		}

		period := s.Limits.Period()
		allowed, err := s.Limits.CanSend(tx, challengerID, period)
		if err != nil {
			return err
		}
		if !allowed {
			out = refuse(op, ReasonSendLimit)
			return nil
		}

		ranks, err := s.Ranking.GetRankPositions(ctx, tx, challengerID, challengedID)
		if err != nil {
			return err
		}
		fx.ranksChanged()
		if gap := abs(ranks[challengerID] - ranks[challengedID]); gap > s.MaxRankGap {
			out = refuse(op, ReasonRankGap)
			return nil
		}

		var live int64
		if err := tx.Model(&models.Challenge{}).
			Where("challenger_id = ? AND challenged_id = ? AND status = ?", challengerID, challengedID, models.ChallengePending).
			Count(&live).Error; err != nil {
			return err
		}
		if live > 0 {
			out = refuse(op, ReasonDuplicate)
			return nil
		}

		now := s.Clock.Now().UTC()
		ch := models.Challenge{
			ChallengerID: challengerID,
			ChallengedID: challengedID,
			Status:       models.ChallengePending,
			ExpiresAt:    now.Add(s.TTL),
		}
		if err := tx.Create(&ch).Error; err != nil {
			return err
		}
		if err := s.Limits.IncrementSent(tx, challengerID, period); err != nil {
			return err
		}
		task, err := s.Tasks.Enqueue(tx, models.TaskExpireChallenge, ch.ID, ch.ExpiresAt)
		if err != nil {
			return err
		}
		fx.schedule(task)

		if err := s.Audit.Record(tx, EntityChallenge, ch.ID, "CREATED", &challengerID, map[string]any{
			"challenged_id":   challengedID,
			"challenger_rank": ranks[challengerID],
			"challenged_rank": ranks[challengedID],
			"expires_at":      ch.ExpiresAt,
		}); err != nil {
			return err
		}

		fx.notify(
			Message{
				To: addr(ps, challengedID),
				Text: fmt.Sprintf("🎾 %s (#%d) challenges you (#%d). Answer before %s.",
					name(ps, challengerID), ranks[challengerID], ranks[challengedID], ch.ExpiresAt.Format("2006-01-02 15:04 MST")),
				Buttons: []Button{
					{ID: ReplyAccept + ch.ID, Title: "Accept"},
					{ID: ReplyReject + ch.ID, Title: "Reject"},
				},
			},
			textMsg(addr(ps, challengerID), fmt.Sprintf("Challenge sent to %s. They have until %s to answer.",
				name(ps, challengedID), ch.ExpiresAt.Format("2006-01-02 15:04 MST"))),
		)
		out = ok()
		out.Challenge = &ch
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return refuse(op, ReasonDuplicate), nil
	}
	if err != nil {
		return nil, fmt.Errorf("create challenge: %w", err)
	}
	if out.OK {
		s.Log.Info("🎾 challenge created", zap.String("challenge_id", out.Challenge.ID),
			zap.String("challenger", challengerID), zap.String("challenged", challengedID))
	}
	return out, nil
}

// AcceptChallenge accepts a PENDING challenge on behalf of the challenged player,
// snapshots both ranks and opens the match.
func (s *ChallengeService) AcceptChallenge(ctx context.Context, challengeID, playerID string) (*Outcome, error) {
	const op = "accept_challenge"
	var out *Outcome
	err := s.run(ctx, func(tx *gorm.DB, fx *effects) error {
		ch, err := loadChallenge(tx, challengeID)
		if err != nil {
			return err
		}
		switch {
		case ch == nil:
			out = refuse(op, ReasonChallengeNotFound)
			return nil
		case ch.Status != models.ChallengePending:
			out = refuse(op, ReasonNotPending)
			return nil
		case ch.ChallengedID != playerID:
			out = refuse(op, ReasonNotChallenged)
			return nil
		}

		now := s.Clock.Now().UTC()
		if !now.Before(ch.ExpiresAt) {
			out = refuse(op, ReasonExpired)
			return nil
		}

		period := s.Limits.CurrentPeriod(now)
		allowed, err := s.Limits.CanAccept(tx, playerID, period)
		if err != nil {
			return err
		}
		if !allowed {
			out = refuse(op, ReasonAcceptLimit)
			return nil
		}

		ranks, err := s.Ranking.GetRankPositions(ctx, tx, ch.ChallengerID, ch.ChallengedID)
		if err != nil {
			return err
		}
		fx.ranksChanged()
		challengerRank, challengedRank := ranks[ch.ChallengerID], ranks[ch.ChallengedID]

		res := tx.Model(&models.Challenge{}).
			Where("id = ? AND status = ?", ch.ID, models.ChallengePending).
			Updates(map[string]any{
				"status":          models.ChallengeAccepted,
				"accepted_at":     now,
				"challenger_rank": challengerRank,
				"challenged_rank": challengedRank,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			out = refuse(op, ReasonNotPending)
			return nil
		}
		ch.Status = models.ChallengeAccepted
		ch.AcceptedAt = &now
		ch.ChallengerRank, ch.ChallengedRank = &challengerRank, &challengedRank

		if err := s.Limits.IncrementAccepted(tx, playerID, period); err != nil {
			return err
		}
		if err := s.Tasks.Cancel(tx, models.TaskExpireChallenge, ch.ID); err != nil {
			return err
		}
		fx.unschedule(models.TaskExpireChallenge, ch.ID)

		if err := s.Audit.Record(tx, EntityChallenge, ch.ID, "ACCEPTED", &playerID, map[string]any{
			"challenger_rank": challengerRank,
			"challenged_rank": challengedRank,
		}); err != nil {
			return err
		}

		match, err := s.Matches.createMatch(tx, fx, ch)
		if err != nil {
			return err
		}

		ps, err := s.players(tx, ch.ChallengerID, ch.ChallengedID)
		if err != nil {
			return err
		}
		fx.notify(
			textMsg(addr(ps, ch.ChallengerID), fmt.Sprintf(
				"✅ %s accepted your challenge. Propose up to 3 times, e.g. \"propose 2026-10-20 18:00, 2026-10-21 morning\".",
				name(ps, ch.ChallengedID))),
			textMsg(addr(ps, ch.ChallengedID), fmt.Sprintf(
				"✅ Challenge accepted. %s will propose times for the match.", name(ps, ch.ChallengerID))),
		)

		out = ok()
		out.Challenge = ch
		out.Match = match
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("accept challenge: %w", err)
	}
	return out, nil
}

// RejectChallenge declines a PENDING challenge on behalf of the challenged player.
func (s *ChallengeService) RejectChallenge(ctx context.Context, challengeID, playerID string) (*Outcome, error) {
	const op = "reject_challenge"
	var out *Outcome
	err := s.run(ctx, func(tx *gorm.DB, fx *effects) error {
		ch, err := loadChallenge(tx, challengeID)
		if err != nil {
			return err
		}
		switch {
		case ch == nil:
			out = refuse(op, ReasonChallengeNotFound)
			return nil
		case ch.Status != models.ChallengePending:
			out = refuse(op, ReasonNotPending)
			return nil
		case ch.ChallengedID != playerID:
			out = refuse(op, ReasonNotChallenged)
			return nil
		}

		now := s.Clock.Now().UTC()
		res := tx.Model(&models.Challenge{}).
			Where("id = ? AND status = ?", ch.ID, models.ChallengePending).
			Updates(map[string]any{"status": models.ChallengeRejected, "rejected_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			out = refuse(op, ReasonNotPending)
			return nil
		}
		ch.Status = models.ChallengeRejected
		ch.RejectedAt = &now

		if err := s.Tasks.Cancel(tx, models.TaskExpireChallenge, ch.ID); err != nil {
			return err
		}
		fx.unschedule(models.TaskExpireChallenge, ch.ID)

		if err := s.Audit.Record(tx, EntityChallenge, ch.ID, "REJECTED", &playerID, nil); err != nil {
			return err
		}

		ps, err := s.players(tx, ch.ChallengerID, ch.ChallengedID)
		if err != nil {
			return err
		}
		fx.notify(
			textMsg(addr(ps, ch.ChallengerID), fmt.Sprintf("❌ %s declined your challenge.", name(ps, ch.ChallengedID))),
			textMsg(addr(ps, ch.ChallengedID), "Challenge declined."),
		)
		out = ok()
		out.Challenge = ch
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reject challenge: %w", err)
	}
	return out, nil
}

// ExpireChallenge moves a PENDING challenge past its deadline to EXPIRED.
// Anything else is a no-op, so repeated or stale firings are harmless.
func (s *ChallengeService) ExpireChallenge(ctx context.Context, challengeID string) (*Outcome, error) {
	const op = "expire_challenge"
	var out *Outcome
	err := s.run(ctx, func(tx *gorm.DB, fx *effects) error {
		ch, err := loadChallenge(tx, challengeID)
		if err != nil {
			return err
		}
		if ch == nil {
			out = refuse(op, ReasonChallengeNotFound)
			return nil
		}
		now := s.Clock.Now().UTC()
		if ch.Status != models.ChallengePending || now.Before(ch.ExpiresAt) {
			out = &Outcome{Reason: ReasonStale, Challenge: ch}
			return nil
		}

		res := tx.Model(&models.Challenge{}).
			Where("id = ? AND status = ?", ch.ID, models.ChallengePending).
			Updates(map[string]any{"status": models.ChallengeExpired, "expired_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			out = &Outcome{Reason: ReasonStale, Challenge: ch}
			return nil
		}
		ch.Status = models.ChallengeExpired
		ch.ExpiredAt = &now

		if err := s.Audit.Record(tx, EntityChallenge, ch.ID, "EXPIRED", nil, map[string]any{"expires_at": ch.ExpiresAt}); err != nil {
			return err
		}

		ps, err := s.players(tx, ch.ChallengerID, ch.ChallengedID)
		if err != nil {
			return err
		}
		fx.notify(
			textMsg(addr(ps, ch.ChallengerID), fmt.Sprintf("⌛ Your challenge to %s expired without an answer.", name(ps, ch.ChallengedID))),
			textMsg(addr(ps, ch.ChallengedID), fmt.Sprintf("⌛ The challenge from %s expired.", name(ps, ch.ChallengerID))),
		)
		out = ok()
		out.Challenge = ch
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("expire challenge: %w", err)
	}
	return out, nil
}

// PendingFor lists live challenges addressed to playerID, oldest first.
func (s *ChallengeService) PendingFor(ctx context.Context, playerID string) ([]models.Challenge, error) {
	var out []models.Challenge
	err := s.DB.WithContext(ctx).
		Where("challenged_id = ? AND status = ?", playerID, models.ChallengePending).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// HandleExpiry adapts ExpireChallenge to a TaskHandler.
func (s *ChallengeService) HandleExpiry(ctx context.Context, challengeID string) error {
	_, err := s.ExpireChallenge(ctx, challengeID)
	return err
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
