package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"challenge-ladder/models"

	"gorm.io/gorm"
)

var scorePattern = regexp.MustCompile(`^\d{1,2}-\d{1,2}( \d{1,2}-\d{1,2})*$`)

// ValidScore reports whether score is one or more space-separated sets like "6-4".
func ValidScore(score string) bool {
	return scorePattern.MatchString(score)
}

// ResultService adjudicates match results: reports, confirmations, disputes,
// walkovers and admin resolutions. Every decided match awards points.
type ResultService struct {
	Deps
}

func NewResultService(d Deps) *ResultService {
	return &ResultService{Deps: d}
}

// ReportResult records the reporter's score on a SCHEDULED match and asks the
// opponent to confirm.
func (s *ResultService) ReportResult(ctx context.Context, matchID, reporterID, score string) (*Outcome, error) {
	const op = "report_result"
	score = strings.TrimSpace(score)

	var out *Outcome
	err := s.run(ctx, func(tx *gorm.DB, fx *effects) error {
		m, err := loadMatchWithChallenge(tx, matchID)
		if err != nil {
			return err
		}
		switch {
		case m == nil:
			out = refuse(op, ReasonMatchNotFound)
			return nil
		case m.Status != models.MatchScheduled:
			out = refuse(op, ReasonMatchState)
			return nil
		case !ValidScore(score):
			out = refuse(op, ReasonInvalidScore)
			return nil
		case !m.Challenge.Involves(reporterID):
			out = refuse(op, ReasonNotParticipant)
			return nil
		}

		var existing int64
		if err := tx.Model(&models.ResultReport{}).Where("match_id = ?", m.ID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			out = refuse(op, ReasonReportExists)
			return nil
		}

		r := models.ResultReport{
			MatchID:    m.ID,
			ReporterID: reporterID,
			Score:      score,
			Status:     models.ReportPendingConfirmation,
		}
		if err := tx.Create(&r).Error; err != nil {
			return err
		}
		res := tx.Model(&models.Match{}).
			Where("id = ? AND status = ?", m.ID, models.MatchScheduled).
			Update("status", models.MatchPendingResultConfirmation)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("match %s left SCHEDULED concurrently", m.ID)
		}
		m.Status = models.MatchPendingResultConfirmation

		if err := s.Audit.Record(tx, EntityMatch, m.ID, "RESULT_REPORTED", &reporterID, map[string]any{
			"report_id": r.ID,
			"score":     score,
		}); err != nil {
			return err
		}

		opponent := m.Challenge.Opponent(reporterID)
		ps, err := s.players(tx, reporterID, opponent)
		if err != nil {
			return err
		}
		fx.notify(
			Message{
				To:   addr(ps, opponent),
				Text: fmt.Sprintf("📝 %s reported a win %s. Is that right?", name(ps, reporterID), score),
				Buttons: []Button{
					{ID: ReplyConfirm + r.ID, Title: "Confirm"},
					{ID: ReplyDispute + r.ID, Title: "Dispute"},
				},
			},
			textMsg(addr(ps, reporterID), "Result sent. Waiting for your opponent to confirm."),
		)
		out = ok()
		out.Match = m
		out.Report = &r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("report result: %w", err)
	}
	return out, nil
}

// loadPendingReport applies the eligibility rules shared by confirm and reject.
func (s *ResultService) loadPendingReport(tx *gorm.DB, op, reportID, playerID string) (*models.ResultReport, *models.Match, *Outcome, error) {
	var r models.ResultReport
	res := tx.Where("id = ?", reportID).Limit(1).Find(&r)
	if res.Error != nil {
		return nil, nil, nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil, refuse(op, ReasonReportNotFound), nil
	}
	if r.Status != models.ReportPendingConfirmation {
		return nil, nil, refuse(op, ReasonReportNotPending), nil
	}
	if r.ReporterID == playerID {
		return nil, nil, refuse(op, ReasonSameAsReporter), nil
	}
	m, err := loadMatchWithChallenge(tx, r.MatchID)
	if err != nil {
		return nil, nil, nil, err
	}
	if m == nil {
		return nil, nil, refuse(op, ReasonMatchNotFound), nil
	}
	if !m.Challenge.Involves(playerID) {
		return nil, nil, refuse(op, ReasonNotParticipant), nil
	}
	if m.Status != models.MatchPendingResultConfirmation {
		return nil, nil, refuse(op, ReasonMatchState), nil
	}
	return &r, m, nil, nil
}

// ConfirmResult accepts the reported score, closes the match and awards points:
// the reporter wins, the confirmer loses.
func (s *ResultService) ConfirmResult(ctx context.Context, reportID, confirmerID string) (*Outcome, error) {
	const op = "confirm_result"
	var out *Outcome
	err := s.run(ctx, func(tx *gorm.DB, fx *effects) error {
		r, m, refused, err := s.loadPendingReport(tx, op, reportID, confirmerID)
		if err != nil || refused != nil {
			out = refused
			return err
		}

		now := s.Clock.Now().UTC()
		res := tx.Model(&models.ResultReport{}).
			Where("id = ? AND status = ?", r.ID, models.ReportPendingConfirmation).
			Updates(map[string]any{"status": models.ReportConfirmed, "confirmed_by": confirmerID, "confirmed_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			out = refuse(op, ReasonReportNotPending)
			return nil
		}
		r.Status, r.ConfirmedBy, r.ConfirmedAt = models.ReportConfirmed, &confirmerID, &now

		if err := s.closeMatch(tx, m, now, models.MatchPendingResultConfirmation); err != nil {
			return err
		}
		diff := m.Challenge.RankDiff()
		if err := s.Ranking.ApplyMatchPoints(ctx, tx, r.ReporterID, confirmerID, diff); err != nil {
			return err
		}
		fx.ranksChanged()
		if err := s.Audit.Record(tx, EntityMatch, m.ID, "RESULT_CONFIRMED", &confirmerID, map[string]any{
			"report_id": r.ID,
			"score":     r.Score,
			"winner_id": r.ReporterID,
			"loser_id":  confirmerID,
			"rank_diff": diff,
		}); err != nil {
			return err
		}
		if err := s.notifyDecided(tx, fx, r.ReporterID, confirmerID, r.Score, diff); err != nil {
			return err
		}
		out = ok()
		out.Match = m
		out.Report = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("confirm result: %w", err)
	}
	return out, nil
}

// RejectResult disputes the reported score. No points move until an admin
// resolves the dispute.
func (s *ResultService) RejectResult(ctx context.Context, reportID, rejecterID string) (*Outcome, error) {
	const op = "reject_result"
	var out *Outcome
	err := s.run(ctx, func(tx *gorm.DB, fx *effects) error {
		r, m, refused, err := s.loadPendingReport(tx, op, reportID, rejecterID)
		if err != nil || refused != nil {
			out = refused
			return err
		}

		now := s.Clock.Now().UTC()
		res := tx.Model(&models.ResultReport{}).
			Where("id = ? AND status = ?", r.ID, models.ReportPendingConfirmation).
			Updates(map[string]any{"status": models.ReportRejected, "rejected_by": rejecterID, "rejected_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			out = refuse(op, ReasonReportNotPending)
			return nil
		}
		r.Status, r.RejectedBy, r.RejectedAt = models.ReportRejected, &rejecterID, &now

		res = tx.Model(&models.Match{}).
			Where("id = ? AND status = ?", m.ID, models.MatchPendingResultConfirmation).
			Update("status", models.MatchDisputed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("match %s left PENDING_RESULT_CONFIRMATION concurrently", m.ID)
		}
		m.Status = models.MatchDisputed

		d := models.Dispute{MatchID: m.ID, OpenedBy: rejecterID, Status: models.DisputeOpen}
		if err := tx.Create(&d).Error; err != nil {
			return err
		}
		if err := s.Audit.Record(tx, EntityMatch, m.ID, "RESULT_DISPUTED", &rejecterID, map[string]any{
			"report_id":  r.ID,
			"dispute_id": d.ID,
			"score":      r.Score,
		}); err != nil {
			return err
		}

		ps, err := s.players(tx, r.ReporterID, rejecterID)
		if err != nil {
			return err
		}
		fx.notify(
			textMsg(addr(ps, r.ReporterID), fmt.Sprintf("⚠️ %s disputed the result %s. An organizer will review it.", name(ps, rejecterID), r.Score)),
			textMsg(addr(ps, rejecterID), "⚠️ Dispute opened. An organizer will review it."),
		)
		out = ok()
		out.Match = m
		out.Report = r
		out.Dispute = &d
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reject result: %w", err)
	}
	return out, nil
}

// ApplyWalkover closes a live match in winnerID's favour without a report.
// Points use the acceptance-time rank snapshot.
func (s *ResultService) ApplyWalkover(ctx context.Context, matchID, winnerID string, actor *string) (*Outcome, error) {
	const op = "apply_walkover"
	var out *Outcome
	err := s.run(ctx, func(tx *gorm.DB, fx *effects) error {
		m, err := loadMatchWithChallenge(tx, matchID)
		if err != nil {
			return err
		}
		switch {
		case m == nil:
			out = refuse(op, ReasonMatchNotFound)
			return nil
		case m.Status.Terminal():
			out = refuse(op, ReasonMatchState)
			return nil
		case !m.Challenge.Involves(winnerID):
			out = refuse(op, ReasonNotParticipant)
			return nil
		}
		loserID := m.Challenge.Opponent(winnerID)
		now := s.Clock.Now().UTC()

		if err := s.closeMatch(tx, m, now, m.Status); err != nil {
			return err
		}
		if err := closeDispute(tx, m.ID, models.ResolutionWalkover, actor, now); err != nil {
			return err
		}
		if err := s.Tasks.Cancel(tx, models.TaskExpireSchedule, m.ID); err != nil {
			return err
		}
		fx.unschedule(models.TaskExpireSchedule, m.ID)

		diff := m.Challenge.RankDiff()
		if err := s.Ranking.ApplyMatchPoints(ctx, tx, winnerID, loserID, diff); err != nil {
			return err
		}
		fx.ranksChanged()
		if err := s.Audit.Record(tx, EntityMatch, m.ID, "WALKOVER", actor, map[string]any{
			"winner_id": winnerID,
			"loser_id":  loserID,
			"rank_diff": diff,
		}); err != nil {
			return err
		}
		if err := s.notifyDecided(tx, fx, winnerID, loserID, "W.O.", diff); err != nil {
			return err
		}
		out = ok()
		out.Match = m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply walkover: %w", err)
	}
	return out, nil
}

// ResolveDispute sets the final score, confirms the report, closes the match
// and its dispute. The original reporter is always credited with the win,
// whatever the admin score says.
func (s *ResultService) ResolveDispute(ctx context.Context, matchID, score string, actor *string) (*Outcome, error) {
	const op = "resolve_dispute"
	score = strings.TrimSpace(score)

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
		if m.Status.Terminal() {
			out = refuse(op, ReasonMatchState)
			return nil
		}
		var r models.ResultReport
		res := tx.Where("match_id = ?", m.ID).Limit(1).Find(&r)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			out = refuse(op, ReasonReportNotFound)
			return nil
		}
		if !ValidScore(score) {
			out = refuse(op, ReasonInvalidScore)
			return nil
		}

		now := s.Clock.Now().UTC()
		if err := tx.Model(&models.ResultReport{}).Where("id = ?", r.ID).
			Updates(map[string]any{
				"score":        score,
				"status":       models.ReportConfirmed,
				"confirmed_by": actor,
				"confirmed_at": now,
			}).Error; err != nil {
			return err
		}
		prevScore := r.Score
		r.Score, r.Status, r.ConfirmedBy, r.ConfirmedAt = score, models.ReportConfirmed, actor, &now

		if err := s.closeMatch(tx, m, now, m.Status); err != nil {
			return err
		}

		var d models.Dispute
		res = tx.Where("match_id = ?", m.ID).Limit(1).Find(&d)
		if res.Error != nil {
			return res.Error
		}
		resolution := models.ResolutionAdminSetScore
		if res.RowsAffected == 0 {
			d = models.Dispute{MatchID: m.ID, OpenedBy: r.ReporterID}
			if actor != nil {
				d.OpenedBy = *actor
			}
		}
		d.Status, d.Resolution, d.ResolvedBy, d.ResolvedAt = models.DisputeClosed, &resolution, actor, &now
		if err := tx.Save(&d).Error; err != nil {
			return err
		}

		winnerID := r.ReporterID
		loserID := m.Challenge.Opponent(winnerID)
		diff := m.Challenge.RankDiff()
		if err := s.Ranking.ApplyMatchPoints(ctx, tx, winnerID, loserID, diff); err != nil {
			return err
		}
		fx.ranksChanged()
		if err := s.Audit.Record(tx, EntityMatch, m.ID, "DISPUTE_RESOLVED", actor, map[string]any{
			"report_id":      r.ID,
			"previous_score": prevScore,
			"score":          score,
			"winner_id":      winnerID,
			"loser_id":       loserID,
			"rank_diff":      diff,
		}); err != nil {
			return err
		}
		if err := s.notifyDecided(tx, fx, winnerID, loserID, score, diff); err != nil {
			return err
		}
		out = ok()
		out.Match = m
		out.Report = &r
		out.Dispute = &d
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve dispute: %w", err)
	}
	return out, nil
}

// ReportFor returns the match's result report, or nil.
func (s *ResultService) ReportFor(ctx context.Context, matchID string) (*models.ResultReport, error) {
	var r models.ResultReport
	res := s.DB.WithContext(ctx).Where("match_id = ?", matchID).Limit(1).Find(&r)
	if res.Error != nil {
		return nil, fmt.Errorf("load report: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &r, nil
}

// closeMatch moves m from the from status to CLOSED.
func (s *ResultService) closeMatch(tx *gorm.DB, m *models.Match, now time.Time, from models.MatchStatus) error {
	res := tx.Model(&models.Match{}).
		Where("id = ? AND status = ?", m.ID, from).
		Updates(map[string]any{"status": models.MatchClosed, "closed_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("match %s left %s concurrently", m.ID, from)
	}
	m.Status, m.ClosedAt = models.MatchClosed, &now
	return nil
}

func (s *ResultService) notifyDecided(tx *gorm.DB, fx *effects, winnerID, loserID, score string, diff int) error {
	ps, err := s.players(tx, winnerID, loserID)
	if err != nil {
		return err
	}
	fx.notify(
		textMsg(addr(ps, winnerID), fmt.Sprintf("🏆 Win recorded vs %s (%s). +%d points.", name(ps, loserID), score, WinnerPoints(diff))),
		textMsg(addr(ps, loserID), fmt.Sprintf("Match vs %s recorded (%s). +%d points.", name(ps, winnerID), score, LossPoints)),
	)
	return nil
}
