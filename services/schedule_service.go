package services

import (
	"context"
	"fmt"
	"strings"

	"challenge-ladder/models"

	"gorm.io/gorm"
)

// ScheduleService negotiates when a match is played: the challenger proposes
// up to three options, the challenged player picks one.
type ScheduleService struct {
	Deps
}

func NewScheduleService(d Deps) *ScheduleService {
	return &ScheduleService{Deps: d}
}

func validChoice(c models.ScheduleChoice) bool {
	switch v := c.(type) {
	case models.ExactChoice:
		return !v.Start.IsZero() && v.End.After(v.Start)
	case models.SlotChoice:
		return !v.Date.IsZero() && v.Part.Valid()
	}
	return false
}

// ProposeSchedule stores an OPEN proposal with at most MaxScheduleOptions
// options; extra options are dropped. Any earlier OPEN proposal is replaced.
func (s *ScheduleService) ProposeSchedule(ctx context.Context, matchID, proposerID string, choices []models.ScheduleChoice) (*Outcome, error) {
	const op = "propose_schedule"
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
		case m.Status != models.MatchPendingSchedule:
			out = refuse(op, ReasonMatchState)
			return nil
		case m.Challenge.ChallengerID != proposerID:
			out = refuse(op, ReasonNotChallenger)
			return nil
		case len(choices) == 0:
			out = refuse(op, ReasonNoOptions)
			return nil
		}
		if len(choices) > models.MaxScheduleOptions {
			choices = choices[:models.MaxScheduleOptions]
		}
		for _, c := range choices {
			if !validChoice(c) {
				out = refuse(op, ReasonInvalidOption)
				return nil
			}
		}

		if err := tx.Model(&models.ScheduleProposal{}).
			Where("match_id = ? AND status = ?", m.ID, models.ProposalOpen).
			Update("status", models.ProposalReplaced).Error; err != nil {
			return err
		}

		p := models.ScheduleProposal{MatchID: m.ID, ProposedBy: proposerID, Status: models.ProposalOpen}
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		p.Options = make([]models.ScheduleOption, len(choices))
		for i, c := range choices {
			opt := models.ScheduleOption{ProposalID: p.ID, Position: i + 1}
			c.Apply(&opt)
			if err := tx.Create(&opt).Error; err != nil {
				return err
			}
			p.Options[i] = opt
		}

		labels := make([]string, len(p.Options))
		rows := make([]ListRow, len(p.Options))
		for i, o := range p.Options {
			labels[i] = o.Label
			rows[i] = ListRow{ID: ReplySelect + o.ID, Title: o.Label, Description: string(o.Kind)}
		}
		if err := s.Audit.Record(tx, EntityMatch, m.ID, "SCHEDULE_PROPOSED", &proposerID, map[string]any{
			"proposal_id": p.ID,
			"options":     labels,
		}); err != nil {
			return err
		}

		ps, err := s.players(tx, m.Challenge.ChallengerID, m.Challenge.ChallengedID)
		if err != nil {
			return err
		}
		fx.notify(
			Message{
				To:   addr(ps, m.Challenge.ChallengedID),
				Text: fmt.Sprintf("📅 %s proposed: %s. Pick one.", name(ps, proposerID), strings.Join(labels, "; ")),
				List: &ListMessage{
					Title:  "Match schedule",
					Body:   fmt.Sprintf("📅 %s proposed these times.", name(ps, proposerID)),
					Button: "Choose",
					Rows:   rows,
				},
			},
			textMsg(addr(ps, proposerID), "Options sent. Waiting for your opponent to choose."),
		)
		out = ok()
		out.Match = m
		out.Proposal = &p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("propose schedule: %w", err)
	}
	return out, nil
}

// SelectOption fixes the match schedule to one proposed option. The schedule
// expiration task is left armed; it finds the match SCHEDULED and does nothing.
func (s *ScheduleService) SelectOption(ctx context.Context, optionID, selectorID string) (*Outcome, error) {
	const op = "select_option"
	var out *Outcome
	err := s.run(ctx, func(tx *gorm.DB, fx *effects) error {
		var opt models.ScheduleOption
		res := tx.Where("id = ?", optionID).Limit(1).Find(&opt)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			out = refuse(op, ReasonOptionNotFound)
			return nil
		}
		var p models.ScheduleProposal
		if err := tx.Where("id = ?", opt.ProposalID).First(&p).Error; err != nil {
			return err
		}
		m, err := loadMatchWithChallenge(tx, p.MatchID)
		if err != nil {
			return err
		}
		switch {
		case m == nil:
			out = refuse(op, ReasonMatchNotFound)
			return nil
		case m.Status != models.MatchPendingSchedule:
			out = refuse(op, ReasonMatchState)
			return nil
		case m.Challenge.ChallengedID != selectorID:
			out = refuse(op, ReasonNotChallenged)
			return nil
		case p.Status != models.ProposalOpen:
			out = refuse(op, ReasonProposalClosed)
			return nil
		}

		updates := map[string]any{"status": models.MatchScheduled, "selected_option_id": opt.ID}
		switch c := opt.Choice().(type) {
		case models.ExactChoice:
			start := c.Start.UTC()
			d := models.DateOf(start.In(s.loc()))
			updates["scheduled_at"], updates["scheduled_date"], updates["day_part"] = start, d, nil
			m.ScheduledAt, m.ScheduledDate, m.DayPart = &start, &d, nil
		case models.SlotChoice:
			d := models.DateOf(c.Date)
			part := c.Part
			updates["scheduled_at"], updates["scheduled_date"], updates["day_part"] = nil, d, part
			m.ScheduledAt, m.ScheduledDate, m.DayPart = nil, &d, &part
		default:
			out = refuse(op, ReasonInvalidOption)
			return nil
		}

		res = tx.Model(&models.Match{}).
			Where("id = ? AND status = ?", m.ID, models.MatchPendingSchedule).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			out = refuse(op, ReasonMatchState)
			return nil
		}
		m.Status = models.MatchScheduled
		m.SelectedOptionID = &opt.ID

		if err := tx.Model(&models.ScheduleProposal{}).
			Where("match_id = ? AND id <> ? AND status = ?", m.ID, p.ID, models.ProposalOpen).
			Update("status", models.ProposalReplaced).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.ScheduleProposal{}).Where("id = ?", p.ID).
			Update("status", models.ProposalSelected).Error; err != nil {
			return err
		}
		p.Status = models.ProposalSelected

		if err := s.Audit.Record(tx, EntityMatch, m.ID, "SCHEDULE_SELECTED", &selectorID, map[string]any{
			"option_id": opt.ID,
			"label":     opt.Label,
		}); err != nil {
			return err
		}

		text := fmt.Sprintf("📅 Match scheduled for %s. Report the score with \"result 6-4 6-3\".", describeSchedule(m, s.loc()))
		ps, err := s.players(tx, m.Challenge.ChallengerID, m.Challenge.ChallengedID)
		if err != nil {
			return err
		}
		fx.notify(textMsg(addr(ps, m.Challenge.ChallengerID), text), textMsg(addr(ps, m.Challenge.ChallengedID), text))

		out = ok()
		out.Match = m
		out.Proposal = &p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("select option: %w", err)
	}
	return out, nil
}

// OpenProposal returns the match's OPEN proposal with its options, or nil.
func (s *ScheduleService) OpenProposal(ctx context.Context, matchID string) (*models.ScheduleProposal, error) {
	var p models.ScheduleProposal
	res := s.DB.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("match_id = ? AND status = ?", matchID, models.ProposalOpen).
		Limit(1).Find(&p)
	if res.Error != nil {
		return nil, fmt.Errorf("load open proposal: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &p, nil
}
