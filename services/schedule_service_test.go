package services

import (
	"testing"
	"time"

	"challenge-ladder/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(offset int) time.Time {
	return testStart.AddDate(0, 0, offset)
}

func TestProposeTruncatesToThreeOptions(t *testing.T) {
	h := newHarness(t)
	a := h.player(t, "Ana")
	b := h.player(t, "Bea")
	m := h.acceptedMatch(t, a, b)

	choices := []models.ScheduleChoice{
		models.ExactChoice{Start: day(1), End: day(1).Add(time.Hour)},
		models.SlotChoice{Date: day(2), Part: models.DayPartMorning},
		models.SlotChoice{Date: day(3), Part: models.DayPartNight},
		models.SlotChoice{Date: day(4), Part: models.DayPartAfternoon},
		models.ExactChoice{Start: day(5), End: day(5).Add(time.Hour)},
	}
	out, err := h.Schedules.ProposeSchedule(h.ctx, m.ID, a.ID, choices)
	require.NoError(t, err)
	require.True(t, out.OK, out.Reason)

	var opts []models.ScheduleOption
	require.NoError(t, h.db.Where("proposal_id = ?", out.Proposal.ID).Order("position").Find(&opts).Error)
	require.Len(t, opts, 3)
	assert.Equal(t, models.OptionExact, opts[0].Kind)
	assert.Nil(t, opts[0].DayPart)
	assert.Equal(t, models.OptionSlot, opts[1].Kind)
	assert.Nil(t, opts[1].StartAt)
	assert.Equal(t, models.DayPartMorning, *opts[1].DayPart)

	list := h.sent.To(b.Address)
	last := list[len(list)-1]
	require.NotNil(t, last.List)
	assert.Equal(t, "Match schedule", last.List.Title)
	assert.Len(t, last.List.Rows, 3)
	assert.Equal(t, ReplySelect+opts[0].ID, last.List.Rows[0].ID)
}

func TestProposeRefusals(t *testing.T) {
	h := newHarness(t)
	a := h.player(t, "Ana")
	b := h.player(t, "Bea")
	m := h.acceptedMatch(t, a, b)
	one := []models.ScheduleChoice{models.SlotChoice{Date: day(1), Part: models.DayPartNight}}

	out, err := h.Schedules.ProposeSchedule(h.ctx, m.ID, b.ID, one)
	require.NoError(t, err)
	assert.Equal(t, ReasonNotChallenger, out.Reason)

	out, err = h.Schedules.ProposeSchedule(h.ctx, m.ID, a.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonNoOptions, out.Reason)

	out, err = h.Schedules.ProposeSchedule(h.ctx, m.ID, a.ID, []models.ScheduleChoice{models.SlotChoice{Date: day(1), Part: "BRUNCH"}})
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidOption, out.Reason)

	out, err = h.Schedules.ProposeSchedule(h.ctx, "missing", a.ID, one)
	require.NoError(t, err)
	assert.Equal(t, ReasonMatchNotFound, out.Reason)
}

func TestNewProposalReplacesOpenOne(t *testing.T) {
	h := newHarness(t)
	a := h.player(t, "Ana")
	b := h.player(t, "Bea")
	m := h.acceptedMatch(t, a, b)
	one := []models.ScheduleChoice{models.SlotChoice{Date: day(1), Part: models.DayPartNight}}

	first, err := h.Schedules.ProposeSchedule(h.ctx, m.ID, a.ID, one)
	require.NoError(t, err)
	second, err := h.Schedules.ProposeSchedule(h.ctx, m.ID, a.ID, one)
	require.NoError(t, err)

	var p models.ScheduleProposal
	require.NoError(t, h.db.Where("id = ?", first.Proposal.ID).First(&p).Error)
	assert.Equal(t, models.ProposalReplaced, p.Status)

	open, err := h.Schedules.OpenProposal(h.ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, second.Proposal.ID, open.ID)
	assert.Len(t, open.Options, 1)

	out, err := h.Schedules.SelectOption(h.ctx, first.Proposal.Options[0].ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonProposalClosed, out.Reason)
}

func TestSelectExactOption(t *testing.T) {
	h := newHarness(t)
	a := h.player(t, "Ana")
	b := h.player(t, "Bea")
	m := h.acceptedMatch(t, a, b)
	start := day(2).Add(8 * time.Hour)

	prop, err := h.Schedules.ProposeSchedule(h.ctx, m.ID, a.ID, []models.ScheduleChoice{
		models.ExactChoice{Start: start, End: start.Add(DefaultMatchLength)},
		models.SlotChoice{Date: day(3), Part: models.DayPartMorning},
	})
	require.NoError(t, err)
	optID := prop.Proposal.Options[0].ID

	out, err := h.Schedules.SelectOption(h.ctx, optID, a.ID)
	require.NoError(t, err)
	assert.False(t, out.OK)
	assert.Equal(t, ReasonNotChallenged, out.Reason)

	out, err = h.Schedules.SelectOption(h.ctx, optID, b.ID)
	require.NoError(t, err)
	require.True(t, out.OK, out.Reason)

	got := h.match(t, m.ID)
	assert.Equal(t, models.MatchScheduled, got.Status)
	require.NotNil(t, got.ScheduledAt)
	assert.True(t, got.ScheduledAt.Equal(start))
	require.NotNil(t, got.ScheduledDate)
	assert.True(t, got.ScheduledDate.Equal(models.DateOf(start)))
	assert.Nil(t, got.DayPart)
	assert.Equal(t, optID, *got.SelectedOptionID)

	var p models.ScheduleProposal
	require.NoError(t, h.db.Where("id = ?", prop.Proposal.ID).First(&p).Error)
	assert.Equal(t, models.ProposalSelected, p.Status)

	// The schedule timer stays armed and fires harmlessly.
	task := h.task(t, models.TaskExpireSchedule, m.ID)
	assert.Equal(t, models.TaskPending, task.Status)
	h.clock.Advance(48 * time.Hour)
	require.NoError(t, h.Tasks.Fire(h.ctx, task.Key))
	assert.Equal(t, models.MatchScheduled, h.match(t, m.ID).Status)
}

func TestSelectSlotOption(t *testing.T) {
	h := newHarness(t)
	a := h.player(t, "Ana")
	b := h.player(t, "Bea")
	m := h.acceptedMatch(t, a, b)

	prop, err := h.Schedules.ProposeSchedule(h.ctx, m.ID, a.ID, []models.ScheduleChoice{
		models.SlotChoice{Date: models.DateOf(day(3)), Part: models.DayPartAfternoon},
	})
	require.NoError(t, err)

	out, err := h.Schedules.SelectOption(h.ctx, prop.Proposal.Options[0].ID, b.ID)
	require.NoError(t, err)
	require.True(t, out.OK)

	got := h.match(t, m.ID)
	assert.Nil(t, got.ScheduledAt)
	require.NotNil(t, got.DayPart)
	assert.Equal(t, models.DayPartAfternoon, *got.DayPart)
	assert.True(t, got.ScheduledDate.Equal(models.DateOf(day(3))))
}

func TestExactOptionDateFollowsLocation(t *testing.T) {
	saoPaulo, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	rules := DefaultRules
	rules.Location = saoPaulo
	h := newHarnessWith(t, rules, nil)
	a := h.player(t, "Ana")
	b := h.player(t, "Bea")
	m := h.acceptedMatch(t, a, b)

	choices, err := ParseScheduleOptions("2030-10-20 22:00", saoPaulo)
	require.NoError(t, err)
	prop, err := h.Schedules.ProposeSchedule(h.ctx, m.ID, a.ID, choices)
	require.NoError(t, err)
	require.True(t, prop.OK, prop.Reason)
	assert.Equal(t, "2030-10-20 22:00-23:30", prop.Proposal.Options[0].Label)

	out, err := h.Schedules.SelectOption(h.ctx, prop.Proposal.Options[0].ID, b.ID)
	require.NoError(t, err)
	require.True(t, out.OK, out.Reason)

	got := h.match(t, m.ID)
	require.NotNil(t, got.ScheduledAt)
	require.NotNil(t, got.ScheduledDate)
	assert.True(t, got.ScheduledAt.Equal(time.Date(2030, 10, 21, 1, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2030-10-20", got.ScheduledDate.UTC().Format("2006-01-02"))

	msgs := h.sent.To(b.Address)
	assert.Contains(t, msgs[len(msgs)-1].Text, "2030-10-20 22:00")
}

func TestConfirmCourtDateFollowsLocation(t *testing.T) {
	saoPaulo, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	rules := DefaultRules
	rules.Location = saoPaulo
	h := newHarnessWith(t, rules, nil)
	a := h.player(t, "Ana")
	b := h.player(t, "Bea")
	m := h.scheduledMatch(t, a, b)

	at := time.Date(2030, 10, 22, 2, 30, 0, 0, time.UTC)
	out, err := h.Matches.ConfirmCourt(h.ctx, m.ID, &at, nil)
	require.NoError(t, err)
	require.True(t, out.OK, out.Reason)

	got := h.match(t, m.ID)
	require.NotNil(t, got.ScheduledDate)
	assert.Equal(t, "2030-10-21", got.ScheduledDate.UTC().Format("2006-01-02"))
}

func TestScheduleExpirationCancelsUnscheduledMatch(t *testing.T) {
	h := newHarness(t)
	a := h.player(t, "Ana")
	b := h.player(t, "Bea")
	m := h.acceptedMatch(t, a, b)

	h.clock.Advance(48 * time.Hour)
	require.NoError(t, h.Tasks.Fire(h.ctx, models.TaskKey(models.TaskExpireSchedule, m.ID)))

	got := h.match(t, m.ID)
	assert.Equal(t, models.MatchCancelled, got.Status)
	assert.NotNil(t, got.CancelledAt)

	out, err := h.Matches.ExpireSchedule(h.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonStale, out.Reason)
}
