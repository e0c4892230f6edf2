package services

import (
	"testing"
	"time"

	"challenge-ladder/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidScore(t *testing.T) {
	for _, s := range []string{"6-4", "6-4 3-6 7-5", "10-8", "0-0"} {
		assert.True(t, ValidScore(s), s)
	}
	for _, s := range []string{"", "6-4 bad", "6:4", "6-4  6-3", "123-1", "6-4,6-3", " 6-4"} {
		assert.False(t, ValidScore(s), s)
	}
}

func TestReportResult(t *testing.T) {
	h := newHarness(t)
	a := h.player(t, "Ana")
	b := h.player(t, "Bea")
	c := h.player(t, "Cris")

	m := h.acceptedMatch(t, a, b)
	out, err := h.Results.ReportResult(h.ctx, m.ID, a.ID, "6-4")
	require.NoError(t, err)
	assert.Equal(t, ReasonMatchState, out.Reason, "match must be scheduled first")

	m = h.scheduledMatch(t, c, a)

	out, err = h.Results.ReportResult(h.ctx, m.ID, c.ID, "6-4 bad")
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidScore, out.Reason)

	out, err = h.Results.ReportResult(h.ctx, m.ID, b.ID, "6-4")
	require.NoError(t, err)
	assert.Equal(t, ReasonNotParticipant, out.Reason)

	out, err = h.Results.ReportResult(h.ctx, m.ID, c.ID, "6-4 6-2")
	require.NoError(t, err)
	require.True(t, out.OK, out.Reason)
	assert.Equal(t, models.ReportPendingConfirmation, out.Report.Status)
	assert.Equal(t, models.MatchPendingResultConfirmation, h.match(t, m.ID).Status)

	toA := h.sent.To(a.Address)
	last := toA[len(toA)-1]
	require.Len(t, last.Buttons, 2)
	assert.Equal(t, ReplyConfirm+out.Report.ID, last.Buttons[0].ID)
	assert.Equal(t, ReplyDispute+out.Report.ID, last.Buttons[1].ID)
}

func TestConfirmAndRejectByReporterRefused(t *testing.T) {
	h := newHarness(t)
	a := h.player(t, "Ana")
	b := h.player(t, "Bea")
	m := h.scheduledMatch(t, a, b)
	rep, err := h.Results.ReportResult(h.ctx, m.ID, a.ID, "6-4")
	require.NoError(t, err)

	out, err := h.Results.ConfirmResult(h.ctx, rep.Report.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, out.OK)
	assert.Equal(t, ReasonSameAsReporter, out.Reason)

	out, err = h.Results.RejectResult(h.ctx, rep.Report.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, out.OK)
	assert.Equal(t, ReasonSameAsReporter, out.Reason)

	assert.Equal(t, models.MatchPendingResultConfirmation, h.match(t, m.ID).Status)
}

func TestConfirmResultAwardsPoints(t *testing.T) {
	h := newHarness(t)
	a := h.player(t, "Ana")
	b := h.player(t, "Bea")
	h.setPoints(t, b.ID, 10)
	m := h.scheduledMatch(t, a, b)
	rep, err := h.Results.ReportResult(h.ctx, m.ID, a.ID, "6-4")
	require.NoError(t, err)

	out, err := h.Results.ConfirmResult(h.ctx, rep.Report.ID, b.ID)
	require.NoError(t, err)
	require.True(t, out.OK, out.Reason)

	got := h.match(t, m.ID)
	assert.Equal(t, models.MatchClosed, got.Status)
	assert.NotNil(t, got.ClosedAt)
	assert.EqualValues(t, 130, h.points(t, a.ID), "rank diff 1 at acceptance")
	assert.EqualValues(t, 35, h.points(t, b.ID))

	out, err = h.Results.ConfirmResult(h.ctx, rep.Report.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonReportNotPending, out.Reason)
	assert.EqualValues(t, 130, h.points(t, a.ID))
}

func TestRejectResultOpensDispute(t *testing.T) {
	h := newHarness(t)
	a := h.player(t, "Ana")
	b := h.player(t, "Bea")
	m := h.scheduledMatch(t, a, b)
	rep, err := h.Results.ReportResult(h.ctx, m.ID, a.ID, "6-4")
	require.NoError(t, err)

	out, err := h.Results.RejectResult(h.ctx, rep.Report.ID, b.ID)
	require.NoError(t, err)
	require.True(t, out.OK, out.Reason)
	assert.Equal(t, models.DisputeOpen, out.Dispute.Status)
	assert.Equal(t, b.ID, out.Dispute.OpenedBy)
	assert.Equal(t, models.MatchDisputed, h.match(t, m.ID).Status)

	var stats int64
	require.NoError(t, h.db.Model(&models.PlayerStats{}).Where("points > 0").Count(&stats).Error)
	assert.Zero(t, stats, "no points on dispute")
}

func TestResolveDisputeCreditsOriginalReporter(t *testing.T) {
	h := newHarness(t)
	a := h.player(t, "Ana")
	b := h.player(t, "Bea")
	m := h.scheduledMatch(t, a, b)
	rep, err := h.Results.ReportResult(h.ctx, m.ID, b.ID, "6-4 6-4")
	require.NoError(t, err)
	_, err = h.Results.RejectResult(h.ctx, rep.Report.ID, a.ID)
	require.NoError(t, err)
	admin := "admin"

	out, err := h.Results.ResolveDispute(h.ctx, m.ID, "6-4 bad", &admin)
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidScore, out.Reason)

	// The admin score reads as a loss for the reporter; the reporter still wins.
	out, err = h.Results.ResolveDispute(h.ctx, m.ID, "2-6 1-6", &admin)
	require.NoError(t, err)
	require.True(t, out.OK, out.Reason)

	assert.Equal(t, "2-6 1-6", out.Report.Score)
	assert.Equal(t, models.ReportConfirmed, out.Report.Status)
	assert.Equal(t, models.DisputeClosed, out.Dispute.Status)
	assert.Equal(t, models.ResolutionAdminSetScore, *out.Dispute.Resolution)
	assert.Equal(t, models.MatchClosed, h.match(t, m.ID).Status)

	diff := h.challenge(t, m.ChallengeID).RankDiff()
	assert.Equal(t, WinnerPoints(diff), h.points(t, b.ID))
	assert.EqualValues(t, LossPoints, h.points(t, a.ID))

	out, err = h.Results.ResolveDispute(h.ctx, m.ID, "6-0", &admin)
	require.NoError(t, err)
	assert.Equal(t, ReasonMatchState, out.Reason, "closed matches are not scored twice")
}

func TestResolveDisputeWithoutReport(t *testing.T) {
	h := newHarness(t)
	a := h.player(t, "Ana")
	b := h.player(t, "Bea")
	m := h.scheduledMatch(t, a, b)

	out, err := h.Results.ResolveDispute(h.ctx, m.ID, "6-4", nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonReportNotFound, out.Reason)
}

func TestWalkoverOnScheduledMatch(t *testing.T) {
	h := newHarness(t)
	var ps []*models.Player
	for i, n := range []string{"Ana", "Bea", "Cris", "Dani"} {
		p := h.player(t, n)
		h.setPoints(t, p.ID, int64(400-i*100))
		ps = append(ps, p)
	}
	// ps[3] is 4th, ps[0] is 1st: diff 3 at acceptance.
	m := h.scheduledMatch(t, ps[3], ps[0])
	admin := "admin"

	out, err := h.Results.ApplyWalkover(h.ctx, m.ID, "stranger", &admin)
	require.NoError(t, err)
	assert.Equal(t, ReasonNotParticipant, out.Reason)

	out, err = h.Results.ApplyWalkover(h.ctx, m.ID, ps[3].ID, &admin)
	require.NoError(t, err)
	require.True(t, out.OK, out.Reason)

	assert.Equal(t, models.MatchClosed, h.match(t, m.ID).Status)
	assert.EqualValues(t, 100+140, h.points(t, ps[3].ID))
	assert.EqualValues(t, 400+25, h.points(t, ps[0].ID))

	var reports int64
	require.NoError(t, h.db.Model(&models.ResultReport{}).Count(&reports).Error)
	assert.Zero(t, reports)

	out, err = h.Results.ApplyWalkover(h.ctx, m.ID, ps[3].ID, &admin)
	require.NoError(t, err)
	assert.Equal(t, ReasonMatchState, out.Reason)
}

func TestWalkoverClosesOpenDispute(t *testing.T) {
	h := newHarness(t)
	a := h.player(t, "Ana")
	b := h.player(t, "Bea")
	m := h.scheduledMatch(t, a, b)
	rep, err := h.Results.ReportResult(h.ctx, m.ID, a.ID, "6-4")
	require.NoError(t, err)
	_, err = h.Results.RejectResult(h.ctx, rep.Report.ID, b.ID)
	require.NoError(t, err)

	out, err := h.Results.ApplyWalkover(h.ctx, m.ID, b.ID, nil)
	require.NoError(t, err)
	require.True(t, out.OK)

	var d models.Dispute
	require.NoError(t, h.db.Where("match_id = ?", m.ID).First(&d).Error)
	assert.Equal(t, models.DisputeClosed, d.Status)
	assert.Equal(t, models.ResolutionWalkover, *d.Resolution)
}

func TestCancelMatchIsUnconditional(t *testing.T) {
	h := newHarness(t)
	a := h.player(t, "Ana")
	b := h.player(t, "Bea")
	m := h.scheduledMatch(t, a, b)
	admin := "admin"
	h.clock.Advance(time.Minute)

	out, err := h.Matches.CancelMatch(h.ctx, m.ID, &admin)
	require.NoError(t, err)
	require.True(t, out.OK)
	assert.Equal(t, models.MatchCancelled, h.match(t, m.ID).Status)
	assert.Equal(t, models.TaskCancelled, h.task(t, models.TaskExpireSchedule, m.ID).Status)

	entries, err := h.Audit.List(EntityMatch, m.ID)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, "CANCELLED", last.Action)
	require.NotNil(t, last.Actor)
	assert.Equal(t, "admin", *last.Actor)
}

func TestCourtHoldAndConfirm(t *testing.T) {
	h := newHarness(t)
	a := h.player(t, "Ana")
	b := h.player(t, "Bea")
	m := h.acceptedMatch(t, a, b)

	out, err := h.Matches.HoldCourt(h.ctx, m.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonMatchState, out.Reason)

	m = h.scheduledMatch(t, b, a)
	out, err = h.Matches.HoldCourt(h.ctx, m.ID, nil)
	require.NoError(t, err)
	require.True(t, out.OK)
	assert.Equal(t, models.MatchPendingCourtConfirmation, h.match(t, m.ID).Status)

	out, err = h.Results.ReportResult(h.ctx, m.ID, a.ID, "6-4")
	require.NoError(t, err)
	assert.Equal(t, ReasonMatchState, out.Reason)

	at := testStart.Add(100 * time.Hour)
	out, err = h.Matches.ConfirmCourt(h.ctx, m.ID, &at, nil)
	require.NoError(t, err)
	require.True(t, out.OK)

	got := h.match(t, m.ID)
	assert.Equal(t, models.MatchScheduled, got.Status)
	assert.NotNil(t, got.CourtConfirmedAt)
	assert.True(t, got.ScheduledAt.Equal(at))
	assert.Nil(t, got.DayPart)
}
