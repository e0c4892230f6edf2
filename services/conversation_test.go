package services

import (
	"testing"

	"challenge-ladder/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowTransitions(t *testing.T) {
	idle := Flow{State: models.FlowIdle}

	sel, err := idle.SelectingOpponent([]string{"p1", "p2"})
	require.NoError(t, err)
	assert.Equal(t, models.FlowSelectingOpponent, sel.State)
	assert.Equal(t, models.FlowIdle, idle.State, "transitions do not mutate")

	_, err = sel.ProposingSchedule("m1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = sel.ReportingResult("m1")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	again, err := sel.SelectingOpponent([]string{"p3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p3"}, again.Context.Candidates)

	rep, err := idle.ReportingResult("m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", rep.Context.MatchID)
	assert.False(t, rep.CanTransition(models.FlowProposingSchedule))

	back := rep.Idle()
	assert.Equal(t, models.FlowIdle, back.State)
	assert.Empty(t, back.Context.MatchID)
}

func TestConversationStore(t *testing.T) {
	h := newHarness(t)
	p := h.player(t, "Ana")

	f, err := h.Conversations.Load(h.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FlowIdle, f.State)

	next, err := f.SelectingOpponent([]string{"x", "y"})
	require.NoError(t, err)
	require.NoError(t, h.Conversations.Save(h.ctx, p.ID, next))

	f, err = h.Conversations.Load(h.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, next, f)

	require.NoError(t, h.Conversations.Save(h.ctx, p.ID, f.Idle()))
	f, err = h.Conversations.Load(h.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, Flow{State: models.FlowIdle}, f)

	var rows int64
	require.NoError(t, h.db.Model(&models.ConversationState{}).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)
}
