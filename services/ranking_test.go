package services

import (
	"fmt"
	"testing"

	"challenge-ladder/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecalculateOrdersByPointsThenID(t *testing.T) {
	h := newHarness(t)
	a := h.player(t, "Ana")
	b := h.player(t, "Bea")
	c := h.player(t, "Cris")
	h.setPoints(t, a.ID, 10)
	h.setPoints(t, b.ID, 20)
	h.setPoints(t, c.ID, 10)

	positions, err := h.Ranking.RecalculateRanking(h.ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, positions[b.ID])
	first, second := a.ID, c.ID
	if c.ID < a.ID {
		first, second = c.ID, a.ID
	}
	assert.Equal(t, 2, positions[first])
	assert.Equal(t, 3, positions[second])

	var st models.PlayerStats
	require.NoError(t, h.db.Where("player_id = ?", b.ID).First(&st).Error)
	assert.Equal(t, 1, st.RankPosition)
	assert.NotNil(t, st.LastComputedAt)
}

func TestRecalculateCreatesMissingStats(t *testing.T) {
	h := newHarness(t)
	a := h.player(t, "Ana")
	b := h.player(t, "Bea")
	_, err := h.Players.Deactivate(h.ctx, b.ID, nil)
	require.NoError(t, err)

	positions, err := h.Ranking.RecalculateRanking(h.ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{a.ID: 1}, positions)
}

func TestGetRankPositionEnsuresStats(t *testing.T) {
	h := newHarness(t)
	a := h.player(t, "Ana")
	b := h.player(t, "Bea")
	h.setPoints(t, a.ID, 50)

	pos, err := h.Ranking.GetRankPosition(h.ctx, nil, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
}

func TestApplyMatchPoints(t *testing.T) {
	h := newHarness(t)
	w := h.player(t, "Winner")
	l := h.player(t, "Loser")

	require.NoError(t, h.Ranking.ApplyMatchPoints(h.ctx, nil, w.ID, l.ID, 3))

	assert.EqualValues(t, 140, h.points(t, w.ID))
	assert.EqualValues(t, 25, h.points(t, l.ID))

	pos, err := h.Ranking.GetRankPosition(h.ctx, nil, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
}

func TestWinnerPoints(t *testing.T) {
	assert.EqualValues(t, 125, WinnerPoints(0))
	assert.EqualValues(t, 145, WinnerPoints(4))
	assert.EqualValues(t, 145, WinnerPoints(-4))
}

func TestGetRankingListLimit(t *testing.T) {
	h := newHarness(t)
	a := h.player(t, "Ana")
	b := h.player(t, "Bea")
	c := h.player(t, "Cris")
	h.setPoints(t, a.ID, 30)
	h.setPoints(t, b.ID, 20)
	h.setPoints(t, c.ID, 10)

	list, err := h.Ranking.GetRankingList(h.ctx, nil, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Ana", list[0].DisplayName)
	assert.Equal(t, 1, list[0].Position)
	assert.Equal(t, "Bea", list[1].DisplayName)
	assert.EqualValues(t, 20, list[1].Points)
}

func TestGetRankingListBreaksTiesByID(t *testing.T) {
	h := newHarness(t)
	for i, id := range []string{"A", "B", "C"} {
		p := models.Player{ID: id, Address: fmt.Sprintf("+3460000010%d", i), DisplayName: id, Active: true}
		require.NoError(t, h.db.Create(&p).Error)
	}
	h.setPoints(t, "A", 10)
	h.setPoints(t, "B", 20)
	h.setPoints(t, "C", 10)

	list, err := h.Ranking.GetRankingList(h.ctx, nil, 0)
	require.NoError(t, err)

	ids := make([]string, len(list))
	for i, e := range list {
		ids[i] = e.PlayerID
	}
	assert.Equal(t, []string{"B", "A", "C"}, ids)
	assert.Equal(t, []int{1, 2, 3}, []int{list[0].Position, list[1].Position, list[2].Position})
}
