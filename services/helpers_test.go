package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"challenge-ladder/models"

	"github.com/glebarez/sqlite"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testStart = time.Date(2030, 10, 17, 10, 0, 0, 0, time.UTC)

// newTestDB opens a private in-memory database. One connection keeps every
// query on the same memory instance and serializes transactions.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.Migrate(db))
	return db
}

type harness struct {
	*Ladder
	db    *gorm.DB
	clock *clockwork.FakeClock
	sent  *RecordingNotifier
	ctx   context.Context
	seq   int
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, DefaultRules, nil)
}

func newHarnessWith(t *testing.T, rules Rules, cache RankCache) *harness {
	t.Helper()
	db := newTestDB(t)
	log := zaptest.NewLogger(t)
	clock := clockwork.NewFakeClockAt(testStart)
	tasks, err := NewExpirationScheduler(db, clock, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tasks.Shutdown() })

	rec := &RecordingNotifier{}
	l := NewLadder(db, clock, log, tasks, rec, cache, KeywordClassifier{}, rules)
	return &harness{Ladder: l, db: db, clock: clock, sent: rec, ctx: context.Background()}
}

func (h *harness) player(t *testing.T, name string) *models.Player {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&models.Player{}).Count(&n).Error)
	p, err := h.Players.Resolve(h.ctx, fmt.Sprintf("+346000000%02d", n+1), name)
	require.NoError(t, err)
	return p
}

func (h *harness) setPoints(t *testing.T, playerID string, pts int64) {
	t.Helper()
	_, err := h.Ranking.EnsureStats(h.ctx, nil, playerID)
	require.NoError(t, err)
	require.NoError(t, h.db.Model(&models.PlayerStats{}).Where("player_id = ?", playerID).Update("points", pts).Error)
}

func (h *harness) points(t *testing.T, playerID string) int64 {
	t.Helper()
	var st models.PlayerStats
	require.NoError(t, h.db.Where("player_id = ?", playerID).First(&st).Error)
	return st.Points
}

func (h *harness) challenge(t *testing.T, id string) *models.Challenge {
	t.Helper()
	c, err := loadChallenge(h.db, id)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

func (h *harness) match(t *testing.T, id string) *models.Match {
	t.Helper()
	m, err := loadMatchWithChallenge(h.db, id)
	require.NoError(t, err)
	require.NotNil(t, m)
	return m
}

func (h *harness) task(t *testing.T, kind models.TaskKind, entityID string) *models.ScheduledTask {
	t.Helper()
	var task models.ScheduledTask
	require.NoError(t, h.db.Where("key = ?", models.TaskKey(kind, entityID)).First(&task).Error)
	return &task
}

func (h *harness) auditCount(t *testing.T, entity, id string) int {
	t.Helper()
	entries, err := h.Audit.List(entity, id)
	require.NoError(t, err)
	return len(entries)
}

// acceptedMatch runs a challenge from a to b through acceptance.
func (h *harness) acceptedMatch(t *testing.T, a, b *models.Player) *models.Match {
	t.Helper()
	out, err := h.Challenges.CreateChallenge(h.ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.True(t, out.OK, out.Reason)
	out, err = h.Challenges.AcceptChallenge(h.ctx, out.Challenge.ID, b.ID)
	require.NoError(t, err)
	require.True(t, out.OK, out.Reason)
	return out.Match
}

// scheduledMatch additionally proposes and selects one exact option.
func (h *harness) scheduledMatch(t *testing.T, a, b *models.Player) *models.Match {
	t.Helper()
	m := h.acceptedMatch(t, a, b)
	start := testStart.Add(72 * time.Hour)
	out, err := h.Schedules.ProposeSchedule(h.ctx, m.ID, a.ID, []models.ScheduleChoice{
		models.ExactChoice{Start: start, End: start.Add(DefaultMatchLength)},
	})
	require.NoError(t, err)
	require.True(t, out.OK, out.Reason)
	out, err = h.Schedules.SelectOption(h.ctx, out.Proposal.Options[0].ID, b.ID)
	require.NoError(t, err)
	require.True(t, out.OK, out.Reason)
	return out.Match
}
