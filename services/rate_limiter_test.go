package services

import (
	"testing"
	"time"

	"challenge-ladder/models"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentPeriod(t *testing.T) {
	r := NewRateLimiter(clockwork.NewFakeClockAt(testStart), 0, 0)

	assert.Equal(t, 203010, r.CurrentPeriod(testStart))
	assert.Equal(t, 202601, r.CurrentPeriod(time.Date(2026, 1, 31, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, 203010, r.Period())
}

func TestIncrementSentCounts(t *testing.T) {
	db := newTestDB(t)
	r := NewRateLimiter(clockwork.NewFakeClockAt(testStart), 0, 0)
	period := r.Period()

	for i := 0; i < 7; i++ {
		require.NoError(t, r.IncrementSent(db, "p1", period))
	}
	require.NoError(t, r.IncrementAccepted(db, "p1", period))

	row, err := r.Usage(db, "p1", period)
	require.NoError(t, err)
	assert.Equal(t, 7, row.SentCount)
	assert.Equal(t, 1, row.AcceptedCount)

	var rows int64
	require.NoError(t, db.Model(&models.MonthlyLimits{}).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)
}

func TestZeroCapIsUnlimitedButCreatesRow(t *testing.T) {
	db := newTestDB(t)
	r := NewRateLimiter(clockwork.NewFakeClockAt(testStart), 0, 0)

	ok, err := r.CanSend(db, "p1", 203010)
	require.NoError(t, err)
	assert.True(t, ok)

	var row models.MonthlyLimits
	require.NoError(t, db.Where("player_id = ? AND period = ?", "p1", 203010).First(&row).Error)
	assert.Zero(t, row.SentCount)
}

func TestCapsGate(t *testing.T) {
	db := newTestDB(t)
	r := NewRateLimiter(clockwork.NewFakeClockAt(testStart), 2, 1)
	period := r.Period()

	for i := 0; i < 2; i++ {
		ok, err := r.CanSend(db, "p1", period)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, r.IncrementSent(db, "p1", period))
	}
	ok, err := r.CanSend(db, "p1", period)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.CanSend(db, "p1", period+1)
	require.NoError(t, err)
	assert.True(t, ok, "a new month starts from zero")

	require.NoError(t, r.IncrementAccepted(db, "p1", period))
	ok, err = r.CanAccept(db, "p1", period)
	require.NoError(t, err)
	assert.False(t, ok)
}
