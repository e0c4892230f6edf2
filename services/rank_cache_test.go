package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"challenge-ladder/metrics"
	"challenge-ladder/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newRedisCache(t *testing.T) (*RedisRankCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRankCache(client, time.Minute), mr
}

func TestRedisRankCacheRoundTrip(t *testing.T) {
	cache, mr := newRedisCache(t)
	ctx := context.Background()

	_, hit, err := cache.Positions(ctx)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.Store(ctx, map[string]int{"a": 1, "b": 2}))
	got, hit, err := cache.Positions(ctx)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, got)
	assert.Equal(t, time.Minute, mr.TTL(cache.Key))

	require.NoError(t, cache.Store(ctx, map[string]int{"c": 1}))
	got, _, err = cache.Positions(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"c": 1}, got, "store replaces the whole hash")

	require.NoError(t, cache.Invalidate(ctx))
	_, hit, err = cache.Positions(ctx)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisRankCacheIgnoresGarbage(t *testing.T) {
	cache, mr := newRedisCache(t)
	mr.HSet(cache.Key, "a", "first")

	_, hit, err := cache.Positions(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRankingUsesCache(t *testing.T) {
	cache, _ := newRedisCache(t)
	h := newHarnessWith(t, DefaultRules, cache)
	a := h.player(t, "Ana")
	b := h.player(t, "Bea")
	h.setPoints(t, a.ID, 10)
	h.setPoints(t, b.ID, 50)
	_, err := h.Ranking.RecalculateRanking(h.ctx, nil)
	require.NoError(t, err)

	hits := testutil.ToFloat64(metrics.RankCacheLookups.WithLabelValues("hit"))
	pos, err := h.Ranking.GetRankPositions(h.ctx, nil, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{a.ID: 2, b.ID: 1}, pos)
	assert.Equal(t, hits+1, testutil.ToFloat64(metrics.RankCacheLookups.WithLabelValues("hit")))

	// A raw points update is invisible until the cache is dropped.
	h.setPoints(t, a.ID, 100)
	pos, err = h.Ranking.GetRankPositions(h.ctx, nil, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, pos[a.ID])

	require.NoError(t, h.Ranking.ApplyMatchPoints(h.ctx, nil, b.ID, a.ID, 1))
	pos, err = h.Ranking.GetRankPositions(h.ctx, nil, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{a.ID: 2, b.ID: 1}, pos, "b 180 vs a 125")

	c := h.player(t, "Cris")
	h.setPoints(t, c.ID, 1000)
	pos, err = h.Ranking.GetRankPositions(h.ctx, nil, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pos[c.ID], "a new stats row invalidates the cache")
}

func TestRegisteringPlayerDropsCachedRanks(t *testing.T) {
	cache, _ := newRedisCache(t)
	h := newHarnessWith(t, DefaultRules, cache)
	a := h.player(t, "Ana")
	h.setPoints(t, a.ID, 10)
	_, err := h.Ranking.RecalculateRanking(h.ctx, nil)
	require.NoError(t, err)

	c := h.player(t, "Cris")
	_, err = h.Ranking.GetRankPositions(h.ctx, nil, a.ID)
	require.NoError(t, err)

	var rows int64
	require.NoError(t, h.db.Model(&models.PlayerStats{}).Where("player_id = ?", c.ID).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)

	got, hit, err := cache.Positions(h.ctx)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, map[string]int{a.ID: 1, c.ID: 2}, got)
}

func TestRankingInsideTransactionIsNotCached(t *testing.T) {
	cache, _ := newRedisCache(t)
	h := newHarnessWith(t, DefaultRules, cache)
	a := h.player(t, "Ana")
	h.setPoints(t, a.ID, 10)

	errRollback := errors.New("rollback")
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if _, err := h.Ranking.RecalculateRanking(h.ctx, tx); err != nil {
			return err
		}
		return errRollback
	})
	require.ErrorIs(t, err, errRollback)

	_, hit, err := cache.Positions(h.ctx)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestConfirmedResultDropsCachedRanks(t *testing.T) {
	cache, _ := newRedisCache(t)
	h := newHarnessWith(t, DefaultRules, cache)
	a := h.player(t, "Ana")
	b := h.player(t, "Bea")
	h.setPoints(t, b.ID, 10)
	m := h.scheduledMatch(t, a, b)
	rep, err := h.Results.ReportResult(h.ctx, m.ID, a.ID, "6-4")
	require.NoError(t, err)
	require.True(t, rep.OK, rep.Reason)

	_, err = h.Ranking.RecalculateRanking(h.ctx, nil)
	require.NoError(t, err)
	_, hit, err := cache.Positions(h.ctx)
	require.NoError(t, err)
	require.True(t, hit)

	out, err := h.Results.ConfirmResult(h.ctx, rep.Report.ID, b.ID)
	require.NoError(t, err)
	require.True(t, out.OK, out.Reason)

	_, hit, err = cache.Positions(h.ctx)
	require.NoError(t, err)
	assert.False(t, hit)

	pos, err := h.Ranking.GetRankPositions(h.ctx, nil, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{a.ID: 1, b.ID: 2}, pos)
}
