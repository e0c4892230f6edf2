package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RankCache holds the last computed standings. A nil cache means every lookup
// recalculates.
type RankCache interface {
	Positions(ctx context.Context) (map[string]int, bool, error)
	Store(ctx context.Context, positions map[string]int) error
	Invalidate(ctx context.Context) error
}

// RedisRankCache keeps positions in one hash so a read is a single HGETALL.
type RedisRankCache struct {
	Client *redis.Client
	Key    string
	TTL    time.Duration
}

func NewRedisRankCache(client *redis.Client, ttl time.Duration) *RedisRankCache {
	return &RedisRankCache{Client: client, Key: "ladder:rank:positions", TTL: ttl}
}

func (c *RedisRankCache) Positions(ctx context.Context) (map[string]int, bool, error) {
	raw, err := c.Client.HGetAll(ctx, c.Key).Result()
	if err != nil {
		return nil, false, fmt.Errorf("read rank cache: %w", err)
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	out := make(map[string]int, len(raw))
	for id, v := range raw {
		pos, err := strconv.Atoi(v)
		if err != nil {
			return nil, false, nil
		}
		out[id] = pos
	}
	return out, true, nil
}

func (c *RedisRankCache) Store(ctx context.Context, positions map[string]int) error {
	_, err := c.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, c.Key)
		if len(positions) == 0 {
			return nil
		}
		fields := make(map[string]any, len(positions))
		for id, pos := range positions {
			fields[id] = pos
		}
		p.HSet(ctx, c.Key, fields)
		if c.TTL > 0 {
			p.Expire(ctx, c.Key, c.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write rank cache: %w", err)
	}
	return nil
}

func (c *RedisRankCache) Invalidate(ctx context.Context) error {
	if err := c.Client.Del(ctx, c.Key).Err(); err != nil {
		return fmt.Errorf("invalidate rank cache: %w", err)
	}
	return nil
}
