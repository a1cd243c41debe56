// Package cache keeps short-lived read models in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"mission_rewards/internal/domain"
	"mission_rewards/internal/logger"

	redis "github.com/redis/go-redis/v9"
)

const viewPrefix = "lb:view:"

// Connect returns a client for addr, or nil when addr is empty or Redis does
// not answer. Callers treat a nil client as "no Redis" and fail open.
func Connect(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, continuing without it", "addr", addr, "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// LeaderboardCache stores rendered top-N leaderboard views.
type LeaderboardCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLeaderboardCache(rdb *redis.Client, ttl time.Duration) *LeaderboardCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &LeaderboardCache{rdb: rdb, ttl: ttl}
}

func viewKey(limit int) string {
	return viewPrefix + strconv.Itoa(limit)
}

func (c *LeaderboardCache) GetView(ctx context.Context, limit int) (*domain.LeaderboardView, bool) {
	raw, err := c.rdb.Get(ctx, viewKey(limit)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("leaderboard cache read failed", "error", err)
		}
		return nil, false
	}
	var v domain.LeaderboardView
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return &v, true
}

func (c *LeaderboardCache) SetView(ctx context.Context, limit int, v *domain.LeaderboardView) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, viewKey(limit), raw, c.ttl).Err(); err != nil {
		logger.Warn("leaderboard cache write failed", "error", err)
	}
}

// Invalidate drops every cached view.
func (c *LeaderboardCache) Invalidate(ctx context.Context) {
	iter := c.rdb.Scan(ctx, 0, viewPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logger.Warn("leaderboard cache scan failed", "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		logger.Warn("leaderboard cache invalidation failed", "error", err)
	}
}
