package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/concertbot/server/internal/agent/model"
	errx "github.com/concertbot/server/internal/core/error"
	logx "github.com/concertbot/server/pkg/logger"
)

// RedisConcertCache stores a session's query results as fields of one
// hash. Fields are written with HSETNX so the first result for a key wins.
// RedisSessionRepository.Save renews the hash TTL together with the
// session key.
type RedisConcertCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisConcertCache(rdb redis.Cmdable, ttl time.Duration) *RedisConcertCache {
	return &RedisConcertCache{rdb: rdb, ttl: ttl}
}

func concertsKey(sessionID string) string {
	return fmt.Sprintf("session:%s:concerts", sessionID)
}

func (c *RedisConcertCache) Get(ctx context.Context, sessionID string, key model.QueryKey) ([]model.ConcertRecord, bool, error) {
	k := concertsKey(sessionID)
	raw, err := c.rdb.HGet(ctx, k, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		logx.Error().Err(err).Str("key", k).Str("field", key.String()).Msg("failed to read concert cache")
		return nil, false, errx.WrapRedis(err)
	}

	var recs []model.ConcertRecord
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached concerts: %w", err)
	}
	return recs, true, nil
}

func (c *RedisConcertCache) Put(ctx context.Context, sessionID string, key model.QueryKey, records []model.ConcertRecord) error {
	b, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal concerts: %w", err)
	}
	k := concertsKey(sessionID)

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, k, key.String(), b)
		if c.ttl > 0 {
			pipe.Expire(ctx, k, c.ttl)
		}
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("key", k).Str("field", key.String()).Msg("failed to write concert cache")
		return errx.WrapRedis(err)
	}
	return nil
}

func (c *RedisConcertCache) Forget(ctx context.Context, sessionID string) error {
	k := concertsKey(sessionID)
	if err := c.rdb.Del(ctx, k).Err(); err != nil {
		logx.Error().Err(err).Str("key", k).Msg("failed to drop concert cache entries")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.ConcertCache = (*RedisConcertCache)(nil)
