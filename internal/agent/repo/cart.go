package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/retailchat-ai/server/internal/agent/model"
	errx "github.com/retailchat-ai/server/internal/core/error"
	logx "github.com/retailchat-ai/server/pkg/logger"
)

type RedisCartStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisCartStore(rdb redis.Cmdable, ttl time.Duration) *RedisCartStore {
	return &RedisCartStore{rdb: rdb, ttl: ttl}
}

func (s *RedisCartStore) cartKey(sessionID string) string {
	return fmt.Sprintf("session:%s:cart", sessionID)
}

func (s *RedisCartStore) Add(ctx context.Context, sessionID string, item model.CartItem) error {
	b, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal cart item: %w", err)
	}
	key := s.cartKey(sessionID)
	if err := s.rdb.RPush(ctx, key, b).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push cart item")
		return errx.WrapRedis(err)
	}
	if s.ttl > 0 {
		if err := s.rdb.Expire(ctx, key, s.ttl).Err(); err != nil {
			return errx.WrapRedis(err)
		}
	}
	return nil
}

func (s *RedisCartStore) Items(ctx context.Context, sessionID string) ([]model.CartItem, error) {
	key := s.cartKey(sessionID)
	rows, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		logx.Error().Err(err).Str("key", key).Msg("failed to load cart")
		return nil, errx.WrapRedis(err)
	}
	items := make([]model.CartItem, 0, len(rows))
	for i, row := range rows {
		var it model.CartItem
		if err := json.Unmarshal([]byte(row), &it); err != nil {
			return nil, fmt.Errorf("unmarshal cart item at index %d: %w", i, err)
		}
		items = append(items, it)
	}
	return items, nil
}

func (s *RedisCartStore) Empty(ctx context.Context, sessionID string) error {
	key := s.cartKey(sessionID)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to empty cart")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.CartStore = (*RedisCartStore)(nil)
