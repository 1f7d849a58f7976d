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

type RedisConversationRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisConversationRepository(rdb redis.Cmdable, ttl time.Duration) *RedisConversationRepository {
	return &RedisConversationRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisConversationRepository) conversationKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:messages", conversationID)
}

func (r *RedisConversationRepository) touch(ctx context.Context, key string) error {
	if r.ttl <= 0 {
		return nil
	}
	ok, err := r.rdb.Expire(ctx, key, r.ttl).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
		return errx.WrapRedis(err)
	}
	if !ok {
		logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on conversation key")
	}
	return nil
}

func (r *RedisConversationRepository) Load(ctx context.Context, conversationID string) (*model.Conversation, error) {
	key := r.conversationKey(conversationID)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &model.Conversation{ID: conversationID, Messages: []model.Message{}}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load conversation from redis")
		return nil, errx.WrapRedis(err)
	}

	msgs := make([]model.Message, 0, len(rows))
	for i, s := range rows {
		var m model.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			logx.Error().Err(err).Str("conversation_id", conversationID).Int("index", i).Msg("failed to unmarshal message")
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		msgs = append(msgs, m)
	}
	return &model.Conversation{ID: conversationID, Messages: msgs}, nil
}

func (r *RedisConversationRepository) Reset(ctx context.Context, conversationID string, system string) error {
	b, err := json.Marshal(model.SystemMessage(system))
	if err != nil {
		return fmt.Errorf("marshal system message: %w", err)
	}
	key := r.conversationKey(conversationID)
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.RPush(ctx, key, b)
		if r.ttl > 0 {
			p.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to reset conversation")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisConversationRepository) Append(ctx context.Context, conversationID string, msg model.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		logx.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to marshal message")
		return fmt.Errorf("marshal message: %w", err)
	}
	key := r.conversationKey(conversationID)

	if err := r.rdb.RPush(ctx, key, b).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push message to redis")
		return errx.WrapRedis(err)
	}
	return r.touch(ctx, key)
}

// rewrite loads the message at index, applies fn and writes it back.
func (r *RedisConversationRepository) rewrite(ctx context.Context, key string, index int64, fn func(*model.Message)) error {
	s, err := r.rdb.LIndex(ctx, key, index).Result()
	if err != nil {
		return errx.WrapRedis(err)
	}
	var m model.Message
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return fmt.Errorf("unmarshal message at index %d: %w", index, err)
	}
	fn(&m)
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.rdb.LSet(ctx, key, index, b).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Int64("index", index).Msg("failed to rewrite message")
		return errx.WrapRedis(err)
	}
	return r.touch(ctx, key)
}

func (r *RedisConversationRepository) AnnotateLast(ctx context.Context, conversationID string, metadata string) error {
	key := r.conversationKey(conversationID)
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		return errx.WrapRedis(err)
	}
	if n < 2 {
		return errx.NotFound("no message to annotate", nil)
	}
	return r.rewrite(ctx, key, -1, func(m *model.Message) { m.Metadata = metadata })
}

func (r *RedisConversationRepository) SetSystem(ctx context.Context, conversationID string, content string) error {
	key := r.conversationKey(conversationID)
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		return errx.WrapRedis(err)
	}
	if n == 0 {
		return r.Reset(ctx, conversationID, content)
	}
	return r.rewrite(ctx, key, 0, func(m *model.Message) { m.Content = content })
}

func (r *RedisConversationRepository) Count(ctx context.Context, conversationID string) (int, error) {
	key := r.conversationKey(conversationID)
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to get message count from redis")
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}

var _ model.ConversationRepository = (*RedisConversationRepository)(nil)
