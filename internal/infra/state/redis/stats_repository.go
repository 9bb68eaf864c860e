package redisstate

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"collaborative-canvas/internal/domain"
)

// RedisStatsRepository 是 StatsRepository 接口的 Redis 实现。
// 每个会话一个 Hash: <prefix>session:<key>:stats，另有一个有序集合记录最近上报时间。
type RedisStatsRepository struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

// NewRedisStatsRepository 创建 RedisStatsRepository 实例
func NewRedisStatsRepository(client *redis.Client, keyPrefix string) *RedisStatsRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStatsRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "canvas:"
	}
	return &RedisStatsRepository{
		client:    client,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

// --- Key Generation Helpers ---

// SessionStatsKey 返回会话统计 Hash 的 key
func (r *RedisStatsRepository) SessionStatsKey(sessionKey string) string {
	return fmt.Sprintf("%ssession:%s:stats", r.keyPrefix, sessionKey)
}

// SessionsIndexKey 返回会话索引有序集合的 key (score 为上报时间戳)
func (r *RedisStatsRepository) SessionsIndexKey() string {
	return r.keyPrefix + "sessions"
}

// SaveSessionStats 用一个 pipeline 写入所有会话的统计并刷新过期时间
func (r *RedisStatsRepository) SaveSessionStats(ctx context.Context, stats []domain.SessionStats, ttl time.Duration) error {
	if len(stats) == 0 {
		return nil
	}
	reportedAt := r.now()
	indexKey := r.SessionsIndexKey()

	pipe := r.client.TxPipeline()
	for _, s := range stats {
		key := r.SessionStatsKey(s.SessionKey)
		pipe.HSet(ctx, key,
			"participants", s.Participants,
			"history_length", s.HistoryLength,
			"applied_strokes", s.AppliedStrokes,
			"reported_at", reportedAt.UnixMilli(),
		)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		pipe.ZAdd(ctx, indexKey, &redis.Z{Score: float64(reportedAt.Unix()), Member: s.SessionKey})
	}
	if ttl > 0 {
		// 清掉索引里已经过期的会话
		cutoff := reportedAt.Add(-ttl).Unix()
		pipe.ZRemRangeByScore(ctx, indexKey, "-inf", fmt.Sprintf("(%d", cutoff))
		pipe.Expire(ctx, indexKey, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to save stats for %d sessions: %w", len(stats), err)
	}
	return nil
}
