package repository

import (
	"context"
	"time"

	"collaborative-canvas/internal/domain"
)

// StatsRepository 保存会话运行计数，供运维查看。通常由 Redis 实现。
type StatsRepository interface {
	// SaveSessionStats 写入一批会话计数，ttl 为每个会话记录的过期时间。
	SaveSessionStats(ctx context.Context, stats []domain.SessionStats, ttl time.Duration) error
}
