package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/repository"
	"collaborative-canvas/internal/tasks"
)

// DefaultStatsTTL 是会话统计在 Redis 中的保留时间
const DefaultStatsTTL = 10 * time.Minute

// SessionStatsHandler 处理周期性的会话统计上报任务
type SessionStatsHandler struct {
	sessionRepo repository.SessionRepository
	statsRepo   repository.StatsRepository
	ttl         time.Duration
}

// NewSessionStatsHandler 创建 Handler 实例，ttl <= 0 时使用 DefaultStatsTTL
func NewSessionStatsHandler(sessionRepo repository.SessionRepository, statsRepo repository.StatsRepository, ttl time.Duration) *SessionStatsHandler {
	if sessionRepo == nil {
		panic("SessionRepository cannot be nil for SessionStatsHandler")
	}
	if statsRepo == nil {
		panic("StatsRepository cannot be nil for SessionStatsHandler")
	}
	if ttl <= 0 {
		ttl = DefaultStatsTTL
	}
	return &SessionStatsHandler{sessionRepo: sessionRepo, statsRepo: statsRepo, ttl: ttl}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *SessionStatsHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	currentRetry, _ := asynq.GetRetryCount(ctx)
	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"retry":     currentRetry,
	})

	// payload 只用于日志，空 payload 也接受
	var payload tasks.SessionStatsPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logCtx.WithError(err).Error("Failed to unmarshal task payload")
			return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
		}
		logCtx = logCtx.WithField("requested_at", payload.RequestedAt)
	}

	stats := h.sessionRepo.Stats()
	if len(stats) == 0 {
		logCtx.Debug("No sessions, skipping stats report")
		return nil
	}

	if err := h.statsRepo.SaveSessionStats(ctx, stats, h.ttl); err != nil {
		logCtx.WithError(err).Error("Failed to save session stats")
		return fmt.Errorf("failed to save stats for %d sessions: %w", len(stats), err)
	}

	logCtx.WithField("sessions", len(stats)).Info("Session stats reported")
	return nil
}
