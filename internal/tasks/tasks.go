package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// 定义任务类型常量
const (
	TypeSessionStatsReport = "session:stats_report" // 会话统计上报任务
)

// SessionStatsPayload 是统计上报任务的数据
type SessionStatsPayload struct {
	RequestedAt int64 `json:"requested_at"` // 任务生成时间 (毫秒)
}

// NewSessionStatsTask 创建一个会话统计上报任务
func NewSessionStatsTask(now time.Time) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(SessionStatsPayload{RequestedAt: now.UnixMilli()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSessionStatsReport, payloadBytes), nil
}
