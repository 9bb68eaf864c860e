package repository

import (
	"encoding/json"

	"collaborative-canvas/internal/domain"
)

// SessionRepository 定义了协作会话的读写操作，由内存中的 session.Registry 实现。
// 所有方法都是同步、非阻塞的，不做 I/O。
type SessionRepository interface {
	// AddParticipant 把连接加入会话 (不存在则创建) 并分配颜色。
	AddParticipant(sessionKey, connID, name string) domain.Participant

	// RemoveParticipant 从所有会话移除该连接，返回受影响的会话标识。
	RemoveParticipant(connID string) []string

	// ListParticipants 返回会话参与者；会话不存在时返回空切片。
	ListParticipants(sessionKey string) []domain.Participant

	// AppendStroke 追加笔画，返回新操作。
	AppendStroke(sessionKey string, payload json.RawMessage) domain.Operation

	// PerformUndo 执行撤销，没有可撤销的内容时返回 nil。
	PerformUndo(sessionKey, actor string) *domain.Operation

	// PerformRedo 执行重做，没有可重做的内容时返回 nil。
	PerformRedo(sessionKey, actor string) *domain.Operation

	// SessionState 返回会话快照；会话不存在时返回空快照。
	SessionState(sessionKey string) domain.Snapshot

	// Stats 返回所有会话的计数。
	Stats() []domain.SessionStats
}
