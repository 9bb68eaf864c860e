// Package session 管理按会话标识划分的协作会话: 每个会话一份操作日志和
// 一个参与者目录，首次引用时惰性创建，生命周期与进程相同。
package session

import (
	"encoding/json"
	"sort"
	"sync"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/oplog"

	"github.com/sirupsen/logrus"
)

// Registry 是会话注册表。只有 sessions 映射本身受 mu 保护，
// 会话内部的读写由各自的锁串行化，不存在跨会话的全局锁。
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	palette []string
	logOpts []oplog.Option
}

// Option 定制 Registry。
type Option func(*Registry)

// WithPalette 设置参与者调色板。空调色板会被忽略。
func WithPalette(palette []string) Option {
	return func(r *Registry) {
		if len(palette) > 0 {
			r.palette = append([]string(nil), palette...)
		}
	}
}

// WithLogOptions 设置新建会话的操作日志选项 (测试用)。
func WithLogOptions(opts ...oplog.Option) Option {
	return func(r *Registry) {
		r.logOpts = append(r.logOpts, opts...)
	}
}

// NewRegistry 创建一个空的注册表。
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		palette:  append([]string(nil), domain.DefaultPalette...),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// getOrCreate 返回会话，不存在则创建。
func (r *Registry) getOrCreate(key string) *Session {
	r.mu.RLock()
	s, ok := r.sessions[key]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// 双重检查，避免并发创建同一会话
	if s, ok = r.sessions[key]; ok {
		return s
	}
	s = newSession(key, r.logOpts...)
	r.sessions[key] = s
	logrus.WithField("session_key", key).Debug("session: created")
	return s
}

// lookup 只读查找，不创建会话。
func (r *Registry) lookup(key string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[key]
	return s, ok
}

// AddParticipant 把连接加入会话 (不存在则创建)，按当前人数分配颜色。
// name 为空时使用 "User-" 加连接 ID 前 4 位。
func (r *Registry) AddParticipant(sessionKey, connID, name string) domain.Participant {
	if name == "" {
		name = DefaultDisplayName(connID)
	}
	p := r.getOrCreate(sessionKey).addParticipant(connID, name, r.palette)
	logrus.WithFields(logrus.Fields{
		"session_key": sessionKey,
		"conn_id":     connID,
		"color":       p.Color,
	}).Debug("session: participant added")
	return p
}

// RemoveParticipant 从所有包含该连接的会话中移除它，返回受影响的会话标识 (升序)。
func (r *Registry) RemoveParticipant(connID string) []string {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	affected := make([]string, 0, 1)
	for _, s := range all {
		if s.removeParticipant(connID) {
			affected = append(affected, s.key)
		}
	}
	sort.Strings(affected)
	return affected
}

// ListParticipants 返回会话的参与者；会话不存在时返回空切片，不创建会话。
func (r *Registry) ListParticipants(sessionKey string) []domain.Participant {
	s, ok := r.lookup(sessionKey)
	if !ok {
		return []domain.Participant{}
	}
	return s.Participants()
}

// AppendStroke 向会话追加一笔笔画。
func (r *Registry) AppendStroke(sessionKey string, payload json.RawMessage) domain.Operation {
	return r.getOrCreate(sessionKey).appendStroke(payload)
}

// PerformUndo 在会话上执行撤销，无可撤销内容时返回 nil。
func (r *Registry) PerformUndo(sessionKey, actor string) *domain.Operation {
	return r.getOrCreate(sessionKey).performUndo(actor)
}

// PerformRedo 在会话上执行重做，无可重做内容时返回 nil。
func (r *Registry) PerformRedo(sessionKey, actor string) *domain.Operation {
	return r.getOrCreate(sessionKey).performRedo(actor)
}

// SessionState 返回会话快照；会话不存在时返回空快照，不创建会话。
func (r *Registry) SessionState(sessionKey string) domain.Snapshot {
	s, ok := r.lookup(sessionKey)
	if !ok {
		return domain.EmptySnapshot()
	}
	return s.Snapshot()
}

// SessionKeys 返回所有会话标识 (升序)。
func (r *Registry) SessionKeys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.sessions))
	for k := range r.sessions {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Stats 返回每个会话的计数，按会话标识升序。
func (r *Registry) Stats() []domain.SessionStats {
	keys := r.SessionKeys()
	stats := make([]domain.SessionStats, 0, len(keys))
	for _, k := range keys {
		if s, ok := r.lookup(k); ok {
			stats = append(stats, s.Stats())
		}
	}
	return stats
}

// DefaultDisplayName 根据连接 ID 生成默认显示名。
func DefaultDisplayName(connID string) string {
	prefix := connID
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	return "User-" + prefix
}
