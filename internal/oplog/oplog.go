// Package oplog 实现单个会话的只追加操作日志，以及撤销/重做的选择策略。
//
// 历史记录是唯一的事实来源: 笔画是否"生效"永远可以从历史中推导出来。
// Log 内部额外维护一份增量更新的生效状态表，它必须始终与 AppliedStrokes
// 的从头推导结果一致。
package oplog

import (
	"encoding/json"
	"sync"
	"time"

	"collaborative-canvas/internal/domain"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Log 是一个会话的操作历史。并发安全: 写操作互斥，读操作可并行。
type Log struct {
	mu      sync.RWMutex
	history []domain.Operation

	// applied 记录每个笔画 opId 当前是否生效 (由历史增量推导)
	applied map[string]bool
	// lastRedo 记录每个目标笔画最近一次 redo 在历史中的下标
	lastRedo map[string]int

	now   func() time.Time
	newID func() string
}

// Option 用于定制 Log (主要供测试注入时钟和 ID 生成器)。
type Option func(*Log)

// WithClock 替换时间来源。
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// WithIDGenerator 替换 opId 生成器。生成的 ID 在会话生命周期内不得重复。
func WithIDGenerator(gen func() string) Option {
	return func(l *Log) {
		if gen != nil {
			l.newID = gen
		}
	}
}

// New 创建一个空的操作日志。
func New(opts ...Option) *Log {
	l := &Log{
		history:  make([]domain.Operation, 0, 64),
		applied:  make(map[string]bool),
		lastRedo: make(map[string]int),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AppendStroke 追加一笔笔画并返回新生成的操作。不做任何校验，永不失败。
// 空负载按 JSON null 存储，保证线上格式里始终带有 stroke 字段。
func (l *Log) AppendStroke(payload json.RawMessage) domain.Operation {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored := json.RawMessage("null")
	if len(payload) > 0 {
		stored = append(json.RawMessage(nil), payload...)
	}
	op := domain.Operation{
		Type:      domain.OpStroke,
		OpID:      l.newID(),
		Stroke:    stored,
		Timestamp: l.now().UnixMilli(),
	}
	l.appendLocked(op)
	return op
}

// PerformUndo 从历史末尾向前扫描，撤销最近一笔仍然生效的笔画。
// 没有可撤销的笔画时返回 nil，且不修改历史。
func (l *Log) PerformUndo(actor string) *domain.Operation {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.history) - 1; i >= 0; i-- {
		h := l.history[i]
		if !h.IsStroke() || !l.applied[h.OpID] {
			continue
		}
		op := domain.Operation{
			Type:       domain.OpUndo,
			OpID:       l.newID(),
			TargetOpID: h.OpID,
			Timestamp:  l.now().UnixMilli(),
			By:         actor,
		}
		l.appendLocked(op)
		return &op
	}
	logrus.WithField("actor", actor).Debug("oplog: nothing to undo")
	return nil
}

// PerformRedo 从历史末尾向前扫描，找到最近一条满足以下条件的 undo:
// 其后没有针对同一笔画的 redo，且目标笔画当前未生效。
// 找到则追加对应的 redo，否则返回 nil。
func (l *Log) PerformRedo(actor string) *domain.Operation {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.history) - 1; i >= 0; i-- {
		h := l.history[i]
		if h.Type != domain.OpUndo {
			continue
		}
		if idx, ok := l.lastRedo[h.TargetOpID]; ok && idx > i {
			continue // 这条 undo 之后已经被 redo 过
		}
		if l.applied[h.TargetOpID] {
			continue
		}
		op := domain.Operation{
			Type:       domain.OpRedo,
			OpID:       l.newID(),
			TargetOpID: h.TargetOpID,
			Timestamp:  l.now().UnixMilli(),
			By:         actor,
		}
		l.appendLocked(op)
		return &op
	}
	logrus.WithField("actor", actor).Debug("oplog: nothing to redo")
	return nil
}

// AppliedStrokes 返回当前生效的笔画操作，保持原始追加顺序。
func (l *Log) AppliedStrokes() []domain.Operation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.appliedLocked()
}

// History 返回完整历史的副本，按到达顺序。
func (l *Log) History() []domain.Operation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Operation, len(l.history))
	copy(out, l.history)
	return out
}

// Snapshot 在同一把读锁下同时取出生效笔画和完整历史，二者保证互相一致。
func (l *Log) Snapshot() domain.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	history := make([]domain.Operation, len(l.history))
	copy(history, l.history)
	return domain.Snapshot{
		Strokes: l.appliedLocked(),
		History: history,
	}
}

// Counts 返回历史长度和生效笔画数。
func (l *Log) Counts() (historyLen, appliedStrokes int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, op := range l.history {
		if op.IsStroke() && l.applied[op.OpID] {
			appliedStrokes++
		}
	}
	return len(l.history), appliedStrokes
}

// appendLocked 追加一条操作并更新派生状态。调用方必须持有写锁。
func (l *Log) appendLocked(op domain.Operation) {
	idx := len(l.history)
	l.history = append(l.history, op)
	switch op.Type {
	case domain.OpStroke:
		l.applied[op.OpID] = true
	case domain.OpUndo:
		l.applied[op.TargetOpID] = false
	case domain.OpRedo:
		l.applied[op.TargetOpID] = true
		l.lastRedo[op.TargetOpID] = idx
	}
}

func (l *Log) appliedLocked() []domain.Operation {
	out := make([]domain.Operation, 0, len(l.history))
	for _, op := range l.history {
		if op.IsStroke() && l.applied[op.OpID] {
			out = append(out, op)
		}
	}
	return out
}

// AppliedStrokes 从任意历史从头推导当前生效的笔画: 对每个笔画，
// 只看引用它的操作 (笔画本身以及 targetOpId 指向它的 undo/redo)，
// 最后一条是笔画本身或 redo 则生效，是 undo 则不生效。
func AppliedStrokes(history []domain.Operation) []domain.Operation {
	status := make(map[string]bool, len(history))
	for _, op := range history {
		switch op.Type {
		case domain.OpStroke:
			status[op.OpID] = true
		case domain.OpUndo:
			status[op.TargetOpID] = false
		case domain.OpRedo:
			status[op.TargetOpID] = true
		}
	}
	out := make([]domain.Operation, 0, len(history))
	for _, op := range history {
		if op.IsStroke() && status[op.OpID] {
			out = append(out, op)
		}
	}
	return out
}
