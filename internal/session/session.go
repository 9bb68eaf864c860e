package session

import (
	"encoding/json"
	"sync"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/oplog"
)

// Session 拥有一份操作日志和一个参与者目录。
// mu 串行化同一会话内的所有写操作；不同会话之间互不影响。
type Session struct {
	key string
	log *oplog.Log

	mu           sync.RWMutex
	participants []domain.Participant // 按加入顺序
}

func newSession(key string, logOpts ...oplog.Option) *Session {
	return &Session{
		key:          key,
		log:          oplog.New(logOpts...),
		participants: make([]domain.Participant, 0, 4),
	}
}

// Key 返回会话标识。
func (s *Session) Key() string { return s.key }

// addParticipant 添加参与者，颜色序号取调用时的目录人数。
// 同一连接重复加入时原位替换旧条目，保持其位置。
func (s *Session) addParticipant(connID, name string, palette []string) domain.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := domain.Participant{
		ConnID: connID,
		Name:   name,
		Color:  palette[len(s.participants)%len(palette)],
	}
	for i := range s.participants {
		if s.participants[i].ConnID == connID {
			s.participants[i] = p
			return p
		}
	}
	s.participants = append(s.participants, p)
	return p
}

// removeParticipant 移除参与者，返回是否确实存在。
func (s *Session) removeParticipant(connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(connID)
}

func (s *Session) removeLocked(connID string) bool {
	for i, p := range s.participants {
		if p.ConnID == connID {
			s.participants = append(s.participants[:i], s.participants[i+1:]...)
			return true
		}
	}
	return false
}

// Participants 返回参与者列表的副本。
func (s *Session) Participants() []domain.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Participant, len(s.participants))
	copy(out, s.participants)
	return out
}

func (s *Session) appendStroke(payload json.RawMessage) domain.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.AppendStroke(payload)
}

func (s *Session) performUndo(actor string) *domain.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.PerformUndo(actor)
}

func (s *Session) performRedo(actor string) *domain.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.PerformRedo(actor)
}

// Snapshot 返回会话当前的快照。
func (s *Session) Snapshot() domain.Snapshot {
	return s.log.Snapshot()
}

// Stats 返回会话计数。
func (s *Session) Stats() domain.SessionStats {
	historyLen, applied := s.log.Counts()
	s.mu.RLock()
	participants := len(s.participants)
	s.mu.RUnlock()
	return domain.SessionStats{
		SessionKey:     s.key,
		Participants:   participants,
		HistoryLength:  historyLen,
		AppliedStrokes: applied,
	}
}
