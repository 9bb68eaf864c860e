package mocks

import (
	"encoding/json"

	"collaborative-canvas/internal/domain"

	"github.com/stretchr/testify/mock"
)

// SessionRepository 是 repository.SessionRepository 的 testify mock。
type SessionRepository struct {
	mock.Mock
}

func (m *SessionRepository) AddParticipant(sessionKey, connID, name string) domain.Participant {
	args := m.Called(sessionKey, connID, name)
	return args.Get(0).(domain.Participant)
}

func (m *SessionRepository) RemoveParticipant(connID string) []string {
	args := m.Called(connID)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

func (m *SessionRepository) ListParticipants(sessionKey string) []domain.Participant {
	args := m.Called(sessionKey)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.Participant)
}

func (m *SessionRepository) AppendStroke(sessionKey string, payload json.RawMessage) domain.Operation {
	args := m.Called(sessionKey, payload)
	return args.Get(0).(domain.Operation)
}

func (m *SessionRepository) PerformUndo(sessionKey, actor string) *domain.Operation {
	args := m.Called(sessionKey, actor)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*domain.Operation)
}

func (m *SessionRepository) PerformRedo(sessionKey, actor string) *domain.Operation {
	args := m.Called(sessionKey, actor)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*domain.Operation)
}

func (m *SessionRepository) SessionState(sessionKey string) domain.Snapshot {
	args := m.Called(sessionKey)
	return args.Get(0).(domain.Snapshot)
}

func (m *SessionRepository) Stats() []domain.SessionStats {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.SessionStats)
}
