package service_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/repository/mocks"
	"collaborative-canvas/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSessionKey(t *testing.T) {
	key, err := service.NormalizeSessionKey("  team-a ")
	require.NoError(t, err)
	assert.Equal(t, "team-a", key)

	key, err = service.NormalizeSessionKey("   ")
	require.NoError(t, err)
	assert.Equal(t, service.DefaultSessionKey, key)

	_, err = service.NormalizeSessionKey(strings.Repeat("x", service.MaxSessionKeyLength+1))
	assert.True(t, errors.Is(err, service.ErrInvalidSessionKey))
}

func TestSessionService_GetState(t *testing.T) {
	mockRepo := new(mocks.SessionRepository)
	svc := service.NewSessionService(mockRepo)
	snap := domain.Snapshot{
		Strokes: []domain.Operation{{Type: domain.OpStroke, OpID: "s1"}},
		History: []domain.Operation{{Type: domain.OpStroke, OpID: "s1"}},
	}
	mockRepo.On("SessionState", "room").Return(snap).Once()

	got, err := svc.GetState(" room ")

	require.NoError(t, err)
	assert.Equal(t, snap, got)
	mockRepo.AssertExpectations(t)
}

func TestSessionService_GetState_InvalidKey(t *testing.T) {
	mockRepo := new(mocks.SessionRepository)
	svc := service.NewSessionService(mockRepo)

	_, err := svc.GetState(strings.Repeat("k", 200))

	assert.True(t, errors.Is(err, service.ErrInvalidSessionKey))
	mockRepo.AssertNotCalled(t, "SessionState", "room")
}

func TestSessionService_ListParticipants(t *testing.T) {
	mockRepo := new(mocks.SessionRepository)
	svc := service.NewSessionService(mockRepo)
	mockRepo.On("ListParticipants", service.DefaultSessionKey).Return([]domain.Participant{}).Once()

	users, err := svc.ListParticipants("")

	require.NoError(t, err)
	assert.Empty(t, users)
	mockRepo.AssertExpectations(t)
}

func TestSessionService_ListSessions_NeverNil(t *testing.T) {
	mockRepo := new(mocks.SessionRepository)
	svc := service.NewSessionService(mockRepo)
	mockRepo.On("Stats").Return(nil).Once()

	stats := svc.ListSessions()

	assert.NotNil(t, stats)
	assert.Empty(t, stats)
}

func TestSessionService_ExportPDF(t *testing.T) {
	mockRepo := new(mocks.SessionRepository)
	svc := service.NewSessionService(mockRepo)
	stroke := domain.Operation{
		Type:   domain.OpStroke,
		OpID:   "s1",
		Stroke: json.RawMessage(`{"color":"#000","width":2,"tool":"brush","points":[{"x":1,"y":1},{"x":40,"y":40}]}`),
	}
	mockRepo.On("SessionState", "room").
		Return(domain.Snapshot{Strokes: []domain.Operation{stroke}, History: []domain.Operation{stroke}}).
		Once()
	var buf bytes.Buffer

	err := svc.ExportPDF("room", &buf)

	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	mockRepo.AssertExpectations(t)
}
