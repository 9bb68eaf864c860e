package service_test

import (
	"encoding/json"
	"errors"
	"testing"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/repository/mocks"
	"collaborative-canvas/internal/service"
	"collaborative-canvas/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- 测试 Join / Leave ---

func TestCollaborationService_Join_Success(t *testing.T) {
	// Arrange
	mockRepo := new(mocks.SessionRepository)
	svc := service.NewCollaborationService(mockRepo)
	alice := domain.Participant{ConnID: "conn-1", Name: "Alice", Color: "#e6194b"}
	stroke := domain.Operation{Type: domain.OpStroke, OpID: "s1", Stroke: json.RawMessage(`{"n":1}`), Timestamp: 42}

	mockRepo.On("AddParticipant", "room", "conn-1", "Alice").Return(alice).Once()
	mockRepo.On("ListParticipants", "room").Return([]domain.Participant{alice}).Once()
	mockRepo.On("SessionState", "room").
		Return(domain.Snapshot{Strokes: []domain.Operation{stroke}, History: []domain.Operation{stroke}}).
		Once()

	// Act
	res, err := svc.Join("room", "conn-1", "Alice")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, alice, res.Participant)
	assert.JSONEq(t, `{"type":"joined","userId":"conn-1","name":"Alice","color":"#e6194b",
		"users":[{"userId":"conn-1","name":"Alice","color":"#e6194b"}]}`, string(res.Joined))
	assert.JSONEq(t, `{"type":"room_state",
		"strokes":[{"type":"stroke","opId":"s1","stroke":{"n":1},"ts":42}],
		"history":[{"type":"stroke","opId":"s1","stroke":{"n":1},"ts":42}]}`, string(res.RoomState))
	assert.JSONEq(t, `{"type":"users","users":[{"userId":"conn-1","name":"Alice","color":"#e6194b"}]}`, string(res.Users))

	mockRepo.AssertExpectations(t)
}

func TestCollaborationService_Leave_BuildsUsersPerAffectedSession(t *testing.T) {
	mockRepo := new(mocks.SessionRepository)
	svc := service.NewCollaborationService(mockRepo)
	bob := domain.Participant{ConnID: "conn-2", Name: "Bob", Color: "#3cb44b"}

	mockRepo.On("RemoveParticipant", "conn-1").Return([]string{"a", "b"}).Once()
	mockRepo.On("ListParticipants", "a").Return([]domain.Participant{}).Once()
	mockRepo.On("ListParticipants", "b").Return([]domain.Participant{bob}).Once()

	updates := svc.Leave("conn-1")

	require.Len(t, updates, 2)
	assert.Equal(t, "a", updates[0].SessionKey)
	assert.JSONEq(t, `{"type":"users","users":[]}`, string(updates[0].Users))
	assert.Equal(t, "b", updates[1].SessionKey)
	assert.JSONEq(t, `{"type":"users","users":[{"userId":"conn-2","name":"Bob","color":"#3cb44b"}]}`, string(updates[1].Users))
	mockRepo.AssertExpectations(t)
}

func TestCollaborationService_Leave_UnknownConnection(t *testing.T) {
	mockRepo := new(mocks.SessionRepository)
	svc := service.NewCollaborationService(mockRepo)
	mockRepo.On("RemoveParticipant", "ghost").Return([]string{}).Once()

	assert.Empty(t, svc.Leave("ghost"))
	mockRepo.AssertNotCalled(t, "ListParticipants", mock.Anything)
}

// --- 测试 ProcessIncomingMessage ---

func TestProcessIncomingMessage_Stroke(t *testing.T) {
	mockRepo := new(mocks.SessionRepository)
	svc := service.NewCollaborationService(mockRepo)
	op := domain.Operation{Type: domain.OpStroke, OpID: "s1", Stroke: json.RawMessage(`{"points":[]}`), Timestamp: 7}

	mockRepo.On("AppendStroke", "room", json.RawMessage(`{"points":[]}`)).Return(op).Once()

	d, err := svc.ProcessIncomingMessage("room", "conn-1", []byte(`{"type":"stroke","stroke":{"points":[]}}`))

	require.NoError(t, err)
	require.NotNil(t, d)
	assert.False(t, d.ExcludeSender, "op 广播包括发送者")
	assert.Nil(t, d.Reply)
	assert.JSONEq(t, `{"type":"op","op":{"type":"stroke","opId":"s1","stroke":{"points":[]},"ts":7}}`, string(d.Broadcast))
	mockRepo.AssertExpectations(t)
}

func TestProcessIncomingMessage_UndoBroadcastsOnlyWhenNonNil(t *testing.T) {
	mockRepo := new(mocks.SessionRepository)
	svc := service.NewCollaborationService(mockRepo)
	undo := &domain.Operation{Type: domain.OpUndo, OpID: "u1", TargetOpID: "s1", Timestamp: 9, By: "conn-1"}

	mockRepo.On("PerformUndo", "room", "conn-1").Return(undo).Once()
	mockRepo.On("PerformUndo", "room", "conn-1").Return(nil).Once()

	d, err := svc.ProcessIncomingMessage("room", "conn-1", []byte(`{"type":"undo"}`))
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.JSONEq(t, `{"type":"op","op":{"type":"undo","opId":"u1","targetOpId":"s1","ts":9,"by":"conn-1"}}`, string(d.Broadcast))

	d, err = svc.ProcessIncomingMessage("room", "conn-1", []byte(`{"type":"undo"}`))
	require.NoError(t, err)
	assert.Nil(t, d, "no-op 撤销不应广播")
	mockRepo.AssertExpectations(t)
}

func TestProcessIncomingMessage_Redo(t *testing.T) {
	mockRepo := new(mocks.SessionRepository)
	svc := service.NewCollaborationService(mockRepo)
	mockRepo.On("PerformRedo", "room", "conn-2").Return(nil).Once()

	d, err := svc.ProcessIncomingMessage("room", "conn-2", []byte(`{"type":"redo"}`))

	require.NoError(t, err)
	assert.Nil(t, d)
	mockRepo.AssertExpectations(t)
}

func TestProcessIncomingMessage_RequestStateRepliesToSenderOnly(t *testing.T) {
	mockRepo := new(mocks.SessionRepository)
	svc := service.NewCollaborationService(mockRepo)
	mockRepo.On("SessionState", "room").Return(domain.EmptySnapshot()).Once()

	d, err := svc.ProcessIncomingMessage("room", "conn-1", []byte(`{"type":"request_state"}`))

	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Nil(t, d.Broadcast)
	assert.JSONEq(t, `{"type":"room_state","strokes":[],"history":[]}`, string(d.Reply))
	mockRepo.AssertExpectations(t)
}

func TestProcessIncomingMessage_CursorRelayedToOthers(t *testing.T) {
	mockRepo := new(mocks.SessionRepository)
	svc := service.NewCollaborationService(mockRepo)

	d, err := svc.ProcessIncomingMessage("room", "conn-1", []byte(`{"type":"cursor","x":12.5,"y":3,"isDrawing":true}`))

	require.NoError(t, err)
	require.NotNil(t, d)
	assert.True(t, d.ExcludeSender)
	assert.JSONEq(t, `{"type":"cursor","userId":"conn-1","x":12.5,"y":3,"isDrawing":true}`, string(d.Broadcast))
	// 光标不触达会话注册表
	mockRepo.AssertExpectations(t)
	assert.Empty(t, mockRepo.Calls)
}

func TestProcessIncomingMessage_InvalidJSON(t *testing.T) {
	mockRepo := new(mocks.SessionRepository)
	svc := service.NewCollaborationService(mockRepo)

	_, err := svc.ProcessIncomingMessage("room", "conn-1", []byte(`{not json`))

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrInvalidMessage))
	assert.Empty(t, mockRepo.Calls)
}

func TestProcessIncomingMessage_UnknownType(t *testing.T) {
	mockRepo := new(mocks.SessionRepository)
	svc := service.NewCollaborationService(mockRepo)

	_, err := svc.ProcessIncomingMessage("room", "conn-1", []byte(`{"type":"clear"}`))

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrUnknownMessageType))

	var frame map[string]string
	require.NoError(t, json.Unmarshal(service.ErrorFrame(err), &frame))
	assert.Equal(t, "error", frame["type"])
	assert.Contains(t, frame["message"], "clear")
}

// --- 端到端: 使用真实注册表 ---

func TestCollaborationService_WithRegistry_UndoRedoFlow(t *testing.T) {
	svc := service.NewCollaborationService(session.NewRegistry())

	_, err := svc.Join("room", "conn-1", "")
	require.NoError(t, err)

	d, err := svc.ProcessIncomingMessage("room", "conn-1", []byte(`{"type":"stroke"}`))
	require.NoError(t, err)
	var strokeMsg struct {
		Op domain.Operation `json:"op"`
	}
	require.NoError(t, json.Unmarshal(d.Broadcast, &strokeMsg))
	assert.Equal(t, "null", string(strokeMsg.Op.Stroke), "缺省 stroke 字段按 null 接受")

	d, err = svc.ProcessIncomingMessage("room", "conn-1", []byte(`{"type":"undo"}`))
	require.NoError(t, err)
	var undoMsg struct {
		Op domain.Operation `json:"op"`
	}
	require.NoError(t, json.Unmarshal(d.Broadcast, &undoMsg))
	assert.Equal(t, strokeMsg.Op.OpID, undoMsg.Op.TargetOpID)
	assert.Equal(t, "conn-1", undoMsg.Op.By)

	d, err = svc.ProcessIncomingMessage("room", "conn-1", []byte(`{"type":"undo"}`))
	require.NoError(t, err)
	assert.Nil(t, d)
}
