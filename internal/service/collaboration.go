package service

import (
	"encoding/json"
	"fmt"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/dto"
	"collaborative-canvas/internal/repository"

	"github.com/sirupsen/logrus"
)

// Delivery 描述处理一条客户端消息后需要发出的帧。
type Delivery struct {
	Broadcast     []byte // 发给会话内的连接 (为空表示不广播)
	ExcludeSender bool   // 广播时是否跳过发送者
	Reply         []byte // 只发给发送者 (为空表示不回复)
}

// JoinResult 是加入会话后需要下发的帧。
type JoinResult struct {
	Participant domain.Participant
	Joined      []byte // 发给加入者: 身份、颜色、参与者列表
	RoomState   []byte // 发给加入者: 完整快照
	Users       []byte // 广播给会话所有人: 最新参与者列表
}

// SessionUsers 是某个会话最新的参与者列表帧。
type SessionUsers struct {
	SessionKey string
	Users      []byte
}

// CollaborationService 负责把客户端的协作动作翻译成会话注册表上的调用，
// 并生成需要转发的消息。
type CollaborationService struct {
	sessionRepo repository.SessionRepository
}

// NewCollaborationService 创建 CollaborationService 实例。
func NewCollaborationService(sessionRepo repository.SessionRepository) *CollaborationService {
	if sessionRepo == nil {
		panic("SessionRepository cannot be nil for CollaborationService")
	}
	return &CollaborationService{sessionRepo: sessionRepo}
}

// Join 把连接加入会话，随后取会话快照。
func (s *CollaborationService) Join(sessionKey, connID, name string) (*JoinResult, error) {
	logCtx := logrus.WithFields(logrus.Fields{"session_key": sessionKey, "conn_id": connID})

	// 1. 加入会话 (不存在则创建) 并分配颜色
	participant := s.sessionRepo.AddParticipant(sessionKey, connID, name)
	users := s.sessionRepo.ListParticipants(sessionKey)

	// 2. 取快照
	snapshot := s.sessionRepo.SessionState(sessionKey)

	// 3. 构造下发消息
	joined, err := marshal(dto.JoinedMessage{
		Type:   dto.TypeJoined,
		UserID: participant.ConnID,
		Name:   participant.Name,
		Color:  participant.Color,
		Users:  users,
	})
	if err != nil {
		logCtx.WithError(err).Error("Failed to marshal joined message")
		return nil, err
	}
	roomState, err := marshal(dto.NewRoomStateMessage(snapshot))
	if err != nil {
		logCtx.WithError(err).Error("Failed to marshal room state message")
		return nil, err
	}
	usersMsg, err := marshal(dto.UsersMessage{Type: dto.TypeUsers, Users: users})
	if err != nil {
		logCtx.WithError(err).Error("Failed to marshal users message")
		return nil, err
	}

	logCtx.WithFields(logrus.Fields{
		"color":          participant.Color,
		"participants":   len(users),
		"history_length": len(snapshot.History),
	}).Info("Participant joined session")
	return &JoinResult{
		Participant: participant,
		Joined:      joined,
		RoomState:   roomState,
		Users:       usersMsg,
	}, nil
}

// Leave 把连接从所有会话中移除，返回每个受影响会话的最新参与者列表帧。
func (s *CollaborationService) Leave(connID string) []SessionUsers {
	logCtx := logrus.WithField("conn_id", connID)

	affected := s.sessionRepo.RemoveParticipant(connID)
	updates := make([]SessionUsers, 0, len(affected))
	for _, key := range affected {
		msg, err := s.UsersMessage(key)
		if err != nil {
			logCtx.WithField("session_key", key).WithError(err).Error("Failed to build users message after leave")
			continue
		}
		updates = append(updates, SessionUsers{SessionKey: key, Users: msg})
	}
	logCtx.WithField("sessions", affected).Info("Participant left")
	return updates
}

// UsersMessage 构造会话的参与者列表帧。
func (s *CollaborationService) UsersMessage(sessionKey string) ([]byte, error) {
	return marshal(dto.UsersMessage{Type: dto.TypeUsers, Users: s.sessionRepo.ListParticipants(sessionKey)})
}

// ProcessIncomingMessage 处理客户端发来的一帧。
// undo/redo 无事可做时返回 nil Delivery 且无错误；调用者只在非 nil 时转发。
func (s *CollaborationService) ProcessIncomingMessage(sessionKey, connID string, raw []byte) (*Delivery, error) {
	logCtx := logrus.WithFields(logrus.Fields{"session_key": sessionKey, "conn_id": connID})

	var msg dto.IncomingMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		logCtx.WithError(err).Warn("Failed to unmarshal client message")
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	logCtx = logCtx.WithField("message_type", msg.Type)

	switch msg.Type {
	case dto.TypeStroke:
		op := s.sessionRepo.AppendStroke(sessionKey, msg.Stroke)
		logCtx.WithField("op_id", op.OpID).Debug("Stroke appended")
		return broadcastOp(op)

	case dto.TypeUndo:
		op := s.sessionRepo.PerformUndo(sessionKey, connID)
		if op == nil {
			logCtx.Debug("Undo is a no-op")
			return nil, nil
		}
		logCtx.WithFields(logrus.Fields{"op_id": op.OpID, "target_op_id": op.TargetOpID}).Debug("Undo appended")
		return broadcastOp(*op)

	case dto.TypeRedo:
		op := s.sessionRepo.PerformRedo(sessionKey, connID)
		if op == nil {
			logCtx.Debug("Redo is a no-op")
			return nil, nil
		}
		logCtx.WithFields(logrus.Fields{"op_id": op.OpID, "target_op_id": op.TargetOpID}).Debug("Redo appended")
		return broadcastOp(*op)

	case dto.TypeRequestState:
		reply, err := marshal(dto.NewRoomStateMessage(s.sessionRepo.SessionState(sessionKey)))
		if err != nil {
			return nil, err
		}
		return &Delivery{Reply: reply}, nil

	case dto.TypeCursor:
		// 光标只转发给其他人，不进入历史
		cursor, err := marshal(dto.CursorMessage{
			Type:      dto.TypeCursor,
			UserID:    connID,
			X:         msg.X,
			Y:         msg.Y,
			IsDrawing: msg.IsDrawing,
		})
		if err != nil {
			return nil, err
		}
		return &Delivery{Broadcast: cursor, ExcludeSender: true}, nil

	default:
		logCtx.Warn("Unknown client message type")
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type)
	}
}

// ErrorFrame 构造发回给客户端的错误帧。
func ErrorFrame(err error) []byte {
	b, marshalErr := json.Marshal(dto.ErrorDTO{Type: dto.TypeError, Message: err.Error()})
	if marshalErr != nil {
		return []byte(`{"type":"error","message":"internal server error"}`)
	}
	return b
}

func broadcastOp(op domain.Operation) (*Delivery, error) {
	b, err := marshal(dto.OpMessage{Type: dto.TypeOp, Op: op})
	if err != nil {
		return nil, err
	}
	return &Delivery{Broadcast: b}, nil
}

func marshal(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal %T: %v", ErrInternalServer, v, err)
	}
	return b, nil
}
