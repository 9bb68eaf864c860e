package dto

import (
	"encoding/json"

	"collaborative-canvas/internal/domain"
)

// 客户端发往服务端的消息类型
const (
	TypeStroke       = "stroke"
	TypeUndo         = "undo"
	TypeRedo         = "redo"
	TypeCursor       = "cursor"
	TypeRequestState = "request_state"
)

// 服务端发往客户端的消息类型
const (
	TypeJoined    = "joined"
	TypeRoomState = "room_state"
	TypeUsers     = "users"
	TypeOp        = "op"
	TypeError     = "error"
)

// IncomingMessage 表示从客户端 WebSocket 文本帧中解析出的消息。
// 各字段只在对应类型下有意义。
type IncomingMessage struct {
	Type      string          `json:"type"`
	Stroke    json.RawMessage `json:"stroke,omitempty"` // stroke: 不透明笔画数据
	X         float64         `json:"x"`                // cursor
	Y         float64         `json:"y"`                // cursor
	IsDrawing bool            `json:"isDrawing"`        // cursor
}

// JoinedMessage 仅发给刚加入的连接，告知其身份和颜色。
type JoinedMessage struct {
	Type   string               `json:"type"`
	UserID string               `json:"userId"`
	Name   string               `json:"name"`
	Color  string               `json:"color"`
	Users  []domain.Participant `json:"users"`
}

// RoomStateMessage 携带完整快照 (加入时和 request_state 时)。
type RoomStateMessage struct {
	Type    string             `json:"type"`
	Strokes []domain.Operation `json:"strokes"`
	History []domain.Operation `json:"history"`
}

// UsersMessage 广播最新的参与者列表。
type UsersMessage struct {
	Type  string               `json:"type"`
	Users []domain.Participant `json:"users"`
}

// OpMessage 广播一条新操作。
type OpMessage struct {
	Type string           `json:"type"`
	Op   domain.Operation `json:"op"`
}

// CursorMessage 转发某个参与者的光标位置。
type CursorMessage struct {
	Type      string  `json:"type"`
	UserID    string  `json:"userId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	IsDrawing bool    `json:"isDrawing"`
}

// ErrorDTO 表示发送给客户端的错误消息。
type ErrorDTO struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewRoomStateMessage 由快照构造 room_state 消息。
func NewRoomStateMessage(snap domain.Snapshot) RoomStateMessage {
	return RoomStateMessage{Type: TypeRoomState, Strokes: snap.Strokes, History: snap.History}
}
