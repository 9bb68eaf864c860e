package domain

import "encoding/json"

// OpType 表示历史记录中一条操作的类型。
type OpType string

const (
	OpStroke OpType = "stroke" // 一笔完整的笔画
	OpUndo   OpType = "undo"   // 撤销某一笔画
	OpRedo   OpType = "redo"   // 重做某一笔画
)

// Operation 是会话历史中的一条不可变记录。
// JSON 形状即线上格式，必须能原样往返:
//
//	stroke: {type, opId, stroke, ts}
//	undo:   {type, opId, targetOpId, ts, by}
//	redo:   {type, opId, targetOpId, ts, by}
type Operation struct {
	Type       OpType          `json:"type"`
	OpID       string          `json:"opId"`
	Stroke     json.RawMessage `json:"stroke,omitempty"`     // 仅 stroke: 不透明的笔画数据，服务端不解析
	TargetOpID string          `json:"targetOpId,omitempty"` // 仅 undo/redo: 目标笔画的 opId
	Timestamp  int64           `json:"ts"`                   // 毫秒时间戳
	By         string          `json:"by,omitempty"`         // 仅 undo/redo: 发起者的连接 ID，由 MarshalJSON 保证总是输出
}

// MarshalJSON 让 undo/redo 始终带上 by 字段 (即使为空)，stroke 则不带。
func (o Operation) MarshalJSON() ([]byte, error) {
	type plain Operation
	if o.Type == OpStroke {
		return json.Marshal(plain(o))
	}
	return json.Marshal(struct {
		plain
		By string `json:"by"`
	}{plain(o), o.By})
}

// IsStroke 判断是否为笔画操作。
func (o Operation) IsStroke() bool { return o.Type == OpStroke }

// Snapshot 是加入会话或重新同步时下发的完整状态。
type Snapshot struct {
	Strokes []Operation `json:"strokes"` // 当前生效的笔画，按追加顺序
	History []Operation `json:"history"` // 完整历史，按到达顺序
}

// EmptySnapshot 返回一个空快照 (两个切片都非 nil，序列化为 [])。
func EmptySnapshot() Snapshot {
	return Snapshot{Strokes: []Operation{}, History: []Operation{}}
}
