package domain

// Participant 表示会话中的一个在线连接。
type Participant struct {
	ConnID string `json:"userId"` // 连接 ID，同时作为前端的 userId
	Name   string `json:"name"`
	Color  string `json:"color"`
}

// DefaultPalette 是参与者颜色的默认调色板。
var DefaultPalette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#fabebe",
}

// SessionStats 汇总单个会话的运行计数，供统计任务和 REST 接口使用。
type SessionStats struct {
	SessionKey     string `json:"sessionKey"`
	Participants   int    `json:"participants"`
	HistoryLength  int    `json:"historyLength"`
	AppliedStrokes int    `json:"appliedStrokes"`
}
