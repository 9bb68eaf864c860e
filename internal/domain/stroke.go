package domain

import (
	"encoding/json"
	"fmt"
)

// Point 是笔画上的一个采样点 (画布像素坐标)。
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke 是前端笔画负载的已知形状。
// 协作核心从不解析负载，只有导出等外围功能才用它做宽松解码。
type Stroke struct {
	Color  string  `json:"color"`
	Width  float64 `json:"width"`
	Tool   string  `json:"tool"` // "brush" 或 "eraser"
	Points []Point `json:"points"`
}

// IsEraser 判断是否为橡皮擦笔画。
func (s Stroke) IsEraser() bool { return s.Tool == "eraser" }

// DecodeStroke 从不透明负载中解码 Stroke。
func DecodeStroke(raw json.RawMessage) (Stroke, error) {
	var s Stroke
	if len(raw) == 0 || string(raw) == "null" {
		return s, fmt.Errorf("stroke payload is empty")
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("failed to unmarshal stroke payload: %w", err)
	}
	return s, nil
}
