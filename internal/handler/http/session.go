package http

import (
	"bytes"
	"fmt"
	"net/http"

	"collaborative-canvas/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SessionHandler 提供会话的只读 REST 接口
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler 创建 SessionHandler 实例
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	if sessionService == nil {
		panic("SessionService cannot be nil for SessionHandler")
	}
	return &SessionHandler{sessionService: sessionService}
}

// GetState 返回会话快照: {"strokes": [...], "history": [...]}
func (h *SessionHandler) GetState(c *gin.Context) {
	snap, err := h.sessionService.GetState(c.Param("sessionKey"))
	if err != nil {
		logrus.WithError(err).Warn("Handler.GetState: Failed to get session state")
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, snap)
}

// ListParticipants 返回会话参与者
func (h *SessionHandler) ListParticipants(c *gin.Context) {
	users, err := h.sessionService.ListParticipants(c.Param("sessionKey"))
	if err != nil {
		logrus.WithError(err).Warn("Handler.ListParticipants: Failed to list participants")
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"users": users})
}

// ListSessions 返回所有会话的计数
func (h *SessionHandler) ListSessions(c *gin.Context) {
	SuccessResponse(c, http.StatusOK, gin.H{"sessions": h.sessionService.ListSessions()})
}

// ExportPDF 把会话当前画面导出为 PDF
func (h *SessionHandler) ExportPDF(c *gin.Context) {
	sessionKey := c.Param("sessionKey")
	// 先渲染到缓冲区，失败时还能返回 JSON 错误
	var buf bytes.Buffer
	if err := h.sessionService.ExportPDF(sessionKey, &buf); err != nil {
		HandleServiceError(c, err)
		return
	}
	normalized, _ := service.NormalizeSessionKey(sessionKey)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, sanitizeFilename(normalized)))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

// sanitizeFilename 只保留文件名中的安全字符
func sanitizeFilename(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "canvas"
	}
	return string(out)
}
