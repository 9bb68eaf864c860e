package websocket

import (
	"errors"
	"net/http"

	"collaborative-canvas/internal/hub"
	"collaborative-canvas/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
	newID    func() string
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。
// allowedOrigin 为空或 "*" 时接受任意来源。
func NewWebSocketHandler(h *hub.Hub, allowedOrigin string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" || allowedOrigin == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == allowedOrigin
		},
	}

	return &WebSocketHandler{
		upgrader: upgrader,
		hub:      h,
		newID:    uuid.NewString,
	}
}

// HandleConnection 处理 WebSocket 连接请求
// URL: /ws/room/:sessionKey?name=Alice 或 /ws (默认会话)
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	// 1. 解析会话标识，非法时在升级前返回 400
	sessionKey, err := service.NormalizeSessionKey(c.Param("sessionKey"))
	if err != nil {
		logrus.WithError(err).Warn("WS Handler: Invalid session key")
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrInvalidSessionKey) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	connID := h.newID()
	logCtx := logrus.WithFields(logrus.Fields{"session_key": sessionKey, "conn_id": connID})

	// 2. 升级 HTTP 连接到 WebSocket (失败时 Upgrade 已写回 HTTP 错误)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}
	logCtx.Info("WS Handler: Connection upgraded to WebSocket")

	// 3. 创建 Client 并请求 Hub 注册
	client := hub.NewClient(h.hub, conn, sessionKey, connID, c.Query("name"))
	registerMsg := hub.HubMessage{
		Type:       hub.MessageRegister,
		SessionKey: sessionKey,
		ConnID:     connID,
		Client:     client,
	}
	if !h.hub.QueueMessage(registerMsg) {
		logCtx.Error("WS Handler: Hub message channel full, failed to register client")
		conn.Close()
		return
	}

	// 4. 启动读写 goroutine
	client.Run()
	logCtx.Info("WS Handler: Client read/write pumps started")
}
