package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	sessionKey string      // 所在会话
	connID     string      // 连接 ID，同时作为参与者的 userId
	name       string      // 显示名 (可为空，由注册表生成默认值)
	send       chan []byte // 发往此客户端的消息队列
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, conn *websocket.Conn, sessionKey, connID, name string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		sessionKey: sessionKey,
		connID:     connID,
		name:       name,
		send:       make(chan []byte, sendBufferSize),
	}
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

func (c *Client) logCtx() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"conn_id": c.connID, "session_key": c.sessionKey})
}

// ReadPump 将帧从 WebSocket 连接送到 Hub。
func (c *Client) ReadPump() {
	defer func() {
		// 注销与操作一样阻塞入队，丢失会留下幽灵参与者；Hub 已停止时由 closeAll 清理
		unregisterMsg := HubMessage{Type: MessageUnregister, SessionKey: c.sessionKey, ConnID: c.connID, Client: c}
		select {
		case c.hub.messageChan <- unregisterMsg:
		case <-c.hub.done:
		}
		c.conn.Close()
		c.logCtx().Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(c.hub.maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logCtx().WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				c.logCtx().Debug("WebSocket connection closed normally or read error")
			}
			break
		}

		if messageType != websocket.TextMessage {
			c.logCtx().Debugf("Received non-text message type: %d", messageType)
			continue
		}

		// 阻塞入队，客户端操作不能丢
		actionMsg := HubMessage{
			Type:       MessageAction,
			SessionKey: c.sessionKey,
			ConnID:     c.connID,
			Client:     c,
			RawData:    message,
		}
		select {
		case c.hub.messageChan <- actionMsg:
		case <-c.hub.done:
			return
		}
	}
}

// WritePump 将 send 通道中的消息写到 WebSocket 连接，并定期发送 Ping。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logCtx().Info("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了 send 通道
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logCtx().WithError(err).Warn("Failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logCtx().WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}

func (c *Client) SessionKey() string { return c.sessionKey }
func (c *Client) ConnID() string     { return c.connID }
func (c *Client) Name() string       { return c.name }
