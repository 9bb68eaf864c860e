package hub

import (
	"sort"
	"sync"
	"time"

	"collaborative-canvas/internal/service"

	"github.com/sirupsen/logrus"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultMaxMessageSize 是单帧允许的最大字节数，笔画点数较多时帧会比较大。
	DefaultMaxMessageSize int64 = 512 * 1024

	// 每个客户端发送队列长度
	sendBufferSize = 256
)

// Hub 内部消息类型
const (
	MessageRegister   = "register"
	MessageUnregister = "unregister"
	MessageAction     = "action"
)

// HubMessage 定义了在 Hub 内部通道传递的消息
type HubMessage struct {
	Type       string  // "register", "unregister", "action"
	SessionKey string  // 会话标识
	ConnID     string  // 来源连接 ID
	Client     *Client // 发送该消息的客户端
	RawData    []byte  // 仅用于 action (原始 WebSocket 帧)
}

// Option 配置 Hub。
type Option func(*Hub)

// WithMaxMessageSize 设置客户端单帧最大字节数。
func WithMaxMessageSize(n int64) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxMessageSize = n
		}
	}
}

// Hub 维护活跃连接并串行处理所有连接事件。
// 同一会话的操作在 Hub 循环里按入队顺序处理，广播顺序与历史顺序一致。
type Hub struct {
	messageChan chan HubMessage

	// map[sessionKey]map[*Client]bool
	sessions   map[string]map[*Client]bool
	sessionsMu sync.RWMutex

	collabService  *service.CollaborationService
	maxMessageSize int64

	done     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(collabService *service.CollaborationService, opts ...Option) *Hub {
	if collabService == nil {
		panic("CollaborationService cannot be nil for Hub")
	}
	h := &Hub{
		messageChan:    make(chan HubMessage, 512),
		sessions:       make(map[string]map[*Client]bool),
		collabService:  collabService,
		maxMessageSize: DefaultMaxMessageSize,
		done:           make(chan struct{}),
		stopped:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run 启动 Hub 的主事件循环，应在单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")
	defer close(h.stopped)

	for {
		select {
		case msg := <-h.messageChan:
			h.dispatch(msg)
		case <-h.done:
			h.closeAll()
			log.Info("Hub is shutting down...")
			return
		}
	}
}

// Stop 停止 Hub 循环并关闭所有客户端的发送通道。可重复调用。
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Stopped 在 Run 退出后关闭。
func (h *Hub) Stopped() <-chan struct{} {
	return h.stopped
}

func (h *Hub) dispatch(msg HubMessage) {
	switch msg.Type {
	case MessageRegister:
		h.registerClient(msg.Client)
	case MessageUnregister:
		h.unregisterClient(msg.Client)
	case MessageAction:
		h.handleClientAction(msg)
	default:
		logrus.WithFields(logrus.Fields{
			"component":    "hub",
			"message_type": msg.Type,
			"session_key":  msg.SessionKey,
			"conn_id":      msg.ConnID,
		}).Warn("Hub: Received unknown message type")
	}
}

// registerClient 把客户端加入会话，下发身份和快照，并广播参与者列表
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	sessionKey := client.SessionKey()
	logCtx := logrus.WithFields(logrus.Fields{
		"session_key": sessionKey,
		"conn_id":     client.ConnID(),
		"action":      "registerClient",
	})

	res, err := h.collabService.Join(sessionKey, client.ConnID(), client.Name())
	if err != nil {
		logCtx.WithError(err).Error("Failed to join session")
		h.sendTo(client, service.ErrorFrame(err))
		return
	}

	h.sessionsMu.Lock()
	if _, ok := h.sessions[sessionKey]; !ok {
		h.sessions[sessionKey] = make(map[*Client]bool)
		logCtx.Info("Client list created for new session")
	}
	h.sessions[sessionKey][client] = true
	h.sessionsMu.Unlock()
	logCtx.Info("Client registered to Hub")

	// 先发身份再发快照，之后才有该会话的 op 广播到达
	h.sendTo(client, res.Joined)
	h.sendTo(client, res.RoomState)
	h.broadcast(sessionKey, res.Users, nil)
}

// unregisterClient 移除客户端，关闭其发送通道，并通知受影响会话
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	sessionKey := client.SessionKey()
	logCtx := logrus.WithFields(logrus.Fields{
		"session_key": sessionKey,
		"conn_id":     client.ConnID(),
		"action":      "unregisterClient",
	})

	h.sessionsMu.Lock()
	clients, ok := h.sessions[sessionKey]
	if !ok || !clients[client] {
		h.sessionsMu.Unlock()
		logCtx.Warn("Client not found during unregister")
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.sessions, sessionKey)
		logCtx.Info("Session has no connections, removed from Hub")
	}
	h.sessionsMu.Unlock()
	logCtx.Info("Client unregistered from Hub")

	for _, update := range h.collabService.Leave(client.ConnID()) {
		h.broadcast(update.SessionKey, update.Users, nil)
	}
}

// handleClientAction 处理客户端发来的一帧并转发结果
func (h *Hub) handleClientAction(msg HubMessage) {
	logCtx := logrus.WithFields(logrus.Fields{
		"session_key": msg.SessionKey,
		"conn_id":     msg.ConnID,
		"operation":   "handleClientAction",
	})
	logCtx.Debugf("Processing client action (data size: %d)", len(msg.RawData))

	delivery, err := h.collabService.ProcessIncomingMessage(msg.SessionKey, msg.ConnID, msg.RawData)
	if err != nil {
		logCtx.WithError(err).Warn("Error processing client message")
		if msg.Client != nil {
			h.sendTo(msg.Client, service.ErrorFrame(err))
		}
		return
	}
	if delivery == nil {
		logCtx.Debug("Action processed but nothing to deliver")
		return
	}

	if delivery.Reply != nil && msg.Client != nil {
		h.sendTo(msg.Client, delivery.Reply)
	}
	if delivery.Broadcast != nil {
		var exclude *Client
		if delivery.ExcludeSender {
			exclude = msg.Client
		}
		h.broadcast(msg.SessionKey, delivery.Broadcast, exclude)
	}
}

// broadcast 将消息发送给会话内所有客户端，exclude 非空时跳过该客户端
func (h *Hub) broadcast(sessionKey string, message []byte, exclude *Client) {
	h.sessionsMu.RLock()
	clients, ok := h.sessions[sessionKey]
	recipients := make([]*Client, 0, len(clients))
	if ok {
		for client := range clients {
			if client != exclude {
				recipients = append(recipients, client)
			}
		}
	}
	h.sessionsMu.RUnlock()

	if len(recipients) == 0 {
		return
	}

	logCtx := logrus.WithFields(logrus.Fields{
		"session_key":     sessionKey,
		"message_size":    len(message),
		"recipient_count": len(recipients),
	})
	logCtx.Debug("Broadcasting message to clients")

	for _, client := range recipients {
		h.sendTo(client, message)
	}
}

// sendTo 非阻塞地把消息放入客户端发送队列，队列满时丢弃
func (h *Hub) sendTo(client *Client, message []byte) {
	select {
	case client.send <- message:
	default:
		logrus.WithFields(logrus.Fields{
			"session_key": client.SessionKey(),
			"conn_id":     client.ConnID(),
		}).Warn("Client send channel full, message dropped")
	}
}

// closeAll 关闭所有客户端的发送通道，WritePump 随之发送关闭帧并退出
func (h *Hub) closeAll() {
	h.sessionsMu.Lock()
	defer h.sessionsMu.Unlock()
	for key, clients := range h.sessions {
		for client := range clients {
			close(client.send)
		}
		delete(h.sessions, key)
	}
}

// --- 公共方法 ---

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)。
// 返回 false 表示队列已满或 Hub 已停止。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithFields(logrus.Fields{
			"message_type": msg.Type,
			"session_key":  msg.SessionKey,
			"conn_id":      msg.ConnID,
		}).Warn("Hub message channel full, dropping message")
		return false
	}
}

// ActiveSessionKeys 返回当前有连接的会话，按字典序。
func (h *Hub) ActiveSessionKeys() []string {
	h.sessionsMu.RLock()
	defer h.sessionsMu.RUnlock()
	keys := make([]string, 0, len(h.sessions))
	for key := range h.sessions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ConnectionCount 返回当前连接总数。
func (h *Hub) ConnectionCount() int {
	h.sessionsMu.RLock()
	defer h.sessionsMu.RUnlock()
	n := 0
	for _, clients := range h.sessions {
		n += len(clients)
	}
	return n
}
