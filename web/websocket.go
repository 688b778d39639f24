package web

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"matchcenter/logger"
	"matchcenter/services"
)

// presenceRefreshInterval 每条连接刷新自己在线记录的节奏
const presenceRefreshInterval = 30 * time.Second

// wsFrame 出站消息帧
type wsFrame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// presenceEntry 连接所持有的一条在线记录
type presenceEntry struct {
	MatchID  string
	UserID   string
	UserName string
	TabID    string
}

type roomMessage struct {
	room string
	data []byte
}

// Hub 管理所有 WebSocket 连接和房间成员关系
type Hub struct {
	realtime *services.RealtimeService

	clients map[*Client]bool
	rooms   map[string]map[*Client]bool
	mu      sync.RWMutex

	broadcast  chan roomMessage
	register   chan *Client
	unregister chan *Client
}

// NewHub 创建 Hub 实例
func NewHub(realtime *services.RealtimeService) *Hub {
	return &Hub{
		realtime:   realtime,
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan roomMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run 运行 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			logger.Printf("[Hub] Client %s connected. Total clients: %d", client.id, total)

		case client := <-h.unregister:
			h.cleanupClient(client)

		case msg := <-h.broadcast:
			h.deliver(msg.room, msg.data)
		}
	}
}

// BroadcastRoom 向房间广播一条出站消息（实现 services.RoomBroadcaster 接口）
func (h *Hub) BroadcastRoom(room, event string, payload interface{}) {
	data, err := json.Marshal(wsFrame{Type: event, Payload: payload})
	if err != nil {
		logger.Errorf("[Hub] Failed to marshal %s message: %v", event, err)
		return
	}
	h.broadcast <- roomMessage{room: room, data: data}
}

// deliver 把消息发给房间内所有客户端，发送通道已满的客户端直接断开
func (h *Hub) deliver(room string, data []byte) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for client := range h.rooms[room] {
		members = append(members, client)
	}
	h.mu.RUnlock()

	for _, client := range members {
		if !client.enqueue(data) {
			logger.Errorf("[Hub] Client %s send buffer full, disconnecting", client.id)
			h.cleanupClient(client)
		}
	}
}

// joinRoom 把客户端加入房间
func (h *Hub) joinRoom(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][c] = true
}

// leaveRoom 把客户端移出房间
func (h *Hub) leaveRoom(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// cleanupClient 断开后的清理：撤销所有在线记录并逐条广播 user_left，
// 停掉刷新协程，退出所有房间，关闭发送通道
func (h *Hub) cleanupClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	// 先置关闭标记再关通道，enqueue 在同一把锁下检查标记，
	// 保证不会向已关闭的通道发送
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	close(c.send)
	total := len(h.clients)
	h.mu.Unlock()

	c.stopRefresh()

	for _, entry := range c.takePresence() {
		h.realtime.RemovePresence(entry.MatchID, entry.UserID, entry.TabID)
		userCount := h.realtime.GetUserCount(entry.MatchID)

		data, err := json.Marshal(wsFrame{Type: "chat:user_left", Payload: map[string]interface{}{
			"matchId":   entry.MatchID,
			"userId":    entry.UserID,
			"userName":  entry.UserName,
			"userCount": userCount,
		}})
		if err != nil {
			continue
		}
		h.deliver(services.ChatRoom(entry.MatchID), data)
	}

	logger.Printf("[Hub] Client %s disconnected. Total clients: %d", c.id, total)
}

// Client 一条 WebSocket 连接
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.Mutex
	presence []presenceEntry
	closed   bool

	done     chan struct{}
	stopOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
	}
}

// enqueue 非阻塞投递一条出站消息。连接已清理时静默丢弃并返回 true，
// 缓冲满时返回 false，由调用方决定是否断开
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) addPresence(entry presenceEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presence = append(c.presence, entry)
}

func (c *Client) removePresence(matchID, userID, tabID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.presence[:0]
	for _, entry := range c.presence {
		if entry.MatchID == matchID && entry.UserID == userID && entry.TabID == tabID {
			continue
		}
		kept = append(kept, entry)
	}
	c.presence = kept
}

func (c *Client) takePresence() []presenceEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.presence
	c.presence = nil
	return entries
}

func (c *Client) snapshotPresence() []presenceEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]presenceEntry(nil), c.presence...)
}

func (c *Client) stopRefresh() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
}

// refreshLoop 按固定节奏刷新本连接持有的在线记录
func (c *Client) refreshLoop() {
	ticker := time.NewTicker(presenceRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			for _, entry := range c.snapshotPresence() {
				c.hub.realtime.RefreshPresence(entry.MatchID, entry.UserID, entry.TabID)
			}
		}
	}
}

// readPump 读取客户端消息
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Errorf("[Hub] WebSocket error: %v", err)
			}
			break
		}
		c.handleMessage(message)
	}
}

// writePump 向客户端写入消息
func (c *Client) writePump() {
	defer func() {
		c.conn.Close()
	}()

	for {
		message, ok := <-c.send
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// sendFrame 向本连接发送一条出站消息
func (c *Client) sendFrame(event string, payload interface{}) {
	data, err := json.Marshal(wsFrame{Type: event, Payload: payload})
	if err != nil {
		logger.Errorf("[Hub] Failed to marshal %s message: %v", event, err)
		return
	}
	if !c.enqueue(data) {
		logger.Errorf("[Hub] Client %s send buffer full, dropping %s", c.id, event)
	}
}

// sendError 向本连接发送类型化的错误通知，不影响其他连接
func (c *Client) sendError(code, message string, details interface{}) {
	payload := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if details != nil {
		payload["details"] = details
	}
	c.sendFrame("error", payload)
}
