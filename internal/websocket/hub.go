package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fileoff/backend/internal/auth/jwt"
	"fileoff/backend/internal/domain"
)

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}

			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				// 没有 Origin 视为同源请求
				return true
			}

			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}

			return false
		},
	}
}

// MessageType WebSocket 消息类型
type MessageType string

const (
	MessageTypeNewFile MessageType = "new_file"
	MessageTypePing    MessageType = "ping"
	MessageTypePong    MessageType = "pong"
)

// Message WebSocket 消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client 一个已认证的 WebSocket 连接
type Client struct {
	ID     string
	UserID string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
}

// Hub 管理通知连接
//
// 按用户分组，文件上传完成后向接收者的所有连接推送提醒。
// 同一用户可以开多个标签页，每个标签页一条连接。
type Hub struct {
	clients    map[string]*Client            // clientID -> Client
	users      map[string]map[string]*Client // userID -> clientID -> Client
	register   chan *Client
	unregister chan *Client
	upgrader   websocket.Upgrader
	jwtManager *jwt.Manager
	log        *zap.Logger
	mu         sync.RWMutex
}

// NewHub 创建通知 Hub
func NewHub(allowedOrigins []string, jwtManager *jwt.Manager, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	return &Hub{
		clients:    make(map[string]*Client),
		users:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader:   upgraderFactory(allowedOrigins),
		jwtManager: jwtManager,
		log:        log.With(zap.String("component", "websocket")),
	}
}

// Run 启动 Hub，直到 ctx 取消
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			if h.users[client.UserID] == nil {
				h.users[client.UserID] = make(map[string]*Client)
			}
			h.users[client.UserID][client.ID] = client
			h.mu.Unlock()
			h.log.Info("client registered",
				zap.String("id", client.ID),
				zap.String("user_id", client.UserID),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				if conns, exists := h.users[client.UserID]; exists {
					delete(conns, client.ID)
					if len(conns) == 0 {
						delete(h.users, client.UserID)
					}
				}
				close(client.send)
				h.log.Info("client unregistered", zap.String("id", client.ID))
			}
			h.mu.Unlock()

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

// NewFileData 新文件通知数据
type NewFileData struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType,omitempty"`
	ExpireAt  string `json:"expireAt"`
	CreatedAt string `json:"createdAt"`
}

// NotifyTransfer 通知接收者有新文件待取
//
// 实现 service.Notifier。接收者不在线时静默丢弃。
func (h *Hub) NotifyTransfer(receiverID string, t *domain.Transfer) {
	data, err := json.Marshal(NewFileData{
		Filename:  t.Filename,
		Size:      t.Size,
		MimeType:  t.MimeType,
		ExpireAt:  t.ExpireAt.Format(time.RFC3339),
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		h.log.Error("failed to marshal transfer notification", zap.Error(err))
		return
	}

	h.sendToUser(receiverID, &Message{
		Type:      MessageTypeNewFile,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// OnlineUsers 当前有通知连接的用户数
func (h *Hub) OnlineUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users)
}

func (h *Hub) sendToUser(userID string, msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.users[userID] {
		select {
		case client.send <- data:
		default:
			// 客户端阻塞，跳过
			h.log.Warn("client channel blocked, skipping", zap.String("client_id", client.ID))
		}
	}
}

func (h *Hub) pingAllClients() {
	data, err := json.Marshal(&Message{
		Type:      MessageTypePing,
		Timestamp: time.Now(),
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[string]*Client)
	h.users = make(map[string]map[string]*Client)
}

// HandleConnection 处理 WebSocket 连接请求
//
// 认证复用 HTTP 的 JWT：优先 query 参数 token，其次 Authorization 头。
func (h *Hub) HandleConnection(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		if cookie, err := c.Cookie("access_token"); err == nil {
			token = cookie
		}
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	claims, err := h.jwtManager.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:     uuid.NewString(),
		UserID: claims.UserID,
		conn:   conn,
		send:   make(chan []byte, 16),
		hub:    h,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	maxMsgSize = 512
)

// readPump 读取客户端消息
//
// 通知是单向的，入站消息只用于保活，其余全部丢弃。
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// writePump 向客户端发送消息
func (c *Client) writePump() {
	defer c.conn.Close()

	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}

	// send 被关闭，通知对端
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
