package service

import (
	"context"
	"encoding/json"
	"exam_platform_backend/pkg/logger"
	"exam_platform_backend/pkg/monitoring"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	shardCount     = 16
	outboundBuffer = 256

	// TeacherEventsChannel carries events between instances when Redis is enabled.
	TeacherEventsChannel = "teacher_events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Publisher delivers domain events to teacher dashboards. Implementations must
// not block the caller.
type Publisher interface {
	Publish(event string, data interface{})
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
	At   time.Time   `json:"at"`
}

type Client struct {
	Hub     *NotificationHub
	Conn    *websocket.Conn
	Send    chan []byte
	UserID  uint
	Limiter *rate.Limiter
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.remove(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Warn("Teacher socket closed unexpectedly", zap.Error(err), zap.Uint("userId", c.UserID))
			}
			break
		}

		if !c.Limiter.Allow() {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			pong, _ := json.Marshal(WSMessage{Type: "pong", At: time.Now()})
			select {
			case c.Send <- pong:
			default:
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// one event per frame so clients can JSON-decode each message
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type shard struct {
	clients map[*Client]struct{}
	mu      sync.RWMutex
}

// NotificationHub keeps the live teacher sessions of this instance and
// broadcasts published events to all of them. With Redis configured, events
// round-trip through the teacher_events channel so every instance sees them.
type NotificationHub struct {
	shards     [shardCount]*shard
	register   chan *Client
	unregister chan *Client
	outbound   chan []byte
	quit       chan struct{}
	stopOnce   sync.Once
	Redis      *redis.Client
}

func NewNotificationHub(rdb *redis.Client) *NotificationHub {
	h := &NotificationHub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbound:   make(chan []byte, outboundBuffer),
		quit:       make(chan struct{}),
		Redis:      rdb,
	}
	for i := 0; i < shardCount; i++ {
		h.shards[i] = &shard{
			clients: make(map[*Client]struct{}),
		}
	}
	return h
}

func (h *NotificationHub) getShard(userID uint) *shard {
	return h.shards[userID%shardCount]
}

// Run owns registration and delivery until ctx ends or Stop is called.
func (h *NotificationHub) Run(ctx context.Context) {
	defer h.Stop()

	if h.Redis != nil {
		pubsub := h.Redis.Subscribe(ctx, TeacherEventsChannel)
		defer pubsub.Close()
		go func() {
			for msg := range pubsub.Channel() {
				h.broadcastLocal([]byte(msg.Payload))
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.quit:
			return

		case client := <-h.register:
			s := h.getShard(client.UserID)
			s.mu.Lock()
			s.clients[client] = struct{}{}
			s.mu.Unlock()
			monitoring.TeacherSessions.Inc()

		case client := <-h.unregister:
			s := h.getShard(client.UserID)
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.Send)
				monitoring.TeacherSessions.Dec()
			}
			s.mu.Unlock()

		case payload := <-h.outbound:
			if h.Redis == nil {
				h.broadcastLocal(payload)
				continue
			}
			if err := h.Redis.Publish(ctx, TeacherEventsChannel, payload).Err(); err != nil {
				logger.Log.Warn("Redis publish failed, delivering locally", zap.Error(err))
				h.broadcastLocal(payload)
			}
		}
	}
}

// Stop closes every session. Safe to call more than once.
func (h *NotificationHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.quit)

		closed := 0
		for i := 0; i < shardCount; i++ {
			s := h.shards[i]
			s.mu.Lock()
			for client := range s.clients {
				close(client.Send)
				delete(s.clients, client)
				closed++
			}
			s.mu.Unlock()
		}
		monitoring.TeacherSessions.Set(0)
		logger.Log.Info("Notification hub stopped", zap.Int("closedSessions", closed))
	})
}

// Publish queues an event for delivery. It never blocks: when the queue is
// full the event is dropped and counted.
func (h *NotificationHub) Publish(event string, data interface{}) {
	payload, err := json.Marshal(WSMessage{Type: event, Data: data, At: time.Now()})
	if err != nil {
		logger.Log.Error("Failed to encode notification", zap.String("event", event), zap.Error(err))
		return
	}

	select {
	case h.outbound <- payload:
		monitoring.NotificationsPublished.WithLabelValues(event, "queued").Inc()
	default:
		monitoring.NotificationsPublished.WithLabelValues(event, "dropped").Inc()
		logger.Log.Warn("Notification queue full, event dropped", zap.String("event", event))
	}
}

// SessionCount reports the open sessions on this instance.
func (h *NotificationHub) SessionCount() int {
	n := 0
	for i := 0; i < shardCount; i++ {
		s := h.shards[i]
		s.mu.RLock()
		n += len(s.clients)
		s.mu.RUnlock()
	}
	return n
}

func (h *NotificationHub) broadcastLocal(payload []byte) {
	for i := 0; i < shardCount; i++ {
		s := h.shards[i]
		s.mu.RLock()
		for client := range s.clients {
			select {
			case client.Send <- payload:
			default:
			}
		}
		s.mu.RUnlock()
	}
}

func (h *NotificationHub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

func (h *NotificationHub) ServeWs(w http.ResponseWriter, r *http.Request, userID uint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket upgrade failed", zap.Error(err), zap.Uint("userId", userID))
		return
	}
	client := &Client{
		Hub:     h,
		Conn:    conn,
		Send:    make(chan []byte, 64),
		UserID:  userID,
		Limiter: rate.NewLimiter(rate.Limit(5), 10),
	}

	select {
	case h.register <- client:
	case <-h.quit:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
