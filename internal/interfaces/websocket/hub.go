package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/port"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 64
)

// Hub fans realtime events out to websocket subscribers. Each connection
// names the channels it wants (user.N, flow.N, task.N) in the `channels`
// query parameter. Delivery is best effort: a connection that cannot
// keep up is dropped.
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	clients  map[string]*client
	logger   *zap.Logger
}

type client struct {
	id       string
	conn     *websocket.Conn
	channels map[string]bool
	send     chan []byte
}

type envelope struct {
	Event     string         `json:"event"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
}

// NewHub creates a websocket hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[string]*client),
		logger:  logger,
	}
}

// Handle upgrades an HTTP request and serves it until the peer leaves
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	channels := make(map[string]bool)
	for _, ch := range strings.Split(r.URL.Query().Get("channels"), ",") {
		ch = strings.TrimSpace(ch)
		if ch != "" {
			channels[ch] = true
		}
	}

	c := &client{
		id:       uuid.NewString(),
		conn:     conn,
		channels: channels,
		send:     make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.logger.Debug("Websocket client connected",
		zap.String("client_id", c.id),
		zap.Int("channels", len(channels)))

	go h.writePump(c)
	h.readPump(c)
}

// Publish pushes an event to every client subscribed to any of the
// channels
func (h *Hub) Publish(channels []string, event string, payload map[string]any) {
	raw, err := json.Marshal(envelope{
		Event:     event,
		Data:      payload,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	if err != nil {
		h.logger.Error("Failed to marshal event",
			zap.String("event", event),
			zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		if !subscribed(c, channels) {
			continue
		}
		select {
		case c.send <- raw:
		default:
			// Slow consumer; the write pump will notice the closed channel
			h.logger.Warn("Dropping slow websocket client",
				zap.String("client_id", c.id))
			go h.remove(c.id)
		}
	}
}

// ClientCount returns the number of live connections
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close drops every connection
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.conn.Close()
		delete(h.clients, id)
	}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}

func (h *Hub) readPump(c *client) {
	defer h.remove(c.id)

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.remove(c.id)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func subscribed(c *client, channels []string) bool {
	for _, ch := range channels {
		if c.channels[ch] {
			return true
		}
	}
	return false
}

// Verify interface compliance
var _ port.Broadcaster = (*Hub)(nil)
