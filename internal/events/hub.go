package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iago/market-analysis-back/internal/domain"
	"github.com/iago/market-analysis-back/internal/logging"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	clientBuffer = 64
)

// Message is the envelope written to stream subscribers.
type Message struct {
	Type string          `json:"type"`
	Job  domain.JobEvent `json:"job"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans job events out to websocket subscribers. Publish never blocks;
// a subscriber whose buffer is full is disconnected.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *logging.ContextLogger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

func NewHub(logger *logging.ContextLogger) *Hub {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger.With("component", "events"),
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) Publish(event domain.JobEvent) {
	payload, err := json.Marshal(Message{Type: "job_update", Job: event})
	if err != nil {
		h.logger.Error("encode job event failed", "job_id", event.JobID, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			delete(h.clients, c)
			c.close()
			h.logger.Warn("slow subscriber dropped")
		}
	}
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams job events until the peer
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("subscriber connected", "subscribers", total)

	go h.writePump(c)
	h.readPump(c)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("subscriber disconnected", "subscribers", total)
}

func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
