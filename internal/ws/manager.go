package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const clientSendBuffer = 8

// Manager tracks live-feed websocket clients and fans the current state
// document out to them. Slow clients are dropped rather than allowed to back
// up the ingest path.
type Manager struct {
	mu           sync.RWMutex
	clients      map[*client]struct{}
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	logger       *zap.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewManager builds the hub.
func NewManager(pingInterval time.Duration, logger *zap.Logger) *Manager {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Manager{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Same-origin dashboard; cookie auth happens in middleware.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// Handle upgrades the request and registers the connection.
func (m *Manager) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSendBuffer)}

	m.mu.Lock()
	m.clients[c] = struct{}{}
	m.mu.Unlock()

	go m.writePump(c)
	go m.readPump(c)
}

// Broadcast serializes v and queues it for every connected client.
func (m *Manager) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Error("encode broadcast", zap.Error(err))
		return
	}

	// Sends happen under the read lock so no client channel can be closed
	// mid-send; drop takes the write lock and therefore waits.
	m.mu.RLock()
	var slow []*client
	for c := range m.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range slow {
		m.drop(c)
	}
}

// Start runs the ping loop until ctx is canceled, then closes every client.
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case <-ticker.C:
			m.mu.RLock()
			for c := range m.clients {
				_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
			m.mu.RUnlock()
		}
	}
}

// ClientCount reports the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *Manager) writePump(c *client) {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			m.drop(c)
			return
		}
	}
	c.conn.Close()
}

// readPump discards inbound frames; the feed is one-way. It exists to notice
// closed connections and service control frames.
func (m *Manager) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			m.drop(c)
			return
		}
	}
}

func (m *Manager) drop(c *client) {
	m.mu.Lock()
	if _, ok := m.clients[c]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.clients, c)
	m.mu.Unlock()

	close(c.send)
	c.conn.Close()
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	clients := make([]*client, 0, len(m.clients))
	for c := range m.clients {
		clients = append(clients, c)
	}
	m.clients = make(map[*client]struct{})
	m.mu.Unlock()

	for _, c := range clients {
		close(c.send)
		c.conn.Close()
	}
}
