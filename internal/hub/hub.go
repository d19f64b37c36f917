// Package hub fans conversation events out to websocket viewers.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mcpeeps/coordinator/internal/domain"
)

// Connection is a single websocket viewer of one conversation.
type Connection struct {
	ID        string
	ContextID string
	Conn      *websocket.Conn
	Send      chan []byte
	mu        sync.Mutex
}

type contextMessage struct {
	contextID string
	data      []byte
}

// Hub manages all websocket connections, grouped by context id.
type Hub struct {
	connections map[string]*Connection
	contexts    map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan contextMessage
	done       chan struct{}

	mu     sync.RWMutex
	logger *slog.Logger
}

// New creates a hub. Call Run to start delivering events.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		connections: make(map[string]*Connection),
		contexts:    make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan contextMessage, 256),
		done:        make(chan struct{}),
		logger:      logger.With("component", "hub"),
	}
}

// Run is the hub's main loop. It returns when ctx is done, closing every connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for id, conn := range h.connections {
				close(conn.Send)
				delete(h.connections, id)
			}
			h.contexts = make(map[string]map[string]bool)
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if h.contexts[conn.ContextID] == nil {
				h.contexts[conn.ContextID] = make(map[string]bool)
			}
			h.contexts[conn.ContextID][conn.ID] = true
			h.mu.Unlock()
			h.logger.Debug("viewer registered", "conn_id", conn.ID, "context_id", conn.ContextID)

		case conn := <-h.unregister:
			h.remove(conn)

		case msg := <-h.broadcast:
			var slow []*Connection
			h.mu.RLock()
			for connID := range h.contexts[msg.contextID] {
				conn, ok := h.connections[connID]
				if !ok {
					continue
				}
				select {
				case conn.Send <- msg.data:
				default:
					slow = append(slow, conn)
				}
			}
			h.mu.RUnlock()
			for _, conn := range slow {
				h.logger.Warn("viewer buffer full, closing", "conn_id", conn.ID)
				h.remove(conn)
			}
		}
	}
}

func (h *Hub) remove(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[conn.ID]; !ok {
		return
	}
	delete(h.connections, conn.ID)
	if ids := h.contexts[conn.ContextID]; ids != nil {
		delete(ids, conn.ID)
		if len(ids) == 0 {
			delete(h.contexts, conn.ContextID)
		}
	}
	close(conn.Send)
	h.logger.Debug("viewer unregistered", "conn_id", conn.ID)
}

// NewConnection wraps ws as a viewer of contextID. It is not registered yet.
func (h *Hub) NewConnection(ws *websocket.Conn, contextID string) *Connection {
	return &Connection{
		ID:        uuid.New().String(),
		ContextID: contextID,
		Conn:      ws,
		Send:      make(chan []byte, 256),
	}
}

// Register registers a connection with the hub. After the hub stopped the
// connection's Send channel is closed right away.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		close(conn.Send)
	}
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Publish queues ev for every viewer of its context. Events are dropped
// when the hub is saturated so publishers never block.
func (h *Hub) Publish(ev domain.Event) {
	if ev.Ts == 0 {
		ev.Ts = time.Now().UnixMilli()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode event", "error", err)
		return
	}
	select {
	case h.broadcast <- contextMessage{contextID: ev.ContextID, data: data}:
	default:
		h.logger.Warn("hub saturated, dropping event", "context_id", ev.ContextID, "type", ev.Type)
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// HasViewers reports whether contextID has any active connection.
func (h *Hub) HasViewers(contextID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.contexts[contextID]) > 0
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
