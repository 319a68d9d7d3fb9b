package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"whytrade-api/internal/auth"
	"whytrade-api/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The endpoint sits behind the auth middleware; token possession
		// is the access control, not the Origin header.
		return true
	},
}

// WSClient is one WebSocket connection belonging to a user
type WSClient struct {
	conn      *websocket.Conn
	send      chan []byte
	hub       *WSHub
	userID    string
	closeChan chan struct{}
}

// WSHub tracks connections per user. Trade lifecycle events are private,
// so delivery is always scoped to the owning user, never broadcast.
type WSHub struct {
	userClients map[string][]*WSClient
	register    chan *WSClient
	unregister  chan *WSClient
	deliver     chan events.Event
	mu          sync.RWMutex
}

// NewWSHub creates a WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		userClients: make(map[string][]*WSClient),
		register:    make(chan *WSClient),
		unregister:  make(chan *WSClient),
		deliver:     make(chan events.Event, 1024),
	}
}

// Run processes hub registrations and event delivery
func (h *WSHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.userClients[client.userID] = append(h.userClients[client.userID], client)
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeClient(client)
			h.mu.Unlock()

		case event := <-h.deliver:
			h.sendToUser(event)
		}
	}
}

// removeClient detaches a client; caller must hold the write lock.
func (h *WSHub) removeClient(client *WSClient) {
	clients, ok := h.userClients[client.userID]
	if !ok {
		return
	}
	for i, c := range clients {
		if c == client {
			h.userClients[client.userID] = append(clients[:i], clients[i+1:]...)
			close(client.send)
			break
		}
	}
	if len(h.userClients[client.userID]) == 0 {
		delete(h.userClients, client.userID)
	}
}

func (h *WSHub) sendToUser(event events.Event) {
	if event.UserID == "" {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	clients := h.userClients[event.UserID]
	for _, client := range clients {
		select {
		case client.send <- data:
		default:
			// Slow consumer; drop the connection rather than block delivery.
			go func(c *WSClient) { h.unregister <- c }(client)
		}
	}
	h.mu.RUnlock()
}

// DeliverEvent queues an event for delivery to its owning user's
// connections. Safe to call from event bus subscribers.
func (h *WSHub) DeliverEvent(event events.Event) {
	select {
	case h.deliver <- event:
	default:
	}
}

// ClientCount returns the number of connections for a user
func (h *WSHub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userClients[userID])
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		close(c.closeChan)
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
		// Clients only listen; inbound messages are ignored.
	}
}

// handleWebSocket upgrades an authenticated request to a WebSocket that
// streams the caller's trade lifecycle events.
func (s *Server) handleWebSocket(c *gin.Context) {
	userID := auth.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHORIZED", "message": "authentication required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &WSClient{
		conn:      conn,
		send:      make(chan []byte, 256),
		hub:       s.wsHub,
		userID:    userID,
		closeChan: make(chan struct{}),
	}
	s.wsHub.register <- client

	go client.writePump()
	go client.readPump()

	welcome := map[string]interface{}{
		"type":      "CONNECTED",
		"timestamp": time.Now(),
	}
	if data, err := json.Marshal(welcome); err == nil {
		select {
		case client.send <- data:
		default:
		}
	}
}
