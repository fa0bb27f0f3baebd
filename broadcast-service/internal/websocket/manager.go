package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Manager manages all WebSocket connections
type Manager struct {
	// itemID -> clients watching that item; written only by Run
	subscribers map[string]map[*Client]bool
	mu          sync.RWMutex

	// Channels for managing connections
	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}
}

// Client represents a WebSocket client connection
type Client struct {
	ID     string
	ItemID string
	Conn   *websocket.Conn
	Send   chan []byte
}

// BroadcastMessage represents a message for the clients watching an item,
// or for every client when ItemID is empty
type BroadcastMessage struct {
	ItemID  string
	Payload []byte
}

// NewManager creates a new WebSocket manager
func NewManager() *Manager {
	return &Manager{
		subscribers: make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *BroadcastMessage, 256), // Buffered for high throughput
		done:        make(chan struct{}),
	}
}

// Run starts the manager's main loop
// This should run in a goroutine
func (m *Manager) Run() {
	for {
		select {
		case client := <-m.register:
			m.registerClient(client)

		case client := <-m.unregister:
			m.unregisterClient(client)

		case message := <-m.broadcast:
			if message.ItemID == "" {
				m.broadcastToAll(message.Payload)
			} else {
				m.broadcastToItem(message.ItemID, message.Payload)
			}

		case <-m.done:
			m.closeAll()
			return
		}
	}
}

// Stop disconnects every client and ends Run
func (m *Manager) Stop() {
	close(m.done)
}

// RegisterClient adds a client to the manager
func (m *Manager) RegisterClient(client *Client) {
	select {
	case m.register <- client:
	case <-m.done:
		client.Conn.Close()
	}
}

// UnregisterClient removes a client from the manager
func (m *Manager) UnregisterClient(client *Client) {
	select {
	case m.unregister <- client:
	case <-m.done:
	}
}

// Broadcast sends a message to all clients watching an item
func (m *Manager) Broadcast(itemID string, payload []byte) {
	m.broadcast <- &BroadcastMessage{
		ItemID:  itemID,
		Payload: payload,
	}
}

// BroadcastAll sends a message to every connected client
func (m *Manager) BroadcastAll(payload []byte) {
	m.broadcast <- &BroadcastMessage{Payload: payload}
}

// registerClient adds a client to the subscribers map
func (m *Manager) registerClient(client *Client) {
	m.mu.Lock()
	clients, ok := m.subscribers[client.ItemID]
	if !ok {
		clients = make(map[*Client]bool)
		m.subscribers[client.ItemID] = clients
	}
	clients[client] = true
	m.mu.Unlock()

	fmt.Printf("Client %s subscribed to item %s\n", client.ID, client.ItemID)

	// Start goroutine to handle writes for this client
	go client.writePump()
}

// unregisterClient removes a client and closes its connection. A client is
// dropped at most once, so Send is closed at most once.
func (m *Manager) unregisterClient(client *Client) {
	m.mu.Lock()
	clients, ok := m.subscribers[client.ItemID]
	if !ok || !clients[client] {
		m.mu.Unlock()
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(m.subscribers, client.ItemID)
	}
	m.mu.Unlock()

	close(client.Send)

	fmt.Printf("Client %s unsubscribed from item %s\n", client.ID, client.ItemID)
}

// broadcastToItem sends a message to all clients watching a specific item
func (m *Manager) broadcastToItem(itemID string, payload []byte) {
	m.mu.RLock()
	targets := make([]*Client, 0, len(m.subscribers[itemID]))
	for client := range m.subscribers[itemID] {
		targets = append(targets, client)
	}
	m.mu.RUnlock()

	count := m.deliver(targets, payload)
	if count > 0 {
		fmt.Printf("Broadcasted to %d clients watching item %s\n", count, itemID)
	}
}

// broadcastToAll sends a message to every client
func (m *Manager) broadcastToAll(payload []byte) {
	m.mu.RLock()
	var targets []*Client
	for _, clients := range m.subscribers {
		for client := range clients {
			targets = append(targets, client)
		}
	}
	m.mu.RUnlock()

	count := m.deliver(targets, payload)
	fmt.Printf("Broadcasted to %d clients\n", count)
}

func (m *Manager) deliver(targets []*Client, payload []byte) int {
	count := 0
	for _, client := range targets {
		select {
		case client.Send <- payload:
			count++
		default:
			// Client's send channel is full, disconnect them
			// This prevents one slow client from blocking others
			m.unregisterClient(client)
		}
	}
	return count
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	var all []*Client
	for _, clients := range m.subscribers {
		for client := range clients {
			all = append(all, client)
		}
	}
	m.subscribers = make(map[string]map[*Client]bool)
	m.mu.Unlock()

	for _, client := range all {
		close(client.Send)
	}
}

// GetSubscriberCount returns the number of clients watching an item
func (m *Manager) GetSubscriberCount(itemID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers[itemID])
}

// writePump pumps messages from the Send channel to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Channel closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Send message
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			// Send ping to keep connection alive
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection so pongs and close frames are processed
func (c *Client) readPump(m *Manager) {
	defer m.UnregisterClient(c)

	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				fmt.Printf("WebSocket error: %v\n", err)
			}
			break
		}

		// The feed is one-way; client messages are only logged
		var msg map[string]interface{}
		if err := json.Unmarshal(message, &msg); err == nil {
			fmt.Printf("Client %s sent: %v\n", c.ID, msg)
		}
	}
}

// StartReadPump starts the read pump for this client
func (c *Client) StartReadPump(m *Manager) {
	go c.readPump(m)
}
