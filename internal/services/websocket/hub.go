package websocket

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"gatekeeper/internal/logger"
	"gatekeeper/internal/models"
)

// Hub fans authorization decisions out to connected monitor clients.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	stop       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
}

// NewHub creates a hub; call Run in its own goroutine.
func NewHub(logger *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		stop:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			h.logger.Info("monitor connected. Total: %d", h.clientCount())

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mutex.Unlock()
			h.logger.Info("monitor disconnected. Total: %d", h.clientCount())

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Error("error sending to monitor: %v", err)
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()

		case <-h.stop:
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return
		}
	}
}

// Register adds a monitor connection.
func (h *Hub) Register(client *websocket.Conn) {
	h.register <- client
}

// Unregister removes a monitor connection.
func (h *Hub) Unregister(client *websocket.Conn) {
	h.unregister <- client
}

// Publish broadcasts a decision to all monitors. Non-blocking; if the hub
// cannot keep up the decision is dropped, the gate loop is never delayed by
// slow monitors.
func (h *Hub) Publish(decision models.Decision) {
	payload, err := json.Marshal(decision)
	if err != nil {
		h.logger.Error("failed to encode decision event: %v", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warning("decision broadcast dropped, hub backlog full")
	}
}

// Stop closes all monitor connections and ends Run.
func (h *Hub) Stop() {
	close(h.stop)
}

func (h *Hub) clientCount() int {
	return len(h.clients)
}
