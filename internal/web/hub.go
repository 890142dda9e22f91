package web

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sagarmv/wildtrail/internal/indexer"
)

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans indexing progress events out to connected websocket clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan indexer.Event
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a progress hub. Call Run in a goroutine.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan indexer.Event, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until Shutdown.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				c.conn.Close()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case ev := <-h.broadcast:
			data, err := json.Marshal(ev)
			if err != nil {
				log.Printf("Failed to marshal progress event: %v", err)
				continue
			}

			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					// Slow client; drop the event rather than block
					// the pipeline.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast publishes a progress event to every connected client.
// It is safe to use as an indexer.ProgressFunc.
func (h *Hub) Broadcast(ev indexer.Event) {
	select {
	case h.broadcast <- ev:
	case <-h.done:
	}
}

// Shutdown closes every client connection and stops the hub.
func (h *Hub) Shutdown() {
	close(h.done)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, 256)}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

func (c *client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
