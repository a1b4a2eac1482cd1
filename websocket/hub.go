package websocket

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Hub manages a set of connections for broadcasting.
//
// Hub is a central registry of upgraded connections with fan-out delivery:
// messages queued via Broadcast are written to every registered client from
// the event loop, and clients whose writes fail are dropped automatically.
//
// Example:
//
//	hub := websocket.NewHub(logger)
//	go hub.Run()
//	defer hub.Close()
//
//	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//	    conn, _ := websocket.Upgrade(w, r, nil)
//	    hub.Register(conn)
//
//	    go func() {
//	        defer hub.Unregister(conn)
//	        for {
//	            _, data, err := conn.Read()
//	            if err != nil {
//	                break
//	            }
//	            hub.Broadcast(websocket.Binary(data))
//	        }
//	    }()
//	})
type Hub struct {
	log *zap.Logger

	// Registered clients.
	clients map[*Conn]bool

	// Event loop channels.
	register   chan *Conn
	unregister chan *Conn
	broadcast  chan Message

	// Lifecycle.
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup

	// Guards clients and closed.
	mu sync.RWMutex
}

// NewHub creates a Hub. logger may be nil. Start the event loop with
// go hub.Run() and stop it with Close.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		log:        logger,
		clients:    make(map[*Conn]bool),
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		broadcast:  make(chan Message, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the Hub's event loop. It blocks until Close is called, so run
// it in its own goroutine.
func (h *Hub) Run() {
	h.wg.Add(1)
	defer h.wg.Done()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client registered", zap.Int("clients", count))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				_ = client.Close()
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client unregistered", zap.Int("clients", count))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				// Fan out per client so one slow connection cannot stall
				// the loop.
				go func(c *Conn, m Message) {
					if err := c.WriteMessage(m); err != nil {
						h.log.Debug("broadcast write failed, dropping client", zap.Error(err))
						h.Unregister(c)
					}
				}(client, msg)
			}
			h.mu.RUnlock()

		case <-h.done:
			return
		}
	}
}

// Register adds an upgraded connection to the Hub. Thread-safe.
func (h *Hub) Register(client *Conn) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	h.mu.RUnlock()

	// The done case covers a Close that lands after the closed check above,
	// when the event loop is no longer receiving.
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client and closes its connection. Thread-safe and
// idempotent per client.
func (h *Hub) Unregister(client *Conn) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	h.mu.RUnlock()

	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues a message for delivery to every registered client.
// Non-blocking; delivery happens in the event loop. Clients whose write
// fails are unregistered.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	h.mu.RUnlock()

	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// BroadcastText broadcasts a text message to all clients.
func (h *Hub) BroadcastText(text string) {
	h.Broadcast(Text(text))
}

// BroadcastJSON marshals v and broadcasts it as a text message.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	h.Broadcast(Message{Type: TextMessage, Data: data})
	return nil
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops the event loop and closes every client connection. Safe to
// call multiple times.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	close(h.done)
	h.wg.Wait()

	h.mu.Lock()
	for client := range h.clients {
		_ = client.Close()
	}
	h.clients = make(map[*Conn]bool)
	h.mu.Unlock()

	// The event channels stay open: late senders select against done rather
	// than racing a close.
	h.log.Debug("hub closed")
	return nil
}
