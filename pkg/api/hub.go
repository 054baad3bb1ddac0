package api

import (
	"log"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/yourusername/quantstream/pkg/model"
	"github.com/yourusername/quantstream/pkg/series"
)

// Message is one frame sent to websocket clients.
type Message struct {
	Type      string `json:"type"` // "seed", "point", "ping"
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

const (
	clientBuffer = 256
	queueSize    = 1024
	pingInterval = 30 * time.Second

	MessageSeed  = "seed"
	MessagePoint = "point"
	MessagePing  = "ping"
)

type event struct {
	seed  *model.SeriesSet
	point *model.PointEvent
	clear bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan *Message
}

// Hub pushes series updates to websocket clients. It is a stream.Sink:
// every event is applied to its store and fanned out from a single loop, so
// a joining client's seed and the points that follow never overlap.
type Hub struct {
	store *series.Store

	events     chan event
	register   chan *wsClient
	unregister chan *wsClient
	stopCh     chan struct{}

	mu      sync.RWMutex
	clients map[*wsClient]bool
	running bool
	dropped int64
}

// NewHub creates a hub that keeps store current.
func NewHub(store *series.Store) *Hub {
	if store == nil {
		store = series.NewStore(0)
	}
	return &Hub{
		store:      store,
		events:     make(chan event, queueSize),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		stopCh:     make(chan struct{}),
		clients:    make(map[*wsClient]bool),
	}
}

// Store returns the series store the hub maintains.
func (h *Hub) Store() *series.Store {
	return h.store
}

// Start starts the hub loop.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.run()
	log.Printf("[WebSocket] Hub started")
}

// Stop stops the hub and closes every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return
	}
	h.running = false
	close(h.stopCh)

	for c := range h.clients {
		c.conn.Close()
	}
	log.Printf("[WebSocket] Hub stopped")
}

// Seeded queues a full series replacement.
func (h *Hub) Seeded(set model.SeriesSet) {
	h.enqueue(event{seed: &set})
}

// Clear queues emptying the store; clients get an empty seed.
func (h *Hub) Clear() {
	h.enqueue(event{clear: true})
}

// Append queues one point.
func (h *Hub) Append(ev model.PointEvent) {
	h.enqueue(event{point: &ev})
}

// enqueue blocks while the loop is behind; the loop itself never waits
// on a client.
func (h *Hub) enqueue(e event) {
	select {
	case h.events <- e:
	case <-h.stopCh:
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many clients were dropped for falling behind.
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

func (h *Hub) run() {
	for {
		select {
		case <-h.stopCh:
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("[WebSocket] Client connected, total: %d", total)

			if h.store.Session() != "" {
				set := h.store.Snapshot(0)
				h.deliver(c, newMessage(MessageSeed, set))
			}

		case c := <-h.unregister:
			h.remove(c)

		case e := <-h.events:
			var msg *Message
			switch {
			case e.clear:
				h.store.Clear()
				msg = newMessage(MessageSeed, h.store.Snapshot(0))
			case e.seed != nil:
				h.store.Seeded(*e.seed)
				msg = newMessage(MessageSeed, *e.seed)
			case e.point != nil:
				stale := e.point.Session != h.store.Session()
				h.store.Append(*e.point) // counts stale appends
				if stale {
					continue
				}
				msg = newMessage(MessagePoint, *e.point)
			}

			h.mu.RLock()
			targets := make([]*wsClient, 0, len(h.clients))
			for c := range h.clients {
				targets = append(targets, c)
			}
			h.mu.RUnlock()
			for _, c := range targets {
				h.deliver(c, msg)
			}
		}
	}
}

// deliver never blocks: a client whose buffer is full is disconnected and
// will get a fresh seed when it reconnects.
func (h *Hub) deliver(c *wsClient, msg *Message) {
	select {
	case c.send <- msg:
	default:
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
		log.Printf("[WebSocket] Client too slow, disconnecting")
		h.remove(c)
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	total := len(h.clients)
	h.mu.Unlock()

	close(c.send)
	c.conn.Close()
	log.Printf("[WebSocket] Client disconnected, total: %d", total)
}

func newMessage(typ string, data any) *Message {
	return &Message{
		Type:      typ,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
}

// HandleWebSocket serves one client connection.
func (h *Hub) HandleWebSocket(ws *websocket.Conn) {
	c := &wsClient{conn: ws, send: make(chan *Message, clientBuffer)}

	select {
	case h.register <- c:
	case <-h.stopCh:
		ws.Close()
		return
	}

	go h.writeLoop(c)

	// Reads only detect the close; clients may send pongs.
	for {
		var msg map[string]any
		if err := websocket.JSON.Receive(ws, &msg); err != nil {
			break
		}
	}

	select {
	case h.unregister <- c:
	case <-h.stopCh:
	}
}

func (h *Hub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := websocket.JSON.Send(c.conn, msg); err != nil {
				c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := websocket.JSON.Send(c.conn, newMessage(MessagePing, nil)); err != nil {
				c.conn.Close()
				return
			}
		case <-h.stopCh:
			return
		}
	}
}
