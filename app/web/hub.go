package web

import (
	"encoding/json"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Event is pushed to UI clients
type Event struct {
	Name    string `json:"name"`
	Payload any    `json:"payload,omitempty"`
}

// Hub is the UI surface of the supervisor. Events go to every connected client; while nobody is
// connected they are kept in a bounded backlog delivered to the next client. A client whose send
// queue is full is disconnected rather than skipping events.
type Hub struct {
	lock       sync.Mutex
	clients    map[string]*client
	backlog    [][]byte
	maxBacklog int
	sendBuf    int
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewHub makes hub keeping up to maxBacklog undelivered events
func NewHub(maxBacklog int) *Hub {
	return &Hub{clients: map[string]*client{}, maxBacklog: maxBacklog, sendBuf: 256}
}

// Send broadcasts named event, implements supervisor.UI
func (h *Hub) Send(name string, payload any) {
	data, err := json.Marshal(Event{Name: name, Payload: payload})
	if err != nil {
		log.Printf("[WARN] can't marshal %s event: %v", name, err)
		return
	}

	h.lock.Lock()
	if len(h.clients) == 0 {
		h.keep(data)
		h.lock.Unlock()
		return
	}
	var slow []*client
	for id, c := range h.clients {
		select {
		case c.send <- data:
		default:
			// a client missing an event is disconnected, it gets the rest from backlog on reconnect
			delete(h.clients, id)
			slow = append(slow, c)
		}
	}
	if len(slow) > 0 && len(h.clients) == 0 {
		h.keep(data)
	}
	h.lock.Unlock()

	for _, c := range slow {
		log.Printf("[WARN] client %s is too slow for %s event, disconnected", c.id, name)
		c.close()
	}
}

// keep appends event to the backlog dropping the oldest one, has to be called under lock
func (h *Hub) keep(data []byte) {
	if h.maxBacklog <= 0 {
		return
	}
	if len(h.backlog) >= h.maxBacklog {
		h.backlog = h.backlog[1:]
	}
	h.backlog = append(h.backlog, data)
}

// Clients returns number of connected clients
func (h *Hub) Clients() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// Backlog returns number of events waiting for a client
func (h *Hub) Backlog() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.backlog)
}

// register adds client and hands it the backlog
func (h *Hub) register(conn *websocket.Conn) *client {
	h.lock.Lock()
	defer h.lock.Unlock()
	size := h.sendBuf
	if len(h.backlog) > size {
		size = len(h.backlog)
	}
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, size)}
	for _, data := range h.backlog {
		c.send <- data
	}
	if len(h.backlog) > 0 {
		log.Printf("[DEBUG] %d backlog events delivered to client %s", len(h.backlog), c.id)
	}
	h.backlog = nil
	h.clients[c.id] = c
	log.Printf("[INFO] ui client %s connected, total %d", c.id, len(h.clients))
	return c
}

func (h *Hub) unregister(c *client) {
	h.lock.Lock()
	_, found := h.clients[c.id]
	delete(h.clients, c.id)
	total := len(h.clients)
	h.lock.Unlock()
	if found {
		c.close()
		log.Printf("[INFO] ui client %s disconnected, remaining %d", c.id, total)
	}
}

// Close disconnects all clients
func (h *Hub) Close() {
	h.lock.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.lock.Unlock()
	for _, c := range clients {
		h.unregister(c)
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// writePump sends queued events until the send channel is closed, then closes the connection
func (c *client) writePump() {
	defer func() { _ = c.conn.Close() }()
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("[DEBUG] write to client %s failed, %v", c.id, err)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}
