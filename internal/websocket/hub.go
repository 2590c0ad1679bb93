package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gitflash/interviewd/internal/models"
)

// Client is one hosting-view connection on the event socket.
type Client struct {
	ID     uuid.UUID
	ViewID uuid.UUID
	UserID string
	Conn   *websocket.Conn
	Hub    *Hub
	Send   chan interface{}
	Done   chan struct{}

	closeOnce sync.Once
}

func NewClient(viewID uuid.UUID, userID string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:     uuid.New(),
		ViewID: viewID,
		UserID: userID,
		Conn:   conn,
		Hub:    hub,
		Send:   make(chan interface{}, 256),
		Done:   make(chan struct{}),
	}
}

// Hub fans session events out to the connections of each view.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[uuid.UUID]*Room
	pending map[string]chan AutoJoinResultPayload
	log     zerolog.Logger
}

// Room is the set of connections watching one view.
type Room struct {
	ViewID  uuid.UUID
	clients map[uuid.UUID]*Client
	mu      sync.RWMutex
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		rooms:   make(map[uuid.UUID]*Room),
		pending: make(map[string]chan AutoJoinResultPayload),
		log:     log.With().Str("component", "hub").Logger(),
	}
}

func (h *Hub) AddClient(client *Client) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, exists := h.rooms[client.ViewID]
	if !exists {
		room = &Room{ViewID: client.ViewID, clients: make(map[uuid.UUID]*Client)}
		h.rooms[client.ViewID] = room
	}

	room.mu.Lock()
	room.clients[client.ID] = client
	room.mu.Unlock()

	h.log.Debug().Str("view_id", client.ViewID.String()).Str("client_id", client.ID.String()).Msg("client joined")
	return room
}

func (h *Hub) GetRoom(viewID uuid.UUID) *Room {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.rooms[viewID]
}

// RemoveClient drops a client and its room once the room is empty.
func (h *Hub) RemoveClient(viewID, clientID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, exists := h.rooms[viewID]
	if !exists {
		return
	}

	room.mu.Lock()
	delete(room.clients, clientID)
	empty := len(room.clients) == 0
	room.mu.Unlock()

	if empty {
		delete(h.rooms, viewID)
	}
}

// CloseRoom disconnects every client of a view.
func (h *Hub) CloseRoom(viewID uuid.UUID) {
	h.mu.Lock()
	room := h.rooms[viewID]
	delete(h.rooms, viewID)
	h.mu.Unlock()

	if room != nil {
		room.Close()
	}
}

// Publish implements the session notifier: the event goes to every
// connection of its view. Views without connections drop it.
func (h *Hub) Publish(event models.SessionEvent) {
	room := h.GetRoom(event.ViewID)
	if room == nil {
		return
	}

	msg, err := NewMessage(TypeEvent, event)
	if err != nil {
		h.log.Error().Err(err).Str("event", string(event.Type)).Msg("failed to encode event")
		return
	}
	room.Broadcast(msg)
}

// Broadcast sends a message to every client without blocking on slow ones.
func (r *Room) Broadcast(message interface{}) {
	for _, c := range r.Clients() {
		c.Deliver(message)
	}
}

func (r *Room) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}

func (r *Room) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *Room) Close() {
	for _, c := range r.Clients() {
		c.Close()
	}
}

// Deliver queues a message unless the client is gone or its buffer is full.
func (c *Client) Deliver(message interface{}) bool {
	select {
	case <-c.Done:
		return false
	default:
	}

	select {
	case c.Send <- message:
		return true
	default:
		return false
	}
}

// Close is idempotent. Send is never closed so late Deliver calls are safe;
// the write pump exits on Done instead.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.Done)
		if c.Conn != nil {
			c.Conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			c.Conn.Close()
		}
	})
}

// IsConnected checks if client is still connected
func (c *Client) IsConnected() bool {
	select {
	case <-c.Done:
		return false
	default:
		return true
	}
}
