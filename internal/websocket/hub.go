package ledgerws

import (
	"encoding/json"
	"log"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
)

// Hub fans ledger events out to connected trainer dashboards. Events are
// published after a ledger transaction commits, so a connected client can
// drop any cached package view the moment a balance changes.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Event
}

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	trainerID string
	send      chan []byte
}

// Event mirrors one committed ledger mutation. RemainingCredit and
// RemainingSessions carry the post-commit package balances.
type Event struct {
	Type              string `json:"type"`
	TrainerID         string `json:"-"`
	PackageID         int64  `json:"package_id"`
	SessionID         int64  `json:"session_id,omitempty"`
	RemainingCredit   int64  `json:"remaining_credit"`
	RemainingSessions int    `json:"remaining_sessions"`
	Timestamp         string `json:"timestamp"`
}

const (
	EventPackageCreated  = "package_created"
	EventPackageToppedUp = "package_topped_up"
	EventSessionBooked   = "session_scheduled"
	EventSessionDone     = "session_completed"
	EventSessionDropped  = "session_cancelled"
)

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Event, 64),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, trainerID string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		trainerID: trainerID,
		send:      make(chan []byte, 32),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			set, ok := h.clients[client.trainerID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.trainerID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			set, ok := h.clients[client.trainerID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				close(client.send)
			}
			if len(set) == 0 {
				delete(h.clients, client.trainerID)
			}
		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast queues an event for delivery. It never blocks the caller; when
// the queue is full the event is dropped, since the feed is advisory and
// clients can always re-read the package summary.
func (h *Hub) Broadcast(event Event) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	select {
	case h.broadcast <- &event:
	default:
		log.Printf("ledger hub queue full, dropping %s event for package %d", event.Type, event.PackageID)
	}
}

func (h *Hub) deliver(event *Event) {
	encoded, err := json.Marshal(event)
	if err != nil {
		log.Printf("ledger hub encode event: %v", err)
		return
	}

	set, ok := h.clients[event.TrainerID]
	if !ok {
		return
	}

	for client := range set {
		select {
		case client.send <- encoded:
		default:
			delete(set, client)
			close(client.send)
		}
	}
	if len(set) == 0 {
		delete(h.clients, event.TrainerID)
	}
}

// ReadPump drains incoming frames so pings and close frames are handled; the
// feed itself is one-way.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
