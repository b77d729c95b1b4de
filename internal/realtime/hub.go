// Package realtime fans row snapshots out to connected chat clients. Every
// successful mutation produces one event; filtering down to what a given
// viewer cares about happens on the client.
package realtime

import (
	"encoding/json"
	"log"

	"github.com/NdodaEnde/Telehealth-sub000/internal/models"
	websocket "github.com/gofiber/contrib/websocket"
)

const (
	TableConversations = "conversations"
	TableMessages      = "messages"

	ChangeInsert = "insert"
	ChangeUpdate = "update"
)

// Event is the wire form of a change notification. Row is the full row
// snapshot at publish time, not a delta.
type Event struct {
	Table string          `json:"table"`
	Type  string          `json:"type"`
	Row   json.RawMessage `json:"row"`
}

type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 32),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			set, ok := h.clients[client.userID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				close(client.send)
			}
			if len(set) == 0 {
				delete(h.clients, client.userID)
			}
		case payload := <-h.broadcast:
			h.deliver(payload)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) deliver(payload []byte) {
	for userID, set := range h.clients {
		for client := range set {
			select {
			case client.send <- payload:
			default:
				delete(set, client)
				close(client.send)
			}
		}
		if len(set) == 0 {
			delete(h.clients, userID)
		}
	}
}

func (h *Hub) publish(table, changeType string, row any) {
	encoded, err := json.Marshal(row)
	if err != nil {
		log.Printf("realtime encode row: %v", err)
		return
	}
	payload, err := json.Marshal(Event{Table: table, Type: changeType, Row: encoded})
	if err != nil {
		log.Printf("realtime encode event: %v", err)
		return
	}
	h.broadcast <- payload
}

func (h *Hub) PublishMessageInsert(message *models.ChatMessage) {
	h.publish(TableMessages, ChangeInsert, message)
}

func (h *Hub) PublishConversationInsert(conversation *models.Conversation) {
	h.publish(TableConversations, ChangeInsert, conversation)
}

func (h *Hub) PublishConversationUpdate(conversation *models.Conversation) {
	h.publish(TableConversations, ChangeUpdate, conversation)
}

// ReadPump keeps the connection alive. The feed is one-way: clients mutate
// through the REST API, so inbound frames other than pings are dropped.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var incoming struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(payload, &incoming); err != nil {
			continue
		}
		if incoming.Type == "ping" {
			pong, err := json.Marshal(map[string]string{"type": "pong"})
			if err != nil {
				continue
			}
			select {
			case c.send <- pong:
			default:
			}
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
