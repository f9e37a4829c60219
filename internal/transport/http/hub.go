package http

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// client pairs a websocket connection with a writer goroutine; all
// writes go through the send channel, which both serializes them and
// preserves the order events were emitted in.
type client struct {
	conn *websocket.Conn
	send chan outboundMessage
}

// Hub tracks connections and the match room each belongs to. It
// implements game.Broadcaster.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]struct{}),
	}
}

// Add registers a connection under connID and starts its writer.
func (h *Hub) Add(connID string, conn *websocket.Conn) {
	c := &client{conn: conn, send: make(chan outboundMessage, 32)}
	h.mu.Lock()
	h.clients[connID] = c
	h.mu.Unlock()

	go func() {
		for msg := range c.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write to %s: %v", connID, err)
				return
			}
		}
	}()
}

// Remove drops a connection from its room and stops its writer.
func (h *Hub) Remove(connID string) {
	h.mu.Lock()
	c, ok := h.clients[connID]
	if ok {
		delete(h.clients, connID)
		for code, members := range h.rooms {
			if _, in := members[connID]; in {
				delete(members, connID)
				if len(members) == 0 {
					delete(h.rooms, code)
				}
			}
		}
	}
	h.mu.Unlock()
	if ok {
		close(c.send)
	}
}

// JoinRoom subscribes a connection to a match's event stream.
func (h *Hub) JoinRoom(matchCode, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[matchCode]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[matchCode] = members
	}
	members[connID] = struct{}{}
}

// LeaveRoom unsubscribes a connection without closing it.
func (h *Hub) LeaveRoom(matchCode, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[matchCode]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, matchCode)
	}
}

// Broadcast delivers an event to every member of a match's room.
func (h *Hub) Broadcast(matchCode, event string, payload any) {
	msg := outboundMessage{Type: event, Payload: payload}
	var slow []string
	h.mu.RLock()
	for connID := range h.rooms[matchCode] {
		c, ok := h.clients[connID]
		if !ok {
			continue
		}
		select {
		case c.send <- msg:
		default:
			// A full buffer means the client stopped reading. Dropping a
			// single event would break stream ordering, so drop the client.
			slow = append(slow, connID)
		}
	}
	h.mu.RUnlock()
	for _, connID := range slow {
		log.Printf("ws client %s too slow, disconnecting", connID)
		h.Remove(connID)
	}
}

// Send delivers an event to one connection. The lock is held across
// the channel send; Remove unregisters a client under the write lock
// before closing its channel, so a send through a client found in the
// map can never hit a closed channel.
func (h *Hub) Send(connID, event string, payload any) {
	slow := false
	h.mu.RLock()
	if c, ok := h.clients[connID]; ok {
		select {
		case c.send <- outboundMessage{Type: event, Payload: payload}:
		default:
			slow = true
		}
	}
	h.mu.RUnlock()
	if slow {
		log.Printf("ws client %s too slow, disconnecting", connID)
		h.Remove(connID)
	}
}
