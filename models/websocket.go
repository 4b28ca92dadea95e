package models

import (
	"context"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Websocket events sent to a participant's screen.
const (
	EventView          = "view"
	EventSessionClosed = "session_closed"
	EventError         = "error"
)

type WSMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type Client struct {
	Conn *websocket.Conn
	Send chan WSMessage
}

// Hub fans one participant's view updates out to every socket that
// participant has open (a phone and a reconnecting tab, for example).
type Hub struct {
	Clients    map[*Client]bool
	Broadcast  chan WSMessage
	Register   chan *Client
	Unregister chan *Client
	Mutex      sync.Mutex

	last *WSMessage
	done chan struct{}
}

// NewHub initializes and returns a new Hub
func NewHub() *Hub {
	return &Hub{
		Clients:    make(map[*Client]bool),
		Broadcast:  make(chan WSMessage, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns when ctx is cancelled, after
// closing every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.Mutex.Lock()
		for client := range h.Clients {
			close(client.Send)
			delete(h.Clients, client)
		}
		h.Mutex.Unlock()
	}()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.drain()
			return
		case client := <-h.Register:
			h.Mutex.Lock()
			h.Clients[client] = true
			if h.last != nil {
				select {
				case client.Send <- *h.last:
				default:
				}
			}
			h.Mutex.Unlock()
		case client := <-h.Unregister:
			h.Mutex.Lock()
			if _, ok := h.Clients[client]; ok {
				delete(h.Clients, client)
				close(client.Send)
			}
			h.Mutex.Unlock()
		case message := <-h.Broadcast:
			h.Mutex.Lock()
			if message.Event == EventView {
				m := message
				h.last = &m
			}
			for client := range h.Clients {
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(h.Clients, client)
				}
			}
			h.Mutex.Unlock()
		}
	}
}

// drain delivers whatever was queued before shutdown, so the last
// message a screen sees is the one that closed it.
func (h *Hub) drain() {
	h.Mutex.Lock()
	defer h.Mutex.Unlock()
	for {
		select {
		case message := <-h.Broadcast:
			for client := range h.Clients {
				select {
				case client.Send <- message:
				default:
				}
			}
		default:
			return
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Publish queues a message for every registered client. Messages sent
// after the hub stopped are dropped.
func (h *Hub) Publish(msg WSMessage) {
	select {
	case h.Broadcast <- msg:
	case <-h.done:
	}
}

// Join registers a client; it reports false if the hub already stopped.
func (h *Hub) Join(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Leave unregisters a client if the hub is still running.
func (h *Hub) Leave(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// ReadPump drains the socket so close frames are noticed; the screen
// never sends commands over it, those go through the HTTP API.
func (c *Client) ReadPump(h *Hub) {
	defer func() {
		h.Leave(c)
		c.Conn.Close()
	}()
	for {
		_, _, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}
	}
}

// WritePump sends messages from the Send channel to the WebSocket connection
func (c *Client) WritePump() {
	defer func() {
		c.Conn.Close()
	}()
	for message := range c.Send {
		if err := c.Conn.WriteJSON(message); err != nil {
			log.Println("Write error:", err)
			break
		}
	}
}
