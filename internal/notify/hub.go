// Package notify pushes student notifications over websockets.
package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Message is delivered to a single student.
type Message struct {
	StudentID uint   `json:"student_id"`
	Content   string `json:"content"`
}

// Client is one open socket. A student holds at most one.
type Client struct {
	StudentID uint
	Conn      *websocket.Conn
	Send      chan Message
}

// Hub routes messages to connected students.
type Hub struct {
	clients    map[uint]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uint]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, 64),
		done:       make(chan struct{}),
	}
}

// Run owns the client table until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				close(c.Send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[c.StudentID]; ok {
				close(old.Send)
			}
			h.clients[c.StudentID] = c
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[c.StudentID]; ok && current == c {
				delete(h.clients, c.StudentID)
				close(c.Send)
			}
			h.mu.Unlock()
		case m := <-h.broadcast:
			h.mu.Lock()
			if c, ok := h.clients[m.StudentID]; ok {
				select {
				case c.Send <- m:
				default:
					close(c.Send)
					delete(h.clients, c.StudentID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues content for studentID. It never blocks; messages are
// dropped when the queue is full since the row is already persisted.
func (h *Hub) Publish(studentID uint, content string) {
	select {
	case h.broadcast <- Message{StudentID: studentID, Content: content}:
	default:
		slog.Warn("notification push dropped", "student_id", studentID)
	}
}

// Connected reports whether studentID has an open socket.
func (h *Hub) Connected(studentID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[studentID]
	return ok
}

// Serve upgrades the request and attaches the socket to studentID.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, studentID uint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	c := &Client{StudentID: studentID, Conn: conn, Send: make(chan Message, 16)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// readPump only watches for the peer going away.
func (h *Hub) readPump(c *Client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(512)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case m, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(m); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
