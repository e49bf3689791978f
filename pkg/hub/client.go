package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

// Connection timing. Pings go out more often than the pong deadline.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// Clients only send control frames.
	maxMessageSize = 4 * 1024
)

// Conn is the part of a websocket connection a Client uses. *websocket.Conn
// from gofiber/websocket satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one websocket subscriber of a hub.
type Client struct {
	hub  *Hub
	conn Conn
	send chan Message
}

// NewClient registers a client for conn with hub. If the hub has stopped,
// Run returns as soon as the connection closes.
func NewClient(hub *Hub, conn Conn) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan Message, 64),
	}
	if !hub.join(c) {
		close(c.send)
	}
	return c
}

// Run pumps messages to the connection and blocks until it closes. Call it
// from the websocket handler.
func (c *Client) Run() {
	go c.writeLoop()
	c.readLoop()
}

// readLoop discards incoming data and keeps the read deadline moving on
// pongs. Its exit is how a disconnect is noticed.
func (c *Client) readLoop() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop is the only writer on the connection.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				// The hub dropped us or stopped.
				_ = c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(msg.Type.frame(), msg.Data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(frame int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(frame, data)
}

// frame returns the websocket frame type for t.
func (t MessageType) frame() int {
	if t == BinaryMessage {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
