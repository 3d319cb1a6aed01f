package ahrsweb

import (
	"github.com/gorilla/websocket"
)

// client is one joined analysis connection.
type client struct {
	socket *websocket.Conn
	send   chan []byte
	room   *Room
}

// read drains (and discards) client messages until the socket closes;
// the analysis stream is one-way.
func (c *client) read() {
	defer c.socket.Close()
	for {
		if _, _, err := c.socket.ReadMessage(); err != nil {
			return
		}
	}
}

// write pushes queued frames to the client until the send channel closes.
func (c *client) write() {
	defer c.socket.Close()
	for msg := range c.send {
		if err := c.socket.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
