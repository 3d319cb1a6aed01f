package main

import (
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// uibroadcaster fans situation JSON out to the panel UI WebSocket
// clients. Sockets that fail a write are dropped from the list.
type uibroadcaster struct {
	sockets   []*websocket.Conn
	socketsMu sync.Mutex
	messages  chan []byte
}

var uiBroadcaster = newUIBroadcaster()

func newUIBroadcaster() *uibroadcaster {
	ret := &uibroadcaster{
		sockets:  make([]*websocket.Conn, 0),
		messages: make(chan []byte, 1024),
	}
	go ret.writer()
	return ret
}

// Send queues a message for all connected clients; drops it when the
// queue is full rather than blocking the sender.
func (u *uibroadcaster) Send(msg []byte) {
	select {
	case u.messages <- msg:
	default:
	}
}

func (u *uibroadcaster) AddSocket(sock *websocket.Conn) {
	u.socketsMu.Lock()
	u.sockets = append(u.sockets, sock)
	u.socketsMu.Unlock()
}

func (u *uibroadcaster) writer() {
	for {
		msg := <-u.messages
		// Send to all, keeping only the writeable sockets.
		p := make([]*websocket.Conn, 0)
		u.socketsMu.Lock()
		for _, sock := range u.sockets {
			err := sock.SetWriteDeadline(time.Now().Add(time.Second))
			_, err2 := sock.Write(msg)
			if err == nil && err2 == nil {
				p = append(p, sock)
			}
		}
		u.sockets = p
		u.socketsMu.Unlock()
	}
}
