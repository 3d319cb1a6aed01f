package ahrsweb

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

const (
	socketBufferSize  = 1024
	messageBufferSize = 10
)

// Room fans telemetry frames out to every connected analysis client.
type Room struct {
	forward chan []byte
	join    chan *client
	leave   chan *client
	clients map[*client]bool
}

// NewRoom makes a room that is ready to Run.
func NewRoom() *Room {
	return &Room{
		forward: make(chan []byte, messageBufferSize),
		join:    make(chan *client),
		leave:   make(chan *client),
		clients: make(map[*client]bool),
	}
}

// Run services joins, leaves and frame forwarding; call in a goroutine.
func (r *Room) Run() {
	for {
		select {
		case c := <-r.join:
			r.clients[c] = true
			log.Println("AHRSWeb: client joined")
		case c := <-r.leave:
			delete(r.clients, c)
			close(c.send)
			log.Println("AHRSWeb: client left")
		case msg := <-r.forward:
			for c := range r.clients {
				select {
				case c.send <- msg:
				default:
					// Slow client; drop the frame rather than stall
					// the fusion side.
				}
			}
		}
	}
}

// Send queues one telemetry frame for all clients. Never blocks: when the
// room is saturated the frame is dropped.
func (r *Room) Send(d *FusionData) {
	msg, err := json.Marshal(d)
	if err != nil {
		return
	}
	select {
	case r.forward <- msg:
	default:
	}
}

var upgrader = &websocket.Upgrader{
	ReadBufferSize:  socketBufferSize,
	WriteBufferSize: socketBufferSize,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ServeHTTP upgrades an analysis client and joins it to the room.
func (r *Room) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	socket, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("AHRSWeb: upgrade failed: %s\n", err)
		return
	}
	c := &client{
		socket: socket,
		send:   make(chan []byte, messageBufferSize),
		room:   r,
	}
	r.join <- c
	defer func() { r.leave <- c }()
	go c.write()
	c.read()
}
