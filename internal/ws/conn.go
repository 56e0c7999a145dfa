package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"community-chat/internal/identity"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

type connState int

const (
	stateConnected connState = iota
	stateAuthFailed
	stateAuthenticated
)

// Conn is one client websocket connection. It moves through
// Connected -> Authenticated (or AuthFailed) and holds at most one joined
// room at a time; currentRoomID transitions only under the room op lock.
type Conn struct {
	id   string
	sock *websocket.Conn
	send chan []byte
	log  *logrus.Entry

	mu            sync.Mutex
	closed        bool
	state         connState
	ident         identity.Identity
	currentRoomID string
}

func newConn(sock *websocket.Conn) *Conn {
	id := newConnID()
	return &Conn{
		id:   id,
		sock: sock,
		send: make(chan []byte, sendBufferSize),
		log:  logrus.WithField("conn_id", id),
	}
}

// identity returns the bound identity; ok is false until authentication
// succeeded.
func (c *Conn) identity() (identity.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ident, c.state == stateAuthenticated
}

func (c *Conn) setIdentity(ident identity.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = stateAuthenticated
	c.ident = ident
}

// setAuthFailed enters the sub-state that still serves the public room
// list but rejects everything else.
func (c *Conn) setAuthFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = stateAuthFailed
	c.ident = identity.Identity{}
}

func (c *Conn) currentRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentRoomID
}

func (c *Conn) setCurrentRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentRoomID = roomID
}

// enqueue hands a frame to the write pump without blocking. It returns
// false when the connection is closed or its buffer is full.
func (c *Conn) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Conn) sendEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		c.log.WithError(err).Error("marshal event")
		return
	}
	if !c.enqueue(payload) {
		c.log.Warn("send buffer full, dropping connection")
		c.close()
	}
}

func (c *Conn) sendError(message string) {
	c.sendEvent(errorEvent{Type: evtError, Message: message})
}

// close shuts the send channel exactly once and closes the socket, which
// unblocks the read loop.
func (c *Conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	if c.sock != nil {
		_ = c.sock.Close()
	}
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if c.sock != nil {
			_ = c.sock.Close()
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.sock.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
