package ws

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"community-chat/internal/models"
)

// userPresence tracks the open connections of one user within a room.
// Multiple connections collapse into a single snapshot entry; the most
// recent activity wins.
type userPresence struct {
	username string
	conns    map[string]time.Time
}

// roomState is the live per-room state: joined connections, presence and
// the op lock serializing every mutate-then-fanout sequence for the room.
type roomState struct {
	ops      sync.Mutex
	conns    map[*Conn]bool
	presence map[string]*userPresence
}

// Hub maintains live room membership, presence and broadcast fanout.
// Persistence never sees any of this; it is rebuilt from live connections
// after a restart.
type Hub struct {
	mu        sync.RWMutex
	rooms     map[string]*roomState
	idleAfter time.Duration
}

// NewHub creates an empty hub. idleAfter is the inactivity threshold
// after which a present user is reported idle.
func NewHub(idleAfter time.Duration) *Hub {
	return &Hub{
		rooms:     make(map[string]*roomState),
		idleAfter: idleAfter,
	}
}

// room returns the live state for a room id, creating it on first use.
// Records are retained for the process lifetime so the per-room op lock
// stays valid; empty records only hold two small maps.
func (h *Hub) room(roomID string) *roomState {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomID]
	if !ok {
		r = &roomState{
			conns:    make(map[*Conn]bool),
			presence: make(map[string]*userPresence),
		}
		h.rooms[roomID] = r
	}
	return r
}

// WithRoom runs fn while holding the room's op lock. All mutations of one
// room's membership, presence and message log commit under this lock, so
// readers never observe a half-applied state. No operation ever holds two
// room locks.
func (h *Hub) WithRoom(roomID string, fn func()) {
	r := h.room(roomID)
	r.ops.Lock()
	defer r.ops.Unlock()
	fn()
}

// Add registers a connection as joined. Re-adding an already joined
// connection is a no-op beyond the activity touch.
func (h *Hub) Add(roomID string, c *Conn) {
	ident, ok := c.identity()
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	r, found := h.rooms[roomID]
	if !found {
		return
	}
	r.conns[c] = true
	up, found := r.presence[ident.UserID]
	if !found {
		up = &userPresence{username: ident.Username, conns: make(map[string]time.Time)}
		r.presence[ident.UserID] = up
	}
	up.conns[c.id] = time.Now()
}

// Remove unregisters a connection. The presence entry disappears as soon
// as the user's last connection leaves; there is no grace period.
func (h *Hub) Remove(roomID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, found := h.rooms[roomID]
	if !found {
		return
	}
	delete(r.conns, c)

	ident, ok := c.identity()
	if !ok {
		return
	}
	if up, found := r.presence[ident.UserID]; found {
		delete(up.conns, c.id)
		if len(up.conns) == 0 {
			delete(r.presence, ident.UserID)
		}
	}
}

// Touch refreshes the connection's last-activity timestamp.
func (h *Hub) Touch(roomID string, c *Conn) {
	ident, ok := c.identity()
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	r, found := h.rooms[roomID]
	if !found {
		return
	}
	if up, found := r.presence[ident.UserID]; found {
		up.conns[c.id] = time.Now()
	}
}

// Snapshot returns the presence view of a room: one entry per user with
// an active/idle classification, sorted by username.
func (h *Hub) Snapshot(roomID string) []models.PresenceUser {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := []models.PresenceUser{}
	r, found := h.rooms[roomID]
	if !found {
		return users
	}

	now := time.Now()
	for _, up := range r.presence {
		var latest time.Time
		for _, at := range up.conns {
			if at.After(latest) {
				latest = at
			}
		}
		users = append(users, models.PresenceUser{
			Username: up.username,
			Active:   now.Sub(latest) <= h.idleAfter,
		})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}

// Broadcast fans a frame out to every connection joined to the room,
// except the optional sender. Slow consumers with a full send buffer are
// dropped; their read loop then runs the implicit-leave cleanup.
func (h *Hub) Broadcast(roomID string, payload []byte, except *Conn) {
	h.mu.RLock()
	r, found := h.rooms[roomID]
	var conns []*Conn
	if found {
		conns = make([]*Conn, 0, len(r.conns))
		for conn := range r.conns {
			if conn != except {
				conns = append(conns, conn)
			}
		}
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if !conn.enqueue(payload) {
			logrus.WithFields(logrus.Fields{
				"conn_id": conn.id,
				"room_id": roomID,
			}).Warn("dropping slow websocket consumer")
			conn.close()
		}
	}
}

// ConnCount reports the number of joined connections in a room.
func (h *Hub) ConnCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, found := h.rooms[roomID]; found {
		return len(r.conns)
	}
	return 0
}
