package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"community-chat/internal/identity"
)

func joinedTestConn(hub *Hub, roomID, userID, username string) *Conn {
	c := newConn(nil)
	c.setIdentity(identity.Identity{UserID: userID, Username: username})
	hub.WithRoom(roomID, func() {
		hub.Add(roomID, c)
	})
	c.setCurrentRoom(roomID)
	return c
}

func TestHubAddAndRemove(t *testing.T) {
	hub := NewHub(time.Minute)

	c := joinedTestConn(hub, "r1", "u1", "alice")
	require.Equal(t, 1, hub.ConnCount("r1"))

	hub.Remove("r1", c)
	require.Equal(t, 0, hub.ConnCount("r1"))
	require.Empty(t, hub.Snapshot("r1"))
}

func TestHubPresenceCollapsesConnectionsPerUser(t *testing.T) {
	hub := NewHub(time.Minute)

	first := joinedTestConn(hub, "r1", "u1", "alice")
	second := joinedTestConn(hub, "r1", "u1", "alice")
	require.Equal(t, 2, hub.ConnCount("r1"))

	users := hub.Snapshot("r1")
	require.Len(t, users, 1)
	require.Equal(t, "alice", users[0].Username)
	require.True(t, users[0].Active)

	// Dropping one connection keeps the user present through the other.
	hub.Remove("r1", first)
	users = hub.Snapshot("r1")
	require.Len(t, users, 1)

	hub.Remove("r1", second)
	require.Empty(t, hub.Snapshot("r1"))
}

func TestHubSnapshotIdleClassification(t *testing.T) {
	hub := NewHub(20 * time.Millisecond)

	c := joinedTestConn(hub, "r1", "u1", "alice")

	users := hub.Snapshot("r1")
	require.Len(t, users, 1)
	require.True(t, users[0].Active)

	time.Sleep(40 * time.Millisecond)
	users = hub.Snapshot("r1")
	require.Len(t, users, 1)
	require.False(t, users[0].Active, "user should go idle, not disappear")

	hub.Touch("r1", c)
	users = hub.Snapshot("r1")
	require.True(t, users[0].Active)
}

func TestHubSnapshotSortedByUsername(t *testing.T) {
	hub := NewHub(time.Minute)

	joinedTestConn(hub, "r1", "u2", "bob")
	joinedTestConn(hub, "r1", "u1", "alice")

	users := hub.Snapshot("r1")
	require.Len(t, users, 2)
	require.Equal(t, "alice", users[0].Username)
	require.Equal(t, "bob", users[1].Username)
}

func TestHubRoomsAreIndependent(t *testing.T) {
	hub := NewHub(time.Minute)

	joinedTestConn(hub, "r1", "u1", "alice")
	joinedTestConn(hub, "r2", "u2", "bob")

	require.Equal(t, 1, hub.ConnCount("r1"))
	require.Equal(t, 1, hub.ConnCount("r2"))
	require.Len(t, hub.Snapshot("r1"), 1)
	require.Len(t, hub.Snapshot("r2"), 1)
}

func TestHubBroadcastSkipsSender(t *testing.T) {
	hub := NewHub(time.Minute)

	sender := joinedTestConn(hub, "r1", "u1", "alice")
	receiver := joinedTestConn(hub, "r1", "u2", "bob")

	hub.Broadcast("r1", []byte(`{"type":"user_typing"}`), sender)

	select {
	case <-receiver.send:
	default:
		t.Fatal("receiver should have gotten the frame")
	}
	select {
	case <-sender.send:
		t.Fatal("sender should not receive its own typing frame")
	default:
	}
}

func TestHubAddIsIdempotent(t *testing.T) {
	hub := NewHub(time.Minute)

	c := joinedTestConn(hub, "r1", "u1", "alice")
	hub.WithRoom("r1", func() {
		hub.Add("r1", c)
	})

	require.Equal(t, 1, hub.ConnCount("r1"))
	require.Len(t, hub.Snapshot("r1"), 1)
}
