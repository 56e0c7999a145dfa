package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"community-chat/internal/identity"
	"community-chat/internal/mocks"
	"community-chat/internal/models"
	"community-chat/internal/repositories"
)

func newTestHandler() (*ChatHandler, *mocks.RoomRepositoryMock, *mocks.MessageRepositoryMock, *mocks.VerifierMock) {
	roomRepo := new(mocks.RoomRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	verifier := new(mocks.VerifierMock)
	h := NewChatHandler(NewHub(time.Minute), roomRepo, messageRepo, verifier, nil, nil, 50)
	return h, roomRepo, messageRepo, verifier
}

func authedConn(userID, username string, moderator bool) *Conn {
	c := newConn(nil)
	c.setIdentity(identity.Identity{UserID: userID, Username: username, Moderator: moderator})
	return c
}

func nextEvent(t *testing.T, c *Conn) map[string]any {
	t.Helper()
	select {
	case payload := <-c.send:
		var event map[string]any
		require.NoError(t, json.Unmarshal(payload, &event))
		return event
	default:
		t.Fatal("expected a queued event")
		return nil
	}
}

func requireNoEvent(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected event queued: %s", payload)
	default:
	}
}

func joinRoomState(h *ChatHandler, roomID string, c *Conn) {
	h.hub.WithRoom(roomID, func() {
		h.hub.Add(roomID, c)
	})
	c.setCurrentRoom(roomID)
}

func TestAuthenticateSuccess(t *testing.T) {
	h, _, _, verifier := newTestHandler()
	c := newConn(nil)

	verifier.On("Verify", "good-token").Return(identity.Identity{UserID: "u1", Username: "alice"}, nil).Once()

	h.dispatch(context.Background(), c, command{Type: cmdAuthenticate, Token: "good-token"})

	event := nextEvent(t, c)
	require.Equal(t, "authenticated", event["type"])
	require.Equal(t, "u1", event["user_id"])
	require.Equal(t, "alice", event["username"])

	ident, ok := c.identity()
	require.True(t, ok)
	require.Equal(t, "alice", ident.Username)
	verifier.AssertExpectations(t)
}

func TestAuthenticateFailure(t *testing.T) {
	h, _, _, verifier := newTestHandler()
	c := newConn(nil)

	verifier.On("Verify", "bad-token").Return(identity.Identity{}, identity.ErrInvalidToken).Once()

	h.dispatch(context.Background(), c, command{Type: cmdAuthenticate, Token: "bad-token"})

	event := nextEvent(t, c)
	require.Equal(t, "auth_error", event["type"])

	_, ok := c.identity()
	require.False(t, ok)
}

func TestUnauthenticatedCommandsRejected(t *testing.T) {
	h, _, _, _ := newTestHandler()
	c := newConn(nil)

	h.dispatch(context.Background(), c, command{Type: cmdMessage, RoomID: "r1", Content: "hi"})

	event := nextEvent(t, c)
	require.Equal(t, "error", event["type"])
	require.Equal(t, "authentication required", event["message"])
}

func TestListRoomsWorksWithoutAuthentication(t *testing.T) {
	h, roomRepo, _, _ := newTestHandler()
	c := newConn(nil)

	roomRepo.On("ListPublicRooms", mock.Anything).Return([]models.Room{
		{ID: "r1", Name: "general"},
	}, nil).Once()

	h.dispatch(context.Background(), c, command{Type: cmdListRooms})

	event := nextEvent(t, c)
	require.Equal(t, "rooms", event["type"])
	rooms := event["rooms"].([]any)
	require.Len(t, rooms, 1)
	roomRepo.AssertExpectations(t)
}

func TestJoinPublicRoomWithEmptyHistory(t *testing.T) {
	h, roomRepo, messageRepo, _ := newTestHandler()
	c := authedConn("u1", "alice", false)

	room := models.Room{ID: "r1", Name: "general"}
	roomRepo.On("ResolveJoinTarget", mock.Anything, "general", "").Return(room, nil).Once()
	messageRepo.On("History", mock.Anything, "r1", 50).Return(nil, nil).Once()

	h.dispatch(context.Background(), c, command{Type: cmdJoinRoom, Identifier: "general"})

	joined := nextEvent(t, c)
	require.Equal(t, "joined", joined["type"])
	require.Equal(t, "r1", joined["room"].(map[string]any)["id"])
	require.NotNil(t, joined["messages"])
	require.Empty(t, joined["messages"])

	presence := nextEvent(t, c)
	require.Equal(t, "presence", presence["type"])
	require.Len(t, presence["users"], 1)

	require.Equal(t, "r1", c.currentRoom())
	require.Equal(t, 1, h.hub.ConnCount("r1"))
}

func TestJoinPrivateRoomRecordsAccess(t *testing.T) {
	h, roomRepo, messageRepo, _ := newTestHandler()
	c := authedConn("u1", "alice", false)

	code := "deadbeef"
	room := models.Room{ID: "r2", Name: "secret", IsPrivate: true, InviteCode: &code}
	roomRepo.On("ResolveJoinTarget", mock.Anything, "deadbeef", "pass1").Return(room, nil).Once()
	roomRepo.On("RecordAccess", mock.Anything, "r2", "u1").Return(nil).Once()
	messageRepo.On("History", mock.Anything, "r2", 50).Return(nil, nil).Once()

	h.dispatch(context.Background(), c, command{Type: cmdJoinRoom, Identifier: "deadbeef", Password: "pass1"})

	joined := nextEvent(t, c)
	require.Equal(t, "joined", joined["type"])
	roomRepo.AssertExpectations(t)
}

func TestJoinUnknownRoomFailsLikeNonexistent(t *testing.T) {
	h, roomRepo, _, _ := newTestHandler()
	c := authedConn("u1", "alice", false)

	// A raw private-room id resolves exactly like a room that does not
	// exist, so the two cases are indistinguishable on the wire.
	roomRepo.On("ResolveJoinTarget", mock.Anything, "private-room-id", "").Return(models.Room{}, repositories.ErrRoomNotFound).Once()

	h.dispatch(context.Background(), c, command{Type: cmdJoinRoom, Identifier: "private-room-id"})

	event := nextEvent(t, c)
	require.Equal(t, "error", event["type"])
	require.Equal(t, "room not found", event["message"])
	require.Empty(t, c.currentRoom())
}

func TestJoinWrongPassword(t *testing.T) {
	h, roomRepo, _, _ := newTestHandler()
	c := authedConn("u1", "alice", false)

	roomRepo.On("ResolveJoinTarget", mock.Anything, "deadbeef", "nope").Return(models.Room{}, repositories.ErrWrongPassword).Once()

	h.dispatch(context.Background(), c, command{Type: cmdJoinRoom, Identifier: "deadbeef", Password: "nope"})

	event := nextEvent(t, c)
	require.Equal(t, "error", event["type"])
	require.Equal(t, "wrong room password", event["message"])
}

func TestSwitchingRoomsLeavesPrevious(t *testing.T) {
	h, roomRepo, messageRepo, _ := newTestHandler()
	c := authedConn("u1", "alice", false)
	joinRoomState(h, "r1", c)

	room := models.Room{ID: "r2", Name: "other"}
	roomRepo.On("ResolveJoinTarget", mock.Anything, "other", "").Return(room, nil).Once()
	messageRepo.On("History", mock.Anything, "r2", 50).Return(nil, nil).Once()

	h.dispatch(context.Background(), c, command{Type: cmdJoinRoom, Identifier: "other"})

	require.Equal(t, "r2", c.currentRoom())
	require.Equal(t, 0, h.hub.ConnCount("r1"))
	require.Equal(t, 1, h.hub.ConnCount("r2"))
}

func TestRejoinCurrentRoomIsIdempotent(t *testing.T) {
	h, roomRepo, messageRepo, _ := newTestHandler()
	c := authedConn("u1", "alice", false)

	room := models.Room{ID: "r1", Name: "general"}
	roomRepo.On("ResolveJoinTarget", mock.Anything, "general", "").Return(room, nil).Twice()
	messageRepo.On("History", mock.Anything, "r1", 50).Return(nil, nil).Twice()

	h.dispatch(context.Background(), c, command{Type: cmdJoinRoom, Identifier: "general"})
	h.dispatch(context.Background(), c, command{Type: cmdJoinRoom, Identifier: "general"})

	require.Equal(t, 1, h.hub.ConnCount("r1"))
	require.Len(t, h.hub.Snapshot("r1"), 1)
}

func TestPostMessageBroadcastsToRoom(t *testing.T) {
	h, _, messageRepo, _ := newTestHandler()
	author := authedConn("u1", "alice", false)
	other := authedConn("u2", "bob", false)
	joinRoomState(h, "r1", author)
	joinRoomState(h, "r1", other)

	msg := models.Message{ID: "m1", RoomID: "r1", AuthorID: "u1", AuthorName: "alice", Content: "hi", CreatedAt: time.Now().UTC()}
	messageRepo.On("Append", mock.Anything, "r1", "u1", "alice", "hi").Return(msg, nil).Once()

	h.dispatch(context.Background(), author, command{Type: cmdMessage, RoomID: "r1", Content: "hi"})

	for _, c := range []*Conn{author, other} {
		event := nextEvent(t, c)
		require.Equal(t, "message", event["type"])
		record := event["message"].(map[string]any)
		require.Equal(t, "r1", record["room_id"])
		require.Equal(t, "hi", record["content"])
		require.Nil(t, record["edited_at"])
		require.Nil(t, record["deleted_at"])
	}
	messageRepo.AssertExpectations(t)
}

func TestPostMessageRequiresJoin(t *testing.T) {
	h, _, _, _ := newTestHandler()
	c := authedConn("u1", "alice", false)

	h.dispatch(context.Background(), c, command{Type: cmdMessage, RoomID: "r1", Content: "hi"})

	event := nextEvent(t, c)
	require.Equal(t, "error", event["type"])
	require.Equal(t, "join the room first", event["message"])
}

func TestEditByNonAuthorFails(t *testing.T) {
	h, _, messageRepo, _ := newTestHandler()
	c := authedConn("u2", "bob", false)

	existing := models.Message{ID: "m1", RoomID: "r1", AuthorID: "u1"}
	messageRepo.On("GetMessage", mock.Anything, "m1").Return(existing, nil).Once()
	messageRepo.On("Edit", mock.Anything, "m1", "u2", "hacked", false).Return(models.Message{}, repositories.ErrNotAuthor).Once()

	h.dispatch(context.Background(), c, command{Type: cmdMessageEdit, MessageID: "m1", Content: "hacked"})

	event := nextEvent(t, c)
	require.Equal(t, "error", event["type"])
	require.Equal(t, "only the author may modify the message", event["message"])
}

func TestEditAfterDeleteReportsNotFound(t *testing.T) {
	h, _, messageRepo, _ := newTestHandler()
	c := authedConn("u1", "alice", false)

	deletedAt := time.Now().UTC()
	existing := models.Message{ID: "m1", RoomID: "r1", AuthorID: "u1", DeletedAt: &deletedAt}
	messageRepo.On("GetMessage", mock.Anything, "m1").Return(existing, nil).Once()
	messageRepo.On("Edit", mock.Anything, "m1", "u1", "again", false).Return(models.Message{}, repositories.ErrMessageDeleted).Once()

	h.dispatch(context.Background(), c, command{Type: cmdMessageEdit, MessageID: "m1", Content: "again"})

	event := nextEvent(t, c)
	require.Equal(t, "error", event["type"])
	require.Equal(t, "message not found", event["message"])
}

func TestEditBroadcastUpdatesAfterOriginal(t *testing.T) {
	h, _, messageRepo, _ := newTestHandler()
	author := authedConn("u1", "alice", false)
	observer := authedConn("u2", "bob", false)
	joinRoomState(h, "r1", author)
	joinRoomState(h, "r1", observer)

	createdAt := time.Now().UTC()
	msg := models.Message{ID: "m1", RoomID: "r1", AuthorID: "u1", AuthorName: "alice", Content: "hi", CreatedAt: createdAt}
	messageRepo.On("Append", mock.Anything, "r1", "u1", "alice", "hi").Return(msg, nil).Once()
	messageRepo.On("GetMessage", mock.Anything, "m1").Return(msg, nil).Once()

	editedAt := createdAt.Add(time.Second)
	edited := msg
	edited.Content = "hi there"
	edited.EditedAt = &editedAt
	messageRepo.On("Edit", mock.Anything, "m1", "u1", "hi there", false).Return(edited, nil).Once()

	h.dispatch(context.Background(), author, command{Type: cmdMessage, RoomID: "r1", Content: "hi"})
	h.dispatch(context.Background(), author, command{Type: cmdMessageEdit, MessageID: "m1", Content: "hi there"})

	// The observer sees the original strictly before the update.
	first := nextEvent(t, observer)
	require.Equal(t, "message", first["type"])
	second := nextEvent(t, observer)
	require.Equal(t, "message_updated", second["type"])
	record := second["message"].(map[string]any)
	require.Equal(t, "hi there", record["content"])
	require.NotNil(t, record["edited_at"])
	require.Equal(t, createdAt.Format(time.RFC3339Nano), record["created_at"])
}

func TestDeleteBroadcastsTombstoneEvent(t *testing.T) {
	h, _, messageRepo, _ := newTestHandler()
	author := authedConn("u1", "alice", false)
	joinRoomState(h, "r1", author)

	existing := models.Message{ID: "m1", RoomID: "r1", AuthorID: "u1", Content: "hi"}
	messageRepo.On("GetMessage", mock.Anything, "m1").Return(existing, nil).Once()

	deletedAt := time.Now().UTC()
	deleted := existing
	deleted.DeletedAt = &deletedAt
	messageRepo.On("SoftDelete", mock.Anything, "m1", "u1", false).Return(deleted, nil).Once()

	h.dispatch(context.Background(), author, command{Type: cmdMessageDelete, MessageID: "m1"})

	event := nextEvent(t, author)
	require.Equal(t, "message_deleted", event["type"])
	require.Equal(t, "m1", event["id"])
	require.Equal(t, "r1", event["room_id"])
	require.NotNil(t, event["deleted_at"])
}

func TestRestoreRequiresModerator(t *testing.T) {
	h, _, _, _ := newTestHandler()
	c := authedConn("u1", "alice", false)

	h.dispatch(context.Background(), c, command{Type: cmdMessageRestore, MessageID: "m1"})

	event := nextEvent(t, c)
	require.Equal(t, "error", event["type"])
	require.Equal(t, "moderator permission required", event["message"])
}

func TestRestoreByModeratorBroadcastsUpdate(t *testing.T) {
	h, _, messageRepo, _ := newTestHandler()
	moderator := authedConn("u9", "mod", true)
	observer := authedConn("u2", "bob", false)
	joinRoomState(h, "r1", observer)

	deletedAt := time.Now().UTC()
	existing := models.Message{ID: "m1", RoomID: "r1", AuthorID: "u1", Content: "hi", DeletedAt: &deletedAt}
	messageRepo.On("GetMessage", mock.Anything, "m1").Return(existing, nil).Once()

	restored := existing
	restored.DeletedAt = nil
	messageRepo.On("Restore", mock.Anything, "m1").Return(restored, nil).Once()

	h.dispatch(context.Background(), moderator, command{Type: cmdMessageRestore, MessageID: "m1"})

	event := nextEvent(t, observer)
	require.Equal(t, "message_updated", event["type"])
	record := event["message"].(map[string]any)
	require.Equal(t, "hi", record["content"])
	require.Nil(t, record["deleted_at"])
}

func TestTypingExcludesSender(t *testing.T) {
	h, _, _, _ := newTestHandler()
	sender := authedConn("u1", "alice", false)
	receiver := authedConn("u2", "bob", false)
	joinRoomState(h, "r1", sender)
	joinRoomState(h, "r1", receiver)

	h.dispatch(context.Background(), sender, command{Type: cmdTyping, RoomID: "r1"})

	event := nextEvent(t, receiver)
	require.Equal(t, "user_typing", event["type"])
	require.Equal(t, "alice", event["username"])
	requireNoEvent(t, sender)
}

func TestPresenceRequestRequiresJoinedRoom(t *testing.T) {
	h, _, _, _ := newTestHandler()
	c := authedConn("u1", "alice", false)

	h.dispatch(context.Background(), c, command{Type: cmdPresenceRequest, RoomID: "r1"})

	event := nextEvent(t, c)
	require.Equal(t, "error", event["type"])
	require.Equal(t, "join the room first", event["message"])
}

func TestPresenceRequestReturnsSnapshot(t *testing.T) {
	h, _, _, _ := newTestHandler()
	c := authedConn("u1", "alice", false)
	joinRoomState(h, "r1", c)

	h.dispatch(context.Background(), c, command{Type: cmdPresenceRequest, RoomID: "r1"})

	event := nextEvent(t, c)
	require.Equal(t, "presence", event["type"])
	require.Equal(t, "r1", event["room_id"])
	require.Len(t, event["users"], 1)
}

func TestLeaveRoomBroadcastsPresenceToRemaining(t *testing.T) {
	h, _, _, _ := newTestHandler()
	leaver := authedConn("u1", "alice", false)
	stayer := authedConn("u2", "bob", false)
	joinRoomState(h, "r1", leaver)
	joinRoomState(h, "r1", stayer)

	h.dispatch(context.Background(), leaver, command{Type: cmdLeaveRoom, RoomID: "r1"})

	require.Empty(t, leaver.currentRoom())
	require.Equal(t, 1, h.hub.ConnCount("r1"))

	event := nextEvent(t, stayer)
	require.Equal(t, "presence", event["type"])
	users := event["users"].([]any)
	require.Len(t, users, 1)
	require.Equal(t, "bob", users[0].(map[string]any)["username"])
}

func TestCreateRoomReturnsInviteToCreatorOnly(t *testing.T) {
	h, roomRepo, _, _ := newTestHandler()
	creator := authedConn("u1", "alice", false)
	bystander := authedConn("u2", "bob", false)
	joinRoomState(h, "r0", bystander)

	code := "cafebabe"
	room := models.Room{ID: "r3", Name: "secret", IsPrivate: true, InviteCode: &code, CreatorID: "u1"}
	roomRepo.On("CreateRoom", mock.Anything, "u1", "secret", true, "pass1").Return(room, nil).Once()

	h.dispatch(context.Background(), creator, command{Type: cmdCreateRoom, Name: "secret", IsPrivate: true, Password: "pass1"})

	event := nextEvent(t, creator)
	require.Equal(t, "room_created", event["type"])
	require.Equal(t, "cafebabe", event["invite_code"])
	require.Equal(t, true, event["room"].(map[string]any)["is_private"])
	requireNoEvent(t, bystander)
}

func TestCreateRoomValidationError(t *testing.T) {
	h, roomRepo, _, _ := newTestHandler()
	c := authedConn("u1", "alice", false)

	roomRepo.On("CreateRoom", mock.Anything, "u1", "bad!!name", false, "").Return(models.Room{}, repositories.ErrBadRoomName).Once()

	h.dispatch(context.Background(), c, command{Type: cmdCreateRoom, Name: "bad!!name"})

	event := nextEvent(t, c)
	require.Equal(t, "error", event["type"])
	require.Contains(t, event["message"], "room name")
}

func TestGetInviteDeniedForNonCreator(t *testing.T) {
	h, roomRepo, _, _ := newTestHandler()
	c := authedConn("u2", "bob", false)

	roomRepo.On("InviteCode", mock.Anything, "r3", "u2").Return("", repositories.ErrNotCreator).Once()

	h.dispatch(context.Background(), c, command{Type: cmdGetInvite, RoomID: "r3"})

	event := nextEvent(t, c)
	require.Equal(t, "error", event["type"])
	require.Equal(t, "only the room creator may manage the invite code", event["message"])
}

func TestUnknownCommand(t *testing.T) {
	h, _, _, _ := newTestHandler()
	c := authedConn("u1", "alice", false)

	h.dispatch(context.Background(), c, command{Type: "bogus"})

	event := nextEvent(t, c)
	require.Equal(t, "error", event["type"])
	require.Equal(t, "unknown command", event["message"])
}
