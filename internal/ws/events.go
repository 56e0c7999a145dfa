package ws

import (
	"errors"
	"time"

	"community-chat/internal/identity"
	"community-chat/internal/models"
	"community-chat/internal/repositories"
)

// Client-to-server command types.
const (
	cmdAuthenticate       = "authenticate"
	cmdListRooms          = "list_rooms"
	cmdListMyPrivateRooms = "list_my_private_rooms"
	cmdCreateRoom         = "create_room"
	cmdGetInvite          = "get_invite"
	cmdRegenerateInvite   = "regenerate_invite"
	cmdJoinRoom           = "join_room"
	cmdLeaveRoom          = "leave_room"
	cmdPresenceRequest    = "presence_request"
	cmdMessage            = "message"
	cmdMessageEdit        = "message_edit"
	cmdMessageDelete      = "message_delete"
	cmdMessageRestore     = "message_restore"
	cmdTyping             = "typing"
)

// Server-to-client event types.
const (
	evtAuthenticated  = "authenticated"
	evtAuthError      = "auth_error"
	evtRooms          = "rooms"
	evtMyPrivateRooms = "my_private_rooms"
	evtRoomCreated    = "room_created"
	evtInvite         = "invite"
	evtJoined         = "joined"
	evtPresence       = "presence"
	evtMessage        = "message"
	evtMessageUpdated = "message_updated"
	evtMessageDeleted = "message_deleted"
	evtUserTyping     = "user_typing"
	evtError          = "error"
)

// command is the single inbound frame shape; fields are populated per
// command type.
type command struct {
	Type       string `json:"type"`
	Token      string `json:"token"`
	Name       string `json:"name"`
	IsPrivate  bool   `json:"is_private"`
	Password   string `json:"password"`
	Identifier string `json:"identifier"`
	RoomID     string `json:"room_id"`
	MessageID  string `json:"message_id"`
	Content    string `json:"content"`
}

type authenticatedEvent struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type roomsEvent struct {
	Type  string               `json:"type"`
	Rooms []models.RoomSummary `json:"rooms"`
}

type roomCreatedEvent struct {
	Type       string             `json:"type"`
	Room       models.RoomSummary `json:"room"`
	InviteCode string             `json:"invite_code,omitempty"`
}

type inviteEvent struct {
	Type       string `json:"type"`
	RoomID     string `json:"room_id"`
	InviteCode string `json:"invite_code"`
}

type joinedEvent struct {
	Type     string             `json:"type"`
	Room     models.RoomSummary `json:"room"`
	Messages []models.Message   `json:"messages"`
}

type presenceEvent struct {
	Type   string                `json:"type"`
	RoomID string                `json:"room_id"`
	Users  []models.PresenceUser `json:"users"`
}

type messageEvent struct {
	Type    string         `json:"type"`
	Message models.Message `json:"message"`
}

type messageDeletedEvent struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

type typingEvent struct {
	Type     string `json:"type"`
	RoomID   string `json:"room_id"`
	Username string `json:"username"`
}

var (
	errNotAuthenticated = errors.New("authentication required")
	errNotJoined        = errors.New("join the room first")
	errModeratorOnly    = errors.New("moderator permission required")
	errUnknownCommand   = errors.New("unknown command")
)

// userFacingError maps internal errors to messages safe for the error
// event. Soft-deleted messages are reported exactly like missing ones,
// and unexpected failures never leak detail.
func userFacingError(err error) string {
	switch {
	case errors.Is(err, repositories.ErrMessageDeleted):
		return repositories.ErrMessageNotFound.Error()
	case errors.Is(err, repositories.ErrBadRoomName),
		errors.Is(err, repositories.ErrBadPassword),
		errors.Is(err, repositories.ErrEmptyContent),
		errors.Is(err, repositories.ErrContentTooLong),
		errors.Is(err, repositories.ErrWrongPassword),
		errors.Is(err, repositories.ErrNotCreator),
		errors.Is(err, repositories.ErrNotAuthor),
		errors.Is(err, repositories.ErrRoomNotFound),
		errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, identity.ErrInvalidToken),
		errors.Is(err, errNotAuthenticated),
		errors.Is(err, errNotJoined),
		errors.Is(err, errModeratorOnly),
		errors.Is(err, errUnknownCommand):
		return err.Error()
	default:
		return "internal error"
	}
}
