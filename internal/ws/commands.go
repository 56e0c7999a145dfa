package ws

import (
	"context"
	"encoding/json"

	"community-chat/internal/identity"
	"community-chat/internal/models"
	"community-chat/internal/observability"
)

// dispatch routes one inbound command. Before authentication only
// authenticate and the public room list are served; everything else is
// rejected with an error event.
func (h *ChatHandler) dispatch(ctx context.Context, c *Conn, cmd command) {
	var err error
	switch cmd.Type {
	case cmdAuthenticate:
		err = h.authenticate(ctx, c, cmd)
	case cmdListRooms:
		err = h.listRooms(ctx, c)
	default:
		ident, ok := c.identity()
		if !ok {
			c.sendError(errNotAuthenticated.Error())
			observability.IncChatCommand(cmd.Type, "unauthenticated")
			return
		}
		err = h.dispatchAuthenticated(ctx, c, ident, cmd)
	}

	if err != nil {
		c.sendError(userFacingError(err))
		observability.IncChatCommand(cmd.Type, "error")
		return
	}
	observability.IncChatCommand(cmd.Type, "ok")
}

func (h *ChatHandler) dispatchAuthenticated(ctx context.Context, c *Conn, ident identity.Identity, cmd command) error {
	switch cmd.Type {
	case cmdListMyPrivateRooms:
		return h.listMyPrivateRooms(ctx, c, ident)
	case cmdCreateRoom:
		return h.createRoom(ctx, c, ident, cmd)
	case cmdGetInvite:
		return h.getInvite(ctx, c, ident, cmd)
	case cmdRegenerateInvite:
		return h.regenerateInvite(ctx, c, ident, cmd)
	case cmdJoinRoom:
		return h.joinRoom(ctx, c, ident, cmd)
	case cmdLeaveRoom:
		if roomID := c.currentRoom(); roomID != "" {
			h.leaveRoom(c, roomID)
		}
		return nil
	case cmdPresenceRequest:
		return h.presenceRequest(c, cmd)
	case cmdMessage:
		return h.postMessage(ctx, c, ident, cmd)
	case cmdMessageEdit:
		return h.editMessage(ctx, c, ident, cmd)
	case cmdMessageDelete:
		return h.deleteMessage(ctx, c, ident, cmd)
	case cmdMessageRestore:
		return h.restoreMessage(ctx, c, ident, cmd)
	case cmdTyping:
		return h.typing(c, ident, cmd)
	default:
		return errUnknownCommand
	}
}

// authenticate binds the connection to a user via the identity gate.
// Failures enter the AuthFailed sub-state and report auth_error rather
// than the generic error event.
func (h *ChatHandler) authenticate(_ context.Context, c *Conn, cmd command) error {
	ident, err := h.verifier.Verify(cmd.Token)
	if err != nil {
		c.setAuthFailed()
		c.sendEvent(errorEvent{Type: evtAuthError, Message: identity.ErrInvalidToken.Error()})
		return nil
	}

	c.setIdentity(ident)
	c.log = c.log.WithField("user_id", ident.UserID)
	c.sendEvent(authenticatedEvent{Type: evtAuthenticated, UserID: ident.UserID, Username: ident.Username})
	return nil
}

// listRooms serves the public room list. Allowed before authentication.
func (h *ChatHandler) listRooms(ctx context.Context, c *Conn) error {
	rooms, err := h.rooms.ListPublicRooms(ctx)
	if err != nil {
		return err
	}
	c.sendEvent(roomsEvent{Type: evtRooms, Rooms: summaries(rooms)})
	return nil
}

func (h *ChatHandler) listMyPrivateRooms(ctx context.Context, c *Conn, ident identity.Identity) error {
	rooms, err := h.rooms.ListPrivateRoomsForUser(ctx, ident.UserID)
	if err != nil {
		return err
	}
	c.sendEvent(roomsEvent{Type: evtMyPrivateRooms, Rooms: summaries(rooms)})
	return nil
}

// createRoom validates and creates a room. The invite code of a private
// room is returned to the creator only, never broadcast.
func (h *ChatHandler) createRoom(ctx context.Context, c *Conn, ident identity.Identity, cmd command) error {
	room, err := h.rooms.CreateRoom(ctx, ident.UserID, cmd.Name, cmd.IsPrivate, cmd.Password)
	if err != nil {
		return err
	}

	event := roomCreatedEvent{Type: evtRoomCreated, Room: room.Summary()}
	if room.InviteCode != nil {
		event.InviteCode = *room.InviteCode
	}
	c.sendEvent(event)
	h.emitAudit(ctx, ident, "INFO", "room created: "+room.ID)
	return nil
}

func (h *ChatHandler) getInvite(ctx context.Context, c *Conn, ident identity.Identity, cmd command) error {
	code, err := h.rooms.InviteCode(ctx, cmd.RoomID, ident.UserID)
	if err != nil {
		return err
	}
	c.sendEvent(inviteEvent{Type: evtInvite, RoomID: cmd.RoomID, InviteCode: code})
	return nil
}

// regenerateInvite atomically replaces the invite code, invalidating the
// previous one for all future joins.
func (h *ChatHandler) regenerateInvite(ctx context.Context, c *Conn, ident identity.Identity, cmd command) error {
	code, err := h.rooms.RegenerateInviteCode(ctx, cmd.RoomID, ident.UserID)
	if err != nil {
		return err
	}
	c.sendEvent(inviteEvent{Type: evtInvite, RoomID: cmd.RoomID, InviteCode: code})
	h.emitAudit(ctx, ident, "INFO", "invite code regenerated: "+cmd.RoomID)
	return nil
}

// joinRoom resolves the identifier, switches rooms (implicit leave of the
// previous one) and replays recent history to this connection only.
// Rejoining the current room is an idempotent refresh.
func (h *ChatHandler) joinRoom(ctx context.Context, c *Conn, ident identity.Identity, cmd command) error {
	room, err := h.rooms.ResolveJoinTarget(ctx, cmd.Identifier, cmd.Password)
	if err != nil {
		return err
	}

	if prev := c.currentRoom(); prev != "" && prev != room.ID {
		h.leaveRoom(c, prev)
	}

	var out error
	h.hub.WithRoom(room.ID, func() {
		if room.IsPrivate {
			if err := h.rooms.RecordAccess(ctx, room.ID, ident.UserID); err != nil {
				out = err
				return
			}
		}

		msgs, err := h.messages.History(ctx, room.ID, h.historyLimit)
		if err != nil {
			out = err
			return
		}
		if msgs == nil {
			msgs = []models.Message{}
		}

		h.hub.Add(room.ID, c)
		c.setCurrentRoom(room.ID)
		c.sendEvent(joinedEvent{Type: evtJoined, Room: room.Summary(), Messages: msgs})
		h.broadcastPresence(room.ID)
	})
	return out
}

// presenceRequest doubles as the client's periodic activity ping.
func (h *ChatHandler) presenceRequest(c *Conn, cmd command) error {
	roomID := cmd.RoomID
	if roomID == "" {
		roomID = c.currentRoom()
	}
	if roomID == "" || roomID != c.currentRoom() {
		return errNotJoined
	}

	h.hub.Touch(roomID, c)
	c.sendEvent(presenceEvent{Type: evtPresence, RoomID: roomID, Users: h.hub.Snapshot(roomID)})
	return nil
}

// postMessage appends to the room log and fans the new message out to
// everyone present. Commit and fanout run under the room op lock so
// observers see messages in log order.
func (h *ChatHandler) postMessage(ctx context.Context, c *Conn, ident identity.Identity, cmd command) error {
	roomID := cmd.RoomID
	if roomID == "" {
		roomID = c.currentRoom()
	}
	if roomID == "" || roomID != c.currentRoom() {
		return errNotJoined
	}

	var out error
	h.hub.WithRoom(roomID, func() {
		msg, err := h.messages.Append(ctx, roomID, ident.UserID, ident.Username, cmd.Content)
		if err != nil {
			out = err
			return
		}
		h.hub.Touch(roomID, c)
		h.broadcastMessage(evtMessage, msg)
	})
	return out
}

func (h *ChatHandler) editMessage(ctx context.Context, c *Conn, ident identity.Identity, cmd command) error {
	existing, err := h.messages.GetMessage(ctx, cmd.MessageID)
	if err != nil {
		return err
	}

	var out error
	h.hub.WithRoom(existing.RoomID, func() {
		msg, err := h.messages.Edit(ctx, cmd.MessageID, ident.UserID, cmd.Content, ident.Moderator)
		if err != nil {
			out = err
			return
		}
		h.broadcastMessage(evtMessageUpdated, msg)
	})
	return out
}

func (h *ChatHandler) deleteMessage(ctx context.Context, c *Conn, ident identity.Identity, cmd command) error {
	existing, err := h.messages.GetMessage(ctx, cmd.MessageID)
	if err != nil {
		return err
	}

	var out error
	h.hub.WithRoom(existing.RoomID, func() {
		msg, err := h.messages.SoftDelete(ctx, cmd.MessageID, ident.UserID, ident.Moderator)
		if err != nil {
			out = err
			return
		}
		event := messageDeletedEvent{Type: evtMessageDeleted, ID: msg.ID, RoomID: msg.RoomID, DeletedAt: *msg.DeletedAt}
		payload, err := json.Marshal(event)
		if err != nil {
			out = err
			return
		}
		h.hub.Broadcast(msg.RoomID, payload, nil)
	})
	if out == nil {
		h.emitAudit(ctx, ident, "INFO", "message deleted: "+cmd.MessageID)
	}
	return out
}

// restoreMessage reverses a soft delete. Moderation permission only.
func (h *ChatHandler) restoreMessage(ctx context.Context, c *Conn, ident identity.Identity, cmd command) error {
	if !ident.Moderator {
		return errModeratorOnly
	}

	existing, err := h.messages.GetMessage(ctx, cmd.MessageID)
	if err != nil {
		return err
	}

	var out error
	h.hub.WithRoom(existing.RoomID, func() {
		msg, err := h.messages.Restore(ctx, cmd.MessageID)
		if err != nil {
			out = err
			return
		}
		h.broadcastMessage(evtMessageUpdated, msg)
	})
	if out == nil {
		h.emitAudit(ctx, ident, "INFO", "message restored: "+cmd.MessageID)
	}
	return out
}

// typing relays a typing notification to everyone else in the room. It is
// never persisted.
func (h *ChatHandler) typing(c *Conn, ident identity.Identity, cmd command) error {
	roomID := cmd.RoomID
	if roomID == "" {
		roomID = c.currentRoom()
	}
	if roomID == "" || roomID != c.currentRoom() {
		return errNotJoined
	}

	event := typingEvent{Type: evtUserTyping, RoomID: roomID, Username: ident.Username}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.hub.Broadcast(roomID, payload, c)
	return nil
}

func (h *ChatHandler) broadcastMessage(eventType string, msg models.Message) {
	event := messageEvent{Type: eventType, Message: msg.Tombstoned()}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.hub.Broadcast(msg.RoomID, payload, nil)
}

func (h *ChatHandler) emitAudit(ctx context.Context, ident identity.Identity, level, text string) {
	if h.audit == nil {
		return
	}
	userID := ident.UserID
	h.audit.Emit(ctx, level, text, "", &userID)
}

func summaries(rooms []models.Room) []models.RoomSummary {
	out := make([]models.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, room.Summary())
	}
	return out
}
