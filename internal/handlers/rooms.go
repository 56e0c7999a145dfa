package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"community-chat/internal/middleware"
	"community-chat/internal/models"
	"community-chat/internal/repositories"
	"community-chat/internal/telemetry"
)

// RoomHandler serves the REST read surface of the chat subsystem. All
// writes go through the websocket protocol.
type RoomHandler struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	audit    *telemetry.AuditEmitter
}

// NewRoomHandler constructs a RoomHandler.
func NewRoomHandler(rooms repositories.RoomRepository, messages repositories.MessageRepository, audit *telemetry.AuditEmitter) *RoomHandler {
	return &RoomHandler{rooms: rooms, messages: messages, audit: audit}
}

// ListPublicRooms handles GET /rooms. No authentication required.
func (h *RoomHandler) ListPublicRooms(c *gin.Context) {
	rooms, err := h.rooms.ListPublicRooms(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rooms"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": roomSummaries(rooms)})
}

// ListMyPrivateRooms handles GET /rooms/mine: private rooms the caller
// created or has previously joined.
func (h *RoomHandler) ListMyPrivateRooms(c *gin.Context) {
	ident, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	rooms, err := h.rooms.ListPrivateRoomsForUser(c.Request.Context(), ident.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rooms"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": roomSummaries(rooms)})
}

// GetRoomHistory handles GET /rooms/:room_id/messages. Private rooms are
// reported as not found to callers without recorded access, matching the
// join path.
func (h *RoomHandler) GetRoomHistory(c *gin.Context) {
	ident, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	roomID := c.Param("room_id")
	allowed, err := h.rooms.HasAccess(c.Request.Context(), roomID, ident.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "access check failed"})
		return
	}
	if !allowed {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	msgs, err := h.messages.History(c.Request.Context(), roomID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *RoomHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

func roomSummaries(rooms []models.Room) []models.RoomSummary {
	out := make([]models.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, room.Summary())
	}
	return out
}
