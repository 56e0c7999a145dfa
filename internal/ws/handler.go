package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"community-chat/internal/identity"
	"community-chat/internal/observability"
	"community-chat/internal/rabbitmq"
	"community-chat/internal/repositories"
	"community-chat/internal/telemetry"
)

const wsEventsRoutingKey = "ws_events.chat"

// ChatHandler owns the chat websocket endpoint: it upgrades connections,
// runs the command protocol and drives the hub.
type ChatHandler struct {
	hub          *Hub
	rooms        repositories.RoomRepository
	messages     repositories.MessageRepository
	verifier     identity.Verifier
	publisher    rabbitmq.Publisher
	audit        *telemetry.AuditEmitter
	historyLimit int
}

// NewChatHandler constructs a ChatHandler.
func NewChatHandler(hub *Hub, rooms repositories.RoomRepository, messages repositories.MessageRepository, verifier identity.Verifier, publisher rabbitmq.Publisher, audit *telemetry.AuditEmitter, historyLimit int) *ChatHandler {
	return &ChatHandler{
		hub:          hub,
		rooms:        rooms,
		messages:     messages,
		verifier:     verifier,
		publisher:    publisher,
		audit:        audit,
		historyLimit: historyLimit,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type connMeta struct {
	ip          string
	deviceID    string
	requestID   string
	traceID     string
	connectedAt time.Time
}

// Handle upgrades the request and starts the connection pumps. The
// connection starts unauthenticated; identity is established by the
// authenticate command, not the handshake.
func (h *ChatHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("community-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	meta := connMeta{
		ip:          observability.IPFromRequest(c.Request),
		deviceID:    observability.DeviceIDFromRequest(c.Request),
		requestID:   observability.RequestIDFromRequest(c.Request),
		traceID:     span.SpanContext().TraceID().String(),
		connectedAt: time.Now(),
	}

	conn := newConn(sock)
	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishLifecycle(context.Background(), conn, meta, "ws_connect", "")

	go conn.writePump()
	go h.readLoop(context.Background(), conn, meta)
}

// readLoop pumps commands off the socket until the transport closes. The
// deferred cleanup is the implicit-leave path: it runs unconditionally on
// transport close, never waiting for a graceful leave command.
func (h *ChatHandler) readLoop(ctx context.Context, c *Conn, meta connMeta) {
	var closeReason string
	defer func() {
		if roomID := c.currentRoom(); roomID != "" {
			h.leaveRoom(c, roomID)
		}
		c.close()
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.publishLifecycle(ctx, c, meta, "ws_disconnect", closeReason)
	}()

	c.sock.SetReadLimit(maxMessageSize)
	_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.sock.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.publishLifecycle(ctx, c, meta, "ws_error", closeReason)
			}
			return
		}

		var cmd command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			c.sendError("malformed command")
			continue
		}
		h.dispatch(ctx, c, cmd)
	}
}

// leaveRoom removes the connection from a room and notifies the remaining
// members with a fresh presence snapshot.
func (h *ChatHandler) leaveRoom(c *Conn, roomID string) {
	h.hub.WithRoom(roomID, func() {
		h.hub.Remove(roomID, c)
		c.setCurrentRoom("")
		h.broadcastPresence(roomID)
	})
}

func (h *ChatHandler) broadcastPresence(roomID string) {
	event := presenceEvent{Type: evtPresence, RoomID: roomID, Users: h.hub.Snapshot(roomID)}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.hub.Broadcast(roomID, payload, nil)
}

func (h *ChatHandler) publishLifecycle(ctx context.Context, c *Conn, meta connMeta, event, reason string) {
	if h.publisher == nil {
		return
	}

	var userID string
	if ident, ok := c.identity(); ok {
		userID = ident.UserID
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     c.id,
			"duration_ms": time.Since(meta.connectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   userID,
			"device_id": meta.deviceID,
			"ip":        meta.ip,
		},
	}

	headers := observability.BuildHeaders(meta.requestID, meta.traceID)
	_ = h.publisher.Publish(ctx, wsEventsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, headers)
}
