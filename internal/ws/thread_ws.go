package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-sync/internal/chat"
	"chat-sync/internal/format"
	"chat-sync/internal/middleware"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/realtime"
	"chat-sync/internal/repositories"
	"chat-sync/internal/telemetry"
)

// ThreadSessionHandler runs one synchronized conversation view per websocket
// connection: bulk load, read marking, optimistic sends and realtime merge,
// with every state change pushed to the client as date-grouped sections.
type ThreadSessionHandler struct {
	messageRepo   repositories.MessageRepository
	channel       realtime.Channel
	broker        *realtime.Broker
	emitter       *telemetry.Emitter
	echoTolerance time.Duration
}

// NewThreadSessionHandler constructs a ThreadSessionHandler.
func NewThreadSessionHandler(messageRepo repositories.MessageRepository, channel realtime.Channel, broker *realtime.Broker, emitter *telemetry.Emitter, echoTolerance time.Duration) *ThreadSessionHandler {
	return &ThreadSessionHandler{
		messageRepo:   messageRepo,
		channel:       channel,
		broker:        broker,
		emitter:       emitter,
		echoTolerance: echoTolerance,
	}
}

// threadCommand is a client-to-server frame on a thread session.
type threadCommand struct {
	Type    string `json:"type"` // "send" | "mark_read"
	Content string `json:"content,omitempty"`
}

// threadPush is a server-to-client frame on a thread session.
type threadPush struct {
	Type     string           `json:"type"` // "thread" | "send_failed" | "notice"
	Sections []format.Section `json:"sections,omitempty"`
	Error    string           `json:"error,omitempty"`
	Notice   string           `json:"notice,omitempty"`
}

// Handle upgrades the connection and drives the session until the client
// disconnects.
func (h *ThreadSessionHandler) Handle(c *gin.Context) {
	counterpartID := c.Param("counterpart_id")
	userID := c.GetString(middleware.UserIDKey)
	if counterpartID == "" || counterpartID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid counterpart id"})
		return
	}

	ctx, span := otel.Tracer("chat-sync/ws").Start(c.Request.Context(), "ws.thread_session")
	defer span.End()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceID(c.Request),
		IP:          observability.ClientIP(c.Request),
		RequestID:   observability.RequestID(c.Request),
		ConnectedAt: time.Now(),
	}
	session := &sessionConn{conn: conn}

	reconciler := chat.NewReconciler(h.messageRepo, userID, counterpartID, func(msgs []models.Message) {
		if err := session.sendJSON(threadPush{Type: "thread", Sections: format.Group(msgs, time.Now())}); err != nil {
			log.Printf("thread session %s: push failed: %v", info.ConnID, err)
		}
	})
	reconciler.SetEchoTolerance(h.echoTolerance)
	tracker := chat.NewReadTracker(h.messageRepo, reconciler, nil)
	manager := realtime.NewManager(h.channel)
	defer manager.Close()

	// Subscribe first so no insert slips between fetch and stream. A failed
	// subscription degrades to fetch-only rather than failing the session.
	scope := realtime.Scope{Kind: realtime.ScopeThread, UserID: userID, CounterpartID: counterpartID}
	if err := manager.Open(ctx, scope, func(evt models.Event) {
		reconciler.ApplyRealtimeEvent(evt)
	}); err != nil {
		_ = session.sendJSON(threadPush{Type: "notice", Notice: "realtime unavailable, refresh to update"})
	} else {
		h.emitter.Emit(ctx, telemetry.EventSubscriptionOpened, info.RequestID, userID, map[string]any{"scope": scope.Key(), "conn_id": info.ConnID})
		defer h.emitter.Emit(context.Background(), telemetry.EventSubscriptionClosed, info.RequestID, userID, map[string]any{"scope": scope.Key(), "conn_id": info.ConnID})
	}

	if _, err := reconciler.LoadThread(ctx); err != nil {
		_ = session.sendJSON(threadPush{Type: "notice", Error: "failed to load conversation"})
		return
	}

	// Opening a thread marks the counterpart's messages read.
	h.markRead(ctx, tracker, reconciler, userID, counterpartID, info)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("thread session %s: read error: %v", info.ConnID, err)
			}
			return
		}

		var cmd threadCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			_ = session.sendJSON(threadPush{Type: "notice", Error: "malformed command"})
			continue
		}

		switch cmd.Type {
		case "send":
			h.handleSend(ctx, session, reconciler, cmd.Content, info)
		case "mark_read":
			h.markRead(ctx, tracker, reconciler, userID, counterpartID, info)
		default:
			_ = session.sendJSON(threadPush{Type: "notice", Error: "unknown command"})
		}
	}
}

func (h *ThreadSessionHandler) handleSend(ctx context.Context, session *sessionConn, reconciler *chat.Reconciler, content string, info ConnInfo) {
	if content == "" {
		_ = session.sendJSON(threadPush{Type: "notice", Error: "empty message"})
		return
	}

	stored, err := reconciler.SendMessage(ctx, content)
	if err != nil {
		if !errors.Is(err, chat.ErrSendFailed) {
			log.Printf("thread session %s: send: %v", info.ConnID, err)
		}
		// The optimistic entry is already rolled back; the client decides
		// whether to offer a retry.
		_ = session.sendJSON(threadPush{Type: "send_failed", Error: "message not delivered"})
		h.emitter.Emit(ctx, telemetry.EventSendFailed, info.RequestID, info.UserID, map[string]any{"conn_id": info.ConnID})
		return
	}

	h.broker.Publish(models.Event{Kind: models.EventInsert, Message: stored})
	h.emitter.Emit(ctx, telemetry.EventMessageSent, info.RequestID, info.UserID, map[string]any{"message_id": stored.ID})
}

// markRead flips the inbound unread messages server-side and republishes the
// flips so the counterpart's open session sees its read receipts.
func (h *ThreadSessionHandler) markRead(ctx context.Context, tracker *chat.ReadTracker, reconciler *chat.Reconciler, userID, counterpartID string, info ConnInfo) {
	var unread []models.Message
	for _, msg := range reconciler.Messages() {
		if msg.SenderID == counterpartID && !msg.IsRead && msg.Confirmed() {
			unread = append(unread, msg)
		}
	}

	if err := tracker.MarkConversationRead(ctx, counterpartID, userID); err != nil {
		// Non-fatal: the badge stays stale until the next load.
		return
	}

	for _, msg := range unread {
		msg.IsRead = true
		h.broker.Publish(models.Event{Kind: models.EventUpdate, Message: msg})
	}
	if len(unread) > 0 {
		h.emitter.Emit(ctx, telemetry.EventConversationRead, info.RequestID, userID, map[string]any{
			"counterpart_id": counterpartID,
			"messages":       len(unread),
		})
	}
}
