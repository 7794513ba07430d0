package ws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-sync/internal/chat"
	"chat-sync/internal/middleware"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/realtime"
	"chat-sync/internal/repositories"
	"chat-sync/internal/telemetry"
)

// InboxSessionHandler runs one synchronized inbox view per websocket
// connection: the conversation summary list kept current by realtime events.
type InboxSessionHandler struct {
	messageRepo repositories.MessageRepository
	profileRepo repositories.ProfileRepository
	channel     realtime.Channel
	broker      *realtime.Broker
	emitter     *telemetry.Emitter
}

// NewInboxSessionHandler constructs an InboxSessionHandler.
func NewInboxSessionHandler(messageRepo repositories.MessageRepository, profileRepo repositories.ProfileRepository, channel realtime.Channel, broker *realtime.Broker, emitter *telemetry.Emitter) *InboxSessionHandler {
	return &InboxSessionHandler{
		messageRepo: messageRepo,
		profileRepo: profileRepo,
		channel:     channel,
		broker:      broker,
		emitter:     emitter,
	}
}

type inboxCommand struct {
	Type          string `json:"type"` // "mark_read"
	CounterpartID string `json:"counterpart_id,omitempty"`
}

type inboxPush struct {
	Type      string                       `json:"type"` // "inbox" | "notice"
	Summaries []models.ConversationSummary `json:"summaries,omitempty"`
	Error     string                       `json:"error,omitempty"`
	Notice    string                       `json:"notice,omitempty"`
}

// Handle upgrades the connection and keeps the inbox in sync until the
// client disconnects.
func (h *InboxSessionHandler) Handle(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)

	ctx, span := otel.Tracer("chat-sync/ws").Start(c.Request.Context(), "ws.inbox_session")
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

	aggregator := chat.NewAggregator(h.messageRepo, h.profileRepo, userID, func(summaries []models.ConversationSummary) {
		if err := session.sendJSON(inboxPush{Type: "inbox", Summaries: summaries}); err != nil {
			log.Printf("inbox session %s: push failed: %v", info.ConnID, err)
		}
	})
	tracker := chat.NewReadTracker(h.messageRepo, nil, aggregator)
	manager := realtime.NewManager(h.channel)
	defer manager.Close()

	scope := realtime.Scope{Kind: realtime.ScopeInbox, UserID: userID}
	if err := manager.Open(ctx, scope, func(evt models.Event) {
		aggregator.ApplyRealtimeEvent(ctx, evt)
	}); err != nil {
		_ = session.sendJSON(inboxPush{Type: "notice", Notice: "realtime unavailable, refresh to update"})
	} else {
		h.emitter.Emit(ctx, telemetry.EventSubscriptionOpened, info.RequestID, userID, map[string]any{"scope": scope.Key(), "conn_id": info.ConnID})
		defer h.emitter.Emit(context.Background(), telemetry.EventSubscriptionClosed, info.RequestID, userID, map[string]any{"scope": scope.Key(), "conn_id": info.ConnID})
	}

	if _, err := aggregator.LoadSummaries(ctx); err != nil {
		_ = session.sendJSON(inboxPush{Type: "notice", Error: "failed to load conversations"})
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("inbox session %s: read error: %v", info.ConnID, err)
			}
			return
		}

		var cmd inboxCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			_ = session.sendJSON(inboxPush{Type: "notice", Error: "malformed command"})
			continue
		}

		switch cmd.Type {
		case "mark_read":
			if cmd.CounterpartID == "" {
				_ = session.sendJSON(inboxPush{Type: "notice", Error: "missing counterpart id"})
				continue
			}
			h.markRead(ctx, tracker, userID, cmd.CounterpartID, info)
		default:
			_ = session.sendJSON(inboxPush{Type: "notice", Error: "unknown command"})
		}
	}
}

// markRead flips the counterpart's unread messages server-side and republishes
// the flips so their open thread session sees its read receipts.
func (h *InboxSessionHandler) markRead(ctx context.Context, tracker *chat.ReadTracker, userID, counterpartID string, info ConnInfo) {
	// Snapshot the rows being flipped before the bulk update; the inbox
	// session holds no thread state to take them from.
	msgs, err := h.messageRepo.FetchThread(ctx, userID, counterpartID)
	if err != nil {
		log.Printf("inbox session %s: snapshot for read mark failed: %v", info.ConnID, err)
		return
	}
	var unread []models.Message
	for _, msg := range msgs {
		if msg.SenderID == counterpartID && !msg.IsRead {
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
