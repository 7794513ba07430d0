package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/chat"
	"chat-sync/internal/format"
	"chat-sync/internal/models"
	"chat-sync/internal/realtime"
	"chat-sync/internal/repositories"
	"chat-sync/internal/telemetry"
)

// ThreadHandler serves the REST view of one conversation: the date-grouped
// message list, a send action and a mark-read trigger. Stateful sync sessions
// live on the websocket side; these endpoints are the fetch-only fallback.
type ThreadHandler struct {
	messageRepo   repositories.MessageRepository
	broker        *realtime.Broker
	emitter       *telemetry.Emitter
	echoTolerance time.Duration
}

// NewThreadHandler builds a ThreadHandler.
func NewThreadHandler(messageRepo repositories.MessageRepository, broker *realtime.Broker, emitter *telemetry.Emitter, echoTolerance time.Duration) *ThreadHandler {
	return &ThreadHandler{
		messageRepo:   messageRepo,
		broker:        broker,
		emitter:       emitter,
		echoTolerance: echoTolerance,
	}
}

// GetThread returns the full thread with the counterpart, grouped by day.
func (h *ThreadHandler) GetThread(c *gin.Context) {
	counterpartID := c.Param("counterpart_id")
	userID := currentUserID(c)
	if counterpartID == "" || counterpartID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid counterpart id"})
		return
	}

	reconciler := chat.NewReconciler(h.messageRepo, userID, counterpartID, nil)
	msgs, err := reconciler.LoadThread(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sections": format.Group(msgs, time.Now())})
}

// PostMessage stores one message and broadcasts the insert event.
func (h *ThreadHandler) PostMessage(c *gin.Context) {
	counterpartID := c.Param("counterpart_id")
	userID := currentUserID(c)
	if counterpartID == "" || counterpartID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid counterpart id"})
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reconciler := chat.NewReconciler(h.messageRepo, userID, counterpartID, nil)
	reconciler.SetEchoTolerance(h.echoTolerance)
	stored, err := reconciler.SendMessage(c.Request.Context(), req.Content)
	if err != nil {
		// No implicit retry; the client resubmits if the user asks to.
		c.JSON(http.StatusBadGateway, gin.H{"error": "message not delivered"})
		h.emitter.Emit(c.Request.Context(), telemetry.EventSendFailed, requestIDFromContext(c), userID, nil)
		return
	}

	h.broker.Publish(models.Event{Kind: models.EventInsert, Message: stored})
	h.emitter.Emit(c.Request.Context(), telemetry.EventMessageSent, requestIDFromContext(c), userID, map[string]any{"message_id": stored.ID})
	c.JSON(http.StatusCreated, stored)
}

// MarkRead flips the unread inbound messages of one conversation and
// broadcasts the read receipts.
func (h *ThreadHandler) MarkRead(c *gin.Context) {
	counterpartID := c.Param("counterpart_id")
	userID := currentUserID(c)
	if counterpartID == "" || counterpartID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid counterpart id"})
		return
	}

	// Snapshot the rows being flipped so their update events can be
	// republished for the counterpart's read receipts.
	msgs, err := h.messageRepo.FetchThread(c.Request.Context(), userID, counterpartID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}

	tracker := chat.NewReadTracker(h.messageRepo, nil, nil)
	if err := tracker.MarkConversationRead(c.Request.Context(), counterpartID, userID); err != nil {
		// Best-effort by contract: report it, the badge stays stale.
		c.JSON(http.StatusAccepted, gin.H{"status": "stale"})
		return
	}

	marked := 0
	for _, msg := range msgs {
		if msg.SenderID == counterpartID && !msg.IsRead {
			msg.IsRead = true
			h.broker.Publish(models.Event{Kind: models.EventUpdate, Message: msg})
			marked++
		}
	}
	if marked > 0 {
		h.emitter.Emit(c.Request.Context(), telemetry.EventConversationRead, requestIDFromContext(c), userID, map[string]any{
			"counterpart_id": counterpartID,
			"messages":       marked,
		})
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "marked": marked})
}
