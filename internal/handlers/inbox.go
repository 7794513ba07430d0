package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/chat"
	"chat-sync/internal/repositories"
)

// InboxHandler serves the REST view of the conversation summary list.
type InboxHandler struct {
	messageRepo repositories.MessageRepository
	profileRepo repositories.ProfileRepository
}

// NewInboxHandler builds an InboxHandler.
func NewInboxHandler(messageRepo repositories.MessageRepository, profileRepo repositories.ProfileRepository) *InboxHandler {
	return &InboxHandler{messageRepo: messageRepo, profileRepo: profileRepo}
}

// GetInbox returns one summary per counterpart, newest conversation first.
func (h *InboxHandler) GetInbox(c *gin.Context) {
	userID := currentUserID(c)

	aggregator := chat.NewAggregator(h.messageRepo, h.profileRepo, userID, nil)
	summaries, err := aggregator.LoadSummaries(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}
