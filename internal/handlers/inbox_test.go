package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
)

func newInboxRouter(repo *mocks.MessageRepositoryMock, profiles *mocks.ProfileRepositoryMock) *gin.Engine {
	h := NewInboxHandler(repo, profiles)
	router := gin.New()
	router.Use(authAs("alice"))
	router.GET("/inbox", h.GetInbox)
	return router
}

func TestGetInboxReturnsSummaries(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	profiles := new(mocks.ProfileRepositoryMock)
	router := newInboxRouter(repo, profiles)

	now := time.Date(2024, 5, 14, 10, 0, 0, 0, time.UTC)
	repo.On("LatestPerConversation", mock.Anything, "alice").Return([]models.SummaryRow{
		{Message: models.Message{ID: 2, SenderID: "bob", ReceiverID: "alice", Content: "newest", CreatedAt: now}, UnreadCount: 2},
		{Message: models.Message{ID: 1, SenderID: "alice", ReceiverID: "carol", Content: "older", CreatedAt: now.Add(-time.Hour)}, UnreadCount: 0},
	}, nil).Once()
	profiles.On("DisplayNames", mock.Anything, []string{"bob", "carol"}).
		Return(map[string]string{"bob": "Bob", "carol": "Carol"}, nil).Once()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/inbox", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Conversations, 2)
	assert.Equal(t, "bob", body.Conversations[0].CounterpartID)
	assert.Equal(t, "Bob", body.Conversations[0].CounterpartName)
	assert.Equal(t, 2, body.Conversations[0].UnreadCount)
	assert.Equal(t, "carol", body.Conversations[1].CounterpartID)
	repo.AssertExpectations(t)
	profiles.AssertExpectations(t)
}

func TestGetInboxEmpty(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	profiles := new(mocks.ProfileRepositoryMock)
	router := newInboxRouter(repo, profiles)

	repo.On("LatestPerConversation", mock.Anything, "alice").Return([]models.SummaryRow{}, nil).Once()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/inbox", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"conversations":[]`)
}

func TestGetInboxFetchFailure(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	profiles := new(mocks.ProfileRepositoryMock)
	router := newInboxRouter(repo, profiles)

	repo.On("LatestPerConversation", mock.Anything, "alice").Return(nil, assert.AnError).Once()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/inbox", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
