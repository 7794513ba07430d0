package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/middleware"
	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
	"chat-sync/internal/realtime"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// authAs stubs the JWT middleware with a fixed identity.
func authAs(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

func newThreadRouter(repo *mocks.MessageRepositoryMock, broker *realtime.Broker) *gin.Engine {
	h := NewThreadHandler(repo, broker, nil, 5*time.Second)
	router := gin.New()
	router.Use(authAs("alice"))
	router.GET("/threads/:counterpart_id/messages", h.GetThread)
	router.POST("/threads/:counterpart_id/messages", h.PostMessage)
	router.POST("/threads/:counterpart_id/read", h.MarkRead)
	return router
}

func TestGetThreadReturnsSections(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	router := newThreadRouter(repo, realtime.NewBroker())

	now := time.Now()
	repo.On("FetchThread", mock.Anything, "alice", "bob").Return([]models.Message{
		{ID: 1, SenderID: "bob", ReceiverID: "alice", Content: "hi", CreatedAt: now.Add(-time.Minute)},
	}, nil).Once()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/threads/bob/messages", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Sections []struct {
			DateLabel string           `json:"date_label"`
			Messages  []models.Message `json:"messages"`
		} `json:"sections"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Sections, 1)
	assert.Equal(t, "Today", body.Sections[0].DateLabel)
	assert.Len(t, body.Sections[0].Messages, 1)
	repo.AssertExpectations(t)
}

func TestGetThreadRejectsSelfCounterpart(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	router := newThreadRouter(repo, realtime.NewBroker())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/threads/alice/messages", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	repo.AssertNotCalled(t, "FetchThread")
}

func TestGetThreadFetchFailure(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	router := newThreadRouter(repo, realtime.NewBroker())

	repo.On("FetchThread", mock.Anything, "alice", "bob").Return(nil, assert.AnError).Once()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/threads/bob/messages", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPostMessageStoresAndBroadcasts(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	broker := realtime.NewBroker()
	router := newThreadRouter(repo, broker)

	var published []models.Event
	_, err := broker.Subscribe(context.Background(), "bob", func(evt models.Event) {
		published = append(published, evt)
	})
	require.NoError(t, err)

	repo.On("Insert", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.SenderID == "alice" && m.ReceiverID == "bob" && m.Content == "hello"
	})).Return(models.Message{ID: 42, SenderID: "alice", ReceiverID: "bob", Content: "hello", CreatedAt: time.Now()}, nil).Once()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/threads/bob/messages", bytes.NewBufferString(`{"content":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var stored models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stored))
	assert.Equal(t, int64(42), stored.ID)

	require.Len(t, published, 1)
	assert.Equal(t, models.EventInsert, published[0].Kind)
	assert.Equal(t, int64(42), published[0].Message.ID)
	repo.AssertExpectations(t)
}

func TestPostMessageRejectsEmptyContent(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	router := newThreadRouter(repo, realtime.NewBroker())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/threads/bob/messages", bytes.NewBufferString(`{"content":""}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	repo.AssertNotCalled(t, "Insert")
}

func TestPostMessageInsertFailure(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	router := newThreadRouter(repo, realtime.NewBroker())

	repo.On("Insert", mock.Anything, mock.Anything).Return(models.Message{}, assert.AnError).Once()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/threads/bob/messages", bytes.NewBufferString(`{"content":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestMarkReadRepublishesReceipts(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	broker := realtime.NewBroker()
	router := newThreadRouter(repo, broker)

	var receipts []models.Event
	_, err := broker.Subscribe(context.Background(), "bob", func(evt models.Event) {
		receipts = append(receipts, evt)
	})
	require.NoError(t, err)

	now := time.Now()
	repo.On("FetchThread", mock.Anything, "alice", "bob").Return([]models.Message{
		{ID: 1, SenderID: "bob", ReceiverID: "alice", Content: "a", CreatedAt: now.Add(-2 * time.Minute)},
		{ID: 2, SenderID: "alice", ReceiverID: "bob", Content: "b", CreatedAt: now.Add(-time.Minute), IsRead: true},
		{ID: 3, SenderID: "bob", ReceiverID: "alice", Content: "c", CreatedAt: now, IsRead: true},
	}, nil).Once()
	repo.On("MarkRead", mock.Anything, "bob", "alice").Return(int64(1), nil).Once()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/threads/bob/read", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, receipts, 1, "only the unread inbound row gets a receipt")
	assert.Equal(t, models.EventUpdate, receipts[0].Kind)
	assert.Equal(t, int64(1), receipts[0].Message.ID)
	assert.True(t, receipts[0].Message.IsRead)
	repo.AssertExpectations(t)
}

func TestMarkReadFailureReportsStale(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	router := newThreadRouter(repo, realtime.NewBroker())

	repo.On("FetchThread", mock.Anything, "alice", "bob").Return(nil, nil).Once()
	repo.On("MarkRead", mock.Anything, "bob", "alice").Return(int64(0), assert.AnError).Once()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/threads/bob/read", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "stale")
}
