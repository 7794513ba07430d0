package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
)

func TestMarkConversationReadPropagatesLocally(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	rec := NewReconciler(repo, "alice", "bob", nil)
	agg := NewAggregator(repo, nil, "alice", nil)
	tracker := NewReadTracker(repo, rec, agg)

	inbound := models.Message{ID: 1, SenderID: "bob", ReceiverID: "alice", Content: "hi", CreatedAt: threadBase}
	rec.ApplyRealtimeEvent(models.Event{Kind: models.EventInsert, Message: inbound})
	agg.ApplyRealtimeEvent(context.Background(), models.Event{Kind: models.EventInsert, Message: inbound})
	require.Equal(t, 1, agg.Summaries()[0].UnreadCount)

	repo.On("MarkRead", mock.Anything, "bob", "alice").Return(int64(1), nil).Once()

	err := tracker.MarkConversationRead(context.Background(), "bob", "alice")
	require.NoError(t, err)

	assert.True(t, rec.Messages()[0].IsRead)
	assert.Equal(t, 0, agg.Summaries()[0].UnreadCount)
	assert.True(t, agg.Summaries()[0].LastMessageIsRead)
	repo.AssertExpectations(t)
}

func TestMarkConversationReadIsIdempotent(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	agg := NewAggregator(repo, nil, "alice", nil)
	tracker := NewReadTracker(repo, nil, agg)

	repo.On("MarkRead", mock.Anything, "bob", "alice").Return(int64(2), nil).Once()
	repo.On("MarkRead", mock.Anything, "bob", "alice").Return(int64(0), nil).Once()

	require.NoError(t, tracker.MarkConversationRead(context.Background(), "bob", "alice"))
	require.NoError(t, tracker.MarkConversationRead(context.Background(), "bob", "alice"))
	repo.AssertExpectations(t)
}

func TestMarkConversationReadFailureIsNonFatal(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	rec := NewReconciler(repo, "alice", "bob", nil)
	agg := NewAggregator(repo, nil, "alice", nil)
	tracker := NewReadTracker(repo, rec, agg)

	inbound := models.Message{ID: 1, SenderID: "bob", ReceiverID: "alice", Content: "hi", CreatedAt: threadBase}
	rec.ApplyRealtimeEvent(models.Event{Kind: models.EventInsert, Message: inbound})
	agg.ApplyRealtimeEvent(context.Background(), models.Event{Kind: models.EventInsert, Message: inbound})

	repo.On("MarkRead", mock.Anything, "bob", "alice").Return(int64(0), assert.AnError).Once()

	err := tracker.MarkConversationRead(context.Background(), "bob", "alice")
	require.ErrorIs(t, err, ErrReadMarkFailed)

	// Local state stays untouched so the badge reflects the server truth.
	assert.False(t, rec.Messages()[0].IsRead)
	assert.Equal(t, 1, agg.Summaries()[0].UnreadCount)
}

func TestMarkConversationReadSkipsForeignReconciler(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	rec := NewReconciler(repo, "alice", "carol", nil)
	tracker := NewReadTracker(repo, rec, nil)

	inbound := models.Message{ID: 1, SenderID: "carol", ReceiverID: "alice", Content: "hi", CreatedAt: threadBase.Add(time.Minute)}
	rec.ApplyRealtimeEvent(models.Event{Kind: models.EventInsert, Message: inbound})

	repo.On("MarkRead", mock.Anything, "bob", "alice").Return(int64(0), nil).Once()

	require.NoError(t, tracker.MarkConversationRead(context.Background(), "bob", "alice"))
	assert.False(t, rec.Messages()[0].IsRead, "a different thread's reconciler must not be touched")
}
