package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/mocks"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	e := NewEmitter(publisher, "chat_events.sync", "chat-sync", "test")

	var published Envelope
	publisher.On("Publish", mock.Anything, "chat_events.sync", mock.Anything).
		Run(func(args mock.Arguments) {
			published = args.Get(2).(Envelope)
		}).
		Return(nil).Once()

	e.Emit(context.Background(), EventMessageSent, "req-1", "alice", map[string]any{"message_id": int64(7)})

	require.Equal(t, 1, published.SchemaVersion)
	assert.Equal(t, EventMessageSent, published.EventType)
	assert.Equal(t, "chat-sync", published.Service)
	assert.Equal(t, "test", published.Environment)
	assert.Equal(t, "req-1", published.RequestID)
	assert.Equal(t, "alice", published.UserID)
	assert.NotEmpty(t, published.OccurredAt)
	publisher.AssertExpectations(t)
}

func TestEmitSwallowsPublishFailure(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	e := NewEmitter(publisher, "chat_events.sync", "chat-sync", "test")

	publisher.On("Publish", mock.Anything, "chat_events.sync", mock.Anything).
		Return(assert.AnError).Once()

	// Telemetry never fails a chat operation.
	e.Emit(context.Background(), EventSendFailed, "", "alice", nil)
	publisher.AssertExpectations(t)
}

func TestNilEmitterIsInert(t *testing.T) {
	var e *Emitter
	e.Emit(context.Background(), EventConversationRead, "", "alice", nil)

	e = NewEmitter(nil, "chat_events.sync", "chat-sync", "test")
	e.Emit(context.Background(), EventConversationRead, "", "alice", nil)
}
