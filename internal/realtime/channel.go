package realtime

import (
	"context"
	"errors"

	"chat-sync/internal/models"
)

// ErrSubscribeFailed marks a realtime channel that could not be opened. The
// caller falls back to fetch-only operation; staleness is possible until a
// manual refresh. Reconnecting a dropped stream is the transport's concern,
// never the sync core's.
var ErrSubscribeFailed = errors.New("realtime: subscribe failed")

// Channel is a push-style stream of message-row change events. Subscribe
// delivers every event whose row has userID as sender or receiver; finer
// scope filtering happens client-side in the Manager.
type Channel interface {
	Subscribe(ctx context.Context, userID string, onEvent func(models.Event)) (Subscription, error)
}

// Subscription is a live stream handle. Unsubscribe is synchronous: when it
// returns, onEvent will not be invoked again.
type Subscription interface {
	Unsubscribe()
}
