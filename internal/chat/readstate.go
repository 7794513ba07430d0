package chat

import (
	"context"
	"fmt"
	"log"

	"chat-sync/internal/observability"
	"chat-sync/internal/repositories"
)

// ReadTracker marks a conversation's inbound messages as read when the thread
// is opened and propagates the change to the local reconciler and aggregator.
// The server update is best-effort: failure never blocks the UI, it only
// leaves the unread badge stale until the next refresh.
type ReadTracker struct {
	repo       repositories.MessageRepository
	reconciler *Reconciler
	aggregator *Aggregator
}

// NewReadTracker builds a ReadTracker. Either reconciler or aggregator may be
// nil when that side of the state is not held locally.
func NewReadTracker(repo repositories.MessageRepository, reconciler *Reconciler, aggregator *Aggregator) *ReadTracker {
	return &ReadTracker{repo: repo, reconciler: reconciler, aggregator: aggregator}
}

// MarkConversationRead flips is_read on all unread messages from
// counterpartID to currentUserID, then mirrors the flip locally. The bulk
// update is a single best-effort operation; there is no client-side rollback
// on partial failure. Idempotent: a second call affects zero rows and the
// unread count stays zero.
func (t *ReadTracker) MarkConversationRead(ctx context.Context, counterpartID, currentUserID string) error {
	affected, err := t.repo.MarkRead(ctx, counterpartID, currentUserID)
	if err != nil {
		log.Printf("read tracker: mark read for %s failed: %v", counterpartID, err)
		observability.IncReadMarkFailure()
		return fmt.Errorf("%w: %v", ErrReadMarkFailed, err)
	}
	if affected > 0 {
		log.Printf("read tracker: marked %d messages from %s read", affected, counterpartID)
	}

	if t.reconciler != nil && t.reconciler.CounterpartID() == counterpartID {
		t.reconciler.MarkInboundRead()
	}
	if t.aggregator != nil {
		t.aggregator.MarkConversationRead(counterpartID)
	}
	return nil
}
