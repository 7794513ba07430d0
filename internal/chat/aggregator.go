package chat

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
)

// Aggregator owns the per-counterpart conversation summaries shown on the
// inbox screen. Summaries are derived from a latest-message-per-conversation
// bulk fetch and mutated incrementally by realtime events. Exactly one
// summary exists per counterpart; summaries are never deleted.
type Aggregator struct {
	repo     repositories.MessageRepository
	profiles repositories.ProfileRepository
	userID   string

	mu        sync.Mutex
	summaries []models.ConversationSummary

	onChange func([]models.ConversationSummary)
}

// NewAggregator builds an Aggregator for userID's inbox. profiles may be nil,
// in which case summaries carry no display names. onChange, when non-nil,
// receives the re-sorted collection after every mutation.
func NewAggregator(repo repositories.MessageRepository, profiles repositories.ProfileRepository, userID string, onChange func([]models.ConversationSummary)) *Aggregator {
	return &Aggregator{
		repo:     repo,
		profiles: profiles,
		userID:   userID,
		onChange: onChange,
	}
}

// LoadSummaries rebuilds the collection from the backend aggregation. Each
// row is re-keyed so the counterpart is always the other party, enriched with
// display names, and the result sorted by last_message_at descending.
func (a *Aggregator) LoadSummaries(ctx context.Context) ([]models.ConversationSummary, error) {
	rows, err := a.repo.LatestPerConversation(ctx, a.userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	summaries := make([]models.ConversationSummary, 0, len(rows))
	counterparts := make([]string, 0, len(rows))
	for _, row := range rows {
		counterpart := row.CounterpartOf(a.userID)
		counterparts = append(counterparts, counterpart)
		summaries = append(summaries, models.ConversationSummary{
			CounterpartID:       counterpart,
			LastMessageID:       row.ID,
			LastMessageContent:  row.Content,
			LastMessageAt:       row.CreatedAt,
			LastMessageSenderID: row.SenderID,
			LastMessageIsRead:   row.IsRead,
			UnreadCount:         row.UnreadCount,
		})
	}

	names := a.resolveNames(ctx, counterparts)
	for i := range summaries {
		summaries[i].CounterpartName = names[summaries[i].CounterpartID]
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastMessageAt.After(summaries[j].LastMessageAt)
	})

	a.mu.Lock()
	a.summaries = summaries
	snapshot := a.snapshotLocked()
	a.mu.Unlock()

	a.notify(snapshot)
	return snapshot, nil
}

// Summaries returns a copy of the collection, sorted descending.
func (a *Aggregator) Summaries() []models.ConversationSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// ApplyRealtimeEvent folds one change event into the collection. Inserts
// update or synthesize the counterpart's summary and re-sort; the unread
// count grows only when the current user is the receiver. Updates patch the
// read flag, and only when the updated row still is the summary's latest
// message. Reports whether the collection changed.
func (a *Aggregator) ApplyRealtimeEvent(ctx context.Context, evt models.Event) bool {
	msg := evt.Message
	if !msg.Involves(a.userID) {
		return false
	}
	counterpart := msg.CounterpartOf(a.userID)

	// Resolve the display name before taking the mutex; the lookup may hit
	// the database and must not block other mutations or run under the lock.
	var name string
	if evt.Kind == models.EventInsert && !a.hasSummary(counterpart) {
		name = a.resolveName(ctx, counterpart)
	}

	a.mu.Lock()
	changed := false
	switch evt.Kind {
	case models.EventInsert:
		i := a.indexLocked(counterpart)
		if i < 0 {
			a.summaries = append(a.summaries, models.ConversationSummary{
				CounterpartID:   counterpart,
				CounterpartName: name,
			})
			i = len(a.summaries) - 1
		}
		s := &a.summaries[i]
		if msg.ReceiverID == a.userID && !msg.IsRead {
			s.UnreadCount++
		}
		// A late-delivered older message must not regress the preview.
		if !msg.CreatedAt.Before(s.LastMessageAt) {
			s.LastMessageID = msg.ID
			s.LastMessageContent = msg.Content
			s.LastMessageAt = msg.CreatedAt
			s.LastMessageSenderID = msg.SenderID
			s.LastMessageIsRead = msg.IsRead
		}
		a.resortLocked()
		changed = true
	case models.EventUpdate:
		if i := a.indexLocked(counterpart); i >= 0 && a.summaries[i].LastMessageID == msg.ID {
			a.summaries[i].LastMessageIsRead = msg.IsRead
			changed = true
		}
	default:
		log.Printf("aggregator: dropping event with unknown kind %q", evt.Kind)
	}
	snapshot := a.snapshotLocked()
	a.mu.Unlock()

	if changed {
		a.notify(snapshot)
	}
	return changed
}

func (a *Aggregator) hasSummary(counterpartID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.indexLocked(counterpartID) >= 0
}

// MarkConversationRead resets the counterpart's unread count and, when the
// latest message is theirs, flips its read flag. Invoked by the read-state
// tracker once the server-side bulk update succeeded.
func (a *Aggregator) MarkConversationRead(counterpartID string) {
	a.mu.Lock()
	i := a.indexLocked(counterpartID)
	if i < 0 {
		a.mu.Unlock()
		return
	}
	a.summaries[i].UnreadCount = 0
	if a.summaries[i].LastMessageSenderID == counterpartID {
		a.summaries[i].LastMessageIsRead = true
	}
	snapshot := a.snapshotLocked()
	a.mu.Unlock()
	a.notify(snapshot)
}

func (a *Aggregator) indexLocked(counterpartID string) int {
	for i := range a.summaries {
		if a.summaries[i].CounterpartID == counterpartID {
			return i
		}
	}
	return -1
}

// resortLocked re-establishes last_message_at descending. The sort is stable,
// so equal timestamps keep arrival order rather than being reordered
// retroactively.
func (a *Aggregator) resortLocked() {
	sort.SliceStable(a.summaries, func(i, j int) bool {
		return a.summaries[i].LastMessageAt.After(a.summaries[j].LastMessageAt)
	})
}

func (a *Aggregator) resolveName(ctx context.Context, userID string) string {
	if a.profiles == nil {
		return ""
	}
	name, err := a.profiles.DisplayName(ctx, userID)
	if err != nil {
		log.Printf("aggregator: display name lookup for %s failed: %v", userID, err)
		return ""
	}
	return name
}

func (a *Aggregator) resolveNames(ctx context.Context, userIDs []string) map[string]string {
	if a.profiles == nil || len(userIDs) == 0 {
		return map[string]string{}
	}
	names, err := a.profiles.DisplayNames(ctx, userIDs)
	if err != nil {
		log.Printf("aggregator: bulk display name lookup failed: %v", err)
		return map[string]string{}
	}
	return names
}

func (a *Aggregator) snapshotLocked() []models.ConversationSummary {
	out := make([]models.ConversationSummary, len(a.summaries))
	copy(out, a.summaries)
	return out
}

// notify runs the onChange callback outside the mutex, so callbacks may read
// the Aggregator again.
func (a *Aggregator) notify(snapshot []models.ConversationSummary) {
	if a.onChange != nil {
		a.onChange(snapshot)
	}
}
