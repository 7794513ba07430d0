package chat

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/repositories"
	"chat-sync/internal/timeutil"
)

// DefaultEchoTolerance is the window within which a realtime insert is taken
// to be the echo of a still-pending optimistic send with the same sender and
// content.
const DefaultEchoTolerance = 5 * time.Second

// Reconciler owns the ordered message list for one open conversation. It
// merges three racing inputs - the initial bulk fetch, locally issued
// optimistic sends and the realtime event stream - into one de-duplicated
// list sorted by created_at ascending.
//
// All mutations are serialized by an internal mutex; callers may use a
// Reconciler from multiple goroutines.
type Reconciler struct {
	repo          repositories.MessageRepository
	userID        string
	counterpartID string

	mu       sync.Mutex
	messages []models.Message

	tolerance time.Duration
	now       func() time.Time
	onChange  func([]models.Message)
}

// NewReconciler builds a Reconciler for the thread between userID and
// counterpartID. onChange, when non-nil, receives a snapshot of the full list
// after every visible mutation, including the optimistic insert that precedes
// a send round trip.
func NewReconciler(repo repositories.MessageRepository, userID, counterpartID string, onChange func([]models.Message)) *Reconciler {
	return &Reconciler{
		repo:          repo,
		userID:        userID,
		counterpartID: counterpartID,
		tolerance:     DefaultEchoTolerance,
		now:           time.Now,
		onChange:      onChange,
	}
}

// SetEchoTolerance overrides the correlation window for realtime echoes of
// pending sends. Call before the reconciler is in use.
func (r *Reconciler) SetEchoTolerance(d time.Duration) {
	if d > 0 {
		r.tolerance = d
	}
}

// LoadThread replaces the list with a fresh bulk fetch, ordered ascending.
func (r *Reconciler) LoadThread(ctx context.Context) ([]models.Message, error) {
	msgs, err := r.repo.FetchThread(ctx, r.userID, r.counterpartID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	r.mu.Lock()
	r.messages = msgs
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(snapshot)
	return snapshot, nil
}

// Messages returns a copy of the current ordered list.
func (r *Reconciler) Messages() []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// SendMessage appends an optimistic entry immediately, then submits it to the
// store. On success the entry adopts the server id in place; content and
// timestamp stay as the optimistic values so the entry does not move. On
// failure the entry is removed and ErrSendFailed returned; retrying is the
// caller's decision.
func (r *Reconciler) SendMessage(ctx context.Context, content string) (models.Message, error) {
	msg := models.Message{
		ClientTempID: uuid.NewString(),
		SenderID:     r.userID,
		ReceiverID:   r.counterpartID,
		Content:      content,
		CreatedAt:    r.now().UTC(),
	}

	r.mu.Lock()
	r.insertSortedLocked(msg)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.notify(snapshot)

	stored, err := r.repo.Insert(ctx, msg)
	if err != nil {
		r.mu.Lock()
		r.rollbackLocked(msg.ClientTempID)
		snapshot = r.snapshotLocked()
		r.mu.Unlock()
		r.notify(snapshot)
		observability.IncSendRolledBack()
		return models.Message{}, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	r.mu.Lock()
	confirmed := r.confirmLocked(msg.ClientTempID, stored)
	snapshot = r.snapshotLocked()
	r.mu.Unlock()
	r.notify(snapshot)
	observability.IncSendConfirmed()
	return confirmed, nil
}

// ApplyRealtimeEvent folds one parsed change event into the list and reports
// whether anything changed. Events for other conversations are ignored here;
// routing is the subscription manager's job, this is only a guard.
func (r *Reconciler) ApplyRealtimeEvent(evt models.Event) bool {
	msg := evt.Message
	if !msg.Involves(r.userID) || msg.CounterpartOf(r.userID) != r.counterpartID {
		return false
	}

	r.mu.Lock()
	changed := false
	switch evt.Kind {
	case models.EventInsert:
		// Duplicate delivery of a known server row is a no-op.
		if msg.ID != 0 && r.indexByIDLocked(msg.ID) >= 0 {
			break
		}
		if i := r.matchPendingEchoLocked(msg); i >= 0 {
			// The echo of our own pending send: adopt the server id in
			// place instead of appending a duplicate. The entry keeps its
			// optimistic timestamp and stays pending until the send call's
			// own response resolves it.
			r.messages[i].ID = msg.ID
			r.messages[i].IsRead = msg.IsRead
		} else {
			r.insertSortedLocked(msg)
		}
		changed = true
	case models.EventUpdate:
		if i := r.indexByIDLocked(msg.ID); i >= 0 {
			r.messages[i].IsRead = msg.IsRead
			changed = true
		}
		// Update for a message not loaded yet patches nothing.
	default:
		log.Printf("reconciler: dropping event with unknown kind %q", evt.Kind)
	}
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	if changed {
		r.notify(snapshot)
	}
	return changed
}

// MarkInboundRead flips is_read on every loaded message from the counterpart.
// Called by the read-state tracker after the server-side bulk update succeeds.
func (r *Reconciler) MarkInboundRead() {
	r.mu.Lock()
	changed := false
	for i := range r.messages {
		if r.messages[i].SenderID == r.counterpartID && !r.messages[i].IsRead {
			r.messages[i].IsRead = true
			changed = true
		}
	}
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	if changed {
		r.notify(snapshot)
	}
}

// CounterpartID returns the conversation's counterpart.
func (r *Reconciler) CounterpartID() string {
	return r.counterpartID
}

// insertSortedLocked places msg so created_at ascending holds. Realtime
// delivery order does not match timestamp order, so insertion is by position,
// never append-only. Equal timestamps keep arrival order.
func (r *Reconciler) insertSortedLocked(msg models.Message) {
	i := len(r.messages)
	for i > 0 && r.messages[i-1].CreatedAt.After(msg.CreatedAt) {
		i--
	}
	r.messages = append(r.messages, models.Message{})
	copy(r.messages[i+1:], r.messages[i:])
	r.messages[i] = msg
}

// matchPendingEchoLocked finds a still-unconfirmed optimistic entry that the
// incoming row is the server echo of: same sender, same content, created
// within the tolerance window.
func (r *Reconciler) matchPendingEchoLocked(msg models.Message) int {
	for i := range r.messages {
		entry := r.messages[i]
		if entry.Confirmed() || entry.ClientTempID == "" {
			continue
		}
		if entry.SenderID == msg.SenderID && entry.Content == msg.Content &&
			timeutil.Within(entry.CreatedAt, msg.CreatedAt, r.tolerance) {
			return i
		}
	}
	return -1
}

func (r *Reconciler) indexByIDLocked(id int64) int {
	if id == 0 {
		return -1
	}
	for i := range r.messages {
		if r.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// confirmLocked resolves a send: the optimistic entry adopts the server id
// and stops being pending. When the realtime echo already merged first, the
// entry is found by id instead and the call is a no-op beyond clearing the
// temp id.
func (r *Reconciler) confirmLocked(tempID string, stored models.Message) models.Message {
	for i := range r.messages {
		if r.messages[i].ClientTempID == tempID {
			r.messages[i].ID = stored.ID
			r.messages[i].ClientTempID = ""
			return r.messages[i]
		}
	}
	if i := r.indexByIDLocked(stored.ID); i >= 0 {
		r.messages[i].ClientTempID = ""
		return r.messages[i]
	}
	// Entry vanished (conversation reloaded mid-send); reinsert the stored row.
	r.insertSortedLocked(stored)
	return stored
}

// rollbackLocked removes the optimistic entry for a failed send. An entry
// that was confirmed by its realtime echo in the meantime is a real server
// row and is kept.
func (r *Reconciler) rollbackLocked(tempID string) {
	for i := range r.messages {
		if r.messages[i].ClientTempID == tempID && !r.messages[i].Confirmed() {
			r.messages = append(r.messages[:i], r.messages[i+1:]...)
			return
		}
	}
}

func (r *Reconciler) snapshotLocked() []models.Message {
	out := make([]models.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// notify runs the onChange callback outside the mutex, so callbacks may read
// the Reconciler again.
func (r *Reconciler) notify(snapshot []models.Message) {
	if r.onChange != nil {
		r.onChange(snapshot)
	}
}
