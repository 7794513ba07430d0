package realtime

import (
	"context"
	"fmt"
	"log"
	"sync"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

// ScopeKind distinguishes a single open thread from the whole-user inbox.
type ScopeKind string

const (
	ScopeThread ScopeKind = "thread"
	ScopeInbox  ScopeKind = "inbox"
)

// Scope identifies one logical subscription target.
type Scope struct {
	Kind          ScopeKind
	UserID        string
	CounterpartID string // set for ScopeThread only
}

// Key returns the canonical scope identifier.
func (s Scope) Key() string {
	if s.Kind == ScopeThread {
		return fmt.Sprintf("thread:%s:%s", s.UserID, s.CounterpartID)
	}
	return fmt.Sprintf("inbox:%s", s.UserID)
}

// matches reports whether an event belongs to the scope. The channel already
// filters on participation of UserID; thread scopes additionally require the
// conversation's counterpart to match.
func (s Scope) matches(msg models.Message) bool {
	if !msg.Involves(s.UserID) {
		return false
	}
	if s.Kind == ScopeThread {
		return msg.CounterpartOf(s.UserID) == s.CounterpartID
	}
	return true
}

// State is the lifecycle of a scope's stream.
type State int

const (
	StateUnsubscribed State = iota
	StateSubscribing
	StateActive
)

func (s State) String() string {
	switch s {
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	default:
		return "unsubscribed"
	}
}

// Manager owns at most one live stream for one logical scope. Opening a new
// scope tears the previous stream down synchronously first, so no event can
// leak into a torn-down consumer; a generation counter additionally fences
// events that were already in flight when the scope changed.
type Manager struct {
	channel Channel

	mu       sync.Mutex
	state    State
	scope    Scope
	gen      uint64
	sub      Subscription
	dispatch func(models.Event)
}

// NewManager builds a Manager on top of channel.
func NewManager(channel Channel) *Manager {
	return &Manager{channel: channel}
}

// Open switches the manager to scope and delivers matching events to
// dispatch. Any previous stream is unsubscribed before the new one is dialed.
// On failure the manager ends Unsubscribed and the scope runs fetch-only.
func (m *Manager) Open(ctx context.Context, scope Scope, dispatch func(models.Event)) error {
	m.mu.Lock()
	m.teardownLocked()
	m.gen++
	gen := m.gen
	m.state = StateSubscribing
	m.scope = scope
	m.dispatch = dispatch
	m.mu.Unlock()

	sub, err := m.channel.Subscribe(ctx, scope.UserID, func(evt models.Event) {
		m.deliver(gen, evt)
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		// The scope changed while we were dialing; this stream is stale.
		if sub != nil {
			sub.Unsubscribe()
		}
		return nil
	}
	if err != nil {
		m.state = StateUnsubscribed
		m.dispatch = nil
		log.Printf("subscription manager: open %s failed: %v", scope.Key(), err)
		return fmt.Errorf("%w: %s: %v", ErrSubscribeFailed, scope.Key(), err)
	}
	m.sub = sub
	m.state = StateActive
	observability.IncSubscription(string(scope.Kind))
	return nil
}

// Close tears the current stream down. Synchronous: when it returns, the
// previous dispatch function will not be invoked again.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
	m.gen++
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentScope returns the scope the manager is (or was last) bound to.
func (m *Manager) CurrentScope() Scope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scope
}

func (m *Manager) teardownLocked() {
	if m.sub != nil {
		m.sub.Unsubscribe()
		m.sub = nil
		observability.DecSubscription(string(m.scope.Kind))
	}
	m.state = StateUnsubscribed
	m.dispatch = nil
}

// deliver fences and filters one inbound event, then hands it to the scope's
// consumer.
func (m *Manager) deliver(gen uint64, evt models.Event) {
	m.mu.Lock()
	if m.gen != gen || m.state != StateActive || m.dispatch == nil {
		m.mu.Unlock()
		observability.IncEventDropped("stale_scope")
		return
	}
	if !m.scope.matches(evt.Message) {
		m.mu.Unlock()
		observability.IncEventDropped("out_of_scope")
		return
	}
	dispatch := m.dispatch
	kind := string(m.scope.Kind)
	m.mu.Unlock()

	observability.IncEventDispatched(kind, string(evt.Kind))
	dispatch(evt)
}
