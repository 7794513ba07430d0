package realtime

import (
	"context"
	"sync"

	"chat-sync/internal/models"

	"chat-sync/internal/observability"
)

// Broker is the in-process Channel: message writes performed by this service
// are fanned out to every subscriber whose user is a participant of the row.
// When an upstream change feed is configured it is pumped into the Broker as
// well, so subscribers see one unified stream.
type Broker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*brokerSub
}

type brokerSub struct {
	broker  *Broker
	id      int
	userID  string
	onEvent func(models.Event)
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: map[int]*brokerSub{}}
}

// Subscribe registers a consumer for all events involving userID.
func (b *Broker) Subscribe(_ context.Context, userID string, onEvent func(models.Event)) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &brokerSub{broker: b, id: b.nextID, userID: userID, onEvent: onEvent}
	b.subs[sub.id] = sub
	observability.SetBrokerSubscribers(len(b.subs))
	return sub, nil
}

// Publish delivers the event to every subscriber whose user the row involves.
// Delivery is synchronous and in publish order.
func (b *Broker) Publish(evt models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if evt.Message.Involves(sub.userID) {
			sub.onEvent(evt)
		}
	}
}

func (s *brokerSub) Unsubscribe() {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	delete(s.broker.subs, s.id)
	observability.SetBrokerSubscribers(len(s.broker.subs))
}
