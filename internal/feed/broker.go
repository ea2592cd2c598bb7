package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/score-tracker/internal/domain"
)

// Broker is an in-process feed. Publish delivers synchronously to every
// handler subscribed to the event's table.
type Broker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[domain.Table]map[int]Handler
}

// NewBroker creates an empty broker
func NewBroker() *Broker {
	return &Broker{
		subs: make(map[domain.Table]map[int]Handler),
	}
}

// Subscribe registers handler for table
func (b *Broker) Subscribe(_ context.Context, table domain.Table, handler Handler) (Subscription, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTable, table)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if _, ok := b.subs[table]; !ok {
		b.subs[table] = make(map[int]Handler)
	}
	b.subs[table][id] = handler
	return &brokerSubscription{broker: b, table: table, id: id}, nil
}

// Publish delivers ev to the table's subscribers
func (b *Broker) Publish(_ context.Context, ev domain.ChangeEvent) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[ev.Table]))
	for _, h := range b.subs[ev.Table] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
	return nil
}

// SubscriberCount returns the number of live subscriptions for table
func (b *Broker) SubscriberCount(table domain.Table) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[table])
}

type brokerSubscription struct {
	broker *Broker
	table  domain.Table
	id     int
}

func (s *brokerSubscription) Close() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	if subs, ok := s.broker.subs[s.table]; ok {
		delete(subs, s.id)
		if len(subs) == 0 {
			delete(s.broker.subs, s.table)
		}
	}
	return nil
}
