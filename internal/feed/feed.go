// Package feed defines the change-notification feed the synchronized store
// listens on. Each subscription delivers the change events of one table to a
// single handler.
package feed

import (
	"context"

	"github.com/score-tracker/internal/domain"
)

// Handler receives change events for one table. Transports call it from their
// own goroutine, one event at a time per subscription.
type Handler func(domain.ChangeEvent)

// Subscription is a standing subscription to one table's feed
type Subscription interface {
	// Close releases the subscription. No handler call starts after Close
	// returns. Closing twice is a no-op.
	Close() error
}

// Feed opens per-table subscriptions
type Feed interface {
	Subscribe(ctx context.Context, table domain.Table, handler Handler) (Subscription, error)
}

// Publisher pushes change events onto a feed
type Publisher interface {
	Publish(ctx context.Context, ev domain.ChangeEvent) error
}
