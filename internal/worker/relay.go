package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/score-tracker/internal/domain"
	"github.com/score-tracker/internal/feed"
)

// Relay forwards every change event from one feed to a publisher, for
// example from the database listener to Redis pub/sub.
type Relay struct {
	source        feed.Feed
	target        feed.Publisher
	statsInterval time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	running bool
	subs    []feed.Subscription
	stopCh  chan struct{}
	doneCh  chan struct{}

	relayed atomic.Int64
	failed  atomic.Int64
}

// RelayStats counts forwarded and failed events
type RelayStats struct {
	Relayed int64
	Failed  int64
}

// NewRelay creates a relay from source to target
func NewRelay(source feed.Feed, target feed.Publisher, statsInterval time.Duration, logger *slog.Logger) *Relay {
	if statsInterval <= 0 {
		statsInterval = time.Minute
	}
	return &Relay{
		source:        source,
		target:        target,
		statsInterval: statsInterval,
		logger:        logger,
	}
}

// Start subscribes to every table on the source
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	subs := make([]feed.Subscription, 0, len(domain.Tables))
	for _, table := range domain.Tables {
		sub, err := r.source.Subscribe(ctx, table, r.forward)
		if err != nil {
			for _, s := range subs {
				s.Close()
			}
			return fmt.Errorf("relaying %s changes: %w", table, err)
		}
		subs = append(subs, sub)
	}

	r.subs = subs
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.running = true
	go r.run(r.stopCh, r.doneCh)

	r.logger.Info("change relay started", "tables", len(subs))
	return nil
}

// Stop releases the source subscriptions
func (r *Relay) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	subs := r.subs
	r.subs = nil
	stopCh, doneCh := r.stopCh, r.doneCh
	r.running = false
	r.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	close(stopCh)
	<-doneCh

	r.logger.Info("change relay stopped", "relayed", r.relayed.Load(), "failed", r.failed.Load())
	return errors.Join(errs...)
}

// IsRunning returns whether the relay is currently running
func (r *Relay) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Stats returns the relay counters
func (r *Relay) Stats() RelayStats {
	return RelayStats{Relayed: r.relayed.Load(), Failed: r.failed.Load()}
}

func (r *Relay) forward(ev domain.ChangeEvent) {
	// source handlers have no context of their own
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.target.Publish(ctx, ev); err != nil {
		r.failed.Add(1)
		r.logger.Error("failed to relay change",
			"table", ev.Table,
			"type", ev.Type,
			"error", err,
		)
		return
	}
	r.relayed.Add(1)
}

// run logs the counters periodically
func (r *Relay) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(r.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			stats := r.Stats()
			r.logger.Info("change relay stats", "relayed", stats.Relayed, "failed", stats.Failed)
		}
	}
}
