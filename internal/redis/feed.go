// Package redis carries change events over Redis pub/sub, one channel per
// table, so that several server replicas can share one database listener.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/score-tracker/internal/config"
	"github.com/score-tracker/internal/domain"
	"github.com/score-tracker/internal/feed"
)

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// Feed is a change feed and publisher over Redis pub/sub
type Feed struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewFeed creates a feed using channels named "<prefix>:<table>"
func NewFeed(client *redis.Client, prefix string, logger *slog.Logger) *Feed {
	return &Feed{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// ChannelName returns the pub/sub channel for table
func ChannelName(prefix string, table domain.Table) string {
	return fmt.Sprintf("%s:%s", prefix, table)
}

// Publish sends ev on its table's channel
func (f *Feed) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	if !ev.Table.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownTable, ev.Table)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling change event: %w", err)
	}
	if err := f.client.Publish(ctx, ChannelName(f.prefix, ev.Table), payload).Err(); err != nil {
		return fmt.Errorf("publishing change event: %w", err)
	}
	return nil
}

// Subscribe starts delivering table's change events to handler. It returns
// once Redis has confirmed the subscription.
func (f *Feed) Subscribe(ctx context.Context, table domain.Table, handler feed.Handler) (feed.Subscription, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTable, table)
	}

	channel := ChannelName(f.prefix, table)
	pubsub := f.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", channel, err)
	}

	sub := &pubsubSubscription{
		pubsub: pubsub,
		done:   make(chan struct{}),
	}
	go f.run(sub, table, handler)

	f.logger.Debug("subscribed to changes", "table", table, "channel", channel)
	return sub, nil
}

func (f *Feed) run(sub *pubsubSubscription, table domain.Table, handler feed.Handler) {
	defer close(sub.done)

	// Channel is closed by pubsub.Close
	for msg := range sub.pubsub.Channel() {
		ev, err := domain.DecodeChange([]byte(msg.Payload))
		if err != nil {
			f.logger.Warn("dropping malformed change", "channel", msg.Channel, "error", err)
			continue
		}
		if ev.Table != table {
			f.logger.Warn("dropping change for another table", "channel", msg.Channel, "table", ev.Table)
			continue
		}
		handler(ev)
	}
}

type pubsubSubscription struct {
	pubsub *redis.PubSub
	done   chan struct{}
	once   sync.Once
	err    error
}

func (s *pubsubSubscription) Close() error {
	s.once.Do(func() {
		s.err = s.pubsub.Close()
		<-s.done
	})
	return s.err
}
