package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/score-tracker/internal/domain"
	"github.com/score-tracker/internal/feed"
)

// reconnectDelay is the pause before a dropped LISTEN connection is reopened
const reconnectDelay = time.Second

// Listener is a change feed backed by LISTEN/NOTIFY. Each subscription holds
// one dedicated connection taken out of the pool. NOTIFY is not queued for
// absent listeners, so whatever was committed while a connection was down is
// lost; the reconnect hook lets the consumer reload the table.
type Listener struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	mu          sync.RWMutex
	onReconnect func(table domain.Table)
}

// NewListener creates a LISTEN/NOTIFY feed over pool
func NewListener(pool *pgxpool.Pool, logger *slog.Logger) *Listener {
	return &Listener{
		pool:   pool,
		logger: logger,
	}
}

// OnReconnect sets fn to be called after a dropped LISTEN connection of
// table is reopened. Notifications arriving after the call are delivered
// once fn returns.
func (l *Listener) OnReconnect(fn func(table domain.Table)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReconnect = fn
}

func (l *Listener) reconnected(table domain.Table) {
	l.mu.RLock()
	fn := l.onReconnect
	l.mu.RUnlock()
	if fn != nil {
		fn(table)
	}
}

// Subscribe starts listening on the table's channel. The first LISTEN must
// succeed; later connection losses are retried in the background.
func (l *Listener) Subscribe(ctx context.Context, table domain.Table, handler feed.Handler) (feed.Subscription, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTable, table)
	}

	conn, err := l.listen(ctx, table)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sub := &listenSubscription{
		listener: l,
		table:    table,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go sub.run(runCtx, conn, handler)

	l.logger.Debug("listening for changes", "table", table, "channel", ChannelName(table))
	return sub, nil
}

// listen takes a connection out of the pool and issues LISTEN on it
func (l *Listener) listen(ctx context.Context, table domain.Table) (*pgx.Conn, error) {
	pooled, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring listen connection: %w", err)
	}
	conn := pooled.Hijack()

	channel := pgx.Identifier{ChannelName(table)}.Sanitize()
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		conn.Close(context.Background())
		return nil, fmt.Errorf("listening on %s: %w", channel, err)
	}
	return conn, nil
}

type listenSubscription struct {
	listener *Listener
	table    domain.Table
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

func (s *listenSubscription) run(ctx context.Context, conn *pgx.Conn, handler feed.Handler) {
	defer close(s.done)
	logger := s.listener.logger.With("table", s.table)
	var lostAt time.Time

	for {
		if conn == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			var err error
			conn, err = s.listener.listen(ctx, s.table)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("failed to reopen listen connection", "error", err)
				}
				conn = nil
				continue
			}
			logger.Warn("listen connection reopened, changes made while it was down were missed", "down_since", lostAt)
			s.listener.reconnected(s.table)
		}

		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			conn.Close(context.Background())
			conn = nil
			if ctx.Err() != nil {
				return
			}
			lostAt = time.Now()
			logger.Warn("listen connection lost, mirror may go stale until it is reopened", "error", err)
			continue
		}

		ev, err := domain.DecodeChange([]byte(n.Payload))
		if err != nil {
			logger.Warn("dropping malformed notification", "error", err)
			continue
		}
		handler(ev)
	}
}

func (s *listenSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		s.listener.logger.Debug("stopped listening for changes", "table", s.table)
	})
	return nil
}
