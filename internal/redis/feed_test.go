package redis

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/score-tracker/internal/config"
	"github.com/score-tracker/internal/domain"
)

func TestChannelName(t *testing.T) {
	assert.Equal(t, "score-tracker:changes:players", ChannelName("score-tracker:changes", domain.TablePlayers))
	assert.Equal(t, "x:scores", ChannelName("x", domain.TableScores))
}

// testFeed connects to the Redis named by SCORE_TRACKER_TEST_REDIS_ADDR
func testFeed(t *testing.T) *Feed {
	t.Helper()
	addr := os.Getenv("SCORE_TRACKER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SCORE_TRACKER_TEST_REDIS_ADDR not set")
	}

	cfg := config.DefaultConfig().Redis
	cfg.Addr = addr
	client, err := NewClient(context.Background(), &cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	prefix := "score-tracker-test:" + time.Now().Format("150405.000000")
	return NewFeed(client, prefix, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFeedRoundTrip(t *testing.T) {
	f := testFeed(t)
	ctx := context.Background()

	received := make(chan domain.ChangeEvent, 1)
	sub, err := f.Subscribe(ctx, domain.TableScores, func(ev domain.ChangeEvent) {
		received <- ev
	})
	require.NoError(t, err)

	require.NoError(t, f.Publish(ctx, domain.DeleteChange(domain.TableScores, "s1")))

	select {
	case ev := <-received:
		assert.Equal(t, domain.EventDelete, ev.Type)
		assert.Equal(t, "s1", ev.OldID())
	case <-time.After(5 * time.Second):
		t.Fatal("no change received")
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
}

func TestFeedRejectsUnknownTable(t *testing.T) {
	f := NewFeed(nil, "p", slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := f.Subscribe(context.Background(), domain.Table("users"), nil)
	assert.ErrorIs(t, err, domain.ErrUnknownTable)
	assert.ErrorIs(t, f.Publish(context.Background(), domain.ChangeEvent{Table: "users"}), domain.ErrUnknownTable)
}
