package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/score-tracker/internal/domain"
)

func TestChannelName(t *testing.T) {
	assert.Equal(t, "players_changes", ChannelName(domain.TablePlayers))
	assert.Equal(t, "scores_changes", ChannelName(domain.TableScores))
}

func TestParseID(t *testing.T) {
	_, err := parseID("not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	id, err := parseID("8a4a8d4e-8f5c-4c1f-9a55-0b9f2a3d1e20")
	require.NoError(t, err)
	assert.Equal(t, "8a4a8d4e-8f5c-4c1f-9a55-0b9f2a3d1e20", id.String())
}

func TestParseReference(t *testing.T) {
	_, err := parseReference("game_id", "g1")
	assert.ErrorIs(t, err, domain.ErrInvalidReference)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestConstraintError(t *testing.T) {
	fk := fmt.Errorf("scanning: %w", &pgconn.PgError{Code: "23503", ConstraintName: "scores_game_id_fkey"})
	err := constraintError(fk)
	assert.ErrorIs(t, err, domain.ErrInvalidReference)
	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr))
	assert.Equal(t, "scores_game_id_fkey", pgErr.ConstraintName)

	assert.ErrorIs(t, constraintError(&pgconn.PgError{Code: "23514"}), domain.ErrInvalidName)

	other := errors.New("connection reset")
	assert.Equal(t, other, constraintError(other))
	assert.NotErrorIs(t, constraintError(&pgconn.PgError{Code: "40001"}), domain.ErrInvalidReference)
}

// newTestRepository connects to SCORE_TRACKER_TEST_DATABASE_URL. The tests
// below are skipped when it is not set.
func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	url := os.Getenv("SCORE_TRACKER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SCORE_TRACKER_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := &Repository{pool: pool, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	require.NoError(t, repo.RunMigrations(ctx))
	_, err = pool.Exec(ctx, `TRUNCATE scores, games, players`)
	require.NoError(t, err)
	return repo
}

func TestRepositoryCRUD(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	avatar := "https://example.com/ann.png"
	ann, err := repo.CreatePlayer(ctx, "Ann", &avatar)
	require.NoError(t, err)
	assert.NotEmpty(t, ann.ID)
	assert.False(t, ann.CreatedAt.IsZero())

	renamed, err := repo.UpdatePlayer(ctx, ann.ID, "Annie", nil)
	require.NoError(t, err)
	assert.Equal(t, "Annie", renamed.Name)
	require.NotNil(t, renamed.AvatarURL)
	assert.Equal(t, avatar, *renamed.AvatarURL)

	game, err := repo.CreateGame(ctx, "Catan")
	require.NoError(t, err)
	assert.False(t, game.Date.IsZero())

	score, err := repo.CreateScore(ctx, game.ID, ann.ID, 42)
	require.NoError(t, err)
	updated, err := repo.UpdateScore(ctx, score.ID, 43.5)
	require.NoError(t, err)
	assert.Equal(t, 43.5, updated.Value)

	scores, err := repo.ListScores(ctx)
	require.NoError(t, err)
	require.Len(t, scores, 1)

	// cascade through the foreign key
	require.NoError(t, repo.DeletePlayer(ctx, ann.ID))
	scores, err = repo.ListScores(ctx)
	require.NoError(t, err)
	assert.Empty(t, scores)

	assert.ErrorIs(t, repo.DeletePlayer(ctx, ann.ID), domain.ErrNotFound)
	_, err = repo.UpdateScore(ctx, score.ID, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.CreateScore(ctx, uuid.NewString(), ann.ID, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidReference)
	_, err = repo.CreatePlayer(ctx, "   ", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestListenerDeliversChanges(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	events := make(chan domain.ChangeEvent, 8)
	listener := NewListener(repo.Pool(), repo.logger)
	sub, err := listener.Subscribe(ctx, domain.TableGames, func(ev domain.ChangeEvent) { events <- ev })
	require.NoError(t, err)
	defer sub.Close()

	game, err := repo.CreateGame(ctx, "Azul")
	require.NoError(t, err)
	require.NoError(t, repo.DeleteGame(ctx, game.ID))

	next := func() domain.ChangeEvent {
		select {
		case ev := <-events:
			return ev
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for notification")
		}
		return domain.ChangeEvent{}
	}

	inserted := next()
	assert.Equal(t, domain.EventInsert, inserted.Type)
	row, err := domain.DecodeRow[domain.Game](inserted)
	require.NoError(t, err)
	assert.Equal(t, game.ID, row.ID)

	deleted := next()
	assert.Equal(t, domain.EventDelete, deleted.Type)
	assert.Equal(t, game.ID, deleted.OldID())

	require.NoError(t, sub.Close())
}

func TestListenerResyncsAfterReconnect(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	reopened := make(chan domain.Table, 1)
	listener := NewListener(repo.Pool(), repo.logger)
	listener.OnReconnect(func(table domain.Table) { reopened <- table })
	sub, err := listener.Subscribe(ctx, domain.TableScores, func(domain.ChangeEvent) {})
	require.NoError(t, err)
	defer sub.Close()

	_, err = repo.Pool().Exec(ctx, `
		SELECT pg_terminate_backend(pid) FROM pg_stat_activity
		WHERE query LIKE 'LISTEN%scores_changes%' AND pid <> pg_backend_pid()`)
	require.NoError(t, err)

	select {
	case table := <-reopened:
		assert.Equal(t, domain.TableScores, table)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for the listen connection to reopen")
	}
}
