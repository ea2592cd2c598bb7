package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/score-tracker/internal/auth"
	"github.com/score-tracker/internal/domain"
	"github.com/score-tracker/internal/memstore"
)

type fakeRecorder struct {
	calls    int
	failures int
	err      error
	sessions []*auth.Session
	recorded []domain.ScoreSubmission
}

func (f *fakeRecorder) AddScore(ctx context.Context, gameID, playerID string, value float64) (domain.Score, error) {
	f.calls++
	f.sessions = append(f.sessions, auth.FromContext(ctx))
	if f.failures > 0 {
		f.failures--
		return domain.Score{}, f.err
	}
	f.recorded = append(f.recorded, domain.ScoreSubmission{GameID: gameID, PlayerID: playerID, Value: value})
	return domain.Score{ID: "s", GameID: gameID, PlayerID: playerID, Value: value}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecodeSubmission(t *testing.T) {
	sub, err := DecodeSubmission([]byte(`{"game_id":"g1","player_id":"p1","value":7.5}`))
	require.NoError(t, err)
	assert.Equal(t, domain.ScoreSubmission{GameID: "g1", PlayerID: "p1", Value: 7.5}, sub)

	_, err = DecodeSubmission([]byte(`{"player_id":"p1","value":1}`))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = DecodeSubmission([]byte(`not json`))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestIngestUsesServiceSession(t *testing.T) {
	rec := &fakeRecorder{}
	ing := NewIngestor(rec, 3, 0, discardLogger())

	result := ing.Ingest(context.Background(), []domain.ScoreSubmission{
		{GameID: "g1", PlayerID: "p1", Value: 1},
		{GameID: "g1", PlayerID: "p2", Value: 2},
	})

	assert.Equal(t, IngestResult{Recorded: 2}, result)
	require.Len(t, rec.sessions, 2)
	for _, s := range rec.sessions {
		assert.True(t, s.IsAuthenticated())
		assert.False(t, s.IsAdmin())
		assert.Equal(t, ServiceName, s.Username)
	}
}

func TestIngestRetriesStoreErrors(t *testing.T) {
	rec := &fakeRecorder{
		failures: 2,
		err:      &domain.StoreError{Op: "create", Table: domain.TableScores, Err: errors.New("connection reset")},
	}
	ing := NewIngestor(rec, 3, 0, discardLogger())

	result := ing.Ingest(context.Background(), []domain.ScoreSubmission{{GameID: "g1", PlayerID: "p1", Value: 4}})
	assert.Equal(t, IngestResult{Recorded: 1}, result)
	assert.Equal(t, 3, rec.calls)
}

func TestIngestGivesUp(t *testing.T) {
	notFound := &domain.StoreError{Op: "create", Table: domain.TableScores, Err: domain.ErrNotFound}
	rec := &fakeRecorder{failures: 5, err: notFound}
	ing := NewIngestor(rec, 3, 0, discardLogger())

	result := ing.Ingest(context.Background(), []domain.ScoreSubmission{{GameID: "g1", PlayerID: "p1"}})
	assert.Equal(t, IngestResult{Failed: 1}, result)
	assert.Equal(t, 1, rec.calls)

	rec = &fakeRecorder{failures: 5, err: &domain.StoreError{Err: errors.New("timeout")}}
	ing = NewIngestor(rec, 2, 0, discardLogger())
	result = ing.Ingest(context.Background(), []domain.ScoreSubmission{{GameID: "g1", PlayerID: "p1"}})
	assert.Equal(t, IngestResult{Failed: 1}, result)
	assert.Equal(t, 2, rec.calls)
}

func TestIngestDoesNotRetryRejectedRows(t *testing.T) {
	for name, cause := range map[string]error{
		"unknown game":   fmt.Errorf("scores.game_id %q: %w", "g9", memstore.ErrForeignKeyViolation),
		"unknown player": fmt.Errorf("%w: malformed player_id %q", domain.ErrInvalidReference, "p9"),
	} {
		t.Run(name, func(t *testing.T) {
			rec := &fakeRecorder{
				failures: 5,
				err:      &domain.StoreError{Op: "create", Table: domain.TableScores, Err: cause},
			}
			ing := NewIngestor(rec, 3, 0, discardLogger())

			result := ing.Ingest(context.Background(), []domain.ScoreSubmission{{GameID: "g9", PlayerID: "p9", Value: 1}})
			assert.Equal(t, IngestResult{Failed: 1}, result)
			assert.Equal(t, 1, rec.calls)
		})
	}
}
