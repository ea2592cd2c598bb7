// Package memstore is an in-process stand-in for the PostgreSQL store. It
// keeps the same constraints (non-empty names, score foreign keys with
// cascading deletes) and publishes the same change events as the database
// triggers. The server uses it with the memory feed driver.
package memstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/score-tracker/internal/collection"
	"github.com/score-tracker/internal/domain"
	"github.com/score-tracker/internal/feed"
)

// Constraint violations. Each matches the domain error it stands for.
var (
	ErrCheckViolation      = fmt.Errorf("check constraint violated: %w", domain.ErrInvalidName)
	ErrForeignKeyViolation = fmt.Errorf("foreign key constraint violated: %w", domain.ErrInvalidReference)
)

// Repository holds the three tables in memory
type Repository struct {
	mu        sync.Mutex
	players   *collection.Collection[domain.Player]
	games     *collection.Collection[domain.Game]
	scores    *collection.Collection[domain.Score]
	publisher feed.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewRepository creates an empty store. Changes are published to publisher
// when it is non-nil.
func NewRepository(publisher feed.Publisher, logger *slog.Logger) *Repository {
	return &Repository{
		players:   collection.New(domain.TablePlayers, domain.PlayerID),
		games:     collection.New(domain.TableGames, domain.GameID),
		scores:    collection.New(domain.TableScores, domain.ScoreID),
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ListPlayers retrieves every player in creation order
func (r *Repository) ListPlayers(_ context.Context) ([]domain.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.players.Items(), nil
}

// CreatePlayer inserts a player
func (r *Repository) CreatePlayer(ctx context.Context, name string, avatarURL *string) (domain.Player, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Player{}, fmt.Errorf("players.name: %w", ErrCheckViolation)
	}

	r.mu.Lock()
	p := domain.Player{ID: uuid.NewString(), Name: name, AvatarURL: avatarURL, CreatedAt: r.now()}
	r.players.Upsert(p)
	r.mu.Unlock()

	r.publishRow(ctx, domain.EventInsert, domain.TablePlayers, p)
	return p, nil
}

// UpdatePlayer renames a player. A nil avatarURL keeps the current avatar.
func (r *Repository) UpdatePlayer(ctx context.Context, id, name string, avatarURL *string) (domain.Player, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Player{}, fmt.Errorf("players.name: %w", ErrCheckViolation)
	}

	r.mu.Lock()
	p, ok := r.players.Get(id)
	if !ok {
		r.mu.Unlock()
		return domain.Player{}, domain.ErrNotFound
	}
	p.Name = name
	if avatarURL != nil {
		p.AvatarURL = avatarURL
	}
	r.players.Upsert(p)
	r.mu.Unlock()

	r.publishRow(ctx, domain.EventUpdate, domain.TablePlayers, p)
	return p, nil
}

// DeletePlayer removes a player and cascades to its scores
func (r *Repository) DeletePlayer(ctx context.Context, id string) error {
	r.mu.Lock()
	if !r.players.Remove(id) {
		r.mu.Unlock()
		return domain.ErrNotFound
	}
	cascaded := r.scores.RemoveWhere(func(s domain.Score) bool { return s.PlayerID == id })
	r.mu.Unlock()

	r.publishDeletes(ctx, domain.TableScores, cascaded...)
	r.publishDeletes(ctx, domain.TablePlayers, id)
	return nil
}

// ListGames retrieves every game in creation order
func (r *Repository) ListGames(_ context.Context) ([]domain.Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.games.Items(), nil
}

// CreateGame inserts a game dated now
func (r *Repository) CreateGame(ctx context.Context, name string) (domain.Game, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Game{}, fmt.Errorf("games.name: %w", ErrCheckViolation)
	}

	r.mu.Lock()
	now := r.now()
	g := domain.Game{ID: uuid.NewString(), Name: name, Date: now, CreatedAt: now}
	r.games.Upsert(g)
	r.mu.Unlock()

	r.publishRow(ctx, domain.EventInsert, domain.TableGames, g)
	return g, nil
}

// DeleteGame removes a game and cascades to its scores
func (r *Repository) DeleteGame(ctx context.Context, id string) error {
	r.mu.Lock()
	if !r.games.Remove(id) {
		r.mu.Unlock()
		return domain.ErrNotFound
	}
	cascaded := r.scores.RemoveWhere(func(s domain.Score) bool { return s.GameID == id })
	r.mu.Unlock()

	r.publishDeletes(ctx, domain.TableScores, cascaded...)
	r.publishDeletes(ctx, domain.TableGames, id)
	return nil
}

// ListScores retrieves every score in creation order
func (r *Repository) ListScores(_ context.Context) ([]domain.Score, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scores.Items(), nil
}

// CreateScore records a score; game and player must exist
func (r *Repository) CreateScore(ctx context.Context, gameID, playerID string, value float64) (domain.Score, error) {
	r.mu.Lock()
	if _, ok := r.games.Get(gameID); !ok {
		r.mu.Unlock()
		return domain.Score{}, fmt.Errorf("scores.game_id %q: %w", gameID, ErrForeignKeyViolation)
	}
	if _, ok := r.players.Get(playerID); !ok {
		r.mu.Unlock()
		return domain.Score{}, fmt.Errorf("scores.player_id %q: %w", playerID, ErrForeignKeyViolation)
	}
	s := domain.Score{ID: uuid.NewString(), GameID: gameID, PlayerID: playerID, Value: value, CreatedAt: r.now()}
	r.scores.Upsert(s)
	r.mu.Unlock()

	r.publishRow(ctx, domain.EventInsert, domain.TableScores, s)
	return s, nil
}

// UpdateScore changes the value of a score
func (r *Repository) UpdateScore(ctx context.Context, id string, value float64) (domain.Score, error) {
	r.mu.Lock()
	s, ok := r.scores.Get(id)
	if !ok {
		r.mu.Unlock()
		return domain.Score{}, domain.ErrNotFound
	}
	s.Value = value
	r.scores.Upsert(s)
	r.mu.Unlock()

	r.publishRow(ctx, domain.EventUpdate, domain.TableScores, s)
	return s, nil
}

// DeleteScore removes a score
func (r *Repository) DeleteScore(ctx context.Context, id string) error {
	r.mu.Lock()
	removed := r.scores.Remove(id)
	r.mu.Unlock()
	if !removed {
		return domain.ErrNotFound
	}

	r.publishDeletes(ctx, domain.TableScores, id)
	return nil
}

func (r *Repository) publishRow(ctx context.Context, typ domain.EventType, table domain.Table, row any) {
	if r.publisher == nil {
		return
	}
	ev, err := domain.NewChange(typ, table, row)
	if err != nil {
		r.logger.Error("failed to build change event", "table", table, "error", err)
		return
	}
	r.publish(ctx, ev)
}

func (r *Repository) publishDeletes(ctx context.Context, table domain.Table, ids ...string) {
	if r.publisher == nil {
		return
	}
	for _, id := range ids {
		r.publish(ctx, domain.DeleteChange(table, id))
	}
}

func (r *Repository) publish(ctx context.Context, ev domain.ChangeEvent) {
	if err := r.publisher.Publish(ctx, ev); err != nil {
		r.logger.Warn("failed to publish change event", "table", ev.Table, "type", ev.Type, "error", err)
	}
}
