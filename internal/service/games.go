package service

import (
	"context"

	"github.com/score-tracker/internal/domain"
)

// GameRepository is the remote games table. Games have no update.
type GameRepository interface {
	ListGames(ctx context.Context) ([]domain.Game, error)
	CreateGame(ctx context.Context, name string) (domain.Game, error)
	DeleteGame(ctx context.Context, id string) error
}

// GameService provides remote operations on games
type GameService struct {
	repo GameRepository
}

// NewGameService creates a new game service
func NewGameService(repo GameRepository) *GameService {
	return &GameService{repo: repo}
}

// FetchAll returns every game row
func (s *GameService) FetchAll(ctx context.Context) ([]domain.Game, error) {
	games, err := s.repo.ListGames(ctx)
	if err != nil {
		return nil, storeError("fetch", domain.TableGames, err)
	}
	return games, nil
}

// Create inserts a game; the store dates it at creation
func (s *GameService) Create(ctx context.Context, name string) (domain.Game, error) {
	g, err := s.repo.CreateGame(ctx, name)
	if err != nil {
		return domain.Game{}, storeError("create", domain.TableGames, err)
	}
	return g, nil
}

// Delete removes a game
func (s *GameService) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteGame(ctx, id); err != nil {
		return storeError("delete", domain.TableGames, err)
	}
	return nil
}
