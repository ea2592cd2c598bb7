package service

import (
	"context"

	"github.com/score-tracker/internal/domain"
)

// PlayerRepository is the remote players table
type PlayerRepository interface {
	ListPlayers(ctx context.Context) ([]domain.Player, error)
	CreatePlayer(ctx context.Context, name string, avatarURL *string) (domain.Player, error)
	UpdatePlayer(ctx context.Context, id, name string, avatarURL *string) (domain.Player, error)
	DeletePlayer(ctx context.Context, id string) error
}

// PlayerService provides remote operations on players
type PlayerService struct {
	repo PlayerRepository
}

// NewPlayerService creates a new player service
func NewPlayerService(repo PlayerRepository) *PlayerService {
	return &PlayerService{repo: repo}
}

// FetchAll returns every player row
func (s *PlayerService) FetchAll(ctx context.Context) ([]domain.Player, error) {
	players, err := s.repo.ListPlayers(ctx)
	if err != nil {
		return nil, storeError("fetch", domain.TablePlayers, err)
	}
	return players, nil
}

// Create inserts a player. The store assigns id and creation time.
func (s *PlayerService) Create(ctx context.Context, name string, avatarURL *string) (domain.Player, error) {
	p, err := s.repo.CreatePlayer(ctx, name, avatarURL)
	if err != nil {
		return domain.Player{}, storeError("create", domain.TablePlayers, err)
	}
	return p, nil
}

// Update changes a player's name and, when avatarURL is non-nil, avatar
func (s *PlayerService) Update(ctx context.Context, id, name string, avatarURL *string) (domain.Player, error) {
	p, err := s.repo.UpdatePlayer(ctx, id, name, avatarURL)
	if err != nil {
		return domain.Player{}, storeError("update", domain.TablePlayers, err)
	}
	return p, nil
}

// Delete removes a player
func (s *PlayerService) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeletePlayer(ctx, id); err != nil {
		return storeError("delete", domain.TablePlayers, err)
	}
	return nil
}
