package service

import (
	"context"

	"github.com/score-tracker/internal/domain"
)

// ScoreRepository is the remote scores table
type ScoreRepository interface {
	ListScores(ctx context.Context) ([]domain.Score, error)
	CreateScore(ctx context.Context, gameID, playerID string, value float64) (domain.Score, error)
	UpdateScore(ctx context.Context, id string, value float64) (domain.Score, error)
	DeleteScore(ctx context.Context, id string) error
}

// ScoreService provides remote operations on scores
type ScoreService struct {
	repo ScoreRepository
}

// NewScoreService creates a new score service
func NewScoreService(repo ScoreRepository) *ScoreService {
	return &ScoreService{repo: repo}
}

// FetchAll returns every score row
func (s *ScoreService) FetchAll(ctx context.Context) ([]domain.Score, error) {
	scores, err := s.repo.ListScores(ctx)
	if err != nil {
		return nil, storeError("fetch", domain.TableScores, err)
	}
	return scores, nil
}

// Create records a score for a player in a game
func (s *ScoreService) Create(ctx context.Context, gameID, playerID string, value float64) (domain.Score, error) {
	score, err := s.repo.CreateScore(ctx, gameID, playerID, value)
	if err != nil {
		return domain.Score{}, storeError("create", domain.TableScores, err)
	}
	return score, nil
}

// Update changes a score's value
func (s *ScoreService) Update(ctx context.Context, id string, value float64) (domain.Score, error) {
	score, err := s.repo.UpdateScore(ctx, id, value)
	if err != nil {
		return domain.Score{}, storeError("update", domain.TableScores, err)
	}
	return score, nil
}

// Delete removes a score
func (s *ScoreService) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteScore(ctx, id); err != nil {
		return storeError("delete", domain.TableScores, err)
	}
	return nil
}
