package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/score-tracker/internal/domain"
)

const scoreColumns = `id::text, game_id::text, player_id::text, value, created_at`

func scanScore(row pgx.Row) (domain.Score, error) {
	var s domain.Score
	err := row.Scan(&s.ID, &s.GameID, &s.PlayerID, &s.Value, &s.CreatedAt)
	return s, err
}

// ListScores retrieves every score in creation order
func (r *Repository) ListScores(ctx context.Context) ([]domain.Score, error) {
	query := `SELECT ` + scoreColumns + ` FROM scores ORDER BY created_at, id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing scores: %w", err)
	}
	defer rows.Close()

	scores := make([]domain.Score, 0)
	for rows.Next() {
		s, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning score: %w", err)
		}
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing scores: %w", err)
	}
	return scores, nil
}

// CreateScore records a score. Unknown game or player ids are rejected by
// the foreign keys.
func (r *Repository) CreateScore(ctx context.Context, gameID, playerID string, value float64) (domain.Score, error) {
	game, err := parseReference("game_id", gameID)
	if err != nil {
		return domain.Score{}, err
	}
	player, err := parseReference("player_id", playerID)
	if err != nil {
		return domain.Score{}, err
	}

	query := `
		INSERT INTO scores (game_id, player_id, value)
		VALUES ($1, $2, $3)
		RETURNING ` + scoreColumns
	s, err := scanScore(r.pool.QueryRow(ctx, query, game, player, value))
	if err != nil {
		return domain.Score{}, fmt.Errorf("creating score: %w", constraintError(err))
	}
	return s, nil
}

// UpdateScore changes the value of a score
func (r *Repository) UpdateScore(ctx context.Context, id string, value float64) (domain.Score, error) {
	scoreID, err := parseID(id)
	if err != nil {
		return domain.Score{}, err
	}

	query := `
		UPDATE scores SET value = $2
		WHERE id = $1
		RETURNING ` + scoreColumns
	s, err := scanScore(r.pool.QueryRow(ctx, query, scoreID, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Score{}, domain.ErrNotFound
		}
		return domain.Score{}, fmt.Errorf("updating score: %w", err)
	}
	return s, nil
}

// DeleteScore removes a score
func (r *Repository) DeleteScore(ctx context.Context, id string) error {
	scoreID, err := parseID(id)
	if err != nil {
		return err
	}

	result, err := r.pool.Exec(ctx, `DELETE FROM scores WHERE id = $1`, scoreID)
	if err != nil {
		return fmt.Errorf("deleting score: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
