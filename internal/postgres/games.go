package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/score-tracker/internal/domain"
)

const gameColumns = `id::text, name, date, created_at`

func scanGame(row pgx.Row) (domain.Game, error) {
	var g domain.Game
	err := row.Scan(&g.ID, &g.Name, &g.Date, &g.CreatedAt)
	return g, err
}

// ListGames retrieves every game in creation order
func (r *Repository) ListGames(ctx context.Context) ([]domain.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games ORDER BY created_at, id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing games: %w", err)
	}
	defer rows.Close()

	games := make([]domain.Game, 0)
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning game: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing games: %w", err)
	}
	return games, nil
}

// CreateGame inserts a game dated now and returns the stored row
func (r *Repository) CreateGame(ctx context.Context, name string) (domain.Game, error) {
	query := `
		INSERT INTO games (name, date)
		VALUES ($1, now())
		RETURNING ` + gameColumns
	g, err := scanGame(r.pool.QueryRow(ctx, query, name))
	if err != nil {
		return domain.Game{}, fmt.Errorf("creating game: %w", constraintError(err))
	}
	return g, nil
}

// DeleteGame removes a game and, through the foreign key, its scores
func (r *Repository) DeleteGame(ctx context.Context, id string) error {
	gameID, err := parseID(id)
	if err != nil {
		return err
	}

	result, err := r.pool.Exec(ctx, `DELETE FROM games WHERE id = $1`, gameID)
	if err != nil {
		return fmt.Errorf("deleting game: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
