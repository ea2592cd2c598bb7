package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/score-tracker/internal/domain"
)

const playerColumns = `id::text, name, avatar_url, created_at`

func scanPlayer(row pgx.Row) (domain.Player, error) {
	var p domain.Player
	err := row.Scan(&p.ID, &p.Name, &p.AvatarURL, &p.CreatedAt)
	return p, err
}

// ListPlayers retrieves every player in creation order
func (r *Repository) ListPlayers(ctx context.Context) ([]domain.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players ORDER BY created_at, id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	defer rows.Close()

	players := make([]domain.Player, 0)
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning player: %w", err)
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	return players, nil
}

// CreatePlayer inserts a player and returns the stored row
func (r *Repository) CreatePlayer(ctx context.Context, name string, avatarURL *string) (domain.Player, error) {
	query := `
		INSERT INTO players (name, avatar_url)
		VALUES ($1, $2)
		RETURNING ` + playerColumns
	p, err := scanPlayer(r.pool.QueryRow(ctx, query, name, avatarURL))
	if err != nil {
		return domain.Player{}, fmt.Errorf("creating player: %w", constraintError(err))
	}
	return p, nil
}

// UpdatePlayer renames a player. A nil avatarURL keeps the current avatar.
func (r *Repository) UpdatePlayer(ctx context.Context, id, name string, avatarURL *string) (domain.Player, error) {
	playerID, err := parseID(id)
	if err != nil {
		return domain.Player{}, err
	}

	query := `
		UPDATE players
		SET name = $2, avatar_url = COALESCE($3, avatar_url)
		WHERE id = $1
		RETURNING ` + playerColumns
	p, err := scanPlayer(r.pool.QueryRow(ctx, query, playerID, name, avatarURL))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Player{}, domain.ErrNotFound
		}
		return domain.Player{}, fmt.Errorf("updating player: %w", constraintError(err))
	}
	return p, nil
}

// DeletePlayer removes a player. Its scores go with it through the foreign key.
func (r *Repository) DeletePlayer(ctx context.Context, id string) error {
	playerID, err := parseID(id)
	if err != nil {
		return err
	}

	result, err := r.pool.Exec(ctx, `DELETE FROM players WHERE id = $1`, playerID)
	if err != nil {
		return fmt.Errorf("deleting player: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
