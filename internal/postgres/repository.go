package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/score-tracker/internal/config"
	"github.com/score-tracker/internal/domain"
)

// Repository provides PostgreSQL-based access to the players, games and
// scores tables
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks that the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations creates the tables and installs the change notification
// triggers. Every row change is published with pg_notify on the channel
// "<table>_changes".
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
		`CREATE TABLE IF NOT EXISTS players (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name TEXT NOT NULL CHECK (length(btrim(name)) > 0),
			avatar_url TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS games (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name TEXT NOT NULL CHECK (length(btrim(name)) > 0),
			date TIMESTAMPTZ NOT NULL DEFAULT now(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS scores (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			game_id UUID NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			player_id UUID NOT NULL REFERENCES players(id) ON DELETE CASCADE,
			value DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_game ON scores(game_id)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_player ON scores(player_id)`,
		`CREATE OR REPLACE FUNCTION notify_row_change() RETURNS trigger AS $$
		DECLARE
			payload json;
		BEGIN
			IF TG_OP = 'DELETE' THEN
				payload := json_build_object(
					'eventType', TG_OP,
					'table', TG_TABLE_NAME,
					'new', NULL,
					'old', json_build_object('id', OLD.id));
			ELSE
				payload := json_build_object(
					'eventType', TG_OP,
					'table', TG_TABLE_NAME,
					'new', row_to_json(NEW),
					'old', CASE WHEN TG_OP = 'UPDATE' THEN json_build_object('id', OLD.id) END);
			END IF;
			PERFORM pg_notify(TG_TABLE_NAME || '_changes', payload::text);
			RETURN NULL;
		END;
		$$ LANGUAGE plpgsql`,
	}
	for _, table := range domain.Tables {
		migrations = append(migrations,
			fmt.Sprintf(`DROP TRIGGER IF EXISTS %[1]s_notify ON %[1]s`, table),
			fmt.Sprintf(`CREATE TRIGGER %[1]s_notify AFTER INSERT OR UPDATE OR DELETE ON %[1]s
				FOR EACH ROW EXECUTE FUNCTION notify_row_change()`, table),
		)
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// ChannelName returns the NOTIFY channel of a table
func ChannelName(table domain.Table) string {
	return string(table) + "_changes"
}

// parseID converts an id to a UUID. A malformed id cannot match any row.
func parseID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed id %q", domain.ErrNotFound, id)
	}
	return parsed, nil
}

// parseReference converts a foreign key to a UUID. A malformed key cannot
// reference any row.
func parseReference(column, id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed %s %q", domain.ErrInvalidReference, column, id)
	}
	return parsed, nil
}

// SQLSTATE codes of the constraints the schema declares
const (
	foreignKeyViolation = "23503"
	checkViolation      = "23514"
)

// constraintError maps constraint violations onto domain errors and returns
// any other error unchanged
func constraintError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case foreignKeyViolation:
		return fmt.Errorf("%w: %w", domain.ErrInvalidReference, err)
	case checkViolation:
		return fmt.Errorf("%w: %w", domain.ErrInvalidName, err)
	}
	return err
}
