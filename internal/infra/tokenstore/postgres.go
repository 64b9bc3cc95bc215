package tokenstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/mealplanner/internal/domain/session"
)

// PostgresStore persists the token in the client_state table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the client_state table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS client_state (
			name       TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

func (s *PostgresStore) Load(ctx context.Context) (string, bool, error) {
	var token string
	err := s.pool.QueryRow(ctx, `
		SELECT value
		FROM client_state
		WHERE name = $1
	`, Name).Scan(&token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return token, true, nil
}

func (s *PostgresStore) Save(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO client_state (name, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, Name, token)
	return err
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM client_state WHERE name = $1`, Name)
	return err
}

var _ session.TokenStore = (*PostgresStore)(nil)
