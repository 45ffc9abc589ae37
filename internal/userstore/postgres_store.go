package userstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists users in a PostgreSQL table, for server-side
// embedders that manage sessions for many browser clients.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS oneauth_users (
    key TEXT PRIMARY KEY,
    username TEXT NOT NULL,
    address TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// NewPostgresStore connects to Postgres using the DSN and ensures the table
// exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Get(ctx context.Context, key string) (*User, error) {
	row := p.pool.QueryRow(ctx, `
SELECT username, address
FROM oneauth_users
WHERE key = $1
`, key)

	var user User
	if err := row.Scan(&user.Username, &user.Address); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if !user.Valid() {
		return nil, nil
	}
	return &user, nil
}

func (p *PostgresStore) Save(ctx context.Context, key string, user User) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO oneauth_users (key, username, address, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (key) DO UPDATE
SET username = EXCLUDED.username,
    address = EXCLUDED.address,
    updated_at = now()
`, key, user.Username, user.Address)
	return err
}

func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM oneauth_users WHERE key = $1`, key)
	return err
}
