package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/specdrive/specdrive/internal/errors"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS specdrive_state (
    key        TEXT PRIMARY KEY,
    data       BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS specdrive_journal (
    id         BIGSERIAL PRIMARY KEY,
    key        TEXT NOT NULL,
    reason     TEXT NOT NULL,
    written_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PGStore is a Postgres-backed implementation of Store, for runs that need
// state to survive loss of the local filesystem (ephemeral build VMs).
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects to Postgres with the given DSN and bootstraps the
// schema.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.NewStateError("failed to connect to postgres", err).WithBackend("postgres")
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, errors.NewStateError("failed to bootstrap schema", err).WithBackend("postgres")
	}
	return &PGStore{pool: pool}, nil
}

// Save upserts data under key and journals the reason in one transaction.
func (ps *PGStore) Save(ctx context.Context, key string, data []byte, reason string) error {
	err := pgx.BeginFunc(ctx, ps.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO specdrive_state (key, data, updated_at) VALUES ($1, $2, now())
			 ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
			key, data); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO specdrive_journal (key, reason) VALUES ($1, $2)`, key, reason)
		return err
	})
	if err != nil {
		return errors.NewStateError("failed to save value", err).WithKey(key).WithBackend("postgres")
	}
	return nil
}

// SaveIfNotExists inserts data only if the key does not already exist.
func (ps *PGStore) SaveIfNotExists(ctx context.Context, key string, data []byte, reason string) error {
	var inserted bool
	err := pgx.BeginFunc(ctx, ps.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO specdrive_state (key, data) VALUES ($1, $2)
			 ON CONFLICT (key) DO NOTHING`, key, data)
		if err != nil {
			return err
		}
		inserted = tag.RowsAffected() > 0
		if !inserted {
			return nil
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO specdrive_journal (key, reason) VALUES ($1, $2)`, key, reason)
		return err
	})
	if err != nil {
		return errors.NewStateError("failed to save value", err).WithKey(key).WithBackend("postgres")
	}
	if !inserted {
		return ErrAlreadyExists
	}
	return nil
}

// Load retrieves the data for key.
func (ps *PGStore) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := ps.pool.QueryRow(ctx,
		`SELECT data FROM specdrive_state WHERE key = $1`, key).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.NewStateError("failed to load value", err).WithKey(key).WithBackend("postgres")
	}
	return data, nil
}

// Exists checks whether key exists without loading its data.
func (ps *PGStore) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := ps.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM specdrive_state WHERE key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, errors.NewStateError("failed to check key", err).WithKey(key).WithBackend("postgres")
	}
	return exists, nil
}

// List returns all keys with the given prefix, in key order.
func (ps *PGStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := ps.pool.Query(ctx,
		`SELECT key FROM specdrive_state WHERE key LIKE $1 || '%' ORDER BY key`, prefix)
	if err != nil {
		return nil, errors.NewStateError("failed to list keys", err).WithBackend("postgres")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errors.NewStateError("failed to scan key", err).WithBackend("postgres")
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStateError("failed to list keys", err).WithBackend("postgres")
	}
	return keys, nil
}

// Delete removes the data for key.
func (ps *PGStore) Delete(ctx context.Context, key string) error {
	tag, err := ps.pool.Exec(ctx,
		`DELETE FROM specdrive_state WHERE key = $1`, key)
	if err != nil {
		return errors.NewStateError("failed to delete value", err).WithKey(key).WithBackend("postgres")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Close releases the connection pool.
func (ps *PGStore) Close() error {
	ps.pool.Close()
	return nil
}
