// Package store provides the durable key/value state store backing a run.
// Every write carries a human-readable reason which is recorded to an
// append-only journal, so workflow progress can be audited after the fact.
//
// Two backends are provided: a file-based store (the default) and a
// Postgres store. Both satisfy the Store interface; the engine is the only
// writer.
package store

import (
	"context"

	"github.com/specdrive/specdrive/internal/errors"
)

// Store errors.
var (
	ErrNotFound      = errors.ErrNotFound
	ErrAlreadyExists = errors.ErrAlreadyExists
)

// Store is the durable key/value record of workflow progress.
// Keys use "/" as path separators.
type Store interface {
	// Save persists data under key. The reason is journaled, not stored
	// with the value.
	Save(ctx context.Context, key string, data []byte, reason string) error

	// SaveIfNotExists persists data only if the key does not already
	// exist. Returns ErrAlreadyExists otherwise. Used for write-once
	// artifacts such as the human gate.
	SaveIfNotExists(ctx context.Context, key string, data []byte, reason string) error

	// Load retrieves the data for key, or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)

	// Exists checks whether key exists without loading its data.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data for key, or returns ErrNotFound.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}
