// Package postgres implements pipegraph.Backend on PostgreSQL via pgx.
// Stages and daemon connector lists are stored as JSONB in their wire form.
package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements pipegraph.Backend using PostgreSQL via pgx.
type PGStore struct {
	db *pgxpool.Pool
}

// New creates a new PGStore backed by the given pgx connection pool.
func New(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
