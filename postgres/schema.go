package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS pipes (
    id           BIGSERIAL PRIMARY KEY,
    workspace_id BIGINT NOT NULL DEFAULT 0,
    stages       JSONB NOT NULL DEFAULT '[]',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS daemons (
    id           TEXT PRIMARY KEY,
    display_name TEXT NOT NULL DEFAULT '',
    sources      JSONB NOT NULL DEFAULT '[]',
    destinations JSONB NOT NULL DEFAULT '[]',
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_pipes_workspace_id ON pipes(workspace_id);
`

// CreateSchema creates the pipes and daemons tables if they don't exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// DropSchema drops the pipes and daemons tables.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS pipes, daemons CASCADE;`)
	return err
}
