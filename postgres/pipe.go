package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meikuraledutech/pipegraph"
)

// ListPipes returns all pipes ordered by id.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListPipes(ctx context.Context) ([]pipegraph.PipeConfig, error) {
	rows, err := s.db.Query(ctx, `SELECT id, workspace_id, stages FROM pipes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("pipegraph: list pipes: %w", err)
	}
	defer rows.Close()

	pipes := []pipegraph.PipeConfig{}
	for rows.Next() {
		var (
			p   pipegraph.PipeConfig
			raw []byte
		)
		if err := rows.Scan(&p.ID, &p.WorkspaceID, &raw); err != nil {
			return nil, fmt.Errorf("pipegraph: scan pipe: %w", err)
		}
		if err := json.Unmarshal(raw, &p.Stages); err != nil {
			return nil, fmt.Errorf("pipegraph: decode pipe %d: %w", p.ID, err)
		}
		pipes = append(pipes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pipegraph: rows pipes: %w", err)
	}

	return pipes, nil
}

// CreatePipe inserts a pipe and returns the id allocated by the database.
// p.ID is ignored.
func (s *PGStore) CreatePipe(ctx context.Context, p *pipegraph.PipeConfig) (int64, error) {
	stages, err := json.Marshal(p.Stages)
	if err != nil {
		return 0, fmt.Errorf("pipegraph: encode stages: %w", err)
	}

	var id int64
	err = s.db.QueryRow(ctx,
		`INSERT INTO pipes (workspace_id, stages) VALUES ($1, $2) RETURNING id`,
		p.WorkspaceID, stages,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("pipegraph: insert pipe: %w", err)
	}

	return id, nil
}

// UpdatePipe replaces the workspace and stages of an existing pipe.
// Returns ErrPipeNotFound if the pipe doesn't exist.
func (s *PGStore) UpdatePipe(ctx context.Context, p *pipegraph.PipeConfig) error {
	stages, err := json.Marshal(p.Stages)
	if err != nil {
		return fmt.Errorf("pipegraph: encode stages: %w", err)
	}

	ct, err := s.db.Exec(ctx,
		`UPDATE pipes SET workspace_id = $1, stages = $2, updated_at = NOW() WHERE id = $3`,
		p.WorkspaceID, stages, p.ID,
	)
	if err != nil {
		return fmt.Errorf("pipegraph: update pipe: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pipegraph.ErrPipeNotFound
	}
	return nil
}

// DeletePipe deletes a pipe by its id.
// Returns ErrPipeNotFound if the pipe doesn't exist.
func (s *PGStore) DeletePipe(ctx context.Context, id int64) error {
	ct, err := s.db.Exec(ctx, `DELETE FROM pipes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pipegraph: delete pipe: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pipegraph.ErrPipeNotFound
	}
	return nil
}

// GetPipe fetches a single pipe by its id.
// Returns nil, nil if not found.
func (s *PGStore) GetPipe(ctx context.Context, id int64) (*pipegraph.PipeConfig, error) {
	var (
		p   pipegraph.PipeConfig
		raw []byte
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, workspace_id, stages FROM pipes WHERE id = $1`, id,
	).Scan(&p.ID, &p.WorkspaceID, &raw)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("pipegraph: get pipe: %w", err)
	}
	if err := json.Unmarshal(raw, &p.Stages); err != nil {
		return nil, fmt.Errorf("pipegraph: decode pipe %d: %w", p.ID, err)
	}

	return &p, nil
}
