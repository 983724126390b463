package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meikuraledutech/pipegraph"
)

// ListDaemons returns registered daemons ordered by id.
func (s *PGStore) ListDaemons(ctx context.Context) ([]pipegraph.Daemon, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, display_name, sources, destinations FROM daemons ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("pipegraph: list daemons: %w", err)
	}
	defer rows.Close()

	daemons := []pipegraph.Daemon{}
	for rows.Next() {
		var (
			d        pipegraph.Daemon
			src, dst []byte
		)
		if err := rows.Scan(&d.ID, &d.DisplayName, &src, &dst); err != nil {
			return nil, fmt.Errorf("pipegraph: scan daemon: %w", err)
		}
		if err := json.Unmarshal(src, &d.Sources); err != nil {
			return nil, fmt.Errorf("pipegraph: decode daemon %s sources: %w", d.ID, err)
		}
		if err := json.Unmarshal(dst, &d.Destinations); err != nil {
			return nil, fmt.Errorf("pipegraph: decode daemon %s destinations: %w", d.ID, err)
		}
		daemons = append(daemons, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pipegraph: rows daemons: %w", err)
	}

	return daemons, nil
}

// RegisterDaemon inserts a daemon or replaces the one with the same id.
func (s *PGStore) RegisterDaemon(ctx context.Context, d *pipegraph.Daemon) error {
	src, err := json.Marshal(nonNil(d.Sources))
	if err != nil {
		return fmt.Errorf("pipegraph: encode sources: %w", err)
	}
	dst, err := json.Marshal(nonNil(d.Destinations))
	if err != nil {
		return fmt.Errorf("pipegraph: encode destinations: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO daemons (id, display_name, sources, destinations) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    sources = EXCLUDED.sources,
		    destinations = EXCLUDED.destinations,
		    updated_at = NOW()`,
		d.ID, d.DisplayName, src, dst,
	)
	if err != nil {
		return fmt.Errorf("pipegraph: upsert daemon: %w", err)
	}
	return nil
}

func nonNil(s []pipegraph.Stage) []pipegraph.Stage {
	if s == nil {
		return []pipegraph.Stage{}
	}
	return s
}
