// Package natskv implements pipegraph.Backend on NATS JetStream key-value
// buckets. Pipes are stored as JSON under their decimal id; ids come from a
// sequence key updated with compare-and-set.
package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/meikuraledutech/pipegraph"
)

const (
	PipesBucket   = "pipegraph_pipes"
	DaemonsBucket = "pipegraph_daemons"

	seqKey     = "seq"
	maxCASTry  = 10
	keyHistory = 5
)

// Store implements pipegraph.Backend using two KV buckets.
type Store struct {
	pipes   jetstream.KeyValue
	daemons jetstream.KeyValue
}

// New creates or opens the buckets on js.
func New(ctx context.Context, js jetstream.JetStream) (*Store, error) {
	pipes, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      PipesBucket,
		Description: "Published pipe stage lists",
		History:     keyHistory,
	})
	if err != nil {
		return nil, fmt.Errorf("pipegraph: create bucket %s: %w", PipesBucket, err)
	}
	daemons, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      DaemonsBucket,
		Description: "Registered client daemons",
	})
	if err != nil {
		return nil, fmt.Errorf("pipegraph: create bucket %s: %w", DaemonsBucket, err)
	}
	return &Store{pipes: pipes, daemons: daemons}, nil
}

// ListPipes returns all pipes ordered by id.
func (s *Store) ListPipes(ctx context.Context) ([]pipegraph.PipeConfig, error) {
	keys, err := listKeys(ctx, s.pipes)
	if err != nil {
		return nil, fmt.Errorf("pipegraph: list pipes: %w", err)
	}

	ids := make([]int64, 0, len(keys))
	for _, k := range keys {
		if k == seqKey {
			continue
		}
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)

	pipes := make([]pipegraph.PipeConfig, 0, len(ids))
	for _, id := range ids {
		p, err := s.getPipe(ctx, id)
		if errors.Is(err, pipegraph.ErrPipeNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		pipes = append(pipes, *p)
	}
	return pipes, nil
}

// CreatePipe allocates the next id and stores p under it.
func (s *Store) CreatePipe(ctx context.Context, p *pipegraph.PipeConfig) (int64, error) {
	id, err := s.nextID(ctx)
	if err != nil {
		return 0, err
	}

	c := *p
	c.ID = id
	data, err := json.Marshal(c)
	if err != nil {
		return 0, fmt.Errorf("pipegraph: encode pipe: %w", err)
	}
	if _, err := s.pipes.Create(ctx, pipeKey(id), data); err != nil {
		return 0, fmt.Errorf("pipegraph: create pipe %d: %w", id, err)
	}
	return id, nil
}

// UpdatePipe replaces an existing pipe.
// Returns ErrPipeNotFound if the pipe doesn't exist.
func (s *Store) UpdatePipe(ctx context.Context, p *pipegraph.PipeConfig) error {
	entry, err := s.pipes.Get(ctx, pipeKey(p.ID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return pipegraph.ErrPipeNotFound
		}
		return fmt.Errorf("pipegraph: get pipe %d: %w", p.ID, err)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("pipegraph: encode pipe: %w", err)
	}
	if _, err := s.pipes.Update(ctx, pipeKey(p.ID), data, entry.Revision()); err != nil {
		return fmt.Errorf("pipegraph: update pipe %d: %w", p.ID, err)
	}
	return nil
}

// DeletePipe removes a pipe.
// Returns ErrPipeNotFound if the pipe doesn't exist.
func (s *Store) DeletePipe(ctx context.Context, id int64) error {
	if _, err := s.pipes.Get(ctx, pipeKey(id)); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return pipegraph.ErrPipeNotFound
		}
		return fmt.Errorf("pipegraph: get pipe %d: %w", id, err)
	}
	if err := s.pipes.Delete(ctx, pipeKey(id)); err != nil {
		return fmt.Errorf("pipegraph: delete pipe %d: %w", id, err)
	}
	return nil
}

// ListDaemons returns registered daemons ordered by id.
func (s *Store) ListDaemons(ctx context.Context) ([]pipegraph.Daemon, error) {
	keys, err := listKeys(ctx, s.daemons)
	if err != nil {
		return nil, fmt.Errorf("pipegraph: list daemons: %w", err)
	}
	slices.Sort(keys)

	daemons := make([]pipegraph.Daemon, 0, len(keys))
	for _, k := range keys {
		entry, err := s.daemons.Get(ctx, k)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("pipegraph: get daemon %s: %w", k, err)
		}
		var d pipegraph.Daemon
		if err := json.Unmarshal(entry.Value(), &d); err != nil {
			return nil, fmt.Errorf("pipegraph: decode daemon %s: %w", k, err)
		}
		daemons = append(daemons, d)
	}
	return daemons, nil
}

// RegisterDaemon inserts or replaces a daemon by id.
func (s *Store) RegisterDaemon(ctx context.Context, d *pipegraph.Daemon) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("pipegraph: encode daemon: %w", err)
	}
	if _, err := s.daemons.Put(ctx, d.ID, data); err != nil {
		return fmt.Errorf("pipegraph: put daemon %s: %w", d.ID, err)
	}
	return nil
}

func (s *Store) getPipe(ctx context.Context, id int64) (*pipegraph.PipeConfig, error) {
	entry, err := s.pipes.Get(ctx, pipeKey(id))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, pipegraph.ErrPipeNotFound
		}
		return nil, fmt.Errorf("pipegraph: get pipe %d: %w", id, err)
	}
	var p pipegraph.PipeConfig
	if err := json.Unmarshal(entry.Value(), &p); err != nil {
		return nil, fmt.Errorf("pipegraph: decode pipe %d: %w", id, err)
	}
	return &p, nil
}

// nextID increments the sequence key with compare-and-set, retrying when
// another writer got there first.
func (s *Store) nextID(ctx context.Context) (int64, error) {
	for range maxCASTry {
		entry, err := s.pipes.Get(ctx, seqKey)
		switch {
		case errors.Is(err, jetstream.ErrKeyNotFound):
			if _, err := s.pipes.Create(ctx, seqKey, []byte("1")); err == nil {
				return 1, nil
			} else if !isConflict(err) {
				return 0, fmt.Errorf("pipegraph: init sequence: %w", err)
			}
			continue
		case err != nil:
			return 0, fmt.Errorf("pipegraph: read sequence: %w", err)
		}

		cur, err := strconv.ParseInt(string(entry.Value()), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("pipegraph: corrupt sequence %q: %w", entry.Value(), err)
		}
		next := cur + 1
		if _, err := s.pipes.Update(ctx, seqKey, []byte(strconv.FormatInt(next, 10)), entry.Revision()); err != nil {
			if isConflict(err) {
				continue
			}
			return 0, fmt.Errorf("pipegraph: bump sequence: %w", err)
		}
		return next, nil
	}
	return 0, fmt.Errorf("pipegraph: sequence contention after %d attempts", maxCASTry)
}

func listKeys(ctx context.Context, kv jetstream.KeyValue) ([]string, error) {
	keys, err := kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	return keys, err
}

// isConflict reports a lost compare-and-set: the key already exists or its
// revision moved.
func isConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "wrong last sequence") || strings.Contains(msg, "10071")
}

func pipeKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
