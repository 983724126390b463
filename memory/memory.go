// Package memory is an in-process pipegraph.Backend. The server uses it when
// no database is configured, and tests use it as a backend double.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/meikuraledutech/pipegraph"
)

// Store implements pipegraph.Backend with maps guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	nextID  int64
	pipes   map[int64]pipegraph.PipeConfig
	daemons map[string]pipegraph.Daemon
}

// New returns an empty store. Pipe ids start at 1.
func New() *Store {
	return &Store{
		nextID:  1,
		pipes:   map[int64]pipegraph.PipeConfig{},
		daemons: map[string]pipegraph.Daemon{},
	}
}

// ListPipes returns all pipes ordered by id.
func (s *Store) ListPipes(_ context.Context) ([]pipegraph.PipeConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []pipegraph.PipeConfig{}
	for _, id := range slices.Sorted(maps.Keys(s.pipes)) {
		out = append(out, clonePipe(s.pipes[id]))
	}
	return out, nil
}

// CreatePipe stores p under a newly allocated id and returns it.
func (s *Store) CreatePipe(_ context.Context, p *pipegraph.PipeConfig) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := clonePipe(*p)
	c.ID = s.nextID
	s.nextID++
	s.pipes[c.ID] = c
	return c.ID, nil
}

// UpdatePipe replaces an existing pipe.
// Returns pipegraph.ErrPipeNotFound if it doesn't exist.
func (s *Store) UpdatePipe(_ context.Context, p *pipegraph.PipeConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pipes[p.ID]; !ok {
		return pipegraph.ErrPipeNotFound
	}
	s.pipes[p.ID] = clonePipe(*p)
	return nil
}

// DeletePipe removes a pipe.
// Returns pipegraph.ErrPipeNotFound if it doesn't exist.
func (s *Store) DeletePipe(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pipes[id]; !ok {
		return pipegraph.ErrPipeNotFound
	}
	delete(s.pipes, id)
	return nil
}

// ListDaemons returns registered daemons ordered by id.
func (s *Store) ListDaemons(_ context.Context) ([]pipegraph.Daemon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []pipegraph.Daemon{}
	for _, id := range slices.Sorted(maps.Keys(s.daemons)) {
		out = append(out, s.daemons[id])
	}
	return out, nil
}

// RegisterDaemon inserts or replaces a daemon by id.
func (s *Store) RegisterDaemon(_ context.Context, d *pipegraph.Daemon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.daemons[d.ID] = *d
	return nil
}

func clonePipe(p pipegraph.PipeConfig) pipegraph.PipeConfig {
	stages := make([]pipegraph.Stage, len(p.Stages))
	for i, st := range p.Stages {
		stages[i] = st.Clone()
	}
	p.Stages = stages
	return p
}
