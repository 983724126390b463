// Package editor owns one editing session: it loads the backend's pipes into
// a graph store, applies user actions to it and publishes the result.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/meikuraledutech/pipegraph"
	"github.com/meikuraledutech/pipegraph/catalog"
	"github.com/meikuraledutech/pipegraph/graphstore"
	"github.com/meikuraledutech/pipegraph/materialize"
	"github.com/meikuraledutech/pipegraph/metrics"
	"github.com/meikuraledutech/pipegraph/publish"
)

// Session ties a graph store to a backend and a catalog.
type Session struct {
	catalog     *catalog.Catalog
	backend     pipegraph.Backend
	store       *graphstore.Store
	publisher   *publish.Publisher
	workspaceID int64
	logger      *slog.Logger
}

// NewSession creates a session with an empty canvas. m may be nil.
func NewSession(backend pipegraph.Backend, cat *catalog.Catalog, workspaceID int64, logger *slog.Logger, m *metrics.Metrics) *Session {
	return &Session{
		catalog:     cat,
		backend:     backend,
		store:       graphstore.New(),
		publisher:   publish.New(backend, cat.IsFanOut, logger, publish.WithMetrics(m)),
		workspaceID: workspaceID,
		logger:      logger,
	}
}

// Store returns the session's graph store. Hosts mutate the graph through
// it directly.
func (s *Session) Store() *graphstore.Store {
	return s.store
}

// Load fetches every pipe and replaces the canvas with its graph.
// A malformed backend response leaves an empty canvas and returns an error
// wrapping pipegraph.ErrInvalidFormat. Network failures leave the canvas as
// it was.
func (s *Session) Load(ctx context.Context) error {
	configs, err := s.backend.ListPipes(ctx)
	if err != nil {
		return fmt.Errorf("pipegraph: load: %w", err)
	}

	g, err := materialize.Materialize(s.catalog, configs)
	if err == nil {
		err = s.store.Reset(materialize.Layout(g))
	}
	if err != nil {
		if errors.Is(err, pipegraph.ErrInvalidFormat) || errors.Is(err, pipegraph.ErrDanglingReference) {
			s.logger.Warn("backend graph rejected, showing empty canvas", "error", err)
			_ = s.store.Reset(pipegraph.Graph{})
		}
		return fmt.Errorf("pipegraph: load: %w", err)
	}

	s.logger.Info("graph loaded", "pipes", len(configs), "nodes", len(g.Nodes), "edges", len(g.Edges))
	return nil
}

// Drop adds a fresh node for connector at pos, with catalog defaults filled
// in. The node starts without a role; roles are derived on publish.
func (s *Session) Drop(connector string, pos pipegraph.Position) (pipegraph.Node, error) {
	st, err := s.catalog.NewStage(connector, pipegraph.RoleNone)
	if err != nil {
		return pipegraph.Node{}, err
	}
	n := pipegraph.Node{
		ID:        uuid.NewString(),
		Connector: connector,
		Position:  pos,
		Data:      st,
	}
	s.store.AddNode(n)
	return n, nil
}

// DropStage adds a node carrying a preconfigured stage, such as a daemon's
// connector instance taken from the palette.
func (s *Session) DropStage(st pipegraph.Stage, pos pipegraph.Position) (pipegraph.Node, error) {
	norm, err := s.catalog.Normalize(st.WithRole(pipegraph.RoleNone))
	if err != nil {
		return pipegraph.Node{}, err
	}
	n := pipegraph.Node{
		ID:        uuid.NewString(),
		Connector: norm.Connector,
		Position:  pos,
		Data:      norm,
	}
	s.store.AddNode(n)
	return n, nil
}

// SetField updates one field of a node after checking it against the
// catalog. Unknown node ids are a no-op.
func (s *Session) SetField(nodeID, key string, value any) error {
	n, ok := s.store.Node(nodeID)
	if !ok {
		return nil
	}
	candidate := n.Data.Clone()
	candidate.Fields[key] = value
	norm, err := s.catalog.Normalize(candidate)
	if err != nil {
		return err
	}
	s.store.UpdateNodeField(nodeID, key, norm.Fields[key])
	return nil
}

// Palette lists the connector instances registered daemons expose.
func (s *Session) Palette(ctx context.Context) ([]pipegraph.Daemon, error) {
	daemons, err := s.backend.ListDaemons(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipegraph: palette: %w", err)
	}
	return daemons, nil
}

// Publish pushes the current graph to the backend.
func (s *Session) Publish(ctx context.Context) (*publish.Report, error) {
	return s.publisher.Publish(ctx, s.store, s.workspaceID)
}
