// Package graphstore holds the live, mutable editor graph of one session:
// nodes, edges, selection and panel state, and the ledger of backend pipe ids
// whose edges were removed locally but not yet deleted on the backend.
//
// Every mutation keeps the graph free of dangling edges. Unknown ids are
// no-ops, never errors. Node values handed out are copies; a field edit
// replaces the stored node instead of mutating it in place.
package graphstore

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/meikuraledutech/pipegraph"
)

// Store is safe for concurrent use.
type Store struct {
	mu sync.Mutex

	nodes []pipegraph.Node
	edges []pipegraph.Edge

	selected   map[string]bool
	activeNode string
	panels     map[string]bool

	pending map[int64]struct{}
}

// New returns an empty store.
func New() *Store {
	return &Store{
		selected: map[string]bool{},
		panels:   map[string]bool{},
		pending:  map[int64]struct{}{},
	}
}

// Reset replaces the whole graph and clears selection and the deletion
// ledger. It fails with pipegraph.ErrDanglingReference, leaving the store
// untouched, if an edge names a missing node, and with
// pipegraph.ErrCyclicGraph if an edge connects a node to itself.
func (s *Store) Reset(g pipegraph.Graph) error {
	if err := checkEdges(g.Nodes, g.Edges); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = cloneNodes(g.Nodes)
	s.edges = slices.Clone(g.Edges)
	s.selected = map[string]bool{}
	s.activeNode = ""
	s.pending = map[int64]struct{}{}
	return nil
}

// SetNodes replaces all nodes. Edges touching a node that is no longer
// present are dropped and their pipe ids queued for backend deletion.
func (s *Store) SetNodes(nodes []pipegraph.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = cloneNodes(nodes)
	s.edges = slices.DeleteFunc(s.edges, func(e pipegraph.Edge) bool {
		if s.indexOf(e.Source) >= 0 && s.indexOf(e.Target) >= 0 {
			return false
		}
		if e.PipeID != 0 {
			s.pending[e.PipeID] = struct{}{}
		}
		return true
	})
	if s.indexOf(s.activeNode) < 0 {
		s.activeNode = ""
	}
	maps.DeleteFunc(s.selected, func(id string, _ bool) bool { return s.indexOf(id) < 0 })
}

// SetEdges replaces all edges. It fails like Reset, leaving the store
// untouched.
func (s *Store) SetEdges(edges []pipegraph.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkEdges(s.nodes, edges); err != nil {
		return err
	}
	s.edges = slices.Clone(edges)
	return nil
}

// Snapshot returns a copy of the current graph.
func (s *Store) Snapshot() pipegraph.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pipegraph.Graph{Nodes: cloneNodes(s.nodes), Edges: slices.Clone(s.edges)}
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(id string) (pipegraph.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return pipegraph.Node{}, false
	}
	return s.nodes[i].Clone(), true
}

// Edge returns the edge with the given id.
func (s *Store) Edge(id string) (pipegraph.Edge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.edgeIndex(id)
	if i < 0 {
		return pipegraph.Edge{}, false
	}
	return s.edges[i], true
}

// AddNode inserts a node. It returns false if the id is empty or taken.
func (s *Store) AddNode(n pipegraph.Node) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addNode(n)
}

// Connect creates an unpublished edge from source to target. It returns
// false without changes if either node is missing, if source equals target,
// or if an unpublished edge between the pair already exists.
func (s *Store) Connect(source, target string) (pipegraph.Edge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if source == target || s.indexOf(source) < 0 || s.indexOf(target) < 0 {
		return pipegraph.Edge{}, false
	}
	for _, e := range s.edges {
		if e.Source == source && e.Target == target && e.PipeID == 0 {
			return pipegraph.Edge{}, false
		}
	}

	e := pipegraph.Edge{ID: uuid.NewString(), Source: source, Target: target}
	s.edges = append(s.edges, e)
	return e, true
}

// MarkEdgeDeleted removes an edge and queues its pipe id for backend
// deletion when non-zero.
func (s *Store) MarkEdgeDeleted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeEdge(id)
}

// MarkNodeDeleted removes a node together with its incident edges and
// queues their pipe ids for backend deletion.
func (s *Store) MarkNodeDeleted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeNode(id)
}

// UpdateEdgeAfterPublish writes pipeID onto the edge and marks it animated.
// A previous pipe id on the edge is replaced.
func (s *Store) UpdateEdgeAfterPublish(id string, pipeID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.edgeIndex(id)
	if i < 0 {
		return false
	}
	s.edges[i].PipeID = pipeID
	s.edges[i].Animated = true
	return true
}

// AddParallelEdge records that pipeID also runs along the edge while the
// edge stays bound to its current pipe. A second edge with the same
// endpoints carrying pipeID is added unless one already exists; this is the
// shape a reload of two pipes sharing a hop produces.
func (s *Store) AddParallelEdge(id string, pipeID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.edgeIndex(id)
	if i < 0 {
		return false
	}
	e := s.edges[i]
	if e.PipeID == 0 || e.PipeID == pipeID {
		s.edges[i].PipeID = pipeID
		s.edges[i].Animated = true
		return true
	}
	for _, other := range s.edges {
		if other.Source == e.Source && other.Target == e.Target && other.PipeID == pipeID {
			return true
		}
	}
	s.edges = append(s.edges, pipegraph.Edge{
		ID:       uuid.NewString(),
		Source:   e.Source,
		Target:   e.Target,
		PipeID:   pipeID,
		Animated: true,
	})
	return true
}

// UpdateNodeField sets one field of a node's stage data. The stored node is
// replaced by a new value; previously returned copies are unaffected.
func (s *Store) UpdateNodeField(id, key string, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	n := s.nodes[i].Clone()
	n.Data.Fields[key] = value
	s.nodes[i] = n
	return true
}

// SelectNode makes id the active node. An empty id clears the selection.
func (s *Store) SelectNode(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" && s.indexOf(id) < 0 {
		return false
	}
	s.activeNode = id
	return true
}

// ActiveNode returns the id of the active node, or "".
func (s *Store) ActiveNode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeNode
}

// Selected reports whether a node is selected on the canvas.
func (s *Store) Selected(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected[id]
}

func (s *Store) OpenPanel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panels[name] = true
}

func (s *Store) ClosePanel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.panels, name)
}

func (s *Store) PanelOpen(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panels[name]
}

// PendingDeletions returns the queued pipe ids in ascending order.
func (s *Store) PendingDeletions() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.pending))
}

// QueueDeletion adds a pipe id to the ledger. Zero is ignored.
func (s *Store) QueueDeletion(pipeID int64) {
	if pipeID == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[pipeID] = struct{}{}
}

// CancelDeletion removes a pipe id from the ledger because it is live again.
func (s *Store) CancelDeletion(pipeID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, pipeID)
}

// ConfirmDeletion removes a pipe id from the ledger after the backend
// deleted it.
func (s *Store) ConfirmDeletion(pipeID int64) {
	s.CancelDeletion(pipeID)
}

func (s *Store) addNode(n pipegraph.Node) bool {
	if n.ID == "" || s.indexOf(n.ID) >= 0 {
		return false
	}
	s.nodes = append(s.nodes, n.Clone())
	return true
}

func (s *Store) removeNode(id string) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.edges = slices.DeleteFunc(s.edges, func(e pipegraph.Edge) bool {
		if e.Source != id && e.Target != id {
			return false
		}
		if e.PipeID != 0 {
			s.pending[e.PipeID] = struct{}{}
		}
		return true
	})
	s.nodes = slices.Delete(s.nodes, i, i+1)
	delete(s.selected, id)
	if s.activeNode == id {
		s.activeNode = ""
	}
	return true
}

func (s *Store) removeEdge(id string) bool {
	i := s.edgeIndex(id)
	if i < 0 {
		return false
	}
	if p := s.edges[i].PipeID; p != 0 {
		s.pending[p] = struct{}{}
	}
	s.edges = slices.Delete(s.edges, i, i+1)
	return true
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.nodes, func(n pipegraph.Node) bool { return n.ID == id })
}

func (s *Store) edgeIndex(id string) int {
	return slices.IndexFunc(s.edges, func(e pipegraph.Edge) bool { return e.ID == id })
}

func checkEdges(nodes []pipegraph.Node, edges []pipegraph.Edge) error {
	ids := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		ids[n.ID] = true
	}
	for _, e := range edges {
		if !ids[e.Source] || !ids[e.Target] {
			return fmt.Errorf("%w: edge %s (%s -> %s)", pipegraph.ErrDanglingReference, e.ID, e.Source, e.Target)
		}
		if e.Source == e.Target {
			return fmt.Errorf("%w: edge %s loops on node %s", pipegraph.ErrCyclicGraph, e.ID, e.Source)
		}
	}
	return nil
}

func cloneNodes(nodes []pipegraph.Node) []pipegraph.Node {
	out := make([]pipegraph.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}
