package graphstore

import "github.com/meikuraledutech/pipegraph"

// ChangeKind enumerates incremental canvas changes.
type ChangeKind int

const (
	ChangePosition ChangeKind = iota
	ChangeSelect
	ChangeRemove
	ChangeAdd
)

// NodeChange is one canvas interaction on a node. Position is used by
// ChangePosition, Selected by ChangeSelect and Node by ChangeAdd.
type NodeChange struct {
	Kind     ChangeKind
	ID       string
	Position pipegraph.Position
	Selected bool
	Node     pipegraph.Node
}

// EdgeChange is one canvas interaction on an edge. Edge is used by ChangeAdd.
type EdgeChange struct {
	Kind ChangeKind
	ID   string
	Edge pipegraph.Edge
}

// ApplyNodeChanges applies changes in order. Ids of untouched nodes are
// preserved. Removing a node behaves like MarkNodeDeleted.
func (s *Store) ApplyNodeChanges(changes ...NodeChange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range changes {
		switch c.Kind {
		case ChangePosition:
			if i := s.indexOf(c.ID); i >= 0 {
				s.nodes[i].Position = c.Position
			}
		case ChangeSelect:
			if s.indexOf(c.ID) < 0 {
				continue
			}
			if c.Selected {
				s.selected[c.ID] = true
			} else {
				delete(s.selected, c.ID)
			}
		case ChangeRemove:
			s.removeNode(c.ID)
		case ChangeAdd:
			s.addNode(c.Node)
		}
	}
}

// ApplyEdgeChanges applies changes in order. Removing an edge behaves like
// MarkEdgeDeleted; adding a self loop or an edge whose endpoints are missing
// is ignored.
func (s *Store) ApplyEdgeChanges(changes ...EdgeChange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range changes {
		switch c.Kind {
		case ChangeRemove:
			s.removeEdge(c.ID)
		case ChangeAdd:
			e := c.Edge
			if e.ID == "" || s.edgeIndex(e.ID) >= 0 {
				continue
			}
			if e.Source == e.Target || s.indexOf(e.Source) < 0 || s.indexOf(e.Target) < 0 {
				continue
			}
			s.edges = append(s.edges, e)
		}
	}
}
