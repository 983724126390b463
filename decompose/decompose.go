// Package decompose splits an editor graph into the linear stage lists that
// are published as backend pipes.
//
// Traversal starts at every head: a node without incoming edges, or a relay
// (fan-out) node. From a head the walk follows outgoing edges depth first and
// emits a path at a leaf or at a relay node, which is included and then serves
// as the head of its own downstream segment. Branches yield one path each.
//
// A path is bound to the first non-zero pipe id on its edges. Once bound to
// pipe P it only follows edges of P or unpublished edges, so pipes that share
// a node prefix (and therefore carry parallel edges) come back out as the
// stage lists they were loaded from. Edges skipped by that rule are walked
// again from their source so no live edge is dropped. When several paths end
// up bound to the same pipe only one keeps the id; the rest publish as new
// pipes.
package decompose

import (
	"fmt"

	"github.com/meikuraledutech/pipegraph"
)

// FanOutFunc reports whether a connector type relays between pipes.
type FanOutFunc func(connector string) bool

// Path is one linear stage list to publish. PipeID is 0 for a new pipe.
type Path struct {
	PipeID  int64
	Stages  []pipegraph.Stage
	NodeIDs []string
	EdgeIDs []string
}

// Result is the outcome of a decomposition. Unconnected lists nodes without
// any edge; they are not published.
type Result struct {
	Paths       []Path
	Unconnected []string
}

// Decompose walks nodes and edges. It fails with
// pipegraph.ErrDanglingReference when an edge names a missing node and with
// pipegraph.ErrCyclicGraph when the edges contain a cycle.
func Decompose(nodes []pipegraph.Node, edges []pipegraph.Edge, fanOut FanOutFunc) (Result, error) {
	if fanOut == nil {
		fanOut = func(string) bool { return false }
	}

	w := &walker{
		nodes:     make(map[string]pipegraph.Node, len(nodes)),
		out:       make(map[string][]pipegraph.Edge),
		fanOut:    fanOut,
		traversed: make(map[string]bool, len(edges)),
		reached:   make(map[string]bool, len(nodes)),
	}
	for _, n := range nodes {
		w.nodes[n.ID] = n
	}

	incoming := make(map[string]int)
	touched := make(map[string]bool)
	for _, e := range edges {
		if _, ok := w.nodes[e.Source]; !ok {
			return Result{}, fmt.Errorf("%w: edge %s source %s", pipegraph.ErrDanglingReference, e.ID, e.Source)
		}
		if _, ok := w.nodes[e.Target]; !ok {
			return Result{}, fmt.Errorf("%w: edge %s target %s", pipegraph.ErrDanglingReference, e.ID, e.Target)
		}
		w.out[e.Source] = append(w.out[e.Source], e)
		incoming[e.Target]++
		touched[e.Source] = true
		touched[e.Target] = true
	}

	var res Result
	for _, n := range nodes {
		if !touched[n.ID] {
			res.Unconnected = append(res.Unconnected, n.ID)
			continue
		}
		if incoming[n.ID] == 0 || fanOut(n.Connector) {
			if err := w.walk(n.ID, w.out[n.ID]); err != nil {
				return Result{}, err
			}
		}
	}

	// Edges skipped because they belong to another pipe than the path that
	// reached their source.
	for {
		e, ok := w.nextSkipped(edges)
		if !ok {
			break
		}
		if err := w.walk(e.Source, []pipegraph.Edge{e}); err != nil {
			return Result{}, err
		}
	}

	for _, e := range edges {
		if !w.traversed[e.ID] {
			return Result{}, fmt.Errorf("%w: edge %s is not reachable from any head", pipegraph.ErrCyclicGraph, e.ID)
		}
	}

	edgePipe := make(map[string]int64, len(edges))
	for _, e := range edges {
		edgePipe[e.ID] = e.PipeID
	}
	claim(w.paths, edgePipe)

	res.Paths = w.paths
	return res, nil
}

// claim keeps each pipe id on one path and resets the others to 0 so they
// are created as new pipes. A path whose edges all carry the pipe id wins
// over one that reached it through unpublished edges; ties go to the first.
func claim(paths []Path, edgePipe map[string]int64) {
	exact := func(p Path) bool {
		for _, id := range p.EdgeIDs {
			if edgePipe[id] != p.PipeID {
				return false
			}
		}
		return true
	}

	owner := make(map[int64]int)
	for i, p := range paths {
		if p.PipeID == 0 {
			continue
		}
		if _, ok := owner[p.PipeID]; !ok && exact(p) {
			owner[p.PipeID] = i
		}
	}
	for i, p := range paths {
		if p.PipeID == 0 {
			continue
		}
		if _, ok := owner[p.PipeID]; !ok {
			owner[p.PipeID] = i
		}
	}
	for i := range paths {
		if id := paths[i].PipeID; id != 0 && owner[id] != i {
			paths[i].PipeID = 0
		}
	}
}

type walker struct {
	nodes  map[string]pipegraph.Node
	out    map[string][]pipegraph.Edge
	fanOut FanOutFunc

	traversed map[string]bool
	reached   map[string]bool
	paths     []Path
}

func (w *walker) walk(head string, first []pipegraph.Edge) error {
	w.reached[head] = true
	onPath := map[string]bool{head: true}
	return w.visit(head, head, []string{head}, nil, 0, first, onPath)
}

func (w *walker) visit(head, id string, nodeIDs, edgeIDs []string, pipeID int64, outs []pipegraph.Edge, onPath map[string]bool) error {
	if id != head && (w.fanOut(w.nodes[id].Connector) || len(outs) == 0) {
		w.emit(nodeIDs, edgeIDs, pipeID)
		return nil
	}

	for _, e := range outs {
		if onPath[e.Target] {
			return fmt.Errorf("%w: edge %s leads back to node %s", pipegraph.ErrCyclicGraph, e.ID, e.Target)
		}
		w.traversed[e.ID] = true
		w.reached[e.Target] = true

		next := pipeID
		if next == 0 {
			next = e.PipeID
		}

		onPath[e.Target] = true
		err := w.visit(head, e.Target,
			append(nodeIDs[:len(nodeIDs):len(nodeIDs)], e.Target),
			append(edgeIDs[:len(edgeIDs):len(edgeIDs)], e.ID),
			next, w.follow(e.Target, next), onPath)
		delete(onPath, e.Target)
		if err != nil {
			return err
		}
	}
	return nil
}

// follow returns the outgoing edges of id a path bound to pipeID may take.
// An unpublished edge is taken by the first bound path that reaches it only,
// so a new branch off a prefix shared by several pipes yields one path.
func (w *walker) follow(id string, pipeID int64) []pipegraph.Edge {
	all := w.out[id]
	if pipeID == 0 {
		return all
	}
	var out []pipegraph.Edge
	for _, e := range all {
		if e.PipeID == pipeID || (e.PipeID == 0 && !w.traversed[e.ID]) {
			out = append(out, e)
		}
	}
	return out
}

func (w *walker) nextSkipped(edges []pipegraph.Edge) (pipegraph.Edge, bool) {
	for _, e := range edges {
		if !w.traversed[e.ID] && w.reached[e.Source] {
			return e, true
		}
	}
	return pipegraph.Edge{}, false
}

func (w *walker) emit(nodeIDs, edgeIDs []string, pipeID int64) {
	stages := make([]pipegraph.Stage, len(nodeIDs))
	for i, id := range nodeIDs {
		role := pipegraph.RoleNone
		switch i {
		case 0:
			role = pipegraph.RoleSource
		case len(nodeIDs) - 1:
			role = pipegraph.RoleDestination
		}
		stages[i] = w.nodes[id].Data.WithRole(role)
	}
	w.paths = append(w.paths, Path{
		PipeID:  pipeID,
		Stages:  stages,
		NodeIDs: nodeIDs,
		EdgeIDs: edgeIDs,
	})
}
