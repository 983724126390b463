package materialize

import "github.com/meikuraledutech/pipegraph"

const (
	columnWidth = 280
	rowHeight   = 140
)

// Layout places nodes in columns by their longest distance from a node with
// no incoming edge. It is a fallback for hosts without a layout engine.
// Cycles are tolerated; depth stops growing after len(nodes) rounds.
func Layout(g pipegraph.Graph) pipegraph.Graph {
	depth := make(map[string]int, len(g.Nodes))
	for round := 0; round < len(g.Nodes); round++ {
		changed := false
		for _, e := range g.Edges {
			if d := depth[e.Source] + 1; d > depth[e.Target] {
				depth[e.Target] = d
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	rows := make(map[int]int)
	out := pipegraph.Graph{
		Nodes: make([]pipegraph.Node, len(g.Nodes)),
		Edges: append([]pipegraph.Edge(nil), g.Edges...),
	}
	for i, n := range g.Nodes {
		d := depth[n.ID]
		n.Position = pipegraph.Position{X: float64(d * columnWidth), Y: float64(rows[d] * rowHeight)}
		rows[d]++
		out.Nodes[i] = n
	}
	return out
}
