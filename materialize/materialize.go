// Package materialize turns the backend's pipe list into an editor graph.
//
// Stages are content addressed: two stages with the same connector, client and
// fields (after default filling) map to the same node id regardless of the
// role they play or the pipe they belong to. Loading the same backend state
// twice therefore yields the same node ids, and a relay node that ends one
// pipe and starts another collapses into a single node. Within one pipe a
// repeated stage is numbered so consecutive identical stages stay apart.
package materialize

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/meikuraledutech/pipegraph"
	"github.com/meikuraledutech/pipegraph/catalog"
)

var (
	nodeNamespace = uuid.MustParse("5b0b7a52-6f0e-4d8e-9c3e-0c1f2d6a9e41")
	edgeNamespace = uuid.MustParse("b7c1e0a4-2f43-4c59-8d6e-91a7f3e5c210")
)

// Materialize builds a graph from configs. It fails with
// pipegraph.ErrInvalidFormat when a pipe has no stages or a stage does not
// match its connector's declaration; no partial graph is returned.
func Materialize(cat *catalog.Catalog, configs []pipegraph.PipeConfig) (pipegraph.Graph, error) {
	g := pipegraph.Graph{Nodes: []pipegraph.Node{}, Edges: []pipegraph.Edge{}}
	index := make(map[string]int)

	for ci, cfg := range configs {
		if len(cfg.Stages) == 0 {
			return pipegraph.Graph{}, fmt.Errorf("%w: pipe %d has no stages", pipegraph.ErrInvalidFormat, cfg.ID)
		}

		ids := make([]string, len(cfg.Stages))
		repeats := make(map[string]int)
		for si, st := range cfg.Stages {
			norm, err := cat.Normalize(st)
			if err != nil {
				return pipegraph.Graph{}, fmt.Errorf("%w: pipe %d stage %d: %w", pipegraph.ErrInvalidFormat, cfg.ID, si, err)
			}
			sig, err := Signature(norm)
			if err != nil {
				return pipegraph.Graph{}, fmt.Errorf("%w: pipe %d stage %d: %w", pipegraph.ErrInvalidFormat, cfg.ID, si, err)
			}
			// A stage repeated inside one pipe gets its own node so the pipe
			// never loops on itself.
			id := nodeID(sig, repeats[string(sig)])
			repeats[string(sig)]++
			ids[si] = id

			i, seen := index[id]
			if !seen {
				i = len(g.Nodes)
				index[id] = i
				g.Nodes = append(g.Nodes, pipegraph.Node{
					ID:        id,
					Connector: norm.Connector,
					Data:      norm,
				})
			}
			if si == 0 {
				g.Nodes[i].IsSourceRole = true
			}
			if si == len(cfg.Stages)-1 && si > 0 {
				g.Nodes[i].IsDestinationRole = true
			}
		}

		key := strconv.FormatInt(cfg.ID, 10)
		if cfg.ID == 0 {
			key = "new-" + strconv.Itoa(ci)
		}
		for si := 1; si < len(ids); si++ {
			g.Edges = append(g.Edges, pipegraph.Edge{
				ID:       uuid.NewSHA1(edgeNamespace, []byte(key+"/"+strconv.Itoa(si))).String(),
				Source:   ids[si-1],
				Target:   ids[si],
				PipeID:   cfg.ID,
				Animated: cfg.ID != 0,
			})
		}
	}

	return g, nil
}

// Signature is the canonical form of a normalized stage used for node
// identity. Role is not part of it.
func Signature(st pipegraph.Stage) ([]byte, error) {
	// encoding/json sorts map keys, which makes the output stable.
	return json.Marshal(struct {
		Connector string         `json:"connector"`
		ClientID  string         `json:"client_id,omitempty"`
		Fields    map[string]any `json:"fields"`
	}{st.Connector, st.ClientID, st.Fields})
}

// NodeID returns the content-addressed node id of a normalized stage.
func NodeID(st pipegraph.Stage) (string, error) {
	sig, err := Signature(st)
	if err != nil {
		return "", err
	}
	return nodeID(sig, 0), nil
}

// nodeID derives the id of the n-th occurrence of a signature within one
// pipe. The first occurrence is shared across pipes.
func nodeID(sig []byte, n int) string {
	if n == 0 {
		return uuid.NewSHA1(nodeNamespace, sig).String()
	}
	return uuid.NewSHA1(nodeNamespace, []byte(string(sig)+"#"+strconv.Itoa(n))).String()
}
