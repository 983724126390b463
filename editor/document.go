package editor

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/meikuraledutech/pipegraph"
)

// Document is the saved form of a session: the canvas and the pipe ids
// still waiting for backend deletion.
type Document struct {
	Nodes            []pipegraph.Node `json:"nodes"`
	Edges            []pipegraph.Edge `json:"edges"`
	PendingDeletions []int64          `json:"pending_deletions,omitempty"`
}

// Export writes the session as an indented JSON document.
func (s *Session) Export(w io.Writer) error {
	g := s.store.Snapshot()
	doc := Document{
		Nodes:            g.Nodes,
		Edges:            g.Edges,
		PendingDeletions: s.store.PendingDeletions(),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Import replaces the session with a document read from r.
func (s *Session) Import(r io.Reader) error {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("%w: document: %v", pipegraph.ErrInvalidFormat, err)
	}
	for i, n := range doc.Nodes {
		norm, err := s.catalog.Normalize(n.Data)
		if err != nil {
			return fmt.Errorf("node %s: %w", n.ID, err)
		}
		doc.Nodes[i].Data = norm
	}
	if err := s.store.Reset(pipegraph.Graph{Nodes: doc.Nodes, Edges: doc.Edges}); err != nil {
		return err
	}
	for _, id := range doc.PendingDeletions {
		s.store.QueueDeletion(id)
	}
	return nil
}
