package pipegraph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
)

// Role is the position a stage plays inside one pipe.
type Role int

const (
	RoleNone Role = iota
	RoleSource
	RoleDestination
)

const (
	sourceSuffix      = "_source"
	destinationSuffix = "_destination"
)

// Stage is one connector configuration inside an ordered pipe.
// On the wire it is a flat object: {"name": "sqlite_source", "path": "/a", ...}.
// Connector holds the type tag with the role suffix stripped.
type Stage struct {
	Connector string
	Role      Role
	ClientID  string
	Fields    map[string]any
}

// Name returns the wire name, the connector type suffixed by its role.
func (s Stage) Name() string {
	switch s.Role {
	case RoleSource:
		return s.Connector + sourceSuffix
	case RoleDestination:
		return s.Connector + destinationSuffix
	}
	return s.Connector
}

// Clone returns a copy that shares no field map with s.
func (s Stage) Clone() Stage {
	c := s
	c.Fields = maps.Clone(s.Fields)
	if c.Fields == nil {
		c.Fields = map[string]any{}
	}
	return c
}

// WithRole returns a copy of s carrying the given role.
func (s Stage) WithRole(r Role) Stage {
	c := s.Clone()
	c.Role = r
	return c
}

// ParseName splits a wire stage name into connector type and role.
func ParseName(name string) (string, Role) {
	if t, ok := strings.CutSuffix(name, sourceSuffix); ok {
		return t, RoleSource
	}
	if t, ok := strings.CutSuffix(name, destinationSuffix); ok {
		return t, RoleDestination
	}
	return name, RoleNone
}

// MarshalJSON writes the flat wire form. The role is carried both by the
// name suffix and by the isSource/isDestination flag.
func (s Stage) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Fields)+3)
	maps.Copy(out, s.Fields)
	out["name"] = s.Name()
	if s.ClientID != "" {
		out["clientId"] = s.ClientID
	}
	switch s.Role {
	case RoleSource:
		out["isSource"] = true
	case RoleDestination:
		out["isDestination"] = true
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the flat wire form. Numbers are kept as json.Number
// so the connector catalog can coerce them to the declared field kind.
func (s *Stage) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("%w: stage: %v", ErrInvalidFormat, err)
	}
	if raw == nil {
		return fmt.Errorf("%w: stage is null", ErrInvalidFormat)
	}

	name, ok := raw["name"].(string)
	if !ok || name == "" {
		return fmt.Errorf("%w: stage has no name", ErrInvalidFormat)
	}
	delete(raw, "name")

	st := Stage{Fields: map[string]any{}}
	st.Connector, st.Role = ParseName(name)

	if v, ok := raw["clientId"]; ok {
		id, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: stage %q: clientId must be a string", ErrInvalidFormat, name)
		}
		st.ClientID = id
		delete(raw, "clientId")
	}

	isSource, _ := raw["isSource"].(bool)
	isDestination, _ := raw["isDestination"].(bool)
	delete(raw, "isSource")
	delete(raw, "isDestination")
	if st.Role == RoleNone {
		switch {
		case isSource:
			st.Role = RoleSource
		case isDestination:
			st.Role = RoleDestination
		}
	}

	maps.Copy(st.Fields, raw)
	*s = st
	return nil
}

// PipeConfig is an ordered sequence of stages with a backend-assigned id.
// ID 0 means the pipe has not been created yet.
type PipeConfig struct {
	ID          int64   `json:"id"`
	WorkspaceID int64   `json:"workspace_id"`
	Stages      []Stage `json:"pipe"`
}

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a vertex of the editor graph. Its ID is assigned once and never
// changes for the lifetime of the node.
type Node struct {
	ID                string   `json:"id"`
	Connector         string   `json:"connector"`
	Position          Position `json:"position"`
	Data              Stage    `json:"data"`
	IsSourceRole      bool     `json:"is_source_role"`
	IsDestinationRole bool     `json:"is_destination_role"`
}

// Clone returns a copy of n whose Data shares nothing with n.
func (n Node) Clone() Node {
	n.Data = n.Data.Clone()
	return n
}

// Edge connects two nodes. PipeID is the backend pipe the edge belongs to;
// 0 means unpublished. Animated is set once the pipe is confirmed published.
type Edge struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	PipeID   int64  `json:"pipe_id"`
	Animated bool   `json:"animated"`
}

// Graph is a snapshot of nodes and edges.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Daemon is a registered client daemon and the connector instances it
// exposes to the palette.
type Daemon struct {
	ID           string  `json:"id"`
	DisplayName  string  `json:"display_name"`
	Sources      []Stage `json:"sources"`
	Destinations []Stage `json:"destinations"`
}
