// Package catalog is the static registry of connector types: the fields each
// connector declares, their kinds and defaults, the roles it can play and
// whether it relays between pipes.
package catalog

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/meikuraledutech/pipegraph"
)

// Kind is the value type of a connector field.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindInt
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	}
	return "unknown"
}

// Field declares one configuration field of a connector.
type Field struct {
	Name    string
	Kind    Kind
	Default any
}

// Descriptor describes a connector type.
type Descriptor struct {
	Type        string
	DisplayName string
	Fields      []Field

	Source      bool
	Destination bool

	// FanOut marks relay connectors that terminate one pipe and start the
	// next. The decomposer splits paths at these nodes.
	FanOut bool
}

// Field looks up a declared field by name.
func (d Descriptor) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Defaults returns a fresh map of every declared field's default value.
func (d Descriptor) Defaults() map[string]any {
	out := make(map[string]any, len(d.Fields))
	for _, f := range d.Fields {
		out[f.Name] = f.Default
	}
	return out
}

// Catalog is an immutable set of descriptors keyed by connector type.
type Catalog struct {
	byType map[string]Descriptor
	order  []string
}

// New builds a catalog. Later descriptors replace earlier ones of the same type.
func New(descs ...Descriptor) *Catalog {
	c := &Catalog{byType: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		if _, ok := c.byType[d.Type]; !ok {
			c.order = append(c.order, d.Type)
		}
		c.byType[d.Type] = d
	}
	return c
}

// Lookup returns the descriptor for a connector type.
func (c *Catalog) Lookup(connector string) (Descriptor, bool) {
	d, ok := c.byType[connector]
	return d, ok
}

// All returns every descriptor in registration order.
func (c *Catalog) All() []Descriptor {
	out := make([]Descriptor, 0, len(c.order))
	for _, t := range c.order {
		out = append(out, c.byType[t])
	}
	return out
}

// IsFanOut reports whether connector is a relay type.
func (c *Catalog) IsFanOut(connector string) bool {
	return c.byType[connector].FanOut
}

// NewStage returns a stage of the given connector with every field set to
// its default, as used when a connector is dropped onto the canvas.
func (c *Catalog) NewStage(connector string, role pipegraph.Role) (pipegraph.Stage, error) {
	d, ok := c.byType[connector]
	if !ok {
		return pipegraph.Stage{}, fmt.Errorf("%w: %q", pipegraph.ErrUnknownConnector, connector)
	}
	if err := d.checkRole(role); err != nil {
		return pipegraph.Stage{}, err
	}
	return pipegraph.Stage{Connector: connector, Role: role, Fields: d.Defaults()}, nil
}

// Normalize returns a copy of st with absent fields filled from the
// connector's defaults and every value coerced to its declared kind.
// Unknown connectors, undeclared fields and mistyped values fail.
func (c *Catalog) Normalize(st pipegraph.Stage) (pipegraph.Stage, error) {
	d, ok := c.byType[st.Connector]
	if !ok {
		return pipegraph.Stage{}, fmt.Errorf("%w: %q", pipegraph.ErrUnknownConnector, st.Connector)
	}
	if err := d.checkRole(st.Role); err != nil {
		return pipegraph.Stage{}, err
	}

	out := st.Clone()
	for _, name := range slices.Sorted(maps.Keys(out.Fields)) {
		f, ok := d.Field(name)
		if !ok {
			return pipegraph.Stage{}, fmt.Errorf("%w: %s has no field %q", pipegraph.ErrInvalidFormat, d.Type, name)
		}
		v, err := coerce(f, out.Fields[name])
		if err != nil {
			return pipegraph.Stage{}, err
		}
		out.Fields[name] = v
	}
	for _, f := range d.Fields {
		if _, ok := out.Fields[f.Name]; !ok {
			out.Fields[f.Name] = f.Default
		}
	}
	return out, nil
}

func (d Descriptor) checkRole(r pipegraph.Role) error {
	switch {
	case r == pipegraph.RoleSource && !d.Source:
		return fmt.Errorf("%w: %s cannot be a source", pipegraph.ErrInvalidFormat, d.Type)
	case r == pipegraph.RoleDestination && !d.Destination:
		return fmt.Errorf("%w: %s cannot be a destination", pipegraph.ErrInvalidFormat, d.Type)
	}
	return nil
}

func coerce(f Field, v any) (any, error) {
	bad := func() error {
		return fmt.Errorf("%w: field %q wants %s, got %T", pipegraph.ErrInvalidFormat, f.Name, f.Kind, v)
	}

	switch f.Kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, bad()
		}
		return s, nil

	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, bad()
		}
		return b, nil

	case KindInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n != math.Trunc(n) {
				return nil, bad()
			}
			return int64(n), nil
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return nil, bad()
			}
			return i, nil
		}
		return nil, bad()
	}
	return nil, bad()
}
