// Package catalog holds the immutable registry of allowed queries. The
// catalog is the engine's entire SQL surface: nothing composes SQL from user
// input, and the LLM may only pick ids from here.
package catalog

import (
	"fmt"
	"time"
)

// Parameter types.
const (
	ParamString  = "string"
	ParamInteger = "integer"
	ParamDate    = "date"
)

// Output kinds. They decide how the executor marshals rows into the payload.
const (
	KindKPI        = "kpi"
	KindTimeSeries = "time_series"
	KindTopItems   = "top_items"
	KindTable      = "table"
	KindComparison = "comparison"
)

// ParamSpec describes one parameter of a catalog entry.
type ParamSpec struct {
	Name     string
	Type     string
	Required bool
	// Default is a literal fallback; DefaultFn wins when set and is
	// evaluated against the request clock (date defaults are relative).
	Default   interface{}
	DefaultFn func(now time.Time) interface{}
	Allowed   []string
	// Sensitive parameters are never logged.
	Sensitive bool
}

// Entry is one allowed query.
type Entry struct {
	ID          string
	Description string
	OutputKind  string
	// OutputRef is the canonical payload reference results land under.
	OutputRef string
	// Metric names the ranking metric for top_items entries.
	Metric string
	// SQL uses positional placeholders; BindOrder names the parameter bound
	// to each $n.
	SQL       string
	BindOrder []string
	Params    []ParamSpec
}

// Param returns the spec for name, or nil.
func (e *Entry) Param(name string) *ParamSpec {
	for i := range e.Params {
		if e.Params[i].Name == name {
			return &e.Params[i]
		}
	}
	return nil
}

// Catalog is the loaded registry. Read-only after Load.
type Catalog struct {
	entries map[string]*Entry
	ordered []*Entry
}

// Load validates the entry set and builds the registry. Duplicate ids or
// duplicate output refs are fatal, as are literal defaults that fail their
// own parameter type or bind names without a parameter spec. DefaultFn
// values are not evaluated here.
func Load(entries []Entry) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]*Entry, len(entries))}
	refs := make(map[string]string, len(entries))

	for i := range entries {
		e := &entries[i]
		if _, dup := c.entries[e.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate query id %q", e.ID)
		}
		if prev, dup := refs[e.OutputRef]; dup {
			return nil, fmt.Errorf("catalog: output ref %q shared by %q and %q", e.OutputRef, prev, e.ID)
		}
		for _, name := range e.BindOrder {
			if e.Param(name) == nil {
				return nil, fmt.Errorf("catalog: query %q binds unknown parameter %q", e.ID, name)
			}
		}
		for _, p := range e.Params {
			if p.Default != nil {
				if err := checkType(p.Type, p.Default); err != nil {
					return nil, fmt.Errorf("catalog: query %q default for %q: %w", e.ID, p.Name, err)
				}
			}
		}
		refs[e.OutputRef] = e.ID
		c.entries[e.ID] = e
		c.ordered = append(c.ordered, e)
	}
	return c, nil
}

// Lookup returns the entry for id, or false.
func (c *Catalog) Lookup(id string) (*Entry, bool) {
	e, ok := c.entries[id]
	return e, ok
}

// Has reports whether id is in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.entries[id]
	return ok
}

// List returns the entries in registration order.
func (c *Catalog) List() []*Entry {
	return c.ordered
}

// Descriptions returns id -> description, used for prompt construction and
// the /api/queries endpoint.
func (c *Catalog) Descriptions() map[string]string {
	out := make(map[string]string, len(c.ordered))
	for _, e := range c.ordered {
		out[e.ID] = e.Description
	}
	return out
}

func checkType(paramType string, v interface{}) error {
	switch paramType {
	case ParamString, ParamDate:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
	case ParamInteger:
		switch v.(type) {
		case int, int64, float64:
		default:
			return fmt.Errorf("expected integer, got %T", v)
		}
	default:
		return fmt.Errorf("unknown parameter type %q", paramType)
	}
	return nil
}
