// Package stubgen synthesizes minimal example values from JSON Schema.
//
// Given a schema.Node, Generate returns the smallest value the mock server
// can hand back as a response body. The rules, first match wins:
//
//	enum (non-empty)        first enum value, whatever the type says
//	object / untyped+props  required properties only, in declared order
//	array                   []  (items are never generated)
//	string                  now in UTC for format date-time,
//	                        else a truthy example, else "string"
//	integer                 default coerced to int64, else 0
//	number                  default coerced to float64, else 0.0
//	boolean                 default coerced to bool, else false
//	oneOf / anyOf / allOf   the first alternative of the first non-empty list
//	anything else           {}
//
// allOf is not merged: only its first branch is used.
//
// Generation never fails and holds no state; a Generator may be shared by
// any number of goroutines. Schemas must be acyclic, which schema.Resolver
// guarantees for resolved documents.
package stubgen

import (
	"math"
	"time"

	"github.com/potterlabs/mockapi/schema"
	"github.com/spf13/cast"
)

// Placeholder is returned for strings without a usable example.
const Placeholder = "string"

// Generator builds stub values. The zero value is not usable; use New.
type Generator struct {
	now func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock sets the time source used for date-time strings.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// New returns a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var defaultGenerator = New()

// Generate builds a stub for n using the wall clock.
func Generate(n *schema.Node) any {
	return defaultGenerator.Generate(n)
}

// Generate builds a stub for n. A nil node yields an empty object.
func (g *Generator) Generate(n *schema.Node) any {
	if n == nil {
		return NewObject()
	}

	switch n.Kind() {
	case schema.KindEnum:
		return clone(n.Enum[0])
	case schema.KindObject:
		return g.object(n)
	case schema.KindArray:
		return []any{}
	case schema.KindString:
		return g.str(n)
	case schema.KindInteger:
		return integer(n)
	case schema.KindNumber:
		return number(n)
	case schema.KindBoolean:
		return boolean(n)
	case schema.KindUnion:
		return g.Generate(n.Union()[0])
	default:
		return NewObject()
	}
}

func (g *Generator) object(n *schema.Node) *Object {
	out := NewObject()
	for _, p := range n.Properties {
		if n.IsRequired(p.Name) {
			out.Set(p.Name, g.Generate(p.Schema))
		}
	}
	return out
}

func (g *Generator) str(n *schema.Node) any {
	if n.Format == "date-time" {
		return g.now().UTC().Format(time.RFC3339Nano)
	}
	if n.HasExample && truthy(n.Example) {
		return clone(n.Example)
	}
	return Placeholder
}

func integer(n *schema.Node) int64 {
	if !n.HasDefault {
		return 0
	}
	switch v := n.Default.(type) {
	case uint64:
		if v > math.MaxInt64 {
			return math.MaxInt64
		}
		return int64(v)
	case float64:
		return truncate(v)
	}
	if v, err := cast.ToInt64E(n.Default); err == nil {
		return v
	}
	// cast rejects fractional strings and floats in string form; truncate
	// them the way an integer conversion of the float would.
	if f, err := cast.ToFloat64E(n.Default); err == nil {
		return truncate(f)
	}
	return 0
}

// truncate converts f to int64, saturating outside the int64 range.
func truncate(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

func number(n *schema.Node) float64 {
	if !n.HasDefault {
		return 0
	}
	if v, err := cast.ToFloat64E(n.Default); err == nil {
		return v
	}
	return 0
}

func boolean(n *schema.Node) bool {
	if !n.HasDefault {
		return false
	}
	if v, err := cast.ToBoolE(n.Default); err == nil {
		return v
	}
	return truthy(n.Default)
}

// truthy reports whether v is a non-zero, non-empty value.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case uint64:
		return t != 0
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// clone copies composite values so a stub never aliases its schema.
func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = clone(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = clone(vv)
		}
		return out
	default:
		return v
	}
}
