// Package schema models JSON Schema documents as an immutable tree of Nodes.
//
// Documents are parsed through yaml.v3 so that JSON and YAML sources share
// one code path and object properties keep the order they were declared in.
// Only the keywords needed to synthesize example values are modelled; the
// raw document is kept separately for validation.
//
// See: https://json-schema.org/draft/2020-12/json-schema-core
// See: https://spec.openapis.org/oas/v3.1.0#schema-object
package schema

// Kind is the shape of a schema node, used to dispatch stub generation.
type Kind int

const (
	KindUnknown Kind = iota
	KindEnum
	KindObject
	KindArray
	KindString
	KindInteger
	KindNumber
	KindBoolean
	KindUnion
)

var kindNames = [...]string{
	KindUnknown: "unknown",
	KindEnum:    "enum",
	KindObject:  "object",
	KindArray:   "array",
	KindString:  "string",
	KindInteger: "integer",
	KindNumber:  "number",
	KindBoolean: "boolean",
	KindUnion:   "union",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Property is a named object property in declaration order.
type Property struct {
	Name   string
	Schema *Node
}

// Node is a parsed schema. Nodes are never mutated after parsing and can be
// shared between goroutines.
type Node struct {
	// Types holds the "type" keyword. A single string type parses to a
	// one-element slice.
	//
	// See: https://json-schema.org/draft/2020-12/json-schema-validation#section-6.1.1
	Types []string

	Format string

	// Enum holds the candidate values in declared order.
	Enum []any

	// Properties is nil when the "properties" keyword is absent and
	// non-nil (possibly empty) when present.
	Properties []Property
	Required   []string
	Items      *Node

	Default    any
	HasDefault bool
	Example    any
	HasExample bool

	OneOf []*Node
	AnyOf []*Node
	AllOf []*Node

	// Ref is an unresolved "$ref". Resolver output never carries one.
	Ref string
}

// Type returns the effective type: the first declared type that is not
// "null", or "" when the keyword is absent.
func (n *Node) Type() string {
	for _, t := range n.Types {
		if t != "null" {
			return t
		}
	}
	return ""
}

// HasProperties reports whether the "properties" keyword is present.
func (n *Node) HasProperties() bool {
	return n.Properties != nil
}

// Property returns the schema of the named property.
func (n *Node) Property(name string) (*Node, bool) {
	for _, p := range n.Properties {
		if p.Name == name {
			return p.Schema, true
		}
	}
	return nil, false
}

// IsRequired reports whether name is listed in "required".
func (n *Node) IsRequired(name string) bool {
	for _, r := range n.Required {
		if r == name {
			return true
		}
	}
	return false
}

// Union returns the first non-empty list among oneOf, anyOf and allOf,
// checked in that order.
func (n *Node) Union() []*Node {
	switch {
	case len(n.OneOf) > 0:
		return n.OneOf
	case len(n.AnyOf) > 0:
		return n.AnyOf
	case len(n.AllOf) > 0:
		return n.AllOf
	}
	return nil
}

// Kind classifies the node. The first matching rule wins:
//
//  1. a non-empty enum, regardless of type
//  2. type "object", or no type with "properties" present
//  3. type "array", "string", "integer", "number", "boolean"
//  4. a non-empty oneOf, anyOf or allOf
//  5. anything else is KindUnknown
func (n *Node) Kind() Kind {
	if len(n.Enum) > 0 {
		return KindEnum
	}

	switch t := n.Type(); t {
	case "object":
		return KindObject
	case "":
		if n.HasProperties() {
			return KindObject
		}
	case "array":
		return KindArray
	case "string":
		return KindString
	case "integer":
		return KindInteger
	case "number":
		return KindNumber
	case "boolean":
		return KindBoolean
	}

	if len(n.Union()) > 0 {
		return KindUnion
	}

	return KindUnknown
}
