package schema

import (
	"errors"
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

var (
	// ErrEmptyDocument is returned when the source holds no YAML/JSON value.
	ErrEmptyDocument = errors.New("schema: empty document")

	// ErrNotSchema is returned when a value in schema position is neither
	// an object nor a boolean.
	ErrNotSchema = errors.New("schema: value is not a schema")
)

// ParseError locates a malformed keyword inside a document.
type ParseError struct {
	// Pointer is the JSON pointer of the offending value.
	Pointer string
	Line    int
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("schema: %s (line %d): %v", pointerOrRoot(e.Pointer), e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func pointerOrRoot(p string) string {
	if p == "" {
		return "#"
	}
	return "#" + p
}

// Decode parses a JSON or YAML document and returns its root value node.
// JSON input is tokenized as JSON; anything else is read as YAML.
func Decode(data []byte) (*yaml.Node, error) {
	if json.Valid(data) {
		root, err := decodeJSON(data)
		if err != nil {
			return nil, fmt.Errorf("schema: decode: %w", err)
		}
		return root, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("schema: decode: %w", err)
	}

	if doc.Kind == 0 {
		return nil, ErrEmptyDocument
	}

	root := unwrap(&doc)
	if root == nil {
		return nil, ErrEmptyDocument
	}

	return root, nil
}

// ParseOption configures Parse and FromYAML.
type ParseOption func(*parser)

// Lenient makes the parser skip keywords of the wrong shape, such as a
// non-array enum, and read non-schema subschemas as empty schemas. Only a
// root that is not a schema is still an error.
func Lenient() ParseOption {
	return func(p *parser) {
		p.lenient = true
	}
}

type parser struct {
	lenient bool
}

// Parse decodes a JSON or YAML schema document.
func Parse(data []byte, opts ...ParseOption) (*Node, error) {
	root, err := Decode(data)
	if err != nil {
		return nil, err
	}

	return FromYAML(root, opts...)
}

// FromYAML builds a Node from a decoded document node.
func FromYAML(n *yaml.Node, opts ...ParseOption) (*Node, error) {
	p := &parser{}
	for _, opt := range opts {
		opt(p)
	}

	n = unwrap(n)
	if n == nil {
		return nil, ErrEmptyDocument
	}

	return p.parseNode(n, "")
}

// unwrap skips document and alias indirections.
func unwrap(n *yaml.Node) *yaml.Node {
	for n != nil {
		switch n.Kind {
		case yaml.DocumentNode:
			if len(n.Content) == 0 {
				return nil
			}
			n = n.Content[0]
		case yaml.AliasNode:
			n = n.Alias
		default:
			return n
		}
	}
	return nil
}

func (p *parser) parseNode(n *yaml.Node, ptr string) (*Node, error) {
	switch n.Kind {
	case yaml.MappingNode:
	case yaml.ScalarNode:
		// Boolean schemas accept (true) or reject (false) everything; both
		// carry no shape information.
		if n.Tag == "!!bool" {
			return &Node{}, nil
		}
		return nil, &ParseError{Pointer: ptr, Line: n.Line, Err: ErrNotSchema}
	default:
		return nil, &ParseError{Pointer: ptr, Line: n.Line, Err: ErrNotSchema}
	}

	out := &Node{}

	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		val := unwrap(n.Content[i+1])
		if val == nil {
			continue
		}
		at := ptr + "/" + escapeToken(key)

		var err error
		switch key {
		case "type":
			out.Types, err = parseTypes(val, at)
		case "format":
			out.Format, err = parseString(val, at)
		case "$ref":
			out.Ref, err = parseString(val, at)
		case "enum":
			out.Enum, err = parseValues(val, at)
		case "properties":
			out.Properties, err = p.parseProperties(val, at)
		case "required":
			out.Required, err = parseStrings(val, at)
		case "items":
			// Tuple-form items (a sequence) predates prefixItems and is
			// ignored; it carries nothing the generator uses.
			if val.Kind != yaml.SequenceNode {
				out.Items, err = p.subschema(val, at)
			}
		case "default":
			out.Default, err = decodeValue(val, at)
			out.HasDefault = err == nil && out.Default != nil
		case "example":
			out.Example, err = decodeValue(val, at)
			out.HasExample = err == nil && out.Example != nil
		case "oneOf":
			out.OneOf, err = p.parseList(val, at)
		case "anyOf":
			out.AnyOf, err = p.parseList(val, at)
		case "allOf":
			out.AllOf, err = p.parseList(val, at)
		}

		if err != nil {
			if !p.lenient {
				return nil, err
			}
			out.drop(key)
		}
	}

	return out, nil
}

// subschema parses a nested schema. Lenient parsing reads a value that is
// not a schema as an empty one.
func (p *parser) subschema(n *yaml.Node, ptr string) (*Node, error) {
	sub, err := p.parseNode(n, ptr)
	if err != nil && p.lenient && errors.Is(err, ErrNotSchema) {
		return &Node{}, nil
	}
	return sub, err
}

// drop clears the field set from keyword after a malformed value.
func (n *Node) drop(keyword string) {
	switch keyword {
	case "type":
		n.Types = nil
	case "format":
		n.Format = ""
	case "$ref":
		n.Ref = ""
	case "enum":
		n.Enum = nil
	case "properties":
		n.Properties = nil
	case "required":
		n.Required = nil
	case "items":
		n.Items = nil
	case "default":
		n.Default, n.HasDefault = nil, false
	case "example":
		n.Example, n.HasExample = nil, false
	case "oneOf":
		n.OneOf = nil
	case "anyOf":
		n.AnyOf = nil
	case "allOf":
		n.AllOf = nil
	}
}

func parseTypes(n *yaml.Node, ptr string) ([]string, error) {
	if n.Kind == yaml.ScalarNode {
		return []string{n.Value}, nil
	}
	return parseStrings(n, ptr)
}

func parseString(n *yaml.Node, ptr string) (string, error) {
	if n.Kind != yaml.ScalarNode {
		return "", &ParseError{Pointer: ptr, Line: n.Line, Err: errors.New("expected a string")}
	}
	return n.Value, nil
}

func parseStrings(n *yaml.Node, ptr string) ([]string, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, &ParseError{Pointer: ptr, Line: n.Line, Err: errors.New("expected an array of strings")}
	}

	out := make([]string, 0, len(n.Content))
	for i, item := range n.Content {
		item = unwrap(item)
		if item.Kind != yaml.ScalarNode {
			return nil, &ParseError{Pointer: ptr + "/" + strconv.Itoa(i), Line: item.Line, Err: errors.New("expected a string")}
		}
		out = append(out, item.Value)
	}

	return out, nil
}

func parseValues(n *yaml.Node, ptr string) ([]any, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, &ParseError{Pointer: ptr, Line: n.Line, Err: errors.New("expected an array")}
	}

	out := make([]any, 0, len(n.Content))
	for i, item := range n.Content {
		v, err := decodeValue(item, ptr+"/"+strconv.Itoa(i))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}

	return out, nil
}

func (p *parser) parseProperties(n *yaml.Node, ptr string) ([]Property, error) {
	if n.Kind != yaml.MappingNode {
		return nil, &ParseError{Pointer: ptr, Line: n.Line, Err: errors.New("expected an object")}
	}

	out := make([]Property, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		name := n.Content[i].Value
		val := unwrap(n.Content[i+1])
		if val == nil {
			continue
		}
		sub, err := p.subschema(val, ptr+"/"+escapeToken(name))
		if err != nil {
			return nil, err
		}
		out = append(out, Property{Name: name, Schema: sub})
	}

	return out, nil
}

func (p *parser) parseList(n *yaml.Node, ptr string) ([]*Node, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, &ParseError{Pointer: ptr, Line: n.Line, Err: errors.New("expected an array of schemas")}
	}

	out := make([]*Node, 0, len(n.Content))
	for i, item := range n.Content {
		item = unwrap(item)
		if item == nil {
			continue
		}
		sub, err := p.subschema(item, ptr+"/"+strconv.Itoa(i))
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}

	return out, nil
}

func decodeValue(n *yaml.Node, ptr string) (any, error) {
	v, err := Value(n)
	if err != nil {
		return nil, &ParseError{Pointer: ptr, Line: n.Line, Err: err}
	}
	return v, nil
}
