// Package openapi reads OpenAPI 3.x documents and extracts named component
// schemas for validation and stub generation.
//
// Only the parts of the document the mock server needs are modelled. Schemas
// stay as yaml.v3 nodes so their property order survives until they are
// parsed into schema.Node values.
//
// See: https://spec.openapis.org/oas/v3.1.0
package openapi

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/potterlabs/mockapi/schema"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnsupportedVersion is returned for documents that declare a
	// non-3.x "openapi" version.
	ErrUnsupportedVersion = errors.New("openapi: unsupported version")

	// ErrSchemaNotFound is returned when components.schemas has no entry
	// with the requested name.
	ErrSchemaNotFound = errors.New("openapi: schema not found")
)

// Document represents the root of an OpenAPI v3 document. Patch documents
// that carry only components are accepted; their OpenAPI field is empty.
//
// See: https://spec.openapis.org/oas/v3.1.0#openapi-object
type Document struct {
	OpenAPI    string               `yaml:"openapi"`
	Info       Info                 `yaml:"info"`
	Servers    []Server             `yaml:"servers,omitempty"`
	Paths      map[string]yaml.Node `yaml:"paths,omitempty"`
	Components Components           `yaml:"components,omitempty"`
	Tags       []Tag                `yaml:"tags,omitempty"`

	path string
	root *yaml.Node
}

// Info provides metadata about the API.
//
// See: https://spec.openapis.org/oas/v3.1.0#info-object
type Info struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description,omitempty"`
	Version     string `yaml:"version"`
}

// Server represents a server.
//
// See: https://spec.openapis.org/oas/v3.1.0#server-object
type Server struct {
	URL         string `yaml:"url"`
	Description string `yaml:"description,omitempty"`
}

// Tag adds metadata to a single tag used by Operation Objects.
//
// See: https://spec.openapis.org/oas/v3.1.0#tag-object
type Tag struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// Components holds reusable objects. Only schemas are read; they are kept
// as a raw mapping node to preserve declaration order.
//
// See: https://spec.openapis.org/oas/v3.1.0#components-object
type Components struct {
	Schemas yaml.Node `yaml:"schemas,omitempty"`
}

// Load reads an OpenAPI document in JSON or YAML form.
func Load(path string) (*Document, error) {
	root, err := schema.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("openapi: %w", err)
	}

	return FromYAML(path, root)
}

// FromYAML decodes a document from an already parsed root node. The path
// anchors relative $ref values.
func FromYAML(path string, root *yaml.Node) (*Document, error) {
	doc := &Document{
		path: filepath.Clean(path),
		root: root,
	}

	if err := root.Decode(doc); err != nil {
		return nil, fmt.Errorf("openapi: %s: %w", path, err)
	}

	if doc.OpenAPI != "" && !strings.HasPrefix(doc.OpenAPI, "3.") {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, doc.OpenAPI)
	}

	return doc, nil
}

// Path returns the file the document was loaded from.
func (d *Document) Path() string {
	return d.path
}

// SchemaNames returns the component schema names in declaration order.
func (d *Document) SchemaNames() []string {
	n := &d.Components.Schemas
	if n.Kind != yaml.MappingNode {
		return nil
	}

	names := make([]string, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		names = append(names, n.Content[i].Value)
	}

	return names
}

// HasSchema reports whether components.schemas defines name.
func (d *Document) HasSchema(name string) bool {
	for _, n := range d.SchemaNames() {
		if n == name {
			return true
		}
	}
	return false
}

// SchemaPointer returns the JSON pointer of a component schema.
func SchemaPointer(name string) string {
	name = strings.ReplaceAll(strings.ReplaceAll(name, "~", "~0"), "/", "~1")
	return "/components/schemas/" + name
}

// Schema returns the named component schema with every $ref inlined, and
// the files that were read to resolve it (the document itself first).
func (d *Document) Schema(name string) (*yaml.Node, []string, error) {
	if !d.HasSchema(name) {
		return nil, nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
	}

	r := schema.NewResolver(func(path string) (*yaml.Node, error) {
		if path == d.path {
			return d.root, nil
		}
		return schema.LoadFile(path)
	})

	node, err := r.Resolve(d.path, SchemaPointer(name))
	if err != nil {
		return nil, nil, fmt.Errorf("openapi: %s: %w", name, err)
	}

	return node, r.Files(), nil
}
