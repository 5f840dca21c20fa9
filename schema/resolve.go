package schema

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrCyclicRef is returned when following $ref pointers leads back to a
	// schema that is already being resolved.
	ErrCyclicRef = errors.New("schema: cyclic $ref")

	// ErrUnsupportedRef is returned for $ref values that are neither local
	// pointers nor relative file references.
	ErrUnsupportedRef = errors.New("schema: unsupported $ref")
)

// Loader returns the root node of the document stored at path.
type Loader func(path string) (*yaml.Node, error)

// LoadFile reads and decodes a JSON or YAML document from disk.
func LoadFile(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	root, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return root, nil
}

type refKey struct {
	file    string
	pointer string
}

func (k refKey) String() string {
	return filepath.Base(k.file) + "#" + k.pointer
}

// Resolver inlines "$ref" pointers so the result is a self-contained tree.
// Supported forms are local pointers ("#/components/schemas/Job"), relative
// files ("JobStatus.json") and both combined ("common.yaml#/$defs/Id").
// Sibling keywords next to a $ref are dropped, as in OpenAPI 3.0.
//
// A Resolver caches every document it reads; it is not safe for concurrent
// use. Use one per resolution.
type Resolver struct {
	load  Loader
	docs  map[string]*yaml.Node
	files []string
}

// NewResolver returns a Resolver reading documents through load. A nil load
// reads from disk with LoadFile.
func NewResolver(load Loader) *Resolver {
	if load == nil {
		load = LoadFile
	}

	return &Resolver{
		load: load,
		docs: make(map[string]*yaml.Node),
	}
}

// Resolve returns a copy of the node addressed by pointer inside the
// document at path, with every reachable $ref replaced by its target.
func (r *Resolver) Resolve(path, pointer string) (*yaml.Node, error) {
	return r.follow(refKey{file: filepath.Clean(path), pointer: pointer}, nil)
}

// Files returns every document read so far, in first-read order.
func (r *Resolver) Files() []string {
	return append([]string(nil), r.files...)
}

func (r *Resolver) document(path string) (*yaml.Node, error) {
	if doc, ok := r.docs[path]; ok {
		return doc, nil
	}

	doc, err := r.load(path)
	if err != nil {
		return nil, err
	}

	r.docs[path] = doc
	r.files = append(r.files, path)

	return doc, nil
}

func (r *Resolver) follow(key refKey, stack []refKey) (*yaml.Node, error) {
	for i, seen := range stack {
		if seen == key {
			chain := make([]string, 0, len(stack)-i+1)
			for _, k := range stack[i:] {
				chain = append(chain, k.String())
			}
			chain = append(chain, key.String())
			return nil, fmt.Errorf("%w: %s", ErrCyclicRef, strings.Join(chain, " -> "))
		}
	}

	doc, err := r.document(key.file)
	if err != nil {
		return nil, err
	}

	target, err := Pointer(doc, key.pointer)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key.file, err)
	}

	return r.inline(target, key.file, append(stack, key))
}

func (r *Resolver) inline(n *yaml.Node, file string, stack []refKey) (*yaml.Node, error) {
	n = unwrap(n)
	if n == nil {
		return nil, nil
	}

	if ref, ok := refValue(n); ok {
		key, err := r.target(file, ref)
		if err != nil {
			return nil, err
		}
		return r.follow(key, stack)
	}

	out := *n
	if len(n.Content) == 0 {
		return &out, nil
	}

	out.Content = make([]*yaml.Node, len(n.Content))
	for i, child := range n.Content {
		if n.Kind == yaml.MappingNode && i%2 == 0 {
			out.Content[i] = child
			continue
		}

		resolved, err := r.inline(child, file, stack)
		if err != nil {
			return nil, err
		}
		out.Content[i] = resolved
	}

	return &out, nil
}

// target turns a $ref value into an absolute document key.
func (r *Resolver) target(file, ref string) (refKey, error) {
	loc, frag, _ := strings.Cut(ref, "#")

	if frag != "" {
		unescaped, err := url.PathUnescape(frag)
		if err != nil {
			return refKey{}, fmt.Errorf("%w: %q: %v", ErrUnsupportedRef, ref, err)
		}
		frag = unescaped

		if !strings.HasPrefix(frag, "/") {
			return refKey{}, fmt.Errorf("%w: %q: anchors are not supported", ErrUnsupportedRef, ref)
		}
	}

	if loc == "" {
		return refKey{file: file, pointer: frag}, nil
	}

	if u, err := url.Parse(loc); err != nil || u.Scheme != "" || u.Host != "" {
		return refKey{}, fmt.Errorf("%w: %q: only relative file references are supported", ErrUnsupportedRef, ref)
	}

	if !filepath.IsAbs(loc) {
		loc = filepath.Join(filepath.Dir(file), filepath.FromSlash(loc))
	}

	return refKey{file: filepath.Clean(loc), pointer: frag}, nil
}

// refValue reports whether n is a {"$ref": "<string>"} reference object.
func refValue(n *yaml.Node) (string, bool) {
	if n.Kind != yaml.MappingNode {
		return "", false
	}

	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value != "$ref" {
			continue
		}
		v := unwrap(n.Content[i+1])
		if v != nil && v.Kind == yaml.ScalarNode {
			return v.Value, true
		}
	}

	return "", false
}
