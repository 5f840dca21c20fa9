// Package registry loads JSON Schemas by reference, resolves their $ref
// pointers and caches the result until a backing file changes.
//
// Two sources are supported: standalone schema files under a directory
// (File) and named components of an OpenAPI document (Component).
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/potterlabs/mockapi/apierror"
	"github.com/potterlabs/mockapi/openapi"
	"github.com/potterlabs/mockapi/schema"
	"github.com/potterlabs/mockapi/validation"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a referenced schema file or component does
// not exist.
var ErrNotFound = errors.New("registry: schema not found")

// Source tells where a schema reference points.
type Source int

const (
	SourceFile Source = iota
	SourceComponent
)

// Ref identifies a schema. For SourceFile, Name is a path relative to the
// schemas directory; for SourceComponent it is a components.schemas key.
type Ref struct {
	Source Source
	Name   string
}

// File references a standalone schema file.
func File(name string) Ref {
	return Ref{Source: SourceFile, Name: name}
}

// Component references a schema in the OpenAPI document.
func Component(name string) Ref {
	return Ref{Source: SourceComponent, Name: name}
}

func (r Ref) String() string {
	if r.Source == SourceComponent {
		return "#/components/schemas/" + r.Name
	}
	return r.Name
}

// Config locates the schema sources.
type Config struct {
	// SchemasDir holds standalone schema files.
	SchemasDir string
	// OpenAPIFile is the document whose components are served.
	OpenAPIFile string
}

// Entry is a loaded, fully resolved schema.
type Entry struct {
	Ref  Ref
	Node *schema.Node
	// Files lists every file read to resolve the schema.
	Files []string

	raw *yaml.Node

	once      sync.Once
	validator *validation.Validator
	err       error
}

// Validator returns the compiled validator, compiling it on first use.
func (e *Entry) Validator() (*validation.Validator, error) {
	e.once.Do(func() {
		e.validator, e.err = validation.Compile(e.Ref.String(), e.raw)
	})
	return e.validator, e.err
}

// Check parses the schema strictly, reporting keywords of the wrong shape
// that stub generation skips, and compiles its validator.
func (e *Entry) Check() error {
	if _, err := schema.FromYAML(e.raw); err != nil {
		return err
	}
	_, err := e.Validator()
	return err
}

// Validate checks instance against the schema. Compilation failures are
// reported as internal errors.
func (e *Entry) Validate(instance any) error {
	v, err := e.Validator()
	if err != nil {
		return apierror.Internal(err)
	}
	return v.Validate(instance)
}

// Registry caches resolved schemas. It is safe for concurrent use.
type Registry struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[Ref]*Entry
}

// New creates a Registry. A nil logger uses slog.Default().
func New(cfg Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		cfg:     cfg,
		logger:  logger,
		entries: make(map[Ref]*Entry),
	}
}

// Config returns the registry configuration.
func (r *Registry) Config() Config {
	return r.cfg
}

// Lookup returns the entry for ref, loading it on a cache miss.
func (r *Registry) Lookup(ref Ref) (*Entry, error) {
	r.mu.RLock()
	e, ok := r.entries[ref]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	e, err := r.load(ref)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.entries[ref]; ok {
		return cached, nil
	}
	r.entries[ref] = e

	r.logger.Debug("schema loaded", "ref", ref.String(), "files", len(e.Files))

	return e, nil
}

func (r *Registry) load(ref Ref) (*Entry, error) {
	var (
		raw   *yaml.Node
		files []string
		err   error
	)

	switch ref.Source {
	case SourceFile:
		raw, files, err = r.loadFile(ref.Name)
	case SourceComponent:
		raw, files, err = r.loadComponent(ref.Name)
	default:
		err = fmt.Errorf("registry: unknown source %d", ref.Source)
	}
	if err != nil {
		return nil, err
	}

	node, err := schema.FromYAML(raw, schema.Lenient())
	if err != nil {
		return nil, fmt.Errorf("registry: %s: %w", ref, err)
	}

	abs := make([]string, 0, len(files))
	for _, f := range files {
		abs = append(abs, absPath(f))
	}

	return &Entry{
		Ref:   ref,
		Node:  node,
		Files: abs,
		raw:   raw,
	}, nil
}

func (r *Registry) loadFile(name string) (*yaml.Node, []string, error) {
	path := filepath.Join(r.cfg.SchemasDir, filepath.FromSlash(name))

	res := schema.NewResolver(nil)
	raw, err := res.Resolve(path, "")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrNotFound, name, err)
		}
		return nil, nil, fmt.Errorf("registry: %s: %w", name, err)
	}

	return raw, res.Files(), nil
}

func (r *Registry) loadComponent(name string) (*yaml.Node, []string, error) {
	doc, err := openapi.Load(r.cfg.OpenAPIFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrNotFound, name, err)
		}
		return nil, nil, fmt.Errorf("registry: %w", err)
	}

	raw, files, err := doc.Schema(name)
	if err != nil {
		if errors.Is(err, openapi.ErrSchemaNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrNotFound, name, err)
		}
		return nil, nil, fmt.Errorf("registry: %w", err)
	}

	return raw, files, nil
}

// Invalidate drops every cached entry that was built from path and returns
// how many were dropped.
func (r *Registry) Invalidate(path string) int {
	path = absPath(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for ref, e := range r.entries {
		for _, f := range e.Files {
			if f == path {
				delete(r.entries, ref)
				n++
				break
			}
		}
	}

	return n
}

// Purge drops the whole cache.
func (r *Registry) Purge() {
	r.mu.Lock()
	r.entries = make(map[Ref]*Entry)
	r.mu.Unlock()
}

// Len returns the number of cached entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Files lists the schema files under the schemas directory, relative to it
// and sorted. A missing directory yields no files.
func (r *Registry) Files() ([]string, error) {
	if r.cfg.SchemasDir == "" {
		return nil, nil
	}

	if _, err := os.Stat(r.cfg.SchemasDir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	files, err := doublestar.Glob(os.DirFS(r.cfg.SchemasDir), "**/*.json", doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	sort.Strings(files)
	return files, nil
}

// Components lists the component schema names of the OpenAPI document in
// declaration order.
func (r *Registry) Components() ([]string, error) {
	if r.cfg.OpenAPIFile == "" {
		return nil, nil
	}

	doc, err := openapi.Load(r.cfg.OpenAPIFile)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	return doc.SchemaNames(), nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
