// Package validation checks request bodies against JSON Schema and reports
// failures as unprocessable_entity errors.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/potterlabs/mockapi/apierror"
	"github.com/potterlabs/mockapi/schema"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// ErrCompile is returned when a schema cannot be compiled into a validator.
var ErrCompile = errors.New("validation: invalid schema")

// Validator checks decoded JSON values against one compiled schema. It is
// safe for concurrent use.
type Validator struct {
	name   string
	schema *jsonschema.Schema
}

// Compile builds a Validator from a resolved schema node. The name only
// appears in error messages.
func Compile(name string, node *yaml.Node) (*Validator, error) {
	doc, err := schema.Value(node)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCompile, name, err)
	}

	return CompileValue(name, doc)
}

// CompileValue builds a Validator from a schema already decoded into plain
// Go values.
func CompileValue(name string, doc any) (*Validator, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCompile, name, err)
	}

	loc := "mem:///" + url.PathEscape(name)

	c := jsonschema.NewCompiler()
	if err := c.AddResource(loc, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCompile, name, err)
	}

	s, err := c.Compile(loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCompile, name, err)
	}

	return &Validator{name: name, schema: s}, nil
}

// Name returns the name the validator was compiled with.
func (v *Validator) Name() string {
	return v.name
}

// Validate checks instance, a value decoded from JSON. A mismatch is
// returned as an *apierror.Error of kind unprocessable_entity carrying the
// instance path and the schema path of the failing keyword.
func (v *Validator) Validate(instance any) error {
	err := v.schema.Validate(instance)
	if err == nil {
		return nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return apierror.Internal(fmt.Errorf("validation: %s: %w", v.name, err))
	}

	leaf := bestMatch(ve)

	return apierror.Unprocessable(
		leaf.Message,
		instancePath(instance, leaf.InstanceLocation),
		schemaPath(leaf.KeywordLocation),
	)
}

// bestMatch picks the leaf error closest to the document root; among equally
// shallow leaves the first one reported wins.
func bestMatch(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	var best *jsonschema.ValidationError
	bestDepth := -1

	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			depth := len(tokens(e.InstanceLocation))
			if best == nil || depth < bestDepth {
				best, bestDepth = e, depth
			}
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)

	return best
}

// instancePath converts a JSON pointer into the instance to a list of keys
// and array indices, walking the instance so numeric object keys stay
// strings.
func instancePath(instance any, ptr string) []any {
	toks := tokens(ptr)
	path := make([]any, 0, len(toks))

	cur := instance
	for _, tok := range toks {
		switch c := cur.(type) {
		case []any:
			i, err := strconv.Atoi(tok)
			if err != nil || i < 0 || i >= len(c) {
				path = append(path, tok)
				cur = nil
				continue
			}
			path = append(path, i)
			cur = c[i]
		case map[string]any:
			path = append(path, tok)
			cur = c[tok]
		default:
			path = append(path, tok)
			cur = nil
		}
	}

	return path
}

func schemaPath(ptr string) []string {
	return tokens(ptr)
}

func tokens(ptr string) []string {
	ptr = strings.TrimPrefix(ptr, "#")
	if ptr == "" {
		return []string{}
	}

	parts := strings.Split(strings.TrimPrefix(ptr, "/"), "/")
	for i, p := range parts {
		parts[i] = strings.ReplaceAll(strings.ReplaceAll(p, "~1", "/"), "~0", "~")
	}

	return parts
}
