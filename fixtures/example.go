package fixtures

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
)

// ExampleSuffix is appended to an example name to form its file name.
const ExampleSuffix = ".response.json"

// ErrInvalidExample is returned for example files that do not hold JSON.
var ErrInvalidExample = errors.New("fixtures: invalid example")

// Examples serves canned response bodies stored as <name>.response.json.
type Examples struct {
	dir string
}

// NewExamples returns Examples reading from dir.
func NewExamples(dir string) *Examples {
	return &Examples{dir: dir}
}

// Dir returns the examples directory.
func (e *Examples) Dir() string {
	return e.dir
}

// Path returns the file an example name maps to.
func (e *Examples) Path(name string) string {
	return filepath.Join(e.dir, name+ExampleSuffix)
}

// Lookup returns the example body for name verbatim. The boolean is false
// when no example exists; that is not an error.
func (e *Examples) Lookup(name string) (json.RawMessage, bool, error) {
	if name == "" || e.dir == "" {
		return nil, false, nil
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, false, fmt.Errorf("%w: name %q", ErrInvalidExample, name)
	}

	data, err := os.ReadFile(e.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fixtures: %w", err)
	}

	if !json.Valid(data) {
		return nil, false, fmt.Errorf("%w: %s", ErrInvalidExample, e.Path(name))
	}

	return json.RawMessage(data), true, nil
}
