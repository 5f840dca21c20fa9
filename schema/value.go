package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrPointerNotFound is returned when a JSON pointer does not address a
// value in the document.
var ErrPointerNotFound = errors.New("schema: pointer not found")

// Value decodes a node into a JSON-compatible Go value: nil, bool, int,
// float64, string, []any or map[string]any.
func Value(n *yaml.Node) (any, error) {
	n = unwrap(n)
	if n == nil {
		return nil, nil
	}

	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}

	return normalize(v), nil
}

// normalize converts YAML-only shapes (non-string map keys, timestamps)
// into their JSON equivalents.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, vv := range t {
			t[k] = normalize(vv)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[fmt.Sprint(k)] = normalize(vv)
		}
		return out
	case []any:
		for i, vv := range t {
			t[i] = normalize(vv)
		}
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

// Pointer returns the node addressed by a JSON pointer (RFC 6901) relative
// to root. The empty pointer addresses root itself.
//
// See: https://www.rfc-editor.org/rfc/rfc6901
func Pointer(root *yaml.Node, pointer string) (*yaml.Node, error) {
	cur := unwrap(root)
	if pointer == "" {
		return cur, nil
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, fmt.Errorf("%w: %q must start with /", ErrPointerNotFound, pointer)
	}

	for _, raw := range strings.Split(pointer[1:], "/") {
		token := unescapeToken(raw)

		var next *yaml.Node
		switch {
		case cur == nil:
		case cur.Kind == yaml.MappingNode:
			for i := 0; i+1 < len(cur.Content); i += 2 {
				if cur.Content[i].Value == token {
					next = cur.Content[i+1]
					break
				}
			}
		case cur.Kind == yaml.SequenceNode:
			idx, err := strconv.Atoi(token)
			if err == nil && idx >= 0 && idx < len(cur.Content) {
				next = cur.Content[idx]
			}
		}

		if next == nil {
			return nil, fmt.Errorf("%w: %s", ErrPointerNotFound, pointer)
		}
		cur = unwrap(next)
	}

	return cur, nil
}

func escapeToken(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "~", "~0"), "/", "~1")
}

func unescapeToken(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "~1", "/"), "~0", "~")
}
