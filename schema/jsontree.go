package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// decodeJSON builds a yaml node tree from a JSON document, keeping key order.
// yaml.v3 rejects some valid JSON string escapes ("\/", surrogate pairs), so
// JSON sources are tokenized with a JSON decoder instead.
func decodeJSON(data []byte) (*yaml.Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	t := &jsonTree{dec: dec, lines: newlineOffsets(data)}

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	return t.value(tok)
}

type jsonTree struct {
	dec   *json.Decoder
	lines []int
}

// line reports the 1-based line of the decoder's current offset.
func (t *jsonTree) line() int {
	off := int(t.dec.InputOffset())
	return sort.SearchInts(t.lines, off) + 1
}

func (t *jsonTree) value(tok json.Token) (*yaml.Node, error) {
	line := t.line()

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return t.object(line)
		case '[':
			return t.array(line)
		}
		return nil, fmt.Errorf("unexpected %q", rune(v))
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v, Line: line}, nil
	case json.Number:
		// The token may alias the decoder's buffer.
		num := strings.Clone(v.String())
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: numberTag(num), Value: num, Line: line}, nil
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v), Line: line}, nil
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null", Line: line}, nil
	}

	return nil, fmt.Errorf("unexpected token %v", tok)
}

func (t *jsonTree) object(line int) (*yaml.Node, error) {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Line: line}

	for {
		tok, err := t.next()
		if err != nil {
			return nil, err
		}
		if tok == json.Delim('}') {
			return n, nil
		}

		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("object key %v is not a string", tok)
		}
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key, Line: t.line()}

		tok, err = t.next()
		if err != nil {
			return nil, err
		}
		val, err := t.value(tok)
		if err != nil {
			return nil, err
		}

		n.Content = append(n.Content, keyNode, val)
	}
}

func (t *jsonTree) array(line int) (*yaml.Node, error) {
	n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Line: line}

	for {
		tok, err := t.next()
		if err != nil {
			return nil, err
		}
		if tok == json.Delim(']') {
			return n, nil
		}

		val, err := t.value(tok)
		if err != nil {
			return nil, err
		}
		n.Content = append(n.Content, val)
	}
}

func (t *jsonTree) next() (json.Token, error) {
	tok, err := t.dec.Token()
	if errors.Is(err, io.EOF) {
		return nil, io.ErrUnexpectedEOF
	}
	return tok, err
}

// numberTag picks the yaml tag a plain scalar with the same text resolves
// to, so the value decodes the same way it would from a YAML source.
func numberTag(s string) string {
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return "!!int"
	}
	if _, err := strconv.ParseUint(s, 10, 64); err == nil {
		return "!!int"
	}
	return "!!float"
}

func newlineOffsets(data []byte) []int {
	var out []int
	for i, b := range data {
		if b == '\n' {
			out = append(out, i)
		}
	}
	return out
}
