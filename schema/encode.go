package schema

import (
	"bytes"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// MarshalJSON encodes a decoded document as JSON, keeping mapping keys in
// document order.
func MarshalJSON(n *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeNode(&buf, unwrap(n)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeNode(buf *bytes.Buffer, n *yaml.Node) error {
	if n == nil {
		buf.WriteString("null")
		return nil
	}

	switch n.Kind {
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(n.Content[i].Value)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := encodeNode(buf, unwrap(n.Content[i+1])); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, item := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeNode(buf, unwrap(item)); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	}

	v, err := Value(n)
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}
