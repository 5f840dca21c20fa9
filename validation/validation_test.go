package validation

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/potterlabs/mockapi/apierror"
	"github.com/potterlabs/mockapi/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const slideshowSchema = `
type: object
required: [title]
properties:
  title:
    type: string
    minLength: 1
  slides:
    type: array
    items:
      type: object
      required: [text]
      properties:
        text:
          type: string
  "0":
    type: string
`

func compile(t *testing.T, src string) *Validator {
	t.Helper()
	root, err := schema.Decode([]byte(src))
	require.NoError(t, err)

	v, err := Compile("Slideshow", root)
	require.NoError(t, err)
	return v
}

func decode(t *testing.T, src string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(src), &v))
	return v
}

func TestValidate(t *testing.T) {
	v := compile(t, slideshowSchema)
	assert.Equal(t, "Slideshow", v.Name())

	tests := []struct {
		name       string
		body       string
		message    string
		path       []any
		schemaPath []string
	}{
		{
			name: "valid",
			body: `{"title":"Trip","slides":[{"text":"a"}],"extra":true}`,
		},
		{
			name:       "missing required",
			body:       `{}`,
			message:    "missing properties: 'title'",
			path:       []any{},
			schemaPath: []string{"required"},
		},
		{
			name:       "wrong type",
			body:       `{"title":1}`,
			message:    "expected string, but got number",
			path:       []any{"title"},
			schemaPath: []string{"properties", "title", "type"},
		},
		{
			name:       "array index is an int",
			body:       `{"title":"x","slides":[{"text":"a"},{"text":2}]}`,
			message:    "expected string, but got number",
			path:       []any{"slides", 1, "text"},
			schemaPath: []string{"properties", "slides", "items", "properties", "text", "type"},
		},
		{
			name:       "numeric object key stays a string",
			body:       `{"title":"x","0":5}`,
			message:    "expected string, but got number",
			path:       []any{"0"},
			schemaPath: []string{"properties", "0", "type"},
		},
		{
			name:       "top level type",
			body:       `[]`,
			message:    "expected object, but got array",
			path:       []any{},
			schemaPath: []string{"type"},
		},
		{
			name:       "shallowest error wins",
			body:       `{"slides":[{"text":1}]}`,
			message:    "missing properties: 'title'",
			path:       []any{},
			schemaPath: []string{"required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(decode(t, tt.body))
			if tt.message == "" {
				assert.NoError(t, err)
				return
			}

			var apiErr *apierror.Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, apierror.KindUnprocessableEntity, apiErr.Kind)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, tt.path, apiErr.Path)
			assert.Equal(t, tt.schemaPath, apiErr.SchemaPath)
		})
	}
}

func TestValidateNonJSONValue(t *testing.T) {
	v := compile(t, slideshowSchema)

	err := v.Validate(map[string]any{"title": struct{}{}})
	assert.True(t, apierror.Is(err, apierror.KindInternal))
}

func TestCompileErrors(t *testing.T) {
	t.Run("invalid keyword value", func(t *testing.T) {
		_, err := CompileValue("Bad", map[string]any{"type": 12})
		assert.ErrorIs(t, err, ErrCompile)
	})

	t.Run("unmarshalable value", func(t *testing.T) {
		_, err := CompileValue("Bad", map[string]any{"default": make(chan int)})
		assert.ErrorIs(t, err, ErrCompile)
	})
}

func TestCompileValue(t *testing.T) {
	v, err := CompileValue("Voice Create", map[string]any{
		"type":     "object",
		"required": []any{"name"},
	})
	require.NoError(t, err)

	assert.NoError(t, v.Validate(map[string]any{"name": "x"}))
	assert.Error(t, v.Validate(map[string]any{}))
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{}, tokens(""))
	assert.Equal(t, []string{}, tokens("#"))
	assert.Equal(t, []string{"a/b", "c~d"}, tokens("/a~1b/c~0d"))
	assert.Equal(t, []string{"properties", "x"}, tokens("#/properties/x"))
}
