package openapi

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/potterlabs/mockapi/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const storyDoc = `
openapi: 3.1.0
info:
  title: Story API
  version: 0.1.0
tags:
  - name: Story
paths:
  /v1/stories:
    post:
      operationId: createStory
components:
  schemas:
    StoryJob:
      type: object
      required: [id, status, created_at]
      properties:
        id:
          type: string
        status:
          $ref: '#/components/schemas/JobStatus'
        created_at:
          type: string
          format: date-time
    JobStatus:
      type: string
      enum: [queued, running, succeeded, failed]
    Shared:
      $ref: 'shared.json'
    Loop:
      type: object
      properties:
        self:
          $ref: '#/components/schemas/Loop'
`

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeDoc(t, "story.yaml", storyDoc)

	doc, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "3.1.0", doc.OpenAPI)
	assert.Equal(t, "Story API", doc.Info.Title)
	assert.Equal(t, "0.1.0", doc.Info.Version)
	assert.Equal(t, []Tag{{Name: "Story"}}, doc.Tags)
	assert.Contains(t, doc.Paths, "/v1/stories")
	assert.Equal(t, []string{"StoryJob", "JobStatus", "Shared", "Loop"}, doc.SchemaNames())
	assert.True(t, doc.HasSchema("JobStatus"))
	assert.False(t, doc.HasSchema("Nope"))
	assert.Equal(t, filepath.Clean(path), doc.Path())
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("swagger 2", func(t *testing.T) {
		path := writeDoc(t, "old.yaml", "openapi: '2.0'\ninfo: {title: x, version: '1'}\n")
		_, err := Load(path)
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})

	t.Run("patch without version", func(t *testing.T) {
		path := writeDoc(t, "patch.yaml", "components:\n  schemas:\n    A: {type: string}\n")
		doc, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, doc.SchemaNames())
	})

	t.Run("no components", func(t *testing.T) {
		path := writeDoc(t, "bare.json", `{"openapi":"3.0.3","info":{"title":"x","version":"1"}}`)
		doc, err := Load(path)
		require.NoError(t, err)
		assert.Empty(t, doc.SchemaNames())
	})
}

func TestDocumentSchema(t *testing.T) {
	path := writeDoc(t, "story.yaml", storyDoc)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "shared.json"), []byte(`{"type":"integer"}`), 0o644))

	doc, err := Load(path)
	require.NoError(t, err)

	t.Run("inlines local refs", func(t *testing.T) {
		node, files, err := doc.Schema("StoryJob")
		require.NoError(t, err)
		assert.Equal(t, []string{doc.Path()}, files)

		n, err := schema.FromYAML(node)
		require.NoError(t, err)

		status, ok := n.Property("status")
		require.True(t, ok)
		assert.Equal(t, []any{"queued", "running", "succeeded", "failed"}, status.Enum)
	})

	t.Run("external file ref", func(t *testing.T) {
		node, files, err := doc.Schema("Shared")
		require.NoError(t, err)
		assert.Len(t, files, 2)

		n, err := schema.FromYAML(node)
		require.NoError(t, err)
		assert.Equal(t, schema.KindInteger, n.Kind())
	})

	t.Run("not found", func(t *testing.T) {
		_, _, err := doc.Schema("Missing")
		assert.ErrorIs(t, err, ErrSchemaNotFound)
	})

	t.Run("cycle", func(t *testing.T) {
		_, _, err := doc.Schema("Loop")
		assert.ErrorIs(t, err, schema.ErrCyclicRef)
	})
}

func TestSchemaPointer(t *testing.T) {
	assert.Equal(t, "/components/schemas/Job", SchemaPointer("Job"))
	assert.Equal(t, "/components/schemas/a~1b~0c", SchemaPointer("a/b~c"))
}
