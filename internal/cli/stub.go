package cli

import (
	"bytes"
	"fmt"
	"path/filepath"

	json "github.com/goccy/go-json"
	"github.com/potterlabs/mockapi/registry"
	"github.com/potterlabs/mockapi/stubgen"
	"github.com/spf13/cobra"
)

func newStubCommand() *cobra.Command {
	var (
		component string
		indent    bool
	)

	cmd := &cobra.Command{
		Use:   "stub <file>",
		Short: "Print the stub generated for a schema",
		Long: `Print the stub generated for a standalone JSON or YAML schema file, or
for a component of an OpenAPI document when --component is set.

Example:
  mockapi stub data/slideshow/schemas/Voice.json
  mockapi stub data/story/openapi-video-story.patch.yaml --component Scene`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := stubFor(args[0], component)
			if err != nil {
				return err
			}

			data, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("failed to encode stub: %w", err)
			}

			if indent {
				var buf bytes.Buffer
				if err := json.Indent(&buf, data, "", "  "); err != nil {
					return fmt.Errorf("failed to indent stub: %w", err)
				}
				data = buf.Bytes()
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}

	cmd.Flags().StringVar(&component, "component", "", "components.schemas entry to stub; the file is then an OpenAPI document")
	cmd.Flags().BoolVar(&indent, "indent", false, "pretty-print the output")

	return cmd
}

// stubFor loads the schema through a one-off registry so $ref resolution
// matches what the server does.
func stubFor(path, component string) (any, error) {
	var (
		reg *registry.Registry
		ref registry.Ref
	)

	if component != "" {
		reg = registry.New(registry.Config{OpenAPIFile: path}, nil)
		ref = registry.Component(component)
	} else {
		reg = registry.New(registry.Config{SchemasDir: filepath.Dir(path)}, nil)
		ref = registry.File(filepath.Base(path))
	}

	entry, err := reg.Lookup(ref)
	if err != nil {
		return nil, err
	}

	return stubgen.Generate(entry.Node), nil
}
