package cli

import (
	"fmt"

	"github.com/potterlabs/mockapi/registry"
	"github.com/spf13/cobra"
)

// checkResult is the outcome of loading and compiling one schema.
type checkResult struct {
	Ref registry.Ref
	Err error
}

func newCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load and compile every schema",
		Long: `Check loads, resolves and compiles every schema file under the slideshow
schemas directory and every component of the story OpenAPI document.

It exits non-zero when any schema fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}

			reg := registry.New(registry.Config{
				SchemasDir:  cfg.SlideshowSchemasDir(),
				OpenAPIFile: cfg.StoryOpenAPIPath(),
			}, cfg.Log.NewLogger(cmd.ErrOrStderr()))

			results, err := checkSchemas(reg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					fmt.Fprintf(out, "FAIL  %s: %v\n", r.Ref, r.Err)
					continue
				}
				fmt.Fprintf(out, "ok    %s\n", r.Ref)
			}

			fmt.Fprintf(out, "\n%d schemas checked, %d failed\n", len(results), failed)

			if failed > 0 {
				return fmt.Errorf("%d of %d schemas failed", failed, len(results))
			}

			return nil
		},
	}
}

// checkSchemas compiles every schema file and component the registry can
// see, files first.
func checkSchemas(reg *registry.Registry) ([]checkResult, error) {
	files, err := reg.Files()
	if err != nil {
		return nil, err
	}

	components, err := reg.Components()
	if err != nil {
		return nil, err
	}

	refs := make([]registry.Ref, 0, len(files)+len(components))
	for _, f := range files {
		refs = append(refs, registry.File(f))
	}
	for _, c := range components {
		refs = append(refs, registry.Component(c))
	}

	results := make([]checkResult, 0, len(refs))
	for _, ref := range refs {
		entry, err := reg.Lookup(ref)
		if err == nil {
			err = entry.Check()
		}
		results = append(results, checkResult{Ref: ref, Err: err})
	}

	return results, nil
}
