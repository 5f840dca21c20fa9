// Package cli provides the command-line interface for mockapi.
package cli

import (
	"fmt"

	"github.com/potterlabs/mockapi/config"
	"github.com/spf13/cobra"
)

// rootOptions holds the global flags shared by every command.
type rootOptions struct {
	configFile string
}

// NewRootCommand builds the mockapi command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "mockapi",
		Short: "Schema-driven mock API server",
		Long: `mockapi serves a mock of the provider, slideshow, video and story APIs.

POST bodies are validated against JSON Schema files or OpenAPI components.
Responses come from canned examples when present, otherwise from stubs
generated from the response schema.

Example:
  mockapi serve                         # Serve on :4009 using ./data
  mockapi serve --listen 127.0.0.1:8080 # Serve on another address
  mockapi stub data/slideshow/schemas/Script.json
  mockapi stub api.yaml --component VideoJob --indent
  mockapi check                         # Compile every schema`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "config file (default: mockapi.yaml)")
	flags.String("repo-root", "", "base directory for data paths (default: data)")
	flags.String("log-level", "", "log level: debug, info, warn, error (default: info)")
	flags.String("log-format", "", "log format: text, json (default: text)")

	cmd.AddCommand(
		newServeCommand(opts),
		newStubCommand(),
		newCheckCommand(opts),
		newVersionCommand(),
	)

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// loadConfig reads and validates the configuration, with the flags of cmd
// taking precedence.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
